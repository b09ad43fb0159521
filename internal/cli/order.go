package cli

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"options-terminal/internal/executor"
	"options-terminal/internal/metrics"
	"options-terminal/internal/models"
	"options-terminal/pkg/utils"
)

// newOrderCmd places a quick order against the registered broker
// instances.
func newOrderCmd(app *App) *cobra.Command {
	var (
		instanceID string
		mode       string
		quantity   int
		product    string
		opMode     string
		policy     string
		offset     string
		expiry     string
		futSymbol  string
	)

	cmd := &cobra.Command{
		Use:   "order <leg-id> <action>",
		Short: "Place a quick order",
		Long: `Places a quick order for a leg. Actions: BUY, SELL, BUY_CE, SELL_CE,
BUY_PE, SELL_PE, EXIT, EXIT_ALL. Without --instance the order broadcasts to
every active, order-enabled, non-analyzer instance on the leg's watchlist.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}

			req := executor.QuickOrderRequest{
				LegID:         args[0],
				InstanceID:    instanceID,
				Action:        models.QuickAction(args[1]),
				Mode:          models.TradeMode(mode),
				Quantity:      quantity,
				Product:       models.ProductType(product),
				OperatingMode: models.OperatingMode(opMode),
				StrikePolicy:  models.StrikePolicy(policy),
				Offset:        models.StrikeOffset(offset),
				FuturesSymbol: futSymbol,
			}
			if expiry != "" {
				t, perr := time.Parse("2006-01-02", expiry)
				if perr != nil {
					return perr
				}
				req.Expiry = t
			}

			m := metrics.New(prometheus.NewRegistry())
			x := executor.New(s, app.Brokers, app.Config.Executor, m, app.Logger)

			output := NewOutput(cmd)
			if !utils.IsMarketOpen() {
				output.Warn("Market is %s; the exchange may reject this order", utils.CurrentSession())
			}

			result, err := x.PlaceQuickOrder(cmd.Context(), req)
			if err != nil {
				output.Error("Quick order failed: %v", err)
				return err
			}
			if output.IsJSON() {
				return output.JSON(result)
			}

			output.Printf("Strategy: %s\n", result.Strategy)
			for _, res := range result.Results {
				if res.Error != "" {
					output.Error("  %s: %s", res.InstanceID, res.Error)
					continue
				}
				output.Success("  %s: %d order(s)", res.InstanceID, len(res.OrderIDs))
			}
			output.Printf("%d/%d instances succeeded\n", result.Successful, result.Total)
			return nil
		},
	}

	cmd.Flags().StringVar(&instanceID, "instance", "", "target one instance instead of broadcasting")
	cmd.Flags().StringVar(&mode, "mode", "DIRECT", "trade mode: DIRECT, FUTURES, OPTIONS")
	cmd.Flags().IntVar(&quantity, "qty", 1, "quantity (lots for options)")
	cmd.Flags().StringVar(&product, "product", "", "product type: MIS, CNC, NRML")
	cmd.Flags().StringVar(&opMode, "op-mode", "BUYER", "operating mode: BUYER, WRITER")
	cmd.Flags().StringVar(&policy, "strike-policy", "FLOAT", "strike policy: FLOAT, ANCHOR")
	cmd.Flags().StringVar(&offset, "offset", "ATM", "strike offset: ITM3..ITM1, ATM, OTM1..OTM3")
	cmd.Flags().StringVar(&expiry, "expiry", "", "option expiry (YYYY-MM-DD, default nearest)")
	cmd.Flags().StringVar(&futSymbol, "futures-symbol", "", "validated futures contract for FUTURES mode")
	return cmd
}
