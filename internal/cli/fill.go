package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"options-terminal/internal/config"
	"options-terminal/internal/ledger"
	"options-terminal/internal/models"
)

// newFillCmd records an executed trade against a leg. Fills from brokers
// without a push feed are reported here; the ledger creates the leg on the
// first fill for an unknown (instance, symbol) pair.
func newFillCmd(app *App) *cobra.Command {
	var (
		exchange   string
		underlying string
		expiry     string
		right      string
		strike     float64
		kind       string
		product    string
		lotSize    int
	)

	cmd := &cobra.Command{
		Use:   "fill <instance-id> <symbol> <BUY|SELL> <qty> <price>",
		Short: "Record an executed fill on the position ledger",
		Long: `Records an executed trade for a leg. The leg is created on the first
fill for an unknown (instance, symbol) pair; the classification flags
(--underlying, --expiry, --right, --strike, --kind, --lot-size) only matter
on that first fill.`,
		Args: cobra.ExactArgs(5),
		RunE: func(cmd *cobra.Command, args []string) error {
			side := models.OrderSide(args[2])
			if side != models.OrderSideBuy && side != models.OrderSideSell {
				return fmt.Errorf("side must be BUY or SELL, got %q", args[2])
			}
			qty, err := strconv.Atoi(args[3])
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[3])
			}
			price, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				return fmt.Errorf("invalid price %q", args[4])
			}

			fill := ledger.Fill{
				InstanceID: args[0],
				Symbol:     args[1],
				Exchange:   models.Exchange(exchange),
				Side:       side,
				Quantity:   qty,
				Price:      price,
				Underlying: underlying,
				Right:      models.OptionRight(right),
				Strike:     strike,
				Kind:       models.InstrumentKind(kind),
				Product:    models.ProductType(product),
				LotSize:    lotSize,
			}
			if expiry != "" {
				t, perr := time.Parse("2006-01-02", expiry)
				if perr != nil {
					return perr
				}
				fill.Expiry = t
			}

			s, err := app.openStore()
			if err != nil {
				return err
			}
			l := ledger.New(s, config.DefaultLegDefaults(), app.Logger)
			leg, err := l.ApplyFill(cmd.Context(), fill)
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(leg)
			}
			output.Success("Fill applied to %s", leg.Symbol)
			output.Printf("  leg:       %s\n", leg.ID)
			output.Printf("  net qty:   %d\n", leg.NetQty)
			output.Printf("  avg entry: %.2f\n", leg.AvgEntryPrice)
			return nil
		},
	}

	cmd.Flags().StringVar(&exchange, "exchange", "NSE", "exchange: NSE, NFO, BSE")
	cmd.Flags().StringVar(&underlying, "underlying", "", "underlying symbol (first fill only)")
	cmd.Flags().StringVar(&expiry, "expiry", "", "contract expiry YYYY-MM-DD (first fill only)")
	cmd.Flags().StringVar(&right, "right", "", "option right: CE, PE (first fill only)")
	cmd.Flags().Float64Var(&strike, "strike", 0, "option strike (first fill only)")
	cmd.Flags().StringVar(&kind, "kind", "EQ", "instrument kind: EQ, FUT, OPT")
	cmd.Flags().StringVar(&product, "product", "NRML", "product type: MIS, CNC, NRML")
	cmd.Flags().IntVar(&lotSize, "lot-size", 1, "contract lot size (first fill only)")
	return cmd
}
