package cli

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"options-terminal/internal/config"
	"options-terminal/internal/ledger"
	"options-terminal/internal/metrics"
	"options-terminal/internal/models"
	"options-terminal/internal/risk"
)

func newRiskCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "risk",
		Short: "Inspect and drive position risk",
	}

	cmd.AddCommand(newRiskLegsCmd(app))
	cmd.AddCommand(newRiskExitsCmd(app))
	cmd.AddCommand(newRiskEnableCmd(app))
	cmd.AddCommand(newRiskDisableCmd(app))
	cmd.AddCommand(newRiskTriggerCmd(app))
	return cmd
}

// newRiskEnableCmd arms the engine for a leg by snapshotting a risk
// configuration onto it through the ledger.
func newRiskEnableCmd(app *App) *cobra.Command {
	var (
		target         float64
		stop           float64
		trail          bool
		trailDistance  float64
		trailStep      float64
		armAfter       float64
		breakevenAfter float64
		scope          string
		pyramiding     bool
	)

	cmd := &cobra.Command{
		Use:   "enable <leg-id>",
		Short: "Arm target / stop / trailing rules for a leg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			l := ledger.New(s, config.DefaultLegDefaults(), app.Logger)
			trailing := models.TrailingConfig{
				Enabled:        trail,
				TrailDistance:  trailDistance,
				Step:           trailStep,
				ArmAfter:       armAfter,
				BreakevenAfter: breakevenAfter,
			}
			if err := l.EnableRisk(cmd.Context(), args[0], target, stop, trailing, models.ExitScope(scope), pyramiding); err != nil {
				return err
			}
			NewOutput(cmd).Success("Risk armed for leg %s", args[0])
			return nil
		},
	}

	cmd.Flags().Float64Var(&target, "target", 0, "target price (0 disables)")
	cmd.Flags().Float64Var(&stop, "stop", 0, "stop-loss price (0 disables)")
	cmd.Flags().BoolVar(&trail, "trail", false, "enable the trailing stop")
	cmd.Flags().Float64Var(&trailDistance, "trail-distance", 0, "distance between best price and trailing stop")
	cmd.Flags().Float64Var(&trailStep, "trail-step", 0, "favorable move required before a recompute")
	cmd.Flags().Float64Var(&armAfter, "arm-after", 0, "per-unit profit required before arming")
	cmd.Flags().Float64Var(&breakevenAfter, "breakeven-after", 0, "per-unit profit after which the stop clamps to entry")
	cmd.Flags().StringVar(&scope, "scope", "", "exit scope: LEG, TYPE, INDEX")
	cmd.Flags().BoolVar(&pyramiding, "pyramiding", false, "allow re-entry after a risk exit")
	return cmd
}

func newRiskDisableCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "disable <leg-id>",
		Short: "Take a leg out of risk evaluation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			if err := s.SetRiskEnabled(cmd.Context(), args[0], false); err != nil {
				return err
			}
			NewOutput(cmd).Success("Risk disarmed for leg %s", args[0])
			return nil
		},
	}
}

func newRiskLegsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "legs",
		Short: "List legs under risk evaluation",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			legs, err := s.ListRiskEnabledLegs(cmd.Context())
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(legs)
			}
			if len(legs) == 0 {
				output.Dim("No risk-enabled legs")
				return nil
			}

			rows := make([][]string, 0, len(legs))
			for _, leg := range legs {
				rows = append(rows, []string{
					leg.Symbol,
					leg.InstanceID,
					strconv.Itoa(leg.NetQty),
					fmt.Sprintf("%.2f", leg.AvgEntryPrice),
					fmt.Sprintf("%.2f", leg.LastPrice),
					fmt.Sprintf("%.2f", leg.TargetPrice),
					fmt.Sprintf("%.2f", leg.StopPrice),
					fmt.Sprintf("%.2f", leg.TrailingStopPrice),
				})
			}
			output.Table(
				[]string{"SYMBOL", "INSTANCE", "QTY", "AVG", "LTP", "TARGET", "STOP", "TSL"},
				rows,
			)
			return nil
		},
	}
}

func newRiskExitsCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "exits",
		Short: "List pending risk exits",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			exits, err := s.ListPendingRiskExits(cmd.Context())
			if err != nil {
				return err
			}

			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(exits)
			}
			if len(exits) == 0 {
				output.Dim("No pending risk exits")
				return nil
			}

			rows := make([][]string, 0, len(exits))
			for _, exit := range exits {
				rows = append(rows, []string{
					exit.TriggerID,
					exit.LegID,
					string(exit.Kind),
					fmt.Sprintf("%.2f", exit.TriggerPrice),
					fmt.Sprintf("%.2f", exit.TotalPnL),
					string(exit.Status),
				})
			}
			output.Table(
				[]string{"TRIGGER", "LEG", "KIND", "PRICE", "PNL", "STATUS"},
				rows,
			)
			return nil
		},
	}
}

func newRiskTriggerCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "trigger <leg-id>",
		Short: "Manually trigger a risk exit for a leg",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			m := metrics.New(prometheus.NewRegistry())
			engine := risk.NewEngine(s, app.Config.Engine, m, app.Logger)

			output := NewOutput(cmd)
			if err := engine.TriggerManual(cmd.Context(), args[0]); err != nil {
				output.Error("Trigger failed: %v", err)
				return err
			}
			output.Success("Risk exit created for leg %s", args[0])
			return nil
		},
	}
}
