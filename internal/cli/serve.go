package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"options-terminal/internal/config"
	"options-terminal/internal/ledger"
	"options-terminal/internal/metrics"
	"options-terminal/internal/risk"
	"options-terminal/pkg/utils"
)

// newServeCmd runs the risk engine loop until interrupted, with a
// Prometheus metrics endpoint alongside.
func newServeCmd(app *App) *cobra.Command {
	var metricsAddr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the risk evaluation engine",
		Long: `Starts the tick loop that evaluates every risk-enabled leg against its
target, stop-loss and trailing-stop rules, creating Risk Exits when rules
fire. Runs until SIGINT or SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := app.openStore()
			if err != nil {
				return err
			}
			defer s.Close()

			registry := prometheus.NewRegistry()
			m := metrics.New(registry)
			engine := risk.NewEngine(s, app.Config.Engine, m, app.Logger)
			l := ledger.New(s, config.DefaultLegDefaults(), app.Logger)
			feed := ledger.NewPriceFeed(s, app.Brokers, l, app.Config.Engine.Interval, app.Logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			go feed.Run(ctx)

			srv := &http.Server{
				Addr:    metricsAddr,
				Handler: metricsMux(registry),
			}
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					app.Logger.Error().Err(err).Msg("Metrics server failed")
				}
			}()

			session := utils.CurrentSession()
			ev := app.Logger.Info().
				Dur("interval", app.Config.Engine.Interval).
				Str("metrics_addr", metricsAddr).
				Str("market_session", string(session))
			if session == utils.SessionClosed {
				ev = ev.Time("next_open", utils.NextMarketOpen(time.Now()))
			}
			ev.Msg("Risk engine starting")

			engine.Run(ctx)

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)

			app.Logger.Info().Msg("Risk engine stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", ":9323", "address for the Prometheus metrics endpoint")
	return cmd
}

func metricsMux(registry *prometheus.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}
