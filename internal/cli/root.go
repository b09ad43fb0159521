// Package cli provides the command-line interface for the terminal core.
package cli

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"options-terminal/internal/broker"
	"options-terminal/internal/config"
	"options-terminal/internal/store"
)

// Version information
const (
	Version   = "0.1.0"
	BuildDate = "2025-11-01"
)

// App holds the application dependencies shared by all commands. The store
// and broker registry are initialized lazily by the commands that need them.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   store.Store
	Brokers *broker.Registry
}

// openStore opens the SQLite store on first use.
func (a *App) openStore() (store.Store, error) {
	if a.Store != nil {
		return a.Store, nil
	}
	s, err := store.NewSQLiteStore(a.Config.Store.DBPath)
	if err != nil {
		return nil, err
	}
	a.Store = s
	return s, nil
}

// initBrokers registers one broker per configured instance.
func (a *App) initBrokers() {
	for id, bc := range a.Config.Brokers {
		switch bc.Kind {
		case "paper":
			a.Brokers.Register(id, broker.NewPaperBroker())
		default:
			a.Brokers.Register(id, broker.NewKiteBroker(broker.KiteConfig{
				APIKey:    bc.APIKey,
				APISecret: bc.APISecret,
				TokenPath: bc.TokenPath,
			}))
		}
		a.Logger.Debug().Str("instance", id).Str("kind", bc.Kind).Msg("Broker registered")
	}
}

// kiteBroker returns the configured Kite broker for an instance.
func (a *App) kiteBroker(instanceID string) (*broker.KiteBroker, error) {
	b, err := a.Brokers.Get(instanceID)
	if err != nil {
		return nil, err
	}
	kb, ok := b.(*broker.KiteBroker)
	if !ok {
		return nil, fmt.Errorf("instance %s is not a kite broker", instanceID)
	}
	return kb, nil
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config:  cfg,
		Logger:  logger,
		Brokers: broker.NewRegistry(),
	}

	rootCmd := &cobra.Command{
		Use:   "terminal",
		Short: "Options terminal core - multi-broker position risk and quick orders",
		Long: `The options terminal core tracks per-instrument position legs across
broker instances, resolves option contracts from live chains, evaluates
target / stop-loss / trailing-stop rules on a fixed cadence, and executes
quick orders across all eligible instances.

Use 'terminal help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/options-terminal)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	app.initBrokers()

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newAuthCmd(app))
	rootCmd.AddCommand(newServeCmd(app))
	rootCmd.AddCommand(newRiskCmd(app))
	rootCmd.AddCommand(newOrderCmd(app))
	rootCmd.AddCommand(newFillCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{
					"version":    Version,
					"build_date": BuildDate,
				})
			} else {
				output.Printf("Options Terminal v%s\n", Version)
				output.Dim("Build date: %s", BuildDate)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			return output.JSON(app.Config)
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("config")
			path, err := config.WriteTemplate(dir)
			if err != nil {
				return err
			}
			output := NewOutput(cmd)
			output.Success("Wrote %s", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}
