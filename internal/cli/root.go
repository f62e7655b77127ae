package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ditm-screener/internal/config"
	"ditm-screener/internal/engine"
	"ditm-screener/internal/marketdata"
	"ditm-screener/internal/presets"
	"ditm-screener/internal/tracker"
)

// Version information
const Version = "0.1.0"

// App holds the application dependencies.
type App struct {
	Config  *config.Config
	Logger  zerolog.Logger
	Store   tracker.Store
	Presets *presets.Matcher
	Engine  *engine.Engine
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	rootCmd := &cobra.Command{
		Use:   "ditm",
		Short: "Deep-in-the-money call screener",
		Long: `ditm screens option chains for deep-in-the-money calls that behave
like discounted stock: high delta, mostly intrinsic premium, low IV and
tight spreads. Recommendations are tracked in SQLite and re-priced over
time, with portfolio risk metrics computed from the history.

Use 'ditm help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			if cmd.Name() == "version" {
				return nil
			}
			return app.init()
		},
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/ditm-screener)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newScanCmd(app))
	rootCmd.AddCommand(newOpenCmd(app))
	rootCmd.AddCommand(newRefreshCmd(app))
	rootCmd.AddCommand(newCloseCmd(app))
	rootCmd.AddCommand(newPerformanceCmd(app))
	rootCmd.AddCommand(newRiskCmd(app))
	rootCmd.AddCommand(newReportCmd(app))
	rootCmd.AddCommand(newExportCmd(app))
	rootCmd.AddCommand(newTickersCmd(app))
	rootCmd.AddCommand(newPresetsCmd(app))
	rootCmd.AddCommand(newServeCmd(app))

	return rootCmd
}

// init wires the store, presets and engine once per invocation.
func (a *App) init() error {
	if a.Store != nil {
		return nil
	}

	store, err := tracker.NewSQLiteStore(a.Config.Tracker.DBPath)
	if err != nil {
		return err
	}
	a.Store = store

	matcher, err := presets.Load(a.Config.Dir)
	if err != nil {
		return err
	}
	a.Presets = matcher

	data := marketdata.NewClient(a.Config.Data.BaseURL, a.Config.Data.Token, a.Logger)
	a.Engine = engine.New(a.Config, a.Store, data, a.Presets, a.Logger)
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("ditm v%s\n", Version)
			}
		},
	}
}
