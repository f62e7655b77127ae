package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ditm-screener/internal/models"
	"ditm-screener/internal/tracker"
	"ditm-screener/internal/web"
)

func newTickersCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickers",
		Short: "Manage the scan watchlist",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List watchlist tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			symbols, err := app.Store.GetWatchlist(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(symbols)
			}
			if len(symbols) == 0 {
				output.Println("Watchlist is empty. Scans use the configured ticker list.")
				return nil
			}
			for _, s := range symbols {
				output.Println(s)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add <symbol...>",
		Short: "Add tickers to the watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			for _, symbol := range args {
				symbol = strings.ToUpper(strings.TrimSpace(symbol))
				if symbol == "" {
					continue
				}
				if err := app.Store.AddToWatchlist(cmd.Context(), symbol); err != nil {
					return err
				}
				output.Success("Added %s", symbol)
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "remove <symbol...>",
		Short: "Remove tickers from the watchlist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			for _, symbol := range args {
				symbol = strings.ToUpper(strings.TrimSpace(symbol))
				if err := app.Store.RemoveFromWatchlist(cmd.Context(), symbol); err != nil {
					return err
				}
				output.Success("Removed %s", symbol)
			}
			return nil
		},
	})

	return cmd
}

func newPresetsCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "presets",
		Short: "Inspect filter presets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List loaded presets",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			names := app.Presets.Names()
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"default": app.Presets.Default(),
					"presets": names,
				})
			}
			for _, name := range names {
				if name == app.Presets.Default() {
					output.Bold("%s (default)", name)
				} else {
					output.Println(name)
				}
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show <name>",
		Short: "Show a preset's thresholds",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			p, err := app.Presets.Get(args[0])
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(p)
			}
			renderPreset(output, args[0], p)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "performance",
		Short: "Aggregate recommendation performance by preset",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			stats, err := app.Store.PresetPerformance(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(stats)
			}
			renderPresetStats(output, stats)
			return nil
		},
	})

	return cmd
}

func renderPreset(output *Output, name string, p models.FilterParams) {
	output.Bold("%s", name)
	output.Printf("  delta            %.2f - %.2f\n", p.MinDelta, p.MaxDelta)
	output.Printf("  intrinsic %%      >= %.2f\n", p.MinIntrinsicPct)
	output.Printf("  extrinsic %%      <= %.2f\n", p.MaxExtrinsicPct)
	if p.MaxDTE > 0 {
		output.Printf("  dte              %d - %d\n", p.MinDTE, p.MaxDTE)
	} else {
		output.Printf("  dte              >= %d\n", p.MinDTE)
	}
	output.Printf("  iv               <= %.2f\n", p.MaxIV)
	output.Printf("  spread %%         <= %.3f\n", p.MaxSpreadPct)
	output.Printf("  open interest    >= %d\n", p.MinOI)
}

func renderPresetStats(output *Output, stats []tracker.PresetStats) {
	table := tablewriter.NewWriter(output.Writer())
	table.SetHeader([]string{"Preset", "Positions", "Avg P&L%", "Win Rate"})
	table.SetBorder(false)
	for _, ps := range stats {
		name := ps.Preset
		if name == "" {
			name = "(none)"
		}
		table.Append([]string{
			name,
			fmt.Sprintf("%d", ps.Positions),
			fmt.Sprintf("%.2f", ps.AvgPnlPct),
			fmt.Sprintf("%.1f%%", ps.WinRate*100),
		})
	}
	table.Render()
}

func newServeCmd(app *App) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dashboard API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if listen != "" {
				app.Config.Web.Listen = listen
			}

			server := web.NewServer(app.Config, app.Store, app.Engine, app.Presets, app.Logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- server.ListenAndServe() }()

			output.Info("Dashboard API listening on %s", app.Config.Web.Listen)
			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "listen address (default from config)")
	return cmd
}
