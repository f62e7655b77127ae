package cli

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ditm-screener/internal/analytics"
	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

func newOpenCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "open",
		Short: "List open recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			recs, err := app.Store.GetOpenRecommendations(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(recs)
			}
			if len(recs) == 0 {
				output.Println("No open recommendations.")
				return nil
			}
			table := tablewriter.NewWriter(output.Writer())
			table.SetHeader([]string{"ID", "Ticker", "Strike", "Exp", "Contracts", "Cost", "Value", "P&L", "P&L%", "Updated"})
			table.SetBorder(false)
			for _, r := range recs {
				updated := "-"
				if !r.LastUpdated.IsZero() {
					updated = r.LastUpdated.Format("2006-01-02 15:04")
				}
				table.Append([]string{
					r.ID,
					r.Ticker,
					fmt.Sprintf("%.2f", r.Strike),
					r.Expiration.Format("2006-01-02"),
					fmt.Sprintf("%d", r.Contracts),
					fmt.Sprintf("%.2f", r.TotalCost),
					fmt.Sprintf("%.2f", r.CurrentValue),
					fmt.Sprintf("%.2f", r.UnrealizedPnl),
					fmt.Sprintf("%.2f", r.UnrealizedPnlPct),
					updated,
				})
			}
			table.Render()
			return nil
		},
	}
}

func newRefreshCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Re-price open recommendations against current market data",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			result, err := app.Engine.RefreshOpen(cmd.Context())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"refreshed": result.Refreshed,
					"expired":   result.Expired,
					"failed":    result.Failed,
				})
			}
			for _, id := range result.Expired {
				output.Warning("expired worthless: %s", id)
			}
			for id, reason := range result.Failed {
				output.Error("failed %s: %s", id, reason)
			}
			for _, r := range result.Refreshed {
				output.Pnl(r.UnrealizedPnl, "%s  value %.2f  P&L %+.2f (%+.2f%%)", r.ID, r.CurrentValue, r.UnrealizedPnl, r.UnrealizedPnlPct)
			}
			output.Printf("\nRefreshed %d, expired %d, failed %d\n", len(result.Refreshed), len(result.Expired), len(result.Failed))
			return nil
		},
	}
}

func newCloseCmd(app *App) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "close <ticker> <strike> <expiration>",
		Short: "Close an open recommendation",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			strike, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return apperrors.NewValidationError("strike", args[1], "expected a number")
			}
			expiration, err := time.Parse("2006-01-02", args[2])
			if err != nil {
				return apperrors.NewValidationError("expiration", args[2], "expected YYYY-MM-DD")
			}
			if err := app.Store.CloseRecommendation(cmd.Context(), args[0], strike, expiration, reason); err != nil {
				return err
			}
			output.Success("Closed %s %.2f %s", args[0], strike, args[2])
			return nil
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "manual close", "reason recorded with the close")
	return cmd
}

func newPerformanceCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "performance",
		Short: "Show the performance summary for all recommendations",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := app.Store.PerformanceSummary(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(rows)
			}
			if len(rows) == 0 {
				output.Println("No recommendations recorded yet.")
				return nil
			}
			renderPerformance(output, rows)
			return nil
		},
	}
}

func renderPerformance(output *Output, rows []models.PerformanceRow) {
	table := tablewriter.NewWriter(output.Writer())
	table.SetHeader([]string{"Date", "Ticker", "Strike", "Exp", "Status", "Days", "Cost", "Value", "P&L", "P&L%", "Preset"})
	table.SetBorder(false)
	for _, r := range rows {
		table.Append([]string{
			r.RecDateStr,
			r.Ticker,
			fmt.Sprintf("%.2f", r.Strike),
			r.Expiration,
			r.Status,
			fmt.Sprintf("%.1f", r.DaysHeld),
			fmt.Sprintf("%.2f", r.TotalCost),
			fmt.Sprintf("%.2f", r.CurrentValue),
			fmt.Sprintf("%.2f", r.Pnl),
			fmt.Sprintf("%.2f", r.PnlPct),
			r.Preset,
		})
	}
	table.Render()
}

func newRiskCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "risk",
		Short: "Show portfolio risk metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := app.Store.PerformanceSummary(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			metrics := analytics.Compute(rows, app.Config.Scan.RiskFreeRate)
			if output.IsJSON() {
				return output.JSON(metrics)
			}
			renderRisk(output, metrics)
			return nil
		},
	}
}

func renderRisk(output *Output, m analytics.RiskMetrics) {
	output.Bold("Positions")
	output.Printf("  total %d  open %d  closed %d  winners %d  losers %d\n",
		m.TotalPositions, m.OpenPositions, m.ClosedPositions, m.Winners, m.Losers)
	output.Printf("  cost %.2f  value %.2f  P&L %+.2f\n\n", m.TotalCost, m.TotalValue, m.TotalPnl)

	output.Bold("Returns")
	output.Printf("  avg %.2f%%  median %.2f%%  std %.2f%%  best %.2f%%  worst %.2f%%\n",
		m.AvgPnlPct, m.MedianPnlPct, m.StdPnlPct, m.BestPnlPct, m.WorstPnlPct)
	output.Printf("  win rate %.1f%%  avg win %.2f%%  avg loss %.2f%%  expectancy %.2f%%\n",
		m.WinRate*100, m.AvgWinPct, m.AvgLossPct, m.Expectancy)
	pf := "n/a"
	if m.ProfitFactor != nil {
		pf = fmt.Sprintf("%.2f", *m.ProfitFactor)
	}
	output.Printf("  profit factor %s  max single loss %.2f\n\n", pf, m.MaxSingleLoss)

	output.Bold("Risk")
	output.Printf("  max drawdown %.2f%%  sharpe %.2f  sortino %.2f  calmar %.2f\n",
		m.MaxDrawdownPct, m.SharpeRatio, m.SortinoRatio, m.CalmarRatio)
	output.Printf("  avg days held %.1f  annualized return %.2f%%\n", m.AvgDaysHeld, m.AnnualizedReturnPct)
	output.Printf("  streak %+d  max win streak %d  max loss streak %d\n",
		m.CurrentStreak, m.MaxWinStreak, m.MaxLossStreak)
}

func newReportCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print a full portfolio report",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := app.Store.PerformanceSummary(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}
			metrics := analytics.Compute(rows, app.Config.Scan.RiskFreeRate)
			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"positions": rows,
					"risk":      metrics,
				})
			}

			output.Bold("=== DITM Portfolio Report (%s) ===\n", time.Now().Format("2006-01-02 15:04"))
			if len(rows) == 0 {
				output.Println("No recommendations recorded yet.")
				return nil
			}

			renderRisk(output, metrics)

			sorted := make([]models.PerformanceRow, len(rows))
			copy(sorted, rows)
			sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].PnlPct > sorted[j].PnlPct })

			output.Println()
			output.Bold("Top performers")
			for i := 0; i < len(sorted) && i < 3; i++ {
				r := sorted[i]
				output.Pnl(r.Pnl, "  %s %.2f %s  %+.2f%%", r.Ticker, r.Strike, r.Expiration, r.PnlPct)
			}
			output.Bold("Worst performers")
			for i := len(sorted) - 1; i >= 0 && i >= len(sorted)-3; i-- {
				r := sorted[i]
				output.Pnl(r.Pnl, "  %s %.2f %s  %+.2f%%", r.Ticker, r.Strike, r.Expiration, r.PnlPct)
			}

			output.Println()
			output.Bold("All positions")
			renderPerformance(output, rows)
			return nil
		},
	}
}

func newExportCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export [file]",
		Short: "Export the performance summary as CSV",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			rows, err := app.Store.PerformanceSummary(cmd.Context(), time.Now().UTC())
			if err != nil {
				return err
			}

			if len(args) == 0 {
				return gocsv.Marshal(rows, output.Writer())
			}

			f, err := os.Create(args[0])
			if err != nil {
				return fmt.Errorf("creating %s: %w", args[0], err)
			}
			defer f.Close()
			if err := gocsv.Marshal(rows, f); err != nil {
				return fmt.Errorf("writing %s: %w", args[0], err)
			}
			output.Success("Exported %d rows to %s", len(rows), args[0])
			return nil
		},
	}
	return cmd
}
