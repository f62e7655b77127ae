package cli

import (
	"fmt"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"ditm-screener/internal/models"
)

func newScanCmd(app *App) *cobra.Command {
	var preset string
	var capital float64

	cmd := &cobra.Command{
		Use:   "scan [tickers...]",
		Short: "Screen option chains for deep-in-the-money calls",
		Long: `Fetches the call chain for each ticker, filters for deep-in-the-money
contracts, scores the survivors and records a sized recommendation for
the best contract per ticker. With no tickers, scans the configured
list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if capital > 0 {
				app.Config.Scan.TargetCapital = capital
			}

			result, err := app.Engine.Run(cmd.Context(), args, preset)
			if err != nil {
				return err
			}

			if output.IsJSON() {
				return output.JSON(map[string]interface{}{
					"scan_id":         result.Scan.ScanID,
					"candidates":      result.Candidates,
					"recommendations": result.Recommendations,
					"skipped":         result.Skipped,
					"failed":          result.Failed,
				})
			}

			output.Bold("Scan %s", result.Scan.ScanID)
			for ticker, reason := range result.Skipped {
				output.Dim("  skipped %s: %s", ticker, reason)
			}
			for ticker, reason := range result.Failed {
				output.Warning("  failed %s: %s", ticker, reason)
			}

			if len(result.Candidates) == 0 {
				output.Println("No qualifying candidates.")
				return nil
			}

			output.Printf("\n%d candidates:\n", len(result.Candidates))
			renderCandidates(output, result.Candidates)

			if len(result.Recommendations) == 0 {
				output.Println("\nNo recommendations (capital slice too small or cost near stock price).")
				return nil
			}

			output.Printf("\n%d recommendations:\n", len(result.Recommendations))
			renderRecommendations(output, result.Recommendations)
			return nil
		},
	}

	cmd.Flags().StringVar(&preset, "preset", "", "screen with a named preset instead of the configured thresholds")
	cmd.Flags().Float64Var(&capital, "capital", 0, "override target capital for this scan")
	return cmd
}

func renderCandidates(output *Output, candidates []models.Candidate) {
	table := tablewriter.NewWriter(output.Writer())
	table.SetHeader([]string{"Ticker", "Strike", "Exp", "DTE", "Mid", "Delta", "Intr%", "IV", "Sprd%", "OI", "Score", "Presets"})
	table.SetBorder(false)
	for _, c := range candidates {
		presets := ""
		if len(c.MatchedPresets) > 0 {
			presets = fmt.Sprintf("%v", c.MatchedPresets)
		}
		table.Append([]string{
			c.Ticker,
			fmt.Sprintf("%.2f", c.Strike),
			c.Expiration.Format("2006-01-02"),
			fmt.Sprintf("%d", c.DTE),
			fmt.Sprintf("%.2f", c.Mid),
			fmt.Sprintf("%.3f", c.Delta),
			fmt.Sprintf("%.1f", c.IntrinsicPct*100),
			fmt.Sprintf("%.1f", c.IV*100),
			fmt.Sprintf("%.2f", c.SpreadPct*100),
			fmt.Sprintf("%d", c.OpenInterest),
			fmt.Sprintf("%.4f", c.Score),
			presets,
		})
	}
	table.Render()
}

func renderRecommendations(output *Output, recs []models.Recommendation) {
	table := tablewriter.NewWriter(output.Writer())
	table.SetHeader([]string{"Ticker", "Strike", "Exp", "Contracts", "Mid", "Cost", "EqShares", "$/Share", "Score"})
	table.SetBorder(false)
	for _, r := range recs {
		table.Append([]string{
			r.Ticker,
			fmt.Sprintf("%.2f", r.Strike),
			r.Expiration.Format("2006-01-02"),
			fmt.Sprintf("%d", r.Contracts),
			fmt.Sprintf("%.2f", r.PremiumMid),
			fmt.Sprintf("%.2f", r.TotalCost),
			fmt.Sprintf("%.0f", r.EquivShares),
			fmt.Sprintf("%.2f", r.CostPerShare),
			fmt.Sprintf("%.4f", r.Score),
		})
	}
	table.Render()
}
