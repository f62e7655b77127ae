// Package analytics computes portfolio risk metrics over recommendation
// performance history.
package analytics

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"

	"ditm-screener/internal/models"
)

// RiskMetrics is the aggregate risk report for a set of positions. Every
// numeric field is finite: degenerate inputs produce zeros, not NaN or
// infinity. ProfitFactor is nil when no losing positions exist to divide
// by.
type RiskMetrics struct {
	TotalPositions  int `json:"total_positions"`
	OpenPositions   int `json:"open_positions"`
	ClosedPositions int `json:"closed_positions"`
	Winners         int `json:"winners"`
	Losers          int `json:"losers"`

	TotalCost  float64 `json:"total_cost"`
	TotalValue float64 `json:"total_value"`
	TotalPnl   float64 `json:"total_pnl"`

	AvgPnlPct    float64 `json:"avg_pnl_pct"`
	MedianPnlPct float64 `json:"median_pnl_pct"`
	StdPnlPct    float64 `json:"std_pnl_pct"`
	BestPnlPct   float64 `json:"best_pnl_pct"`
	WorstPnlPct  float64 `json:"worst_pnl_pct"`

	WinRate       float64  `json:"win_rate"`
	AvgWinPct     float64  `json:"avg_win_pct"`
	AvgLossPct    float64  `json:"avg_loss_pct"`
	AvgWinAmt     float64  `json:"avg_win_amt"`
	AvgLossAmt    float64  `json:"avg_loss_amt"`
	MaxSingleLoss float64  `json:"max_single_loss"`
	ProfitFactor  *float64 `json:"profit_factor"`
	Expectancy    float64  `json:"expectancy"`

	MaxDrawdownPct      float64 `json:"max_drawdown_pct"`
	SharpeRatio         float64 `json:"sharpe_ratio"`
	SortinoRatio        float64 `json:"sortino_ratio"`
	CalmarRatio         float64 `json:"calmar_ratio"`
	AvgDaysHeld         float64 `json:"avg_days_held"`
	AnnualizedReturnPct float64 `json:"annualized_return_pct"`

	// CurrentStreak is positive for a run of winners, negative for losers.
	CurrentStreak int `json:"current_streak"`
	MaxWinStreak  int `json:"max_win_streak"`
	MaxLossStreak int `json:"max_loss_streak"`
}

// Compute derives risk metrics from performance rows. An empty input
// yields the zero report. riskFreeRate is the annual risk-free rate as a
// fraction (0.04 = 4%); returns are carried in percent, so it is scaled
// by 100 before entering the excess-return numerators.
func Compute(rows []models.PerformanceRow, riskFreeRate float64) RiskMetrics {
	var m RiskMetrics
	if len(rows) == 0 {
		return m
	}

	// Streaks and drawdown need chronological order.
	ordered := make([]models.PerformanceRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].RecDate.Before(ordered[j].RecDate)
	})

	var returns, winsPct, lossesPct, winsAmt, lossesAmt []float64
	var daysHeld []float64
	for _, r := range ordered {
		m.TotalPositions++
		if r.Status == string(models.StatusOpen) {
			m.OpenPositions++
		} else {
			m.ClosedPositions++
		}
		m.TotalCost += r.TotalCost
		m.TotalValue += r.CurrentValue
		m.TotalPnl += r.Pnl

		returns = append(returns, r.PnlPct)
		daysHeld = append(daysHeld, r.DaysHeld)
		if r.Pnl > 0 {
			winsPct = append(winsPct, r.PnlPct)
			winsAmt = append(winsAmt, r.Pnl)
		} else if r.Pnl < 0 {
			lossesPct = append(lossesPct, r.PnlPct)
			lossesAmt = append(lossesAmt, r.Pnl)
		}
	}

	m.AvgPnlPct, _ = stats.Mean(returns)
	m.MedianPnlPct, _ = stats.Median(returns)
	m.BestPnlPct, _ = stats.Max(returns)
	m.WorstPnlPct, _ = stats.Min(returns)
	if len(returns) > 1 {
		m.StdPnlPct, _ = stats.StandardDeviationSample(returns)
	}
	m.AvgDaysHeld, _ = stats.Mean(daysHeld)

	m.Winners = len(winsPct)
	m.Losers = len(lossesPct)
	if len(lossesAmt) > 0 {
		m.MaxSingleLoss, _ = stats.Min(lossesAmt)
	}

	m.WinRate = float64(len(winsPct)) / float64(len(returns))
	if len(winsPct) > 0 {
		m.AvgWinPct, _ = stats.Mean(winsPct)
		m.AvgWinAmt, _ = stats.Mean(winsAmt)
	}
	if len(lossesPct) > 0 {
		m.AvgLossPct, _ = stats.Mean(lossesPct)
		m.AvgLossAmt, _ = stats.Mean(lossesAmt)
	}

	if len(lossesAmt) > 0 {
		grossWin := 0.0
		if len(winsAmt) > 0 {
			grossWin, _ = stats.Sum(winsAmt)
		}
		grossLoss, _ := stats.Sum(lossesAmt)
		pf := grossWin / -grossLoss
		m.ProfitFactor = &pf
	}

	// Expectancy per position, on percentage returns.
	m.Expectancy = m.WinRate*m.AvgWinPct + (1-m.WinRate)*m.AvgLossPct

	m.MaxDrawdownPct = maxDrawdown(ordered)

	// Annualize off the average holding period. With no holding history
	// the ratios stay at their zero sentinels.
	if m.AvgDaysHeld > 0 {
		annFactor := math.Sqrt(365 / m.AvgDaysHeld)
		riskFreePct := riskFreeRate * 100
		m.AnnualizedReturnPct = m.AvgPnlPct * 365 / m.AvgDaysHeld
		if m.StdPnlPct > 0 {
			m.SharpeRatio = (m.AnnualizedReturnPct - riskFreePct) / (m.StdPnlPct * annFactor)
		}
		if dd := downsideDeviation(returns); dd > 0 {
			m.SortinoRatio = (m.AnnualizedReturnPct - riskFreePct) / (dd * annFactor)
		}
		if m.MaxDrawdownPct > 0 {
			m.CalmarRatio = m.AnnualizedReturnPct / m.MaxDrawdownPct
		}
	}

	m.CurrentStreak, m.MaxWinStreak, m.MaxLossStreak = streaks(ordered)

	m.sanitize()
	return m
}

// maxDrawdown walks the cumulative equity curve implied by per-position
// percentage returns and returns the deepest peak-to-trough decline as a
// positive percentage.
func maxDrawdown(rows []models.PerformanceRow) float64 {
	equity := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range rows {
		equity *= 1 + r.PnlPct/100
		if equity > peak {
			peak = equity
		}
		if peak > 0 {
			dd := (peak - equity) / peak
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD * 100
}

// downsideDeviation is the sample standard deviation of the negative
// returns. Fewer than two losing observations carry no dispersion and
// yield 0.
func downsideDeviation(returns []float64) float64 {
	var downside []float64
	for _, r := range returns {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	if len(downside) < 2 {
		return 0
	}
	sd, _ := stats.StandardDeviationSample(downside)
	return sd
}

// streaks scans the chronological win/loss sequence once. Flat positions
// break any running streak.
func streaks(rows []models.PerformanceRow) (current, maxWin, maxLoss int) {
	for _, r := range rows {
		switch {
		case r.Pnl > 0:
			if current > 0 {
				current++
			} else {
				current = 1
			}
			if current > maxWin {
				maxWin = current
			}
		case r.Pnl < 0:
			if current < 0 {
				current--
			} else {
				current = -1
			}
			if -current > maxLoss {
				maxLoss = -current
			}
		default:
			current = 0
		}
	}
	return current, maxWin, maxLoss
}

// sanitize replaces any non-finite value with zero so downstream JSON
// encoding never sees NaN or infinity.
func (m *RiskMetrics) sanitize() {
	fields := []*float64{
		&m.TotalCost, &m.TotalValue, &m.TotalPnl,
		&m.AvgPnlPct, &m.MedianPnlPct, &m.StdPnlPct, &m.BestPnlPct, &m.WorstPnlPct,
		&m.WinRate, &m.AvgWinPct, &m.AvgLossPct, &m.AvgWinAmt, &m.AvgLossAmt, &m.MaxSingleLoss,
		&m.Expectancy, &m.MaxDrawdownPct, &m.SharpeRatio, &m.SortinoRatio,
		&m.CalmarRatio, &m.AvgDaysHeld, &m.AnnualizedReturnPct,
	}
	for _, f := range fields {
		if math.IsNaN(*f) || math.IsInf(*f, 0) {
			*f = 0
		}
	}
	if m.ProfitFactor != nil && (math.IsNaN(*m.ProfitFactor) || math.IsInf(*m.ProfitFactor, 0)) {
		m.ProfitFactor = nil
	}
}
