package analytics

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ditm-screener/internal/models"
)

func row(day int, cost, pnl float64, status models.RecommendationStatus) models.PerformanceRow {
	pnlPct := 0.0
	if cost > 0 {
		pnlPct = pnl / cost * 100
	}
	return models.PerformanceRow{
		RecDate:      time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
		Ticker:       "XYZ",
		Status:       string(status),
		DaysHeld:     10,
		TotalCost:    cost,
		CurrentValue: cost + pnl,
		Pnl:          pnl,
		PnlPct:       pnlPct,
	}
}

func TestComputeEmpty(t *testing.T) {
	m := Compute(nil, 0.04)
	assert.Equal(t, RiskMetrics{}, m)
}

func TestComputeSinglePosition(t *testing.T) {
	m := Compute([]models.PerformanceRow{row(0, 1950, 550, models.StatusOpen)}, 0.04)

	assert.Equal(t, 1, m.TotalPositions)
	assert.Equal(t, 1, m.OpenPositions)
	assert.Equal(t, 1, m.Winners)
	assert.InDelta(t, 28.21, m.AvgPnlPct, 0.01)
	assert.Equal(t, 1.0, m.WinRate)
	// One observation has no dispersion, so the volatility-normalized
	// ratios stay at their zero sentinels.
	assert.Zero(t, m.StdPnlPct)
	assert.Zero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
	// No losses: profit factor is undefined, not infinite.
	assert.Nil(t, m.ProfitFactor)
}

func TestComputeMixedPortfolio(t *testing.T) {
	rows := []models.PerformanceRow{
		row(0, 1000, 200, models.StatusClosed),  // +20%
		row(1, 1000, -100, models.StatusClosed), // -10%
		row(2, 1000, 300, models.StatusClosed),  // +30%
		row(3, 1000, -200, models.StatusOpen),   // -20%
	}
	m := Compute(rows, 0.04)

	assert.Equal(t, 4, m.TotalPositions)
	assert.Equal(t, 1, m.OpenPositions)
	assert.Equal(t, 3, m.ClosedPositions)
	assert.Equal(t, 2, m.Winners)
	assert.Equal(t, 2, m.Losers)
	assert.InDelta(t, 200.0, m.TotalPnl, 1e-9)
	assert.InDelta(t, 0.5, m.WinRate, 1e-9)
	assert.InDelta(t, 25.0, m.AvgWinPct, 1e-9)
	assert.InDelta(t, -15.0, m.AvgLossPct, 1e-9)
	assert.InDelta(t, -200.0, m.MaxSingleLoss, 1e-9)

	require.NotNil(t, m.ProfitFactor)
	assert.InDelta(t, 500.0/300.0, *m.ProfitFactor, 1e-9)

	// Expectancy = winRate*avgWin + (1-winRate)*avgLoss
	assert.InDelta(t, 0.5*25.0+0.5*(-15.0), m.Expectancy, 1e-9)

	assert.Greater(t, m.MaxDrawdownPct, 0.0)

	// Excess return over a 4% annual risk-free rate, annualized off the
	// 10-day average holding period: mean 5% scales to 182.5%, the
	// sample std sqrt(1700/3) by sqrt(36.5).
	annFactor := math.Sqrt(36.5)
	excess := 5.0*36.5 - 4.0
	assert.InDelta(t, excess/(math.Sqrt(1700.0/3.0)*annFactor), m.SharpeRatio, 1e-9)
	// Sortino divides by the sample std of the two losing returns only.
	assert.InDelta(t, excess/(math.Sqrt(50.0)*annFactor), m.SortinoRatio, 1e-9)
}

func TestComputeSortinoNeedsTwoLosses(t *testing.T) {
	rows := []models.PerformanceRow{
		row(0, 1000, 300, models.StatusClosed),
		row(1, 1000, -100, models.StatusClosed),
	}
	m := Compute(rows, 0.04)

	assert.NotZero(t, m.SharpeRatio)
	assert.Zero(t, m.SortinoRatio)
}

func TestComputeAllLosses(t *testing.T) {
	rows := []models.PerformanceRow{
		row(0, 1000, -100, models.StatusClosed),
		row(1, 1000, -1000, models.StatusExpired),
	}
	m := Compute(rows, 0.04)

	assert.Equal(t, 0, m.Winners)
	assert.Equal(t, 2, m.Losers)
	assert.Zero(t, m.WinRate)
	assert.Zero(t, m.AvgWinPct)
	assert.InDelta(t, -1000.0, m.MaxSingleLoss, 1e-9)
	require.NotNil(t, m.ProfitFactor)
	assert.Zero(t, *m.ProfitFactor)
	assert.Negative(t, m.Expectancy)
	assert.Greater(t, m.MaxDrawdownPct, 0.0)
}

func TestStreaks(t *testing.T) {
	rows := []models.PerformanceRow{
		row(0, 1000, 100, models.StatusClosed),
		row(1, 1000, 100, models.StatusClosed),
		row(2, 1000, 100, models.StatusClosed),
		row(3, 1000, -100, models.StatusClosed),
		row(4, 1000, -100, models.StatusClosed),
		row(5, 1000, 100, models.StatusOpen),
	}
	m := Compute(rows, 0.04)

	assert.Equal(t, 3, m.MaxWinStreak)
	assert.Equal(t, 2, m.MaxLossStreak)
	assert.Equal(t, 1, m.CurrentStreak)
}

func TestStreaksFlatBreaks(t *testing.T) {
	rows := []models.PerformanceRow{
		row(0, 1000, 100, models.StatusClosed),
		row(1, 1000, 0, models.StatusClosed),
		row(2, 1000, 100, models.StatusClosed),
	}
	m := Compute(rows, 0.04)
	assert.Equal(t, 1, m.MaxWinStreak)
	assert.Equal(t, 1, m.CurrentStreak)
}

func TestComputeNeverProducesNonFinite(t *testing.T) {
	cases := [][]models.PerformanceRow{
		nil,
		{row(0, 0, 0, models.StatusOpen)},
		{row(0, 1000, 0, models.StatusOpen), row(1, 1000, 0, models.StatusOpen)},
		{row(0, 1000, 1000, models.StatusClosed)},
		{row(0, 1000, -1000, models.StatusExpired)},
	}
	for _, rows := range cases {
		m := Compute(rows, 0.04)
		for _, v := range []float64{
			m.TotalCost, m.TotalValue, m.TotalPnl, m.AvgPnlPct, m.MedianPnlPct,
			m.StdPnlPct, m.BestPnlPct, m.WorstPnlPct, m.WinRate, m.AvgWinPct,
			m.AvgLossPct, m.AvgWinAmt, m.AvgLossAmt, m.MaxSingleLoss,
			m.Expectancy, m.MaxDrawdownPct, m.SharpeRatio, m.SortinoRatio,
			m.CalmarRatio, m.AvgDaysHeld, m.AnnualizedReturnPct,
		} {
			assert.False(t, math.IsNaN(v) || math.IsInf(v, 0), "non-finite metric for %+v", rows)
		}
		if m.ProfitFactor != nil {
			assert.False(t, math.IsNaN(*m.ProfitFactor) || math.IsInf(*m.ProfitFactor, 0))
		}
	}
}
