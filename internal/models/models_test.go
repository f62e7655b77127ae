package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestScanID(t *testing.T) {
	scanDate := time.Date(2026, 8, 1, 14, 30, 5, 0, time.UTC)
	assert.Equal(t, "scan_20260801143005", ScanID(scanDate))
	// Second resolution: sub-second re-runs share the id.
	assert.Equal(t, ScanID(scanDate), ScanID(scanDate.Add(500*time.Millisecond)))
}

func TestRecommendationID(t *testing.T) {
	expiration := time.Date(2026, 12, 18, 0, 0, 0, 0, time.UTC)
	id := RecommendationID("scan_20260801143005", "XYZ", 80, expiration)
	assert.Equal(t, "scan_20260801143005_XYZ_80_2026-12-18", id)

	id = RecommendationID("scan_20260801143005", "XYZ", 82.5, expiration)
	assert.Equal(t, "scan_20260801143005_XYZ_82.5_2026-12-18", id)
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusOpen.Terminal())
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusExpired.Terminal())
}

func TestFilterParamsValidate(t *testing.T) {
	valid := FilterParams{
		MinDelta:        0.80,
		MaxDelta:        0.95,
		MinIntrinsicPct: 0.85,
		MinDTE:          90,
		MaxIV:           0.30,
		MaxSpreadPct:    0.02,
		MinOI:           500,
	}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name   string
		mutate func(*FilterParams)
	}{
		{"delta range inverted", func(p *FilterParams) { p.MinDelta = 0.96 }},
		{"delta above one", func(p *FilterParams) { p.MaxDelta = 1.5 }},
		{"negative intrinsic", func(p *FilterParams) { p.MinIntrinsicPct = -0.1 }},
		{"zero max iv", func(p *FilterParams) { p.MaxIV = 0 }},
		{"zero max spread", func(p *FilterParams) { p.MaxSpreadPct = 0 }},
		{"negative min dte", func(p *FilterParams) { p.MinDTE = -1 }},
		{"max dte below min", func(p *FilterParams) { p.MaxDTE = 30 }},
		{"negative min oi", func(p *FilterParams) { p.MinOI = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := valid
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}
