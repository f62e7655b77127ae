package screener

import (
	"math"
	"testing"
	"time"

	"ditm-screener/internal/models"
)

func testParams() models.FilterParams {
	return models.FilterParams{
		MinDelta:        0.80,
		MaxDelta:        0.95,
		MinIntrinsicPct: 0.85,
		MinDTE:          90,
		MaxIV:           0.30,
		MaxSpreadPct:    0.02,
		MinOI:           500,
	}
}

func deepITMQuote() models.OptionQuote {
	return models.OptionQuote{
		Strike:           80,
		Bid:              19.40,
		Ask:              19.60,
		ImpliedVol:       0.20,
		Delta:            0.90,
		OpenInterest:     1000,
		Expiration:       time.Now().AddDate(0, 4, 0),
		DaysToExpiration: 120,
	}
}

func TestScreenAcceptsDeepITMCall(t *testing.T) {
	s := New(0.04)
	chain := models.OptionChain{
		Ticker:          "XYZ",
		UnderlyingPrice: 100,
		Quotes:          []models.OptionQuote{deepITMQuote()},
	}

	candidates := s.Screen(chain, testParams())
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}

	c := candidates[0]
	if c.Mid != 19.50 {
		t.Errorf("mid = %v, want 19.50", c.Mid)
	}
	if c.Intrinsic != 20 {
		t.Errorf("intrinsic = %v, want 20", c.Intrinsic)
	}
	if c.IntrinsicPct <= 0.85 {
		t.Errorf("intrinsicPct = %v, want > 0.85", c.IntrinsicPct)
	}
	if c.SpreadPct >= 0.02 {
		t.Errorf("spreadPct = %v, want < 0.02", c.SpreadPct)
	}
	if c.Delta != 0.90 {
		t.Errorf("delta = %v, want source delta 0.90", c.Delta)
	}
}

func TestScreenRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.OptionQuote)
	}{
		{"low open interest", func(q *models.OptionQuote) { q.OpenInterest = 100 }},
		{"zero bid", func(q *models.OptionQuote) { q.Bid = 0 }},
		{"zero ask", func(q *models.OptionQuote) { q.Ask = 0 }},
		{"too close to expiry", func(q *models.OptionQuote) { q.DaysToExpiration = 30 }},
		{"wide spread", func(q *models.OptionQuote) { q.Bid = 18.50; q.Ask = 19.60 }},
		{"out of the money", func(q *models.OptionQuote) { q.Strike = 120 }},
		{"iv too high", func(q *models.OptionQuote) { q.ImpliedVol = 0.60 }},
		{"delta too low", func(q *models.OptionQuote) { q.Delta = 0.50 }},
		{"delta too high", func(q *models.OptionQuote) { q.Delta = 0.99 }},
	}

	s := New(0.04)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := deepITMQuote()
			tt.mutate(&q)
			chain := models.OptionChain{Ticker: "XYZ", UnderlyingPrice: 100, Quotes: []models.OptionQuote{q}}
			if got := s.Screen(chain, testParams()); len(got) != 0 {
				t.Errorf("got %d candidates, want rejection", len(got))
			}
		})
	}
}

func TestScreenDeltaFallback(t *testing.T) {
	// A quote without a usable delta falls back to the model. Deep ITM
	// with low vol the computed delta clears the 0.80 floor.
	params := testParams()
	params.MaxDelta = 0.99

	q := deepITMQuote()
	q.Delta = math.NaN()
	chain := models.OptionChain{Ticker: "XYZ", UnderlyingPrice: 100, Quotes: []models.OptionQuote{q}}

	candidates := New(0.04).Screen(chain, params)
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Delta < 0.80 || candidates[0].Delta > 1.0 {
		t.Errorf("fallback delta = %v out of range", candidates[0].Delta)
	}

	q.Delta = 0
	chain.Quotes = []models.OptionQuote{q}
	candidates = New(0.04).Screen(chain, params)
	if len(candidates) != 1 {
		t.Fatalf("zero delta should fall back, got %d candidates", len(candidates))
	}
}

func TestScreenMaxDTE(t *testing.T) {
	params := testParams()
	params.MaxDTE = 100

	q := deepITMQuote() // DTE 120
	chain := models.OptionChain{Ticker: "XYZ", UnderlyingPrice: 100, Quotes: []models.OptionQuote{q}}
	if got := New(0.04).Screen(chain, params); len(got) != 0 {
		t.Errorf("DTE 120 should be rejected with max_dte 100")
	}

	params.MaxDTE = 0 // unbounded
	if got := New(0.04).Screen(chain, params); len(got) != 1 {
		t.Errorf("max_dte 0 should not bound DTE")
	}
}

func TestScreenImmediateLossCap(t *testing.T) {
	params := testParams()
	params.MinIntrinsicPct = 0.50
	params.MaxImmediateLossPct = 0.06

	// Ask 21.60 carries 1.60 extrinsic over the 20.00 intrinsic, well
	// past the DTE-scaled cap.
	q := deepITMQuote()
	q.Bid = 21.40
	q.Ask = 21.60
	chain := models.OptionChain{Ticker: "XYZ", UnderlyingPrice: 100, Quotes: []models.OptionQuote{q}}
	if got := New(0.04).Screen(chain, params); len(got) != 0 {
		t.Errorf("high extrinsic should trip the immediate-loss cap")
	}

	params.MaxImmediateLossPct = 0
	if got := New(0.04).Screen(chain, params); len(got) != 1 {
		t.Errorf("zero cap disables the check")
	}
}

func TestScreenSortsByScoreAscending(t *testing.T) {
	s := New(0.04)
	safer := deepITMQuote() // delta 0.90
	riskier := deepITMQuote()
	riskier.Strike = 85
	riskier.Bid = 14.85
	riskier.Ask = 15.00
	riskier.Delta = 0.94
	riskier.ImpliedVol = 0.28

	chain := models.OptionChain{
		Ticker:          "XYZ",
		UnderlyingPrice: 100,
		Quotes:          []models.OptionQuote{riskier, safer},
	}
	candidates := s.Screen(chain, testParams())
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Score > candidates[1].Score {
		t.Errorf("candidates not sorted ascending: %v > %v", candidates[0].Score, candidates[1].Score)
	}
}

func TestNormalizeIV(t *testing.T) {
	tests := []struct {
		name string
		in   float64
		want float64
	}{
		{"fraction passes through", 0.25, 0.25},
		{"percentage scaled down", 25.0, 0.25},
		{"zero defaults", 0, DefaultIV},
		{"nan defaults", math.NaN(), DefaultIV},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeIV(tt.in); got != tt.want {
				t.Errorf("NormalizeIV(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestMaxLossForDTE(t *testing.T) {
	if got := MaxLossForDTE(365, 0.20); math.Abs(got-0.10) > 1e-9 {
		t.Errorf("one year cap = %v, want 0.10", got)
	}
	if got := MaxLossForDTE(365, 0.08); got != 0.08 {
		t.Errorf("ceiling not applied: got %v", got)
	}
	if got := MaxLossForDTE(0, 0.20); math.Abs(got-0.05) > 1e-9 {
		t.Errorf("zero DTE cap = %v, want 0.05", got)
	}
}

func TestDefaultWeightsSum(t *testing.T) {
	if sum := DefaultWeights().Sum(); math.Abs(sum-1.0) > 1e-9 {
		t.Errorf("weights sum to %v, want 1.0", sum)
	}
}
