// Package screener provides the DITM call filter pipeline and the
// conservatism scoring used to rank qualifying contracts.
package screener

import (
	"math"
	"sort"

	"ditm-screener/internal/models"
	"ditm-screener/internal/pricing"
)

// DefaultIV is assumed when the source reports a missing or zero implied
// volatility.
const DefaultIV = 0.30

// Screener filters raw option-chain rows into scored candidates. It is a
// pure function of its inputs and safe to invoke concurrently per ticker.
type Screener struct {
	riskFreeRate float64
	weights      ScoreWeights
}

// New creates a screener with the given risk-free rate and default weights.
func New(riskFreeRate float64) *Screener {
	return &Screener{
		riskFreeRate: riskFreeRate,
		weights:      DefaultWeights(),
	}
}

// NewWithWeights creates a screener with custom score weights.
func NewWithWeights(riskFreeRate float64, weights ScoreWeights) *Screener {
	return &Screener{
		riskFreeRate: riskFreeRate,
		weights:      weights,
	}
}

// Screen runs every contract in the chain through the filter pipeline and
// returns the survivors scored and sorted ascending by score (index 0 is
// the most conservative pick). An empty result means no qualifying
// contracts, which is a valid outcome, not an error.
func (s *Screener) Screen(chain models.OptionChain, params models.FilterParams) []models.Candidate {
	var candidates []models.Candidate

	for _, q := range chain.Quotes {
		c, ok := s.evaluate(chain.Ticker, chain.UnderlyingPrice, q, params)
		if !ok {
			continue
		}
		candidates = append(candidates, c)
	}

	for i := range candidates {
		candidates[i].Score = s.weights.Score(candidates[i], params)
	}

	// Stable: equal scores keep input order.
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score < candidates[j].Score
	})

	return candidates
}

// evaluate applies the filter pipeline to a single contract. The boolean
// result is false when any threshold rejects it.
func (s *Screener) evaluate(ticker string, stockPrice float64, q models.OptionQuote, params models.FilterParams) (models.Candidate, bool) {
	// No tradable market or illiquid.
	if q.Bid <= 0 || q.Ask <= 0 {
		return models.Candidate{}, false
	}
	if q.OpenInterest < params.MinOI {
		return models.Candidate{}, false
	}

	if q.DaysToExpiration < params.MinDTE {
		return models.Candidate{}, false
	}
	if params.MaxDTE > 0 && q.DaysToExpiration > params.MaxDTE {
		return models.Candidate{}, false
	}

	mid := (q.Bid + q.Ask) / 2.0
	spreadPct := (q.Ask - q.Bid) / mid
	if spreadPct > params.MaxSpreadPct {
		return models.Candidate{}, false
	}

	intrinsic := math.Max(stockPrice-q.Strike, 0)
	if intrinsic == 0 {
		return models.Candidate{}, false
	}
	intrinsicPct := intrinsic / mid
	if intrinsicPct < params.MinIntrinsicPct {
		return models.Candidate{}, false
	}

	sigma := NormalizeIV(q.ImpliedVol)
	if sigma > params.MaxIV {
		return models.Candidate{}, false
	}

	t := float64(q.DaysToExpiration) / 365.0
	delta := q.Delta
	if math.IsNaN(delta) || math.IsInf(delta, 0) || delta == 0 {
		delta = pricing.CallDelta(stockPrice, q.Strike, t, s.riskFreeRate, sigma)
	}
	if delta < params.MinDelta || delta > params.MaxDelta {
		return models.Candidate{}, false
	}

	// Extrinsic measured against the realistic buy price.
	extrinsic := q.Ask - intrinsic
	extrinsicPct := extrinsic / mid
	if params.MaxExtrinsicPct > 0 && extrinsicPct > params.MaxExtrinsicPct {
		return models.Candidate{}, false
	}

	// Immediate-loss cap: giving up extrinsic plus the spread on entry must
	// stay under a DTE-scaled fraction of the position.
	if params.MaxImmediateLossPct > 0 {
		if extrinsicPct+spreadPct > MaxLossForDTE(q.DaysToExpiration, params.MaxImmediateLossPct) {
			return models.Candidate{}, false
		}
	}

	// Cost to control one delta-adjusted share; 0 when delta is exactly 0.
	costPerShare := 0.0
	if sharesEquiv := delta * 100; sharesEquiv > 0 {
		costPerShare = mid / sharesEquiv
	}

	return models.Candidate{
		Ticker:       ticker,
		StockPrice:   stockPrice,
		Strike:       q.Strike,
		Expiration:   q.Expiration,
		DTE:          q.DaysToExpiration,
		Bid:          q.Bid,
		Ask:          q.Ask,
		Mid:          mid,
		Delta:        delta,
		IV:           sigma,
		Intrinsic:    intrinsic,
		IntrinsicPct: intrinsicPct,
		Extrinsic:    extrinsic,
		ExtrinsicPct: extrinsicPct,
		SpreadPct:    spreadPct,
		OpenInterest: q.OpenInterest,
		CostPerShare: costPerShare,
	}, true
}

// NormalizeIV normalizes a reported implied volatility. Values above 1 are
// treated as percentages; missing, NaN or zero values default to DefaultIV.
func NormalizeIV(iv float64) float64 {
	if iv > 1 {
		iv = iv / 100.0
	}
	if math.IsNaN(iv) || iv == 0 {
		iv = DefaultIV
	}
	return iv
}

// MaxLossForDTE returns the DTE-scaled immediate-loss cap: a 5% base plus
// 5% per year of remaining life, bounded by the configured ceiling.
func MaxLossForDTE(dte int, ceiling float64) float64 {
	limit := 0.05 + (float64(dte)/365.0)*0.05
	if limit > ceiling {
		limit = ceiling
	}
	return limit
}
