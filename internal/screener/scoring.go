package screener

import "ditm-screener/internal/models"

// ScoreWeights defines the weights of the conservatism score components.
// Lower score = more conservative = better. Weights must sum to 1.0.
type ScoreWeights struct {
	Delta     float64
	Intrinsic float64
	IV        float64
	Spread    float64
}

// DefaultWeights returns the default conservatism score weights.
func DefaultWeights() ScoreWeights {
	return ScoreWeights{
		Delta:     0.40, // prefer slightly lower delta
		Intrinsic: 0.30, // prefer higher intrinsic %
		IV:        0.20, // penalize high IV
		Spread:    0.10, // penalize wide spreads
	}
}

// Sum returns the total of the weights; a valid set sums to 1.0.
func (w ScoreWeights) Sum() float64 {
	return w.Delta + w.Intrinsic + w.IV + w.Spread
}

// Score computes the conservatism score for a candidate. It is a strict
// function of (delta, intrinsicPct, iv, spreadPct) and the active
// thresholds; identical inputs always yield identical scores.
func (w ScoreWeights) Score(c models.Candidate, params models.FilterParams) float64 {
	return w.Delta*(1-c.Delta) +
		w.Intrinsic*(1-c.IntrinsicPct) +
		w.IV*(c.IV/params.MaxIV) +
		w.Spread*(c.SpreadPct/params.MaxSpreadPct)
}
