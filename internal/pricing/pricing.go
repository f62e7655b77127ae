// Package pricing provides closed-form option pricing helpers.
package pricing

import "math"

// CallDelta returns the Black-Scholes delta for a call option.
// At or past expiry (T <= 0) the contract is either fully exercised or
// worthless, so delta collapses to 1 or 0.
//
// Used only as a fallback when the market-data source does not supply a
// finite delta; the source's own value is authoritative when present.
func CallDelta(s, k, t, r, sigma float64) float64 {
	if t <= 0 {
		if s > k {
			return 1.0
		}
		return 0.0
	}
	d1 := (math.Log(s/k) + (r+0.5*sigma*sigma)*t) / (sigma * math.Sqrt(t))
	return normCDF(d1)
}

// normCDF is the standard normal cumulative distribution function.
func normCDF(x float64) float64 {
	return 0.5 * (1 + math.Erf(x/math.Sqrt2))
}
