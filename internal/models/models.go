// Package models provides domain models for the screening application.
package models

import (
	"fmt"
	"time"
)

// RecommendationStatus represents the lifecycle state of a recommendation.
type RecommendationStatus string

const (
	StatusOpen    RecommendationStatus = "open"
	StatusClosed  RecommendationStatus = "closed"
	StatusExpired RecommendationStatus = "expired"
)

// Terminal reports whether the status permits no further mutation.
func (s RecommendationStatus) Terminal() bool {
	return s == StatusClosed || s == StatusExpired
}

// Quote is a point-in-time quote for an underlying.
type Quote struct {
	Ticker    string
	LastPrice float64
}

// OptionQuote is a single call contract row from the option chain, as
// delivered by the market-data collaborator. It is transient input to the
// screener and is never persisted as-is.
type OptionQuote struct {
	Strike           float64
	Bid              float64
	Ask              float64
	ImpliedVol       float64 // may be NaN, zero, or quoted as a percentage
	Delta            float64 // NaN when the source omits it
	OpenInterest     int64
	Expiration       time.Time
	DaysToExpiration int
}

// OptionChain is the full call chain for one ticker.
type OptionChain struct {
	Ticker          string
	UnderlyingPrice float64
	Quotes          []OptionQuote
}

// FilterParams is the immutable threshold set driving the filter pipeline.
// It is passed explicitly into every screening call; nothing reads ambient
// global thresholds, so concurrent scans may use different sets.
type FilterParams struct {
	MinDelta        float64 `mapstructure:"min_delta" json:"min_delta"`
	MaxDelta        float64 `mapstructure:"max_delta" json:"max_delta"`
	MinIntrinsicPct float64 `mapstructure:"min_intrinsic_pct" json:"min_intrinsic_pct"`
	MaxExtrinsicPct float64 `mapstructure:"max_extrinsic_pct" json:"max_extrinsic_pct"`
	MinDTE          int     `mapstructure:"min_dte" json:"min_dte"`
	MaxDTE          int     `mapstructure:"max_dte" json:"max_dte"` // 0 = unbounded
	MaxIV           float64 `mapstructure:"max_iv" json:"max_iv"`
	MaxSpreadPct    float64 `mapstructure:"max_spread_pct" json:"max_spread_pct"`
	MinOI           int64   `mapstructure:"min_oi" json:"min_oi"`

	// MaxImmediateLossPct caps the combined extrinsic + spread fraction a
	// contract may cost up front. Zero disables the check. The effective
	// cap scales with DTE so longer-dated contracts tolerate more time
	// value.
	MaxImmediateLossPct float64 `mapstructure:"max_immediate_loss_pct" json:"max_immediate_loss_pct,omitempty"`
}

// Validate checks the threshold set for internal consistency.
func (p FilterParams) Validate() error {
	if p.MinDelta < 0 || p.MaxDelta > 1 || p.MinDelta > p.MaxDelta {
		return fmt.Errorf("delta range [%v, %v] invalid", p.MinDelta, p.MaxDelta)
	}
	if p.MinIntrinsicPct < 0 {
		return fmt.Errorf("min_intrinsic_pct must be non-negative")
	}
	if p.MaxIV <= 0 {
		return fmt.Errorf("max_iv must be positive")
	}
	if p.MaxSpreadPct <= 0 {
		return fmt.Errorf("max_spread_pct must be positive")
	}
	if p.MinDTE < 0 {
		return fmt.Errorf("min_dte must be non-negative")
	}
	if p.MaxDTE != 0 && p.MaxDTE < p.MinDTE {
		return fmt.Errorf("max_dte %d below min_dte %d", p.MaxDTE, p.MinDTE)
	}
	if p.MinOI < 0 {
		return fmt.Errorf("min_oi must be non-negative")
	}
	return nil
}

// Candidate is a contract that cleared every filter threshold, annotated
// with the derived metrics the filters computed. Immutable once scored.
type Candidate struct {
	Ticker       string
	StockPrice   float64
	Strike       float64
	Expiration   time.Time
	DTE          int
	Bid          float64
	Ask          float64
	Mid          float64
	Delta        float64
	IV           float64
	Intrinsic    float64
	IntrinsicPct float64
	Extrinsic    float64
	ExtrinsicPct float64
	SpreadPct    float64
	OpenInterest int64
	CostPerShare float64
	Score        float64

	MatchedPresets []string
	Recommended    bool
}

// Scan is one screening run.
type Scan struct {
	ScanID               string
	ScanDate             time.Time
	PresetName           string
	Tickers              []string
	FilterParams         FilterParams
	TargetCapital        float64
	RecommendationsCount int
	CandidatesCount      int
}

// ScanID derives the deterministic scan identifier from a scan timestamp.
// Second resolution: a same-second re-run maps to the same id and upserts.
func ScanID(scanDate time.Time) string {
	return "scan_" + scanDate.Format("20060102150405")
}

// Recommendation is the actionable entity: the top-scored candidate for
// one ticker in one scan, sized into a position and tracked over time.
type Recommendation struct {
	ID                 string
	ScanID             string
	RecommendationDate time.Time

	Ticker          string
	StockPriceAtRec float64

	OptionType string
	Strike     float64
	Expiration time.Time
	DTEAtRec   int

	PremiumBid float64
	PremiumAsk float64
	PremiumMid float64

	DeltaAtRec   float64
	IVAtRec      float64
	IntrinsicPct float64
	ExtrinsicVal float64
	ExtrinsicPct float64
	SpreadPct    float64
	OpenInterest int64

	Contracts    int
	TotalCost    float64
	EquivShares  float64
	CostPerShare float64
	Score        float64

	Status RecommendationStatus

	// Mutable current-market fields, updated on refresh.
	CurrentBid       float64
	CurrentAsk       float64
	CurrentMid       float64
	StockCurrent     float64
	DeltaCurrent     float64
	CurrentValue     float64
	UnrealizedPnl    float64
	UnrealizedPnlPct float64
	LastUpdated      time.Time
	ClosedDate       time.Time
	CloseReason      string
}

// RecommendationID derives the stable identifier for a recommendation.
// A recommendation is unique per (ticker, strike, expiration) within a scan.
func RecommendationID(scanID, ticker string, strike float64, expiration time.Time) string {
	return fmt.Sprintf("%s_%s_%g_%s", scanID, ticker, strike, expiration.Format("2006-01-02"))
}

// PriceSnapshot is one append-only refresh observation.
type PriceSnapshot struct {
	RecommendationID string
	Timestamp        time.Time
	StockPrice       float64
	OptionBid        float64
	OptionAsk        float64
	OptionMid        float64
	Delta            float64
	Value            float64
	Pnl              float64
	PnlPct           float64
}

// PerformanceRow is one flat row of the performance summary consumed by
// the risk analytics engine and the presentation layers.
type PerformanceRow struct {
	RecDate      time.Time `csv:"-" json:"-"`
	RecDateStr   string    `csv:"rec_date" json:"rec_date"`
	Ticker       string    `csv:"ticker" json:"ticker"`
	Strike       float64   `csv:"strike" json:"strike"`
	Expiration   string    `csv:"expiration" json:"expiration"`
	Status       string    `csv:"status" json:"status"`
	DaysHeld     float64   `csv:"days_held" json:"days_held"`
	DTE          float64   `csv:"dte" json:"dte"`
	EntryBid     float64   `csv:"entry_bid" json:"entry_bid"`
	EntryAsk     float64   `csv:"entry_ask" json:"entry_ask"`
	EntryMid     float64   `csv:"entry_mid" json:"entry_mid"`
	CurrentPrice float64   `csv:"current_price" json:"current_price"`
	Contracts    int       `csv:"contracts" json:"contracts"`
	TotalCost    float64   `csv:"total_cost" json:"total_cost"`
	CurrentValue float64   `csv:"current_value" json:"current_value"`
	Pnl          float64   `csv:"pnl" json:"pnl"`
	PnlPct       float64   `csv:"pnl_pct" json:"pnl_pct"`
	StockEntry   float64   `csv:"stock_entry" json:"stock_entry"`
	StockCurrent float64   `csv:"stock_current" json:"stock_current"`
	DeltaEntry   float64   `csv:"delta_entry" json:"delta_entry"`
	DeltaCurrent float64   `csv:"delta_current" json:"delta_current"`
	Score        float64   `csv:"score" json:"score"`
	Preset       string    `csv:"preset" json:"preset"`
}
