// Package tracker provides persistence for scans, candidates and
// recommendations, and tracks each recommendation's lifecycle.
package tracker

import (
	"context"
	"time"

	"ditm-screener/internal/models"
)

// Store defines the interface for recommendation persistence.
type Store interface {
	// Scans. RecordScan writes the scan, its candidates and its
	// recommendations in a single transaction: all rows commit or none do.
	RecordScan(ctx context.Context, scan models.Scan, candidates []models.Candidate, recs []models.Recommendation) error
	GetScan(ctx context.Context, scanID string) (*models.Scan, error)

	// Recommendations
	GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error)
	GetOpenRecommendations(ctx context.Context) ([]models.Recommendation, error)
	RefreshRecommendation(ctx context.Context, id string, update RefreshUpdate) (*models.Recommendation, error)
	CloseRecommendation(ctx context.Context, ticker string, strike float64, expiration time.Time, reason string) error
	ExpireLapsed(ctx context.Context, now time.Time) ([]string, error)
	RecentRecommendedTickers(ctx context.Context, window time.Duration) (map[string]time.Time, error)
	GetSnapshots(ctx context.Context, recommendationID string) ([]models.PriceSnapshot, error)

	// Candidates
	GetCandidatesByScan(ctx context.Context, scanID string) ([]CandidateRow, error)
	GetCandidatesByTicker(ctx context.Context, ticker string, lookback time.Duration) ([]CandidateRow, error)

	// Performance. PerformanceSummary reads everything in one query so
	// analytics sees a consistent snapshot.
	PerformanceSummary(ctx context.Context, now time.Time) ([]models.PerformanceRow, error)
	PresetPerformance(ctx context.Context) ([]PresetStats, error)

	// Watchlist
	AddToWatchlist(ctx context.Context, symbol string) error
	RemoveFromWatchlist(ctx context.Context, symbol string) error
	GetWatchlist(ctx context.Context) ([]string, error)

	// Metadata
	SetLastFetch(ctx context.Context, t time.Time) error
	GetLastFetch(ctx context.Context) (time.Time, error)

	// Lifecycle
	Close() error
}

// RefreshUpdate carries current-market inputs for a recommendation
// refresh. Applying the same update twice yields the same stored state
// plus one additional snapshot.
type RefreshUpdate struct {
	Bid        float64
	Ask        float64
	Mid        float64
	StockPrice float64
	Delta      float64
	Timestamp  time.Time
}

// CandidateRow is a persisted candidate together with its scan linkage.
type CandidateRow struct {
	ScanID   string
	ScanDate time.Time
	models.Candidate
}

// PresetStats aggregates recommendation performance by the preset active
// at scan time.
type PresetStats struct {
	Preset    string
	Positions int
	AvgPnlPct float64
	WinRate   float64
}
