package tracker

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNewSQLiteStoreBadPath(t *testing.T) {
	_, err := NewSQLiteStore(filepath.Join(t.TempDir(), "missing", "test.db"))
	assert.ErrorIs(t, err, apperrors.ErrDatabaseError)
}

func testScan(scanDate time.Time) models.Scan {
	return models.Scan{
		ScanID:   models.ScanID(scanDate),
		ScanDate: scanDate,
		Tickers:  []string{"XYZ"},
		FilterParams: models.FilterParams{
			MinDelta:        0.80,
			MaxDelta:        0.95,
			MinIntrinsicPct: 0.85,
			MinDTE:          90,
			MaxIV:           0.30,
			MaxSpreadPct:    0.02,
			MinOI:           500,
		},
		TargetCapital: 50000,
		PresetName:    "moderate",
	}
}

func testRecommendation(scanID string, scanDate time.Time) models.Recommendation {
	expiration := scanDate.AddDate(0, 4, 0).Truncate(24 * time.Hour)
	return models.Recommendation{
		ID:                 models.RecommendationID(scanID, "XYZ", 80, expiration),
		ScanID:             scanID,
		RecommendationDate: scanDate,
		Ticker:             "XYZ",
		StockPriceAtRec:    100,
		OptionType:         "CALL",
		Strike:             80,
		Expiration:         expiration,
		DTEAtRec:           120,
		PremiumBid:         19.40,
		PremiumAsk:         19.60,
		PremiumMid:         19.50,
		DeltaAtRec:         0.90,
		IVAtRec:            0.20,
		IntrinsicPct:       1.026,
		ExtrinsicVal:       -0.40,
		SpreadPct:          0.0103,
		OpenInterest:       1000,
		Contracts:          1,
		TotalCost:          1950,
		EquivShares:        90,
		CostPerShare:       0.2167,
		Score:              0.21,
		Status:             models.StatusOpen,
	}
}

func testCandidate(scanDate time.Time) models.Candidate {
	return models.Candidate{
		Ticker:         "XYZ",
		StockPrice:     100,
		Strike:         80,
		Expiration:     scanDate.AddDate(0, 4, 0).Truncate(24 * time.Hour),
		DTE:            120,
		Bid:            19.40,
		Ask:            19.60,
		Mid:            19.50,
		Delta:          0.90,
		IV:             0.20,
		Intrinsic:      20,
		IntrinsicPct:   1.026,
		SpreadPct:      0.0103,
		OpenInterest:   1000,
		Score:          0.21,
		MatchedPresets: []string{"moderate"},
		Recommended:    true,
	}
}

func TestRecordAndGetScan(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	cand := testCandidate(scanDate)

	require.NoError(t, store.RecordScan(ctx, scan, []models.Candidate{cand}, []models.Recommendation{rec}))

	got, err := store.GetScan(ctx, scan.ScanID)
	require.NoError(t, err)
	assert.Equal(t, scan.ScanID, got.ScanID)
	assert.Equal(t, []string{"XYZ"}, got.Tickers)
	assert.Equal(t, 0.80, got.FilterParams.MinDelta)
	assert.Equal(t, 1, got.RecommendationsCount)
	assert.Equal(t, 1, got.CandidatesCount)

	candidates, err := store.GetCandidatesByScan(ctx, scan.ScanID)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, []string{"moderate"}, candidates[0].MatchedPresets)
	assert.True(t, candidates[0].Recommended)

	_, err = store.GetScan(ctx, "scan_19700101000000")
	assert.ErrorIs(t, err, apperrors.ErrScanNotFound)
}

func TestRecordScanUpsertsSameSecond(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	cand := testCandidate(scanDate)

	require.NoError(t, store.RecordScan(ctx, scan, []models.Candidate{cand}, nil))
	// Same second, same id: the re-run replaces rather than duplicates.
	require.NoError(t, store.RecordScan(ctx, scan, []models.Candidate{cand}, nil))

	candidates, err := store.GetCandidatesByScan(ctx, scan.ScanID)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}

func TestRefreshRecommendation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	require.NoError(t, store.RecordScan(ctx, scan, nil, []models.Recommendation{rec}))

	update := RefreshUpdate{
		Bid:        24.90,
		Ask:        25.10,
		Mid:        25.00,
		StockPrice: 105,
		Delta:      0.93,
		Timestamp:  scanDate.Add(48 * time.Hour),
	}
	got, err := store.RefreshRecommendation(ctx, rec.ID, update)
	require.NoError(t, err)
	assert.InDelta(t, 2500.0, got.CurrentValue, 1e-9)
	assert.InDelta(t, 550.0, got.UnrealizedPnl, 1e-9)
	assert.InDelta(t, 28.21, got.UnrealizedPnlPct, 0.01)

	// Idempotent: same update again yields the same state plus one more
	// snapshot.
	again, err := store.RefreshRecommendation(ctx, rec.ID, update)
	require.NoError(t, err)
	assert.Equal(t, got.CurrentValue, again.CurrentValue)
	assert.Equal(t, got.UnrealizedPnl, again.UnrealizedPnl)

	snaps, err := store.GetSnapshots(ctx, rec.ID)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.InDelta(t, 2500.0, snaps[0].Value, 1e-9)

	_, err = store.RefreshRecommendation(ctx, "missing", update)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestCloseRecommendation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	require.NoError(t, store.RecordScan(ctx, scan, nil, []models.Recommendation{rec}))

	require.NoError(t, store.CloseRecommendation(ctx, rec.Ticker, rec.Strike, rec.Expiration, "took profit"))

	got, err := store.GetRecommendation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusClosed, got.Status)
	assert.Equal(t, "took profit", got.CloseReason)
	assert.False(t, got.ClosedDate.IsZero())

	// Terminal states reject further mutation.
	_, err = store.RefreshRecommendation(ctx, rec.ID, RefreshUpdate{Mid: 30, Timestamp: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrRecommendationClosed)

	// Closing again finds nothing open.
	err = store.CloseRecommendation(ctx, rec.Ticker, rec.Strike, rec.Expiration, "again")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestExpireLapsed(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	require.NoError(t, store.RecordScan(ctx, scan, nil, []models.Recommendation{rec}))

	// Before expiration nothing lapses.
	ids, err := store.ExpireLapsed(ctx, scanDate.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, ids)

	ids, err = store.ExpireLapsed(ctx, rec.Expiration.Add(24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, []string{rec.ID}, ids)

	got, err := store.GetRecommendation(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, got.Status)
	assert.Zero(t, got.CurrentValue)
	assert.InDelta(t, -1950.0, got.UnrealizedPnl, 1e-9)
	assert.InDelta(t, -100.0, got.UnrealizedPnlPct, 1e-9)

	// Expired is terminal too.
	_, err = store.RefreshRecommendation(ctx, rec.ID, RefreshUpdate{Mid: 1, Timestamp: time.Now()})
	assert.ErrorIs(t, err, apperrors.ErrRecommendationClosed)
}

func TestRecentRecommendedTickers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Now().UTC().Add(-2 * time.Hour)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	require.NoError(t, store.RecordScan(ctx, scan, nil, []models.Recommendation{rec}))

	recent, err := store.RecentRecommendedTickers(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Contains(t, recent, "XYZ")

	// Outside the window the ticker is eligible again.
	recent, err = store.RecentRecommendedTickers(ctx, time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, recent, "XYZ")

	// Closed recommendations do not suppress re-recommendation.
	require.NoError(t, store.CloseRecommendation(ctx, rec.Ticker, rec.Strike, rec.Expiration, "done"))
	recent, err = store.RecentRecommendedTickers(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.NotContains(t, recent, "XYZ")
}

func TestPerformanceSummary(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	scanDate := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	scan := testScan(scanDate)
	rec := testRecommendation(scan.ScanID, scanDate)
	require.NoError(t, store.RecordScan(ctx, scan, nil, []models.Recommendation{rec}))

	_, err := store.RefreshRecommendation(ctx, rec.ID, RefreshUpdate{
		Bid: 24.90, Ask: 25.10, Mid: 25.00, StockPrice: 105, Delta: 0.93,
		Timestamp: scanDate.Add(48 * time.Hour),
	})
	require.NoError(t, err)

	now := scanDate.Add(10 * 24 * time.Hour)
	rows, err := store.PerformanceSummary(ctx, now)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "XYZ", row.Ticker)
	assert.Equal(t, "moderate", row.Preset)
	assert.Equal(t, string(models.StatusOpen), row.Status)
	assert.InDelta(t, 10.0, row.DaysHeld, 0.01)
	assert.InDelta(t, 2500.0, row.CurrentValue, 1e-9)
	assert.InDelta(t, 550.0, row.Pnl, 1e-9)

	// Once closed, days held freeze at the close date regardless of the
	// as-of time passed in.
	require.NoError(t, store.CloseRecommendation(ctx, rec.Ticker, rec.Strike, rec.Expiration, "done"))
	expected := time.Now().UTC().Sub(scanDate).Hours() / 24
	rows, err = store.PerformanceSummary(ctx, now.Add(1000*24*time.Hour))
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.InDelta(t, expected, rows[0].DaysHeld, 0.1)
}

func TestWatchlist(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AddToWatchlist(ctx, "MSFT"))
	require.NoError(t, store.AddToWatchlist(ctx, "AAPL"))
	require.NoError(t, store.AddToWatchlist(ctx, "AAPL")) // duplicate is a no-op

	symbols, err := store.GetWatchlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, symbols)

	require.NoError(t, store.RemoveFromWatchlist(ctx, "AAPL"))
	symbols, err = store.GetWatchlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"MSFT"}, symbols)
}

func TestLastFetch(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	got, err := store.GetLastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, got.IsZero())

	when := time.Date(2026, 8, 1, 14, 30, 0, 0, time.UTC)
	require.NoError(t, store.SetLastFetch(ctx, when))

	got, err = store.GetLastFetch(ctx)
	require.NoError(t, err)
	assert.True(t, when.Equal(got))
}
