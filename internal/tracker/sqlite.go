package tracker

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/models"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-based recommendation store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", apperrors.ErrDatabaseError, dbPath, err)
	}

	// Configure connection pool for concurrent access
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: initializing schema: %v", apperrors.ErrDatabaseError, err)
	}

	return store, nil
}

// initSchema creates all required tables and indexes.
func (s *SQLiteStore) initSchema() error {
	schema := `
	-- Scans table: one row per screening run
	CREATE TABLE IF NOT EXISTS scans (
		scan_id TEXT PRIMARY KEY,
		scan_date DATETIME NOT NULL,
		preset_name TEXT NOT NULL DEFAULT '',
		tickers TEXT NOT NULL,
		filter_params TEXT NOT NULL,
		target_capital REAL NOT NULL DEFAULT 0,
		recommendations_count INTEGER NOT NULL DEFAULT 0,
		candidates_count INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Candidates table: every contract that cleared the filters
	CREATE TABLE IF NOT EXISTS candidates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		scan_id TEXT NOT NULL,
		ticker TEXT NOT NULL,
		stock_price REAL NOT NULL,
		strike REAL NOT NULL,
		expiration DATETIME NOT NULL,
		dte INTEGER NOT NULL,
		bid REAL NOT NULL,
		ask REAL NOT NULL,
		mid REAL NOT NULL,
		delta REAL NOT NULL,
		iv REAL NOT NULL,
		intrinsic REAL NOT NULL,
		intrinsic_pct REAL NOT NULL,
		extrinsic REAL NOT NULL,
		extrinsic_pct REAL NOT NULL,
		spread_pct REAL NOT NULL,
		open_interest INTEGER NOT NULL,
		cost_per_share REAL NOT NULL,
		score REAL NOT NULL,
		matched_presets TEXT,
		recommended INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		UNIQUE(scan_id, ticker, strike, expiration),
		FOREIGN KEY (scan_id) REFERENCES scans(scan_id)
	);

	-- Recommendations table: tracked positions with lifecycle state
	CREATE TABLE IF NOT EXISTS recommendations (
		id TEXT PRIMARY KEY,
		scan_id TEXT NOT NULL,
		recommendation_date DATETIME NOT NULL,
		ticker TEXT NOT NULL,
		stock_price_at_rec REAL NOT NULL,
		option_type TEXT NOT NULL DEFAULT 'CALL',
		strike REAL NOT NULL,
		expiration DATETIME NOT NULL,
		dte_at_rec INTEGER NOT NULL,
		premium_bid REAL NOT NULL,
		premium_ask REAL NOT NULL,
		premium_mid REAL NOT NULL,
		delta_at_rec REAL NOT NULL,
		iv_at_rec REAL NOT NULL,
		intrinsic_pct REAL NOT NULL,
		extrinsic_val REAL NOT NULL,
		extrinsic_pct REAL NOT NULL,
		spread_pct REAL NOT NULL,
		open_interest INTEGER NOT NULL,
		contracts INTEGER NOT NULL,
		total_cost REAL NOT NULL,
		equiv_shares REAL NOT NULL,
		cost_per_share REAL NOT NULL,
		score REAL NOT NULL,
		status TEXT NOT NULL DEFAULT 'open',
		current_bid REAL NOT NULL DEFAULT 0,
		current_ask REAL NOT NULL DEFAULT 0,
		current_mid REAL NOT NULL DEFAULT 0,
		stock_current REAL NOT NULL DEFAULT 0,
		delta_current REAL NOT NULL DEFAULT 0,
		current_value REAL NOT NULL DEFAULT 0,
		unrealized_pnl REAL NOT NULL DEFAULT 0,
		unrealized_pnl_pct REAL NOT NULL DEFAULT 0,
		last_updated DATETIME,
		closed_date DATETIME,
		close_reason TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (scan_id) REFERENCES scans(scan_id)
	);

	-- Price snapshots: append-only refresh history
	CREATE TABLE IF NOT EXISTS price_snapshots (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		recommendation_id TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		stock_price REAL NOT NULL,
		option_bid REAL NOT NULL,
		option_ask REAL NOT NULL,
		option_mid REAL NOT NULL,
		delta REAL NOT NULL,
		value REAL NOT NULL,
		pnl REAL NOT NULL,
		pnl_pct REAL NOT NULL,
		FOREIGN KEY (recommendation_id) REFERENCES recommendations(id)
	);

	-- Watchlist table
	CREATE TABLE IF NOT EXISTS watchlist (
		symbol TEXT PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Metadata key/value table
	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_candidates_scan ON candidates(scan_id);
	CREATE INDEX IF NOT EXISTS idx_candidates_ticker ON candidates(ticker);
	CREATE INDEX IF NOT EXISTS idx_recs_status ON recommendations(status);
	CREATE INDEX IF NOT EXISTS idx_recs_ticker ON recommendations(ticker);
	CREATE INDEX IF NOT EXISTS idx_recs_scan ON recommendations(scan_id);
	CREATE INDEX IF NOT EXISTS idx_recs_date ON recommendations(recommendation_date);
	CREATE INDEX IF NOT EXISTS idx_snapshots_rec ON price_snapshots(recommendation_id, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ============================================================================
// Scan Methods
// ============================================================================

// RecordScan persists a scan, its candidates and its recommendations in a
// single transaction. Re-running within the same second replaces the
// earlier rows for that scan id.
func (s *SQLiteStore) RecordScan(ctx context.Context, scan models.Scan, candidates []models.Candidate, recs []models.Recommendation) error {
	tickers, _ := json.Marshal(scan.Tickers)
	params, _ := json.Marshal(scan.FilterParams)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO scans (scan_id, scan_date, preset_name, tickers, filter_params, target_capital, recommendations_count, candidates_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, scan.ScanID, scan.ScanDate, scan.PresetName, string(tickers), string(params), scan.TargetCapital, len(recs), len(candidates))
	if err != nil {
		return fmt.Errorf("failed to insert scan: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO candidates (scan_id, ticker, stock_price, strike, expiration, dte, bid, ask, mid, delta, iv, intrinsic, intrinsic_pct, extrinsic, extrinsic_pct, spread_pct, open_interest, cost_per_share, score, matched_presets, recommended)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare candidate statement: %w", err)
	}
	defer stmt.Close()

	for _, c := range candidates {
		presets, _ := json.Marshal(c.MatchedPresets)
		recommended := 0
		if c.Recommended {
			recommended = 1
		}
		_, err := stmt.ExecContext(ctx, scan.ScanID, c.Ticker, c.StockPrice, c.Strike, c.Expiration, c.DTE, c.Bid, c.Ask, c.Mid, c.Delta, c.IV, c.Intrinsic, c.IntrinsicPct, c.Extrinsic, c.ExtrinsicPct, c.SpreadPct, c.OpenInterest, c.CostPerShare, c.Score, string(presets), recommended)
		if err != nil {
			return fmt.Errorf("failed to insert candidate: %w", err)
		}
	}

	recStmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO recommendations (id, scan_id, recommendation_date, ticker, stock_price_at_rec, option_type, strike, expiration, dte_at_rec, premium_bid, premium_ask, premium_mid, delta_at_rec, iv_at_rec, intrinsic_pct, extrinsic_val, extrinsic_pct, spread_pct, open_interest, contracts, total_cost, equiv_shares, cost_per_share, score, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare recommendation statement: %w", err)
	}
	defer recStmt.Close()

	for _, r := range recs {
		status := r.Status
		if status == "" {
			status = models.StatusOpen
		}
		_, err := recStmt.ExecContext(ctx, r.ID, r.ScanID, r.RecommendationDate, r.Ticker, r.StockPriceAtRec, r.OptionType, r.Strike, r.Expiration, r.DTEAtRec, r.PremiumBid, r.PremiumAsk, r.PremiumMid, r.DeltaAtRec, r.IVAtRec, r.IntrinsicPct, r.ExtrinsicVal, r.ExtrinsicPct, r.SpreadPct, r.OpenInterest, r.Contracts, r.TotalCost, r.EquivShares, r.CostPerShare, r.Score, string(status))
		if err != nil {
			return fmt.Errorf("failed to insert recommendation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit scan: %w", err)
	}

	return nil
}

// GetScan retrieves a scan by id.
func (s *SQLiteStore) GetScan(ctx context.Context, scanID string) (*models.Scan, error) {
	var scan models.Scan
	var tickers, params string
	err := s.db.QueryRowContext(ctx, `
		SELECT scan_id, scan_date, preset_name, tickers, filter_params, target_capital, recommendations_count, candidates_count
		FROM scans WHERE scan_id = ?
	`, scanID).Scan(&scan.ScanID, &scan.ScanDate, &scan.PresetName, &tickers, &params, &scan.TargetCapital, &scan.RecommendationsCount, &scan.CandidatesCount)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrScanNotFound, "scan %s", scanID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get scan: %w", err)
	}
	json.Unmarshal([]byte(tickers), &scan.Tickers)
	json.Unmarshal([]byte(params), &scan.FilterParams)
	return &scan, nil
}

// ============================================================================
// Recommendation Methods
// ============================================================================

const recColumns = `id, scan_id, recommendation_date, ticker, stock_price_at_rec, option_type, strike, expiration, dte_at_rec, premium_bid, premium_ask, premium_mid, delta_at_rec, iv_at_rec, intrinsic_pct, extrinsic_val, extrinsic_pct, spread_pct, open_interest, contracts, total_cost, equiv_shares, cost_per_share, score, status, current_bid, current_ask, current_mid, stock_current, delta_current, current_value, unrealized_pnl, unrealized_pnl_pct, last_updated, closed_date, close_reason`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecommendation(row rowScanner) (*models.Recommendation, error) {
	var r models.Recommendation
	var status string
	var lastUpdated, closedDate sql.NullTime
	var closeReason sql.NullString

	err := row.Scan(&r.ID, &r.ScanID, &r.RecommendationDate, &r.Ticker, &r.StockPriceAtRec, &r.OptionType, &r.Strike, &r.Expiration, &r.DTEAtRec, &r.PremiumBid, &r.PremiumAsk, &r.PremiumMid, &r.DeltaAtRec, &r.IVAtRec, &r.IntrinsicPct, &r.ExtrinsicVal, &r.ExtrinsicPct, &r.SpreadPct, &r.OpenInterest, &r.Contracts, &r.TotalCost, &r.EquivShares, &r.CostPerShare, &r.Score, &status, &r.CurrentBid, &r.CurrentAsk, &r.CurrentMid, &r.StockCurrent, &r.DeltaCurrent, &r.CurrentValue, &r.UnrealizedPnl, &r.UnrealizedPnlPct, &lastUpdated, &closedDate, &closeReason)
	if err != nil {
		return nil, err
	}
	r.Status = models.RecommendationStatus(status)
	if lastUpdated.Valid {
		r.LastUpdated = lastUpdated.Time
	}
	if closedDate.Valid {
		r.ClosedDate = closedDate.Time
	}
	if closeReason.Valid {
		r.CloseReason = closeReason.String
	}
	return &r, nil
}

// GetRecommendation retrieves a recommendation by id.
func (s *SQLiteStore) GetRecommendation(ctx context.Context, id string) (*models.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+recColumns+" FROM recommendations WHERE id = ?", id)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "recommendation %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// GetOpenRecommendations retrieves all open recommendations, oldest first.
func (s *SQLiteStore) GetOpenRecommendations(ctx context.Context) ([]models.Recommendation, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+recColumns+" FROM recommendations WHERE status = ? ORDER BY recommendation_date ASC", string(models.StatusOpen))
	if err != nil {
		return nil, fmt.Errorf("failed to query open recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recommendations: %w", err)
	}
	return recs, nil
}

// RefreshRecommendation applies a current-market update to an open
// recommendation and appends a price snapshot. Terminal recommendations
// are rejected.
func (s *SQLiteStore) RefreshRecommendation(ctx context.Context, id string, update RefreshUpdate) (*models.Recommendation, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, "SELECT "+recColumns+" FROM recommendations WHERE id = ?", id)
	rec, err := scanRecommendation(row)
	if err == sql.ErrNoRows {
		return nil, apperrors.Wrapf(apperrors.ErrNotFound, "recommendation %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	if rec.Status.Terminal() {
		return nil, apperrors.Wrapf(apperrors.ErrRecommendationClosed, "recommendation %s is %s", id, rec.Status)
	}

	value := update.Mid * float64(rec.Contracts) * 100
	pnl := value - rec.TotalCost
	pnlPct := 0.0
	if rec.TotalCost > 0 {
		pnlPct = pnl / rec.TotalCost * 100
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE recommendations
		SET current_bid = ?, current_ask = ?, current_mid = ?, stock_current = ?, delta_current = ?,
		    current_value = ?, unrealized_pnl = ?, unrealized_pnl_pct = ?, last_updated = ?
		WHERE id = ?
	`, update.Bid, update.Ask, update.Mid, update.StockPrice, update.Delta, value, pnl, pnlPct, update.Timestamp, id)
	if err != nil {
		return nil, fmt.Errorf("failed to update recommendation: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO price_snapshots (recommendation_id, timestamp, stock_price, option_bid, option_ask, option_mid, delta, value, pnl, pnl_pct)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, id, update.Timestamp, update.StockPrice, update.Bid, update.Ask, update.Mid, update.Delta, value, pnl, pnlPct)
	if err != nil {
		return nil, fmt.Errorf("failed to insert snapshot: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit refresh: %w", err)
	}

	rec.CurrentBid = update.Bid
	rec.CurrentAsk = update.Ask
	rec.CurrentMid = update.Mid
	rec.StockCurrent = update.StockPrice
	rec.DeltaCurrent = update.Delta
	rec.CurrentValue = value
	rec.UnrealizedPnl = pnl
	rec.UnrealizedPnlPct = pnlPct
	rec.LastUpdated = update.Timestamp
	return rec, nil
}

// CloseRecommendation closes all open recommendations matching the
// contract coordinates.
func (s *SQLiteStore) CloseRecommendation(ctx context.Context, ticker string, strike float64, expiration time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE recommendations
		SET status = ?, closed_date = ?, close_reason = ?
		WHERE ticker = ? AND strike = ? AND expiration = ? AND status = ?
	`, string(models.StatusClosed), time.Now().UTC(), reason, ticker, strike, expiration, string(models.StatusOpen))
	if err != nil {
		return fmt.Errorf("failed to close recommendation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check close result: %w", err)
	}
	if n == 0 {
		return apperrors.Wrapf(apperrors.ErrNotFound, "no open recommendation for %s %g %s", ticker, strike, expiration.Format("2006-01-02"))
	}
	return nil
}

// ExpireLapsed transitions every open recommendation past its expiration
// to expired, booking the full premium as a loss. Returns the ids expired.
func (s *SQLiteStore) ExpireLapsed(ctx context.Context, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, total_cost FROM recommendations WHERE status = ? AND expiration < ?
	`, string(models.StatusOpen), now)
	if err != nil {
		return nil, fmt.Errorf("failed to query lapsed recommendations: %w", err)
	}

	type lapsed struct {
		id        string
		totalCost float64
	}
	var found []lapsed
	for rows.Next() {
		var l lapsed
		if err := rows.Scan(&l.id, &l.totalCost); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan lapsed recommendation: %w", err)
		}
		found = append(found, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating lapsed recommendations: %w", err)
	}

	var ids []string
	for _, l := range found {
		_, err := tx.ExecContext(ctx, `
			UPDATE recommendations
			SET status = ?, current_value = 0, unrealized_pnl = ?, unrealized_pnl_pct = -100,
			    closed_date = ?, close_reason = 'expired worthless', last_updated = ?
			WHERE id = ?
		`, string(models.StatusExpired), -l.totalCost, now, now, l.id)
		if err != nil {
			return nil, fmt.Errorf("failed to expire recommendation %s: %w", l.id, err)
		}
		ids = append(ids, l.id)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit expirations: %w", err)
	}
	return ids, nil
}

// RecentRecommendedTickers returns tickers with an open recommendation
// created within the window, mapped to the most recent recommendation date.
func (s *SQLiteStore) RecentRecommendedTickers(ctx context.Context, window time.Duration) (map[string]time.Time, error) {
	cutoff := time.Now().UTC().Add(-window)
	rows, err := s.db.QueryContext(ctx, `
		SELECT ticker, recommendation_date
		FROM recommendations
		WHERE status = ? AND recommendation_date >= ?
	`, string(models.StatusOpen), cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent tickers: %w", err)
	}
	defer rows.Close()

	recent := make(map[string]time.Time)
	for rows.Next() {
		var ticker string
		var date time.Time
		if err := rows.Scan(&ticker, &date); err != nil {
			return nil, fmt.Errorf("failed to scan recent ticker: %w", err)
		}
		if date.After(recent[ticker]) {
			recent[ticker] = date
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating recent tickers: %w", err)
	}
	return recent, nil
}

// GetSnapshots retrieves the refresh history for a recommendation, oldest
// first.
func (s *SQLiteStore) GetSnapshots(ctx context.Context, recommendationID string) ([]models.PriceSnapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT recommendation_id, timestamp, stock_price, option_bid, option_ask, option_mid, delta, value, pnl, pnl_pct
		FROM price_snapshots
		WHERE recommendation_id = ?
		ORDER BY timestamp ASC
	`, recommendationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []models.PriceSnapshot
	for rows.Next() {
		var p models.PriceSnapshot
		if err := rows.Scan(&p.RecommendationID, &p.Timestamp, &p.StockPrice, &p.OptionBid, &p.OptionAsk, &p.OptionMid, &p.Delta, &p.Value, &p.Pnl, &p.PnlPct); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating snapshots: %w", err)
	}
	return snaps, nil
}

// ============================================================================
// Candidate Methods
// ============================================================================

const candidateColumns = `c.scan_id, s.scan_date, c.ticker, c.stock_price, c.strike, c.expiration, c.dte, c.bid, c.ask, c.mid, c.delta, c.iv, c.intrinsic, c.intrinsic_pct, c.extrinsic, c.extrinsic_pct, c.spread_pct, c.open_interest, c.cost_per_share, c.score, c.matched_presets, c.recommended`

func (s *SQLiteStore) queryCandidates(ctx context.Context, where string, args ...interface{}) ([]CandidateRow, error) {
	query := "SELECT " + candidateColumns + " FROM candidates c JOIN scans s ON s.scan_id = c.scan_id WHERE 1=1" + where + " ORDER BY s.scan_date DESC, c.score ASC"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	defer rows.Close()

	var result []CandidateRow
	for rows.Next() {
		var row CandidateRow
		var presets sql.NullString
		var recommended int
		err := rows.Scan(&row.ScanID, &row.ScanDate, &row.Ticker, &row.StockPrice, &row.Strike, &row.Expiration, &row.DTE, &row.Bid, &row.Ask, &row.Mid, &row.Delta, &row.IV, &row.Intrinsic, &row.IntrinsicPct, &row.Extrinsic, &row.ExtrinsicPct, &row.SpreadPct, &row.OpenInterest, &row.CostPerShare, &row.Score, &presets, &recommended)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		if presets.Valid && presets.String != "" {
			json.Unmarshal([]byte(presets.String), &row.MatchedPresets)
		}
		row.Recommended = recommended != 0
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating candidates: %w", err)
	}
	return result, nil
}

// GetCandidatesByScan retrieves all candidates recorded by one scan.
func (s *SQLiteStore) GetCandidatesByScan(ctx context.Context, scanID string) ([]CandidateRow, error) {
	return s.queryCandidates(ctx, " AND c.scan_id = ?", scanID)
}

// GetCandidatesByTicker retrieves candidates for a ticker across scans
// within the lookback window.
func (s *SQLiteStore) GetCandidatesByTicker(ctx context.Context, ticker string, lookback time.Duration) ([]CandidateRow, error) {
	cutoff := time.Now().UTC().Add(-lookback)
	return s.queryCandidates(ctx, " AND c.ticker = ? AND s.scan_date >= ?", ticker, cutoff)
}

// ============================================================================
// Performance Methods
// ============================================================================

// PerformanceSummary produces one flat row per recommendation, joined to
// its scan's preset. Days held runs to the close date for terminal
// positions and to now for open ones.
func (s *SQLiteStore) PerformanceSummary(ctx context.Context, now time.Time) ([]models.PerformanceRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.recommendation_date, r.ticker, r.strike, r.expiration, r.status, r.dte_at_rec,
		       r.premium_bid, r.premium_ask, r.premium_mid, r.current_mid, r.contracts, r.total_cost,
		       r.current_value, r.unrealized_pnl, r.unrealized_pnl_pct, r.stock_price_at_rec,
		       r.stock_current, r.delta_at_rec, r.delta_current, r.score, r.closed_date,
		       COALESCE(s.preset_name, '')
		FROM recommendations r
		LEFT JOIN scans s ON s.scan_id = r.scan_id
		ORDER BY r.recommendation_date ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query performance summary: %w", err)
	}
	defer rows.Close()

	var result []models.PerformanceRow
	for rows.Next() {
		var row models.PerformanceRow
		var expiration time.Time
		var closedDate sql.NullTime
		err := rows.Scan(&row.RecDate, &row.Ticker, &row.Strike, &expiration, &row.Status, &row.DTE,
			&row.EntryBid, &row.EntryAsk, &row.EntryMid, &row.CurrentPrice, &row.Contracts, &row.TotalCost,
			&row.CurrentValue, &row.Pnl, &row.PnlPct, &row.StockEntry,
			&row.StockCurrent, &row.DeltaEntry, &row.DeltaCurrent, &row.Score, &closedDate,
			&row.Preset)
		if err != nil {
			return nil, fmt.Errorf("failed to scan performance row: %w", err)
		}
		row.RecDateStr = row.RecDate.Format("2006-01-02")
		row.Expiration = expiration.Format("2006-01-02")
		end := now
		if closedDate.Valid {
			end = closedDate.Time
		}
		row.DaysHeld = end.Sub(row.RecDate).Hours() / 24
		if row.DaysHeld < 0 {
			row.DaysHeld = 0
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating performance rows: %w", err)
	}
	return result, nil
}

// PresetPerformance aggregates recommendation outcomes by originating
// preset.
func (s *SQLiteStore) PresetPerformance(ctx context.Context) ([]PresetStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT COALESCE(s.preset_name, '') AS preset,
		       COUNT(*) AS positions,
		       AVG(r.unrealized_pnl_pct) AS avg_pnl_pct,
		       AVG(CASE WHEN r.unrealized_pnl > 0 THEN 1.0 ELSE 0.0 END) AS win_rate
		FROM recommendations r
		LEFT JOIN scans s ON s.scan_id = r.scan_id
		GROUP BY preset
		ORDER BY preset
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query preset performance: %w", err)
	}
	defer rows.Close()

	var result []PresetStats
	for rows.Next() {
		var ps PresetStats
		if err := rows.Scan(&ps.Preset, &ps.Positions, &ps.AvgPnlPct, &ps.WinRate); err != nil {
			return nil, fmt.Errorf("failed to scan preset stats: %w", err)
		}
		result = append(result, ps)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating preset stats: %w", err)
	}
	return result, nil
}

// ============================================================================
// Watchlist Methods
// ============================================================================

// AddToWatchlist adds a symbol to the watchlist.
func (s *SQLiteStore) AddToWatchlist(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR IGNORE INTO watchlist (symbol) VALUES (?)`, symbol)
	if err != nil {
		return fmt.Errorf("failed to add to watchlist: %w", err)
	}
	return nil
}

// RemoveFromWatchlist removes a symbol from the watchlist.
func (s *SQLiteStore) RemoveFromWatchlist(ctx context.Context, symbol string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM watchlist WHERE symbol = ?`, symbol)
	if err != nil {
		return fmt.Errorf("failed to remove from watchlist: %w", err)
	}
	return nil
}

// GetWatchlist retrieves all watchlist symbols, alphabetically.
func (s *SQLiteStore) GetWatchlist(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT symbol FROM watchlist ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watchlist: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan watchlist symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating watchlist: %w", err)
	}
	return symbols, nil
}

// ============================================================================
// Metadata Methods
// ============================================================================

const lastFetchKey = "last_successful_fetch"

// SetLastFetch records the timestamp of the last successful market-data
// fetch.
func (s *SQLiteStore) SetLastFetch(ctx context.Context, t time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO metadata (key, value, updated_at) VALUES (?, ?, ?)
	`, lastFetchKey, t.UTC().Format(time.RFC3339), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to set last fetch: %w", err)
	}
	return nil
}

// GetLastFetch returns the timestamp of the last successful market-data
// fetch, or the zero time when none is recorded.
func (s *SQLiteStore) GetLastFetch(ctx context.Context) (time.Time, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, lastFetchKey).Scan(&value)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to get last fetch: %w", err)
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse last fetch: %w", err)
	}
	return t, nil
}
