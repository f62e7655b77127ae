// Package engine orchestrates screening runs: it fetches market data,
// screens chains, sizes positions and records the results.
package engine

import (
	"context"
	"math"
	"time"

	"github.com/rs/zerolog"

	"ditm-screener/internal/config"
	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/logging"
	"ditm-screener/internal/models"
	"ditm-screener/internal/presets"
	"ditm-screener/internal/pricing"
	"ditm-screener/internal/screener"
	"ditm-screener/internal/tracker"
	"ditm-screener/pkg/utils"
)

// maxCostRatio rejects contracts whose per-share cost approaches the
// stock price, where buying shares outright dominates.
const maxCostRatio = 0.98

// MarketData is the market-data collaborator. Implementations are
// expected to return transient failures as DataError so the engine can
// retry them.
type MarketData interface {
	GetQuote(ctx context.Context, ticker string) (models.Quote, error)
	GetOptionChain(ctx context.Context, ticker string) (models.OptionChain, error)
}

// Engine runs scans and refreshes tracked recommendations.
type Engine struct {
	cfg      *config.Config
	store    tracker.Store
	data     MarketData
	screener *screener.Screener
	matcher  *presets.Matcher
	log      zerolog.Logger
	limiter  *utils.RateLimiter
	retry    utils.RetryConfig
	now      func() time.Time
}

// New creates a scan engine.
func New(cfg *config.Config, store tracker.Store, data MarketData, matcher *presets.Matcher, log zerolog.Logger) *Engine {
	rate := cfg.Scan.FetchRatePerSec
	if rate <= 0 {
		rate = 2.0
	}
	return &Engine{
		cfg:      cfg,
		store:    store,
		data:     data,
		screener: screener.New(cfg.Scan.RiskFreeRate),
		matcher:  matcher,
		log:      log,
		limiter:  utils.NewRateLimiter(rate, 1),
		retry:    utils.DefaultRetryConfig(),
		now:      time.Now,
	}
}

// ScanResult reports one screening run.
type ScanResult struct {
	Scan            models.Scan
	Candidates      []models.Candidate
	Recommendations []models.Recommendation
	// Skipped maps tickers excluded before fetching to the reason.
	Skipped map[string]string
	// Failed maps tickers whose market data could not be fetched to the
	// error text. A failed ticker never aborts the run.
	Failed map[string]string
}

// Run executes one screening pass over the tickers. An empty preset name
// uses the configured filter thresholds; an unknown preset fails fast
// before any fetch.
func (e *Engine) Run(ctx context.Context, tickers []string, presetName string) (*ScanResult, error) {
	params := e.cfg.Filters
	if presetName != "" {
		p, err := e.matcher.Get(presetName)
		if err != nil {
			return nil, err
		}
		params = p
	}
	if err := params.Validate(); err != nil {
		return nil, apperrors.Wrap(apperrors.ErrInvalidThresholds, err.Error())
	}
	if len(tickers) == 0 {
		tickers = e.cfg.Scan.Tickers
	}

	now := e.now().UTC()
	scanID := models.ScanID(now)
	log := logging.WithScan(e.log, scanID)

	result := &ScanResult{
		Skipped: make(map[string]string),
		Failed:  make(map[string]string),
	}

	window := time.Duration(e.cfg.Tracker.RecencyWindowHours) * time.Hour
	recent, err := e.store.RecentRecommendedTickers(ctx, window)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading recent recommendations")
	}

	perTickerCapital := e.cfg.Scan.TargetCapital / float64(len(tickers))
	fetched := false

	for _, ticker := range tickers {
		if when, ok := recent[ticker]; ok {
			log.Info().Str("ticker", ticker).Time("recommended_at", when).Msg("skipping, open recommendation within window")
			result.Skipped[ticker] = "open recommendation within recency window"
			continue
		}

		chain, err := e.fetchChain(ctx, ticker)
		if err != nil {
			log.Warn().Str("ticker", ticker).Err(err).Msg("market data fetch failed")
			result.Failed[ticker] = err.Error()
			continue
		}
		fetched = true

		candidates := e.screener.Screen(chain, params)
		for i := range candidates {
			candidates[i].MatchedPresets = e.matcher.AllMatches(candidates[i])
		}
		if len(candidates) == 0 {
			log.Debug().Str("ticker", ticker).Msg("no qualifying contracts")
			continue
		}

		rec, ok := e.sizePosition(scanID, now, candidates, perTickerCapital)
		if ok {
			logging.LogRecommendation(logging.WithTicker(log, rec.Ticker), rec.Ticker, rec.Strike,
				rec.Expiration.Format("2006-01-02"), rec.Contracts, rec.TotalCost, rec.Score)
			for i := range candidates {
				if candidates[i].Strike == rec.Strike && candidates[i].Expiration.Equal(rec.Expiration) {
					candidates[i].Recommended = true
				}
			}
			result.Recommendations = append(result.Recommendations, rec)
		}
		result.Candidates = append(result.Candidates, candidates...)
	}

	result.Scan = models.Scan{
		ScanID:               scanID,
		ScanDate:             now,
		PresetName:           presetName,
		Tickers:              tickers,
		FilterParams:         params,
		TargetCapital:        e.cfg.Scan.TargetCapital,
		RecommendationsCount: len(result.Recommendations),
		CandidatesCount:      len(result.Candidates),
	}

	if err := e.store.RecordScan(ctx, result.Scan, result.Candidates, result.Recommendations); err != nil {
		return nil, apperrors.Wrap(err, "recording scan")
	}
	if fetched {
		if err := e.store.SetLastFetch(ctx, now); err != nil {
			log.Warn().Err(err).Msg("failed to record fetch time")
		}
	}

	log.Info().
		Int("candidates", len(result.Candidates)).
		Int("recommendations", len(result.Recommendations)).
		Int("skipped", len(result.Skipped)).
		Int("failed", len(result.Failed)).
		Msg("scan complete")

	return result, nil
}

// sizePosition takes the best-scored candidate for the ticker and fits it
// to the per-ticker capital slice. Contracts that cost nearly the share
// price per share of exposure, or that the capital slice cannot afford,
// produce no recommendation.
func (e *Engine) sizePosition(scanID string, now time.Time, candidates []models.Candidate, capital float64) (models.Recommendation, bool) {
	best := candidates[0] // Screen returns score-ascending order
	if best.CostPerShare > maxCostRatio*best.StockPrice {
		return models.Recommendation{}, false
	}
	if best.Mid <= 0 {
		return models.Recommendation{}, false
	}
	contracts := int(math.Floor(capital / (best.Mid * 100)))
	if contracts < 1 {
		return models.Recommendation{}, false
	}

	totalCost := best.Mid * float64(contracts) * 100
	rec := models.Recommendation{
		ID:                 models.RecommendationID(scanID, best.Ticker, best.Strike, best.Expiration),
		ScanID:             scanID,
		RecommendationDate: now,
		Ticker:             best.Ticker,
		StockPriceAtRec:    best.StockPrice,
		OptionType:         "CALL",
		Strike:             best.Strike,
		Expiration:         best.Expiration,
		DTEAtRec:           best.DTE,
		PremiumBid:         best.Bid,
		PremiumAsk:         best.Ask,
		PremiumMid:         best.Mid,
		DeltaAtRec:         best.Delta,
		IVAtRec:            best.IV,
		IntrinsicPct:       best.IntrinsicPct,
		ExtrinsicVal:       best.Extrinsic,
		ExtrinsicPct:       best.ExtrinsicPct,
		SpreadPct:          best.SpreadPct,
		OpenInterest:       best.OpenInterest,
		Contracts:          contracts,
		TotalCost:          totalCost,
		EquivShares:        best.Delta * float64(contracts) * 100,
		CostPerShare:       best.CostPerShare,
		Score:              best.Score,
		Status:             models.StatusOpen,
	}
	return rec, true
}

func (e *Engine) fetchChain(ctx context.Context, ticker string) (models.OptionChain, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return models.OptionChain{}, err
	}
	return utils.RetryWithResult(ctx, e.retry, func() (models.OptionChain, error) {
		chain, err := e.data.GetOptionChain(ctx, ticker)
		if err != nil {
			return models.OptionChain{}, apperrors.NewDataError(ticker, "option chain", err)
		}
		return chain, nil
	})
}

// RefreshResult reports one refresh pass over open recommendations.
type RefreshResult struct {
	Refreshed []models.Recommendation
	Expired   []string
	Failed    map[string]string
}

// RefreshOpen expires lapsed recommendations, then re-prices every
// remaining open one against current market data. Per-recommendation
// failures never abort the pass.
func (e *Engine) RefreshOpen(ctx context.Context) (*RefreshResult, error) {
	now := e.now().UTC()
	result := &RefreshResult{Failed: make(map[string]string)}

	expired, err := e.store.ExpireLapsed(ctx, now)
	if err != nil {
		return nil, apperrors.Wrap(err, "expiring lapsed recommendations")
	}
	result.Expired = expired
	for _, id := range expired {
		e.log.Info().Str("recommendation_id", id).Msg("expired worthless")
	}

	open, err := e.store.GetOpenRecommendations(ctx)
	if err != nil {
		return nil, apperrors.Wrap(err, "loading open recommendations")
	}

	// One chain fetch per ticker, shared across its recommendations.
	chains := make(map[string]models.OptionChain)
	for _, rec := range open {
		chain, ok := chains[rec.Ticker]
		if !ok {
			chain, err = e.fetchChain(ctx, rec.Ticker)
			if err != nil {
				result.Failed[rec.ID] = err.Error()
				continue
			}
			chains[rec.Ticker] = chain
		}

		quote, found := findContract(chain, rec.Strike, rec.Expiration)
		if !found {
			result.Failed[rec.ID] = "contract not found in chain"
			continue
		}

		mid := (quote.Bid + quote.Ask) / 2
		delta := quote.Delta
		if math.IsNaN(delta) || delta == 0 {
			t := rec.Expiration.Sub(now).Hours() / 24 / 365
			delta = pricing.CallDelta(chain.UnderlyingPrice, rec.Strike, t, e.cfg.Scan.RiskFreeRate, screener.NormalizeIV(quote.ImpliedVol))
		}

		updated, err := e.store.RefreshRecommendation(ctx, rec.ID, tracker.RefreshUpdate{
			Bid:        quote.Bid,
			Ask:        quote.Ask,
			Mid:        mid,
			StockPrice: chain.UnderlyingPrice,
			Delta:      delta,
			Timestamp:  now,
		})
		if err != nil {
			result.Failed[rec.ID] = err.Error()
			continue
		}
		result.Refreshed = append(result.Refreshed, *updated)
		logging.LogRefresh(e.log, rec.ID, updated.CurrentValue, updated.UnrealizedPnl, updated.UnrealizedPnlPct)
	}

	if len(result.Refreshed) > 0 {
		if err := e.store.SetLastFetch(ctx, now); err != nil {
			e.log.Warn().Err(err).Msg("failed to record fetch time")
		}
	}
	return result, nil
}

func findContract(chain models.OptionChain, strike float64, expiration time.Time) (models.OptionQuote, bool) {
	want := expiration.Format("2006-01-02")
	for _, q := range chain.Quotes {
		if q.Strike == strike && q.Expiration.Format("2006-01-02") == want {
			return q, true
		}
	}
	return models.OptionQuote{}, false
}
