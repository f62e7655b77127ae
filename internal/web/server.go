// Package web exposes the dashboard JSON API.
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"ditm-screener/internal/analytics"
	"ditm-screener/internal/config"
	"ditm-screener/internal/engine"
	apperrors "ditm-screener/internal/errors"
	"ditm-screener/internal/presets"
	"ditm-screener/internal/tracker"
)

// Server serves the dashboard API.
type Server struct {
	cfg     *config.Config
	store   tracker.Store
	engine  *engine.Engine
	matcher *presets.Matcher
	log     zerolog.Logger
	router  *mux.Router
	http    *http.Server
}

// NewServer creates the API server and wires its routes.
func NewServer(cfg *config.Config, store tracker.Store, eng *engine.Engine, matcher *presets.Matcher, log zerolog.Logger) *Server {
	s := &Server{
		cfg:     cfg,
		store:   store,
		engine:  eng,
		matcher: matcher,
		log:     log,
		router:  mux.NewRouter(),
	}
	s.routes()
	s.http = &http.Server{
		Addr:         cfg.Web.Listen,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s
}

func (s *Server) routes() {
	s.router.Use(s.requestID)
	s.router.Use(s.accessLog)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleConfig).Methods(http.MethodGet)
	api.HandleFunc("/performance", s.handlePerformance).Methods(http.MethodGet)
	api.HandleFunc("/risk", s.handleRisk).Methods(http.MethodGet)
	api.HandleFunc("/recommendations", s.handleOpenRecommendations).Methods(http.MethodGet)
	api.HandleFunc("/recommendations/close", s.handleClose).Methods(http.MethodPost)
	api.HandleFunc("/recommendations/{id}", s.handleRecommendation).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}", s.handleScan).Methods(http.MethodGet)
	api.HandleFunc("/scans/{id}/candidates", s.handleScanCandidates).Methods(http.MethodGet)
	api.HandleFunc("/presets", s.handlePresets).Methods(http.MethodGet)
	api.HandleFunc("/presets/performance", s.handlePresetPerformance).Methods(http.MethodGet)
	api.HandleFunc("/scan", s.handleRunScan).Methods(http.MethodPost)
	api.HandleFunc("/refresh", s.handleRefresh).Methods(http.MethodPost)
	api.HandleFunc("/watchlist", s.handleWatchlist).Methods(http.MethodGet)
	api.HandleFunc("/watchlist", s.handleWatchlistAdd).Methods(http.MethodPost)
	api.HandleFunc("/watchlist/{symbol}", s.handleWatchlistRemove).Methods(http.MethodDelete)
}

// ListenAndServe blocks until the server stops.
func (s *Server) ListenAndServe() error {
	s.log.Info().Str("addr", s.cfg.Web.Listen).Msg("dashboard API listening")
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ============================================================================
// Middleware
// ============================================================================

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxRequestID{}, id)))
	})
}

type ctxRequestID struct{}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		id, _ := r.Context().Value(ctxRequestID{}).(string)
		s.log.Info().
			Str("request_id", id).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	lastFetch, err := s.store.GetLastFetch(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	}
	if !lastFetch.IsZero() {
		resp["last_fetch"] = lastFetch.Format(time.RFC3339)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	watchlist, err := s.store.GetWatchlist(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tickers":        s.cfg.Scan.Tickers,
		"watchlist":      watchlist,
		"target_capital": s.cfg.Scan.TargetCapital,
		"thresholds":     s.cfg.Filters,
		"default_preset": s.matcher.Default(),
	})
}

func (s *Server) handlePerformance(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.PerformanceSummary(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"positions": rows})
}

func (s *Server) handleRisk(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.PerformanceSummary(r.Context(), time.Now().UTC())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, analytics.Compute(rows, s.cfg.Scan.RiskFreeRate))
}

func (s *Server) handleOpenRecommendations(w http.ResponseWriter, r *http.Request) {
	recs, err := s.store.GetOpenRecommendations(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"recommendations": recs})
}

func (s *Server) handleRecommendation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := s.store.GetRecommendation(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	snaps, err := s.store.GetSnapshots(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"recommendation": rec,
		"snapshots":      snaps,
	})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	scan, err := s.store.GetScan(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, scan)
}

func (s *Server) handleScanCandidates(w http.ResponseWriter, r *http.Request) {
	scanID := mux.Vars(r)["id"]
	if _, err := s.store.GetScan(r.Context(), scanID); err != nil {
		s.writeError(w, r, err)
		return
	}
	rows, err := s.store.GetCandidatesByScan(r.Context(), scanID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"candidates": rows})
}

func (s *Server) handlePresets(w http.ResponseWriter, r *http.Request) {
	names := s.matcher.Names()
	out := make(map[string]interface{}, len(names))
	for _, name := range names {
		p, err := s.matcher.Get(name)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		out[name] = p
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"default": s.matcher.Default(),
		"presets": out,
	})
}

func (s *Server) handlePresetPerformance(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.PresetPerformance(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"presets": stats})
}

func (s *Server) handleRunScan(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tickers []string `json:"tickers"`
		Preset  string   `json:"preset"`
	}
	if r.Body != nil {
		// An empty body means scan the configured tickers.
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	result, err := s.engine.Run(r.Context(), req.Tickers, req.Preset)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	resp := map[string]interface{}{
		"scan_id":         result.Scan.ScanID,
		"candidates":      len(result.Candidates),
		"recommendations": result.Recommendations,
		"skipped":         result.Skipped,
		"failed":          result.Failed,
	}
	// Zero candidates across all tickers is still a 200, with a signal.
	if len(result.Candidates) == 0 {
		resp["message"] = apperrors.ErrNoCandidates.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.RefreshOpen(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"refreshed": len(result.Refreshed),
		"expired":   result.Expired,
		"failed":    result.Failed,
	})
}

func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ticker     string  `json:"ticker"`
		Strike     float64 `json:"strike"`
		Expiration string  `json:"expiration"`
		Reason     string  `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, apperrors.NewValidationError("body", "", "invalid JSON"))
		return
	}
	exp, err := time.Parse("2006-01-02", req.Expiration)
	if err != nil {
		s.writeError(w, r, apperrors.NewValidationError("expiration", req.Expiration, "expected YYYY-MM-DD"))
		return
	}
	if req.Ticker == "" || req.Strike <= 0 {
		s.writeError(w, r, apperrors.NewValidationError("ticker/strike", req.Ticker, "required"))
		return
	}
	if err := s.store.CloseRecommendation(r.Context(), req.Ticker, req.Strike, exp, req.Reason); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	symbols, err := s.store.GetWatchlist(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"symbols": symbols})
}

func (s *Server) handleWatchlistAdd(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Symbol string `json:"symbol"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Symbol == "" {
		s.writeError(w, r, apperrors.NewValidationError("symbol", req.Symbol, "required"))
		return
	}
	if err := s.store.AddToWatchlist(r.Context(), req.Symbol); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]string{"status": "added"})
}

func (s *Server) handleWatchlistRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RemoveFromWatchlist(r.Context(), mux.Vars(r)["symbol"]); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// ============================================================================
// Response helpers
// ============================================================================

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	var ve *apperrors.ValidationError
	switch {
	case apperrors.As(err, &ve):
		status = http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrInvalidThresholds):
		status = http.StatusBadRequest
	case apperrors.Is(err, apperrors.ErrNotFound),
		apperrors.Is(err, apperrors.ErrScanNotFound),
		apperrors.Is(err, apperrors.ErrPresetNotFound):
		status = http.StatusNotFound
	case apperrors.Is(err, apperrors.ErrRecommendationClosed):
		status = http.StatusConflict
	case apperrors.Is(err, apperrors.ErrRateLimited):
		status = http.StatusTooManyRequests
	case apperrors.IsTransient(err):
		status = http.StatusBadGateway
	}
	if status >= 500 {
		id, _ := r.Context().Value(ctxRequestID{}).(string)
		s.log.Error().Str("request_id", id).Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}
