// Package server exposes the JSON API: article listing and stats,
// manual ingestion trigger, analysis submission with job polling, and
// the analysis history.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"geopulse/internal/analysis"
	"geopulse/internal/balance"
	"geopulse/internal/classify"
	"geopulse/internal/jobs"
	"geopulse/internal/logger"
	"geopulse/internal/metrics"
	"geopulse/internal/model"
	"geopulse/internal/rss"
	"geopulse/internal/storage"
)

const statsCacheKey = "stats"

// ArticleStore is the read path the API needs from article persistence.
type ArticleStore interface {
	Articles(ctx context.Context, f storage.ArticleFilter) ([]model.Article, error)
	SearchArticles(ctx context.Context, keywords []string, limit int) ([]model.Article, error)
	Stats(ctx context.Context) (storage.Stats, error)
}

// AnalysisStore is the read path over persisted analyses.
type AnalysisStore interface {
	Analysis(ctx context.Context, id int64) (model.Analysis, error)
	RecentAnalyses(ctx context.Context, limit int) ([]model.Analysis, error)
	RecentAnalysesByKeywords(ctx context.Context, keywords []string, limit int) ([]model.Analysis, error)
}

// Ingestor triggers a background ingestion pass.
type Ingestor interface {
	Trigger(ctx context.Context) error
	Sources() []string
}

// Submitter accepts analysis jobs.
type Submitter interface {
	Submit(keywords []string, articles []model.Article, prior []model.Analysis) (string, error)
}

type Options struct {
	Articles   ArticleStore
	Analyses   AnalysisStore
	Ingestor   Ingestor
	Runner     Submitter
	Registry   *jobs.Registry
	AdminToken string

	MaxCandidates     int
	MaxTotal          int
	MaxPerPerspective int
	StatsCacheTTL     time.Duration
}

type Server struct {
	opts  Options
	cache *gocache.Cache
	mux   *http.ServeMux
}

func New(opts Options) *Server {
	ttl := opts.StatsCacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	s := &Server{
		opts:  opts,
		cache: gocache.New(ttl, 5*time.Minute),
		mux:   http.NewServeMux(),
	}

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/news", s.handleNews)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/categories", s.handleCategories)
	s.mux.HandleFunc("GET /api/sources", s.handleSources)
	s.mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /api/analyze", s.requireAdmin(s.handleAnalyze))
	s.mux.HandleFunc("GET /api/analyze/status/{id}", s.handleJobStatus)
	s.mux.HandleFunc("GET /api/analyses", s.requireAdmin(s.handleAnalyses))
	s.mux.HandleFunc("GET /api/analyses/{id}", s.requireAdmin(s.handleAnalysisByID))

	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// requireAdmin gates an endpoint behind the shared admin token, passed
// either as a bearer token or in X-Admin-Token.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := r.Header.Get("X-Admin-Token")
		if token == "" {
			token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if s.opts.AdminToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.opts.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "admin access required")
			return
		}
		next(w, r)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := metrics.Global.GetStats()
	status, code := "ok", http.StatusOK
	if healthy, _ := stats["is_healthy"].(bool); !healthy {
		status, code = "error", http.StatusServiceUnavailable
	}
	writeJSONStatus(w, code, map[string]interface{}{
		"status":     status,
		"last_fetch": stats["last_fetch_time"],
		"last_error": stats["last_error"],
	})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := storage.ArticleFilter{
		Limit:  queryInt(q.Get("limit"), 60),
		Offset: queryInt(q.Get("offset"), 0),
	}
	if c := q.Get("category"); c != "" && c != "all" {
		filter.Category = c
	}
	if src := q.Get("source"); src != "" && src != "all" {
		filter.Source = src
	}

	articles, err := s.opts.Articles.Articles(r.Context(), filter)
	if err != nil {
		logger.Error("list articles failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if articles == nil {
		articles = []model.Article{}
	}
	writeJSON(w, articles)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if cached, ok := s.cache.Get(statsCacheKey); ok {
		writeJSON(w, cached)
		return
	}

	stats, err := s.opts.Articles.Stats(r.Context())
	if err != nil {
		logger.Error("stats query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "stats query failed")
		return
	}

	payload := map[string]interface{}{
		"total":       stats.Total,
		"by_category": stats.ByCategory,
		"by_source":   stats.BySource,
		"last_update": stats.LastFetch,
		"process":     metrics.Global.GetStats(),
	}
	s.cache.Set(statsCacheKey, payload, gocache.DefaultExpiration)
	writeJSON(w, payload)
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, classify.Categories())
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.opts.Ingestor.Sources())
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	err := s.opts.Ingestor.Trigger(r.Context())
	if errors.Is(err, rss.ErrFetchInProgress) {
		writeError(w, http.StatusConflict, "refresh already running")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "could not start refresh")
		return
	}
	writeJSON(w, map[string]string{"status": "refresh started"})
}

type analyzeRequest struct {
	Keywords []string `json:"keywords"`
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	keywords := normalizeKeywords(req.Keywords)
	if len(keywords) == 0 {
		writeError(w, http.StatusBadRequest, "keywords required")
		return
	}

	candidates, err := s.opts.Articles.SearchArticles(r.Context(), keywords, s.opts.MaxCandidates)
	if err != nil {
		logger.Error("candidate search failed", "error", err)
		writeError(w, http.StatusInternalServerError, "candidate search failed")
		return
	}

	selected := balance.Select(candidates, s.opts.MaxTotal, s.opts.MaxPerPerspective)
	if len(selected) == 0 {
		writeError(w, http.StatusNotFound, "no matching articles for keywords")
		return
	}

	// Historical context is best-effort: a lookup failure degrades the
	// analysis, it does not block it.
	prior, err := s.opts.Analyses.RecentAnalysesByKeywords(r.Context(), keywords, 2)
	if err != nil {
		logger.Warn("prior analyses lookup failed", "error", err)
		prior = nil
	}

	jobID, err := s.opts.Runner.Submit(keywords, selected, prior)
	if err != nil {
		if errors.Is(err, analysis.ErrNoKeywords) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "could not submit analysis")
		return
	}

	writeJSONStatus(w, http.StatusAccepted, map[string]interface{}{
		"job_id":            jobID,
		"status":            jobs.StatusPending,
		"articles_selected": len(selected),
	})
}

func (s *Server) handleJobStatus(w http.ResponseWriter, r *http.Request) {
	job, err := s.opts.Registry.Get(r.PathValue("id"))
	if errors.Is(err, jobs.ErrNotFound) {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	writeJSON(w, job)
}

func (s *Server) handleAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r.URL.Query().Get("limit"), 20)
	analyses, err := s.opts.Analyses.RecentAnalyses(r.Context(), limit)
	if err != nil {
		logger.Error("list analyses failed", "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if analyses == nil {
		analyses = []model.Analysis{}
	}
	writeJSON(w, analyses)
}

func (s *Server) handleAnalysisByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid analysis id")
		return
	}
	a, err := s.opts.Analyses.Analysis(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "analysis not found")
		return
	}
	if err != nil {
		logger.Error("get analysis failed", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, a)
}

// normalizeKeywords lower-cases, trims and deduplicates, dropping
// empties.
func normalizeKeywords(raw []string) []string {
	seen := make(map[string]struct{}, len(raw))
	var keywords []string
	for _, kw := range raw {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw == "" {
			continue
		}
		if _, dup := seen[kw]; dup {
			continue
		}
		seen[kw] = struct{}{}
		keywords = append(keywords, kw)
	}
	return keywords
}

func queryInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response failed", "error", err)
	}
}

func writeJSONStatus(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("encode response failed", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
