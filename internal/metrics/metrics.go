// Package metrics keeps process-wide counters for ingestion and
// analysis, exposed through the stats and health endpoints.
package metrics

import (
	"sync"
	"time"
)

type Metrics struct {
	mu sync.RWMutex

	// Ingestion counters
	EntriesSeen       int64
	ArticlesSaved     int64
	DuplicatesSkipped int64
	IrrelevantSkipped int64
	FeedErrors        int64

	// Analysis counters
	AnalysesCompleted int64
	AnalysesFailed    int64

	// Timings
	LastFetchDuration time.Duration
	LastFetchTime     time.Time

	// Status
	LastErrorTime time.Time
	LastError     string
	IsHealthy     bool
}

var Global = &Metrics{IsHealthy: true}

func (m *Metrics) IncrementEntriesSeen() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.EntriesSeen++
}

func (m *Metrics) IncrementArticlesSaved() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ArticlesSaved++
}

func (m *Metrics) IncrementDuplicatesSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DuplicatesSkipped++
}

func (m *Metrics) IncrementIrrelevantSkipped() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.IrrelevantSkipped++
}

func (m *Metrics) IncrementFeedErrors() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FeedErrors++
}

func (m *Metrics) IncrementAnalysesCompleted() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnalysesCompleted++
}

func (m *Metrics) IncrementAnalysesFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AnalysesFailed++
}

// RecordFetch marks a completed ingestion pass.
func (m *Metrics) RecordFetch(duration time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastFetchDuration = duration
	m.LastFetchTime = time.Now()
	m.IsHealthy = true
}

func (m *Metrics) SetError(err string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LastError = err
	m.LastErrorTime = time.Now()
	m.IsHealthy = false
}

func (m *Metrics) GetStats() map[string]interface{} {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return map[string]interface{}{
		"entries_seen":           m.EntriesSeen,
		"articles_saved":         m.ArticlesSaved,
		"duplicates_skipped":     m.DuplicatesSkipped,
		"irrelevant_skipped":     m.IrrelevantSkipped,
		"feed_errors":            m.FeedErrors,
		"analyses_completed":     m.AnalysesCompleted,
		"analyses_failed":        m.AnalysesFailed,
		"last_fetch_duration_ms": m.LastFetchDuration.Milliseconds(),
		"last_fetch_time":        m.LastFetchTime.Format(time.RFC3339),
		"last_error":             m.LastError,
		"last_error_time":        m.LastErrorTime.Format(time.RFC3339),
		"is_healthy":             m.IsHealthy,
	}
}
