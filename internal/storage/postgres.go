// Package storage persists articles and analyses in PostgreSQL.
// Articles are append-only and deduplicated by link; analyses are
// append-only and immutable.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"geopulse/internal/logger"
	"geopulse/internal/model"
	"geopulse/internal/retry"
)

// ErrNotFound is returned for lookups of unknown analysis ids.
var ErrNotFound = errors.New("not found")

type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL, pinging with bounded retry so a service
// racing its database at startup settles instead of crashing, and
// initializes the schema.
func Open(ctx context.Context, dsn string, retryCfg retry.Config) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := retry.Do(ctx, retryCfg, func() error { return db.PingContext(ctx) }); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}

	logger.Info("database connected")
	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS articles (
		id SERIAL PRIMARY KEY,
		source TEXT NOT NULL,
		title TEXT NOT NULL,
		link TEXT UNIQUE NOT NULL,
		summary TEXT,
		published TEXT,
		category VARCHAR(50),
		perspective VARCHAR(50),
		fetched_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_articles_fetched_at ON articles(fetched_at);
	CREATE INDEX IF NOT EXISTS idx_articles_category ON articles(category);
	CREATE INDEX IF NOT EXISTS idx_articles_source ON articles(source);

	CREATE TABLE IF NOT EXISTS analyses (
		id SERIAL PRIMARY KEY,
		keywords TEXT NOT NULL,
		article_count INTEGER NOT NULL,
		summary TEXT,
		narratives TEXT,
		divergences TEXT,
		blind_spots TEXT,
		outlook TEXT,
		video_script TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_analyses_created_at ON analyses(created_at);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// InsertArticle writes the article unless its link is already present.
// The first inserted version wins; it reports whether a row was
// actually written.
func (s *Store) InsertArticle(ctx context.Context, a model.Article) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO articles (source, title, link, summary, published, category, perspective, fetched_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (link) DO NOTHING
	`, a.Source, a.Title, a.Link, a.Summary, a.Published, a.Category, string(a.Perspective), a.FetchedAt)
	if err != nil {
		return false, fmt.Errorf("insert article: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ArticleFilter narrows the article listing; zero values mean "all".
type ArticleFilter struct {
	Category string
	Source   string
	Limit    int
	Offset   int
}

// Articles lists stored articles newest-fetched first.
func (s *Store) Articles(ctx context.Context, f ArticleFilter) ([]model.Article, error) {
	if f.Limit <= 0 {
		f.Limit = 60
	}

	query := `SELECT source, title, link, summary, published, category, perspective, fetched_at FROM articles`
	var conds []string
	var args []interface{}
	if f.Category != "" {
		args = append(args, f.Category)
		conds = append(conds, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.Source != "" {
		args = append(args, f.Source)
		conds = append(conds, fmt.Sprintf("source = $%d", len(args)))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(" ORDER BY fetched_at DESC LIMIT $%d", len(args))
	args = append(args, f.Offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// SearchArticles returns the candidate pool for a keyword set: articles
// whose title or summary contains any keyword, newest-fetched first.
func (s *Store) SearchArticles(ctx context.Context, keywords []string, limit int) ([]model.Article, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	var conds []string
	var args []interface{}
	for _, kw := range keywords {
		args = append(args, "%"+strings.ToLower(kw)+"%")
		conds = append(conds, fmt.Sprintf("LOWER(title || ' ' || COALESCE(summary, '')) LIKE $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT source, title, link, summary, published, category, perspective, fetched_at
		FROM articles
		WHERE %s
		ORDER BY fetched_at DESC
		LIMIT $%d
	`, strings.Join(conds, " OR "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

func scanArticles(rows *sql.Rows) ([]model.Article, error) {
	var articles []model.Article
	for rows.Next() {
		var a model.Article
		var perspective string
		if err := rows.Scan(&a.Source, &a.Title, &a.Link, &a.Summary, &a.Published, &a.Category, &perspective, &a.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		a.Perspective = model.Perspective(perspective)
		articles = append(articles, a)
	}
	return articles, rows.Err()
}

// Stats are the aggregate counts served by the stats endpoint.
type Stats struct {
	Total      int            `json:"total"`
	ByCategory map[string]int `json:"by_category"`
	BySource   map[string]int `json:"by_source"`
	LastFetch  *time.Time     `json:"last_update"`
}

func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{
		ByCategory: make(map[string]int),
		BySource:   make(map[string]int),
	}

	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM articles`).Scan(&stats.Total); err != nil {
		return stats, fmt.Errorf("count articles: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT category, COUNT(*) FROM articles GROUP BY category ORDER BY COUNT(*) DESC`)
	if err != nil {
		return stats, fmt.Errorf("count by category: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var cat string
		var count int
		if err := rows.Scan(&cat, &count); err != nil {
			return stats, err
		}
		stats.ByCategory[cat] = count
	}
	if err := rows.Err(); err != nil {
		return stats, err
	}

	srcRows, err := s.db.QueryContext(ctx, `SELECT source, COUNT(*) FROM articles GROUP BY source ORDER BY COUNT(*) DESC`)
	if err != nil {
		return stats, fmt.Errorf("count by source: %w", err)
	}
	defer srcRows.Close()
	for srcRows.Next() {
		var src string
		var count int
		if err := srcRows.Scan(&src, &count); err != nil {
			return stats, err
		}
		stats.BySource[src] = count
	}
	if err := srcRows.Err(); err != nil {
		return stats, err
	}

	var last sql.NullTime
	if err := s.db.QueryRowContext(ctx, `SELECT MAX(fetched_at) FROM articles`).Scan(&last); err != nil {
		return stats, fmt.Errorf("last fetch time: %w", err)
	}
	if last.Valid {
		stats.LastFetch = &last.Time
	}

	return stats, nil
}

// InsertAnalysis appends a finished analysis, filling in its assigned
// id and creation time.
func (s *Store) InsertAnalysis(ctx context.Context, a *model.Analysis) error {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO analyses (keywords, article_count, summary, narratives, divergences, blind_spots, outlook, video_script, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at
	`, joinKeywords(a.Keywords), a.ArticleCount, a.Summary, a.Narratives, a.Divergences, a.BlindSpots, a.Outlook, a.VideoScript, a.CreatedAt).
		Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert analysis: %w", err)
	}
	return nil
}

// Analysis fetches one analysis by id.
func (s *Store) Analysis(ctx context.Context, id int64) (model.Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, keywords, article_count, summary, narratives, divergences, blind_spots, outlook, video_script, created_at
		FROM analyses WHERE id = $1
	`, id)
	a, err := scanAnalysis(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Analysis{}, ErrNotFound
	}
	return a, err
}

// RecentAnalyses lists the newest analyses.
func (s *Store) RecentAnalyses(ctx context.Context, limit int) ([]model.Analysis, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, keywords, article_count, summary, narratives, divergences, blind_spots, outlook, video_script, created_at
		FROM analyses ORDER BY created_at DESC LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

// RecentAnalysesByKeywords returns the newest analyses whose stored
// keyword list contains any of the given keywords as a substring. Used
// to thread historical context into new analyses on the same topic.
func (s *Store) RecentAnalysesByKeywords(ctx context.Context, keywords []string, limit int) ([]model.Analysis, error) {
	if len(keywords) == 0 {
		return nil, nil
	}
	if limit <= 0 {
		limit = 2
	}

	var conds []string
	var args []interface{}
	for _, kw := range keywords {
		args = append(args, "%"+strings.ToLower(kw)+"%")
		conds = append(conds, fmt.Sprintf("LOWER(keywords) LIKE $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT id, keywords, article_count, summary, narratives, divergences, blind_spots, outlook, video_script, created_at
		FROM analyses
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d
	`, strings.Join(conds, " OR "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("search analyses: %w", err)
	}
	defer rows.Close()
	return collectAnalyses(rows)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row rowScanner) (model.Analysis, error) {
	var a model.Analysis
	var kw string
	err := row.Scan(&a.ID, &kw, &a.ArticleCount, &a.Summary, &a.Narratives, &a.Divergences, &a.BlindSpots, &a.Outlook, &a.VideoScript, &a.CreatedAt)
	if err != nil {
		return a, err
	}
	a.Keywords = splitKeywords(kw)
	return a, nil
}

func collectAnalyses(rows *sql.Rows) ([]model.Analysis, error) {
	var analyses []model.Analysis
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		analyses = append(analyses, a)
	}
	return analyses, rows.Err()
}

// Keywords are stored comma-joined in a single text column.
func joinKeywords(keywords []string) string {
	return strings.Join(keywords, ",")
}

func splitKeywords(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	keywords := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			keywords = append(keywords, p)
		}
	}
	return keywords
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
