// Package rss pulls the configured feeds, filters entries for topical
// relevance, classifies them and hands them to the article store.
package rss

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"geopulse/internal/classify"
	"geopulse/internal/logger"
	"geopulse/internal/metrics"
	"geopulse/internal/model"
	"geopulse/internal/ratelimit"
)

// ErrFetchInProgress is returned when a manual refresh overlaps a pass
// that is already running.
var ErrFetchInProgress = errors.New("fetch already in progress")

// summaryMaxRunes caps stored summaries.
const summaryMaxRunes = 500

// ArticleStore is the persistence the fetcher needs: idempotent
// insert-by-link.
type ArticleStore interface {
	InsertArticle(ctx context.Context, a model.Article) (bool, error)
}

// Fetcher runs ingestion passes over the configured sources, at most
// one pass at a time.
type Fetcher struct {
	sources      []Source
	store        ArticleStore
	parser       *gofeed.Parser
	limiter      *ratelimit.Limiter
	maxPerSource int

	mu chan struct{} // 1-slot semaphore guarding the single pass
}

func NewFetcher(sources []Source, store ArticleStore, limiter *ratelimit.Limiter, maxPerSource int) *Fetcher {
	if maxPerSource <= 0 {
		maxPerSource = 30
	}
	return &Fetcher{
		sources:      sources,
		store:        store,
		parser:       gofeed.NewParser(),
		limiter:      limiter,
		maxPerSource: maxPerSource,
		mu:           make(chan struct{}, 1),
	}
}

// Sources returns the configured source names in pass order.
func (f *Fetcher) Sources() []string {
	names := make([]string, len(f.sources))
	for i, src := range f.sources {
		names[i] = src.Name
	}
	return names
}

// FetchAll runs one ingestion pass synchronously. Feeds are processed
// in configured order; a failing source is logged and skipped, never
// aborting the pass. Returns ErrFetchInProgress when a pass is already
// underway.
func (f *Fetcher) FetchAll(ctx context.Context) error {
	select {
	case f.mu <- struct{}{}:
	default:
		return ErrFetchInProgress
	}
	defer func() { <-f.mu }()

	start := time.Now()
	saved := 0

	for _, src := range f.sources {
		if err := ctx.Err(); err != nil {
			return err
		}
		saved += f.fetchSource(ctx, src)
	}

	metrics.Global.RecordFetch(time.Since(start))
	logger.Info("ingestion pass done", "saved", saved, "sources", len(f.sources), "took", time.Since(start).String())
	return nil
}

// Trigger starts a pass in the background, reporting synchronously
// whether it could be started. The passed ctx only gates the start;
// the pass itself runs on a detached context so an HTTP request ending
// does not cancel ingestion.
func (f *Fetcher) Trigger(ctx context.Context) error {
	select {
	case f.mu <- struct{}{}:
	default:
		return ErrFetchInProgress
	}

	go func() {
		defer func() { <-f.mu }()
		start := time.Now()
		saved := 0
		bg := context.WithoutCancel(ctx)
		for _, src := range f.sources {
			saved += f.fetchSource(bg, src)
		}
		metrics.Global.RecordFetch(time.Since(start))
		logger.Info("manual ingestion pass done", "saved", saved, "took", time.Since(start).String())
	}()
	return nil
}

// fetchSource ingests one feed and returns how many articles it saved.
// All failures are soft: logged, counted, swallowed.
func (f *Fetcher) fetchSource(ctx context.Context, src Source) int {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, src.URL); err != nil {
			return 0
		}
	}

	feed, err := f.parser.ParseURLWithContext(src.URL, ctx)
	if err != nil {
		metrics.Global.IncrementFeedErrors()
		logger.Warn("feed fetch failed", "source", src.Name, "error", err)
		return 0
	}

	items := feed.Items
	if len(items) > f.maxPerSource {
		items = items[:f.maxPerSource]
	}

	saved := 0
	for _, item := range items {
		metrics.Global.IncrementEntriesSeen()

		title := strings.TrimSpace(item.Title)
		link := strings.TrimSpace(item.Link)
		if title == "" || link == "" {
			continue
		}

		summary := truncateSummary(StripHTML(item.Description))
		if !classify.Relevant(title, summary) {
			metrics.Global.IncrementIrrelevantSkipped()
			continue
		}

		published := item.Published
		if published == "" && item.PublishedParsed != nil {
			published = item.PublishedParsed.Format(time.RFC3339)
		}
		if published == "" {
			published = time.Now().UTC().Format(time.RFC3339)
		}

		article := model.Article{
			Source:      src.Name,
			Title:       title,
			Link:        link,
			Summary:     summary,
			Published:   published,
			Category:    classify.Category(title + " " + summary),
			Perspective: src.Perspective,
			FetchedAt:   time.Now().UTC(),
		}

		inserted, err := f.store.InsertArticle(ctx, article)
		if err != nil {
			// A failed write must not abort the batch.
			logger.Warn("article insert failed", "source", src.Name, "link", link, "error", err)
			continue
		}
		if !inserted {
			metrics.Global.IncrementDuplicatesSkipped()
			continue
		}
		metrics.Global.IncrementArticlesSaved()
		saved++
	}

	logger.Debug("source ingested", "source", src.Name, "entries", len(items), "saved", saved)
	return saved
}

var tagRe = regexp.MustCompile(`<[^>]+>`)

// StripHTML flattens feed summary HTML to plain text, collapsing
// whitespace. goquery handles entity decoding; the regexp is the
// fallback for snippets it cannot parse.
func StripHTML(s string) string {
	s = strings.TrimSpace(s)
	if s == "" || !strings.Contains(s, "<") {
		return s
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(tagRe.ReplaceAllString(s, " ")), " ")
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func truncateSummary(s string) string {
	if utf8.RuneCountInString(s) <= summaryMaxRunes {
		return s
	}
	return string([]rune(s)[:summaryMaxRunes])
}
