// Package analysis runs narrative analyses as background jobs: it
// builds the prompt, calls the LLM provider, parses the sectioned
// response and persists the result, reporting progress through the job
// registry.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"geopulse/internal/jobs"
	"geopulse/internal/logger"
	"geopulse/internal/metrics"
	"geopulse/internal/model"
)

// ErrNoKeywords rejects a submission with an empty keyword set before
// any job record is created.
var ErrNoKeywords = errors.New("at least one keyword is required")

// maxResultArticles caps how many selected articles are echoed back on
// the finished job record.
const maxResultArticles = 15

// Provider is the external LLM collaborator, prompt in, raw text out.
type Provider interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Store persists finished analyses.
type Store interface {
	InsertAnalysis(ctx context.Context, a *model.Analysis) error
}

type task struct {
	jobID    string
	keywords []string
	articles []model.Article
	prior    []model.Analysis
}

// Runner executes analysis jobs on a fixed-size worker pool. Submission
// never blocks on the LLM call; callers poll the registry for the
// outcome. Failed jobs are terminal, retrying means resubmitting.
type Runner struct {
	registry  *jobs.Registry
	provider  Provider
	store     Store
	maxTokens int

	queue  chan task
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewRunner starts workers goroutines consuming the job queue.
func NewRunner(registry *jobs.Registry, provider Provider, store Store, workers, maxTokens int) *Runner {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Runner{
		registry:  registry,
		provider:  provider,
		store:     store,
		maxTokens: maxTokens,
		queue:     make(chan task, workers*8),
		ctx:       ctx,
		cancel:    cancel,
	}
	for i := 0; i < workers; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Submit registers a pending job for the given selection and returns
// its id immediately. If the queue is saturated the job is created and
// failed in place so the caller still gets a pollable record.
func (r *Runner) Submit(keywords []string, articles []model.Article, prior []model.Analysis) (string, error) {
	if len(keywords) == 0 {
		return "", ErrNoKeywords
	}

	id := r.registry.Create()
	t := task{jobID: id, keywords: keywords, articles: articles, prior: prior}

	select {
	case r.queue <- t:
	default:
		r.registry.Fail(id, "analysis queue is full, try again later")
	}
	return id, nil
}

// Close stops the workers and waits for in-flight jobs to finish their
// current step.
func (r *Runner) Close() {
	r.cancel()
	r.wg.Wait()
}

func (r *Runner) worker() {
	defer r.wg.Done()
	for {
		select {
		case <-r.ctx.Done():
			return
		case t := <-r.queue:
			r.run(t)
		}
	}
}

func (r *Runner) run(t task) {
	r.registry.MarkRunning(t.jobID)
	started := time.Now()
	logger.Info("analysis job started", "job_id", t.jobID, "keywords", t.keywords, "articles", len(t.articles))

	prompt := BuildPrompt(t.keywords, t.articles, t.prior)

	text, err := r.provider.Complete(r.ctx, prompt, r.maxTokens)
	if err != nil {
		r.fail(t.jobID, err)
		return
	}

	sections := ParseSections(text)
	a := &model.Analysis{
		Keywords:     t.keywords,
		ArticleCount: len(t.articles),
		Summary:      sections.Summary,
		Narratives:   sections.Narratives,
		Divergences:  sections.Divergences,
		BlindSpots:   sections.BlindSpots,
		Outlook:      sections.Outlook,
		VideoScript:  sections.VideoScript,
		CreatedAt:    time.Now().UTC(),
	}
	if err := r.store.InsertAnalysis(r.ctx, a); err != nil {
		r.fail(t.jobID, fmt.Errorf("persist analysis: %w", err))
		return
	}

	echoed := t.articles
	if len(echoed) > maxResultArticles {
		echoed = echoed[:maxResultArticles]
	}
	labels := make(map[model.Perspective]string)
	for _, art := range t.articles {
		labels[art.Perspective] = art.Perspective.Label()
	}

	r.registry.Complete(t.jobID, &model.AnalysisResult{
		Keywords:          t.keywords,
		ArticleCount:      len(t.articles),
		Articles:          echoed,
		PerspectiveLabels: labels,
		Analysis:          *a,
		HadHistory:        len(t.prior) > 0,
	})
	metrics.Global.IncrementAnalysesCompleted()
	logger.Info("analysis job done", "job_id", t.jobID, "analysis_id", a.ID, "took", time.Since(started).String())
}

func (r *Runner) fail(jobID string, err error) {
	r.registry.Fail(jobID, err.Error())
	metrics.Global.IncrementAnalysesFailed()
	logger.Error("analysis job failed", "job_id", jobID, "error", err)
}
