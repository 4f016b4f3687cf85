// Package app wires the components together and runs the service.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"geopulse/internal/analysis"
	"geopulse/internal/config"
	"geopulse/internal/gemini"
	"geopulse/internal/jobs"
	"geopulse/internal/logger"
	"geopulse/internal/ratelimit"
	"geopulse/internal/retry"
	"geopulse/internal/rss"
	"geopulse/internal/scheduler"
	"geopulse/internal/server"
	"geopulse/internal/storage"
)

// Run starts the service and blocks until shutdown.
func Run() error {
	logger.Init()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.Open(ctx, cfg.DatabaseURL, retry.Config{
		Attempts: cfg.RetryAttempts,
		Delay:    cfg.RetryDelay,
		Backoff:  true,
	})
	if err != nil {
		return err
	}
	defer store.Close()

	sources, err := rss.LoadSources(cfg.FeedsConfigPath)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	logger.Info("sources loaded", "count", len(sources))

	llm, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		return err
	}
	defer llm.Close()
	if cfg.GeminiAPIKey == "" {
		logger.Warn("GEMINI_API_KEY not set, analysis jobs will fail until configured")
	}

	registry := jobs.NewRegistry()
	runner := analysis.NewRunner(registry, llm, store, cfg.AnalysisWorkers, cfg.AnalysisMaxTokens)
	defer runner.Close()

	limiter := ratelimit.New(cfg.FetchRPS, cfg.FetchBurst)
	fetcher := rss.NewFetcher(sources, store, limiter, cfg.MaxPerSource)

	sched := scheduler.New(cfg.FetchInterval, fetcher.FetchAll)
	sched.Start(ctx)
	defer sched.Stop()

	srv := &http.Server{
		Addr: ":" + cfg.Port,
		Handler: server.New(server.Options{
			Articles:          store,
			Analyses:          store,
			Ingestor:          fetcher,
			Runner:            runner,
			Registry:          registry,
			AdminToken:        cfg.AdminToken,
			MaxCandidates:     cfg.MaxCandidates,
			MaxTotal:          cfg.MaxTotal,
			MaxPerPerspective: cfg.MaxPerPerspective,
			StatsCacheTTL:     cfg.StatsCacheTTL,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
