// Package config loads runtime settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	// HTTP server
	Port       string
	AdminToken string // gates analysis submission and history endpoints

	// Database
	DatabaseURL   string
	RetryAttempts int
	RetryDelay    time.Duration

	// Gemini
	GeminiAPIKey      string
	GeminiModel       string
	AnalysisMaxTokens int

	// RSS ingestion
	FeedsConfigPath string
	FetchInterval   time.Duration
	MaxPerSource    int // entries taken per feed per pass
	FetchRPS        float64
	FetchBurst      int

	// Balanced selection
	MaxCandidates     int // candidate pool size queried per analysis request
	MaxTotal          int // selection size cap
	MaxPerPerspective int // fill-phase cap per perspective

	// Analysis jobs
	AnalysisWorkers int

	// Misc
	StatsCacheTTL time.Duration
	Debug         bool
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:              getEnvOrDefault("PORT", "8080"),
		RetryAttempts:     getEnvIntOrDefault("DB_RETRY_ATTEMPTS", 3),
		RetryDelay:        time.Duration(getEnvIntOrDefault("DB_RETRY_DELAY_SECONDS", 2)) * time.Second,
		GeminiModel:       getEnvOrDefault("GEMINI_MODEL", "gemini-1.5-flash"),
		AnalysisMaxTokens: getEnvIntOrDefault("ANALYSIS_MAX_TOKENS", 4096),
		FeedsConfigPath:   getEnvOrDefault("FEEDS_CONFIG_PATH", "configs/feeds.yaml"),
		FetchInterval:     time.Duration(getEnvIntOrDefault("FETCH_INTERVAL_MINUTES", 60)) * time.Minute,
		MaxPerSource:      getEnvIntOrDefault("MAX_PER_SOURCE", 30),
		FetchRPS:          1,
		FetchBurst:        2,
		MaxCandidates:     getEnvIntOrDefault("MAX_CANDIDATES", 50),
		MaxTotal:          getEnvIntOrDefault("MAX_TOTAL", 12),
		MaxPerPerspective: getEnvIntOrDefault("MAX_PER_PERSPECTIVE", 4),
		AnalysisWorkers:   getEnvIntOrDefault("ANALYSIS_WORKERS", 2),
		StatsCacheTTL:     time.Duration(getEnvIntOrDefault("STATS_CACHE_TTL_SECONDS", 30)) * time.Second,
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.AdminToken = os.Getenv("ADMIN_TOKEN")
	cfg.GeminiAPIKey = os.Getenv("GEMINI_API_KEY")

	if v := os.Getenv("FETCH_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.FetchRPS = f
		}
	}
	if debug := os.Getenv("DEBUG"); debug == "true" {
		cfg.Debug = true
	}

	return cfg, cfg.Validate()
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.AdminToken == "" {
		return fmt.Errorf("ADMIN_TOKEN is required")
	}
	if c.MaxTotal <= 0 {
		return fmt.Errorf("MAX_TOTAL must be positive")
	}
	if c.MaxPerPerspective <= 0 {
		return fmt.Errorf("MAX_PER_PERSPECTIVE must be positive")
	}
	return nil
}
