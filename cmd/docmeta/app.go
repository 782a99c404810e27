package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/jonathan/docmeta/internal/cache"
	"github.com/jonathan/docmeta/internal/config"
	"github.com/jonathan/docmeta/internal/db"
	"github.com/jonathan/docmeta/internal/fetch"
	"github.com/jonathan/docmeta/internal/ingestion"
	"github.com/jonathan/docmeta/internal/llm"
	"github.com/jonathan/docmeta/internal/observability"
	"github.com/jonathan/docmeta/internal/pipeline"
	"github.com/jonathan/docmeta/internal/sheets"
	"github.com/jonathan/docmeta/internal/templates"
	"github.com/jonathan/docmeta/internal/tokens"
)

// app holds the services one command needs.
type app struct {
	cfg       *config.Config
	logger    zerolog.Logger
	templates *templates.Store
	results   db.Store
	sheets    *sheets.Writer
	processor *pipeline.Processor

	closers []func() error
}

// loadConfig reads the environment and the --config file, then validates.
func loadConfig(requireLLM bool) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(requireLLM); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(cfg *config.Config) zerolog.Logger {
	return observability.NewLogger(observability.LogConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
}

// newTemplateApp wires only the template store, for commands that never
// call the model.
func newTemplateApp(cfg *config.Config) (*app, error) {
	logger := newLogger(cfg)
	store, err := templates.NewStore(cfg.TemplatesDir, logger)
	if err != nil {
		return nil, err
	}
	return &app{cfg: cfg, logger: logger, templates: store}, nil
}

// newApp wires every service from cfg. Callers must call Close.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a, err := newTemplateApp(cfg)
	if err != nil {
		return nil, err
	}
	if err := a.wire(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) wire(ctx context.Context) error {
	cfg := a.cfg
	fetcher := a.newFetcher(ctx)

	client, err := llm.NewClient(ctx, llmConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to create LLM client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	responses, err := a.newCache(ctx)
	if err != nil {
		return err
	}

	a.results, err = db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	a.closers = append(a.closers, a.results.Close)

	a.sheets = sheets.NewWriter(cfg.OutputDir, a.logger)

	a.processor, err = pipeline.New(pipeline.Options{
		Templates: a.templates,
		Source:    fetcher,
		Extract:   ingestion.PDFText,
		LLM:       client,
		Tracker: tokens.NewTracker(cfg.TokensPerMinuteLimit, cfg.DocumentTokenThreshold,
			tokens.WithLogger(a.logger)),
		Cache:    responses,
		CacheTTL: time.Duration(cfg.CacheTTL),
		Store:    a.results,
		Sheets:   a.sheets,
		Workers:  cfg.Workers,
		TempDir:  cfg.TempDir,
		Logger:   a.logger,
	})
	if err != nil {
		return err
	}

	a.logger.Debug().
		Str("provider", cfg.LLMProvider).
		Str("model", client.Model()).
		Int("workers", cfg.Workers).
		Bool("postgres", db.IsPostgres(cfg.DatabaseURL)).
		Msg("services ready")
	return nil
}

// newFetcher enables drive sources when Graph credentials are configured
// and GCS sources when a storage client can be created.
func (a *app) newFetcher(ctx context.Context) *fetch.Fetcher {
	fc := fetch.Config{Logger: a.logger}
	if a.cfg.GraphConfigured() {
		fc.GraphTokens = fetch.NewGraphTokenSource(ctx, fetch.GraphCredentials{
			TenantID:     a.cfg.GraphTenantID,
			ClientID:     a.cfg.GraphClientID,
			ClientSecret: a.cfg.GraphClientSecret,
		})
	}

	objects, err := fetch.NewGCSStore(ctx)
	if err != nil {
		a.logger.Warn().Err(err).Msg("GCS sources disabled")
	} else {
		fc.Objects = objects
		a.closers = append(a.closers, objects.Close)
	}
	return fetch.New(fc)
}

// newCache returns nil when caching is disabled, a Redis client when
// REDIS_ADDR is set, and an in-memory cache otherwise.
func (a *app) newCache(ctx context.Context) (cache.Client, error) {
	if a.cfg.CacheDisabled || a.cfg.CacheTTL <= 0 {
		return nil, nil
	}
	if a.cfg.RedisAddr == "" {
		return cache.NewMemoryClient(0), nil
	}
	rc, err := cache.NewRedisClient(ctx, cache.RedisConfig{
		Addr:     a.cfg.RedisAddr,
		Password: a.cfg.RedisPassword,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rc.Close)
	return rc, nil
}

func llmConfig(cfg *config.Config) *llm.Config {
	var lc *llm.Config
	if cfg.LLMProvider == config.ProviderVertex {
		lc = llm.DefaultVertexConfig(cfg.VertexProject, cfg.VertexRegion)
	} else {
		lc = llm.DefaultGeminiConfig()
		lc.APIKey = cfg.GeminiAPIKey
	}
	if cfg.Model != "" {
		lc = lc.WithModel(llm.TierStandard, cfg.Model)
	}
	lc.Timeout = time.Duration(cfg.LLMTimeout)
	return lc
}

// Close releases every opened resource in reverse order.
func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
