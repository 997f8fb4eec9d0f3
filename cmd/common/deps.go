// Package common provides shared utilities for command implementations.
package common

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/viper"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/awesome"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/fetcher"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/generator"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/llm"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sandbox"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sources"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

// ErrAPIKeyRequired is returned by commands that call the LLM without a key.
var ErrAPIKeyRequired = errors.New("ANTHROPIC_API_KEY is required for crawler generation")

// CommandDeps holds the dependencies shared by all commands.
type CommandDeps struct {
	Config   *config.Config
	Logger   logger.Logger
	Registry *prometheus.Registry
	Metrics  *metrics.Metrics
	Store    *storage.Store
	Sources  *sources.Manager
	Executor *sandbox.Executor
	Crawler  *crawler.Service
}

// NewCommandDeps loads configuration, creates the logger and wires the
// storage, generator, sandbox and crawl service.
func NewCommandDeps(ctx context.Context) (*CommandDeps, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	log = log.With(logger.String("service", cfg.App.Name))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(registry)

	store, err := storage.Open(ctx, cfg.Storage, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	pageFetcher := fetcher.New(fetcher.Config{
		Timeout:          cfg.Fetcher.Timeout,
		UserAgent:        cfg.Fetcher.UserAgent,
		MaxBodyBytes:     cfg.Fetcher.MaxBodyBytes,
		GitHubToken:      cfg.Fetcher.GitHubToken,
		GitHubRawBaseURL: cfg.Fetcher.GitHubRawBaseURL,
	}, nil, log)

	gateway := llm.NewResilientGateway(
		llm.NewAnthropicGateway(llm.AnthropicConfig{
			APIKey:      cfg.LLM.APIKey,
			BaseURL:     cfg.LLM.BaseURL,
			Model:       cfg.LLM.Model,
			Temperature: cfg.LLM.Temperature,
			MaxTokens:   cfg.LLM.MaxTokens,
			Timeout:     cfg.LLM.Timeout,
		}, log, m),
		llm.ResilienceConfig{MaxAttempts: cfg.LLM.MaxRetries + 1},
		log, m,
	)

	pipeline := generator.NewPipeline(pageFetcher, gateway, generator.Config{
		HTMLFetchChars:   cfg.Generator.HTMLFetchChars,
		HTMLPreviewChars: cfg.Generator.HTMLPreviewChars,
	}, log, m)

	executor := sandbox.New(sandbox.Config{
		Timeout:         cfg.Sandbox.Timeout,
		MaxHTMLBytes:    cfg.Sandbox.MaxHTMLBytes,
		CallStackSize:   cfg.Sandbox.CallStackSize,
		RegistryMaxSize: cfg.Sandbox.RegistryMaxSize,
		MaxMemoryBytes:  cfg.Sandbox.MaxMemoryBytes,
	}, log, m)

	manager := sources.NewManager(store.Sources, log)

	service := crawler.NewService(crawler.Deps{
		Sources:     manager,
		Tools:       store.Tools,
		Strategies:  store.Strategies,
		Results:     store.CrawlResults,
		Generator:   pipeline,
		Runner:      executor,
		Fetcher:     pageFetcher,
		Awesome:     awesome.NewCrawler(pageFetcher, log),
		Logger:      log,
		Metrics:     m,
		Concurrency: cfg.Crawler.Concurrency,
		StaleAfter:  cfg.Crawler.StaleAfter,
	})

	return &CommandDeps{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Metrics:  m,
		Store:    store,
		Sources:  manager,
		Executor: executor,
		Crawler:  service,
	}, nil
}

// RequireLLM fails fast when generation is needed but no API key is configured.
func (d *CommandDeps) RequireLLM() error {
	if d.Config.LLM.APIKey == "" {
		return ErrAPIKeyRequired
	}
	return nil
}

// Close flushes the logger and closes storage.
func (d *CommandDeps) Close() {
	if err := d.Store.Close(); err != nil {
		d.Logger.Warn("Failed to close storage", logger.Error(err))
	}
	_ = d.Logger.Sync()
}
