// Package crawler orchestrates crawls: it picks the known crawler or a
// generated strategy for each source, stores the discovered tools and records
// the outcome.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/generator"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sources"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

const (
	// DefaultConcurrency bounds CrawlAll when no limit is configured.
	DefaultConcurrency = 5
	// DefaultStaleAfter is how long a crawled source is skipped by CrawlAll.
	DefaultStaleAfter = 24 * time.Hour
)

// CrawlOptions adjusts a CrawlAll run.
type CrawlOptions struct {
	// Force crawls every source, including ones crawled within StaleAfter.
	Force bool
	// Concurrency overrides the configured limit when positive.
	Concurrency int
}

// ErrGenerationFailed is returned when the generator could not produce a strategy.
var ErrGenerationFailed = errors.New("crawler generation failed")

// Generator produces crawler strategies.
type Generator interface {
	Generate(ctx context.Context, source domain.Source) generator.Result
}

// StrategyRunner executes a strategy against fetched HTML.
type StrategyRunner interface {
	Run(ctx context.Context, strategy domain.CrawlerStrategy, sourceURL, html string) ([]domain.MCPTool, error)
}

// PageFetcher downloads a page.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// KnownCrawler is a hand-written crawler for a source type.
type KnownCrawler interface {
	Crawl(ctx context.Context, source domain.Source) ([]domain.MCPTool, error)
}

// Deps holds the collaborators of a Service.
type Deps struct {
	Sources     *sources.Manager
	Tools       storage.ToolStore
	Strategies  storage.StrategyStore
	Results     storage.CrawlResultStore
	Generator   Generator
	Runner      StrategyRunner
	Fetcher     PageFetcher
	Awesome     KnownCrawler
	Logger      logger.Logger
	Metrics     *metrics.Metrics
	Concurrency int
	StaleAfter  time.Duration
}

// Service runs crawls.
type Service struct {
	deps Deps
	log  logger.Logger
	now  func() time.Time
}

// NewService creates a crawl service.
func NewService(deps Deps) *Service {
	if deps.Logger == nil {
		deps.Logger = logger.NewNop()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = DefaultConcurrency
	}
	if deps.StaleAfter <= 0 {
		deps.StaleAfter = DefaultStaleAfter
	}
	return &Service{deps: deps, log: deps.Logger, now: time.Now}
}

// WithClock overrides the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// CrawlAll crawls the sources not crawled within StaleAfter, or every source
// when opts.Force is set, with bounded concurrency. Per-source failures are
// reported in the results, not as an error.
func (s *Service) CrawlAll(ctx context.Context, opts CrawlOptions) ([]domain.CrawlResult, error) {
	var (
		all []domain.Source
		err error
	)
	if opts.Force {
		all, err = s.deps.Sources.List(ctx)
	} else {
		all, err = s.deps.Sources.DueForCrawl(ctx, s.deps.StaleAfter, s.now())
	}
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	if len(all) == 0 {
		s.log.Info("No sources to crawl", logger.Bool("force", opts.Force))
		return []domain.CrawlResult{}, nil
	}

	limit := s.deps.Concurrency
	if opts.Concurrency > 0 {
		limit = opts.Concurrency
	}

	s.log.Info("Crawl run starting",
		logger.Int("sources", len(all)),
		logger.Int("concurrency", limit),
		logger.Bool("force", opts.Force),
	)

	results := make([]domain.CrawlResult, len(all))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, source := range all {
		g.Go(func() error {
			results[i] = s.CrawlSource(gctx, source)
			return nil
		})
	}
	_ = g.Wait()

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	s.log.Info("Crawl run finished",
		logger.Int("sources", len(all)),
		logger.Int("succeeded", succeeded),
	)
	return results, nil
}

// CrawlSource crawls one source and records the result.
func (s *Service) CrawlSource(ctx context.Context, source domain.Source) domain.CrawlResult {
	start := s.now()
	log := s.log.With(logger.SourceID(source.ID), logger.String("url", source.URL))
	log.Info("Starting crawl")

	result := domain.CrawlResult{
		SourceID:  source.ID,
		Timestamp: start.UTC(),
	}

	tools, err := s.discover(ctx, source)
	if err == nil {
		var stats storage.SaveStats
		stats, err = s.deps.Tools.Save(ctx, tools)
		result.ToolsDiscovered = len(tools)
		result.NewTools = stats.New
		result.UpdatedTools = stats.Updated
	}

	elapsed := s.now().Sub(start)
	result.DurationMS = elapsed.Milliseconds()
	result.Success = err == nil
	if err != nil {
		result.Error = err.Error()
		log.Error("Crawl failed", logger.Error(err))
	} else {
		log.Info("Crawl completed",
			logger.Int("tools", result.ToolsDiscovered),
			logger.Int("new", result.NewTools),
			logger.Int("updated", result.UpdatedTools),
		)
	}

	status := domain.CrawlStatusFailed
	if result.Success {
		status = domain.CrawlStatusSuccess
	}
	s.deps.Metrics.RecordCrawl(status, result.ToolsDiscovered, elapsed)

	if appendErr := s.deps.Results.Append(ctx, result); appendErr != nil {
		log.Warn("Failed to store crawl result", logger.Error(appendErr))
	}
	if recordErr := s.deps.Sources.RecordCrawl(ctx, source.ID, result.Success, s.now()); recordErr != nil {
		log.Warn("Failed to update source crawl status", logger.Error(recordErr))
	}

	return result
}

func (s *Service) discover(ctx context.Context, source domain.Source) ([]domain.MCPTool, error) {
	if source.HasKnownCrawler && s.deps.Awesome != nil {
		return s.deps.Awesome.Crawl(ctx, source)
	}

	strategy, err := s.strategyFor(ctx, source)
	if err != nil {
		return nil, err
	}
	return s.RunStrategy(ctx, strategy, source)
}

// strategyFor loads the source's linked strategy, generating and linking a
// new one when none exists.
func (s *Service) strategyFor(ctx context.Context, source domain.Source) (domain.CrawlerStrategy, error) {
	if source.CrawlerID != "" {
		strategy, err := s.deps.Strategies.Get(ctx, source.CrawlerID)
		if err == nil {
			return strategy, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return domain.CrawlerStrategy{}, fmt.Errorf("load strategy %s: %w", source.CrawlerID, err)
		}
		s.log.Warn("Linked strategy missing, regenerating",
			logger.SourceID(source.ID),
			logger.StrategyID(source.CrawlerID),
		)
	}

	result, err := s.GenerateStrategy(ctx, source)
	if err != nil {
		return domain.CrawlerStrategy{}, err
	}
	return *result.Strategy, nil
}

// GenerateStrategy runs the generator for source, persists the strategy and
// links it to the source. A failed generation returns the result together
// with ErrGenerationFailed.
func (s *Service) GenerateStrategy(ctx context.Context, source domain.Source) (generator.Result, error) {
	result := s.deps.Generator.Generate(ctx, source)
	if result.Status != generator.StatusSuccess || result.Strategy == nil {
		return result, fmt.Errorf("%w: %s", ErrGenerationFailed, result.Error)
	}

	if err := s.deps.Strategies.Put(ctx, *result.Strategy); err != nil {
		return result, fmt.Errorf("save strategy: %w", err)
	}
	if _, err := s.deps.Sources.LinkCrawler(ctx, source.ID, result.Strategy.ID); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			return result, fmt.Errorf("link strategy: %w", err)
		}
		s.log.Debug("Source not registered, strategy left unlinked", logger.SourceID(source.ID))
	}

	s.log.Info("Strategy generated",
		logger.SourceID(source.ID),
		logger.StrategyID(result.Strategy.ID),
	)
	return result, nil
}

// RunStrategy fetches the source page and runs the strategy in the sandbox.
func (s *Service) RunStrategy(ctx context.Context, strategy domain.CrawlerStrategy, source domain.Source) ([]domain.MCPTool, error) {
	html, err := s.deps.Fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source.URL, err)
	}
	return s.deps.Runner.Run(ctx, strategy, source.URL, html)
}
