// Package storage persists sources, tools, crawler strategies and crawl results.
// Every backend stores JSON documents keyed by id inside one bucket per entity
// kind; the typed repositories sit on top of that.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

// ErrNotFound is returned when an entity does not exist.
var ErrNotFound = errors.New("not found")

// Entity kinds, used as file names, redis keys and table names.
const (
	kindSources      = "sources"
	kindTools        = "tools"
	kindStrategies   = "strategies"
	kindCrawlResults = "crawl_results"
)

var allKinds = []string{kindSources, kindTools, kindStrategies, kindCrawlResults}

// SourceStore persists registered sources.
type SourceStore interface {
	List(ctx context.Context) ([]domain.Source, error)
	Get(ctx context.Context, id string) (domain.Source, error)
	Put(ctx context.Context, source domain.Source) error
	UpdateLastCrawl(ctx context.Context, id, status string, at time.Time) error
	LinkCrawler(ctx context.Context, id, crawlerID string) (domain.Source, error)
}

// ToolStore persists the tool catalog.
type ToolStore interface {
	Save(ctx context.Context, tools []domain.MCPTool) (SaveStats, error)
	Load(ctx context.Context) ([]domain.MCPTool, error)
}

// StrategyStore persists generated crawler strategies.
type StrategyStore interface {
	Get(ctx context.Context, id string) (domain.CrawlerStrategy, error)
	Put(ctx context.Context, strategy domain.CrawlerStrategy) error
}

// CrawlResultStore keeps the crawl history.
type CrawlResultStore interface {
	Append(ctx context.Context, result domain.CrawlResult) error
}

// bucket is the backend contract. Keyed kinds use get/put/all, the crawl
// history uses appendEntry/recent. recent returns newest first.
type bucket interface {
	get(ctx context.Context, kind, id string) ([]byte, error)
	put(ctx context.Context, kind string, entries map[string][]byte) error
	all(ctx context.Context, kind string) (map[string][]byte, error)
	appendEntry(ctx context.Context, kind string, data []byte) error
	recent(ctx context.Context, kind string, limit int) ([][]byte, error)
	close() error
}

// Store groups the repositories of one backend.
type Store struct {
	Sources      *SourceRepository
	Tools        *ToolRepository
	Strategies   *StrategyRepository
	CrawlResults *CrawlResultRepository

	backend bucket
}

func newStore(b bucket) *Store {
	return &Store{
		Sources:      &SourceRepository{b: b},
		Tools:        &ToolRepository{b: b},
		Strategies:   &StrategyRepository{b: b},
		CrawlResults: &CrawlResultRepository{b: b},
		backend:      b,
	}
}

// Close releases the backend connection.
func (s *Store) Close() error {
	return s.backend.close()
}

// Open connects the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StorageConfig, log logger.Logger) (*Store, error) {
	switch cfg.Driver {
	case config.StorageDriverFile, "":
		log.Info("Using file storage", logger.String("path", cfg.Path))
		return NewFileStore(cfg.Path)
	case config.StorageDriverRedis:
		log.Info("Using redis storage", logger.String("address", cfg.Redis.Address))
		return OpenRedis(ctx, cfg.Redis)
	case config.StorageDriverPostgres:
		log.Info("Using postgres storage")
		return OpenPostgres(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidStorageDriver, cfg.Driver)
	}
}
