package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// SourceRepository implements SourceStore.
type SourceRepository struct {
	b  bucket
	mu sync.Mutex
}

// List returns all sources ordered by URL.
func (r *SourceRepository) List(ctx context.Context) ([]domain.Source, error) {
	sources, err := decodeAll[domain.Source](ctx, r.b, kindSources)
	if err != nil {
		return nil, err
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i].URL < sources[j].URL })
	return sources, nil
}

// Get returns the source with the given id or ErrNotFound.
func (r *SourceRepository) Get(ctx context.Context, id string) (domain.Source, error) {
	return decodeOne[domain.Source](ctx, r.b, kindSources, id)
}

// Put inserts or replaces a source.
func (r *SourceRepository) Put(ctx context.Context, source domain.Source) error {
	if source.ID == "" {
		return errors.New("source id is required")
	}
	return encodePut(ctx, r.b, kindSources, map[string]any{source.ID: source})
}

// UpdateLastCrawl stamps the crawl time and status on a source.
func (r *SourceRepository) UpdateLastCrawl(ctx context.Context, id, status string, at time.Time) error {
	_, err := r.update(ctx, id, func(s domain.Source) domain.Source {
		return s.WithCrawl(status, at)
	})
	return err
}

// LinkCrawler sets the source's crawler id.
func (r *SourceRepository) LinkCrawler(ctx context.Context, id, crawlerID string) (domain.Source, error) {
	return r.update(ctx, id, func(s domain.Source) domain.Source {
		s.CrawlerID = crawlerID
		return s
	})
}

// update applies fn to the stored source. Updates are serialized so
// concurrent changes to different fields are not lost.
func (r *SourceRepository) update(ctx context.Context, id string, fn func(domain.Source) domain.Source) (domain.Source, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	source, err := r.Get(ctx, id)
	if err != nil {
		return domain.Source{}, err
	}
	source = fn(source)
	if err := r.Put(ctx, source); err != nil {
		return domain.Source{}, err
	}
	return source, nil
}

// SaveStats counts the effect of a ToolRepository.Save call.
type SaveStats struct {
	New     int
	Updated int
}

// ToolRepository implements ToolStore. Tools are keyed by URL so repeated
// discoveries of the same tool merge into one entry.
type ToolRepository struct {
	b  bucket
	mu sync.Mutex
}

// Save merges tools into the catalog. An existing entry keeps its id and
// first_discovered; everything else is refreshed.
func (r *ToolRepository) Save(ctx context.Context, tools []domain.MCPTool) (SaveStats, error) {
	var stats SaveStats
	if len(tools) == 0 {
		return stats, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	existing, err := r.b.all(ctx, kindTools)
	if err != nil {
		return stats, fmt.Errorf("load tools: %w", err)
	}

	merged := make(map[string]domain.MCPTool, len(tools))
	for _, tool := range tools {
		key := toolKey(tool)

		if prev, ok := merged[key]; ok {
			merged[key] = mergeTool(prev, tool)
			continue
		}

		if raw, ok := existing[key]; ok {
			var prev domain.MCPTool
			if err := json.Unmarshal(raw, &prev); err != nil {
				return stats, fmt.Errorf("decode tool %s: %w", key, err)
			}
			merged[key] = mergeTool(prev, tool)
			stats.Updated++
			continue
		}

		merged[key] = tool
		stats.New++
	}

	entries := make(map[string]any, len(merged))
	for key, tool := range merged {
		entries[key] = tool
	}
	if err := encodePut(ctx, r.b, kindTools, entries); err != nil {
		return SaveStats{}, err
	}
	return stats, nil
}

// Load returns the catalog ordered by name.
func (r *ToolRepository) Load(ctx context.Context) ([]domain.MCPTool, error) {
	tools, err := decodeAll[domain.MCPTool](ctx, r.b, kindTools)
	if err != nil {
		return nil, err
	}
	sort.Slice(tools, func(i, j int) bool {
		if tools[i].Name == tools[j].Name {
			return tools[i].URL < tools[j].URL
		}
		return tools[i].Name < tools[j].Name
	})
	return tools, nil
}

func toolKey(tool domain.MCPTool) string {
	if key := strings.TrimSpace(tool.URL); key != "" {
		return key
	}
	return tool.ID
}

func mergeTool(prev, next domain.MCPTool) domain.MCPTool {
	next.ID = prev.ID
	next.FirstDiscovered = prev.FirstDiscovered
	return next
}

// StrategyRepository implements StrategyStore.
type StrategyRepository struct {
	b bucket
}

// Get returns the strategy with the given id or ErrNotFound.
func (r *StrategyRepository) Get(ctx context.Context, id string) (domain.CrawlerStrategy, error) {
	return decodeOne[domain.CrawlerStrategy](ctx, r.b, kindStrategies, id)
}

// Put inserts or replaces a strategy.
func (r *StrategyRepository) Put(ctx context.Context, strategy domain.CrawlerStrategy) error {
	if strategy.ID == "" {
		return errors.New("strategy id is required")
	}
	return encodePut(ctx, r.b, kindStrategies, map[string]any{strategy.ID: strategy})
}

// List returns all strategies ordered by creation time.
func (r *StrategyRepository) List(ctx context.Context) ([]domain.CrawlerStrategy, error) {
	strategies, err := decodeAll[domain.CrawlerStrategy](ctx, r.b, kindStrategies)
	if err != nil {
		return nil, err
	}
	sort.Slice(strategies, func(i, j int) bool { return strategies[i].Created.Before(strategies[j].Created) })
	return strategies, nil
}

// CrawlResultRepository implements CrawlResultStore.
type CrawlResultRepository struct {
	b bucket
}

// Append records a crawl result.
func (r *CrawlResultRepository) Append(ctx context.Context, result domain.CrawlResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode crawl result: %w", err)
	}
	return r.b.appendEntry(ctx, kindCrawlResults, data)
}

// Recent returns up to limit results, newest first.
func (r *CrawlResultRepository) Recent(ctx context.Context, limit int) ([]domain.CrawlResult, error) {
	raw, err := r.b.recent(ctx, kindCrawlResults, limit)
	if err != nil {
		return nil, err
	}
	results := make([]domain.CrawlResult, 0, len(raw))
	for _, data := range raw {
		var result domain.CrawlResult
		if err := json.Unmarshal(data, &result); err != nil {
			return nil, fmt.Errorf("decode crawl result: %w", err)
		}
		results = append(results, result)
	}
	return results, nil
}

func decodeOne[T any](ctx context.Context, b bucket, kind, id string) (T, error) {
	var out T
	data, err := b.get(ctx, kind, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s %s: %w", kind, id, err)
	}
	return out, nil
}

func decodeAll[T any](ctx context.Context, b bucket, kind string) ([]T, error) {
	raw, err := b.all(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", kind, err)
	}
	out := make([]T, 0, len(raw))
	for id, data := range raw {
		var item T
		if err := json.Unmarshal(data, &item); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", kind, id, err)
		}
		out = append(out, item)
	}
	return out, nil
}

func encodePut(ctx context.Context, b bucket, kind string, items map[string]any) error {
	entries := make(map[string][]byte, len(items))
	for id, item := range items {
		data, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", kind, id, err)
		}
		entries[id] = data
	}
	if err := b.put(ctx, kind, entries); err != nil {
		return fmt.Errorf("store %s: %w", kind, err)
	}
	return nil
}
