// Package sources manages the registry of crawl targets.
package sources

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/awesome"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

// ErrInvalidURL is returned when a source URL is not an absolute http(s) URL.
var ErrInvalidURL = errors.New("invalid source URL")

// Manager registers sources and tracks their crawl state.
type Manager struct {
	store storage.SourceStore
	log   logger.Logger
}

// NewManager creates a source manager.
func NewManager(store storage.SourceStore, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{store: store, log: log}
}

// Add registers a source. An empty type is detected from the URL. Adding a
// URL that is already registered returns the existing source and created=false.
func (m *Manager) Add(ctx context.Context, rawURL, name string, t domain.SourceType) (source domain.Source, created bool, err error) {
	normalized, err := normalizeURL(rawURL)
	if err != nil {
		return domain.Source{}, false, err
	}
	if t == "" {
		t = DetectType(normalized)
	}
	if !t.Valid() {
		return domain.Source{}, false, fmt.Errorf("unknown source type %q", t)
	}

	existing, err := m.findByURL(ctx, normalized)
	if err != nil {
		return domain.Source{}, false, err
	}
	if existing != nil {
		return *existing, false, nil
	}

	if strings.TrimSpace(name) == "" {
		name = defaultName(normalized)
	}

	source = domain.NewSource(normalized, strings.TrimSpace(name), t)
	if err := m.store.Put(ctx, source); err != nil {
		return domain.Source{}, false, fmt.Errorf("save source: %w", err)
	}

	m.log.Info("Source added",
		logger.SourceID(source.ID),
		logger.String("url", source.URL),
		logger.String("type", string(source.Type)),
	)
	return source, true, nil
}

// List returns every registered source.
func (m *Manager) List(ctx context.Context) ([]domain.Source, error) {
	return m.store.List(ctx)
}

// Get returns one source by id.
func (m *Manager) Get(ctx context.Context, id string) (domain.Source, error) {
	return m.store.Get(ctx, id)
}

// SeedPredefined registers the configured awesome lists and websites that
// are not yet known and returns how many were added.
func (m *Manager) SeedPredefined(ctx context.Context, cfg config.SourcesConfig) (int, error) {
	added := 0

	for _, listURL := range cfg.AwesomeLists {
		_, created, err := m.Add(ctx, listURL, "", domain.SourceTypeAwesomeList)
		if err != nil {
			return added, fmt.Errorf("seed %s: %w", listURL, err)
		}
		if created {
			added++
		}
	}

	for _, site := range cfg.Websites {
		_, created, err := m.Add(ctx, site.URL, site.Name, domain.SourceTypeWebsite)
		if err != nil {
			return added, fmt.Errorf("seed %s: %w", site.URL, err)
		}
		if created {
			added++
		}
	}

	m.log.Info("Predefined sources seeded", logger.Int("added", added))
	return added, nil
}

// DueForCrawl returns the sources never crawled or last crawled more than
// staleAfter before now.
func (m *Manager) DueForCrawl(ctx context.Context, staleAfter time.Duration, now time.Time) ([]domain.Source, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, err
	}

	cutoff := now.Add(-staleAfter)
	due := make([]domain.Source, 0, len(all))
	for _, s := range all {
		if s.LastCrawled == nil || s.LastCrawled.Before(cutoff) {
			due = append(due, s)
		}
	}
	return due, nil
}

// RecordCrawl stores the outcome of a crawl on the source.
func (m *Manager) RecordCrawl(ctx context.Context, id string, success bool, at time.Time) error {
	status := domain.CrawlStatusFailed
	if success {
		status = domain.CrawlStatusSuccess
	}
	return m.store.UpdateLastCrawl(ctx, id, status, at)
}

// LinkCrawler binds a generated strategy to a source.
func (m *Manager) LinkCrawler(ctx context.Context, id, crawlerID string) (domain.Source, error) {
	source, err := m.store.LinkCrawler(ctx, id, crawlerID)
	if err != nil {
		return domain.Source{}, fmt.Errorf("link crawler: %w", err)
	}
	return source, nil
}

func (m *Manager) findByURL(ctx context.Context, normalized string) (*domain.Source, error) {
	all, err := m.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	for i := range all {
		if strings.EqualFold(strings.TrimSuffix(all[i].URL, "/"), normalized) {
			return &all[i], nil
		}
	}
	return nil, nil
}

func normalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	return strings.TrimSuffix(u.String(), "/"), nil
}

// DetectType guesses a source type from its URL. GitHub repositories whose URL
// mentions "awesome" are awesome lists.
func DetectType(rawURL string) domain.SourceType {
	if _, _, err := awesome.ParseGitHubRepo(rawURL); err != nil {
		return domain.SourceTypeWebsite
	}
	if strings.Contains(strings.ToLower(rawURL), "awesome") {
		return domain.SourceTypeAwesomeList
	}
	return domain.SourceTypeRepository
}

// defaultName uses owner/repo for GitHub URLs and the host otherwise.
func defaultName(normalized string) string {
	if owner, repo, err := awesome.ParseGitHubRepo(normalized); err == nil {
		return owner + "/" + repo
	}
	if u, err := url.Parse(normalized); err == nil {
		return u.Host
	}
	return normalized
}
