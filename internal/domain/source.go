// Package domain holds the catalog entities shared by the crawler, generator, sandbox and storage layers.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceType enumerates the kinds of crawl targets.
type SourceType string

const (
	SourceTypeAwesomeList   SourceType = "github_awesome_list"
	SourceTypeRepository    SourceType = "github_repository"
	SourceTypeWebsite       SourceType = "website"
	SourceTypeRSSFeed       SourceType = "rss_feed"
	SourceTypeManuallyAdded SourceType = "manually_added"
)

// Crawl status values recorded on a source after each crawl.
const (
	CrawlStatusSuccess = "success"
	CrawlStatusFailed  = "failed"
)

// Valid reports whether t is one of the known source types.
func (t SourceType) Valid() bool {
	switch t {
	case SourceTypeAwesomeList, SourceTypeRepository, SourceTypeWebsite,
		SourceTypeRSSFeed, SourceTypeManuallyAdded:
		return true
	}
	return false
}

// ParseSourceType converts a raw string into a SourceType.
func ParseSourceType(s string) (SourceType, error) {
	t := SourceType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown source type %q", s)
	}
	return t, nil
}

// HasKnownCrawler reports whether a hand-written extraction routine exists for the type.
// Only awesome lists have one; everything else goes through the generator.
func HasKnownCrawler(t SourceType) bool {
	return t == SourceTypeAwesomeList
}

// Source represents a registered crawl target.
type Source struct {
	ID              string         `json:"id"`
	URL             string         `json:"url"`
	Name            string         `json:"name"`
	Type            SourceType     `json:"type"`
	HasKnownCrawler bool           `json:"has_known_crawler"`
	CrawlerID       string         `json:"crawler_id,omitempty"`
	LastCrawled     *time.Time     `json:"last_crawled,omitempty"`
	LastCrawlStatus string         `json:"last_crawl_status,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// NewSource builds a source with a fresh id and has_known_crawler derived from its type.
func NewSource(url, name string, t SourceType) Source {
	return Source{
		ID:              "source-" + uuid.NewString(),
		URL:             url,
		Name:            name,
		Type:            t,
		HasKnownCrawler: HasKnownCrawler(t),
		Metadata:        map[string]any{},
	}
}

// WithCrawl returns a copy of s with the crawl timestamp and status updated.
func (s Source) WithCrawl(status string, at time.Time) Source {
	at = at.UTC()
	s.LastCrawled = &at
	s.LastCrawlStatus = status
	return s
}
