package awesome

import (
	"context"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

// ReadmeFetcher downloads a repository README.
type ReadmeFetcher interface {
	FetchGitHubReadme(ctx context.Context, owner, repo string) (string, error)
}

// Crawler is the hand-written crawler for github_awesome_list sources.
type Crawler struct {
	fetcher ReadmeFetcher
	log     logger.Logger
	now     func() time.Time
}

// NewCrawler creates an awesome-list crawler.
func NewCrawler(fetcher ReadmeFetcher, log logger.Logger) *Crawler {
	if log == nil {
		log = logger.NewNop()
	}
	return &Crawler{fetcher: fetcher, log: log, now: time.Now}
}

// Crawl fetches the source's README and extracts the listed tools.
func (c *Crawler) Crawl(ctx context.Context, source domain.Source) ([]domain.MCPTool, error) {
	owner, repo, err := ParseGitHubRepo(source.URL)
	if err != nil {
		return nil, err
	}

	readme, err := c.fetcher.FetchGitHubReadme(ctx, owner, repo)
	if err != nil {
		return nil, fmt.Errorf("fetch README for %s/%s: %w", owner, repo, err)
	}

	tools := ExtractTools(readme, source.URL, c.now())
	c.log.Info("Extracted tools from awesome list",
		logger.SourceID(source.ID),
		logger.String("repo", owner+"/"+repo),
		logger.Int("tools", len(tools)),
	)
	return tools, nil
}
