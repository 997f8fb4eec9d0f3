// Package crawl implements the crawl command.
package crawl

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/crawler"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// Command returns the crawl command. Without --source-id every source that is
// due is crawled.
func Command() *cobra.Command {
	var (
		sourceID    string
		seed        bool
		force       bool
		concurrency int
	)

	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawl one or all sources",
		Long: `Crawl registered sources. Awesome lists use the built-in README parser;
other sources run their stored strategy, generating one first when missing.
Sources crawled within crawler.stale_after are skipped unless --force is set.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			deps, err := common.NewCommandDeps(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if seed {
				if _, seedErr := deps.Sources.SeedPredefined(ctx, deps.Config.Sources); seedErr != nil {
					return fmt.Errorf("failed to seed sources: %w", seedErr)
				}
			}

			all, err := deps.Sources.List(ctx)
			if err != nil {
				return fmt.Errorf("failed to list sources: %w", err)
			}
			names := make(map[string]string, len(all))
			for _, s := range all {
				names[s.ID] = s.Name
			}

			var results []domain.CrawlResult
			if sourceID != "" {
				source, getErr := deps.Sources.Get(ctx, sourceID)
				if getErr != nil {
					return fmt.Errorf("failed to load source %s: %w", sourceID, getErr)
				}
				results = []domain.CrawlResult{deps.Crawler.CrawlSource(ctx, source)}
			} else {
				results, err = deps.Crawler.CrawlAll(ctx, crawler.CrawlOptions{
					Force:       force,
					Concurrency: concurrency,
				})
				if err != nil {
					return err
				}
			}

			common.RenderCrawlResults(cmd.OutOrStdout(), results, names)
			return nil
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "crawl only this source")
	cmd.Flags().BoolVar(&seed, "seed", false, "register predefined sources before crawling")
	cmd.Flags().BoolVar(&force, "force", false, "crawl every source, including recently crawled ones")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "maximum sources crawled at once (default from crawler.concurrency)")
	return cmd
}
