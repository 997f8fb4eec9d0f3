// Package httpd implements the httpd command, which serves the REST API.
package httpd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/scheduler"
)

// Command returns the httpd command.
func Command() *cobra.Command {
	var withScheduler bool

	cmd := &cobra.Command{
		Use:   "httpd",
		Short: "Serve the HTTP API",
		Long: `Start the REST API for generating and running crawler strategies,
managing sources and listing discovered tools.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			deps, err := common.NewCommandDeps(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if _, seedErr := deps.Sources.SeedPredefined(ctx, deps.Config.Sources); seedErr != nil {
				return fmt.Errorf("failed to seed sources: %w", seedErr)
			}

			if withScheduler {
				s, schedErr := scheduler.New(deps.Config.Crawler.Schedule, deps.Crawler, deps.Logger)
				if schedErr != nil {
					return schedErr
				}
				s.Start(ctx)
				defer s.Stop()
			}

			handler := api.NewHandler(api.HandlerDeps{
				Crawls:   deps.Crawler,
				Sources:  deps.Sources,
				Tools:    deps.Store.Tools,
				History:  deps.Store.CrawlResults,
				Gatherer: deps.Registry,
				Service:  deps.Config.App.Name,
				Version:  deps.Config.App.Version,
			})

			server := api.NewServer(deps.Config.Server, deps.Config.App.Debug, deps.Logger, handler.Register)
			return server.RunWithGracefulShutdown(ctx)
		},
	}
	cmd.Flags().BoolVar(&withScheduler, "with-scheduler", false, "also run scheduled crawls in-process")
	return cmd
}
