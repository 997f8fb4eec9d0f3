// Package scheduler implements the scheduler command, which crawls all sources
// on the configured cron schedule until interrupted.
package scheduler

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/scheduler"
)

// Command returns the scheduler command.
func Command() *cobra.Command {
	var runNow bool

	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Crawl all sources on a cron schedule",
		Long: `Seed the predefined sources and crawl every source on crawler.schedule
until interrupted. Runs that would overlap are skipped.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			deps, err := common.NewCommandDeps(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if _, seedErr := deps.Sources.SeedPredefined(ctx, deps.Config.Sources); seedErr != nil {
				return fmt.Errorf("failed to seed sources: %w", seedErr)
			}

			s, err := scheduler.New(deps.Config.Crawler.Schedule, deps.Crawler, deps.Logger)
			if err != nil {
				return err
			}

			s.Start(ctx)
			if runNow {
				go s.RunOnce(ctx)
			}

			<-ctx.Done()
			deps.Logger.Info("Shutdown signal received", logger.String("schedule", deps.Config.Crawler.Schedule))
			s.Stop()
			return nil
		},
	}
	cmd.Flags().BoolVar(&runNow, "run-now", false, "run a crawl immediately on start")
	return cmd
}

