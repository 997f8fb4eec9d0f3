// Package runstrategy implements the run-strategy command, which executes a
// stored crawler strategy against a source without saving the tools.
package runstrategy

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
)

// Command returns the run-strategy command.
func Command() *cobra.Command {
	var (
		strategyID string
		sourceID   string
		asJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run-strategy",
		Short: "Run a stored crawler strategy in the sandbox",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.RequireFlag("strategy-id", strategyID); err != nil {
				return err
			}
			if err := common.RequireFlag("source-id", sourceID); err != nil {
				return err
			}
			ctx := cmd.Context()

			deps, err := common.NewCommandDeps(ctx)
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			strategy, err := deps.Store.Strategies.Get(ctx, strategyID)
			if err != nil {
				return fmt.Errorf("failed to load strategy %s: %w", strategyID, err)
			}
			source, err := deps.Sources.Get(ctx, sourceID)
			if err != nil {
				return fmt.Errorf("failed to load source %s: %w", sourceID, err)
			}

			tools, err := deps.Crawler.RunStrategy(ctx, strategy, source)
			if err != nil {
				return err
			}

			if asJSON {
				return common.PrintJSON(cmd.OutOrStdout(), tools)
			}
			common.RenderTools(cmd.OutOrStdout(), tools)
			return nil
		},
	}
	cmd.Flags().StringVar(&strategyID, "strategy-id", "", "id of the crawler strategy")
	cmd.Flags().StringVar(&sourceID, "source-id", "", "id of the source to crawl")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}
