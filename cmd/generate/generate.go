// Package generate implements the generate command, which builds a crawler
// strategy for one source.
package generate

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
)

// Command returns the generate command.
func Command() *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate a crawler strategy for a source",
		Long: `Fetch the source page, let the LLM analyze it and write an extract_tools
function, review the code, and store the resulting strategy linked to the source.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := common.RequireFlag("source-id", sourceID); err != nil {
				return err
			}

			deps, err := common.NewCommandDeps(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			if err := deps.RequireLLM(); err != nil {
				return err
			}

			source, err := deps.Sources.Get(cmd.Context(), sourceID)
			if err != nil {
				return fmt.Errorf("failed to load source %s: %w", sourceID, err)
			}

			result, err := deps.Crawler.GenerateStrategy(cmd.Context(), source)
			if printErr := common.PrintJSON(cmd.OutOrStdout(), result); printErr != nil {
				return printErr
			}
			return err
		},
	}
	cmd.Flags().StringVar(&sourceID, "source-id", "", "id of the source to generate a crawler for")
	return cmd
}
