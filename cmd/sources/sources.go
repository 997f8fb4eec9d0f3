// Package sources implements the sources command for managing crawl targets.
package sources

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jonesrussell/north-cloud/tool-crawler/cmd/common"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// Command returns the sources command with its list, add and seed subcommands.
func Command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Manage crawl sources",
		Long:  `List, register and seed the sources the crawler discovers tools from.`,
	}
	cmd.AddCommand(listCommand(), addCommand(), seedCommand())
	return cmd
}

func listCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List registered sources",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			list, err := deps.Sources.List(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to list sources: %w", err)
			}
			if asJSON {
				return common.PrintJSON(cmd.OutOrStdout(), list)
			}
			common.RenderSources(cmd.OutOrStdout(), list)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of a table")
	return cmd
}

func addCommand() *cobra.Command {
	var name, sourceType string

	cmd := &cobra.Command{
		Use:   "add <url>",
		Short: "Register a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var t domain.SourceType
			if sourceType != "" {
				parsed, err := domain.ParseSourceType(sourceType)
				if err != nil {
					return err
				}
				t = parsed
			}

			deps, err := common.NewCommandDeps(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			source, created, err := deps.Sources.Add(cmd.Context(), args[0], name, t)
			if err != nil {
				return fmt.Errorf("failed to add source: %w", err)
			}
			if !created {
				fmt.Fprintf(cmd.ErrOrStderr(), "Source already registered as %s\n", source.ID)
			}
			return common.PrintJSON(cmd.OutOrStdout(), source)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name (defaults to owner/repo or host)")
	cmd.Flags().StringVar(&sourceType, "type", "",
		"source type: github_awesome_list, github_repository, website, rss_feed, manually_added (detected from the URL when empty)")
	return cmd
}

func seedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Register the predefined awesome lists and websites",
		RunE: func(cmd *cobra.Command, _ []string) error {
			deps, err := common.NewCommandDeps(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to initialize dependencies: %w", err)
			}
			defer deps.Close()

			added, err := deps.Sources.SeedPredefined(cmd.Context(), deps.Config.Sources)
			if err != nil {
				return fmt.Errorf("failed to seed sources: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %d source(s)\n", added)
			return nil
		},
	}
}
