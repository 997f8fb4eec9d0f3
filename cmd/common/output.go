package common

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// RenderSources prints sources as a table.
func RenderSources(w io.Writer, list []domain.Source) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Type", "URL", "Crawler", "Last Crawled", "Status"})
	for _, s := range list {
		t.AppendRow(table.Row{s.ID, s.Name, s.Type, s.URL, dash(s.CrawlerID), formatTime(s.LastCrawled), dash(s.LastCrawlStatus)})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "Total", len(list)})
	t.Render()
}

// RenderCrawlResults prints crawl results with the source name when known.
func RenderCrawlResults(w io.Writer, results []domain.CrawlResult, names map[string]string) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Source", "Success", "Tools", "New", "Updated", "Duration", "Error"})

	var tools, created, updated int
	for _, r := range results {
		name := names[r.SourceID]
		if name == "" {
			name = r.SourceID
		}
		t.AppendRow(table.Row{
			name, r.Success, r.ToolsDiscovered, r.NewTools, r.UpdatedTools,
			(time.Duration(r.DurationMS) * time.Millisecond).String(), truncate(r.Error, 60),
		})
		tools += r.ToolsDiscovered
		created += r.NewTools
		updated += r.UpdatedTools
	}
	t.AppendFooter(table.Row{"Total", "", tools, created, updated, "", ""})
	t.Render()
}

// RenderTools prints discovered tools.
func RenderTools(w io.Writer, tools []domain.MCPTool) {
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "URL", "Tags", "Description"})
	for _, tool := range tools {
		t.AppendRow(table.Row{tool.Name, tool.URL, strings.Join(tool.Tags(), ","), truncate(tool.Description, 60)})
	}
	t.AppendFooter(table.Row{"Total", len(tools), "", ""})
	t.Render()
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// RequireFlag returns an error when a required string flag is empty.
func RequireFlag(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("--%s is required", name)
	}
	return nil
}
