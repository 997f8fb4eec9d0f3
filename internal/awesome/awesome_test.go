package awesome_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/awesome"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

const readme = `# Awesome MCP

## Servers

- [Filesystem MCP](https://github.com/a/fs) - Read and write local files
* [Vector Store Server](https://github.com/b/vec): Embedding search over documents
- [Cooking Recipes](https://example.com/recipes) - Nothing to do with AI
- [Storage Helper](https://github.com/c/store) - Leverage cloud storage

## Table

| Name | Description |
|------|-------------|
| [RAG Toolkit](https://github.com/d/rag) | Python library for retrieval |
| [Weather](https://github.com/e/weather) | Forecast data |
`

func TestParseGitHubRepo(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url   string
		owner string
		repo  string
		ok    bool
	}{
		{"https://github.com/punkpeye/awesome-mcp-servers", "punkpeye", "awesome-mcp-servers", true},
		{"https://github.com/owner/repo/tree/main/docs", "owner", "repo", true},
		{"https://www.github.com/owner/repo.git", "owner", "repo", true},
		{"https://gitlab.com/owner/repo", "", "", false},
		{"https://github.com/owner", "", "", false},
		{"::not a url", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()

			owner, repo, err := awesome.ParseGitHubRepo(tt.url)
			if !tt.ok {
				require.ErrorIs(t, err, awesome.ErrNotGitHubRepo)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.owner, owner)
			assert.Equal(t, tt.repo, repo)
		})
	}
}

func TestExtractTools(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	tools := awesome.ExtractTools(readme, "https://github.com/x/awesome", now)
	require.Len(t, tools, 3)

	assert.Equal(t, "Filesystem MCP", tools[0].Name)
	assert.Equal(t, "Read and write local files", tools[0].Description)
	assert.Equal(t, "https://github.com/a/fs", tools[0].URL)
	assert.Equal(t, "https://github.com/x/awesome", tools[0].SourceURL)
	assert.Equal(t, now, tools[0].FirstDiscovered)

	assert.Equal(t, "Vector Store Server", tools[1].Name)
	assert.Equal(t, "Embedding search over documents", tools[1].Description)
	assert.Equal(t, []string{"embedding", "search"}, tools[1].Tags())

	assert.Equal(t, "RAG Toolkit", tools[2].Name)
	assert.Equal(t, "Python library for retrieval", tools[2].Description)
	assert.Equal(t, []string{"library", "python", "rag"}, tools[2].Tags())
}

func TestExtractTools_LinkShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		markdown string
		wantName string
		wantURL  string
		wantDesc string
	}{
		{
			name:     "badge before the name",
			markdown: "- [![stars](https://img.shields.io/github/stars/a/b)](https://github.com/a/b) [Browser MCP](https://github.com/a/b) - Drive a browser\n",
			wantName: "Browser MCP",
			wantURL:  "https://github.com/a/b",
			wantDesc: "Drive a browser",
		},
		{
			name:     "badge only",
			markdown: "- [![Memory MCP](https://example.com/logo.png)](https://github.com/m/mem) Persistent memory\n",
			wantName: "Memory MCP",
			wantURL:  "https://github.com/m/mem",
			wantDesc: "Persistent memory",
		},
		{
			name:     "parentheses in url",
			markdown: "- [MCP (protocol)](https://en.wikipedia.org/wiki/Model_(protocol)) - Overview\n",
			wantName: "MCP (protocol)",
			wantURL:  "https://en.wikipedia.org/wiki/Model_(protocol)",
			wantDesc: "Overview",
		},
		{
			name:     "emphasis and code in name",
			markdown: "* [**`mcp-sql`**](https://github.com/s/sql) \u2014 Query *databases*\n",
			wantName: "mcp-sql",
			wantURL:  "https://github.com/s/sql",
			wantDesc: "Query databases",
		},
		{
			name:     "table row with badge",
			markdown: "| Name | About |\n|---|---|\n| [![Claude Tools](https://x/b.svg)](https://github.com/c/t) | Helpers |\n",
			wantName: "Claude Tools",
			wantURL:  "https://github.com/c/t",
			wantDesc: "Helpers",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			tools := awesome.ExtractTools(tt.markdown, "https://github.com/x/awesome", time.Now())
			require.Len(t, tools, 1)
			assert.Equal(t, tt.wantName, tools[0].Name)
			assert.Equal(t, tt.wantURL, tools[0].URL)
			assert.Equal(t, tt.wantDesc, tools[0].Description)
		})
	}
}

func TestExtractTools_SkipsAnchorsAndNestedParents(t *testing.T) {
	t.Parallel()

	const md = `- [MCP Servers](#mcp-servers)
- Frameworks
  - [FastMCP](https://github.com/f/fastmcp) - Python MCP framework
`
	tools := awesome.ExtractTools(md, "https://github.com/x/awesome", time.Now())
	require.Len(t, tools, 1)
	assert.Equal(t, "FastMCP", tools[0].Name)
	assert.Equal(t, "Python MCP framework", tools[0].Description)
}

func TestIsMCPTool(t *testing.T) {
	t.Parallel()

	assert.True(t, awesome.IsMCPTool("GitHub MCP", ""))
	assert.True(t, awesome.IsMCPTool("Docs", "semantic search for docs"))
	assert.True(t, awesome.IsMCPTool("Bot", "Works with Claude"))
	assert.False(t, awesome.IsMCPTool("Storage", "leverage garage storage"))
	assert.False(t, awesome.IsMCPTool("Weather", "Forecast data"))
}

func TestExtractTags_Languages(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"cli", "go"}, awesome.ExtractTags("mcp-cli", "A Golang terminal client"))
	assert.Equal(t, []string{"c#"}, awesome.ExtractTags("Sharp", "Written in C#"))
	assert.Empty(t, awesome.ExtractTags("Thing", "going places"))
}

type stubFetcher struct {
	owner, repo string
	readme      string
	err         error
}

func (s *stubFetcher) FetchGitHubReadme(_ context.Context, owner, repo string) (string, error) {
	s.owner, s.repo = owner, repo
	return s.readme, s.err
}

func TestCrawler_Crawl(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{readme: readme}
	c := awesome.NewCrawler(fetcher, nil)

	source := domain.NewSource("https://github.com/x/awesome", "Awesome", domain.SourceTypeAwesomeList)
	tools, err := c.Crawl(context.Background(), source)
	require.NoError(t, err)
	assert.Len(t, tools, 3)
	assert.Equal(t, "x", fetcher.owner)
	assert.Equal(t, "awesome", fetcher.repo)
}

func TestCrawler_Errors(t *testing.T) {
	t.Parallel()

	c := awesome.NewCrawler(&stubFetcher{}, nil)
	_, err := c.Crawl(context.Background(), domain.Source{URL: "https://example.com/list"})
	require.ErrorIs(t, err, awesome.ErrNotGitHubRepo)

	boom := errors.New("boom")
	c = awesome.NewCrawler(&stubFetcher{err: boom}, nil)
	_, err = c.Crawl(context.Background(), domain.Source{URL: "https://github.com/a/b"})
	require.ErrorIs(t, err, boom)
}
