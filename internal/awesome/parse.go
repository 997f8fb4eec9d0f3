// Package awesome extracts MCP tools from GitHub "awesome list" READMEs.
package awesome

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// ErrNotGitHubRepo is returned for URLs that do not name a github.com repository.
var ErrNotGitHubRepo = errors.New("not a GitHub repository URL")

var tokenPattern = regexp.MustCompile(`[a-z0-9#+]+`)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Table))

// descriptionSeparators are stripped from the start of a list item description.
const descriptionSeparators = "-:\u2013\u2014 \t"

// ParseGitHubRepo returns the owner and repository named by a github.com URL.
func ParseGitHubRepo(rawURL string) (owner, repo string, err error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrNotGitHubRepo, err)
	}
	host := strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	if host != "github.com" {
		return "", "", fmt.Errorf("%w: %s", ErrNotGitHubRepo, rawURL)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %s", ErrNotGitHubRepo, rawURL)
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// ExtractTools finds MCP-related links in README markdown. The README is
// rendered to HTML first; list items ("- [Name](url) - description") are read
// before table rows ("| [Name](url) | description |").
func ExtractTools(readme, sourceURL string, now time.Time) []domain.MCPTool {
	now = now.UTC()

	var buf bytes.Buffer
	if err := markdown.Convert([]byte(readme), &buf); err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(&buf)
	if err != nil {
		return nil
	}

	var tools []domain.MCPTool
	add := func(name, link, description string) {
		name = collapse(name)
		link = strings.TrimSpace(link)
		description = collapse(description)
		if name == "" || link == "" || strings.HasPrefix(link, "#") || !IsMCPTool(name, description) {
			return
		}
		if description == "" {
			description = name
		}
		tools = append(tools, domain.MCPTool{
			ID:              "tool-" + uuid.NewString(),
			Name:            name,
			Description:     description,
			URL:             link,
			SourceURL:       sourceURL,
			FirstDiscovered: now,
			LastUpdated:     now,
			Metadata:        map[string]any{"tags": ExtractTags(name, description)},
		})
	}

	doc.Find("li").Each(func(_ int, li *goquery.Selection) {
		item := li.Clone()
		item.Find("ul, ol").Remove()

		name, link, text := leadingLink(item)
		if link == "" {
			return
		}
		description := collapse(item.Text())
		if text != "" {
			description = strings.Replace(description, collapse(text), "", 1)
		}
		add(name, link, strings.TrimLeft(description, descriptionSeparators))
	})

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("td")
		if cells.Length() < 2 {
			return
		}
		name, link, _ := leadingLink(cells.First())
		if link == "" {
			return
		}
		add(name, link, cells.Eq(1).Text())
	})
	return tools
}

// leadingLink returns the first named link in sel. A link with text wins over
// a badge link, whose name falls back to the image alt text. text is the
// anchor's own text.
func leadingLink(sel *goquery.Selection) (name, link, text string) {
	var badgeName, badgeLink string
	sel.Find("a[href]").EachWithBreak(func(_ int, a *goquery.Selection) bool {
		href, _ := a.Attr("href")
		if t := collapse(a.Text()); t != "" {
			name, link, text = t, href, a.Text()
			return false
		}
		if badgeLink == "" {
			if alt := collapse(a.Find("img").AttrOr("alt", "")); alt != "" {
				badgeName, badgeLink = alt, href
			}
		}
		return true
	})
	if link == "" {
		return badgeName, badgeLink, ""
	}
	return name, link, text
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Short keywords only match whole words so "rag" does not hit "storage".
var (
	mcpWordKeywords   = []string{"mcp", "rag", "gpt", "llama", "claude", "openai", "langchain"}
	mcpPhraseKeywords = []string{
		"machine context protocol", "model context protocol", "context window",
		"ai context", "llm context", "large language model", "ai assistant",
		"code assistant", "retrieval", "ai tool", "ai agent", "prompt engineering",
		"context engineering", "document embedding", "embedding", "vector database",
		"vector store", "semantic search",
	}
)

// IsMCPTool reports whether name and description look MCP related.
func IsMCPTool(name, description string) bool {
	combined := strings.ToLower(name + " " + description)
	words := tokenSet(combined)

	for _, kw := range mcpWordKeywords {
		if words[kw] {
			return true
		}
	}
	for _, kw := range mcpPhraseKeywords {
		if strings.Contains(combined, kw) {
			return true
		}
	}
	return false
}

var tagCategories = map[string][]string{
	"library":   {"library", "sdk", "framework", "package", "module"},
	"cli":       {"cli", "command line", "terminal"},
	"api":       {"api", "service", "endpoint", "rest"},
	"ui":        {"ui", "interface", "dashboard", "web app"},
	"plugin":    {"plugin", "extension", "addon"},
	"rag":       {"rag", "retrieval", "augmented generation"},
	"embedding": {"embedding", "embeddings", "vector", "vectorization"},
	"indexing":  {"index", "indexing", "indexer"},
	"search":    {"search", "query"},
	"agent":     {"agent", "autonomous"},
}

var languages = []string{
	"python", "javascript", "typescript", "java", "c#", "ruby",
	"go", "golang", "rust", "php", "swift", "kotlin",
}

// ExtractTags returns sorted category and language tags for a tool.
func ExtractTags(name, description string) []string {
	combined := strings.ToLower(name + " " + description)
	words := tokenSet(combined)

	set := make(map[string]bool)
	for tag, keywords := range tagCategories {
		for _, kw := range keywords {
			if matchKeyword(combined, words, kw) {
				set[tag] = true
				break
			}
		}
	}
	for _, lang := range languages {
		if words[lang] {
			if lang == "golang" {
				lang = "go"
			}
			set[lang] = true
		}
	}

	tags := make([]string, 0, len(set))
	for tag := range set {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

// matchKeyword matches multi-word keywords as substrings and single words as tokens.
func matchKeyword(combined string, words map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(combined, kw)
	}
	return words[kw]
}

func tokenSet(s string) map[string]bool {
	words := make(map[string]bool)
	for _, w := range tokenPattern.FindAllString(s, -1) {
		words[w] = true
	}
	return words
}
