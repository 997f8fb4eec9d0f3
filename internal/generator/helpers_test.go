package generator_test

import (
	"context"
	"errors"
	"sync"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// fakeGateway replays scripted replies in call order.
type fakeGateway struct {
	mu      sync.Mutex
	replies []reply
	prompts []string
}

type reply struct {
	text string
	err  error
}

func (g *fakeGateway) Complete(_ context.Context, _, user string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.prompts = append(g.prompts, user)
	if len(g.replies) == 0 {
		return "", errors.New("fake gateway: no scripted reply")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.text, r.err
}

func (g *fakeGateway) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.prompts)
}

type fakeFetcher struct {
	html string
	err  error
}

func (f fakeFetcher) Fetch(context.Context, string) (string, error) {
	return f.html, f.err
}

const listingHTML = `<html><body>
<h1>MCP Tools</h1>
<ul id="tools">
  <li class="tool"><a href="https://github.com/a/fs-server">FS Server</a> - filesystem access</li>
  <li class="tool"><a href="https://github.com/b/git-server">Git Server</a> - git operations</li>
  <li class="tool"><a href="https://github.com/c/db-server">DB Server</a> - database queries</li>
  <li class="tool"><a href="https://github.com/d/web-server">Web Server</a> - web search</li>
</ul>
<div class="footer"><a href="/about">About</a></div>
</body></html>`

const analysisJSON = `{
  "site_type": "directory",
  "technologies": ["static html"],
  "has_anti_bot": false,
  "navigation_structure": {"type": "single page"},
  "key_patterns": [
    {"selector": "ul#tools li.tool", "pattern_type": "list", "content_type": "tool",
     "sample_text": "FS Server", "extraction_strategy": "anchor text is the name"},
    {"selector": ".does-not-exist", "pattern_type": "card", "content_type": "tool",
     "sample_text": "", "extraction_strategy": "n/a"}
  ],
  "challenges": [],
  "recommended_approach": "iterate list items"
}`

const generatedCode = "function extract_tools(html)\n  local tools = {}\n  return tools\nend"

const reviewJSON = `{"has_errors": false, "issues": [], "suggested_improvements": ["trim text", "dedupe"],
  "security_score": 9, "efficiency_score": 8.5, "overall_assessment": "fine"}`

func testSource() domain.Source {
	src := domain.NewSource("https://mcp.example/tools", "Example Tools", domain.SourceTypeWebsite)
	src.ID = "source-test"
	return src
}
