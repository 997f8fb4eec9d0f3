package generator

import (
	"encoding/json"
	"fmt"
	"strings"
)

const analyzeSystemPrompt = `You are an expert web scraping analyst. You study the HTML of a page that lists
MCP (Model Context Protocol) tools, servers or related resources and describe how
those entries can be extracted.

Respond with a single JSON object and nothing else, using exactly these keys:
{
  "site_type": string,
  "technologies": [string],
  "has_anti_bot": boolean,
  "navigation_structure": object or string,
  "key_patterns": [
    {
      "selector": "CSS selector matching one entry or its container",
      "pattern_type": "list | table | card | link | other",
      "content_type": "what the matched element holds",
      "sample_text": "text from one matched element",
      "extraction_strategy": "how to get name, description and url from it"
    }
  ],
  "challenges": [string],
  "recommended_approach": string
}`

const generateSystemPrompt = `You are an expert web scraper writing Lua 5.1 code that extracts MCP (Model
Context Protocol) tools from a web page.

Write exactly one global function with this signature:

` + "```lua" + `
function extract_tools(html)
  -- your code here
  return {{name = "...", description = "...", url = "..."}}
end
` + "```" + `

The function runs in a restricted interpreter. Only these are available:
- the string, table and math libraries and the basic functions
  (ipairs, pairs, type, tostring, tonumber, pcall, error, select, unpack).
  string.find, string.match, string.gmatch and string.gsub are not available;
  use the re functions below for all pattern matching
- html_parse(text) returns a document; doc:select(css) returns an array of nodes;
  node:text(), node:attr(name), node:select(css), node:html()
- re.match(pattern, s) returns {whole, group1, ...} or nil;
  re.find_all(pattern, s) returns a list of such tables;
  re.gsub(pattern, s, repl) uses $1 for groups; re.split(pattern, s).
  Patterns are RE2 regular expressions

There is no io, os, require, load or network access. Do not use them.
Return an array of tables. Each table must have string fields name, description
and url, and may have a tags field holding an array of strings. Skip entries
without a url. Return the code in a single fenced lua block.`

const reviewSystemPrompt = `You review Lua 5.1 extraction code written for a restricted interpreter that
only exposes html_parse, re, string, table and math. Do not run the code.

Respond with a single JSON object and nothing else:
{
  "has_errors": boolean,
  "issues": [string],
  "suggested_improvements": [string],
  "security_score": number from 0 to 10,
  "efficiency_score": number from 0 to 10,
  "overall_assessment": string
}`

const describeSystemPrompt = `You write short, plain descriptions of web crawlers. Given Lua extraction code
and the site it targets, describe in one or two sentences what the crawler
extracts and how. Reply with the description only.`

func analyzePrompt(url, html string) string {
	return fmt.Sprintf("Analyze the page at %s.\n\nHTML:\n%s", url, html)
}

func generatePrompt(url, preview string, analysis *WebsiteAnalysis, patterns []ExtractionPattern) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Generate a crawler function for the website: %s\n\n", url)

	if analysis != nil {
		if data, err := json.MarshalIndent(analysis, "", "  "); err == nil {
			b.WriteString("Website analysis:\n")
			b.Write(data)
			b.WriteString("\n\n")
		}
	}

	if len(patterns) == 0 {
		b.WriteString("No repeated structure was confirmed on the page. Inspect the HTML carefully.\n\n")
	} else {
		b.WriteString("Selectors confirmed against the page (most reliable first):\n")
		for _, p := range patterns {
			fmt.Fprintf(&b, "- %s (%s, %d matches, %d with links, confidence %.2f)",
				p.Selector, p.PatternType, p.MatchCount, p.LinkCount, p.Confidence)
			if p.SampleText != "" {
				fmt.Fprintf(&b, " sample: %q", p.SampleText)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	b.WriteString("HTML preview:\n")
	b.WriteString(preview)

	return b.String()
}

func reviewPrompt(url, code string) string {
	return fmt.Sprintf("Review this extraction code for %s:\n\n```lua\n%s\n```", url, code)
}

func describePrompt(source, code string) string {
	return fmt.Sprintf("Site: %s\n\nCode:\n```lua\n%s\n```", source, code)
}
