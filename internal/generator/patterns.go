package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	sampleTextLength = 100
	// minRepeat is the smallest sibling group treated as a listing.
	minRepeat        = 3
	maxDiscovered    = 5
	highConfidence   = 0.90
	mediumConfidence = 0.75
	lowConfidence    = 0.60
	// linkBonus rewards hints whose matches carry links.
	linkBonus = 0.05
)

// repeatableTags are elements that typically wrap one listing entry.
var repeatableTags = []string{"li", "tr", "article", "div", "section", "dt"}

// genericTags are too common to group without a class or parent id.
var genericTags = map[string]bool{"div": true, "section": true}

// PatternRefiner validates model-proposed selectors against a parsed page and
// discovers repeated link-bearing structures the model did not mention.
type PatternRefiner struct {
	doc *goquery.Document
}

// NewPatternRefiner parses html for refinement.
func NewPatternRefiner(html string) (*PatternRefiner, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &PatternRefiner{doc: doc}, nil
}

// Refine returns the confirmed hints followed by discovered patterns, highest
// confidence first. An empty result is valid.
func (r *PatternRefiner) Refine(candidates []PatternCandidate) []ExtractionPattern {
	patterns := r.validateCandidates(candidates)

	seen := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		seen[p.Selector] = true
	}
	for _, p := range r.DiscoverRepeated() {
		if !seen[p.Selector] {
			patterns = append(patterns, p)
			seen[p.Selector] = true
		}
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].Confidence > patterns[j].Confidence
	})

	return patterns
}

// validateCandidates keeps hints whose selector matches at least one element.
func (r *PatternRefiner) validateCandidates(candidates []PatternCandidate) []ExtractionPattern {
	patterns := make([]ExtractionPattern, 0, len(candidates))

	for _, c := range candidates {
		sel := strings.TrimSpace(c.Selector)
		if sel == "" {
			continue
		}

		matches := r.doc.Find(sel)
		count := matches.Length()
		if count == 0 {
			continue
		}

		links := matches.Find("a[href]").Length() + matches.Filter("a[href]").Length()

		sample := strings.TrimSpace(c.SampleText)
		if sample == "" {
			sample = truncateText(collapseSpace(matches.First().Text()), sampleTextLength)
		}

		patterns = append(patterns, ExtractionPattern{
			Selector:           sel,
			PatternType:        c.PatternType,
			ContentType:        c.ContentType,
			SampleText:         sample,
			ExtractionStrategy: c.ExtractionStrategy,
			MatchCount:         count,
			LinkCount:          links,
			Confidence:         candidateConfidence(count, links),
			Origin:             OriginAnalysis,
		})
	}

	return patterns
}

func candidateConfidence(count, links int) float64 {
	confidence := lowConfidence
	switch {
	case count >= minRepeat:
		confidence = highConfidence
	case count > 1:
		confidence = mediumConfidence
	}
	if links > 0 {
		confidence += linkBonus
	}
	return confidence
}

// DiscoverRepeated finds groups of same-tag, same-class siblings that each
// contain a link, a common shape for tool listings.
func (r *PatternRefiner) DiscoverRepeated() []ExtractionPattern {
	type group struct {
		tag      string
		selector string
		count    int
		withLink int
		sample   string
	}

	groups := make(map[string]*group)
	var order []string

	for _, tag := range repeatableTags {
		r.doc.Find(tag).Each(func(_ int, s *goquery.Selection) {
			sel := signature(tag, s)
			if sel == tag && genericTags[tag] {
				return
			}
			g, ok := groups[sel]
			if !ok {
				g = &group{tag: tag, selector: sel}
				groups[sel] = g
				order = append(order, sel)
			}
			g.count++

			link := s.Find("a[href]").First()
			if link.Length() == 0 {
				return
			}
			g.withLink++
			if g.sample == "" {
				g.sample = truncateText(collapseSpace(link.Text()), sampleTextLength)
			}
		})
	}

	var patterns []ExtractionPattern
	for _, sel := range order {
		g := groups[sel]
		if g.withLink < minRepeat {
			continue
		}
		ratio := float64(g.withLink) / float64(g.count)
		patterns = append(patterns, ExtractionPattern{
			Selector:    g.selector,
			PatternType: "repeated_" + g.tag,
			ContentType: "tool_listing",
			SampleText:  g.sample,
			MatchCount:  g.count,
			LinkCount:   g.withLink,
			Confidence:  discoveredConfidence(g.withLink, ratio),
			Origin:      OriginDiscovered,
		})
	}

	sort.SliceStable(patterns, func(i, j int) bool {
		return patterns[i].LinkCount > patterns[j].LinkCount
	})
	if len(patterns) > maxDiscovered {
		patterns = patterns[:maxDiscovered]
	}

	return patterns
}

func discoveredConfidence(withLink int, ratio float64) float64 {
	const manyEntries = 10
	switch {
	case withLink >= manyEntries && ratio >= 0.8:
		return mediumConfidence + linkBonus
	case ratio >= 0.8:
		return mediumConfidence
	default:
		return lowConfidence
	}
}

// signature renders tag plus sorted classes as a CSS selector, optionally
// scoped by the parent's id.
func signature(tag string, s *goquery.Selection) string {
	var b strings.Builder

	if parentID, ok := s.Parent().Attr("id"); ok && isSimpleIdent(parentID) {
		b.WriteString("#")
		b.WriteString(parentID)
		b.WriteString(" > ")
	}

	b.WriteString(tag)

	class, _ := s.Attr("class")
	classes := strings.Fields(class)
	sort.Strings(classes)
	for _, c := range classes {
		if isSimpleIdent(c) {
			b.WriteString(".")
			b.WriteString(c)
		}
	}

	return b.String()
}

func isSimpleIdent(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
		case (r >= '0' && r <= '9') || r == '-':
			if i == 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateText(text string, maxLen int) string {
	if len([]rune(text)) <= maxLen {
		return text
	}
	return truncateRunes(text, maxLen) + "..."
}
