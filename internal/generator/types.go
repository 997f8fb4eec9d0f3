// Package generator turns an arbitrary website into a reusable crawler strategy.
// A fixed sequence of stages fetches the page, asks the model to analyze it,
// refines the suggested extraction patterns against the real DOM, generates a
// Lua extract_tools function, has the model review it, and packages the result.
package generator

import (
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// WebsiteAnalysis is the model's structured description of a page.
type WebsiteAnalysis struct {
	SiteType            string             `json:"site_type"`
	Technologies        []string           `json:"technologies"`
	HasAntiBot          bool               `json:"has_anti_bot"`
	NavigationStructure any                `json:"navigation_structure"`
	KeyPatterns         []PatternCandidate `json:"key_patterns"`
	Challenges          []string           `json:"challenges"`
	RecommendedApproach string             `json:"recommended_approach"`
}

// PatternCandidate is an extraction hint proposed by the model.
type PatternCandidate struct {
	Selector           string `json:"selector"`
	PatternType        string `json:"pattern_type"`
	ContentType        string `json:"content_type"`
	SampleText         string `json:"sample_text"`
	ExtractionStrategy string `json:"extraction_strategy"`
}

// Pattern origins.
const (
	OriginAnalysis   = "analysis"
	OriginDiscovered = "discovered"
)

// ExtractionPattern is a selector confirmed against the fetched HTML.
type ExtractionPattern struct {
	Selector           string  `json:"selector"`
	PatternType        string  `json:"pattern_type"`
	ContentType        string  `json:"content_type,omitempty"`
	SampleText         string  `json:"sample_text,omitempty"`
	ExtractionStrategy string  `json:"extraction_strategy,omitempty"`
	MatchCount         int     `json:"match_count"`
	LinkCount          int     `json:"link_count"`
	Confidence         float64 `json:"confidence"`
	Origin             string  `json:"origin"`
}

// Result statuses.
const (
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Result is what callers of Pipeline.Generate receive. A failed run carries no strategy.
type Result struct {
	Status   string                  `json:"status"`
	Strategy *domain.CrawlerStrategy `json:"strategy,omitempty"`
	Review   *domain.CodeReview      `json:"review,omitempty"`
	Error    string                  `json:"error,omitempty"`
}
