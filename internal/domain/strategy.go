package domain

import (
	"time"

	"github.com/google/uuid"
)

// CrawlerStrategy is a generated extraction program bound to a source.
// The id/source_id/source_type/implementation/description/created/last_modified
// shape is what the sandbox consumes and must stay stable.
type CrawlerStrategy struct {
	ID             string      `json:"id"`
	SourceID       string      `json:"source_id"`
	SourceType     SourceType  `json:"source_type"`
	Implementation string      `json:"implementation"`
	Description    string      `json:"description"`
	Created        time.Time   `json:"created"`
	LastModified   time.Time   `json:"last_modified"`
	Review         *CodeReview `json:"review,omitempty"`
}

// NewCrawlerStrategy creates a strategy with a fresh id and matching timestamps.
func NewCrawlerStrategy(source Source, implementation, description string, now time.Time) CrawlerStrategy {
	now = now.UTC()
	return CrawlerStrategy{
		ID:             "crawler-" + uuid.NewString(),
		SourceID:       source.ID,
		SourceType:     source.Type,
		Implementation: implementation,
		Description:    description,
		Created:        now,
		LastModified:   now,
	}
}

// CodeReview is the static review verdict attached to a generated strategy.
// It is advisory: a review with errors does not block the strategy.
type CodeReview struct {
	HasErrors             bool     `json:"has_errors"`
	Issues                []string `json:"issues"`
	SuggestedImprovements []string `json:"suggested_improvements"`
	SecurityScore         float64  `json:"security_score"`
	EfficiencyScore       float64  `json:"efficiency_score"`
	OverallAssessment     string   `json:"overall_assessment"`
}
