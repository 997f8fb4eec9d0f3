package domain

import "time"

// MCPTool is a catalog entry discovered on a source.
type MCPTool struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	URL             string         `json:"url"`
	SourceURL       string         `json:"source_url"`
	FirstDiscovered time.Time      `json:"first_discovered"`
	LastUpdated     time.Time      `json:"last_updated"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Tags returns the tag list stored in the tool metadata, if any.
func (t MCPTool) Tags() []string {
	switch v := t.Metadata["tags"].(type) {
	case []string:
		return v
	case []any:
		tags := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				tags = append(tags, s)
			}
		}
		return tags
	}
	return nil
}

// CrawlResult summarises a single crawl of one source.
type CrawlResult struct {
	SourceID        string    `json:"source_id"`
	Timestamp       time.Time `json:"timestamp"`
	Success         bool      `json:"success"`
	ToolsDiscovered int       `json:"tools_discovered"`
	NewTools        int       `json:"new_tools"`
	UpdatedTools    int       `json:"updated_tools"`
	DurationMS      int64     `json:"duration_ms"`
	Error           string    `json:"error,omitempty"`
}
