package generator

import (
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
)

// State is the value threaded through the stages. Stages receive a copy and
// return a new value; once Error is set or Finished is true it is halted and
// every later stage returns it unchanged.
type State struct {
	Source   domain.Source
	HTML     string
	Analysis *WebsiteAnalysis
	Patterns []ExtractionPattern
	Code     string
	Review   *domain.CodeReview
	Strategy *domain.CrawlerStrategy
	Error    string
	Finished bool
}

// NewState creates the initial state for a source.
func NewState(source domain.Source) State {
	return State{Source: source}
}

// Halted reports whether no further stage may modify the state.
func (s State) Halted() bool {
	return s.Error != "" || s.Finished
}

// fail records msg as the terminal error.
func (s State) fail(msg string) State {
	if s.Error == "" {
		s.Error = msg
	}
	s.Finished = true
	return s
}

// Result converts a final state into a caller-facing result.
func (s State) Result() Result {
	if s.Error != "" || s.Strategy == nil {
		msg := s.Error
		if msg == "" {
			msg = "generation did not produce a strategy"
		}
		return Result{Status: StatusFailed, Error: msg}
	}
	return Result{Status: StatusSuccess, Strategy: s.Strategy, Review: s.Review}
}
