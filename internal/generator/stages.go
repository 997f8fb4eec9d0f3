package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/llm"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

// Stage names, in pipeline order.
const (
	StageFetch            = "fetch"
	StageAnalyze          = "analyze"
	StageIdentifyPatterns = "identify_patterns"
	StageGenerateCode     = "generate_code"
	StageTestCode         = "test_code"
	StageFinalize         = "finalize"
)

// Default HTML bounds.
const (
	DefaultHTMLFetchChars   = 20000
	DefaultHTMLPreviewChars = 10000
)

// PageFetcher retrieves the raw HTML of a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// StageFunc transforms a state. Failures are recorded in the returned state.
type StageFunc func(ctx context.Context, s State) State

// Config bounds the HTML carried through the stages.
type Config struct {
	HTMLFetchChars   int
	HTMLPreviewChars int
}

// Stages holds the collaborators used by each stage.
type Stages struct {
	fetcher PageFetcher
	gateway llm.Gateway
	config  Config
	log     logger.Logger
	now     func() time.Time
}

// NewStages creates the stage set.
func NewStages(fetcher PageFetcher, gateway llm.Gateway, cfg Config, log logger.Logger) *Stages {
	if cfg.HTMLFetchChars <= 0 {
		cfg.HTMLFetchChars = DefaultHTMLFetchChars
	}
	if cfg.HTMLPreviewChars <= 0 {
		cfg.HTMLPreviewChars = DefaultHTMLPreviewChars
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Stages{
		fetcher: fetcher,
		gateway: gateway,
		config:  cfg,
		log:     log,
		now:     time.Now,
	}
}

// WithClock overrides the time source used for strategy timestamps.
func (st *Stages) WithClock(now func() time.Time) *Stages {
	st.now = now
	return st
}

// Fetch downloads the source page, keeping at most HTMLFetchChars characters.
func (st *Stages) Fetch(ctx context.Context, s State) State {
	if s.Halted() {
		return s
	}

	html, err := st.fetcher.Fetch(ctx, s.Source.URL)
	if err != nil {
		return s.fail(fmt.Sprintf("fetch website: %v", err))
	}

	s.HTML = truncateRunes(html, st.config.HTMLFetchChars)
	if strings.TrimSpace(s.HTML) == "" {
		return s.fail("fetch website: empty response body")
	}
	return s
}

// Analyze asks the model for a structured description of the page.
func (st *Stages) Analyze(ctx context.Context, s State) State {
	if s.Halted() {
		return s
	}
	if s.HTML == "" {
		return s.fail("analyze website: no HTML content")
	}

	preview := truncateRunes(s.HTML, st.config.HTMLPreviewChars)
	resp, err := st.gateway.Complete(ctx, analyzeSystemPrompt, analyzePrompt(s.Source.URL, preview))
	if err != nil {
		return s.fail(fmt.Sprintf("analyze website: %v", err))
	}

	var analysis WebsiteAnalysis
	if err := decodeObject(resp, &analysis); err != nil {
		return s.fail(fmt.Sprintf("analyze website: invalid analysis JSON: %v", err))
	}

	s.Analysis = &analysis
	return s
}

// IdentifyPatterns confirms the model's selector hints against the HTML and
// adds repeated structures it finds on its own. It does not call the model.
func (st *Stages) IdentifyPatterns(_ context.Context, s State) State {
	if s.Halted() {
		return s
	}

	refiner, err := NewPatternRefiner(s.HTML)
	if err != nil {
		return s.fail(fmt.Sprintf("identify patterns: %v", err))
	}

	var candidates []PatternCandidate
	if s.Analysis != nil {
		candidates = s.Analysis.KeyPatterns
	}

	s.Patterns = refiner.Refine(candidates)
	return s
}

// GenerateCode asks the model for an extract_tools function and extracts it.
func (st *Stages) GenerateCode(ctx context.Context, s State) State {
	if s.Halted() {
		return s
	}

	preview := truncateRunes(s.HTML, st.config.HTMLPreviewChars)
	prompt := generatePrompt(s.Source.URL, preview, s.Analysis, s.Patterns)

	resp, err := st.gateway.Complete(ctx, generateSystemPrompt, prompt)
	if err != nil {
		return s.fail(fmt.Sprintf("generate crawler code: %v", err))
	}

	code, err := ExtractCode(resp)
	if err != nil {
		st.log.Debug("Model output without extractable code",
			logger.SourceID(s.Source.ID),
			logger.String("preview", truncateRunes(resp, previewLength)),
		)
		return s.fail(fmt.Sprintf("generate crawler code: %v", err))
	}

	s.Code = code
	return s
}

// TestCode has the model statically review the generated code. The verdict is
// advisory: a review reporting errors does not halt the pipeline.
func (st *Stages) TestCode(ctx context.Context, s State) State {
	if s.Halted() {
		return s
	}
	if s.Code == "" {
		return s.fail("test crawler code: no code to review")
	}

	resp, err := st.gateway.Complete(ctx, reviewSystemPrompt, reviewPrompt(s.Source.URL, s.Code))
	if err != nil {
		return s.fail(fmt.Sprintf("test crawler code: %v", err))
	}

	var review domain.CodeReview
	if err := decodeObject(resp, &review); err != nil {
		return s.fail(fmt.Sprintf("test crawler code: invalid review JSON: %v", err))
	}

	if review.HasErrors {
		st.log.Warn("Generated code review reported errors",
			logger.SourceID(s.Source.ID),
			logger.Strings("issues", review.Issues),
		)
	}

	s.Review = &review
	return s
}

// Finalize packages the strategy. A failed description call falls back to a
// generic description rather than failing the run.
func (st *Stages) Finalize(ctx context.Context, s State) State {
	if s.Halted() {
		return s
	}
	if s.Code == "" {
		return s.fail("finalize strategy: no code")
	}

	description := fallbackDescription(s.Source)
	resp, err := st.gateway.Complete(ctx, describeSystemPrompt, describePrompt(s.Source.URL, s.Code))
	switch {
	case err != nil:
		st.log.Warn("Using fallback crawler description",
			logger.SourceID(s.Source.ID),
			logger.Error(err),
		)
	case strings.TrimSpace(resp) != "":
		description = strings.TrimSpace(resp)
	}

	strategy := domain.NewCrawlerStrategy(s.Source, s.Code, description, st.now())
	if s.Review != nil {
		review := *s.Review
		strategy.Review = &review
	}

	s.Strategy = &strategy
	s.Finished = true
	return s
}

func fallbackDescription(source domain.Source) string {
	name := source.Name
	if name == "" {
		name = source.URL
	}
	return "AI-generated crawler for " + name
}

var errNotObject = errors.New("response is not a JSON object")

// decodeObject parses resp as exactly one JSON object. Prose or code fences
// around the object are rejected, not stripped.
func decodeObject(resp string, v any) error {
	trimmed := strings.TrimSpace(resp)
	if !strings.HasPrefix(trimmed, "{") {
		return errNotObject
	}
	return json.Unmarshal([]byte(trimmed), v)
}
