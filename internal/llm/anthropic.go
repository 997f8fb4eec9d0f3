package llm

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
)

// Defaults for the Anthropic gateway.
const (
	DefaultModel       = "claude-sonnet-4-5"
	DefaultTemperature = 0.2
	DefaultMaxTokens   = 4096
	DefaultTimeout     = 120 * time.Second
)

// AnthropicConfig configures the Anthropic Messages API gateway.
type AnthropicConfig struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// AnthropicGateway completes prompts with the Anthropic Messages API.
type AnthropicGateway struct {
	client  anthropic.Client
	config  AnthropicConfig
	log     logger.Logger
	metrics *metrics.Metrics
}

// NewAnthropicGateway creates a gateway. Retries are disabled in the SDK; wrap
// the gateway with NewResilientGateway to retry.
func NewAnthropicGateway(cfg AnthropicConfig, log logger.Logger, m *metrics.Metrics) *AnthropicGateway {
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if log == nil {
		log = logger.NewNop()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGateway{
		client:  anthropic.NewClient(opts...),
		config:  cfg,
		log:     log.With(logger.String("model", cfg.Model)),
		metrics: m,
	}
}

// Complete sends one user turn and returns the concatenated text blocks.
func (g *AnthropicGateway) Complete(ctx context.Context, system, user string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.config.Timeout)
	defer cancel()

	start := time.Now()
	msg, err := g.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(g.config.Model),
		MaxTokens:   int64(g.config.MaxTokens),
		Temperature: anthropic.Float(g.config.Temperature),
		System:      []anthropic.TextBlockParam{{Text: system}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(user)),
		},
	})
	if err != nil {
		reason := classify(ctx, err)
		g.metrics.RecordLLMRequest(string(reason))
		g.log.Warn("LLM completion failed",
			logger.String("reason", string(reason)),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return "", &GatewayError{Op: "complete", Reason: reason, Err: err}
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	text := strings.TrimSpace(sb.String())
	if text == "" {
		g.metrics.RecordLLMRequest(string(ReasonEmpty))
		g.log.Warn("LLM returned empty completion", logger.String("stop_reason", string(msg.StopReason)))
		return "", &GatewayError{Op: "complete", Reason: ReasonEmpty}
	}

	g.metrics.RecordLLMRequest("success")
	g.log.Debug("LLM completion",
		logger.Duration("elapsed", time.Since(start)),
		logger.Int("chars", len(text)),
	)

	return text, nil
}

func classify(ctx context.Context, err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ReasonTimeout
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return ReasonRateLimited
		case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
			return ReasonAuth
		case apiErr.StatusCode == http.StatusRequestTimeout || apiErr.StatusCode == http.StatusGatewayTimeout:
			return ReasonTimeout
		case apiErr.StatusCode >= http.StatusBadRequest && apiErr.StatusCode < http.StatusInternalServerError:
			return ReasonInvalid
		default:
			return ReasonUpstream
		}
	}

	return ReasonTransport
}
