package llm

import (
	"context"
	"errors"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/circuitbreaker"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/retry"
)

// ResilienceConfig tunes retries and the circuit breaker around a gateway.
type ResilienceConfig struct {
	MaxAttempts      int
	InitialDelay     time.Duration
	MaxDelay         time.Duration
	FailureThreshold int
	OpenTimeout      time.Duration
}

// ResilientGateway retries transient failures and stops calling the upstream
// while its circuit is open.
type ResilientGateway struct {
	next    Gateway
	retry   retry.Config
	breaker *circuitbreaker.Breaker
	log     logger.Logger
}

// NewResilientGateway wraps next with retry and circuit breaking.
func NewResilientGateway(next Gateway, cfg ResilienceConfig, log logger.Logger, m *metrics.Metrics) *ResilientGateway {
	if log == nil {
		log = logger.NewNop()
	}

	g := &ResilientGateway{next: next, log: log}

	g.retry = retry.Config{
		MaxAttempts:  cfg.MaxAttempts,
		InitialDelay: cfg.InitialDelay,
		MaxDelay:     cfg.MaxDelay,
		IsRetryable: func(err error) bool {
			var gwErr *GatewayError
			return errors.As(err, &gwErr) && gwErr.retryable()
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			log.Info("Retrying LLM completion",
				logger.Int("attempt", attempt),
				logger.Duration("delay", delay),
				logger.String("reason", string(ReasonOf(err))),
			)
		},
	}

	g.breaker = circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.FailureThreshold,
		Timeout:          cfg.OpenTimeout,
		OnStateChange: func(from, to circuitbreaker.State) {
			m.SetLLMCircuitState(int(to))
			log.Warn("LLM circuit breaker state changed",
				logger.String("from", from.String()),
				logger.String("to", to.String()),
			)
		},
	})

	return g
}

// Complete implements Gateway.
func (g *ResilientGateway) Complete(ctx context.Context, system, user string) (string, error) {
	var text string

	err := retry.Do(ctx, g.retry, func(ctx context.Context) error {
		return g.breaker.Execute(ctx, func(ctx context.Context) error {
			out, err := g.next.Complete(ctx, system, user)
			if err != nil {
				return err
			}
			text = out
			return nil
		})
	})
	if err == nil {
		return text, nil
	}

	var gwErr *GatewayError
	switch {
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		return "", &GatewayError{Op: "complete", Reason: ReasonCircuitOpen, Err: err}
	case errors.As(err, &gwErr):
		return "", &GatewayError{Op: gwErr.Op, Reason: gwErr.Reason, Err: err}
	case errors.Is(err, retry.ErrContextCancelled):
		return "", &GatewayError{Op: "complete", Reason: ReasonTimeout, Err: err}
	default:
		return "", &GatewayError{Op: "complete", Reason: ReasonTransport, Err: err}
	}
}
