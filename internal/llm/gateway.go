// Package llm is the single integration point for model completions.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Gateway returns a completion for a system and user prompt. Model and
// temperature are fixed by the implementation's configuration.
type Gateway interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// ErrGateway matches every GatewayError via errors.Is.
var ErrGateway = errors.New("llm gateway error")

// Reason classifies a gateway failure for logs and metrics. Callers treat all
// reasons the same way.
type Reason string

// Failure reasons.
const (
	ReasonTimeout     Reason = "timeout"
	ReasonRateLimited Reason = "rate_limited"
	ReasonAuth        Reason = "auth"
	ReasonInvalid     Reason = "invalid_request"
	ReasonUpstream    Reason = "upstream"
	ReasonEmpty       Reason = "empty"
	ReasonTransport   Reason = "transport"
	ReasonCircuitOpen Reason = "circuit_open"
)

// GatewayError is the uniform failure returned by every Gateway.
type GatewayError struct {
	Op     string
	Reason Reason
	Err    error
}

func (e *GatewayError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("llm %s: %s", e.Op, e.Reason)
	}
	return fmt.Sprintf("llm %s: %s: %v", e.Op, e.Reason, e.Err)
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Is reports whether target is ErrGateway.
func (e *GatewayError) Is(target error) bool { return target == ErrGateway }

// retryable reports whether another attempt might succeed.
func (e *GatewayError) retryable() bool {
	switch e.Reason {
	case ReasonTimeout, ReasonRateLimited, ReasonUpstream, ReasonTransport:
		return true
	default:
		return false
	}
}

// ReasonOf extracts the reason from err, or "" when err is not a GatewayError.
func ReasonOf(err error) Reason {
	var gwErr *GatewayError
	if errors.As(err, &gwErr) {
		return gwErr.Reason
	}
	return ""
}
