package sandbox

import (
	"errors"
	"fmt"
)

// Kind distinguishes why an execution failed.
type Kind string

// Failure kinds.
const (
	// KindCompile means the code does not parse or does not define extract_tools.
	KindCompile Kind = "compile"
	// KindRuntime means the code raised an error while running.
	KindRuntime Kind = "runtime"
	// KindDisallowed means the code reached for a capability the sandbox withholds.
	KindDisallowed Kind = "disallowed"
	// KindValidation means the code returned something other than a list of tool records.
	KindValidation Kind = "validation"
	// KindTimeout means the code exceeded the execution-time ceiling.
	KindTimeout Kind = "timeout"
)

// Sentinels matched by errors.Is against a *SandboxError of the same kind.
var (
	ErrCompile    = errors.New("sandbox compile error")
	ErrRuntime    = errors.New("sandbox runtime error")
	ErrDisallowed = errors.New("sandbox disallowed operation")
	ErrValidation = errors.New("sandbox validation error")
	ErrTimeout    = errors.New("sandbox timeout")
)

var kindSentinels = map[Kind]error{
	KindCompile:    ErrCompile,
	KindRuntime:    ErrRuntime,
	KindDisallowed: ErrDisallowed,
	KindValidation: ErrValidation,
	KindTimeout:    ErrTimeout,
}

// ErrInputTooLarge is wrapped when the HTML exceeds the configured limit.
var ErrInputTooLarge = errors.New("html input exceeds limit")

// ErrMemoryLimit is wrapped when a run grows the heap past MaxMemoryBytes.
var ErrMemoryLimit = errors.New("memory limit exceeded")

// SandboxError reports a failed execution. No tools accompany it.
type SandboxError struct {
	Kind Kind
	Msg  string
	Err  error
}

func newError(kind Kind, err error, format string, args ...any) *SandboxError {
	return &SandboxError{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

func (e *SandboxError) Error() string {
	return fmt.Sprintf("sandbox %s error: %s", e.Kind, e.Msg)
}

func (e *SandboxError) Unwrap() error { return e.Err }

// Is matches the sentinel for e.Kind.
func (e *SandboxError) Is(target error) bool {
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of a sandbox failure, or "" for other errors.
func KindOf(err error) Kind {
	var sbErr *SandboxError
	if errors.As(err, &sbErr) {
		return sbErr.Kind
	}
	return ""
}
