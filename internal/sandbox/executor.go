// Package sandbox runs generated extract_tools functions in an embedded Lua VM
// that only exposes HTML parsing, regular expressions and pure libraries.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
)

// FunctionName is the global the generated code must define.
const FunctionName = "extract_tools"

// Default limits.
const (
	DefaultTimeout         = 5 * time.Second
	DefaultMaxHTMLBytes    = 5 << 20
	DefaultCallStackSize   = 256
	DefaultRegistryMaxSize = 1 << 20
	DefaultMaxMemoryBytes  = 256 << 20
	defaultRegistrySize    = 1024 * 20
	defaultRegistryGrow    = 1024
	maxStringBytes         = 16 << 20
)

// Config sets the execution limits.
type Config struct {
	Timeout         time.Duration
	MaxHTMLBytes    int
	CallStackSize   int
	RegistryMaxSize int
	// MaxMemoryBytes bounds heap growth during a run. The heap is shared by
	// the process, so concurrent runs count against each other.
	MaxMemoryBytes uint64
}

// Executor compiles and runs generated code. Every call gets a fresh VM, so
// an Executor is safe for concurrent use.
type Executor struct {
	config  Config
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
	globals map[string]lua.LGFunction
}

// New creates an Executor.
func New(cfg Config, log logger.Logger, m *metrics.Metrics) *Executor {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxHTMLBytes <= 0 {
		cfg.MaxHTMLBytes = DefaultMaxHTMLBytes
	}
	if cfg.CallStackSize <= 0 {
		cfg.CallStackSize = DefaultCallStackSize
	}
	if cfg.RegistryMaxSize <= 0 {
		cfg.RegistryMaxSize = DefaultRegistryMaxSize
	}
	if cfg.MaxMemoryBytes == 0 {
		cfg.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Executor{config: cfg, log: log, metrics: m, now: time.Now}
}

// Run executes the strategy's implementation against html and maps the
// validated records to tools discovered on sourceURL.
func (e *Executor) Run(ctx context.Context, strategy domain.CrawlerStrategy, sourceURL, html string) ([]domain.MCPTool, error) {
	records, err := e.Execute(ctx, strategy.Implementation, html)
	if err != nil {
		e.log.Warn("Sandbox execution failed",
			logger.StrategyID(strategy.ID),
			logger.SourceID(strategy.SourceID),
			logger.String("kind", string(KindOf(err))),
			logger.Error(err),
		)
		return nil, err
	}
	return ToTools(records, sourceURL, e.now()), nil
}

// Execute compiles code, calls extract_tools(html) and validates the result.
// On failure it returns a *SandboxError and no records.
func (e *Executor) Execute(ctx context.Context, code, html string) (records []Record, err error) {
	defer func() {
		result := "success"
		if err != nil {
			result = string(KindOf(err))
		}
		e.metrics.RecordSandboxExecution(result)
	}()

	if len(html) > e.config.MaxHTMLBytes {
		return nil, newError(KindRuntime, ErrInputTooLarge, "html is %d bytes, limit %d", len(html), e.config.MaxHTMLBytes)
	}

	proto, err := compile(code)
	if err != nil {
		return nil, err
	}

	ctx, cancelTimeout := context.WithTimeout(ctx, e.config.Timeout)
	defer cancelTimeout()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	r := &run{
		log:            e.log,
		patterns:       make(map[string]*regexp.Regexp),
		maxStringBytes: maxStringBytes,
		globals:        e.globals,
	}

	go watchMemory(ctx, e.config.MaxMemoryBytes, cancel)

	// The VM only sees cancellation between instructions, so a long Go call
	// would outlive the deadline. The run is abandoned and closes its own VM.
	done := make(chan outcome, 1)
	go func() {
		recs, callErr := r.call(ctx, e.config, proto, html)
		done <- outcome{records: recs, err: callErr}
	}()

	select {
	case out := <-done:
		return out.records, out.err
	case <-ctx.Done():
		select {
		case out := <-done:
			return out.records, out.err
		default:
		}
		return nil, r.classify(ctx, context.Cause(ctx))
	}
}

type outcome struct {
	records []Record
	err     error
}

func compile(code string) (*lua.FunctionProto, error) {
	if strings.TrimSpace(code) == "" {
		return nil, newError(KindCompile, nil, "empty implementation")
	}

	chunk, err := parse.Parse(strings.NewReader(code), FunctionName)
	if err != nil {
		return nil, newError(KindCompile, err, "%v", err)
	}

	proto, err := lua.Compile(chunk, FunctionName)
	if err != nil {
		return nil, newError(KindCompile, err, "%v", err)
	}
	return proto, nil
}

// run holds the per-execution state shared by the installed capabilities.
type run struct {
	log            logger.Logger
	patterns       map[string]*regexp.Regexp
	maxStringBytes int
	globals        map[string]lua.LGFunction

	mu         sync.Mutex
	violations []string
}

func (r *run) violate(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, name)
}

func (r *run) firstViolation() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.violations) == 0 {
		return ""
	}
	return r.violations[0]
}

// call runs the chunk, looks up extract_tools, invokes it and validates the
// result before the VM is closed.
func (r *run) call(ctx context.Context, cfg Config, proto *lua.FunctionProto, html string) (records []Record, err error) {
	L := lua.NewState(lua.Options{
		SkipOpenLibs:     true,
		CallStackSize:    cfg.CallStackSize,
		RegistrySize:     defaultRegistrySize,
		RegistryMaxSize:  cfg.RegistryMaxSize,
		RegistryGrowStep: defaultRegistryGrow,
	})
	defer L.Close()

	defer func() {
		if rec := recover(); rec != nil {
			records = nil
			err = r.classify(ctx, fmt.Errorf("panic: %v", rec))
		}
	}()

	if openErr := openLibs(L); openErr != nil {
		return nil, newError(KindRuntime, openErr, "open libraries: %v", openErr)
	}
	r.installBuiltins(L)
	r.installHTML(L)
	r.installRegexp(L)
	for name, fn := range r.globals {
		L.SetGlobal(name, L.NewFunction(fn))
	}
	L.SetGlobal("html", lua.LString(html))
	r.installGuard(L)

	L.SetContext(ctx)

	L.Push(L.NewFunctionFromProto(proto))
	if loadErr := L.PCall(0, 0, nil); loadErr != nil {
		return nil, r.classify(ctx, loadErr)
	}

	fn, ok := L.G.Global.RawGetString(FunctionName).(*lua.LFunction)
	if !ok {
		return nil, newError(KindCompile, nil, "code does not define function %s", FunctionName)
	}

	if callErr := L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, lua.LString(html)); callErr != nil {
		return nil, r.classify(ctx, callErr)
	}

	ret := L.Get(-1)
	L.Pop(1)

	if name := r.firstViolation(); name != "" {
		return nil, newError(KindDisallowed, nil, "%s is not available in the sandbox", name)
	}

	return validateResult(ret)
}

func (r *run) classify(ctx context.Context, err error) error {
	if name := r.firstViolation(); name != "" {
		return newError(KindDisallowed, err, "%s is not available in the sandbox", name)
	}
	if errors.Is(context.Cause(ctx), ErrMemoryLimit) {
		return newError(KindRuntime, ErrMemoryLimit, "execution exceeded memory limit")
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, ctx.Err(), "execution exceeded time limit")
	}
	if ctx.Err() != nil {
		return newError(KindRuntime, ctx.Err(), "execution cancelled")
	}
	return newError(KindRuntime, err, "%v", err)
}
