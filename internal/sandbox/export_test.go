package sandbox

import lua "github.com/yuin/gopher-lua"

// WithGlobal installs an extra Go function into every VM the executor creates.
func (e *Executor) WithGlobal(name string, fn lua.LGFunction) *Executor {
	if e.globals == nil {
		e.globals = make(map[string]lua.LGFunction)
	}
	e.globals[name] = fn
	return e
}
