package sandbox

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	lua "github.com/yuin/gopher-lua"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

const selectionTypeName = "html_selection"

// guardedNames are globals whose use counts as a disallowed operation.
var guardedNames = map[string]bool{
	"io": true, "os": true, "require": true, "dofile": true, "loadfile": true,
	"load": true, "loadstring": true, "module": true, "package": true,
	"debug": true, "collectgarbage": true, "getfenv": true, "setfenv": true,
	"newproxy": true, "http": true, "socket": true, "net": true,
	"_printregs": true,
}

// keptGlobals survive the pruning of the base library.
var keptGlobals = map[string]bool{
	"_G": true, "_VERSION": true,
	"ipairs": true, "pairs": true, "next": true, "type": true, "tostring": true,
	"tonumber": true, "select": true, "error": true, "assert": true, "pcall": true,
	"unpack": true, "rawget": true, "rawequal": true, "setmetatable": true,
	"getmetatable": true,
	"string": true, "table": true, "math": true,
}

// openLibs loads only the pure libraries into a state created with SkipOpenLibs.
func openLibs(L *lua.LState) error {
	libs := []struct {
		name string
		fn   lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
		{lua.MathLibName, lua.OpenMath},
	}
	for _, lib := range libs {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.fn),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			return err
		}
	}

	var drop []lua.LValue
	L.G.Global.ForEach(func(k, _ lua.LValue) {
		if name, ok := k.(lua.LString); !ok || !keptGlobals[string(name)] {
			drop = append(drop, k)
		}
	})
	for _, k := range drop {
		L.G.Global.RawSet(k, lua.LNil)
	}
	return nil
}

// patternFuncs run Lua patterns in a single backtracking Go call that the
// deadline cannot interrupt. The re table covers the same ground with RE2.
var patternFuncs = []string{"find", "match", "gmatch", "gsub"}

// installGuard makes reads of guarded globals record a violation and raise.
// The global table's metatable is locked so the guard cannot be removed.
func (r *run) installGuard(L *lua.LState) {
	setmetatable := L.GetGlobal("setmetatable")
	L.SetGlobal("setmetatable", L.NewFunction(func(L *lua.LState) int {
		if tbl, ok := L.Get(1).(*lua.LTable); ok && tbl == L.G.Global {
			r.violate("setmetatable(_G)")
			L.RaiseError("disallowed operation: the global table is locked")
			return 0
		}
		top := L.GetTop()
		L.Push(setmetatable)
		for i := 1; i <= top; i++ {
			L.Push(L.Get(i))
		}
		L.Call(top, 1)
		return 1
	}))

	mt := L.NewTable()
	L.SetField(mt, "__metatable", lua.LString("locked"))
	L.SetField(mt, "__index", L.NewFunction(func(L *lua.LState) int {
		if name, ok := L.Get(2).(lua.LString); ok && guardedNames[string(name)] {
			r.violate(string(name))
			L.RaiseError("disallowed operation: %s is not available in the sandbox", string(name))
			return 0
		}
		L.Push(lua.LNil)
		return 1
	}))
	L.SetMetatable(L.G.Global, mt)
}

// installBuiltins replaces pcall, print and string.rep with sandbox-aware versions.
func (r *run) installBuiltins(L *lua.LState) {
	L.SetGlobal("pcall", L.NewFunction(r.pcall))
	L.SetGlobal("print", L.NewFunction(r.print))

	if str, ok := L.GetGlobal("string").(*lua.LTable); ok {
		L.SetField(str, "rep", L.NewFunction(r.stringRep))
		for _, name := range patternFuncs {
			L.SetField(str, name, L.NewFunction(func(L *lua.LState) int {
				L.RaiseError("string.%s is not available, use re.match, re.find_all or re.gsub", name)
				return 0
			}))
		}
	}
}

// pcall behaves like the base pcall but never swallows a timeout or a
// disallowed operation.
func (r *run) pcall(L *lua.LState) int {
	L.CheckAny(1)
	nargs := L.GetTop() - 1
	err := L.PCall(nargs, lua.MultRet, nil)

	if ctxErr := L.Context().Err(); ctxErr != nil {
		L.RaiseError("%s", ctxErr.Error())
		return 0
	}
	if name := r.firstViolation(); name != "" {
		L.RaiseError("disallowed operation: %s is not available in the sandbox", name)
		return 0
	}

	if err != nil {
		L.Push(lua.LFalse)
		if apiErr, ok := err.(*lua.ApiError); ok {
			L.Push(apiErr.Object)
		} else {
			L.Push(lua.LString(err.Error()))
		}
		return 2
	}

	L.Insert(lua.LTrue, 1)
	return L.GetTop()
}

func (r *run) print(L *lua.LState) int {
	parts := make([]string, 0, L.GetTop())
	for i := 1; i <= L.GetTop(); i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	r.log.Debug("Sandbox print", logger.String("output", strings.Join(parts, "\t")))
	return 0
}

func (r *run) stringRep(L *lua.LState) int {
	s := L.CheckString(1)
	n := L.CheckInt(2)
	if n <= 0 || s == "" {
		L.Push(lua.LString(""))
		return 1
	}
	if len(s)*n > r.maxStringBytes || len(s)*n < 0 {
		L.RaiseError("string.rep result exceeds %d bytes", r.maxStringBytes)
		return 0
	}
	L.Push(lua.LString(strings.Repeat(s, n)))
	return 1
}

// installHTML exposes html_parse and the selection methods backed by goquery.
func (r *run) installHTML(L *lua.LState) {
	mt := L.NewTypeMetatable(selectionTypeName)
	methods := map[string]lua.LGFunction{
		"select": selectionSelect,
		"find":   selectionSelect,
		"text":   selectionText,
		"attr":   selectionAttr,
		"html":   selectionHTML,
	}
	L.SetField(mt, "__index", L.SetFuncs(L.NewTable(), methods))

	L.SetGlobal("html_parse", L.NewFunction(func(L *lua.LState) int {
		text := L.CheckString(1)
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
		if err != nil {
			L.RaiseError("html_parse: %v", err)
			return 0
		}
		L.Push(newSelection(L, doc.Selection))
		return 1
	}))
}

func newSelection(L *lua.LState, sel *goquery.Selection) *lua.LUserData {
	ud := L.NewUserData()
	ud.Value = sel
	L.SetMetatable(ud, L.GetTypeMetatable(selectionTypeName))
	return ud
}

func checkSelection(L *lua.LState) *goquery.Selection {
	ud := L.CheckUserData(1)
	if sel, ok := ud.Value.(*goquery.Selection); ok {
		return sel
	}
	L.ArgError(1, "html node expected")
	return nil
}

func selectionSelect(L *lua.LState) int {
	sel := checkSelection(L)
	css := L.CheckString(2)

	matches := sel.Find(css)
	out := L.CreateTable(matches.Length(), 0)
	matches.Each(func(_ int, s *goquery.Selection) {
		out.Append(newSelection(L, s))
	})
	L.Push(out)
	return 1
}

func selectionText(L *lua.LState) int {
	L.Push(lua.LString(checkSelection(L).Text()))
	return 1
}

func selectionAttr(L *lua.LState) int {
	sel := checkSelection(L)
	val, ok := sel.Attr(L.CheckString(2))
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(val))
	return 1
}

func selectionHTML(L *lua.LState) int {
	h, err := checkSelection(L).Html()
	if err != nil {
		L.RaiseError("html: %v", err)
		return 0
	}
	L.Push(lua.LString(h))
	return 1
}

// installRegexp exposes the re table backed by Go's RE2 engine.
func (r *run) installRegexp(L *lua.LState) {
	re := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"match": func(L *lua.LState) int {
			m := r.compile(L).FindStringSubmatch(L.CheckString(2))
			if m == nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(stringsTable(L, m))
			return 1
		},
		"find_all": func(L *lua.LState) int {
			all := r.compile(L).FindAllStringSubmatch(L.CheckString(2), -1)
			out := L.CreateTable(len(all), 0)
			for _, m := range all {
				out.Append(stringsTable(L, m))
			}
			L.Push(out)
			return 1
		},
		"gsub": func(L *lua.LState) int {
			pattern := r.compile(L)
			L.Push(lua.LString(pattern.ReplaceAllString(L.CheckString(2), L.CheckString(3))))
			return 1
		},
		"split": func(L *lua.LState) int {
			L.Push(stringsTable(L, r.compile(L).Split(L.CheckString(2), -1)))
			return 1
		},
	})
	L.SetGlobal("re", re)
}

func (r *run) compile(L *lua.LState) *regexp.Regexp {
	pattern := L.CheckString(1)
	if re, ok := r.patterns[pattern]; ok {
		return re
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		L.RaiseError("re: invalid pattern %q: %v", pattern, err)
		return nil
	}
	r.patterns[pattern] = re
	return re
}

func stringsTable(L *lua.LState, values []string) *lua.LTable {
	t := L.CreateTable(len(values), 0)
	for _, v := range values {
		t.Append(lua.LString(v))
	}
	return t
}
