package sandbox_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sandbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lua "github.com/yuin/gopher-lua"
)

const pageHTML = `<html><body>
<ul class="tools">
  <li><a href="https://github.com/a/fs">FS Server</a><span class="desc">Filesystem access</span></li>
  <li><a href="https://github.com/b/git">Git Server</a><span class="desc">Git operations</span></li>
</ul>
</body></html>`

func newExecutor() *sandbox.Executor {
	return sandbox.New(sandbox.Config{Timeout: 500 * time.Millisecond}, nil, nil)
}

func TestExecute_LiteralRecord(t *testing.T) {
	t.Parallel()

	code := "function extract_tools(html) return {{name='A', description='B', url='C'}} end"

	records, err := newExecutor().Execute(context.Background(), code, "<p>anything</p>")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, sandbox.Record{Name: "A", Description: "B", URL: "C"}, records[0])
}

func TestExecute_MissingFieldsFailsValidation(t *testing.T) {
	t.Parallel()

	code := "function extract_tools(html) return {{name='A'}} end"

	records, err := newExecutor().Execute(context.Background(), code, "<p></p>")
	require.ErrorIs(t, err, sandbox.ErrValidation)
	assert.Equal(t, sandbox.KindValidation, sandbox.KindOf(err))
	assert.Nil(t, records)
}

func TestExecute_ShapeValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
	}{
		{"nil result", "return nil"},
		{"string result", "return 'tools'"},
		{"map instead of list", "return {first = {name='A', description='B', url='C'}}"},
		{"sparse list", "return {[1] = {name='A', description='B', url='C'}, [3] = {name='D', description='E', url='F'}}"},
		{"non-table element", "return {'A'}"},
		{"one bad element among good", "return {{name='A', description='B', url='C'}, {name='D', url='F'}}"},
		{"boolean url", "return {{name='A', description='B', url=true}}"},
		{"tags not a list", "return {{name='A', description='B', url='C', tags='x'}}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			code := "function extract_tools(html) " + tt.body + " end"
			records, err := newExecutor().Execute(context.Background(), code, "")
			require.ErrorIs(t, err, sandbox.ErrValidation)
			assert.Nil(t, records)
		})
	}
}

func TestExecute_EmptyListIsValid(t *testing.T) {
	t.Parallel()

	records, err := newExecutor().Execute(context.Background(), "function extract_tools(html) return {} end", "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecute_UsesHTMLAndRegexCapabilities(t *testing.T) {
	t.Parallel()

	code := `
function extract_tools(html)
  local doc = html_parse(html)
  local tools = {}
  for _, li in ipairs(doc:select("ul.tools li")) do
    local link = li:select("a")[1]
    local desc = li:select(".desc")[1]
    local href = link:attr("href")
    local parts = re.match("github\\.com/([^/]+)/([^/]+)", href)
    table.insert(tools, {
      name = link:text(),
      description = desc:text(),
      url = href,
      tags = {parts[2], string.lower(re.gsub("\\s+", link:text(), "-"))},
    })
  end
  return tools
end`

	records, err := newExecutor().Execute(context.Background(), code, pageHTML)
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, "FS Server", records[0].Name)
	assert.Equal(t, "Filesystem access", records[0].Description)
	assert.Equal(t, "https://github.com/a/fs", records[0].URL)
	assert.Equal(t, []string{"a", "fs-server"}, records[0].Tags)
	assert.Equal(t, "Git Server", records[1].Name)
}

func TestExecute_HTMLGlobalAndMissingAttr(t *testing.T) {
	t.Parallel()

	code := `
function extract_tools(page)
  local doc = html_parse(html)
  local title = doc:select("ul")[1]:attr("title")
  return {{name = tostring(title), description = tostring(page == html), url = "u"}}
end`

	records, err := newExecutor().Execute(context.Background(), code, pageHTML)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "nil", records[0].Name)
	assert.Equal(t, "true", records[0].Description)
}

func TestExecute_DisallowedOperations(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
	}{
		{"file read", "function extract_tools(html) local f = io.open('/etc/passwd') return {} end"},
		{"process", "function extract_tools(html) os.execute('ls') return {} end"},
		{"require socket", "function extract_tools(html) local s = require('socket') return {} end"},
		{"network global", "function extract_tools(html) return http.get('http://example.com') end"},
		{"dynamic code", "function extract_tools(html) return loadstring('return {}')() end"},
		{"file loader", "function extract_tools(html) dofile('/tmp/x.lua') return {} end"},
		{"swallowed by pcall", "function extract_tools(html) pcall(function() return io.lines('/etc/hosts') end) return {} end"},
		{"top-level access", "local f = io\nfunction extract_tools(html) return {} end"},
		{"detached guard", "function extract_tools(html) setmetatable(_G, nil) local f = io.open('/etc/passwd') return {} end"},
		{"replaced guard", "function extract_tools(html) setmetatable(_G, {}) return {} end"},
		{"detach swallowed by pcall", "function extract_tools(html) pcall(setmetatable, _G, nil) return {} end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			records, err := newExecutor().Execute(context.Background(), tt.code, "")
			require.ErrorIs(t, err, sandbox.ErrDisallowed, "got %v", err)
			assert.Nil(t, records)
		})
	}
}

func TestExecute_GlobalMetatableIsLocked(t *testing.T) {
	t.Parallel()

	code := `function extract_tools(html)
  local t = setmetatable({}, {__index = function() return "meta" end})
  return {{name = tostring(getmetatable(_G)), description = t.anything, url = "u"}}
end`

	records, err := newExecutor().Execute(context.Background(), code, "")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "locked", records[0].Name)
	assert.Equal(t, "meta", records[0].Description)
}

func TestExecute_UnguardedUnknownGlobalIsNil(t *testing.T) {
	t.Parallel()

	code := "function extract_tools(html) if coroutine == nil and xpcall == nil then return {} end return nil end"

	records, err := newExecutor().Execute(context.Background(), code, "")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestExecute_CompileErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
	}{
		{"syntax error", "function extract_tools(html) return {{ end"},
		{"python source", "def extract_tools(html):\n    return []"},
		{"wrong function name", "function extract(html) return {} end"},
		{"empty", "   "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := newExecutor().Execute(context.Background(), tt.code, "")
			require.ErrorIs(t, err, sandbox.ErrCompile, "got %v", err)
		})
	}
}

func TestExecute_RuntimeError(t *testing.T) {
	t.Parallel()

	code := "function extract_tools(html) local t = nil return t.x end"

	_, err := newExecutor().Execute(context.Background(), code, "")
	require.ErrorIs(t, err, sandbox.ErrRuntime)
	assert.NotErrorIs(t, err, sandbox.ErrValidation)
}

func TestExecute_Timeout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code string
	}{
		{"busy loop", "function extract_tools(html) while true do end end"},
		{"loop around pcall", "function extract_tools(html) while true do pcall(function() while true do end end) end end"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := sandbox.New(sandbox.Config{Timeout: 100 * time.Millisecond}, nil, nil)

			start := time.Now()
			_, err := exec.Execute(context.Background(), tt.code, "")
			require.ErrorIs(t, err, sandbox.ErrTimeout, "got %v", err)
			assert.Less(t, time.Since(start), 5*time.Second)
		})
	}
}

func TestExecute_LuaPatternFunctionsUnavailable(t *testing.T) {
	t.Parallel()

	html := strings.Repeat(`<a class="x" href="https://example.com/tool">tool</a>`, 200)

	tests := []struct {
		name string
		code string
	}{
		{"string.match", `function extract_tools(html) string.match(html, '<a(.-)href="(.-)"(.-)</nomatch>') return {} end`},
		{"method match", `function extract_tools(html) html:match('<a(.-)href="(.-)"(.-)</nomatch>') return {} end`},
		{"string.find", `function extract_tools(html) string.find(html, '<a(.-)href="(.-)"(.-)</nomatch>') return {} end`},
		{"string.gmatch", `function extract_tools(html) for a in string.gmatch(html, 'href="(.-)"') do end return {} end`},
		{"string.gsub", `function extract_tools(html) string.gsub(html, '<(.-)>', '') return {} end`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exec := sandbox.New(sandbox.Config{Timeout: 200 * time.Millisecond}, nil, nil)

			start := time.Now()
			records, err := exec.Execute(context.Background(), tt.code, html)
			require.ErrorIs(t, err, sandbox.ErrRuntime, "got %v", err)
			assert.Contains(t, err.Error(), "use re.match")
			assert.Nil(t, records)
			assert.Less(t, time.Since(start), 2*time.Second)
		})
	}
}

func TestExecute_DeadlineHoldsDuringGoCall(t *testing.T) {
	t.Parallel()

	exec := sandbox.New(sandbox.Config{Timeout: 100 * time.Millisecond}, nil, nil).
		WithGlobal("slow", func(*lua.LState) int {
			time.Sleep(2 * time.Second)
			return 0
		})

	start := time.Now()
	records, err := exec.Execute(context.Background(), "function extract_tools(html) slow() return {} end", "")
	require.ErrorIs(t, err, sandbox.ErrTimeout, "got %v", err)
	assert.Nil(t, records)
	assert.Less(t, time.Since(start), time.Second)
}

// Not parallel: the heap is shared with every other test in the package.
func TestExecute_MemoryLimit(t *testing.T) {
	exec := sandbox.New(sandbox.Config{Timeout: 10 * time.Second, MaxMemoryBytes: 16 << 20}, nil, nil)

	code := `function extract_tools(html)
  local s = string.rep("x", 64 * 1024)
  for i = 1, 40 do s = s .. s end
  return {}
end`

	records, err := exec.Execute(context.Background(), code, "")
	require.ErrorIs(t, err, sandbox.ErrMemoryLimit, "got %v", err)
	assert.Equal(t, sandbox.KindRuntime, sandbox.KindOf(err))
	assert.Nil(t, records)
}

func TestExecute_InputTooLarge(t *testing.T) {
	t.Parallel()

	exec := sandbox.New(sandbox.Config{MaxHTMLBytes: 10}, nil, nil)

	_, err := exec.Execute(context.Background(), "function extract_tools(html) return {} end", strings.Repeat("x", 11))
	require.ErrorIs(t, err, sandbox.ErrInputTooLarge)
}

func TestExecute_StringRepIsBounded(t *testing.T) {
	t.Parallel()

	code := "function extract_tools(html) local s = string.rep('x', 1e9) return {} end"

	_, err := newExecutor().Execute(context.Background(), code, "")
	require.ErrorIs(t, err, sandbox.ErrRuntime)
}

func TestExecute_ConcurrentRunsAreIsolated(t *testing.T) {
	t.Parallel()

	exec := newExecutor()
	code := `
counter = (counter or 0) + 1
function extract_tools(html)
  return {{name = tostring(counter), description = html, url = "u"}}
end`

	var wg sync.WaitGroup
	errs := make([]error, 10)
	names := make([]string, 10)
	for i := range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			records, err := exec.Execute(context.Background(), code, "page")
			errs[i] = err
			if err == nil {
				names[i] = records[0].Name
			}
		}()
	}
	wg.Wait()

	for i := range 10 {
		require.NoError(t, errs[i])
		assert.Equal(t, "1", names[i])
	}
}

func TestRun_MapsToTools(t *testing.T) {
	t.Parallel()

	strategy := domain.CrawlerStrategy{
		ID:             "crawler-1",
		SourceID:       "source-1",
		Implementation: "function extract_tools(html) return {{name='A', description='', url='https://a', tags={'x'}}} end",
	}

	tools, err := newExecutor().Run(context.Background(), strategy, "https://source.example", "<p></p>")
	require.NoError(t, err)
	require.Len(t, tools, 1)

	tool := tools[0]
	assert.True(t, strings.HasPrefix(tool.ID, "tool-"))
	assert.Equal(t, "A", tool.Name)
	assert.Equal(t, "A", tool.Description, "empty description falls back to name")
	assert.Equal(t, "https://source.example", tool.SourceURL)
	assert.Equal(t, tool.FirstDiscovered, tool.LastUpdated)
	assert.Equal(t, []string{"x"}, tool.Tags())
}

func TestRun_FailureReturnsNoTools(t *testing.T) {
	t.Parallel()

	strategy := domain.CrawlerStrategy{Implementation: "function extract_tools(html) return {{name='A'}} end"}

	tools, err := newExecutor().Run(context.Background(), strategy, "https://source.example", "")
	require.ErrorIs(t, err, sandbox.ErrValidation)
	assert.Nil(t, tools)
}

func TestToTools_FreshIDs(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	records := []sandbox.Record{
		{Name: "A", Description: "a", URL: "https://same"},
		{Name: "A", Description: "a", URL: "https://same"},
	}

	tools := sandbox.ToTools(records, "https://src", now)
	require.Len(t, tools, 2)
	assert.NotEqual(t, tools[0].ID, tools[1].ID)
	assert.Equal(t, now, tools[0].FirstDiscovered)
	assert.Empty(t, tools[0].Tags())
}
