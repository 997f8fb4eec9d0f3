package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/api"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/generator"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/metrics"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sandbox"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sources"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

type fakeCrawls struct {
	result   generator.Result
	genErr   error
	tools    []domain.MCPTool
	runErr   error
	gotRun   domain.Source
	crawlRes domain.CrawlResult
}

func (f *fakeCrawls) GenerateStrategy(context.Context, domain.Source) (generator.Result, error) {
	return f.result, f.genErr
}

func (f *fakeCrawls) RunStrategy(_ context.Context, _ domain.CrawlerStrategy, source domain.Source) ([]domain.MCPTool, error) {
	f.gotRun = source
	return f.tools, f.runErr
}

func (f *fakeCrawls) CrawlSource(_ context.Context, source domain.Source) domain.CrawlResult {
	f.crawlRes.SourceID = source.ID
	return f.crawlRes
}

type testServer struct {
	server  *api.Server
	crawls  *fakeCrawls
	store   *storage.Store
	manager *sources.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	metrics.New(reg).RecordCrawl(domain.CrawlStatusSuccess, 1, time.Second)

	ts := &testServer{
		crawls:  &fakeCrawls{},
		store:   store,
		manager: sources.NewManager(store.Sources, nil),
	}
	handler := api.NewHandler(api.HandlerDeps{
		Crawls:   ts.crawls,
		Sources:  ts.manager,
		Tools:    store.Tools,
		History:  store.CrawlResults,
		Gatherer: reg,
		Service:  "tool-crawler",
		Version:  "test",
	})
	ts.server = api.NewServer(config.ServerConfig{Address: ":0"}, false, logger.NewNop(), handler.Register)
	return ts
}

func (ts *testServer) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.server.Router().ServeHTTP(rec, req)

	var out map[string]any
	if rec.Header().Get("Content-Type") != "" && bytes.HasPrefix(rec.Body.Bytes(), []byte("{")) {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	}
	return rec, out
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", body["status"])
	assert.NotEmpty(t, rec.Header().Get(api.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool_crawler_crawls_total")
}

func TestGenerate_Success(t *testing.T) {
	ts := newTestServer(t)
	src := domain.NewSource("https://x.example", "X", domain.SourceTypeWebsite)
	strategy := domain.NewCrawlerStrategy(src, "function extract_tools(html) return {} end", "d", time.Now())
	ts.crawls.result = generator.Result{Status: generator.StatusSuccess, Strategy: &strategy}

	rec, body := ts.do(t, http.MethodPost, "/api/v1/crawlers/generate", map[string]any{
		"source": map[string]any{"url": "https://x.example", "name": "X", "type": "website"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "success", body["status"])
	require.IsType(t, map[string]any{}, body["strategy"])
	assert.Equal(t, strategy.ID, body["strategy"].(map[string]any)["id"])
}

func TestGenerate_Failure(t *testing.T) {
	ts := newTestServer(t)
	ts.crawls.result = generator.Result{Status: generator.StatusFailed, Error: "Fetch error: timeout"}
	ts.crawls.genErr = errors.New("crawler generation failed")

	rec, body := ts.do(t, http.MethodPost, "/api/v1/crawlers/generate", map[string]any{
		"source": map[string]any{"url": "https://x.example"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, "Fetch error: timeout", body["error"])
}

func TestGenerate_MissingURL(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/crawlers/generate", map[string]any{"source": map[string]any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRun_Success(t *testing.T) {
	ts := newTestServer(t)
	ts.crawls.tools = []domain.MCPTool{{ID: "tool-1", Name: "A", Description: "B", URL: "C"}}

	rec, body := ts.do(t, http.MethodPost, "/api/v1/crawlers/run", map[string]any{
		"source":           map[string]any{"id": "source-1", "url": "https://x.example", "type": "website"},
		"crawler_strategy": map[string]any{"id": "crawler-1", "implementation": "function extract_tools(html) end"},
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, body["count"], 0)
	assert.Equal(t, "source-1", body["source_id"])
	assert.Equal(t, "https://x.example", body["source_url"])
	assert.Equal(t, "source-1", ts.crawls.gotRun.ID)
}

func TestRun_SandboxFailureKind(t *testing.T) {
	ts := newTestServer(t)
	exec := sandbox.New(sandbox.Config{}, nil, nil)
	_, ts.crawls.runErr = exec.Execute(context.Background(), "function extract_tools(html) return {{name='A'}} end", "")

	rec, body := ts.do(t, http.MethodPost, "/api/v1/crawlers/run", map[string]any{
		"source":           map[string]any{"url": "https://x.example"},
		"crawler_strategy": map[string]any{"implementation": "x"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "validation", body["kind"])
}

func TestRun_RequiresImplementation(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodPost, "/api/v1/crawlers/run", map[string]any{
		"source": map[string]any{"url": "https://x.example"},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSources_AddListGetCrawl(t *testing.T) {
	ts := newTestServer(t)

	rec, body := ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{
		"url": "https://github.com/a/awesome-mcp", "type": "github_awesome_list",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	assert.Equal(t, true, body["has_known_crawler"])

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"url": "https://github.com/a/awesome-mcp"})
	assert.Equal(t, http.StatusOK, rec.Code, "duplicate URL returns the existing source")

	rec, body = ts.do(t, http.MethodGet, "/api/v1/sources", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, body["count"], 0)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/sources/"+id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["id"])

	ts.crawls.crawlRes = domain.CrawlResult{Success: true, ToolsDiscovered: 4}
	rec, body = ts.do(t, http.MethodPost, "/api/v1/sources/"+id+"/crawl", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id, body["source_id"])
	assert.InDelta(t, 4, body["tools_discovered"], 0)
}

func TestSources_AddDetectsType(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		url  string
		want string
	}{
		{"https://github.com/punkpeye/awesome-mcp-servers", "github_awesome_list"},
		{"https://github.com/modelcontextprotocol/servers", "github_repository"},
		{"https://mcp.so", "website"},
	}

	for _, tt := range tests {
		rec, body := ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"url": tt.url})
		require.Equal(t, http.StatusCreated, rec.Code, tt.url)
		assert.Equal(t, tt.want, body["type"], tt.url)
	}
}

func TestSources_Errors(t *testing.T) {
	ts := newTestServer(t)

	rec, _ := ts.do(t, http.MethodGet, "/api/v1/sources/source-missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"url": "ftp://x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/sources", map[string]any{"url": "https://x.example", "type": "blog"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestToolsAndCrawls(t *testing.T) {
	ts := newTestServer(t)
	ctx := context.Background()

	_, err := ts.store.Tools.Save(ctx, []domain.MCPTool{{ID: "tool-1", Name: "A", URL: "https://a"}})
	require.NoError(t, err)
	require.NoError(t, ts.store.CrawlResults.Append(ctx, domain.CrawlResult{SourceID: "s1", Success: true}))

	rec, body := ts.do(t, http.MethodGet, "/api/v1/tools", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, body["count"], 0)

	rec, body = ts.do(t, http.MethodGet, "/api/v1/crawls?limit=10", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.InDelta(t, 1, body["count"], 0)

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/crawls?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecoveryMiddleware(t *testing.T) {
	ts := newTestServer(t)
	ts.server.Router().GET("/panic", func(*gin.Context) { panic("boom") })

	rec, body := ts.do(t, http.MethodGet, "/panic", nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal server error", body["error"])
}
