package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/domain"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/generator"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sandbox"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/sources"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/storage"
)

const (
	defaultRecentLimit = 50
	maxRecentLimit     = 500
	kindFetch          = "fetch"
)

// CrawlService is the part of crawler.Service the handlers use.
type CrawlService interface {
	GenerateStrategy(ctx context.Context, source domain.Source) (generator.Result, error)
	RunStrategy(ctx context.Context, strategy domain.CrawlerStrategy, source domain.Source) ([]domain.MCPTool, error)
	CrawlSource(ctx context.Context, source domain.Source) domain.CrawlResult
}

// SourceRegistry is the part of sources.Manager the handlers use.
type SourceRegistry interface {
	Add(ctx context.Context, rawURL, name string, t domain.SourceType) (domain.Source, bool, error)
	List(ctx context.Context) ([]domain.Source, error)
	Get(ctx context.Context, id string) (domain.Source, error)
}

// CrawlHistory lists recent crawl results.
type CrawlHistory interface {
	Recent(ctx context.Context, limit int) ([]domain.CrawlResult, error)
}

// HandlerDeps holds the handler collaborators.
type HandlerDeps struct {
	Crawls   CrawlService
	Sources  SourceRegistry
	Tools    storage.ToolStore
	History  CrawlHistory
	Gatherer prometheus.Gatherer
	Service  string
	Version  string
}

// Handler serves the REST API.
type Handler struct {
	deps    HandlerDeps
	started time.Time
}

// NewHandler creates the API handler.
func NewHandler(deps HandlerDeps) *Handler {
	return &Handler{deps: deps, started: time.Now()}
}

// Register mounts all routes on r.
func (h *Handler) Register(r *gin.Engine) {
	r.GET("/health", h.health)
	if h.deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(h.deps.Gatherer, promhttp.HandlerOpts{})))
	}

	v1 := r.Group("/api/v1")
	{
		v1.POST("/crawlers/generate", h.generate)
		v1.POST("/crawlers/run", h.run)

		v1.GET("/sources", h.listSources)
		v1.POST("/sources", h.addSource)
		v1.GET("/sources/:id", h.getSource)
		v1.POST("/sources/:id/crawl", h.crawlSource)

		v1.GET("/tools", h.listTools)
		v1.GET("/crawls", h.listCrawls)
	}
}

func (h *Handler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.deps.Service,
		"version": h.deps.Version,
		"uptime":  time.Since(h.started).Round(time.Second).String(),
	})
}

type generateRequest struct {
	Source domain.Source `json:"source"`
}

func (h *Handler) generate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	source, msg := normalizeSource(req.Source)
	if msg != "" {
		badRequest(c, msg)
		return
	}

	result, err := h.deps.Crawls.GenerateStrategy(c.Request.Context(), source)
	if result.Status != generator.StatusSuccess {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": generator.StatusFailed, "error": result.Error})
		return
	}
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"status": generator.StatusFailed, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": generator.StatusSuccess, "strategy": result.Strategy})
}

type runRequest struct {
	Source   domain.Source          `json:"source"`
	Strategy domain.CrawlerStrategy `json:"crawler_strategy"`
}

func (h *Handler) run(c *gin.Context) {
	var req runRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	source, msg := normalizeSource(req.Source)
	if msg != "" {
		badRequest(c, msg)
		return
	}
	if strings.TrimSpace(req.Strategy.Implementation) == "" {
		badRequest(c, "crawler_strategy.implementation is required")
		return
	}

	tools, err := h.deps.Crawls.RunStrategy(c.Request.Context(), req.Strategy, source)
	if err != nil {
		kind := string(sandbox.KindOf(err))
		if kind == "" {
			kind = kindFetch
		}
		c.JSON(http.StatusUnprocessableEntity, gin.H{"status": generator.StatusFailed, "error": err.Error(), "kind": kind})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tools":      tools,
		"count":      len(tools),
		"source_id":  source.ID,
		"source_url": source.URL,
	})
}

// normalizeSource fills in an id and known-crawler flag for ad-hoc sources.
func normalizeSource(s domain.Source) (domain.Source, string) {
	if strings.TrimSpace(s.URL) == "" {
		return s, "source.url is required"
	}
	if s.Type == "" {
		s.Type = domain.SourceTypeWebsite
	}
	if !s.Type.Valid() {
		return s, "source.type is invalid"
	}
	if s.ID == "" {
		fresh := domain.NewSource(s.URL, s.Name, s.Type)
		fresh.CrawlerID = s.CrawlerID
		fresh.Metadata = s.Metadata
		return fresh, ""
	}
	return s, ""
}

func (h *Handler) listSources(c *gin.Context) {
	all, err := h.deps.Sources.List(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": all, "count": len(all)})
}

type addSourceRequest struct {
	URL  string `json:"url" binding:"required"`
	Name string `json:"name"`
	Type string `json:"type"`
}

func (h *Handler) addSource(c *gin.Context) {
	var req addSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	var t domain.SourceType
	if req.Type != "" {
		parsed, err := domain.ParseSourceType(req.Type)
		if err != nil {
			badRequest(c, err.Error())
			return
		}
		t = parsed
	}

	source, created, err := h.deps.Sources.Add(c.Request.Context(), req.URL, req.Name, t)
	if errors.Is(err, sources.ErrInvalidURL) {
		badRequest(c, err.Error())
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, source)
}

func (h *Handler) getSource(c *gin.Context) {
	source, ok := h.lookupSource(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, source)
}

func (h *Handler) crawlSource(c *gin.Context) {
	source, ok := h.lookupSource(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, h.deps.Crawls.CrawlSource(c.Request.Context(), source))
}

func (h *Handler) lookupSource(c *gin.Context) (domain.Source, bool) {
	source, err := h.deps.Sources.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return domain.Source{}, false
	}
	if err != nil {
		internalError(c, err)
		return domain.Source{}, false
	}
	return source, true
}

func (h *Handler) listTools(c *gin.Context) {
	tools, err := h.deps.Tools.Load(c.Request.Context())
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tools": tools, "count": len(tools)})
}

func (h *Handler) listCrawls(c *gin.Context) {
	limit := defaultRecentLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			badRequest(c, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	results, err := h.deps.History.Recent(c.Request.Context(), limit)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"crawls": results, "count": len(results)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func internalError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
}
