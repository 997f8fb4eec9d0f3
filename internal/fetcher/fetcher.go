// Package fetcher retrieves raw page content for crawl targets.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
)

// Defaults for outbound fetches.
const (
	DefaultTimeout      = 30 * time.Second
	DefaultUserAgent    = "MCP-Tool-Crawler/1.0"
	DefaultMaxBodyBytes = 10 << 20
)

// ErrBodyTooLarge is wrapped by FetchError when a body exceeds the configured cap.
var ErrBodyTooLarge = errors.New("response body exceeds limit")

// FetchError describes a failed GET. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout.
func (e *FetchError) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var t interface{ Timeout() bool }
	return errors.As(e.Err, &t) && t.Timeout()
}

// Config configures a Fetcher.
type Config struct {
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64
	// GitHubToken is sent on README requests when set.
	GitHubToken string
	// GitHubRawBaseURL is the raw content host used for README retrieval.
	GitHubRawBaseURL string
}

// Fetcher performs GET requests with a fixed User-Agent and bounded timeout.
type Fetcher struct {
	client *http.Client
	config Config
	log    logger.Logger
}

// New creates a Fetcher. A nil client gets one built from cfg.Timeout.
func New(cfg Config, client *http.Client, log logger.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.GitHubRawBaseURL == "" {
		cfg.GitHubRawBaseURL = DefaultGitHubRawBaseURL
	}
	if client == nil {
		client = NewHTTPClient(cfg.Timeout)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Fetcher{client: client, config: cfg, log: log}
}

// Fetch returns the body of url as text.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	return f.get(ctx, url, nil)
}

func (f *Fetcher) get(ctx context.Context, url string, headers map[string]string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, f.config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return "", &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Debug("Fetch failed",
			logger.String("url", url),
			logger.Duration("elapsed", time.Since(start)),
			logger.Error(err),
		)
		return "", &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return "", &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return "", &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return "", &FetchError{URL: url, Err: ErrBodyTooLarge}
	}

	f.log.Debug("Fetched page",
		logger.String("url", url),
		logger.Int("status", resp.StatusCode),
		logger.Int("bytes", len(body)),
		logger.Duration("elapsed", time.Since(start)),
	)

	return string(body), nil
}
