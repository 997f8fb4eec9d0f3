// Package config defines the tool crawler configuration and how it is decoded
// from viper settings.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonesrussell/north-cloud/tool-crawler/internal/logger"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Defaults shared by the CLI and tests.
const (
	DefaultLLMModel         = "claude-sonnet-4-5"
	DefaultLLMTemperature   = 0.2
	DefaultLLMMaxTokens     = 4096
	DefaultLLMTimeout       = 120 * time.Second
	DefaultLLMMaxRetries    = 2
	DefaultFetchTimeout     = 30 * time.Second
	DefaultUserAgent        = "MCP-Tool-Crawler/1.0"
	DefaultMaxBodyBytes     = 10 << 20
	DefaultGitHubRawBaseURL = "https://raw.githubusercontent.com"
	DefaultHTMLFetchChars   = 20000
	DefaultHTMLPreviewChars = 10000
	DefaultSandboxTimeout   = 5 * time.Second
	DefaultSandboxMaxHTML   = 5 << 20
	DefaultCallStackSize    = 256
	DefaultRegistryMaxSize  = 1 << 20
	DefaultSandboxMaxMemory = 256 << 20
	DefaultStorageDriver    = StorageDriverFile
	DefaultStoragePath      = "./data"
	DefaultConcurrency      = 5
	DefaultSchedule         = "0 */6 * * *"
	DefaultStaleAfter       = 24 * time.Hour
	DefaultServerAddress    = ":8080"
)

// Storage drivers.
const (
	StorageDriverFile     = "file"
	StorageDriverRedis    = "redis"
	StorageDriverPostgres = "postgres"
)

// Config is the root configuration.
type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Logger    logger.Config   `mapstructure:"logger"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Fetcher   FetcherConfig   `mapstructure:"fetcher"`
	Generator GeneratorConfig `mapstructure:"generator"`
	Sandbox   SandboxConfig   `mapstructure:"sandbox"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Crawler   CrawlerConfig   `mapstructure:"crawler"`
	Server    ServerConfig    `mapstructure:"server"`
	Sources   SourcesConfig   `mapstructure:"sources"`
}

// AppConfig holds application metadata.
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// LLMConfig configures the model gateway. Model and temperature are fixed per process.
type LLMConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`
}

// FetcherConfig configures outbound page fetches.
type FetcherConfig struct {
	Timeout          time.Duration `mapstructure:"timeout"`
	UserAgent        string        `mapstructure:"user_agent"`
	MaxBodyBytes     int64         `mapstructure:"max_body_bytes"`
	GitHubToken      string        `mapstructure:"github_token"`
	GitHubRawBaseURL string        `mapstructure:"github_raw_base_url"`
}

// GeneratorConfig bounds how much HTML flows into the pipeline and its prompts.
type GeneratorConfig struct {
	HTMLFetchChars   int `mapstructure:"html_fetch_chars"`
	HTMLPreviewChars int `mapstructure:"html_preview_chars"`
}

// SandboxConfig sets the execution limits for generated code.
type SandboxConfig struct {
	Timeout         time.Duration `mapstructure:"timeout"`
	MaxHTMLBytes    int           `mapstructure:"max_html_bytes"`
	CallStackSize   int           `mapstructure:"call_stack_size"`
	RegistryMaxSize int           `mapstructure:"registry_max_size"`
	MaxMemoryBytes  uint64        `mapstructure:"max_memory_bytes"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver"`
	Path     string         `mapstructure:"path"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// RedisConfig holds redis connection settings.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// CrawlerConfig configures crawl orchestration.
type CrawlerConfig struct {
	Concurrency int           `mapstructure:"concurrency"`
	Schedule    string        `mapstructure:"schedule"`
	StaleAfter  time.Duration `mapstructure:"stale_after"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address         string        `mapstructure:"address"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SourcesConfig lists sources seeded on first run.
type SourcesConfig struct {
	AwesomeLists []string        `mapstructure:"awesome_lists"`
	Websites     []WebsiteSource `mapstructure:"websites"`
}

// WebsiteSource is a predefined website target.
type WebsiteSource struct {
	URL  string `mapstructure:"url"`
	Name string `mapstructure:"name"`
}

var (
	// ErrInvalidStorageDriver is returned for drivers other than file, redis, postgres.
	ErrInvalidStorageDriver = errors.New("invalid storage driver")
	// ErrInvalidTemperature is returned when the temperature is outside [0,1].
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 1")
	// ErrInvalidTimeout is returned for non-positive timeouts.
	ErrInvalidTimeout = errors.New("timeout must be positive")
)

// Load decodes the viper settings into a Config and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if decodeErr := decoder.Decode(v.AllSettings()); decodeErr != nil {
		return nil, fmt.Errorf("failed to decode config: %w", decodeErr)
	}

	cfg.applyDefaults()

	if validateErr := cfg.Validate(); validateErr != nil {
		return nil, validateErr
	}

	return &cfg, nil
}

// applyDefaults fills zero values that viper defaults did not cover.
func (c *Config) applyDefaults() {
	c.Logger.SetDefaults()
	if c.LLM.Model == "" {
		c.LLM.Model = DefaultLLMModel
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = DefaultLLMMaxTokens
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = DefaultLLMTimeout
	}
	if c.Fetcher.Timeout == 0 {
		c.Fetcher.Timeout = DefaultFetchTimeout
	}
	if c.Fetcher.UserAgent == "" {
		c.Fetcher.UserAgent = DefaultUserAgent
	}
	if c.Fetcher.MaxBodyBytes == 0 {
		c.Fetcher.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if c.Fetcher.GitHubRawBaseURL == "" {
		c.Fetcher.GitHubRawBaseURL = DefaultGitHubRawBaseURL
	}
	if c.Generator.HTMLFetchChars == 0 {
		c.Generator.HTMLFetchChars = DefaultHTMLFetchChars
	}
	if c.Generator.HTMLPreviewChars == 0 {
		c.Generator.HTMLPreviewChars = DefaultHTMLPreviewChars
	}
	if c.Sandbox.Timeout == 0 {
		c.Sandbox.Timeout = DefaultSandboxTimeout
	}
	if c.Sandbox.MaxHTMLBytes == 0 {
		c.Sandbox.MaxHTMLBytes = DefaultSandboxMaxHTML
	}
	if c.Sandbox.CallStackSize == 0 {
		c.Sandbox.CallStackSize = DefaultCallStackSize
	}
	if c.Sandbox.RegistryMaxSize == 0 {
		c.Sandbox.RegistryMaxSize = DefaultRegistryMaxSize
	}
	if c.Sandbox.MaxMemoryBytes == 0 {
		c.Sandbox.MaxMemoryBytes = DefaultSandboxMaxMemory
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = DefaultStorageDriver
	}
	if c.Storage.Path == "" {
		c.Storage.Path = DefaultStoragePath
	}
	if c.Crawler.Concurrency <= 0 {
		c.Crawler.Concurrency = DefaultConcurrency
	}
	if c.Crawler.Schedule == "" {
		c.Crawler.Schedule = DefaultSchedule
	}
	if c.Crawler.StaleAfter == 0 {
		c.Crawler.StaleAfter = DefaultStaleAfter
	}
	if c.Server.Address == "" {
		c.Server.Address = DefaultServerAddress
	}
}

// Validate checks the configuration for values the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverFile, StorageDriverRedis, StorageDriverPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidStorageDriver, c.Storage.Driver)
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 1 {
		return fmt.Errorf("llm: %w (got %v)", ErrInvalidTemperature, c.LLM.Temperature)
	}

	timeouts := map[string]time.Duration{
		"llm.timeout":     c.LLM.Timeout,
		"fetcher.timeout": c.Fetcher.Timeout,
		"sandbox.timeout": c.Sandbox.Timeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s: %w", key, ErrInvalidTimeout)
		}
	}

	if c.Storage.Driver == StorageDriverPostgres && c.Storage.Postgres.DSN == "" {
		return errors.New("storage.postgres.dsn is required for the postgres driver")
	}
	if c.Storage.Driver == StorageDriverRedis && c.Storage.Redis.Address == "" {
		return errors.New("storage.redis.address is required for the redis driver")
	}

	return nil
}
