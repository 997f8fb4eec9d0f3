// Package cmd implements the tool-crawler command-line interface.
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	cmdcrawl "github.com/jonesrussell/north-cloud/tool-crawler/cmd/crawl"
	cmdgenerate "github.com/jonesrussell/north-cloud/tool-crawler/cmd/generate"
	cmdhttpd "github.com/jonesrussell/north-cloud/tool-crawler/cmd/httpd"
	cmdrun "github.com/jonesrussell/north-cloud/tool-crawler/cmd/runstrategy"
	cmdscheduler "github.com/jonesrussell/north-cloud/tool-crawler/cmd/scheduler"
	cmdsources "github.com/jonesrussell/north-cloud/tool-crawler/cmd/sources"
	"github.com/jonesrussell/north-cloud/tool-crawler/internal/config"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var (
	// cfgFile holds the path to the configuration file.
	cfgFile string

	// Debug enables debug logging for all commands.
	Debug bool

	rootCmd = &cobra.Command{
		Use:   "tool-crawler",
		Short: "Discovers MCP tools and generates crawlers for new sources",
		Long: `tool-crawler keeps a catalog of MCP tools. Awesome lists are crawled directly;
other sources get a crawler generated by an LLM and executed in a sandbox.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}
)

// Execute runs the root command.
func Execute() error {
	_ = godotenv.Load()

	// Parse flags early so --config and --debug apply before config is read.
	_ = rootCmd.ParseFlags(os.Args[1:])

	if err := initConfig(); err != nil {
		return fmt.Errorf("failed to initialize configuration: %w", err)
	}

	return rootCmd.ExecuteContext(context.Background())
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml or ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&Debug, "debug", false, "enable debug logging")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tool-crawler version %s\n", Version)
		},
	})

	rootCmd.AddCommand(
		cmdsources.Command(),
		cmdgenerate.Command(),
		cmdcrawl.Command(),
		cmdrun.Command(),
		cmdscheduler.Command(),
		cmdhttpd.Command(),
	)
}

// initConfig reads the optional config file and environment.
func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if cfgFile != "" {
			return fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file is optional; defaults and environment still apply.
	}

	if err := bindEnvVars(); err != nil {
		return err
	}

	if Debug || viper.GetBool("app.debug") {
		viper.Set("logger.level", "debug")
		viper.Set("app.debug", true)
	}
	if viper.GetString("app.environment") == "development" {
		viper.Set("logger.development", true)
	}
	viper.Set("app.version", Version)

	return nil
}

// envBindings maps config keys to the environment variables that override them.
var envBindings = map[string][]string{
	"app.environment":            {"APP_ENV"},
	"app.debug":                  {"APP_DEBUG"},
	"logger.level":               {"LOG_LEVEL"},
	"llm.api_key":                {"ANTHROPIC_API_KEY", "LLM_API_KEY"},
	"llm.base_url":               {"ANTHROPIC_BASE_URL", "LLM_BASE_URL"},
	"llm.model":                  {"LLM_MODEL"},
	"llm.temperature":            {"LLM_TEMPERATURE"},
	"fetcher.timeout":            {"CRAWLER_TIMEOUT", "FETCHER_TIMEOUT"},
	"fetcher.user_agent":         {"CRAWLER_USER_AGENT", "FETCHER_USER_AGENT"},
	"fetcher.github_token":       {"GITHUB_TOKEN"},
	"storage.driver":             {"STORAGE_DRIVER"},
	"storage.path":               {"STORAGE_PATH"},
	"storage.redis.address":      {"REDIS_ADDRESS", "REDIS_ADDR"},
	"storage.redis.password":     {"REDIS_PASSWORD"},
	"storage.postgres.dsn":       {"POSTGRES_DSN", "DATABASE_URL"},
	"crawler.concurrency":        {"CRAWLER_CONCURRENCY_LIMIT", "CRAWLER_CONCURRENCY"},
	"crawler.schedule":           {"CRAWLER_SCHEDULE"},
	"crawler.stale_after":        {"CRAWLER_STALE_AFTER"},
	"server.address":             {"SERVER_ADDRESS"},
	"sources.awesome_lists":      {"AWESOME_LISTS"},
	"generator.html_fetch_chars": {"GENERATOR_HTML_FETCH_CHARS"},
}

func bindEnvVars() error {
	for key, envs := range envBindings {
		args := append([]string{key}, envs...)
		if err := viper.BindEnv(args...); err != nil {
			return fmt.Errorf("failed to bind %s: %w", strings.Join(envs, ", "), err)
		}
	}
	return nil
}

// setDefaults sets default configuration values.
func setDefaults() {
	viper.SetDefault("app", map[string]any{
		"name":        "tool-crawler",
		"version":     Version,
		"environment": "production",
		"debug":       false,
	})

	viper.SetDefault("logger", map[string]any{
		"level":        "info",
		"development":  false,
		"output_paths": []string{"stdout"},
	})

	viper.SetDefault("llm", map[string]any{
		"model":       config.DefaultLLMModel,
		"temperature": config.DefaultLLMTemperature,
		"max_tokens":  config.DefaultLLMMaxTokens,
		"timeout":     config.DefaultLLMTimeout.String(),
		"max_retries": config.DefaultLLMMaxRetries,
	})

	viper.SetDefault("fetcher", map[string]any{
		"timeout":             config.DefaultFetchTimeout.String(),
		"user_agent":          config.DefaultUserAgent,
		"max_body_bytes":      config.DefaultMaxBodyBytes,
		"github_raw_base_url": config.DefaultGitHubRawBaseURL,
	})

	viper.SetDefault("generator", map[string]any{
		"html_fetch_chars":   config.DefaultHTMLFetchChars,
		"html_preview_chars": config.DefaultHTMLPreviewChars,
	})

	viper.SetDefault("sandbox", map[string]any{
		"timeout":           config.DefaultSandboxTimeout.String(),
		"max_html_bytes":    config.DefaultSandboxMaxHTML,
		"call_stack_size":   config.DefaultCallStackSize,
		"registry_max_size": config.DefaultRegistryMaxSize,
		"max_memory_bytes":  config.DefaultSandboxMaxMemory,
	})

	viper.SetDefault("storage", map[string]any{
		"driver": config.DefaultStorageDriver,
		"path":   config.DefaultStoragePath,
		"redis": map[string]any{
			"address":    "127.0.0.1:6379",
			"db":         0,
			"key_prefix": "tool-crawler:",
		},
		"postgres": map[string]any{
			"table_prefix": "tool_crawler_",
		},
	})

	viper.SetDefault("crawler", map[string]any{
		"concurrency": config.DefaultConcurrency,
		"schedule":    config.DefaultSchedule,
		"stale_after": config.DefaultStaleAfter.String(),
	})

	viper.SetDefault("server", map[string]any{
		"address":          config.DefaultServerAddress,
		"read_timeout":     "30s",
		"write_timeout":    "5m",
		"idle_timeout":     "2m",
		"shutdown_timeout": "15s",
	})

	viper.SetDefault("sources", map[string]any{
		"awesome_lists": []string{
			"https://github.com/jpmcb/awesome-machine-context-protocol",
			"https://github.com/continuedev/awesome-continue",
		},
		"websites": []map[string]any{
			{"url": "https://mcp-api.org/tools", "name": "MCP API.org Tools Directory"},
		},
	})
}
