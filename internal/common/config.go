package common

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config represents the application configuration
type Config struct {
	Environment string         `toml:"environment"` // "development" or "production"
	Server      ServerConfig   `toml:"server"`
	Storage     StorageConfig  `toml:"storage"`
	Logging     LoggingConfig  `toml:"logging"`
	Engine      EngineConfig   `toml:"engine"`
	Research    ResearchConfig `toml:"research"`
	LLM         LLMConfig      `toml:"llm"`
	Claude      ClaudeConfig   `toml:"claude"`
	Gemini      GeminiConfig   `toml:"gemini"`
	Workflow    WorkflowConfig `toml:"workflow"`
	Poller      PollerConfig   `toml:"poller"`
	Notify      NotifyConfig   `toml:"notify"`
	Auth        AuthConfig     `toml:"auth"`
}

type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

type StorageConfig struct {
	SQLite SQLiteConfig `toml:"sqlite"`
	Badger BadgerConfig `toml:"badger"`
}

// SQLiteConfig holds the relational store settings
type SQLiteConfig struct {
	Path          string `toml:"path"`
	CacheSizeMB   int    `toml:"cache_size_mb"`
	BusyTimeoutMS int    `toml:"busy_timeout_ms"`
	WALMode       bool   `toml:"wal_mode"`
}

// BadgerConfig holds the key/value store settings
type BadgerConfig struct {
	Path           string `toml:"path"`
	ResetOnStartup bool   `toml:"reset_on_startup"`
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs
}

// EngineConfig holds the batch engine policy constants. Stale threshold and
// retry ceiling are process-wide; per-job settings override only the delay
// and the workflow toggle.
type EngineConfig struct {
	MaxRetries     int    `toml:"max_retries"`      // Max retries per prospect
	StaleThreshold string `toml:"stale_threshold"`  // e.g. "10m" - reclaim window for abandoned items
	DefaultDelayMs int    `toml:"default_delay_ms"` // Default delay between prospects
	ProcessTimeout string `toml:"process_timeout"`  // e.g. "120s" - per-invocation execution budget
}

// StaleThresholdDuration parses the configured staleness window.
func (c EngineConfig) StaleThresholdDuration() time.Duration {
	d, err := time.ParseDuration(c.StaleThreshold)
	if err != nil || d <= 0 {
		return DefaultStaleThreshold
	}
	return d
}

// ProcessTimeoutDuration parses the per-invocation execution budget.
func (c EngineConfig) ProcessTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ProcessTimeout)
	if err != nil || d <= 0 {
		return DefaultProcessTimeout
	}
	return d
}

// ResearchConfig holds the public-data source settings for the enrichment
// pipeline.
type ResearchConfig struct {
	UserAgent         string  `toml:"user_agent"`      // Identifying UA required by SEC fair-access policy
	RequestTimeout    string  `toml:"request_timeout"` // HTTP timeout per source request
	RatePerSecond     float64 `toml:"rate_per_second"` // Outbound request rate per source
	EdgarBaseURL      string  `toml:"edgar_base_url"`
	ProPublicaBaseURL string  `toml:"propublica_base_url"`
	FECBaseURL        string  `toml:"fec_base_url"`
	FECAPIKey         string  `toml:"fec_api_key"`
	CacheTTL          string  `toml:"cache_ttl"` // TTL for cached source responses
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	LLMProviderClaude LLMProvider = "claude"
	LLMProviderGemini LLMProvider = "gemini"
)

// LLMConfig selects the summarization provider.
type LLMConfig struct {
	Enabled         bool        `toml:"enabled"`
	DefaultProvider LLMProvider `toml:"default_provider"` // "claude" or "gemini"
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	MaxTokens   int     `toml:"max_tokens"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`
	Model       string  `toml:"model"`
	Timeout     string  `toml:"timeout"`
	Temperature float32 `toml:"temperature"`
}

// WorkflowConfig configures the external durable-workflow engine.
type WorkflowConfig struct {
	Enabled  bool     `toml:"enabled"`
	Endpoint string   `toml:"endpoint"` // Base URL of the workflow service
	Timeout  string   `toml:"timeout"`
	Users    []string `toml:"users"` // User ids opted into the durable strategy
}

// PollerConfig configures the optional internal caller that drives active
// jobs. Disabled by default; clients normally poll over HTTP.
type PollerConfig struct {
	Enabled    bool   `toml:"enabled"`
	Schedule   string `toml:"schedule"`     // Cron schedule
	MaxPerTick int    `toml:"max_per_tick"` // Item budget per job per tick
}

// NotifyConfig configures the completion notifier.
type NotifyConfig struct {
	WebhookURL string `toml:"webhook_url"` // Empty disables webhook delivery
	Timeout    string `toml:"timeout"`
}

// AuthConfig maps API keys to user ids. An empty map enables the development
// fallback user.
type AuthConfig struct {
	APIKeys map[string]string `toml:"api_keys"` // api key -> user id
}

// NewDefaultConfig creates a configuration with default values.
// Only user-facing settings belong in prospector.toml; technical parameters
// are hardcoded here for production stability.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8085,
			Host: "localhost",
		},
		Storage: StorageConfig{
			SQLite: SQLiteConfig{
				Path:          "./data/prospector.db",
				CacheSizeMB:   64,
				BusyTimeoutMS: 5000,
				WALMode:       true,
			},
			Badger: BadgerConfig{
				Path: "./data/kv",
			},
		},
		Logging: LoggingConfig{
			Level:      "info",
			Output:     []string{"stdout", "file"},
			TimeFormat: "15:04:05",
		},
		Engine: EngineConfig{
			MaxRetries:     DefaultMaxRetries,
			StaleThreshold: DefaultStaleThreshold.String(),
			DefaultDelayMs: DefaultDelayBetweenProspectsMs,
			ProcessTimeout: DefaultProcessTimeout.String(),
		},
		Research: ResearchConfig{
			UserAgent:         "prospector-research admin@prospector.local",
			RequestTimeout:    "30s",
			RatePerSecond:     2,
			EdgarBaseURL:      "https://efts.sec.gov",
			ProPublicaBaseURL: "https://projects.propublica.org",
			FECBaseURL:        "https://api.open.fec.gov",
			CacheTTL:          "24h",
		},
		LLM: LLMConfig{
			Enabled:         false, // User must provide an API key and opt in
			DefaultProvider: LLMProviderClaude,
		},
		Claude: ClaudeConfig{
			Model:       "claude-haiku-3-5-20241022",
			MaxTokens:   1024,
			Timeout:     "2m",
			Temperature: 0.3,
		},
		Gemini: GeminiConfig{
			Model:       "gemini-3-flash-preview",
			Timeout:     "2m",
			Temperature: 0.3,
		},
		Workflow: WorkflowConfig{
			Enabled: false,
			Timeout: "2m",
		},
		Poller: PollerConfig{
			Enabled:    false,
			Schedule:   "@every 5s",
			MaxPerTick: 5,
		},
		Notify: NotifyConfig{
			Timeout: "10s",
		},
		Auth: AuthConfig{
			APIKeys: map[string]string{},
		},
	}
}

// LoadFromFiles loads configuration from files with priority:
// defaults -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("PROSPECTOR_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	if port := os.Getenv("PROSPECTOR_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("PROSPECTOR_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	if path := os.Getenv("PROSPECTOR_SQLITE_PATH"); path != "" {
		config.Storage.SQLite.Path = path
	}
	if path := os.Getenv("PROSPECTOR_BADGER_PATH"); path != "" {
		config.Storage.Badger.Path = path
	}

	if level := os.Getenv("PROSPECTOR_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}

	if retries := os.Getenv("PROSPECTOR_MAX_RETRIES"); retries != "" {
		if n, err := strconv.Atoi(retries); err == nil && n >= 0 {
			config.Engine.MaxRetries = n
		}
	}
	if threshold := os.Getenv("PROSPECTOR_STALE_THRESHOLD"); threshold != "" {
		config.Engine.StaleThreshold = threshold
	}

	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		config.Claude.APIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		config.Gemini.APIKey = key
	}
	if key := os.Getenv("FEC_API_KEY"); key != "" {
		config.Research.FECAPIKey = key
	}

	if endpoint := os.Getenv("PROSPECTOR_WORKFLOW_ENDPOINT"); endpoint != "" {
		config.Workflow.Endpoint = endpoint
		config.Workflow.Enabled = true
	}
}

// ApplyFlagOverrides applies command-line flag overrides (highest priority)
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}
