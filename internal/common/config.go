package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	Environment string          `toml:"environment"` // "development" or "production"
	Server      ServerConfig    `toml:"server"`
	Queue       QueueConfig     `toml:"queue"`
	Scheduler   SchedulerConfig `toml:"scheduler"`
	Storage     StorageConfig   `toml:"storage"`
	RSS         RSSConfig       `toml:"rss"`
	Gemini      GeminiConfig    `toml:"gemini"`
	Claude      ClaudeConfig    `toml:"claude"`
	LLM         LLMConfig       `toml:"llm"`
	Logging     LoggingConfig   `toml:"logging"`
	Cleanup     CleanupConfig   `toml:"cleanup"`
	WebSocket   WebSocketConfig `toml:"websocket"`
}

type ServerConfig struct {
	Port int    `toml:"port" validate:"gt=0,lte=65535"`
	Host string `toml:"host"`
}

// QueueConfig controls the in-memory job queue and executor
type QueueConfig struct {
	MaxConcurrentJobs int                    `toml:"max_concurrent_jobs" validate:"gt=0"` // Concurrency cap for running jobs
	DrainTimeout      string                 `toml:"drain_timeout"`                       // e.g., "60s" - graceful shutdown wait for active jobs
	Retry             map[string]RetryConfig `toml:"retry"`                               // Per-kind retry overrides, keyed by job kind
}

// RetryConfig holds the exponential backoff parameters for one job kind
type RetryConfig struct {
	MaxRetries int    `toml:"max_retries"` // Retry budget after the first attempt
	BaseDelay  string `toml:"base_delay"`  // First retry delay, e.g. "1m"
	MaxDelay   string `toml:"max_delay"`   // Backoff ceiling, e.g. "30m"
}

// SchedulerConfig controls the recurring automation cadences
type SchedulerConfig struct {
	Enabled             bool   `toml:"enabled"`
	RSSFetchSchedule    string `toml:"rss_fetch_schedule"`    // Cron schedule format
	AIProcessingSchedule string `toml:"ai_processing_schedule"`
	HealthCheckSchedule string `toml:"health_check_schedule"`
	CleanupSchedule     string `toml:"cleanup_schedule"`
	SweepLimit          int    `toml:"sweep_limit"` // Max pending articles queried per AI sweep
	BatchSize           int    `toml:"batch_size"`  // Articles per batch_processing job
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path"`             // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"` // Delete database on startup for clean test runs
}

// RSSConfig controls the feed fetch collaborator
type RSSConfig struct {
	SourceURLs     []string `toml:"source_urls"`     // Feed URLs polled by the rss_fetch cadence
	UserAgent      string   `toml:"user_agent"`      // User agent for feed and article requests
	RequestTimeout string   `toml:"request_timeout"` // HTTP request timeout, e.g. "30s"
	MaxBodySize    int      `toml:"max_body_size"`   // Maximum response body size in bytes
	FetchLimit     int      `toml:"fetch_limit"`     // Max new items stored per fetch run
}

// GeminiConfig contains Google Gemini API configuration
type GeminiConfig struct {
	APIKey      string  `toml:"api_key"`     // Google Gemini API key
	Model       string  `toml:"model"`       // Model for generation (default: "gemini-3-flash-preview")
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between API calls (default: "4s" for 15 RPM)
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// ClaudeConfig contains Anthropic Claude API configuration
type ClaudeConfig struct {
	APIKey      string  `toml:"api_key"`     // Anthropic API key
	Model       string  `toml:"model"`       // Model for generation (default: "claude-sonnet-4-20250514")
	MaxTokens   int     `toml:"max_tokens"`  // Maximum tokens in response (default: 8192)
	Timeout     string  `toml:"timeout"`     // Operation timeout as duration string (default: "5m")
	RateLimit   string  `toml:"rate_limit"`  // Minimum spacing between API calls (default: "1s")
	Temperature float32 `toml:"temperature"` // Completion temperature (default: 0.7)
}

// LLMProvider represents the AI provider type
type LLMProvider string

const (
	// LLMProviderGemini uses Google Gemini API
	LLMProviderGemini LLMProvider = "gemini"
	// LLMProviderClaude uses Anthropic Claude API
	LLMProviderClaude LLMProvider = "claude"
)

// LLMConfig selects the AI provider for article generation
type LLMConfig struct {
	DefaultProvider LLMProvider `toml:"default_provider" validate:"oneof=gemini claude"` // "gemini" or "claude"
}

type LoggingConfig struct {
	Level      string   `toml:"level"`       // "debug", "info", "warn", "error"
	Output     []string `toml:"output"`      // "stdout", "file"
	TimeFormat string   `toml:"time_format"` // Time format for logs (default: "15:04:05.000")
}

// CleanupConfig controls the cleanup cadence payload
type CleanupConfig struct {
	OlderThanDays int `toml:"older_than_days" validate:"gte=0"` // Articles older than this are purged
}

// WebSocketConfig controls the job lifecycle event stream
type WebSocketConfig struct {
	Enabled bool `toml:"enabled"`
}

// NewDefaultConfig creates a configuration with default values.
// Technical parameters are hardcoded here for production stability.
// Only user-facing settings should be exposed in nuntio.toml.
func NewDefaultConfig() *Config {
	return &Config{
		Environment: "development",
		Server: ServerConfig{
			Port: 8080,
			Host: "localhost",
		},
		Queue: QueueConfig{
			MaxConcurrentJobs: 3,     // Bounded concurrency - AI calls dominate, keep pressure low
			DrainTimeout:      "60s", // Graceful shutdown wait for active jobs
			Retry: map[string]RetryConfig{
				"rss_fetch":        {MaxRetries: 3, BaseDelay: "30s", MaxDelay: "5m"},
				"ai_processing":    {MaxRetries: 3, BaseDelay: "1m", MaxDelay: "30m"},
				"batch_processing": {MaxRetries: 3, BaseDelay: "1m", MaxDelay: "30m"},
				"cleanup":          {MaxRetries: 1, BaseDelay: "1m", MaxDelay: "10m"},
				"health_check":     {MaxRetries: 1, BaseDelay: "30s", MaxDelay: "5m"},
			},
		},
		Scheduler: SchedulerConfig{
			Enabled:              false, // Disabled by default - user must explicitly opt-in
			RSSFetchSchedule:     "0 */30 * * * *", // Every 30 minutes
			AIProcessingSchedule: "0 */15 * * * *", // Every 15 minutes
			HealthCheckSchedule:  "0 */5 * * * *",  // Every 5 minutes
			CleanupSchedule:      "0 0 3 * * *",    // Daily at 03:00
			SweepLimit:           50,
			BatchSize:            5,
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data",
			},
		},
		RSS: RSSConfig{
			SourceURLs:     []string{},
			UserAgent:      "nuntio/1.0 (+https://github.com/ternarybob/nuntio)",
			RequestTimeout: "30s",
			MaxBodySize:    10 * 1024 * 1024, // 10MB
			FetchLimit:     100,
		},
		Gemini: GeminiConfig{
			APIKey:      "", // User must provide API key (no fallback)
			Model:       "gemini-3-flash-preview",
			Timeout:     "5m",
			RateLimit:   "4s", // Default to 4s (15 RPM) for free tier
			Temperature: 0.7,
		},
		Claude: ClaudeConfig{
			APIKey:      "", // User must provide API key (ANTHROPIC_API_KEY or config)
			Model:       "claude-sonnet-4-20250514",
			MaxTokens:   8192,
			Timeout:     "5m",
			RateLimit:   "1s",
			Temperature: 0.7,
		},
		LLM: LLMConfig{
			DefaultProvider: LLMProviderClaude,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
		Cleanup: CleanupConfig{
			OlderThanDays: 30,
		},
		WebSocket: WebSocketConfig{
			Enabled: true,
		},
	}
}

// LoadFromFile loads configuration with priority: default -> file -> env
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier files.
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

		// Unmarshal into config (merges with existing values, later values override)
		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("NUNTIO_ENV"); env != "" {
		config.Environment = env
	} else if env := os.Getenv("GO_ENV"); env != "" {
		config.Environment = env
	}

	// Server configuration
	if port := os.Getenv("NUNTIO_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("NUNTIO_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}

	// Queue configuration
	if concurrency := os.Getenv("NUNTIO_QUEUE_MAX_CONCURRENT_JOBS"); concurrency != "" {
		if c, err := strconv.Atoi(concurrency); err == nil {
			config.Queue.MaxConcurrentJobs = c
		}
	}
	if drainTimeout := os.Getenv("NUNTIO_QUEUE_DRAIN_TIMEOUT"); drainTimeout != "" {
		if _, err := time.ParseDuration(drainTimeout); err == nil {
			config.Queue.DrainTimeout = drainTimeout
		}
	}

	// Scheduler configuration
	if enabled := os.Getenv("NUNTIO_SCHEDULER_ENABLED"); enabled != "" {
		if e, err := strconv.ParseBool(enabled); err == nil {
			config.Scheduler.Enabled = e
		}
	}
	if schedule := os.Getenv("NUNTIO_SCHEDULER_RSS_FETCH_SCHEDULE"); schedule != "" {
		config.Scheduler.RSSFetchSchedule = schedule
	}
	if schedule := os.Getenv("NUNTIO_SCHEDULER_AI_PROCESSING_SCHEDULE"); schedule != "" {
		config.Scheduler.AIProcessingSchedule = schedule
	}
	if schedule := os.Getenv("NUNTIO_SCHEDULER_HEALTH_CHECK_SCHEDULE"); schedule != "" {
		config.Scheduler.HealthCheckSchedule = schedule
	}
	if schedule := os.Getenv("NUNTIO_SCHEDULER_CLEANUP_SCHEDULE"); schedule != "" {
		config.Scheduler.CleanupSchedule = schedule
	}
	if limit := os.Getenv("NUNTIO_SCHEDULER_SWEEP_LIMIT"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil {
			config.Scheduler.SweepLimit = l
		}
	}
	if batchSize := os.Getenv("NUNTIO_SCHEDULER_BATCH_SIZE"); batchSize != "" {
		if b, err := strconv.Atoi(batchSize); err == nil {
			config.Scheduler.BatchSize = b
		}
	}

	// Storage configuration
	if badgerPath := os.Getenv("NUNTIO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	// RSS configuration
	if sources := os.Getenv("NUNTIO_RSS_SOURCE_URLS"); sources != "" {
		urls := []string{}
		for _, u := range strings.Split(sources, ",") {
			if trimmed := strings.TrimSpace(u); trimmed != "" {
				urls = append(urls, trimmed)
			}
		}
		if len(urls) > 0 {
			config.RSS.SourceURLs = urls
		}
	}
	if userAgent := os.Getenv("NUNTIO_RSS_USER_AGENT"); userAgent != "" {
		config.RSS.UserAgent = userAgent
	}
	if requestTimeout := os.Getenv("NUNTIO_RSS_REQUEST_TIMEOUT"); requestTimeout != "" {
		if _, err := time.ParseDuration(requestTimeout); err == nil {
			config.RSS.RequestTimeout = requestTimeout
		}
	}

	// Logging configuration
	if level := os.Getenv("NUNTIO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("NUNTIO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}

	// Gemini configuration
	if apiKey := os.Getenv("NUNTIO_GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	} else if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.Gemini.APIKey = apiKey
	}
	if model := os.Getenv("NUNTIO_GEMINI_MODEL"); model != "" {
		config.Gemini.Model = model
	}

	// Claude configuration
	if apiKey := os.Getenv("NUNTIO_CLAUDE_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	} else if apiKey := os.Getenv("ANTHROPIC_API_KEY"); apiKey != "" {
		config.Claude.APIKey = apiKey
	}
	if model := os.Getenv("NUNTIO_CLAUDE_MODEL"); model != "" {
		config.Claude.Model = model
	}

	// LLM provider selection
	if provider := os.Getenv("NUNTIO_LLM_PROVIDER"); provider != "" {
		config.LLM.DefaultProvider = LLMProvider(provider)
	}

	// Cleanup configuration
	if olderThan := os.Getenv("NUNTIO_CLEANUP_OLDER_THAN_DAYS"); olderThan != "" {
		if d, err := strconv.Atoi(olderThan); err == nil {
			config.Cleanup.OlderThanDays = d
		}
	}
}

// Validate checks structural constraints and cron schedule syntax
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	schedules := map[string]string{
		"rss_fetch_schedule":     c.Scheduler.RSSFetchSchedule,
		"ai_processing_schedule": c.Scheduler.AIProcessingSchedule,
		"health_check_schedule":  c.Scheduler.HealthCheckSchedule,
		"cleanup_schedule":       c.Scheduler.CleanupSchedule,
	}
	for name, schedule := range schedules {
		if err := ValidateJobSchedule(schedule); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	for kind, rc := range c.Queue.Retry {
		if rc.MaxRetries < 0 {
			return fmt.Errorf("invalid retry config for %s: max_retries cannot be negative", kind)
		}
		if rc.BaseDelay != "" {
			if _, err := time.ParseDuration(rc.BaseDelay); err != nil {
				return fmt.Errorf("invalid retry config for %s: base_delay: %w", kind, err)
			}
		}
		if rc.MaxDelay != "" {
			if _, err := time.ParseDuration(rc.MaxDelay); err != nil {
				return fmt.Errorf("invalid retry config for %s: max_delay: %w", kind, err)
			}
		}
	}

	return nil
}

// ValidateJobSchedule validates a cron schedule expression (6-field with seconds)
func ValidateJobSchedule(schedule string) error {
	if schedule == "" {
		return fmt.Errorf("schedule cannot be empty")
	}
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(schedule); err != nil {
		return fmt.Errorf("invalid cron schedule %q: %w", schedule, err)
	}
	return nil
}

// RetryConfigFor returns the retry configuration for a job kind,
// falling back to the ai_processing values when the kind has no entry.
func (c *Config) RetryConfigFor(kind string) RetryConfig {
	if rc, ok := c.Queue.Retry[kind]; ok {
		return rc
	}
	if rc, ok := c.Queue.Retry["ai_processing"]; ok {
		return rc
	}
	return RetryConfig{MaxRetries: 3, BaseDelay: "1m", MaxDelay: "30m"}
}
