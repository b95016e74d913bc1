// Package config loads the agentq configuration from the environment,
// with an optional TOML file override for deployments that prefer files.
// A .env file in the working directory is loaded first when present.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Queue backend selectors.
const (
	BackendRedis  = "redis"
	BackendNATS   = "nats"
	BackendMemory = "memory"
)

// Config holds every setting the worker and API binaries read.
type Config struct {
	// Process
	Environment string `toml:"environment"`
	LogLevel    string `toml:"log_level"`
	HTTPAddr    string `toml:"http_addr"`
	MetricsAddr string `toml:"metrics_addr"`

	// Queue
	QueueBackend string `toml:"queue_backend"`
	RedisAddr    string `toml:"redis_addr"`
	RedisPass    string `toml:"redis_password"`
	RedisDB      int    `toml:"redis_db"`
	NATSURL      string `toml:"nats_url"`
	RequestTopic string `toml:"request_topic"`
	ResultTopic  string `toml:"result_topic"`
	Group        string `toml:"consumer_group"`
	StreamMaxLen int64  `toml:"stream_max_len"`

	// Worker
	MaxConcurrent int           `toml:"max_concurrent"`
	BatchCap      int           `toml:"batch_cap"`
	Visibility    time.Duration `toml:"visibility"`
	PollTimeout   time.Duration `toml:"poll_timeout"`
	IdleDelay     time.Duration `toml:"idle_delay"`
	ErrorPause    time.Duration `toml:"error_pause"`
	StopTimeout   time.Duration `toml:"stop_timeout"`
	DrainTimeout  time.Duration `toml:"drain_timeout"`

	// Tasks
	StatusTTL time.Duration `toml:"status_ttl"`

	// Agents
	DefaultAgent string        `toml:"default_agent"`
	MockDelay    time.Duration `toml:"mock_delay"`

	// LLM
	LLMProvider     string `toml:"llm_provider"`
	LLMModel        string `toml:"llm_model"`
	AnthropicAPIKey string `toml:"anthropic_api_key"`
	OpenAIAPIKey    string `toml:"openai_api_key"`
	GoogleAPIKey    string `toml:"google_api_key"`
}

// Default returns the configuration with every default applied and
// nothing read from the environment.
func Default() Config {
	return Config{
		Environment:   "development",
		LogLevel:      "info",
		HTTPAddr:      ":8000",
		MetricsAddr:   ":9090",
		QueueBackend:  BackendRedis,
		RedisAddr:     "localhost:6379",
		NATSURL:       "nats://localhost:4222",
		RequestTopic:  "tasks.request",
		ResultTopic:   "tasks.result",
		Group:         "agentq-workers",
		StreamMaxLen:  8192,
		MaxConcurrent: 10,
		BatchCap:      16,
		Visibility:    30 * time.Second,
		PollTimeout:   2 * time.Second,
		IdleDelay:     100 * time.Millisecond,
		ErrorPause:    time.Second,
		StopTimeout:   10 * time.Second,
		DrainTimeout:  30 * time.Second,
		StatusTTL:     time.Hour,
		DefaultAgent:  "mock",
		LLMProvider:   "anthropic",
	}
}

// Load builds the configuration: defaults, then .env, then environment
// variables, then the optional TOML file named by AGENTQ_CONFIG.
func Load() (Config, error) {
	// Missing .env is fine; it only exists in local setups.
	_ = godotenv.Load()

	cfg := Default()
	cfg.applyEnv()

	if path := os.Getenv("AGENTQ_CONFIG"); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("config file %s: %w", path, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	str := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	str(&c.Environment, "APP_ENV")
	str(&c.LogLevel, "LOG_LEVEL")
	str(&c.HTTPAddr, "HTTP_ADDR")
	str(&c.MetricsAddr, "METRICS_ADDR")
	str(&c.QueueBackend, "QUEUE_BACKEND")
	str(&c.RedisAddr, "REDIS_ADDR")
	str(&c.RedisPass, "REDIS_PASSWORD")
	str(&c.NATSURL, "NATS_URL")
	str(&c.RequestTopic, "TASK_REQUEST_TOPIC")
	str(&c.ResultTopic, "TASK_RESULT_TOPIC")
	str(&c.Group, "CONSUMER_GROUP")
	str(&c.DefaultAgent, "DEFAULT_AGENT_TYPE")
	str(&c.LLMProvider, "LLM_PROVIDER")
	str(&c.LLMModel, "LLM_MODEL")
	str(&c.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	str(&c.OpenAIAPIKey, "OPENAI_API_KEY")
	str(&c.GoogleAPIKey, "GOOGLE_API_KEY")

	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.RedisDB = n
		}
	}
	if v := os.Getenv("STREAM_MAX_LEN"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			c.StreamMaxLen = n
		}
	}
	if v := os.Getenv("WORKER_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.MaxConcurrent = n
		}
	}
	if v := os.Getenv("WORKER_BATCH_CAP"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.BatchCap = n
		}
	}

	dur := func(dst *time.Duration, key string) {
		if v := os.Getenv(key); v != "" {
			if d, ok := parseDuration(v); ok {
				*dst = d
			}
		}
	}
	dur(&c.Visibility, "WORKER_VISIBILITY")
	dur(&c.PollTimeout, "WORKER_POLL_TIMEOUT")
	dur(&c.IdleDelay, "WORKER_IDLE_DELAY")
	dur(&c.ErrorPause, "WORKER_ERROR_PAUSE")
	dur(&c.StopTimeout, "WORKER_STOP_TIMEOUT")
	dur(&c.DrainTimeout, "WORKER_DRAIN_TIMEOUT")
	dur(&c.StatusTTL, "TASK_STATUS_TTL")
	dur(&c.MockDelay, "AGENT_MOCK_DELAY")
}

// parseDuration accepts time.ParseDuration forms plus bare numbers,
// which are read as seconds for compatibility with older deploys.
func parseDuration(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if d, err := time.ParseDuration(s); err == nil {
		return d, true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 0 {
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}

// Validate checks the loaded configuration for values the process
// cannot start with.
func (c *Config) Validate() error {
	switch c.QueueBackend {
	case BackendRedis, BackendNATS, BackendMemory:
	default:
		return fmt.Errorf("invalid QUEUE_BACKEND %q (want redis, nats or memory)", c.QueueBackend)
	}
	if c.MaxConcurrent <= 0 {
		return fmt.Errorf("WORKER_MAX_CONCURRENT must be positive, got %d", c.MaxConcurrent)
	}
	if c.BatchCap <= 0 {
		return fmt.Errorf("WORKER_BATCH_CAP must be positive, got %d", c.BatchCap)
	}
	if c.Visibility <= 0 {
		return fmt.Errorf("WORKER_VISIBILITY must be positive, got %s", c.Visibility)
	}
	if c.StatusTTL <= 0 {
		return fmt.Errorf("TASK_STATUS_TTL must be positive, got %s", c.StatusTTL)
	}
	if c.RequestTopic == "" || c.ResultTopic == "" {
		return fmt.Errorf("request and result topics must be set")
	}
	if c.RequestTopic == c.ResultTopic {
		return fmt.Errorf("request and result topics must differ, both %q", c.RequestTopic)
	}
	return nil
}
