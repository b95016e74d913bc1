package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Default()

	if cfg.QueueBackend != BackendRedis {
		t.Errorf("QueueBackend = %q, want redis", cfg.QueueBackend)
	}
	if cfg.MaxConcurrent != 10 {
		t.Errorf("MaxConcurrent = %d, want 10", cfg.MaxConcurrent)
	}
	if cfg.BatchCap != 16 {
		t.Errorf("BatchCap = %d, want 16", cfg.BatchCap)
	}
	if cfg.Visibility != 30*time.Second {
		t.Errorf("Visibility = %s, want 30s", cfg.Visibility)
	}
	if cfg.StatusTTL != time.Hour {
		t.Errorf("StatusTTL = %s, want 1h", cfg.StatusTTL)
	}
	if cfg.RequestTopic != "tasks.request" || cfg.ResultTopic != "tasks.result" {
		t.Errorf("topics = %q/%q", cfg.RequestTopic, cfg.ResultTopic)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("QUEUE_BACKEND", "memory")
	t.Setenv("WORKER_MAX_CONCURRENT", "3")
	t.Setenv("WORKER_VISIBILITY", "45s")
	t.Setenv("TASK_STATUS_TTL", "7200")
	t.Setenv("CONSUMER_GROUP", "test-group")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.QueueBackend != BackendMemory {
		t.Errorf("QueueBackend = %q", cfg.QueueBackend)
	}
	if cfg.MaxConcurrent != 3 {
		t.Errorf("MaxConcurrent = %d", cfg.MaxConcurrent)
	}
	if cfg.Visibility != 45*time.Second {
		t.Errorf("Visibility = %s", cfg.Visibility)
	}
	if cfg.StatusTTL != 2*time.Hour {
		t.Errorf("bare-seconds TTL = %s, want 2h", cfg.StatusTTL)
	}
	if cfg.Group != "test-group" {
		t.Errorf("Group = %q", cfg.Group)
	}
}

func TestLoadTOMLOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agentq.toml")
	content := "max_concurrent = 7\nrequest_topic = \"file.request\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENTQ_CONFIG", path)
	t.Setenv("WORKER_MAX_CONCURRENT", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	// The file wins over env.
	if cfg.MaxConcurrent != 7 {
		t.Errorf("MaxConcurrent = %d, want 7 from file", cfg.MaxConcurrent)
	}
	if cfg.RequestTopic != "file.request" {
		t.Errorf("RequestTopic = %q", cfg.RequestTopic)
	}
}

func TestLoadBadConfigFile(t *testing.T) {
	t.Setenv("AGENTQ_CONFIG", filepath.Join(t.TempDir(), "missing.toml"))
	if _, err := Load(); err == nil {
		t.Error("expected an error for an unreadable config file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
		ok   bool
	}{
		{"30s", 30 * time.Second, true},
		{"1h", time.Hour, true},
		{"100ms", 100 * time.Millisecond, true},
		{"3600", time.Hour, true},
		{"0", 0, true},
		{"nope", 0, false},
		{"-5", 0, false},
	}

	for _, tt := range tests {
		got, ok := parseDuration(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseDuration(%q) = %s, %v; want %s, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad backend", func(c *Config) { c.QueueBackend = "kafka" }},
		{"zero concurrency", func(c *Config) { c.MaxConcurrent = 0 }},
		{"zero batch", func(c *Config) { c.BatchCap = 0 }},
		{"zero visibility", func(c *Config) { c.Visibility = 0 }},
		{"zero ttl", func(c *Config) { c.StatusTTL = 0 }},
		{"empty topic", func(c *Config) { c.ResultTopic = "" }},
		{"same topics", func(c *Config) { c.ResultTopic = c.RequestTopic }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
}
