package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNewStampsServiceField(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "info", Service: "agentq-worker", Output: &buf})

	log.Info().Str("task_id", "t1").Msg("claimed")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("log output is not JSON: %v (%q)", err, buf.String())
	}
	if event["service"] != "agentq-worker" {
		t.Errorf("service = %v", event["service"])
	}
	if event["task_id"] != "t1" {
		t.Errorf("task_id = %v", event["task_id"])
	}
	if event["message"] != "claimed" {
		t.Errorf("message = %v", event["message"])
	}
}

func TestNewLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Output: &buf})

	log.Info().Msg("suppressed")
	log.Warn().Msg("emitted")

	out := buf.String()
	if strings.Contains(out, "suppressed") {
		t.Error("info event should be filtered at warn level")
	}
	if !strings.Contains(out, "emitted") {
		t.Error("warn event should pass at warn level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"", zerolog.InfoLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"bogus", zerolog.InfoLevel},
		{" INFO ", zerolog.InfoLevel},
	}

	for _, tt := range tests {
		if got := parseLevel(tt.in); got != tt.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponent(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "debug", Output: &buf})

	comp := Component(log, "consumer-loop")
	comp.Debug().Msg("polling")

	var event map[string]any
	if err := json.Unmarshal(buf.Bytes(), &event); err != nil {
		t.Fatalf("log output is not JSON: %v", err)
	}
	if event["component"] != "consumer-loop" {
		t.Errorf("component = %v", event["component"])
	}
}

func TestNopDiscards(t *testing.T) {
	log := Nop()
	// Must not panic and must be disabled.
	log.Error().Msg("dropped")
	if log.GetLevel() != zerolog.Disabled {
		t.Errorf("Nop level = %v, want disabled", log.GetLevel())
	}
}
