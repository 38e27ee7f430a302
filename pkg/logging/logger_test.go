package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestNewLogger_DefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level != LevelInfo {
		t.Errorf("expected default level to be info, got %s", cfg.Level)
	}
	if cfg.ServiceName != "scribe" {
		t.Errorf("expected default service name to be 'scribe', got %s", cfg.ServiceName)
	}
	if cfg.JSONFormat {
		t.Error("expected default JSONFormat to be false")
	}
}

func TestNewLogger_NilConfig(t *testing.T) {
	log := NewLogger(nil)
	if log == nil {
		t.Error("expected non-nil logger with nil config")
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:       LevelDebug,
		ServiceName: "test-service",
		JSONFormat:  true,
		Output:      buf,
	})
	log.Info("test message", F("key", "value"))

	var output map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to parse JSON output: %v", err)
	}

	if output["message"] != "test message" {
		t.Errorf("expected message 'test message', got %v", output["message"])
	}
	if output["service_name"] != "test-service" {
		t.Errorf("expected service_name 'test-service', got %v", output["service_name"])
	}
	if output["key"] != "value" {
		t.Errorf("expected key 'value', got %v", output["key"])
	}
	if output["level"] != "info" {
		t.Errorf("expected level 'info', got %v", output["level"])
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:      LevelWarn,
		JSONFormat: true,
		Output:     buf,
	})

	log.Debug("hidden")
	log.Info("hidden too")
	if buf.Len() != 0 {
		t.Fatalf("expected nothing below warn, got %q", buf.String())
	}

	log.Warn("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Errorf("expected warn message in output, got %q", buf.String())
	}
}

func TestLogger_WithFields(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:      LevelInfo,
		JSONFormat: true,
		Output:     buf,
	})

	log.With(F("component", "batch"), F("files", 3)).Error("failed", Err(errors.New("boom")))

	var output map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if output["component"] != "batch" {
		t.Errorf("expected component 'batch', got %v", output["component"])
	}
	if output["files"] != float64(3) {
		t.Errorf("expected files 3, got %v", output["files"])
	}
	if output["error"] != "boom" {
		t.Errorf("expected error 'boom', got %v", output["error"])
	}
}

func TestLogger_WithContext(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewLogger(&Config{
		Level:      LevelInfo,
		JSONFormat: true,
		Output:     buf,
	})

	ctx := context.WithValue(context.Background(), RunIDKey, "run-42")
	ctx = context.WithValue(ctx, FileKey, "a.wav")
	log.WithContext(ctx).Info("processing")

	var output map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("failed to parse JSON: %v", err)
	}
	if output["run_id"] != "run-42" {
		t.Errorf("expected run_id run-42, got %v", output["run_id"])
	}
	if output["file"] != "a.wav" {
		t.Errorf("expected file a.wav, got %v", output["file"])
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"loud":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	log := NewNopLogger()
	log.Info("nothing")
	log.With(F("a", 1)).WithSink(SinkFunc(func(LogEntry) {
		t.Error("nop logger must not feed sinks")
	})).Error("still nothing")
}
