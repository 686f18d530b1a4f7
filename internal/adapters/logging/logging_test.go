package logging

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/felixgeelhaar/nvmeprep/internal/ports"
)

func TestConsoleLogger_TextOutput(t *testing.T) {
	var buf strings.Builder
	logger := NewConsoleLogger(WithOutput(&buf))

	logger.Info(context.Background(), "step complete", ports.F("step", "hugepages:reserve:2048kB"))

	got := buf.String()
	if !strings.Contains(got, "[INFO] step complete") {
		t.Errorf("output missing level and message: %q", got)
	}
	if !strings.Contains(got, "step=hugepages:reserve:2048kB") {
		t.Errorf("output missing field: %q", got)
	}
}

func TestConsoleLogger_LevelFilter(t *testing.T) {
	var buf strings.Builder
	logger := NewConsoleLogger(WithOutput(&buf), WithLevel(ports.LevelWarn))

	logger.Info(context.Background(), "filtered")
	logger.Warn(context.Background(), "kept")

	got := buf.String()
	if strings.Contains(got, "filtered") {
		t.Errorf("info should be filtered at warn level: %q", got)
	}
	if !strings.Contains(got, "kept") {
		t.Errorf("warn should pass at warn level: %q", got)
	}
}

func TestConsoleLogger_JSONOutput(t *testing.T) {
	var buf strings.Builder
	logger := NewConsoleLogger(WithOutput(&buf), WithJSONFormat(true))

	logger.Error(context.Background(), "step failed", ports.F("outcome", "failed"))

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(buf.String()), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if entry["level"] != "ERROR" {
		t.Errorf("level = %v, want ERROR", entry["level"])
	}
	if entry["msg"] != "step failed" {
		t.Errorf("msg = %v, want %q", entry["msg"], "step failed")
	}
	if entry["outcome"] != "failed" {
		t.Errorf("outcome = %v, want failed", entry["outcome"])
	}
}

func TestConsoleLogger_With(t *testing.T) {
	var buf strings.Builder
	logger := NewConsoleLogger(WithOutput(&buf))

	child := logger.With(ports.F("run", "abc123"))
	child.Info(context.Background(), "hello")

	if !strings.Contains(buf.String(), "run=abc123") {
		t.Errorf("With field missing: %q", buf.String())
	}
}

func TestNopLogger_Discards(t *testing.T) {
	logger := NewNopLogger()
	// Must not panic and With must return a usable logger.
	logger.Info(context.Background(), "nothing")
	logger.With(ports.F("k", "v")).Error(context.Background(), "nothing")

	logger.SetLevel(ports.LevelError)
	if logger.Level() != ports.LevelError {
		t.Errorf("Level() = %v, want %v", logger.Level(), ports.LevelError)
	}
}
