package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	for name, want := range map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	} {
		got, err := ParseLevel(name)
		if err != nil || got != want {
			t.Errorf("ParseLevel(%q) = %v, %v", name, got, err)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("ParseLevel(loud) succeeded")
	}
}

func TestNewJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "info", "json")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("synced", "component", "spine")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("lines = %q", lines)
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatal(err)
	}
	if rec["msg"] != "synced" || rec["component"] != "spine" {
		t.Errorf("record = %v", rec)
	}
}

func TestNewAutoOnPipeIsJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "debug", "auto")
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("x")
	if !strings.HasPrefix(buf.String(), "{") {
		t.Errorf("auto on a buffer wrote %q", buf.String())
	}
}

func TestNewText(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(&buf, "warn", "text")
	if err != nil {
		t.Fatal(err)
	}
	logger.Info("hidden")
	logger.Warn("pivot vanished", "pivot", "tip")
	if got := buf.String(); !strings.Contains(got, "pivot=tip") || strings.Contains(got, "hidden") {
		t.Errorf("output = %q", got)
	}
}

func TestNewRejectsFormat(t *testing.T) {
	if _, err := New(&bytes.Buffer{}, "info", "xml"); err == nil {
		t.Error("New with xml format succeeded")
	}
}
