package log

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"ERROR":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestLoggerAddsComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelInfo, Component: ComponentDetection, JSON: true, Output: &buf})

	logger.Info("detection complete", FieldUserID, "42")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry[FieldComponent] != ComponentDetection {
		t.Errorf("component = %v, want %s", entry[FieldComponent], ComponentDetection)
	}
	if entry[FieldUserID] != "42" {
		t.Errorf("user_id = %v", entry[FieldUserID])
	}
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Level: slog.LevelWarn, Component: ComponentApp, Output: &buf})

	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestFromContext(t *testing.T) {
	if got := FromContext(context.Background()); got.Component() != "unknown" {
		t.Errorf("expected fallback logger, got component %q", got.Component())
	}

	logger := New(Config{Component: ComponentHTTP, Output: &bytes.Buffer{}})
	ctx := NewContext(context.Background(), logger.With(FieldRequestID, "req-1"))

	seen := FromContext(ctx)
	if seen.Component() != ComponentHTTP {
		t.Fatalf("expected request logger with http component, got %q", seen.Component())
	}
}

func TestStructuredLoggerLevels(t *testing.T) {
	var buf bytes.Buffer
	sl := NewStructuredLogger(New(Config{Level: slog.LevelDebug, JSON: true, Output: &buf}))
	r := httptest.NewRequest(http.MethodGet, "/recurring?user_id=1", nil)

	sl.LogHTTPEnd(context.Background(), r, http.StatusInternalServerError, 5*time.Millisecond, "req-1", "127.0.0.1")
	sl.LogError(context.Background(), "detection failed", errors.New("boom"), ErrorTypeDatabase, OpDetect, nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry["level"] != "ERROR" || entry[FieldStatusCode] != float64(500) || entry[FieldRequestID] != "req-1" {
		t.Errorf("unexpected entry: %v", entry)
	}
	if err := json.Unmarshal([]byte(lines[1]), &entry); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if entry[FieldError] != "boom" || entry[FieldOperation] != OpDetect {
		t.Errorf("unexpected error entry: %v", entry)
	}
}
