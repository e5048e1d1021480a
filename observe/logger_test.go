package observe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]any
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid JSON log line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestLogger_WithCallFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf).WithCall(CallMeta{
		Identifier:  "orders.lookup",
		Isolation:   "TENANT_REQUIRED",
		TenantID:    "t1",
		PrincipalID: "bob",
		Patterns:    []string{"bulkhead", "retry"},
	})
	logger.Info(context.Background(), "hello")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}
	want := map[string]string{
		"resilience.identifier": "orders.lookup",
		"resilience.isolation":  "TENANT_REQUIRED",
		"tenant.id":             "t1",
		"principal.id":          "bob",
		"resilience.patterns":   "bulkhead,retry",
		"level":                 "info",
		"msg":                   "hello",
	}
	for k, v := range want {
		if lines[0][k] != v {
			t.Errorf("%s = %v, want %q", k, lines[0][k], v)
		}
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("warn", &buf)
	ctx := context.Background()

	logger.Debug(ctx, "debug")
	logger.Info(ctx, "info")
	logger.Warn(ctx, "warn")
	logger.Error(ctx, "error")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["msg"] != "warn" || lines[1]["msg"] != "error" {
		t.Errorf("unexpected messages: %v, %v", lines[0]["msg"], lines[1]["msg"])
	}
}

func TestLogger_Redaction(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("debug", &buf).With(Field{Key: "secret", Value: "s3cr3t"})
	logger.Info(context.Background(), "creds",
		Field{Key: "token", Value: "abc"},
		Field{Key: "component", Value: "registry"},
	)

	out := buf.String()
	if strings.Contains(out, "s3cr3t") || strings.Contains(out, "abc") {
		t.Fatalf("sensitive value leaked: %s", out)
	}
	line := decodeLines(t, &buf)[0]
	if line["component"] != "registry" {
		t.Errorf("component = %v", line["component"])
	}
}

func TestLogger_ErrorValues(t *testing.T) {
	var buf bytes.Buffer
	NewLoggerWithWriter("info", &buf).Error(context.Background(), "failed",
		Field{Key: "error", Value: errors.New("boom")})
	if got := decodeLines(t, &buf)[0]["error"]; got != "boom" {
		t.Errorf("error = %v, want boom", got)
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug": LevelDebug,
		"info":  LevelInfo,
		"warn":  LevelWarn,
		"error": LevelError,
		"":      LevelInfo,
		"loud":  LevelInfo,
	}
	for in, want := range tests {
		if got := ParseLogLevel(in); got != want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestNopLogger(t *testing.T) {
	l := NopLogger()
	l.Info(context.Background(), "ignored")
	if l.WithCall(CallMeta{Identifier: "x"}) == nil || l.With() == nil {
		t.Fatal("derived loggers should be non-nil")
	}
}

func TestLogger_SpanContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter("info", &buf)
	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: trace.TraceID{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16},
		SpanID:  trace.SpanID{1, 2, 3, 4, 5, 6, 7, 8},
	})

	logger.Info(trace.ContextWithSpanContext(context.Background(), sc), "traced")
	logger.Info(context.Background(), "untraced")

	lines := decodeLines(t, &buf)
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	if lines[0]["trace_id"] != sc.TraceID().String() || lines[0]["span_id"] != sc.SpanID().String() {
		t.Errorf("traced entry = %v", lines[0])
	}
	if _, ok := lines[1]["trace_id"]; ok {
		t.Errorf("untraced entry has a trace id: %v", lines[1])
	}
}
