package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, FormatJSON, slog.LevelInfo).Info("hello", "key", "value")
	if !strings.Contains(buf.String(), `"key":"value"`) {
		t.Fatalf("expected JSON output, got %q", buf.String())
	}

	buf.Reset()
	New(&buf, FormatText, slog.LevelWarn).Info("suppressed")
	if buf.Len() != 0 {
		t.Fatalf("expected info to be filtered at warn level, got %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil || got != want {
			t.Fatalf("ParseLevel(%q) = %v, %v; want %v", input, got, err, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestContextLogger(t *testing.T) {
	if FromContext(context.Background()) != nil {
		t.Fatalf("expected nil logger on bare context")
	}
	logger := slog.Default()
	ctx := ContextWithLogger(context.Background(), logger)
	if FromContext(ctx) != logger {
		t.Fatalf("expected logger to round trip through context")
	}
}
