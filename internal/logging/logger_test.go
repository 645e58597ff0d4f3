package logging_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"echonode/internal/logging"
)

func TestNewLogger_JSONRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Level: "warn", Format: "json", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Info("dropped")
	logger.With("node_id", "n1").Warn("kept", "k", "v")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %q", buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if rec["msg"] != "kept" || rec["node_id"] != "n1" || rec["k"] != "v" {
		t.Fatalf("unexpected record %v", rec)
	}
}

func TestNewLogger_TextDebug(t *testing.T) {
	var buf bytes.Buffer
	logger, err := logging.NewLogger(logging.Options{Level: "DEBUG", Output: &buf})
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("frame received", "line", 1)
	if !strings.Contains(buf.String(), "frame received") || !strings.Contains(buf.String(), "line=1") {
		t.Fatalf("unexpected output %q", buf.String())
	}
}

func TestNewLogger_UnsupportedFormat(t *testing.T) {
	if _, err := logging.NewLogger(logging.Options{Format: "xml"}); !errors.Is(err, logging.ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestFromContext(t *testing.T) {
	logger := logging.Discard()
	ctx := logging.WithLogger(context.Background(), logger)
	if got := logging.FromContext(ctx); got != logger {
		t.Fatalf("expected stored logger, got %#v", got)
	}
	if logging.FromContext(context.Background()) == nil {
		t.Fatal("expected default logger")
	}
}
