package logging_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"tunesmith/internal/config"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
)

func TestNewFromConfigWritesLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.LogDir = t.TempDir()

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("sync started", logging.String("collection", "rock.json"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.LogDir, logging.LogFileName))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), "sync started") {
		t.Fatalf("expected message in log file, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "fetch").Info("download complete", logging.String("item_id", "v1"), logging.String("title", "Band - Song"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	for _, fragment := range []string{" INFO fetch: download complete", "item_id=v1", `title="Band - Song"`} {
		if !strings.Contains(line, fragment) {
			t.Fatalf("expected %q in %q", fragment, line)
		}
	}
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console-debug.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("message with caller")

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), ".go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Warn("tag write failed", logging.String("key", "comment"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if record["level"] != "warn" {
		t.Fatalf("level = %v, want warn", record["level"])
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
	if record["key"] != "comment" {
		t.Fatalf("key = %v", record["key"])
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

type recordingHandler struct {
	mu      sync.Mutex
	attrs   []slog.Attr
	records []map[string]string
}

func (h *recordingHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recordingHandler) Handle(_ context.Context, r slog.Record) error {
	fields := map[string]string{"msg": r.Message}
	for _, a := range h.attrs {
		fields[a.Key] = a.Value.String()
	}
	r.Attrs(func(a slog.Attr) bool {
		fields[a.Key] = a.Value.String()
		return true
	})
	h.mu.Lock()
	h.records = append(h.records, fields)
	h.mu.Unlock()
	return nil
}

func (h *recordingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &recordingHandler{attrs: append(append([]slog.Attr(nil), h.attrs...), attrs...), records: nil}
}

func (h *recordingHandler) WithGroup(string) slog.Handler { return h }

func TestWithContextAddsFields(t *testing.T) {
	ctx := context.Background()
	ctx = services.WithRunID(ctx, "run-1")
	ctx = services.WithSourceID(ctx, "abc")
	ctx = services.WithItemID(ctx, "v1")

	fields := logging.ContextFields(ctx)
	want := map[string]string{
		logging.FieldRunID:    "run-1",
		logging.FieldSourceID: "abc",
		logging.FieldItemID:   "v1",
	}
	if len(fields) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), fields)
	}
	for _, f := range fields {
		if want[f.Key] != f.Value.String() {
			t.Fatalf("field %s = %q, want %q", f.Key, f.Value.String(), want[f.Key])
		}
	}
	if logging.WithContext(context.Background(), nil) == nil {
		t.Fatal("expected nop logger for nil base")
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	handler := &recordingHandler{}
	logger := slog.New(handler)

	logging.WarnWithContext(logger, "stray file removed", "stray_file", logging.String(logging.FieldImpact, "file deleted"))

	if len(handler.records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(handler.records))
	}
	rec := handler.records[0]
	if rec[logging.FieldEventType] != "stray_file" {
		t.Fatalf("event_type = %q", rec[logging.FieldEventType])
	}
	if rec[logging.FieldErrorHint] == "" {
		t.Fatal("expected default error hint")
	}
	if rec[logging.FieldImpact] != "file deleted" {
		t.Fatalf("impact should keep caller value, got %q", rec[logging.FieldImpact])
	}
}

func TestTeeFansOutRecords(t *testing.T) {
	first := &recordingHandler{}
	second := &recordingHandler{}
	logger := slog.New(logging.Tee(first, nil, second))

	logger.Info("run started", logging.String(logging.FieldRunID, "run-7"))

	for i, h := range []*recordingHandler{first, second} {
		if len(h.records) != 1 {
			t.Fatalf("handler %d got %d records", i, len(h.records))
		}
		if h.records[0][logging.FieldRunID] != "run-7" {
			t.Fatalf("handler %d lost attrs: %v", i, h.records[0])
		}
	}
}
