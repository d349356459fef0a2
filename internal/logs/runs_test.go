package logs_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"tunesmith/internal/logs"
)

func TestRunFileName(t *testing.T) {
	started := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	got := logs.RunFileName(started, "Road Trip / 2026", "0123456789abcdef")
	want := "20260304T050607-road-trip-2026-01234567.log"
	if got != want {
		t.Fatalf("RunFileName = %q, want %q", got, want)
	}
	if got := logs.RunFileName(started, "  ", "ab"); got != "20260304T050607-collection-ab.log" {
		t.Fatalf("fallback name = %q", got)
	}
}

func TestListRunsNewestFirstAndFind(t *testing.T) {
	dir := t.TempDir()
	older := logs.RunFileName(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), "rock", "aaaaaaaa1")
	newer := logs.RunFileName(time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), "jazz", "bbbbbbbb2")
	for _, name := range []string{older, newer, "notes.txt", "garbage.log"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}

	runs, err := logs.ListRuns(dir)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %#v", runs)
	}
	if runs[0].Collection != "jazz" || runs[1].Collection != "rock" {
		t.Fatalf("unexpected order: %#v", runs)
	}

	if run, ok := logs.FindRun(runs, ""); !ok || run.Collection != "jazz" {
		t.Fatalf("empty query should pick newest, got %#v", run)
	}
	if run, ok := logs.FindRun(runs, "aaaa"); !ok || run.Collection != "rock" {
		t.Fatalf("run id prefix lookup failed: %#v", run)
	}
	if run, ok := logs.FindRun(runs, "Rock"); !ok || run.RunID != "aaaaaaaa" {
		t.Fatalf("collection lookup failed: %#v", run)
	}
	if _, ok := logs.FindRun(runs, "classical"); ok {
		t.Fatal("expected no match")
	}
}

func TestListRunsMissingDir(t *testing.T) {
	runs, err := logs.ListRuns(filepath.Join(t.TempDir(), "runs"))
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty result, got %v, %v", runs, err)
	}
}
