package deps

import (
	"os"
	"path/filepath"
	"testing"
)

func writeStub(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("#!/bin/sh\nexit 0\n"), 0o755); err != nil {
		t.Fatalf("write stub: %v", err)
	}
}

func TestCheckBinaries(t *testing.T) {
	present := filepath.Join(t.TempDir(), "present")
	writeStub(t, present)
	reqs := []Requirement{
		{Name: "Present", Command: present},
		{Name: "Missing", Command: "clearly-not-present-binary"},
		{Name: "Optional", Command: "also-not-present", Optional: true},
		{Name: "Blank"},
	}

	results := CheckBinaries(reqs)
	if len(results) != len(reqs) {
		t.Fatalf("expected %d results, got %d", len(reqs), len(results))
	}
	if !results[0].Available || results[0].Detail != "" {
		t.Fatalf("expected first requirement to be available, got %#v", results[0])
	}
	if results[1].Available || results[1].Detail == "" || !results[1].Missing() {
		t.Fatalf("expected missing binary to be reported, got %#v", results[1])
	}
	if results[1].Command != "clearly-not-present-binary" {
		t.Fatalf("unexpected command recorded: %s", results[1].Command)
	}
	if results[2].Missing() {
		t.Fatal("optional requirement should never count as missing")
	}
	if results[3].Detail != "command not configured" {
		t.Fatalf("unexpected detail for blank command: %q", results[3].Detail)
	}
}

func TestCheckFFmpegPrefersConfigured(t *testing.T) {
	configured := filepath.Join(t.TempDir(), "my-ffmpeg")
	writeStub(t, configured)

	status := CheckFFmpeg(configured, "")
	if !status.Available || status.Command != configured {
		t.Fatalf("expected configured ffmpeg, got %#v", status)
	}
}

func TestCheckFFmpegSidecar(t *testing.T) {
	tmp := t.TempDir()
	downloader := filepath.Join(tmp, executableName("yt-dlp"))
	sidecar := filepath.Join(tmp, executableName("ffmpeg"))
	writeStub(t, downloader)
	writeStub(t, sidecar)
	t.Setenv("PATH", "")

	status := CheckFFmpeg("ffmpeg", downloader)
	if !status.Available || status.Command != sidecar {
		t.Fatalf("expected sidecar ffmpeg %q, got %#v", sidecar, status)
	}
}

func TestCheckFFmpegPathFallback(t *testing.T) {
	binDir := t.TempDir()
	ffmpegPath := filepath.Join(binDir, executableName("ffmpeg"))
	writeStub(t, ffmpegPath)
	t.Setenv("PATH", binDir)

	status := CheckFFmpeg("", "")
	if !status.Available || status.Command != ffmpegPath {
		t.Fatalf("expected PATH ffmpeg %q, got %#v", ffmpegPath, status)
	}
}

func TestCheckFFmpegNotFound(t *testing.T) {
	t.Setenv("PATH", "")
	status := CheckFFmpeg("", filepath.Join(t.TempDir(), "yt-dlp"))
	if status.Available || status.Detail == "" {
		t.Fatalf("expected ffmpeg resolution to fail, got %#v", status)
	}
}
