package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"tunesmith/internal/catalog"
	"tunesmith/internal/config"
	"tunesmith/internal/library"
)

// WriteCached places a fake extracted audio file for id in the cache
// directory and returns its path.
func WriteCached(t testing.TB, cfg *config.Config, id string) string {
	t.Helper()
	path := catalog.CachePath(cfg.Paths.CacheDir, id, cfg.CacheExtension())
	WriteFile(t, path, "audio:"+id)
	return path
}

// WriteCollection saves declared as <base>/collections/<name>.json and
// returns the path.
func WriteCollection(t testing.TB, cfg *config.Config, declared *library.Declared) string {
	t.Helper()
	path := filepath.Join(BaseDir(cfg), "collections", declared.Name+".json")
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := library.SaveDeclared(path, declared); err != nil {
		t.Fatalf("save collection: %v", err)
	}
	return path
}

// WriteFile creates path, and its parent directories, holding content.
func WriteFile(t testing.TB, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}
