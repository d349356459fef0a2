package catalog_test

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"tunesmith/internal/catalog"
)

func fixedClock(ts int64) catalog.Option {
	return catalog.WithClock(func() time.Time { return time.Unix(ts, 0) })
}

func TestEntryCreatesNotDownloadedRecord(t *testing.T) {
	c := catalog.New("", nil)
	entry := c.Entry("v1")
	if entry.ID != "v1" || entry.Downloaded() {
		t.Fatalf("unexpected lazy entry: %+v", entry)
	}
	if _, ok := c.Lookup("v1"); !ok {
		t.Fatal("expected Entry to create the record")
	}
	if _, ok := c.Lookup("v2"); ok {
		t.Fatal("Lookup must not create records")
	}
}

func TestAddFromMetadataMergesRemoteFields(t *testing.T) {
	c := catalog.New("", nil)
	if _, err := c.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - Song (Official Video)", Uploader: "BandVEVO", Duration: 213}); err != nil {
		t.Fatal(err)
	}
	entry, err := c.AddFromMetadata(catalog.Metadata{ID: "v1", Artist: "Band", AltTitle: "Song", Album: "Record"})
	if err != nil {
		t.Fatal(err)
	}
	if entry.Title != "Band - Song (Official Video)" || entry.Author != "BandVEVO" || entry.Length != 213 {
		t.Fatalf("earlier fields lost: %+v", entry)
	}
	if entry.SongArtist != "Band" || entry.SongTitle != "Song" || entry.SongAlbum != "Record" {
		t.Fatalf("remote song fields not merged: %+v", entry)
	}
	if _, err := c.AddFromMetadata(catalog.Metadata{}); err == nil {
		t.Fatal("expected error for metadata without id")
	}
}

func TestSetDownloadedConcurrentUpdates(t *testing.T) {
	c := catalog.New("", nil, fixedClock(1700000000))
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := "v" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			c.SetDownloaded(id, true)
		}(i)
	}
	wg.Wait()
	if got := c.Count(); got != 50 {
		t.Fatalf("expected 50 entries, got %d", got)
	}
	for _, entry := range c.List() {
		if !entry.Downloaded() || *entry.DownloadedAt != 1700000000 {
			t.Fatalf("entry %s not marked downloaded: %+v", entry.ID, entry)
		}
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "catalog.json")
	c := catalog.New(path, nil, fixedClock(1700000000))
	if _, err := c.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Song"}); err != nil {
		t.Fatal(err)
	}
	c.SetDownloaded("v1", true)
	c.Entry("v2")
	if err := c.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]map[string]map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		t.Fatalf("catalog file is not the expected shape: %v", err)
	}
	if _, ok := doc["items"]["v2"]; !ok {
		t.Fatalf("expected v2 in items, got %s", raw)
	}
	if v, ok := doc["items"]["v2"]["downloadedAt"]; !ok || v != nil {
		t.Fatalf("expected explicit null downloadedAt, got %v", doc["items"]["v2"])
	}

	loaded, err := catalog.Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.IsDownloaded("v1") || loaded.IsDownloaded("v2") {
		t.Fatalf("downloaded state not preserved: %+v", loaded.List())
	}
	entry, _ := loaded.Lookup("v1")
	if entry.ID != "v1" || entry.Title != "Song" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
}

func TestLoadMissingAndMalformed(t *testing.T) {
	dir := t.TempDir()
	c, err := catalog.Load(filepath.Join(dir, "absent.json"), nil)
	if err != nil || c.Count() != 0 {
		t.Fatalf("expected empty catalog, got %v, %v", c, err)
	}
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := catalog.Load(bad, nil); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestReconcileWithCache(t *testing.T) {
	cacheDir := t.TempDir()
	write := func(name string) {
		t.Helper()
		if err := os.WriteFile(filepath.Join(cacheDir, name), []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("kept.mp3")
	write("orphan.mp3")
	write("partial.webm")

	c := catalog.New("", nil, fixedClock(42))
	if _, err := c.AddFromMetadata(catalog.Metadata{ID: "kept", Title: "Kept"}); err != nil {
		t.Fatal(err)
	}
	c.SetDownloaded("kept", true)
	if _, err := c.AddFromMetadata(catalog.Metadata{ID: "lost", Title: "Lost"}); err != nil {
		t.Fatal(err)
	}
	c.SetDownloaded("lost", true)
	c.Entry("dummy")

	summary, err := c.Reconcile(cacheDir, ".mp3")
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	want := catalog.ReconcileSummary{Dropped: 1, MarkedMissing: 1, StrayDeleted: 1, Adopted: 1}
	if summary != want {
		t.Fatalf("summary = %+v, want %+v", summary, want)
	}
	if _, ok := c.Lookup("dummy"); ok {
		t.Fatal("expected untitled entry without a file to be dropped")
	}
	if c.IsDownloaded("lost") {
		t.Fatal("expected missing file to be marked not downloaded")
	}
	if !c.IsDownloaded("orphan") || !c.IsDownloaded("kept") {
		t.Fatal("expected cached files to be marked downloaded")
	}
	if _, err := os.Stat(filepath.Join(cacheDir, "partial.webm")); !os.IsNotExist(err) {
		t.Fatalf("expected stray file to be deleted, got %v", err)
	}
	if got := catalog.CachePath(cacheDir, "kept", ".mp3"); got != filepath.Join(cacheDir, "kept.mp3") {
		t.Fatalf("CachePath = %q", got)
	}
}

func TestRemoveAndList(t *testing.T) {
	c := catalog.New("", nil, fixedClock(10))
	c.Entry("b")
	c.Entry("a")
	c.SetDownloaded("c", true)
	list := c.List()
	if len(list) != 3 || list[0].ID != "c" || list[1].ID != "a" || list[2].ID != "b" {
		t.Fatalf("unexpected order: %+v", list)
	}
	if !c.Remove("a") || c.Remove("a") {
		t.Fatal("Remove should report existence")
	}
}
