package library_test

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"tunesmith/internal/catalog"
	"tunesmith/internal/library"
	"tunesmith/internal/rules"
	"tunesmith/internal/services"
	"tunesmith/internal/settings"
	"tunesmith/internal/tagstore"
)

func ptr(s string) *string { return &s }

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
}

type fixture struct {
	dir  string
	out  string
	tags *tagstore.Memory
	reg  *rules.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()
	return &fixture{
		dir:  dir,
		out:  filepath.Join(dir, "Music"),
		tags: tagstore.NewMemory(),
		reg:  rules.DefaultRegistry(),
	}
}

func (f *fixture) open(t *testing.T, declared *library.Declared, deleteStray bool) *library.Collection {
	t.Helper()
	root := settings.New(map[string]any{
		library.KeyOutputDir:      f.out,
		library.KeyMediaExtension: ".mp3",
	})
	c := library.New(filepath.Join(f.dir, "rock.json"), library.Options{
		Root:        root,
		Registry:    f.reg,
		Tags:        f.tags,
		DeleteStray: deleteStray,
	})
	if err := c.Initialize(declared); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func TestScanReadsOneLevelDeep(t *testing.T) {
	f := newFixture(t)
	top := filepath.Join(f.out, "Loose.mp3")
	inFolder := filepath.Join(f.out, "Rock", "Band - Song.mp3")
	deep := filepath.Join(f.out, "Rock", "Live", "Deep.mp3")
	hidden := filepath.Join(f.out, "Rock", ".partial.mp3")
	for _, p := range []string{top, inFolder, deep, hidden} {
		touch(t, p)
	}
	f.tags.Seed(inFolder, tagstore.Tags{Title: ptr("Song"), Artist: ptr("Band"), Organization: ptr("abc/v1")})
	f.tags.Seed(deep, tagstore.Tags{Organization: ptr("abc/v2")})

	c := f.open(t, library.NewDeclared("rock"), false)

	actual := c.Actual()
	if len(actual) != 1 {
		t.Fatalf("expected one tagged item, got %d", len(actual))
	}
	item := actual[0]
	if item.ID != "v1" || item.SourceID != "abc" || item.Path != inFolder {
		t.Fatalf("unexpected actual item: %+v", item)
	}
	if got := item.Settings().String(library.KeyFolder); got != "Rock" {
		t.Fatalf("folder = %q", got)
	}
	if got := item.Settings().String(library.KeyFilename); got != "Band - Song" {
		t.Fatalf("filename = %q", got)
	}
	if got := c.Untracked(); !reflect.DeepEqual(got, []string{top}) {
		t.Fatalf("untracked = %v", got)
	}
}

func TestScanSkipsUnreadableTags(t *testing.T) {
	f := newFixture(t)
	bad := filepath.Join(f.out, "Rock", "Bad.mp3")
	good := filepath.Join(f.out, "Rock", "Good.mp3")
	touch(t, bad)
	touch(t, good)
	f.tags.Fail[bad] = errors.New("corrupt frame")
	f.tags.Seed(good, tagstore.Tags{Organization: ptr("abc/v1")})

	c := f.open(t, library.NewDeclared("rock"), false)

	if got := c.ScanFailures(); !reflect.DeepEqual(got, []string{bad}) {
		t.Fatalf("scan failures = %v", got)
	}
	if len(c.Actual()) != 1 {
		t.Fatalf("expected scan to continue past the bad file, got %d items", len(c.Actual()))
	}
}

func TestScanDeletesStrayFilesWhenEnabled(t *testing.T) {
	f := newFixture(t)
	stray := filepath.Join(f.out, "Rock", "cover.jpg")
	touch(t, stray)

	f.open(t, library.NewDeclared("rock"), false)
	if _, err := os.Stat(stray); err != nil {
		t.Fatalf("stray file removed while disabled: %v", err)
	}

	f.open(t, library.NewDeclared("rock"), true)
	if _, err := os.Stat(stray); !os.IsNotExist(err) {
		t.Fatalf("expected stray file deleted, stat err = %v", err)
	}
}

func TestMatchedFileInOtherFolderQueuesMove(t *testing.T) {
	f := newFixture(t)
	onDisk := filepath.Join(f.out, "Pop", "Band - Song.mp3")
	touch(t, onDisk)
	f.tags.Seed(onDisk, tagstore.Tags{Title: ptr("Song"), Artist: ptr("Band"), Organization: ptr("abc/v1")})

	declared := library.NewDeclared("rock")
	declared.AddSource("abc", "Rock Mix", "Rock")
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := f.open(t, declared, false)

	item, ok := c.SongExists("v1", "abc")
	if !ok {
		t.Fatal("expected declared item")
	}
	if _, err := c.RunRules(item, catalog.Entry{ID: "v1", Title: "Band - Song (Official Video)"}, false); err != nil {
		t.Fatalf("RunRules: %v", err)
	}

	pairing := c.Pair()
	if len(pairing.Missing) != 0 {
		t.Fatalf("matched item reported missing: %v", pairing.Missing)
	}
	if len(pairing.Matched) != 1 {
		t.Fatalf("expected one match, got %d", len(pairing.Matched))
	}
	if n := c.QueueUpdates(pairing, nil); n != 1 {
		t.Fatalf("expected one queued move, got %d", n)
	}
	pending := c.Changes().Pending()
	if pending[0].IsCreate() || pending[0].Path != onDisk || pending[0].Item != item {
		t.Fatalf("unexpected change: %+v", pending[0])
	}
	dest, _ := item.Destination()
	if want := filepath.Join(f.out, "Rock", "Band - Song.mp3"); dest != want {
		t.Fatalf("destination = %q, want %q", dest, want)
	}
}

type blankFilename struct{}

func (blankFilename) Name() string           { return "Blank" }
func (blankFilename) Params() map[string]any { return nil }
func (blankFilename) Apply(catalog.Entry, map[string]any) map[string]any {
	return map[string]any{library.KeyFilename: "", library.KeyTitle: "Clobbered"}
}

func TestMissingFilenameExcludesItem(t *testing.T) {
	f := newFixture(t)
	declared := library.NewDeclared("rock")
	declared.AddSource("abc", "", "Rock")
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := f.open(t, declared, false)
	item, _ := c.SongExists("v1", "abc")

	entry := catalog.Entry{ID: "v1", Title: "Band - Song"}
	if _, err := c.RunRules(item, entry, true); err != nil {
		t.Fatalf("first RunRules: %v", err)
	}
	resolved, _ := item.Destination()
	touch(t, resolved)
	c.Changes().Drain(func(library.Change) {})

	c.Rules = append(c.Rules, blankFilename{})
	_, err := c.RunRules(item, entry, true)
	if !errors.Is(err, services.ErrMissingFilename) {
		t.Fatalf("expected ErrMissingFilename, got %v", err)
	}
	if c.Changes().Len() != 0 {
		t.Fatal("failed item must not be queued")
	}
	if got := item.Settings().String(library.KeyTitle); got != "Song" {
		t.Fatalf("derived settings not restored, title = %q", got)
	}
	if _, err := os.Stat(resolved); err != nil {
		t.Fatalf("previously resolved file touched: %v", err)
	}
}

func TestRunRulesQueuesRenameWithOldPath(t *testing.T) {
	f := newFixture(t)
	declared := library.NewDeclared("rock")
	declared.AddSource("abc", "", "Rock")
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := f.open(t, declared, false)
	item, _ := c.SongExists("v1", "abc")

	if _, err := c.RunRules(item, catalog.Entry{ID: "v1", Title: "Band - Song"}, false); err != nil {
		t.Fatal(err)
	}
	old, _ := item.Destination()
	touch(t, old)

	changed, err := c.RunRules(item, catalog.Entry{ID: "v1", Title: "Band - Other Song"}, true)
	if err != nil || !changed {
		t.Fatalf("RunRules = %v, %v", changed, err)
	}
	pending := c.Changes().Pending()
	if len(pending) != 1 || pending[0].Path != old {
		t.Fatalf("expected move from %q, got %+v", old, pending)
	}
}

func TestRunRulesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	declared := library.NewDeclared("rock")
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1"})
	c := f.open(t, declared, false)
	item, _ := c.SongExists("v1", "")
	entry := catalog.Entry{ID: "v1", Title: "Band - Song"}

	if _, err := c.RunRules(item, entry, true); err != nil {
		t.Fatal(err)
	}
	first := item.Defaults().Overrides()
	changed, err := c.RunRules(item, entry, true)
	if err != nil {
		t.Fatal(err)
	}
	if changed || !reflect.DeepEqual(first, item.Defaults().Overrides()) {
		t.Fatalf("second run changed derived settings: %v -> %v", first, item.Defaults().Overrides())
	}
	if c.Changes().Len() != 1 {
		t.Fatalf("expected only the first run to queue, got %d", c.Changes().Len())
	}
}

func TestDeclaredRoundTripKeepsOverridesOnly(t *testing.T) {
	f := newFixture(t)
	declared := library.NewDeclared("rock")
	declared.OutputDir = "Music"
	declared.AddSource("abc", "Rock Mix", "Rock")
	declared.SetItem("v1", "abc", library.KeyAlbum, "Greatest")
	c := f.open(t, declared, false)
	item, _ := c.SongExists("v1", "abc")
	if _, err := c.RunRules(item, catalog.Entry{ID: "v1", Title: "Band - Song"}, false); err != nil {
		t.Fatal(err)
	}

	path := filepath.Join(f.dir, "rock.json")
	if err := library.SaveDeclared(path, c.Declared()); err != nil {
		t.Fatal(err)
	}
	loaded, err := library.LoadDeclared(path)
	if err != nil {
		t.Fatal(err)
	}
	if loaded.OutputDir != "Music" {
		t.Fatalf("output dir = %q", loaded.OutputDir)
	}
	if len(loaded.Items) != 1 || !reflect.DeepEqual(loaded.Items[0].Settings, map[string]any{library.KeyAlbum: "Greatest"}) {
		t.Fatalf("expected only the album override, got %+v", loaded.Items)
	}
	if loaded.Sources[0].Folder != "Rock" || loaded.Sources[0].Title != "Rock Mix" {
		t.Fatalf("unexpected source: %+v", loaded.Sources[0])
	}
}

func TestLoadDeclaredRejectsMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := library.LoadDeclared(path); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestChangeSetDrainEmptiesQueue(t *testing.T) {
	var set library.ChangeSet
	a := library.NewItem("a", "", settings.New(nil))
	b := library.NewItem("b", "", settings.New(nil))
	set.Append("", a)
	set.Append("/music/b.mp3", b)

	var order []string
	n := set.Drain(func(c library.Change) { order = append(order, c.Item.ID) })
	if n != 2 || !reflect.DeepEqual(order, []string{"a", "b"}) {
		t.Fatalf("drain = %d %v", n, order)
	}
	if set.Len() != 0 {
		t.Fatal("queue not empty after drain")
	}
}

func TestChangeSetAppendDuringDrain(t *testing.T) {
	var set library.ChangeSet
	const writers, perWriter = 8, 50

	var drained []string
	var wg sync.WaitGroup
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			set.Drain(func(c library.Change) { drained = append(drained, c.Item.ID) })
			if len(drained) == writers*perWriter {
				return
			}
		}
	}()
	for w := range writers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWriter {
				set.Append("", library.NewItem(fmt.Sprintf("w%d-%d", w, i), "", settings.New(nil)))
			}
		}()
	}
	wg.Wait()
	<-done
	set.Drain(func(c library.Change) { drained = append(drained, c.Item.ID) })

	if len(drained) != writers*perWriter {
		t.Fatalf("drained %d changes, want %d", len(drained), writers*perWriter)
	}
	seen := make(map[string]struct{}, len(drained))
	for _, id := range drained {
		if _, dup := seen[id]; dup {
			t.Fatalf("change %s drained twice", id)
		}
		seen[id] = struct{}{}
	}
	if set.Len() != 0 {
		t.Fatal("queue not empty after final drain")
	}
}

func TestSuggestMatchesUntrackedFiles(t *testing.T) {
	f := newFixture(t)
	loose := filepath.Join(f.out, "Band - Song.mp3")
	touch(t, loose)

	declared := library.NewDeclared("rock")
	declared.Items = append(declared.Items,
		library.DeclaredItem{ID: "v1", Settings: map[string]any{library.KeyFilename: "Band - Song"}},
		library.DeclaredItem{ID: "v2", Settings: map[string]any{library.KeyFilename: "Other Artist - Ballad"}},
	)
	c := f.open(t, declared, false)

	got := c.Pair().Suggest(0.5)
	if len(got) != 1 || got[0].Path != loose || got[0].Item.ID != "v1" {
		t.Fatalf("unexpected suggestions: %+v", got)
	}
}
