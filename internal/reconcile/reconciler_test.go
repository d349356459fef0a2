package reconcile_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"

	"tunesmith/internal/catalog"
	"tunesmith/internal/library"
	"tunesmith/internal/organizer"
	"tunesmith/internal/reconcile"
	"tunesmith/internal/services"
	"tunesmith/internal/settings"
	"tunesmith/internal/tagstore"
)

func ptr(s string) *string { return &s }

type stubLister struct {
	members map[string][]catalog.Metadata
	err     error
	calls   []string
}

func (s *stubLister) ListSource(_ context.Context, sourceID string) ([]catalog.Metadata, error) {
	s.calls = append(s.calls, sourceID)
	if s.err != nil {
		return nil, s.err
	}
	return s.members[sourceID], nil
}

type harness struct {
	dir   string
	out   string
	cache string
	tags  *tagstore.Memory
	cat   *catalog.Catalog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	h := &harness{
		dir:   dir,
		out:   filepath.Join(dir, "Music"),
		cache: filepath.Join(dir, "cache"),
		tags:  tagstore.NewMemory(),
		cat:   catalog.New("", nil),
	}
	if err := os.MkdirAll(h.cache, 0o755); err != nil {
		t.Fatal(err)
	}
	return h
}

func (h *harness) cacheFile(t *testing.T, id string) string {
	t.Helper()
	path := catalog.CachePath(h.cache, id, ".mp3")
	if err := os.WriteFile(path, []byte("audio-"+id), 0o644); err != nil {
		t.Fatal(err)
	}
	h.cat.SetDownloaded(id, true)
	return path
}

func (h *harness) collection(t *testing.T, declared *library.Declared) *library.Collection {
	t.Helper()
	root := settings.New(map[string]any{
		library.KeyOutputDir:      h.out,
		library.KeyMediaExtension: ".mp3",
	})
	c := library.New(filepath.Join(h.dir, "rock.json"), library.Options{Root: root, Tags: h.tags})
	if err := c.Initialize(declared); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return c
}

func (h *harness) reconciler(c *library.Collection, lister reconcile.Lister) *reconcile.Reconciler {
	return reconcile.New(c, h.cat, organizer.New(h.tags, nil), lister, reconcile.Options{
		CacheDir:       h.cache,
		CacheExtension: ".mp3",
	})
}

func rockDeclared() *library.Declared {
	declared := library.NewDeclared("rock")
	declared.AddSource("abc", "Rock Mix", "Rock")
	return declared
}

func TestGetDownloadSetFetchesMissingAndFilesCached(t *testing.T) {
	h := newHarness(t)
	h.cacheFile(t, "v2")
	c := h.collection(t, rockDeclared())
	lister := &stubLister{members: map[string][]catalog.Metadata{
		"abc": {
			{ID: "v1", Title: "Band - One"},
			{ID: "v2", Title: "Band - Two (Official Video)"},
		},
	}}
	r := h.reconciler(c, lister)
	r.Prepare(context.Background())

	requests, err := r.GetDownloadSet(context.Background())
	if err != nil {
		t.Fatalf("GetDownloadSet: %v", err)
	}
	if want := []reconcile.Request{{ItemID: "v1", SourceID: "abc"}}; !reflect.DeepEqual(requests, want) {
		t.Fatalf("requests = %+v, want %+v", requests, want)
	}
	if got := h.cat.Entry("v1").Title; got != "Band - One" {
		t.Fatalf("listing title not cataloged: %q", got)
	}

	placed := filepath.Join(h.out, "Rock", "Band - Two.mp3")
	if _, err := os.Stat(placed); err != nil {
		t.Fatalf("cached item not filed: %v", err)
	}
	tags, _ := h.tags.ReadTags(placed)
	if tags.Organization == nil || *tags.Organization != "abc/v2" {
		t.Fatalf("organization tag = %v", tags.Organization)
	}
	if _, ok := c.SongExists("v2", "abc"); !ok {
		t.Fatal("filed item should be declared")
	}
	if c.Changes().Len() != 0 {
		t.Fatal("change set should be flushed")
	}
	if got := r.Report().Created; !reflect.DeepEqual(got, []string{"v2"}) {
		t.Fatalf("created = %v", got)
	}
}

func TestGetDownloadSetSkipsIgnoredAndPresent(t *testing.T) {
	h := newHarness(t)
	h.cacheFile(t, "v1")
	onDisk := filepath.Join(h.out, "Rock", "Band - One.mp3")
	if err := os.MkdirAll(filepath.Dir(onDisk), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(onDisk, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.tags.Seed(onDisk, tagstore.Tags{Organization: ptr("abc/v1")})
	if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - One"}); err != nil {
		t.Fatal(err)
	}

	declared := rockDeclared()
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	declared.Ignore("v3")
	c := h.collection(t, declared)
	lister := &stubLister{members: map[string][]catalog.Metadata{
		"abc": {{ID: "v1", Title: "Band - One"}, {ID: "v3", Title: "Band - Three"}},
	}}
	r := h.reconciler(c, lister)
	r.Prepare(context.Background())

	requests, err := r.GetDownloadSet(context.Background())
	if err != nil {
		t.Fatalf("GetDownloadSet: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("expected nothing to fetch, got %+v", requests)
	}
	report := r.Report()
	if len(report.Created) != 0 {
		t.Fatalf("present item should not be recreated: %v", report.Created)
	}
	if !reflect.DeepEqual(report.Retagged, []string{"v1"}) {
		t.Fatalf("expected retag of untitled file, got %+v", report)
	}
}

func TestGetDownloadSetPropagatesListingFailure(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, rockDeclared())
	listErr := services.Wrap(services.ErrExternalService, "fetch", "list source", "", errors.New("offline"))
	r := h.reconciler(c, &stubLister{err: listErr})

	if _, err := r.GetDownloadSet(context.Background()); !errors.Is(err, services.ErrExternalService) {
		t.Fatalf("expected external service error, got %v", err)
	}
}

func TestDownloadCallbackFilesFetchedItem(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, rockDeclared())
	r := h.reconciler(c, &stubLister{})

	cb := r.DownloadCallback(context.Background(), "v1", "abc")
	if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - Fresh"}); err != nil {
		t.Fatal(err)
	}
	h.cacheFile(t, "v1")
	cb("v1", true)
	cb("v1", true)

	placed := filepath.Join(h.out, "Rock", "Band - Fresh.mp3")
	if _, err := os.Stat(placed); err != nil {
		t.Fatalf("fetched item not filed: %v", err)
	}
	tags, _ := h.tags.ReadTags(placed)
	if tags.Title == nil || *tags.Title != "Fresh" || tags.Artist == nil || *tags.Artist != "Band" {
		t.Fatalf("unexpected tags: %+v", tags)
	}
	report := r.Report()
	if !reflect.DeepEqual(report.Fetched, []string{"v1"}) || !reflect.DeepEqual(report.Created, []string{"v1"}) {
		t.Fatalf("callback should act once: %+v", report)
	}
	if got := len(c.Expected()); got != 1 {
		t.Fatalf("expected one declared item, got %d", got)
	}
}

func TestDownloadCallbackRecordsFailure(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, rockDeclared())
	r := h.reconciler(c, &stubLister{})

	r.DownloadCallback(context.Background(), "v9", "abc")("v9", false)

	report := r.Report()
	if !reflect.DeepEqual(report.FailedIDs(), []string{"v9"}) {
		t.Fatalf("failed = %v", report.FailedIDs())
	}
	if !report.HasFailures() {
		t.Fatal("fetch failure should count as a failure")
	}
	if len(c.Expected()) != 0 {
		t.Fatal("failed item must not be declared")
	}
}

func TestPrepareMovesRenamedFile(t *testing.T) {
	h := newHarness(t)
	old := filepath.Join(h.out, "Pop", "whatever.mp3")
	if err := os.MkdirAll(filepath.Dir(old), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(old, []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.tags.Seed(old, tagstore.Tags{Organization: ptr("abc/v1")})
	if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - Song"}); err != nil {
		t.Fatal(err)
	}

	declared := rockDeclared()
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := h.collection(t, declared)
	r := h.reconciler(c, nil)

	pairing := r.Prepare(context.Background())
	if len(pairing.Matched) != 1 {
		t.Fatalf("expected one match, got %+v", pairing)
	}
	if n := r.ResolveChangeSet(context.Background()); n != 1 {
		t.Fatalf("expected one change, got %d", n)
	}

	moved := filepath.Join(h.out, "Rock", "Band - Song.mp3")
	if _, err := os.Stat(moved); err != nil {
		t.Fatalf("file not moved: %v", err)
	}
	if _, err := os.Stat(filepath.Dir(old)); !os.IsNotExist(err) {
		t.Fatalf("emptied folder should be pruned, stat err = %v", err)
	}
	if got := r.Report().Moved; !reflect.DeepEqual(got, []string{"v1"}) {
		t.Fatalf("moved = %v", got)
	}
}

func TestPrepareExcludesItemsWithoutFilename(t *testing.T) {
	h := newHarness(t)
	declared := rockDeclared()
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := h.collection(t, declared)
	h.cacheFile(t, "v1")
	r := h.reconciler(c, &stubLister{})

	r.Prepare(context.Background())
	requests, err := r.GetDownloadSet(context.Background())
	if err != nil {
		t.Fatalf("GetDownloadSet: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("excluded item should not be fetched: %+v", requests)
	}
	report := r.Report()
	if len(report.Created) != 0 {
		t.Fatalf("excluded item should not be filed: %v", report.Created)
	}
	if len(report.Failed) != 1 || !errors.Is(report.Failed[0].Err, services.ErrMissingFilename) {
		t.Fatalf("expected missing filename failure, got %+v", report.Failed)
	}
}

func TestItemsSharingDestinationAreReportedNotOverwritten(t *testing.T) {
	h := newHarness(t)
	h.cacheFile(t, "v1")
	h.cacheFile(t, "v2")
	lister := &stubLister{members: map[string][]catalog.Metadata{
		"abc": {
			{ID: "v1", Title: "Band - Song"},
			{ID: "v2", Title: "Band - Song (Official Video)"},
		},
	}}
	for _, m := range lister.members["abc"] {
		if _, err := h.cat.AddFromMetadata(m); err != nil {
			t.Fatal(err)
		}
	}
	placed := filepath.Join(h.out, "Rock", "Band - Song.mp3")

	declared := rockDeclared()
	for pass := 1; pass <= 3; pass++ {
		c := h.collection(t, declared)
		r := h.reconciler(c, lister)
		r.Prepare(context.Background())
		if _, err := r.GetDownloadSet(context.Background()); err != nil {
			t.Fatalf("pass %d: GetDownloadSet: %v", pass, err)
		}

		report := r.Report()
		if !reflect.DeepEqual(report.FailedIDs(), []string{"v2"}) {
			t.Fatalf("pass %d: failed = %v", pass, report.FailedIDs())
		}
		if !errors.Is(report.Failed[0].Err, reconcile.ErrDestinationInUse) {
			t.Fatalf("pass %d: unexpected error %v", pass, report.Failed[0].Err)
		}
		if pass == 1 && !reflect.DeepEqual(report.Created, []string{"v1"}) {
			t.Fatalf("pass 1: created = %v", report.Created)
		}
		if pass > 1 && len(report.Created) != 0 {
			t.Fatalf("pass %d: nothing should be recreated, got %v", pass, report.Created)
		}

		data, err := os.ReadFile(placed)
		if err != nil {
			t.Fatalf("pass %d: %v", pass, err)
		}
		if string(data) != "audio-v1" {
			t.Fatalf("pass %d: file overwritten with %q", pass, data)
		}
		tags, _ := h.tags.ReadTags(placed)
		if tags.Organization == nil || *tags.Organization != "abc/v1" {
			t.Fatalf("pass %d: organization = %v", pass, tags.Organization)
		}
		declared = c.Declared()
	}
}

func TestCreateDoesNotOverwriteUntrackedFile(t *testing.T) {
	h := newHarness(t)
	h.cacheFile(t, "v1")
	if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - Song"}); err != nil {
		t.Fatal(err)
	}
	untracked := filepath.Join(h.out, "Rock", "Band - Song.mp3")
	if err := os.MkdirAll(filepath.Dir(untracked), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(untracked, []byte("mine"), 0o644); err != nil {
		t.Fatal(err)
	}
	h.tags.Seed(untracked, tagstore.Tags{Title: ptr("Song")})

	declared := rockDeclared()
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := h.collection(t, declared)
	r := h.reconciler(c, &stubLister{})
	r.Prepare(context.Background())
	if _, err := r.GetDownloadSet(context.Background()); err != nil {
		t.Fatalf("GetDownloadSet: %v", err)
	}

	if data, _ := os.ReadFile(untracked); string(data) != "mine" {
		t.Fatalf("untracked file overwritten: %q", data)
	}
	if got := r.Report().FailedIDs(); !reflect.DeepEqual(got, []string{"v1"}) {
		t.Fatalf("failed = %v", got)
	}
}

func TestParallelDownloadCallbacksFileEveryItem(t *testing.T) {
	h := newHarness(t)
	c := h.collection(t, rockDeclared())
	r := h.reconciler(c, &stubLister{})

	const n = 40
	callbacks := make([]func(string, bool), n)
	for i := range n {
		id := fmt.Sprintf("v%02d", i)
		if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: id, Title: "Band - Track " + id}); err != nil {
			t.Fatal(err)
		}
		h.cacheFile(t, id)
		callbacks[i] = r.DownloadCallback(context.Background(), id, "abc")
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, cb := range callbacks {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			cb(fmt.Sprintf("v%02d", i), true)
		}()
	}
	close(start)
	wg.Wait()
	r.ResolveChangeSet(context.Background())

	report := r.Report()
	if len(report.Created) != n || len(report.Fetched) != n || len(report.Failed) != 0 {
		t.Fatalf("created=%d fetched=%d failed=%v", len(report.Created), len(report.Fetched), report.Failed)
	}
	if got := c.Changes().Len(); got != 0 {
		t.Fatalf("change set not empty: %d", got)
	}
	if got := len(c.Expected()); got != n {
		t.Fatalf("expected items = %d, want %d", got, n)
	}
	for i := range n {
		if _, err := os.Stat(filepath.Join(h.out, "Rock", fmt.Sprintf("Band - Track v%02d.mp3", i))); err != nil {
			t.Fatalf("item %d not filed: %v", i, err)
		}
	}
}

func TestGetDownloadSetSkipsMembersAlreadyInLibrary(t *testing.T) {
	h := newHarness(t)
	onDisk := filepath.Join(h.out, "Rock", "Band - One.mp3")
	orphan := filepath.Join(h.out, "Band - Two.mp3")
	for path, org := range map[string]string{onDisk: "abc/v1", orphan: "abc/v2"} {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte("audio"), 0o644); err != nil {
			t.Fatal(err)
		}
		h.tags.Seed(path, tagstore.Tags{Organization: ptr(org)})
	}
	if _, err := h.cat.AddFromMetadata(catalog.Metadata{ID: "v1", Title: "Band - One"}); err != nil {
		t.Fatal(err)
	}

	declared := rockDeclared()
	declared.Items = append(declared.Items, library.DeclaredItem{ID: "v1", SourceID: "abc"})
	c := h.collection(t, declared)
	lister := &stubLister{members: map[string][]catalog.Metadata{
		"abc": {{ID: "v1", Title: "Band - One"}, {ID: "v2", Title: "Band - Two"}},
	}}
	r := h.reconciler(c, lister)
	r.Prepare(context.Background())

	requests, err := r.GetDownloadSet(context.Background())
	if err != nil {
		t.Fatalf("GetDownloadSet: %v", err)
	}
	if len(requests) != 0 {
		t.Fatalf("library files must not be fetched again: %+v", requests)
	}
	adopted := filepath.Join(h.out, "Rock", "Band - Two.mp3")
	if _, err := os.Stat(adopted); err != nil {
		t.Fatalf("undeclared file not adopted: %v", err)
	}
	if _, ok := c.SongExists("v2", "abc"); !ok {
		t.Fatal("adopted item should be declared")
	}
	if report := r.Report(); len(report.Failed) != 0 || len(report.Created) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
