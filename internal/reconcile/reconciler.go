package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"sync"

	"tunesmith/internal/catalog"
	"tunesmith/internal/library"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
	"tunesmith/internal/tagstore"
)

// ErrDestinationInUse marks an item whose library path is already held by
// another item's file or by an untracked file.
var ErrDestinationInUse = errors.New("destination in use")

// Lister returns the current members of a remote source.
type Lister interface {
	ListSource(ctx context.Context, sourceID string) ([]catalog.Metadata, error)
}

// Placer performs the file operations of a change set.
type Placer interface {
	Place(ctx context.Context, cachePath, dest string, tags map[string]string) error
	Relocate(ctx context.Context, src, dest string, tags map[string]string) (bool, error)
}

// Request is one item the fetch pipeline must download.
type Request struct {
	ItemID   string
	SourceID string
}

// Options configures a Reconciler.
type Options struct {
	CacheDir string
	// CacheExtension is the extension of downloaded media in CacheDir.
	CacheExtension string
	Logger         *slog.Logger
}

// Reconciler applies changes for one collection.
type Reconciler struct {
	collection *library.Collection
	catalog    *catalog.Catalog
	files      Placer
	lister     Lister
	cacheDir   string
	cacheExt   string
	logger     *slog.Logger

	mu       sync.Mutex
	report   Report
	excluded map[string]struct{}
	pairing  library.Pairing
	// claims maps a library path to the organization key of the file there;
	// untracked files are held by the empty key.
	claims map[string]string
}

// New constructs a reconciler. lister may be nil when no remote listing is
// needed, as for a dry run.
func New(collection *library.Collection, cat *catalog.Catalog, files Placer, lister Lister, opts Options) *Reconciler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Reconciler{
		collection: collection,
		catalog:    cat,
		files:      files,
		lister:     lister,
		cacheDir:   opts.CacheDir,
		cacheExt:   opts.CacheExtension,
		logger:     logging.NewComponentLogger(logger, "reconcile").With(logging.String(logging.FieldCollection, collection.Name)),
		excluded:   make(map[string]struct{}),
		claims:     make(map[string]string),
	}
}

// Prepare derives settings for every declared item, pairs them with the
// scanned files, and queues moves and retags. Items whose rules fail are
// recorded and excluded from the rest of the run.
func (r *Reconciler) Prepare(ctx context.Context) library.Pairing {
	for _, item := range r.collection.Expected() {
		r.runRules(ctx, item)
	}
	pairing := r.collection.Pair()
	queued := r.collection.QueueUpdates(pairing, r.isExcluded)

	r.mu.Lock()
	r.pairing = pairing
	for _, item := range r.collection.Actual() {
		if _, held := r.claims[filepath.Clean(item.Path)]; !held {
			r.claims[filepath.Clean(item.Path)] = item.OrganizationKey()
		}
	}
	for _, path := range pairing.Untracked {
		r.claims[filepath.Clean(path)] = ""
	}
	r.report.Untracked = slices.Clone(pairing.Untracked)
	for _, orphan := range pairing.Orphans {
		r.report.Orphans = append(r.report.Orphans, orphan.Path)
	}
	r.report.Unreadable = r.collection.ScanFailures()
	r.mu.Unlock()

	logging.WithContext(ctx, r.logger).Info("paired library",
		logging.Int("matched", len(pairing.Matched)),
		logging.Int("missing", len(pairing.Missing)),
		logging.Int("orphans", len(pairing.Orphans)),
		logging.Int("untracked", len(pairing.Untracked)),
		logging.Int("queued", queued))
	return pairing
}

// GetDownloadSet lists every source and returns the items that need a fetch.
//
// Items the catalog already holds are filed into the library directly, which
// adds them to the expected list; the change set is resolved before
// returning. Members whose file is already in the library are never fetched
// again, even when the cache no longer holds them, and undeclared files
// carrying a member's organization tag are adopted in place. A listing
// failure aborts the call.
func (r *Reconciler) GetDownloadSet(ctx context.Context) ([]Request, error) {
	logger := logging.WithContext(ctx, r.logger)
	var requests []Request
	seen := make(map[string]struct{})
	want := func(itemID, sourceID string) {
		key := tagstore.Organization(sourceID, itemID)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}
		requests = append(requests, Request{ItemID: itemID, SourceID: sourceID})
	}

	orphans := make(map[string]*library.Item)
	matched := make(map[string]struct{})
	r.mu.Lock()
	for _, orphan := range r.pairing.Orphans {
		orphans[orphan.OrganizationKey()] = orphan
	}
	for _, m := range r.pairing.Matched {
		matched[m.Expected.OrganizationKey()] = struct{}{}
	}
	missing := slices.Clone(r.pairing.Missing)
	r.mu.Unlock()

	for _, src := range r.collection.Sources() {
		if r.lister == nil {
			break
		}
		srcCtx := services.WithSourceID(ctx, src.ID)
		members, err := r.lister.ListSource(srcCtx, src.ID)
		if err != nil {
			return nil, err
		}
		r.catalog.AddFromListing(members)
		logging.WithContext(srcCtx, r.logger).Info("listed source", logging.Int("members", len(members)))

		for _, member := range members {
			if r.collection.IsIgnored(member.ID) {
				continue
			}
			key := tagstore.Organization(src.ID, member.ID)
			if _, onDisk := matched[key]; onDisk {
				continue
			}
			orphan, adopt := orphans[key]
			if !adopt && !r.catalog.IsDownloaded(member.ID) {
				want(member.ID, src.ID)
				continue
			}
			if _, exists := r.collection.SongExists(member.ID, src.ID); exists {
				continue
			}
			item := r.collection.NewItem(member.ID, src.ID)
			if !r.runRules(ctx, item) {
				continue
			}
			oldPath := ""
			if adopt {
				oldPath = orphan.Path
				item.Path = orphan.Path
			}
			r.collection.Changes().Append(oldPath, item)
		}
	}

	for _, item := range missing {
		if r.isExcluded(item) || r.collection.IsIgnored(item.ID) {
			continue
		}
		if r.catalog.IsDownloaded(item.ID) {
			r.collection.Changes().Append("", item)
			continue
		}
		want(item.ID, item.SourceID)
	}

	flushed := r.ResolveChangeSet(ctx)
	logger.Info("computed download set", logging.Int("fetch", len(requests)), logging.Int("filed_from_cache", flushed))
	return requests, nil
}

// DownloadCallback returns the completion handler for one fetch. The handler
// acts at most once.
func (r *Reconciler) DownloadCallback(ctx context.Context, itemID, sourceID string) func(string, bool) {
	var once sync.Once
	ctx = services.WithSourceID(services.WithItemID(ctx, itemID), sourceID)
	return func(_ string, ok bool) {
		once.Do(func() {
			if !ok {
				r.fail(ctx, itemID, sourceID, services.Wrap(services.ErrFetchFailed, "reconcile", "download", "fetch did not complete", nil))
				return
			}
			r.mu.Lock()
			r.report.Fetched = append(r.report.Fetched, itemID)
			r.mu.Unlock()

			item, exists := r.collection.SongExists(itemID, sourceID)
			if !exists {
				item = r.collection.NewItem(itemID, sourceID)
			}
			if !r.runRules(ctx, item) {
				return
			}
			r.collection.Changes().Append("", item)
			r.ResolveChangeSet(ctx)
		})
	}
}

// ResolveChangeSet drains the change set in order, holding its lock for the
// whole pass. New items are copied from the cache; existing files are moved
// when their destination changed and always retagged. It returns the number
// of changes processed; the set is empty afterwards.
func (r *Reconciler) ResolveChangeSet(ctx context.Context) int {
	return r.collection.Changes().Drain(func(change library.Change) {
		r.apply(ctx, change)
	})
}

func (r *Reconciler) apply(ctx context.Context, change library.Change) {
	item := change.Item
	ctx = services.WithSourceID(services.WithItemID(ctx, item.ID), item.SourceID)
	dest, err := item.Destination()
	if err != nil {
		r.fail(ctx, item.ID, item.SourceID, err)
		return
	}
	dest = filepath.Clean(dest)
	key := item.OrganizationKey()
	if err := r.checkClaim(dest, key); err != nil {
		r.fail(ctx, item.ID, item.SourceID, err)
		return
	}

	if change.IsCreate() {
		cachePath := catalog.CachePath(r.cacheDir, item.ID, r.cacheExt)
		if err := r.files.Place(ctx, cachePath, dest, item.Tags()); err != nil {
			r.fail(ctx, item.ID, item.SourceID, err)
			return
		}
		r.takeClaim("", dest, key)
		item.Path = dest
		r.collection.AddExpected(item)
		r.mu.Lock()
		r.report.Created = append(r.report.Created, item.ID)
		r.mu.Unlock()
		return
	}

	moved, err := r.files.Relocate(ctx, change.Path, dest, item.Tags())
	if err != nil {
		r.fail(ctx, item.ID, item.SourceID, err)
		return
	}
	r.takeClaim(change.Path, dest, key)
	item.Path = dest
	r.collection.AddExpected(item)
	r.mu.Lock()
	if moved {
		r.report.Moved = append(r.report.Moved, item.ID)
	} else {
		r.report.Retagged = append(r.report.Retagged, item.ID)
	}
	r.mu.Unlock()
}

// checkClaim fails when dest is held by a file that belongs to another item.
// Changes are applied one at a time under the change set lock, so a passed
// check stays valid until takeClaim.
func (r *Reconciler) checkClaim(dest, key string) error {
	r.mu.Lock()
	holder, held := r.claims[dest]
	r.mu.Unlock()
	if !held || holder == key {
		return nil
	}
	if holder == "" {
		return services.Wrap(services.ErrValidation, "reconcile", "place",
			fmt.Sprintf("%s is occupied by an untracked file", dest), ErrDestinationInUse)
	}
	return services.Wrap(services.ErrValidation, "reconcile", "place",
		fmt.Sprintf("%s already belongs to %s", dest, holder), ErrDestinationInUse)
}

func (r *Reconciler) takeClaim(from, dest, key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if from != "" {
		from = filepath.Clean(from)
		if r.claims[from] == key {
			delete(r.claims, from)
		}
	}
	r.claims[dest] = key
}

// Report returns a copy of what the reconciler has done so far.
func (r *Reconciler) Report() Report {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.report.clone()
}

// runRules applies the rule chain to item and records a failure when it
// cannot produce a usable filename.
func (r *Reconciler) runRules(ctx context.Context, item *library.Item) bool {
	entry, ok := r.catalog.Lookup(item.ID)
	if !ok {
		entry = catalog.Entry{ID: item.ID}
	}
	if _, err := r.collection.RunRules(item, entry, false); err != nil {
		r.mu.Lock()
		r.excluded[item.OrganizationKey()] = struct{}{}
		r.mu.Unlock()
		r.fail(services.WithSourceID(services.WithItemID(ctx, item.ID), item.SourceID), item.ID, item.SourceID, err)
		return false
	}
	r.mu.Lock()
	delete(r.excluded, item.OrganizationKey())
	r.mu.Unlock()
	return true
}

func (r *Reconciler) isExcluded(item *library.Item) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.excluded[item.OrganizationKey()]
	return ok
}

func (r *Reconciler) fail(ctx context.Context, itemID, sourceID string, err error) {
	hint := "check the log for the failing operation"
	switch {
	case errors.Is(err, services.ErrMissingFilename):
		hint = "set a filename for this item or adjust the collection rules"
	case errors.Is(err, ErrDestinationInUse):
		hint = "give one of the items a distinct filename or folder with collection set"
	}
	logging.WarnWithContext(logging.WithContext(ctx, r.logger), "item skipped", "item_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, hint),
		logging.String(logging.FieldImpact, "item left unchanged this run"))
	r.mu.Lock()
	defer r.mu.Unlock()
	r.report.Failed = append(r.report.Failed, Failure{
		ItemID:   itemID,
		SourceID: sourceID,
		Outcome:  services.Classify(err),
		Err:      err,
	})
}
