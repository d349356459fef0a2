package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"tunesmith/internal/catalog"
	"tunesmith/internal/config"
	"tunesmith/internal/fetch"
	"tunesmith/internal/library"
	"tunesmith/internal/logging"
	"tunesmith/internal/notifications"
	"tunesmith/internal/organizer"
	"tunesmith/internal/preflight"
	"tunesmith/internal/queue"
	"tunesmith/internal/reconcile"
	"tunesmith/internal/rules"
	"tunesmith/internal/services"
	"tunesmith/internal/tagstore"
)

// Fetcher downloads items and lists remote sources.
type Fetcher interface {
	fetch.Downloader
	reconcile.Lister
}

// Runner executes passes over collection files.
type Runner struct {
	cfg      *config.Config
	logger   *slog.Logger
	fetcher  Fetcher
	tags     tagstore.Store
	registry *rules.Registry
	store    *queue.Store
	notifier notifications.Service
	runLog   *RunLog
	newID    func() string
}

// Option configures a Runner.
type Option func(*Runner)

// WithFetcher replaces the yt-dlp client.
func WithFetcher(f Fetcher) Option {
	return func(r *Runner) { r.fetcher = f }
}

// WithTagStore replaces the ID3 tag store.
func WithTagStore(s tagstore.Store) Option {
	return func(r *Runner) { r.tags = s }
}

// WithRegistry replaces the default rule registry.
func WithRegistry(reg *rules.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithStore records fetch jobs in the ledger and enables retry from it.
func WithStore(store *queue.Store) Option {
	return func(r *Runner) { r.store = store }
}

// WithNotifier replaces the ntfy notifier built from the config.
func WithNotifier(n notifications.Service) Option {
	return func(r *Runner) { r.notifier = n }
}

// New constructs a runner. Without WithFetcher it builds a yt-dlp client
// whose calls are spaced by the configured throttle.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "workflow"),
		runLog: NewRunLog(cfg),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.fetcher == nil {
		client, err := fetch.New(cfg.Fetch, fetch.WithGate(fetch.NewGate(cfg.Throttle(), fetch.RealClock())))
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "workflow", "fetch client", "", err)
		}
		r.fetcher = client
	}
	if r.tags == nil {
		r.tags = tagstore.NewID3Store()
	}
	if r.registry == nil {
		r.registry = rules.DefaultRegistry()
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r, nil
}

// SyncOptions tunes a single pass.
type SyncOptions struct {
	// Workers overrides fetch.concurrent_downloads when positive.
	Workers  int
	Progress fetch.ProgressFunc
}

// Result is the outcome of one pass over a collection.
type Result struct {
	Collection string
	Path       string
	RunID      string
	LogPath    string
	Report     reconcile.Report
	Jobs       []fetch.Job
	Duration   time.Duration

	// CollectionSaved reports whether the pass rewrote the collection file.
	CollectionSaved bool
}

// session is the state of one pass.
type session struct {
	runID   string
	path    string
	started time.Time
	lock    *flock.Flock
	catLock *flock.Flock
	logPath string
	logger  *slog.Logger
	catalog *catalog.Catalog
	coll    *library.Collection
	rec     *reconcile.Reconciler

	// sum is the checksum of the collection file as loaded and baseline its
	// encoding after initialization; finish compares against both.
	sum      library.Checksum
	baseline []byte
}

// Preflight checks the directories and programs a sync depends on.
func (r *Runner) Preflight(ctx context.Context) error {
	if err := r.cfg.EnsureDirectories(); err != nil {
		return err
	}
	results := preflight.RunAll(ctx, r.cfg)
	for _, res := range results {
		if res.Passed {
			r.logger.Debug("preflight check passed",
				logging.String("check", res.Name),
				logging.String("detail", res.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"))
			continue
		}
		r.logger.Error("preflight check failed",
			logging.String("check", res.Name),
			logging.String("detail", res.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported issue and rerun the command"))
	}
	return preflight.Failures(results)
}

// Sync lists every source of the collection, fetches what is missing, and
// files new, moved, and retagged items into the library.
func (r *Runner) Sync(ctx context.Context, collectionPath string, opts SyncOptions) (Result, error) {
	s, err := r.open(ctx, collectionPath, false)
	if err != nil {
		return Result{Path: collectionPath}, err
	}
	ctx = services.WithRunID(ctx, s.runID)
	defer r.close(s)

	s.rec.Prepare(services.WithStage(ctx, "scan"))
	requests, err := s.rec.GetDownloadSet(services.WithStage(ctx, "list"))
	if err != nil {
		logging.ErrorWithContext(logging.WithContext(ctx, s.logger), "sync aborted", "sync_aborted",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check network access and the fetch binary"),
			logging.String(logging.FieldImpact, "no items fetched for this collection"))
		return r.finish(ctx, s, nil, err)
	}

	jobs := r.fetchAll(services.WithStage(ctx, "fetch"), s, requests, opts)
	s.rec.ResolveChangeSet(services.WithStage(ctx, "organize"))
	return r.finish(ctx, s, jobs, nil)
}

// Retry resubmits items whose fetch failed. With no ids it takes every item
// whose latest ledger entry for this collection is failed.
func (r *Runner) Retry(ctx context.Context, collectionPath string, itemIDs []string, opts SyncOptions) (Result, error) {
	s, err := r.open(ctx, collectionPath, false)
	if err != nil {
		return Result{Path: collectionPath}, err
	}
	ctx = services.WithRunID(ctx, s.runID)
	defer r.close(s)

	s.rec.Prepare(ctx)
	requests, err := r.retryTargets(ctx, s, itemIDs)
	if err != nil {
		return r.finish(ctx, s, nil, err)
	}
	if len(requests) == 0 {
		s.logger.Info("nothing to retry")
	}
	jobs := r.fetchAll(ctx, s, requests, opts)
	s.rec.ResolveChangeSet(ctx)
	return r.finish(ctx, s, jobs, nil)
}

// Plan is a dry run: it scans and pairs the collection without listing
// sources, fetching, or touching any file.
func (r *Runner) Plan(ctx context.Context, collectionPath string) (Plan, error) {
	s, err := r.open(ctx, collectionPath, true)
	if err != nil {
		return Plan{Path: collectionPath}, err
	}
	pairing := s.rec.Prepare(ctx)
	plan := Plan{
		Collection:  s.coll.Name,
		Path:        collectionPath,
		Changes:     s.coll.Changes().Pending(),
		Suggestions: pairing.Suggest(suggestThreshold),
		Report:      s.rec.Report(),
	}
	failed := make(map[string]struct{}, len(plan.Report.Failed))
	for _, f := range plan.Report.Failed {
		failed[f.ItemID] = struct{}{}
	}
	for _, item := range pairing.Missing {
		if _, skip := failed[item.ID]; skip {
			continue
		}
		if s.catalog.IsDownloaded(item.ID) {
			plan.FromCache = append(plan.FromCache, item)
		} else {
			plan.ToFetch = append(plan.ToFetch, item)
		}
	}
	return plan, nil
}

func (r *Runner) open(ctx context.Context, collectionPath string, readOnly bool) (*session, error) {
	abs, err := filepath.Abs(collectionPath)
	if err != nil {
		return nil, fmt.Errorf("resolve collection path: %w", err)
	}
	s := &session{
		runID:   r.newID(),
		path:    abs,
		started: time.Now(),
		logger:  r.logger,
	}
	if !readOnly {
		if s.lock, err = r.lockCollection(abs); err != nil {
			return nil, err
		}
	}
	fail := func(err error) (*session, error) {
		r.close(s)
		return nil, err
	}

	declared, sum, err := library.LoadDeclaredChecksum(abs)
	if err != nil {
		return fail(err)
	}
	s.sum = sum
	if !readOnly {
		handler, path, err := r.runLog.Open(declared.Name, s.runID)
		if err != nil {
			r.logger.Warn("run log unavailable", logging.Error(err))
		} else if handler != nil {
			s.logPath = path
			s.logger = slog.New(logging.Tee(r.logger.Handler(), handler))
		}
	}
	s.logger = s.logger.With(
		logging.String(logging.FieldCollection, declared.Name),
		logging.String(logging.FieldRunID, s.runID))

	if !readOnly {
		if s.catLock, err = r.lockCatalog(ctx, s.logger); err != nil {
			return fail(err)
		}
	}
	s.catalog, err = catalog.Load(r.cfg.CatalogPath(), s.logger)
	if err != nil {
		return fail(err)
	}
	if !readOnly {
		summary, err := s.catalog.Reconcile(r.cfg.Paths.CacheDir, r.cfg.CacheExtension())
		if err != nil {
			return fail(err)
		}
		if summary.Changed() || summary.StrayDeleted > 0 {
			s.logger.Info("catalog reconciled with cache",
				logging.Int("dropped", summary.Dropped),
				logging.Int("marked_missing", summary.MarkedMissing),
				logging.Int("adopted", summary.Adopted),
				logging.Int("stray_deleted", summary.StrayDeleted))
		}
	}

	s.coll = library.New(abs, library.Options{
		Root:        r.cfg.Settings(),
		Registry:    r.registry,
		Tags:        r.tags,
		Logger:      s.logger,
		DeleteStray: r.cfg.Library.DeleteStrayFiles && !readOnly,
	})
	if err := s.coll.Initialize(declared); err != nil {
		return fail(services.Wrap(services.ErrConfiguration, "workflow", "initialize", s.coll.Name, err))
	}
	if s.baseline, err = library.EncodeDeclared(s.coll.Declared()); err != nil {
		return fail(err)
	}

	var lister reconcile.Lister
	if !readOnly {
		lister = r.fetcher
	}
	s.rec = reconcile.New(s.coll, s.catalog, organizer.New(r.tags, s.logger), lister, reconcile.Options{
		CacheDir:       r.cfg.Paths.CacheDir,
		CacheExtension: r.cfg.CacheExtension(),
		Logger:         s.logger,
	})
	logging.WithContext(services.WithRunID(ctx, s.runID), s.logger).Info("collection loaded",
		logging.Int("sources", len(s.coll.Sources())),
		logging.Int("declared", len(s.coll.Expected())),
		logging.Int("on_disk", len(s.coll.Actual())))
	return s, nil
}

// close releases the catalog lock before the collection lock.
func (r *Runner) close(s *session) {
	if s == nil {
		return
	}
	unlock(r.logger, s.catLock, "catalog")
	unlock(r.logger, s.lock, "collection")
	s.catLock, s.lock = nil, nil
}

func (r *Runner) fetchAll(ctx context.Context, s *session, requests []reconcile.Request, opts SyncOptions) []fetch.Job {
	if len(requests) == 0 {
		return nil
	}
	workers := opts.Workers
	if workers <= 0 {
		workers = r.cfg.Fetch.ConcurrentDownloads
	}
	pipeOpts := fetch.PipelineOptions{
		Workers:    workers,
		CacheDir:   r.cfg.Paths.CacheDir,
		RunID:      s.runID,
		Collection: s.path,
		Progress:   opts.Progress,
		Logger:     s.logger,
	}
	if r.store != nil {
		pipeOpts.Ledger = r.store
	}
	pipeline := fetch.NewPipeline(r.fetcher, s.catalog, pipeOpts)
	s.logger.Info("fetching items", logging.Int("count", len(requests)), logging.Int("workers", workers))
	for _, req := range requests {
		pipeline.Submit(ctx, req.ItemID, req.SourceID, s.rec.DownloadCallback(ctx, req.ItemID, req.SourceID))
	}
	return pipeline.Wait()
}

func (r *Runner) retryTargets(ctx context.Context, s *session, itemIDs []string) ([]reconcile.Request, error) {
	var failed []queue.Job
	if r.store != nil {
		var err error
		if failed, err = r.store.FailedItems(ctx, s.path); err != nil {
			return nil, fmt.Errorf("read failed jobs: %w", err)
		}
	}
	if len(itemIDs) == 0 {
		if r.store == nil {
			return nil, services.Wrap(services.ErrValidation, "workflow", "retry", "no job ledger and no item ids given", nil)
		}
		requests := make([]reconcile.Request, 0, len(failed))
		for _, job := range failed {
			requests = append(requests, reconcile.Request{ItemID: job.ItemID, SourceID: job.SourceID})
		}
		return requests, nil
	}

	requests := make([]reconcile.Request, 0, len(itemIDs))
	for _, id := range itemIDs {
		id = strings.TrimSpace(id)
		source, ok := r.sourceOf(s, failed, id)
		if !ok {
			return nil, services.Wrap(services.ErrValidation, "workflow", "retry", fmt.Sprintf("item %q is not part of this collection", id), nil)
		}
		requests = append(requests, reconcile.Request{ItemID: id, SourceID: source})
	}
	return requests, nil
}

func (r *Runner) sourceOf(s *session, failed []queue.Job, itemID string) (string, bool) {
	for _, item := range s.coll.Expected() {
		if item.ID == itemID {
			return item.SourceID, true
		}
	}
	for _, job := range failed {
		if job.ItemID == itemID {
			return job.SourceID, true
		}
	}
	return "", false
}

// finish persists the catalog and the collection file and builds the result.
// Persistence errors are joined with cause.
func (r *Runner) finish(ctx context.Context, s *session, jobs []fetch.Job, cause error) (Result, error) {
	errs := []error{cause}
	if err := s.catalog.Save(); err != nil {
		errs = append(errs, fmt.Errorf("save catalog: %w", err))
	}
	saved, err := r.saveCollection(s)
	if err != nil {
		errs = append(errs, fmt.Errorf("save collection: %w", err))
	}
	res := Result{
		Collection:      s.coll.Name,
		Path:            s.path,
		RunID:           s.runID,
		LogPath:         s.logPath,
		Report:          s.rec.Report(),
		Jobs:            jobs,
		Duration:        time.Since(s.started),
		CollectionSaved: saved,
	}
	r.notify(ctx, s.logger, res, cause)
	logging.WithContext(ctx, s.logger).Info("pass finished",
		logging.Int("fetched", len(res.Report.Fetched)),
		logging.Int("created", len(res.Report.Created)),
		logging.Int("moved", len(res.Report.Moved)),
		logging.Int("retagged", len(res.Report.Retagged)),
		logging.Int("failed", len(res.Report.Failed)),
		logging.Duration("duration", res.Duration))
	return res, errors.Join(errs...)
}

// saveCollection writes the collection file back when the pass changed it.
// A file edited on disk since it was loaded is left alone; the next pass
// picks the edit up and redoes whatever this one declared.
func (r *Runner) saveCollection(s *session) (bool, error) {
	declared := s.coll.Declared()
	data, err := library.EncodeDeclared(declared)
	if err != nil {
		return false, err
	}
	if bytes.Equal(data, s.baseline) {
		return false, nil
	}
	current, err := library.FileChecksum(s.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return false, err
	}
	if err == nil && current != s.sum {
		logging.WarnWithContext(s.logger, "collection file changed during the pass; not saving", "collection_conflict",
			logging.String(logging.FieldErrorHint, "run sync again to apply the edit"),
			logging.String(logging.FieldImpact, "items declared by this pass are redeclared next pass"))
		return false, nil
	}
	if err := library.SaveDeclared(s.path, declared); err != nil {
		return false, err
	}
	return true, nil
}

func (r *Runner) notify(ctx context.Context, logger *slog.Logger, res Result, cause error) {
	var err error
	if cause != nil {
		err = r.notifier.NotifySyncFailed(ctx, res.Collection, cause)
	} else {
		err = r.notifier.NotifySyncCompleted(ctx, notifications.Summary{
			Collection: res.Collection,
			Fetched:    len(res.Report.Fetched),
			Created:    len(res.Report.Created),
			Moved:      len(res.Report.Moved),
			Retagged:   len(res.Report.Retagged),
			Failed:     len(res.Report.Failed),
			Duration:   res.Duration,
		})
	}
	if err != nil {
		logging.WarnWithContext(logger, "notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
			logging.String(logging.FieldImpact, "sync result not announced"))
	}
}
