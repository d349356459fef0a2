package fetch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"tunesmith/internal/catalog"
	"tunesmith/internal/logging"
	"tunesmith/internal/services"
)

// Status is a fetch job's lifecycle state.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusThrottled Status = "throttled"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions follow.
func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

// Job is one submitted download.
type Job struct {
	ID         string
	RunID      string
	Collection string
	ItemID     string
	SourceID   string
	Status     Status
	Err        error
	Result     Result
	Started    time.Time
	Finished   time.Time
}

// Ledger persists job transitions. Implementations must be safe for
// concurrent use.
type Ledger interface {
	Create(ctx context.Context, job Job) error
	Transition(ctx context.Context, jobID string, status Status, errMsg, output string) error
}

// Downloader performs a single download.
type Downloader interface {
	Download(ctx context.Context, req Request) (Result, error)
}

// Done is called once per job after the catalog has been updated.
type Done func(itemID string, ok bool)

// PipelineOptions configures a pipeline.
type PipelineOptions struct {
	Workers    int
	CacheDir   string
	RunID      string
	Collection string
	Ledger     Ledger
	Progress   ProgressFunc
	Logger     *slog.Logger
}

// Pipeline runs downloads on a bounded worker pool.
type Pipeline struct {
	dl      Downloader
	catalog *catalog.Catalog
	opts    PipelineOptions
	logger  *slog.Logger
	sampler *logging.ProgressSampler
	group   errgroup.Group

	mu   sync.Mutex
	jobs []*Job
}

// NewPipeline constructs a pipeline writing download results into cat.
func NewPipeline(dl Downloader, cat *catalog.Catalog, opts PipelineOptions) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		dl:      dl,
		catalog: cat,
		opts:    opts,
		logger:  logging.NewComponentLogger(logger, "fetch"),
		sampler: logging.NewProgressSampler(25),
	}
	p.group.SetLimit(opts.Workers)
	return p
}

// Submit queues a download. It blocks while every worker is busy. Cancelling
// ctx fails jobs that have not started; running downloads are left to finish.
func (p *Pipeline) Submit(ctx context.Context, itemID, sourceID string, done Done) *Job {
	job := &Job{
		ID:         uuid.NewString(),
		RunID:      p.opts.RunID,
		Collection: p.opts.Collection,
		ItemID:     itemID,
		SourceID:   sourceID,
		Status:     StatusQueued,
	}
	p.mu.Lock()
	p.jobs = append(p.jobs, job)
	p.mu.Unlock()

	jobCtx := services.WithSourceID(services.WithItemID(ctx, itemID), sourceID)
	if p.opts.Ledger != nil {
		if err := p.opts.Ledger.Create(context.WithoutCancel(jobCtx), *job); err != nil {
			logging.WithContext(jobCtx, p.logger).Warn("failed to record job", logging.Error(err))
		}
	}
	p.group.Go(func() error {
		p.run(jobCtx, job, done)
		return nil
	})
	return job
}

// Wait blocks until every submitted job is terminal and returns them in
// submission order.
func (p *Pipeline) Wait() []Job {
	_ = p.group.Wait()
	return p.Jobs()
}

// Jobs returns a snapshot of all submitted jobs.
func (p *Pipeline) Jobs() []Job {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Job, len(p.jobs))
	for i, job := range p.jobs {
		out[i] = *job
	}
	return out
}

func (p *Pipeline) run(ctx context.Context, job *Job, done Done) {
	logger := logging.WithContext(ctx, p.logger)
	if err := ctx.Err(); err != nil {
		p.finish(ctx, logger, job, Result{}, fmt.Errorf("not started: %w", err), done)
		return
	}

	p.transition(ctx, logger, job, StatusThrottled, "", "")
	result, err := p.dl.Download(ctx, Request{
		ItemID:   job.ItemID,
		OutDir:   p.opts.CacheDir,
		Progress: p.progress(logger),
		OnStart: func() {
			p.transition(ctx, logger, job, StatusRunning, "", "")
		},
	})
	p.finish(ctx, logger, job, result, err, done)
}

// progress forwards to the configured callback and logs coarse milestones.
func (p *Pipeline) progress(logger *slog.Logger) ProgressFunc {
	return func(itemID string, percent float64, rate string) {
		if p.sampler.ShouldLog(itemID, percent) {
			logger.Debug("download progress", logging.Float64("percent", percent), logging.String("rate", rate))
		}
		if p.opts.Progress != nil {
			p.opts.Progress(itemID, percent, rate)
		}
	}
}

func (p *Pipeline) finish(ctx context.Context, logger *slog.Logger, job *Job, result Result, err error, done Done) {
	p.sampler.Forget(job.ItemID)
	ok := err == nil
	if ok {
		if result.Metadata != nil {
			if _, metaErr := p.catalog.AddFromMetadata(*result.Metadata); metaErr != nil {
				logger.Warn("failed to merge downloaded metadata", logging.Error(metaErr))
			}
		}
		p.catalog.SetDownloaded(job.ItemID, true)
	}

	p.mu.Lock()
	job.Result = result
	job.Err = err
	job.Finished = time.Now()
	p.mu.Unlock()

	if ok {
		p.transition(ctx, logger, job, StatusSucceeded, "", "")
		logger.Info("download completed", logging.String("cache_file", result.Path))
	} else {
		p.transition(ctx, logger, job, StatusFailed, err.Error(), result.Output)
		logging.WarnWithContext(logger, "download failed", "fetch_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "run retry for this collection once the cause is fixed"),
			logging.String(logging.FieldImpact, "item not added to the library this run"))
	}
	if done != nil {
		done(job.ItemID, ok)
	}
}

func (p *Pipeline) transition(ctx context.Context, logger *slog.Logger, job *Job, status Status, errMsg, output string) {
	p.mu.Lock()
	job.Status = status
	if status == StatusRunning {
		job.Started = time.Now()
	}
	p.mu.Unlock()
	logger.Debug("fetch job transition", logging.String("job_id", job.ID), logging.String("status", string(status)))
	if p.opts.Ledger == nil {
		return
	}
	if err := p.opts.Ledger.Transition(context.WithoutCancel(ctx), job.ID, status, errMsg, output); err != nil {
		logger.Warn("failed to record job transition", logging.String("job_id", job.ID), logging.Error(err))
	}
}
