package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"tunesmith/internal/fetch"
)

// Status mirrors the fetch job lifecycle.
type Status = fetch.Status

// Job is a persisted fetch job.
type Job struct {
	ID         string
	RunID      string
	Collection string
	ItemID     string
	SourceID   string
	Status     Status
	Error      string
	Output     string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

const jobColumns = "id, run_id, collection, item_id, source_id, status, error, output, created_at, updated_at"

var _ fetch.Ledger = (*Store)(nil)

// Create inserts a job in its initial status.
func (s *Store) Create(ctx context.Context, job fetch.Job) error {
	if strings.TrimSpace(job.ID) == "" || strings.TrimSpace(job.ItemID) == "" {
		return errors.New("job id and item id are required")
	}
	status := job.Status
	if status == "" {
		status = fetch.StatusQueued
	}
	ts := s.timestamp()
	_, err := s.execWithRetry(ctx,
		`INSERT INTO fetch_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?, NULL, NULL, ?, ?)`,
		job.ID,
		nullableString(job.RunID),
		nullableString(job.Collection),
		job.ItemID,
		nullableString(job.SourceID),
		string(status),
		ts,
		ts,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Transition records a status change. Error text and output are kept only
// when non-empty so a later transition does not erase them.
func (s *Store) Transition(ctx context.Context, jobID string, status Status, errMsg, output string) error {
	res, err := s.execWithRetry(ctx,
		`UPDATE fetch_jobs
         SET status = ?, error = COALESCE(?, error), output = COALESCE(?, output), updated_at = ?
         WHERE id = ?`,
		string(status),
		nullableString(errMsg),
		nullableString(output),
		s.timestamp(),
		jobID,
	)
	if err != nil {
		return fmt.Errorf("update job: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("update job %s: %w", jobID, sql.ErrNoRows)
	}
	return nil
}

// Get returns a single job, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM fetch_jobs WHERE id = ?`, jobID)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// List returns jobs in insertion order, filtered to statuses when given.
func (s *Store) List(ctx context.Context, statuses ...Status) ([]Job, error) {
	query := `SELECT ` + jobColumns + ` FROM fetch_jobs`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, status := range statuses {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		query += ` WHERE status IN (` + strings.Join(placeholders, ",") + `)`
	}
	query += ` ORDER BY rowid`
	return s.query(ctx, query, args...)
}

// FailedItems returns, for collection, the latest job of every item whose
// most recent attempt failed.
func (s *Store) FailedItems(ctx context.Context, collection string) ([]Job, error) {
	return s.query(ctx,
		`SELECT `+jobColumns+` FROM fetch_jobs j
         WHERE j.collection = ? AND j.status = ?
           AND NOT EXISTS (
               SELECT 1 FROM fetch_jobs n
               WHERE n.collection = j.collection AND n.item_id = j.item_id AND n.rowid > j.rowid
           )
         ORDER BY j.rowid`,
		collection, string(fetch.StatusFailed),
	)
}

// Clear deletes every job and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM fetch_jobs`)
	if err != nil {
		return 0, fmt.Errorf("clear jobs: %w", err)
	}
	return res.RowsAffected()
}

// ClearTerminal deletes jobs that have finished, keeping anything in flight.
func (s *Store) ClearTerminal(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM fetch_jobs WHERE status IN (?, ?)`,
		string(fetch.StatusSucceeded), string(fetch.StatusFailed))
	if err != nil {
		return 0, fmt.Errorf("clear finished jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) query(ctx context.Context, query string, args ...any) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query jobs: %w", err)
	}
	defer rows.Close()

	var jobs []Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

func scanJob(scanner interface{ Scan(dest ...any) error }) (*Job, error) {
	var (
		job        Job
		runID      sql.NullString
		collection sql.NullString
		sourceID   sql.NullString
		status     string
		errMsg     sql.NullString
		output     sql.NullString
		createdRaw string
		updatedRaw string
	)
	if err := scanner.Scan(&job.ID, &runID, &collection, &job.ItemID, &sourceID, &status, &errMsg, &output, &createdRaw, &updatedRaw); err != nil {
		return nil, err
	}
	job.RunID = runID.String
	job.Collection = collection.String
	job.SourceID = sourceID.String
	job.Status = Status(status)
	job.Error = errMsg.String
	job.Output = output.String
	job.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdRaw)
	job.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedRaw)
	return &job, nil
}
