package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jhunt/legisync/internal/model"
	"github.com/lib/pq"
)

// ErrJobActive means a non-terminal job already exists; only one may run at
// a time.
var ErrJobActive = errors.New("another sync job is already active")

var nonTerminalStatuses = []string{model.JobPending, model.JobRunning, model.JobPaused}

// JobStore handles database operations for sync jobs. The persisted row is
// the single source of truth for pause/stop signaling across processes.
type JobStore struct {
	db *sql.DB
}

// NewJobStore creates a new JobStore.
func NewJobStore(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new job, failing with ErrJobActive when any non-terminal
// job exists. The guard and the insert are one statement, so two concurrent
// creates cannot both succeed.
func (s *JobStore) Create(ctx context.Context, job *model.SyncJob) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	completed, err := json.Marshal(job.Completed)
	if err != nil {
		return fmt.Errorf("failed to encode completed types: %w", err)
	}

	query := `
		INSERT INTO sync_jobs (id, status, session_code, session_name, bill_types,
		                       progress_by_type, completed_types)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE NOT EXISTS (
			SELECT 1 FROM sync_jobs WHERE status = ANY($8)
		)
	`

	res, err := s.db.ExecContext(ctx, query,
		job.ID,
		job.Status,
		job.SessionCode,
		job.SessionName,
		pq.Array(job.BillTypes),
		progress,
		completed,
		pq.Array(nonTerminalStatuses),
	)
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to create sync job: %w", err)
	}
	if rows == 0 {
		return ErrJobActive
	}
	return nil
}

// Get retrieves one job by id; nil when absent.
func (s *JobStore) Get(ctx context.Context, id string) (*model.SyncJob, error) {
	return s.getWhere(ctx, `id = $1`, id)
}

// GetActive retrieves the single non-terminal job, if any.
func (s *JobStore) GetActive(ctx context.Context) (*model.SyncJob, error) {
	return s.getWhere(ctx, `status = ANY($1)`, pq.Array(nonTerminalStatuses))
}

func (s *JobStore) getWhere(ctx context.Context, where string, arg interface{}) (*model.SyncJob, error) {
	query := `
		SELECT id, status, session_code, session_name, bill_types,
		       progress_by_type, completed_types,
		       total_processed, total_created, total_updated, total_errors,
		       started_at, paused_at, completed_at, last_activity_at,
		       last_error, created_at
		FROM sync_jobs
		WHERE ` + where + `
		ORDER BY created_at DESC
		LIMIT 1
	`

	var j model.SyncJob
	var progress, completed []byte
	var startedAt, pausedAt, completedAt, lastActivityAt sql.NullTime
	var lastError sql.NullString

	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&j.ID,
		&j.Status,
		&j.SessionCode,
		&j.SessionName,
		pq.Array(&j.BillTypes),
		&progress,
		&completed,
		&j.TotalProcessed,
		&j.TotalCreated,
		&j.TotalUpdated,
		&j.TotalErrors,
		&startedAt,
		&pausedAt,
		&completedAt,
		&lastActivityAt,
		&lastError,
		&j.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync job: %w", err)
	}

	if err := json.Unmarshal(progress, &j.Progress); err != nil {
		return nil, fmt.Errorf("failed to decode progress: %w", err)
	}
	if err := json.Unmarshal(completed, &j.Completed); err != nil {
		return nil, fmt.Errorf("failed to decode completed types: %w", err)
	}

	j.StartedAt = timePtr(startedAt)
	j.PausedAt = timePtr(pausedAt)
	j.CompletedAt = timePtr(completedAt)
	j.LastActivityAt = timePtr(lastActivityAt)
	j.LastError = stringPtr(lastError)
	return &j, nil
}

// Transition moves a job to a new status if its current status is one of
// the allowed sources. Returns false when the guard did not match, which
// callers surface as a rejected operation.
func (s *JobStore) Transition(ctx context.Context, id, to string, from ...string) (bool, error) {
	query := `
		UPDATE sync_jobs SET
			status = $2,
			started_at = CASE WHEN $2 = 'RUNNING' AND started_at IS NULL THEN now() ELSE started_at END,
			paused_at = CASE WHEN $2 = 'PAUSED' THEN now() ELSE paused_at END,
			completed_at = CASE WHEN $2 IN ('COMPLETED', 'STOPPED') THEN now() ELSE completed_at END,
			last_activity_at = now()
		WHERE id = $1 AND status = ANY($3)
	`

	res, err := s.db.ExecContext(ctx, query, id, to, pq.Array(from))
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s to %s: %w", id, to, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to transition job %s to %s: %w", id, to, err)
	}
	return rows > 0, nil
}

// SaveProgress persists counters, watermarks and completed-type flags after
// a batch. The status write is guarded: it only takes effect while the row
// still says RUNNING, so a concurrent pause or stop is never clobbered.
func (s *JobStore) SaveProgress(ctx context.Context, job *model.SyncJob, status string) error {
	progress, err := json.Marshal(job.Progress)
	if err != nil {
		return fmt.Errorf("failed to encode progress: %w", err)
	}
	completed, err := json.Marshal(job.Completed)
	if err != nil {
		return fmt.Errorf("failed to encode completed types: %w", err)
	}

	query := `
		UPDATE sync_jobs SET
			progress_by_type = $2,
			completed_types  = $3,
			total_processed  = $4,
			total_created    = $5,
			total_updated    = $6,
			total_errors     = $7,
			last_error       = $8,
			status = CASE WHEN status = 'RUNNING' THEN $9 ELSE status END,
			completed_at = CASE WHEN status = 'RUNNING' AND $9 = 'COMPLETED' THEN now() ELSE completed_at END,
			last_activity_at = now()
		WHERE id = $1
	`

	_, err = s.db.ExecContext(ctx, query,
		job.ID,
		progress,
		completed,
		job.TotalProcessed,
		job.TotalCreated,
		job.TotalUpdated,
		job.TotalErrors,
		nullString(job.LastError),
		status,
	)
	if err != nil {
		return fmt.Errorf("failed to save progress for job %s: %w", job.ID, err)
	}
	return nil
}

// SetLastError records a job-level error message.
func (s *JobStore) SetLastError(ctx context.Context, id, message string) error {
	query := `UPDATE sync_jobs SET last_error = $2, last_activity_at = now() WHERE id = $1`
	if _, err := s.db.ExecContext(ctx, query, id, message); err != nil {
		return fmt.Errorf("failed to record error for job %s: %w", id, err)
	}
	return nil
}
