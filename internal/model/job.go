package model

import "time"

// SyncJob statuses. PENDING, RUNNING and PAUSED are non-terminal; at most one
// job may be in a non-terminal status at a time.
const (
	JobPending   = "PENDING"
	JobRunning   = "RUNNING"
	JobPaused    = "PAUSED"
	JobCompleted = "COMPLETED"
	JobStopped   = "STOPPED"
)

// SyncJob is the persisted orchestration state for one sync run. The database
// row is the single source of truth for pause/stop signaling, so a web
// request can suspend a job while a worker is mid-batch in another process.
type SyncJob struct {
	ID             string          `json:"id"`
	Status         string          `json:"status"`
	SessionCode    string          `json:"session_code"`
	SessionName    string          `json:"session_name"`
	BillTypes      []string        `json:"bill_types"`
	Progress       map[string]int  `json:"progress_by_type"`
	Completed      map[string]bool `json:"completed_types"`
	TotalProcessed int             `json:"total_processed"`
	TotalCreated   int             `json:"total_created"`
	TotalUpdated   int             `json:"total_updated"`
	TotalErrors    int             `json:"total_errors"`
	StartedAt      *time.Time      `json:"started_at,omitempty"`
	PausedAt       *time.Time      `json:"paused_at,omitempty"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	LastActivityAt *time.Time      `json:"last_activity_at,omitempty"`
	LastError      *string         `json:"last_error,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// Terminal reports whether the job can no longer advance.
func (j *SyncJob) Terminal() bool {
	return j.Status == JobCompleted || j.Status == JobStopped
}

// AllTypesComplete reports whether every configured bill type has been
// exhausted.
func (j *SyncJob) AllTypesComplete() bool {
	for _, t := range j.BillTypes {
		if !j.Completed[t] {
			return false
		}
	}
	return true
}

// NextType returns the first configured bill type that is not yet complete,
// or "" when all are done.
func (j *SyncJob) NextType() string {
	for _, t := range j.BillTypes {
		if !j.Completed[t] {
			return t
		}
	}
	return ""
}
