package sync

import "time"

// EventType tags the variants of the progress event stream.
type EventType string

const (
	EventPhase    EventType = "phase"
	EventProgress EventType = "progress"
	EventBill     EventType = "bill"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventLog      EventType = "log"
)

// Outcome is the per-bill result recorded by the sync loop.
type Outcome string

const (
	OutcomeCreated Outcome = "created"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeError   Outcome = "error"
)

// Event is one entry on the progress stream. Type selects which fields are
// meaningful; consumers render it however they like, the loop only writes it
// at well-defined points.
type Event struct {
	Type    EventType `json:"type"`
	Message string    `json:"message,omitempty"`

	// progress
	BillType string  `json:"bill_type,omitempty"`
	Current  int     `json:"current,omitempty"`
	Total    int     `json:"total,omitempty"`
	Percent  float64 `json:"percent,omitempty"`

	// bill
	BillID  string  `json:"bill_id,omitempty"`
	Outcome Outcome `json:"outcome,omitempty"`

	// complete
	Success  bool          `json:"success,omitempty"`
	Duration time.Duration `json:"duration,omitempty"`
	Summary  *Summary      `json:"summary,omitempty"`

	// error / log
	Detail string `json:"detail,omitempty"`
	Level  string `json:"level,omitempty"`
}

// Summary carries the final counters of a run.
type Summary struct {
	Processed int `json:"processed"`
	Created   int `json:"created"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
}
