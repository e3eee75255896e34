package models

import "time"

// IndexingStatus is the lifecycle state of the embedding maintenance job.
type IndexingStatus string

const (
	IndexingIdle      IndexingStatus = "idle"
	IndexingRunning   IndexingStatus = "running"
	IndexingCompleted IndexingStatus = "completed"
	IndexingFailed    IndexingStatus = "failed"
)

// IndexingProgress is a point-in-time snapshot of the (single) in-flight
// embedding maintenance run. Reset at the start of each run and finalized at
// completion or fatal error.
type IndexingProgress struct {
	Status      IndexingStatus `json:"status"`
	Kind        *EntityKind    `json:"kind,omitempty"` // nil when the run covers all kinds
	Total       int            `json:"total"`
	Processed   int            `json:"processed"`
	Errors      int            `json:"errors"`
	Model       string         `json:"model,omitempty"`
	Message     string         `json:"message,omitempty"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// PercentComplete returns processed/total as 0..100, or 0 when no candidates.
func (p IndexingProgress) PercentComplete() float64 {
	if p.Total <= 0 {
		return 0
	}

	return 100 * float64(p.Processed) / float64(p.Total)
}
