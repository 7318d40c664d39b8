// Package models holds the records persisted in the run history.
package models

import "time"

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// Terminal reports whether no further updates are expected.
func (s RunStatus) Terminal() bool {
	return s == RunStatusCompleted || s == RunStatusFailed
}

// Run records one extraction over one page.
type Run struct {
	ID          string    `json:"id"`
	URL         string    `json:"url"`
	Instruction string    `json:"instruction"`
	Status      RunStatus `json:"status"`
	Engine      string    `json:"engine,omitempty"`

	ChunkCount int `json:"chunk_count"`
	CacheHits  int `json:"cache_hits"`
	APICalls   int `json:"api_calls"`
	Sections   int `json:"sections"`
	Failures   int `json:"failures"`
	// StoppedAt is the 1-based section where quota exhaustion ended the
	// run, or 0.
	StoppedAt int `json:"stopped_at"`

	ResultText     string        `json:"result_text,omitempty"`
	ExportLocation string        `json:"export_location,omitempty"`
	Error          string        `json:"error,omitempty"`
	Elapsed        time.Duration `json:"elapsed"`

	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
