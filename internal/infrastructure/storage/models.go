package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Run kinds
const (
	RunKindBalance = "balance"
	RunKindFees    = "fees"
)

// Run statuses
const (
	RunStatusRunning             = "running"
	RunStatusCompleted           = "completed"
	RunStatusCompletedWithErrors = "completed_with_errors"
	RunStatusFailed              = "failed"
)

// Run is one batch of invoices processed together.
type Run struct {
	ID           int64      `json:"id"`
	Kind         string     `json:"kind"`
	SessionID    string     `json:"session_id"`
	DryRun       bool       `json:"dry_run"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	RunStats
}

// RunStats counts what happened to a run's invoices.
type RunStats struct {
	Found    int `json:"found"`
	Balanced int `json:"balanced"`
	Skipped  int `json:"skipped"`
	Errored  int `json:"errored"`
}

// Adjustment records the outcome for one invoice of a run.
type Adjustment struct {
	ID         int64        `json:"id"`
	RunID      int64        `json:"run_id"`
	Invoice    string       `json:"invoice"`
	Status     string       `json:"status"`
	SkipReason string       `json:"skip_reason,omitempty"`
	BaseTotal  float64      `json:"base_total"`
	Lines      []LineChange `json:"lines,omitempty"`
	Error      string       `json:"error,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// LineChange is one line whose base amount moved.
type LineChange struct {
	Index    int     `json:"index"`
	ItemCode string  `json:"item_code"`
	Before   float64 `json:"before"`
	After    float64 `json:"after"`
	BaseRate float64 `json:"base_rate"`
}
