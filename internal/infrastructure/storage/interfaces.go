package storage

// Repository defines the complete storage interface.
// This interface allows swapping implementations (SQLite, PostgreSQL, etc.)
// and makes testing with mocks straightforward.
type Repository interface {
	RunRepository
	AdjustmentRepository
	Close() error
}

// RunRepository tracks balance runs
type RunRepository interface {
	// StartRun records the start of a run and returns the run ID
	StartRun(kind, sessionID string, dryRun bool) (int64, error)

	// CompleteRun records the counts of a finished run
	CompleteRun(runID int64, stats RunStats) error

	// FailRun marks a run as failed with the given message
	FailRun(runID int64, message string) error

	// GetRun retrieves a run by ID, or ErrNotFound
	GetRun(runID int64) (*Run, error)

	// ListRuns returns the most recent runs first
	ListRuns(limit int) ([]Run, error)
}

// AdjustmentRepository records the line amounts a run changed
type AdjustmentRepository interface {
	// SaveAdjustment stores one invoice's line changes under a run
	SaveAdjustment(adj *Adjustment) error

	// ListAdjustments returns a run's adjustments in the order they were saved
	ListAdjustments(runID int64) ([]Adjustment, error)
}
