package storage

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// MockRepository is an in-memory implementation of Repository for testing.
// It stores all data in maps and slices, making tests fast and isolated.
type MockRepository struct {
	mu          sync.Mutex
	runs        map[int64]*Run
	adjustments []Adjustment
	nextRunID   int64
	nextAdjID   int64

	// Hooks for test assertions
	StartRunCalled       bool
	CompleteRunCalled    bool
	FailRunCalled        bool
	SaveAdjustmentCalled bool
	LastAdjustment       *Adjustment

	// Error injection for testing error paths
	StartRunErr       error
	CompleteRunErr    error
	FailRunErr        error
	GetRunErr         error
	ListRunsErr       error
	SaveAdjustmentErr error
}

// NewMockRepository creates a new mock repository for testing
func NewMockRepository() *MockRepository {
	return &MockRepository{
		runs:      make(map[int64]*Run),
		nextRunID: 1,
		nextAdjID: 1,
	}
}

// Compile-time check that MockRepository implements Repository
var _ Repository = (*MockRepository)(nil)

// Close does nothing for mock
func (m *MockRepository) Close() error {
	return nil
}

// StartRun creates a running run
func (m *MockRepository) StartRun(kind, sessionID string, dryRun bool) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.StartRunCalled = true
	if m.StartRunErr != nil {
		return 0, m.StartRunErr
	}

	id := m.nextRunID
	m.nextRunID++
	m.runs[id] = &Run{
		ID:        id,
		Kind:      kind,
		SessionID: sessionID,
		DryRun:    dryRun,
		Status:    RunStatusRunning,
		StartedAt: time.Now(),
	}
	return id, nil
}

// CompleteRun stores the run's counts
func (m *MockRepository) CompleteRun(runID int64, stats RunStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.CompleteRunCalled = true
	if m.CompleteRunErr != nil {
		return m.CompleteRunErr
	}

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	now := time.Now()
	run.CompletedAt = &now
	run.RunStats = stats
	run.Status = RunStatusCompleted
	if stats.Errored > 0 {
		run.Status = RunStatusCompletedWithErrors
	}
	return nil
}

// FailRun marks the run failed
func (m *MockRepository) FailRun(runID int64, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.FailRunCalled = true
	if m.FailRunErr != nil {
		return m.FailRunErr
	}

	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	now := time.Now()
	run.CompletedAt = &now
	run.Status = RunStatusFailed
	run.ErrorMessage = message
	return nil
}

// GetRun returns a copy of the run
func (m *MockRepository) GetRun(runID int64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.GetRunErr != nil {
		return nil, m.GetRunErr
	}
	run, ok := m.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run %d: %w", runID, ErrNotFound)
	}
	copied := *run
	return &copied, nil
}

// ListRuns returns runs newest first
func (m *MockRepository) ListRuns(limit int) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ListRunsErr != nil {
		return nil, m.ListRunsErr
	}
	if limit <= 0 {
		limit = 50
	}

	runs := make([]Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, *run)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].ID > runs[j].ID })
	if len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// SaveAdjustment appends an adjustment and sets its ID
func (m *MockRepository) SaveAdjustment(adj *Adjustment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.SaveAdjustmentCalled = true
	m.LastAdjustment = adj
	if m.SaveAdjustmentErr != nil {
		return m.SaveAdjustmentErr
	}
	if _, ok := m.runs[adj.RunID]; !ok {
		return fmt.Errorf("run %d: %w", adj.RunID, ErrNotFound)
	}

	adj.ID = m.nextAdjID
	m.nextAdjID++
	if adj.CreatedAt.IsZero() {
		adj.CreatedAt = time.Now()
	}
	m.adjustments = append(m.adjustments, *adj)
	return nil
}

// ListAdjustments returns the run's adjustments in insertion order
func (m *MockRepository) ListAdjustments(runID int64) ([]Adjustment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Adjustment, 0)
	for _, adj := range m.adjustments {
		if adj.RunID == runID {
			out = append(out, adj)
		}
	}
	return out, nil
}
