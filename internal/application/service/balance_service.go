package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/eshaffer321/ledger-balancer/internal/adapters/rpc"
	"github.com/eshaffer321/ledger-balancer/internal/domain/invoice"
	"github.com/eshaffer321/ledger-balancer/internal/infrastructure/storage"
	"github.com/eshaffer321/ledger-balancer/internal/observability"
	"github.com/eshaffer321/ledger-balancer/internal/realtime"
	"github.com/eshaffer321/ledger-balancer/internal/session"
)

// JobStatus represents the current state of a balance job.
type JobStatus string

const (
	StatusPending   JobStatus = "pending"
	StatusRunning   JobStatus = "running"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusCancelled JobStatus = "cancelled"
)

// Per-invoice statuses recorded with each adjustment.
const (
	InvoiceBalanced = "balanced"
	InvoiceSkipped  = "skipped"
	InvoiceError    = "error"
)

// Job staleness thresholds
const (
	// DefaultJobStaleThreshold is how long a job can go without progress
	// before it is assumed to be hung.
	DefaultJobStaleThreshold = 10 * time.Minute

	// DefaultJobMaxDuration is the maximum time a job can run before it is
	// forcefully marked as failed.
	DefaultJobMaxDuration = time.Hour
)

var (
	ErrNoInvoices  = errors.New("no invoices to balance")
	ErrSessionBusy = errors.New("a balance job is already running for this session")
	ErrJobNotFound = errors.New("job not found")
	ErrJobFinished = errors.New("job cannot be cancelled")
)

// BalanceRequest holds the invoices for one job.
type BalanceRequest struct {
	Invoices []invoice.SalesInvoice
	DryRun   bool
}

// JobProgress holds live progress information.
type JobProgress struct {
	Phase      string    `json:"phase"` // "pending", "balancing", "completed", "failed", "cancelled"
	Total      int       `json:"total"`
	Processed  int       `json:"processed"`
	Balanced   int       `json:"balanced"`
	Skipped    int       `json:"skipped"`
	Errored    int       `json:"errored"`
	LastUpdate time.Time `json:"last_update"`
}

// InvoiceResult is what a job did with one invoice.
type InvoiceResult struct {
	Invoice string                `json:"invoice"`
	Status  string                `json:"status"`
	Outcome *invoice.Outcome      `json:"outcome,omitempty"`
	Balance *invoice.SalesInvoice `json:"balanced_invoice,omitempty"`
	Error   string                `json:"error,omitempty"`
}

// BalanceJob is a running or finished job. Values returned by the service
// are snapshots and safe to read without locking.
type BalanceJob struct {
	ID          string
	Session     session.Session
	Status      JobStatus
	DryRun      bool
	RunID       int64
	StartedAt   time.Time
	CompletedAt *time.Time
	Progress    JobProgress
	Results     []InvoiceResult
	Error       error

	invoices   []invoice.SalesInvoice
	cancelFunc context.CancelFunc
}

// Options configures the balance service.
type Options struct {
	Precision         int
	MarketplacePrefix string
}

// BalanceService runs balance jobs.
type BalanceService struct {
	storage   storage.Repository
	publisher realtime.Publisher
	gateway   rpc.Gateway
	metrics   *observability.Metrics
	logger    *slog.Logger
	opts      Options

	// Job management
	jobs      map[string]*BalanceJob
	active    map[string]string // session ID -> job ID
	jobsMutex sync.RWMutex
	wg        sync.WaitGroup
}

// NewBalanceService creates a service. gateway may be nil, in which case
// balanced invoices are only reported, never saved back.
func NewBalanceService(
	store storage.Repository,
	publisher realtime.Publisher,
	gateway rpc.Gateway,
	metrics *observability.Metrics,
	logger *slog.Logger,
	opts Options,
) *BalanceService {
	if logger == nil {
		logger = slog.Default()
	}
	return &BalanceService{
		storage:   store,
		publisher: publisher,
		gateway:   gateway,
		metrics:   metrics,
		logger:    logger,
		opts:      opts,
		jobs:      make(map[string]*BalanceJob),
		active:    make(map[string]string),
	}
}

// Start starts a new balance job for sess in the background and returns
// its ID. Progress events are published on the session's tag.
//
// The passed context is NOT used as the parent for the job, so it outlives
// the HTTP request that started it. Use Cancel to stop a job.
func (s *BalanceService) Start(_ context.Context, sess session.Session, req BalanceRequest) (string, error) {
	if sess.ID == "" {
		return "", session.ErrMissingID
	}
	if len(req.Invoices) == 0 {
		return "", ErrNoInvoices
	}

	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	if jobID, busy := s.active[sess.ID]; busy {
		return "", fmt.Errorf("%w: job %s", ErrSessionBusy, jobID)
	}

	runID, err := s.storage.StartRun(storage.RunKindBalance, sess.ID, req.DryRun)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}

	jobCtx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	job := &BalanceJob{
		ID:         uuid.NewString(),
		Session:    sess,
		Status:     StatusPending,
		DryRun:     req.DryRun,
		RunID:      runID,
		StartedAt:  now,
		Progress:   JobProgress{Phase: "pending", Total: len(req.Invoices), LastUpdate: now},
		invoices:   copyInvoices(req.Invoices),
		cancelFunc: cancel,
	}

	s.jobs[job.ID] = job
	s.active[sess.ID] = job.ID

	s.wg.Add(1)
	go s.runJob(jobCtx, job)

	s.logger.Info("balance job started",
		"job_id", job.ID,
		"run_id", runID,
		"session_id", sess.ID,
		"invoices", len(req.Invoices),
		"dry_run", req.DryRun,
	)

	return job.ID, nil
}

// Get returns a snapshot of a job.
func (s *BalanceService) Get(jobID string) (*BalanceJob, error) {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return nil, fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	return job.snapshot(), nil
}

// List returns snapshots of every job, newest first.
func (s *BalanceService) List() []*BalanceJob {
	s.jobsMutex.RLock()
	defer s.jobsMutex.RUnlock()

	jobs := make([]*BalanceJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, job.snapshot())
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].StartedAt.After(jobs[j].StartedAt) })
	return jobs
}

// Cancel stops a pending or running job. The job finishes the invoice it
// is working on and then closes its event series.
func (s *BalanceService) Cancel(jobID string) error {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	job, exists := s.jobs[jobID]
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}
	if job.Status != StatusPending && job.Status != StatusRunning {
		return fmt.Errorf("%w: status=%s", ErrJobFinished, job.Status)
	}

	job.cancelFunc()
	job.Status = StatusCancelled
	now := time.Now()
	job.CompletedAt = &now
	job.Progress.Phase = "cancelled"
	job.Progress.LastUpdate = now

	s.logger.Info("balance job cancelled", "job_id", jobID)
	return nil
}

// CancelAll cancels every pending or running job and returns how many
// were cancelled.
func (s *BalanceService) CancelAll() int {
	s.jobsMutex.RLock()
	ids := make([]string, 0, len(s.active))
	for _, id := range s.active {
		ids = append(ids, id)
	}
	s.jobsMutex.RUnlock()

	cancelled := 0
	for _, id := range ids {
		if err := s.Cancel(id); err == nil {
			cancelled++
		}
	}
	return cancelled
}

// Wait blocks until every started job has finished.
func (s *BalanceService) Wait() {
	s.wg.Wait()
}

// runJob balances the job's invoices one after another. Each invoice's
// progress event is published before the next invoice is started, and a
// final done event closes the series.
func (s *BalanceService) runJob(ctx context.Context, job *BalanceJob) {
	defer s.wg.Done()
	defer s.release(job)

	s.update(job, func(j *BalanceJob) {
		if j.Status == StatusPending {
			j.Status = StatusRunning
		}
		j.Progress.Phase = "balancing"
	})

	var stats storage.RunStats
	stats.Found = len(job.invoices)

	for i := range job.invoices {
		if ctx.Err() != nil {
			s.finishCancelled(job, stats)
			return
		}

		result := s.balanceOne(ctx, job, &job.invoices[i])
		switch result.Status {
		case InvoiceBalanced:
			stats.Balanced++
		case InvoiceSkipped:
			stats.Skipped++
		default:
			stats.Errored++
		}

		s.update(job, func(j *BalanceJob) {
			j.Results = append(j.Results, result)
			j.Progress.Processed = i + 1
			j.Progress.Balanced = stats.Balanced
			j.Progress.Skipped = stats.Skipped
			j.Progress.Errored = stats.Errored
		})

		s.publish(job.Session, realtime.EventInvoiceProgress, realtime.InvoiceProgress{
			Index:   i + 1,
			Total:   len(job.invoices),
			Invoice: result.Invoice,
			Status:  result.Status,
			Error:   result.Error,
		})
	}

	if err := s.storage.CompleteRun(job.RunID, stats); err != nil {
		s.logger.Error("failed to complete run", "run_id", job.RunID, "error", err)
	}

	status := StatusCompleted
	s.update(job, func(j *BalanceJob) {
		if j.Status != StatusRunning {
			// Cancelled or marked stale while the last invoice was in flight
			status = j.Status
			return
		}
		now := time.Now()
		j.Status = StatusCompleted
		j.CompletedAt = &now
		j.Progress.Phase = "completed"
	})
	s.metrics.ObserveJob(string(status), time.Since(job.StartedAt))

	s.publish(job.Session, realtime.EventDone, realtime.Done{
		Message: fmt.Sprintf("Balanced %d of %d invoices", stats.Balanced, stats.Found),
	})

	s.logger.Info("balance job completed",
		"job_id", job.ID,
		"run_id", job.RunID,
		"balanced", stats.Balanced,
		"skipped", stats.Skipped,
		"errors", stats.Errored,
	)
}

// balanceOne balances, saves and records a single invoice.
func (s *BalanceService) balanceOne(ctx context.Context, job *BalanceJob, inv *invoice.SalesInvoice) InvoiceResult {
	result := InvoiceResult{Invoice: inv.Name}
	adj := &storage.Adjustment{RunID: job.RunID, Invoice: inv.Name}

	outcome, err := invoice.Balance(inv, s.opts.Precision, s.opts.MarketplacePrefix)
	s.metrics.ObserveDivision(err, outcome.ChangedLines())

	switch {
	case err != nil:
		// The invoice keeps its per-line conversion; the mismatch is reported
		result.Status = InvoiceError
		result.Error = err.Error()
		s.logger.Warn("invoice not balanced", "invoice", inv.Name, "error", err)

	case !outcome.Balanced():
		result.Status = InvoiceSkipped
		result.Outcome = outcome
		adj.SkipReason = string(outcome.Skipped)
		adj.BaseTotal = outcome.BaseTotal

	default:
		result.Status = InvoiceBalanced
		result.Outcome = outcome
		result.Balance = inv
		adj.BaseTotal = outcome.BaseTotal
		adj.Lines = make([]storage.LineChange, 0, len(outcome.Changes))
		for _, c := range outcome.Changes {
			adj.Lines = append(adj.Lines, storage.LineChange{
				Index:    c.Index,
				ItemCode: c.ItemCode,
				Before:   c.Before,
				After:    c.After,
				BaseRate: c.BaseRate,
			})
		}

		if !job.DryRun && s.gateway != nil {
			if err := s.save(ctx, inv); err != nil {
				result.Status = InvoiceError
				result.Error = err.Error()
				s.logger.Error("failed to save invoice", "invoice", inv.Name, "error", err)
			}
		}
	}

	adj.Status = result.Status
	adj.Error = result.Error
	if err := s.storage.SaveAdjustment(adj); err != nil {
		s.logger.Error("failed to record adjustment", "invoice", inv.Name, "run_id", job.RunID, "error", err)
	}

	s.metrics.ObserveInvoice(result.Status)
	return result
}

// doctypeInvoice tags an invoice with its doctype for saving.
type doctypeInvoice struct {
	Doctype string `json:"doctype"`
	*invoice.SalesInvoice
}

func (s *BalanceService) save(ctx context.Context, inv *invoice.SalesInvoice) error {
	_, err := rpc.SaveDoc.Invoke(ctx, s.gateway, rpc.SaveDocArgs{
		Doc: doctypeInvoice{Doctype: "Sales Invoice", SalesInvoice: inv},
	})
	return err
}

func (s *BalanceService) finishCancelled(job *BalanceJob, stats storage.RunStats) {
	if err := s.storage.FailRun(job.RunID, "cancelled"); err != nil {
		s.logger.Error("failed to record cancelled run", "run_id", job.RunID, "error", err)
	}
	s.metrics.ObserveJob(string(StatusCancelled), time.Since(job.StartedAt))
	s.publish(job.Session, realtime.EventDone, realtime.Done{
		Message: fmt.Sprintf("Cancelled after %d of %d invoices", stats.Balanced+stats.Skipped+stats.Errored, stats.Found),
	})
}

func (s *BalanceService) publish(sess session.Session, name string, payload any) {
	if s.publisher == nil {
		return
	}
	ev, err := realtime.NewEvent(sess, name, payload)
	if err == nil {
		err = s.publisher.Publish(ev)
	}
	if err != nil {
		s.logger.Warn("failed to publish event", "event", name, "session_id", sess.ID, "error", err)
		return
	}
	s.metrics.ObserveEvent(name)
}

// update applies fn to the stored job under the lock.
func (s *BalanceService) update(job *BalanceJob, fn func(*BalanceJob)) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	fn(job)
	job.Progress.LastUpdate = time.Now()
}

// release frees the job's session for the next job.
func (s *BalanceService) release(job *BalanceJob) {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()
	if s.active[job.Session.ID] == job.ID {
		delete(s.active, job.Session.ID)
	}
}

// CleanupOldJobs removes finished jobs older than maxAge.
func (s *BalanceService) CleanupOldJobs(maxAge time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for id, job := range s.jobs {
		if job.Status == StatusPending || job.Status == StatusRunning {
			continue
		}
		if job.CompletedAt != nil && job.CompletedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}

	if removed > 0 {
		s.logger.Debug("cleaned up old balance jobs", "removed", removed)
	}
	return removed
}

// MarkStaleJobsAsFailed fails jobs that have run longer than maxDuration or
// made no progress for staleThreshold, and frees their sessions.
func (s *BalanceService) MarkStaleJobsAsFailed(staleThreshold, maxDuration time.Duration) int {
	s.jobsMutex.Lock()
	defer s.jobsMutex.Unlock()

	now := time.Now()
	marked := 0
	for id, job := range s.jobs {
		if job.Status != StatusRunning && job.Status != StatusPending {
			continue
		}

		var reason string
		switch {
		case now.Sub(job.StartedAt) > maxDuration:
			reason = fmt.Sprintf("exceeded max duration of %v", maxDuration)
		case now.Sub(job.Progress.LastUpdate) > staleThreshold:
			reason = fmt.Sprintf("no progress for %v", now.Sub(job.Progress.LastUpdate).Round(time.Second))
		default:
			continue
		}

		job.cancelFunc()
		job.Status = StatusFailed
		job.CompletedAt = &now
		job.Error = fmt.Errorf("job marked as stale: %s", reason)
		job.Progress.Phase = "failed"
		job.Progress.LastUpdate = now
		if s.active[job.Session.ID] == id {
			delete(s.active, job.Session.ID)
		}

		s.logger.Warn("marked stale job as failed", "job_id", id, "reason", reason)
		marked++
	}
	return marked
}

func (j *BalanceJob) snapshot() *BalanceJob {
	c := *j
	c.Results = append([]InvoiceResult(nil), j.Results...)
	c.invoices = nil
	c.cancelFunc = nil
	return &c
}

func copyInvoices(in []invoice.SalesInvoice) []invoice.SalesInvoice {
	out := make([]invoice.SalesInvoice, len(in))
	for i, inv := range in {
		inv.Items = append([]invoice.InvoiceItem(nil), inv.Items...)
		out[i] = inv
	}
	return out
}

