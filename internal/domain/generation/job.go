package generation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/shared"
	"github.com/storegen/backend/internal/domain/store"
)

// Status is the job lifecycle state
type Status string

const (
	StatusQueued         Status = "queued"
	StatusRunning        Status = "running"
	StatusPartialSuccess Status = "partial_success"
	StatusSucceeded      Status = "succeeded"
	StatusFailed         Status = "failed"
	StatusCancelled      Status = "cancelled"
)

// Terminal reports whether the status is a terminal state
func (s Status) Terminal() bool {
	switch s {
	case StatusPartialSuccess, StatusSucceeded, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// Stage identifies one pipeline stage of a job
type Stage string

const (
	StageAggregation Stage = "aggregation"
	StageRender      Stage = "render"
	StageOptimize    Stage = "optimize"
	StageSEO         Stage = "seo"
	StageDeploy      Stage = "deploy"
)

// StageError is an error captured during stage execution and attached
// to the job rather than thrown to the caller.
type StageError struct {
	Stage      Stage     `json:"stage"`
	Code       string    `json:"code"`
	Message    string    `json:"message"`
	OccurredAt time.Time `json:"occurred_at"`
}

// StageProgress counts completed work units within a stage
type StageProgress struct {
	Done  int `json:"done"`
	Total int `json:"total"`
}

// Job is the mutable run record for one generation request. It is owned
// exclusively by the orchestrator and mutated only through the defined
// transitions below; API reads go through Snapshot.
type Job struct {
	mu sync.RWMutex

	ID          uuid.UUID
	Fingerprint string
	Request     Request
	Status      Status
	Progress    map[Stage]StageProgress
	Errors      []StageError
	Results     []store.DeploymentResult
	Structure   *store.StoreStructure
	Attempts    int
	SubmittedAt time.Time
	StartedAt   *time.Time
	FinishedAt  *time.Time

	cancelRequested bool
}

// NewJob creates a queued job holding an immutable request snapshot
func NewJob(req Request, fingerprint string) *Job {
	return &Job{
		ID:          uuid.New(),
		Fingerprint: fingerprint,
		Request:     req,
		Status:      StatusQueued,
		Progress:    make(map[Stage]StageProgress),
		SubmittedAt: time.Now(),
	}
}

// Start transitions queued -> running
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status != StatusQueued {
		return shared.ErrInvalidState
	}
	now := time.Now()
	j.Status = StatusRunning
	j.StartedAt = &now
	j.Attempts++
	return nil
}

// RequestCancel asks the job to stop before its next stage. A queued job
// is cancelled immediately; a running job keeps its in-flight stage and
// transitions once the orchestrator observes the request. Cancelling a
// terminal job is a no-op error.
func (j *Job) RequestCancel() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return shared.ErrInvalidState
	}
	j.cancelRequested = true
	if j.Status == StatusQueued {
		j.finishLocked(StatusCancelled)
	}
	return nil
}

// CancelRequested reports whether cancellation has been requested
func (j *Job) CancelRequested() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.cancelRequested
}

// MarkCancelled transitions a running job to cancelled after the
// orchestrator has drained in-flight work.
func (j *Job) MarkCancelled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.finishLocked(StatusCancelled)
}

// Fail records a stage-fatal error and transitions to failed
func (j *Job) Fail(stage Stage, code, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Errors = append(j.Errors, StageError{Stage: stage, Code: code, Message: message, OccurredAt: time.Now()})
	j.finishLocked(StatusFailed)
}

// RecordError attaches a non-fatal stage error to the job
func (j *Job) RecordError(stage Stage, code, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Errors = append(j.Errors, StageError{Stage: stage, Code: code, Message: message, OccurredAt: time.Now()})
}

// SetProgress updates the progress counters for a stage
func (j *Job) SetProgress(stage Stage, done, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress[stage] = StageProgress{Done: done, Total: total}
}

// SetStructure attaches the rendered store structure. A job has exactly
// one structure once rendering completes.
func (j *Job) SetStructure(s *store.StoreStructure) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Structure = s
}

// RenderedStructure returns the attached structure under the read lock,
// or nil while rendering has not completed.
func (j *Job) RenderedStructure() *store.StoreStructure {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Structure
}

// CompleteDeployment records the per-target results and derives the
// terminal state: all succeeded -> succeeded, some -> partial_success,
// none -> failed. Results never overwrite each other.
func (j *Job) CompleteDeployment(results []store.DeploymentResult) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Results = append(j.Results, results...)
	succeeded := 0
	for i := range results {
		if results[i].Succeeded() {
			succeeded++
		}
	}
	switch {
	case succeeded == len(results) && len(results) > 0:
		j.finishLocked(StatusSucceeded)
	case succeeded > 0:
		j.finishLocked(StatusPartialSuccess)
	default:
		j.finishLocked(StatusFailed)
	}
}

// FailTimeout marks the job failed by timeout, or partial_success if
// deployment had already partially completed.
func (j *Job) FailTimeout() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.Status.Terminal() {
		return
	}
	j.Errors = append(j.Errors, StageError{
		Stage:      StageDeploy,
		Code:       shared.ErrCodeTimeout,
		Message:    "Job exceeded its overall time budget",
		OccurredAt: time.Now(),
	})
	succeeded := 0
	for i := range j.Results {
		if j.Results[i].Succeeded() {
			succeeded++
		}
	}
	if succeeded > 0 {
		j.finishLocked(StatusPartialSuccess)
	} else {
		j.finishLocked(StatusFailed)
	}
}

func (j *Job) finishLocked(status Status) {
	now := time.Now()
	j.Status = status
	j.FinishedAt = &now
}

// Snapshot is a coherent read-only view of a job, safe to serialize
// while the job is still running.
type Snapshot struct {
	ID          uuid.UUID                `json:"id"`
	Fingerprint string                   `json:"fingerprint"`
	Request     Request                  `json:"request"`
	Status      Status                   `json:"status"`
	Progress    map[Stage]StageProgress  `json:"progress"`
	Errors      []StageError             `json:"errors,omitempty"`
	Results     []store.DeploymentResult `json:"results,omitempty"`
	PageCount   int                      `json:"page_count"`
	Attempts    int                      `json:"attempts"`
	SubmittedAt time.Time                `json:"submitted_at"`
	StartedAt   *time.Time               `json:"started_at,omitempty"`
	FinishedAt  *time.Time               `json:"finished_at,omitempty"`
}

// Snapshot returns a copy of the job's observable state
func (j *Job) Snapshot() Snapshot {
	j.mu.RLock()
	defer j.mu.RUnlock()
	snap := Snapshot{
		ID:          j.ID,
		Fingerprint: j.Fingerprint,
		Request:     j.Request,
		Status:      j.Status,
		Progress:    make(map[Stage]StageProgress, len(j.Progress)),
		Errors:      append([]StageError(nil), j.Errors...),
		Results:     append([]store.DeploymentResult(nil), j.Results...),
		Attempts:    j.Attempts,
		SubmittedAt: j.SubmittedAt,
		StartedAt:   j.StartedAt,
		FinishedAt:  j.FinishedAt,
	}
	for stage, p := range j.Progress {
		snap.Progress[stage] = p
	}
	if j.Structure != nil {
		snap.PageCount = len(j.Structure.Pages)
	}
	return snap
}

// CurrentStatus returns the job status under the read lock
func (j *Job) CurrentStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}
