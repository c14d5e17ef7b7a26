package generation

import (
	"context"

	"github.com/google/uuid"
)

// JobStore holds job run records. Jobs are retained until explicitly
// purged through Delete.
type JobStore interface {
	// Save inserts or replaces a job record.
	Save(ctx context.Context, job *Job) error

	// FindByID returns the job with the given id.
	FindByID(ctx context.Context, id uuid.UUID) (*Job, error)

	// FindActiveByFingerprint returns a queued or running job with the
	// given fingerprint, if one exists.
	FindActiveByFingerprint(ctx context.Context, fingerprint string) (*Job, error)

	// List returns up to limit jobs, newest first, optionally filtered
	// by status. An empty status matches all jobs.
	List(ctx context.Context, status Status, limit int) ([]*Job, error)

	// Delete purges a job record.
	Delete(ctx context.Context, id uuid.UUID) error
}

// Observer is notified after a job reaches a terminal state. Observers
// replace webhook-style callbacks: they are invoked in registration
// order and must not block for long.
type Observer interface {
	JobFinished(ctx context.Context, snap Snapshot)
}

// ObserverFunc adapts a function to the Observer interface
type ObserverFunc func(ctx context.Context, snap Snapshot)

// JobFinished implements Observer
func (f ObserverFunc) JobFinished(ctx context.Context, snap Snapshot) {
	f(ctx, snap)
}
