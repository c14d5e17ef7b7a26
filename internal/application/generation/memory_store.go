package generation

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/storegen/backend/internal/domain/generation"
	"github.com/storegen/backend/internal/domain/shared"
)

// MemoryJobStore is an in-memory JobStore. Jobs are process-local run
// records; they are retained until purged or until the retention sweep
// collects them.
type MemoryJobStore struct {
	mu   sync.RWMutex
	jobs map[uuid.UUID]*generation.Job
}

// Compile-time interface check
var _ generation.JobStore = (*MemoryJobStore)(nil)

// NewMemoryJobStore creates an empty in-memory job store
func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: make(map[uuid.UUID]*generation.Job)}
}

// Save inserts or replaces a job record
func (s *MemoryJobStore) Save(ctx context.Context, job *generation.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// FindByID returns the job with the given id
func (s *MemoryJobStore) FindByID(ctx context.Context, id uuid.UUID) (*generation.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return job, nil
}

// FindActiveByFingerprint returns a queued or running job with the
// given fingerprint, if one exists.
func (s *MemoryJobStore) FindActiveByFingerprint(ctx context.Context, fingerprint string) (*generation.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Fingerprint == fingerprint && !job.CurrentStatus().Terminal() {
			return job, nil
		}
	}
	return nil, shared.ErrNotFound
}

// List returns up to limit jobs, newest first, optionally filtered by status
func (s *MemoryJobStore) List(ctx context.Context, status generation.Status, limit int) ([]*generation.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]*generation.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if status != "" && job.CurrentStatus() != status {
			continue
		}
		matched = append(matched, job)
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].SubmittedAt.Equal(matched[j].SubmittedAt) {
			return matched[i].ID.String() > matched[j].ID.String()
		}
		return matched[i].SubmittedAt.After(matched[j].SubmittedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// Delete purges a job record
func (s *MemoryJobStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.jobs[id]; !ok {
		return shared.ErrNotFound
	}
	delete(s.jobs, id)
	return nil
}

// DeleteFinishedBefore purges terminal jobs whose finish time is older
// than the cutoff and returns how many were removed.
func (s *MemoryJobStore) DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for id, job := range s.jobs {
		snap := job.Snapshot()
		if snap.Status.Terminal() && snap.FinishedAt != nil && snap.FinishedAt.Before(cutoff) {
			delete(s.jobs, id)
			removed++
		}
	}
	return removed, nil
}
