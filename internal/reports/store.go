package reports

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"petakeu/pkg/contracts/domain"
)

// CanTransition reports whether a job may move from one status to another
func CanTransition(from, to domain.ReportStatus) bool {
	switch from {
	case domain.ReportStatusQueued:
		return to == domain.ReportStatusProcessing || to == domain.ReportStatusFailed
	case domain.ReportStatusProcessing:
		return to == domain.ReportStatusCompleted || to == domain.ReportStatusFailed
	default:
		return false
	}
}

// Store persists report jobs
type Store interface {
	Create(ctx context.Context, job domain.ReportJob) error
	Get(ctx context.Context, id string) (domain.ReportJob, error)
	// List returns every job, newest request first
	List(ctx context.Context) ([]domain.ReportJob, error)
	// Update applies fn to a copy of the job and stores the result when the
	// status change is allowed
	Update(ctx context.Context, id string, fn func(*domain.ReportJob) error) (domain.ReportJob, error)
}

// MemoryStore keeps report jobs in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.ReportJob
}

// NewMemoryStore creates an empty job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{jobs: make(map[string]domain.ReportJob)}
}

// Create inserts a new job
func (s *MemoryStore) Create(_ context.Context, job domain.ReportJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.ID]; exists {
		return fmt.Errorf("report job %s already exists", job.ID)
	}
	s.jobs[job.ID] = job.Clone()
	return nil
}

// Get returns a copy of one job
func (s *MemoryStore) Get(_ context.Context, id string) (domain.ReportJob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[id]
	if !ok {
		return domain.ReportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	return job.Clone(), nil
}

// List returns copies of every job ordered by RequestedAt desc
func (s *MemoryStore) List(_ context.Context) ([]domain.ReportJob, error) {
	s.mu.RLock()
	out := make([]domain.ReportJob, 0, len(s.jobs))
	for _, job := range s.jobs {
		out = append(out, job.Clone())
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].RequestedAt.Equal(out[j].RequestedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].RequestedAt.After(out[j].RequestedAt)
	})
	return out, nil
}

// Update mutates a job under the store lock
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*domain.ReportJob) error) (domain.ReportJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.jobs[id]
	if !ok {
		return domain.ReportJob{}, fmt.Errorf("%w: %s", ErrJobNotFound, id)
	}
	if current.Status.IsTerminal() {
		return current.Clone(), fmt.Errorf("%w: %s is %s", ErrTerminalState, id, current.Status)
	}

	next := current.Clone()
	if err := fn(&next); err != nil {
		return current.Clone(), err
	}
	if next.Status != current.Status && !CanTransition(current.Status, next.Status) {
		return current.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current.Status, next.Status)
	}

	s.jobs[id] = next.Clone()
	return next, nil
}
