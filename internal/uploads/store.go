package uploads

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"petakeu/pkg/contracts/domain"
)

var (
	// ErrUploadNotFound is returned for unknown upload IDs
	ErrUploadNotFound = errors.New("upload not found")

	// ErrTerminalState is returned when updating a parsed or failed upload
	ErrTerminalState = errors.New("upload already in a terminal state")

	// ErrInvalidTransition is returned for status changes the lifecycle forbids
	ErrInvalidTransition = errors.New("invalid upload status transition")
)

// CanTransition reports whether an upload may move from one status to another
func CanTransition(from, to domain.UploadStatus) bool {
	switch from {
	case domain.UploadStatusQueued:
		return to == domain.UploadStatusProcessing || to == domain.UploadStatusFailed
	case domain.UploadStatusProcessing:
		return to == domain.UploadStatusParsed || to == domain.UploadStatusFailed
	default:
		return false
	}
}

// Store persists upload records
type Store interface {
	// Reserve inserts record unless its hash is already known. It returns the
	// stored record and whether record was inserted.
	Reserve(ctx context.Context, record domain.UploadRecord) (domain.UploadRecord, bool, error)
	Get(ctx context.Context, id string) (domain.UploadRecord, error)
	// List returns every record, newest first
	List(ctx context.Context) ([]domain.UploadRecord, error)
	// Update applies fn to a copy of the record and stores the result.
	// Terminal records are never modified.
	Update(ctx context.Context, id string, fn func(*domain.UploadRecord) error) (domain.UploadRecord, error)
}

type storeEntry struct {
	mu     sync.Mutex
	seq    int64
	record domain.UploadRecord
}

// MemoryStore is an in-memory Store. The map lock covers lookup and insert;
// each record carries its own lock for updates.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*storeEntry
	byHash  map[string]string
	seq     int64
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*storeEntry),
		byHash:  make(map[string]string),
	}
}

// Reserve implements Store
func (s *MemoryStore) Reserve(_ context.Context, record domain.UploadRecord) (domain.UploadRecord, bool, error) {
	s.mu.Lock()
	if id, ok := s.byHash[record.Hash]; ok {
		entry := s.entries[id]
		s.mu.Unlock()

		entry.mu.Lock()
		defer entry.mu.Unlock()
		return entry.record.Clone(), false, nil
	}
	if _, exists := s.entries[record.ID]; exists {
		s.mu.Unlock()
		return domain.UploadRecord{}, false, fmt.Errorf("upload %s already exists", record.ID)
	}

	s.seq++
	s.entries[record.ID] = &storeEntry{seq: s.seq, record: record.Clone()}
	s.byHash[record.Hash] = record.ID
	s.mu.Unlock()

	return record.Clone(), true, nil
}

func (s *MemoryStore) entry(id string) (*storeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUploadNotFound, id)
	}
	return entry, nil
}

// Get implements Store
func (s *MemoryStore) Get(_ context.Context, id string) (domain.UploadRecord, error) {
	entry, err := s.entry(id)
	if err != nil {
		return domain.UploadRecord{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.record.Clone(), nil
}

// List implements Store
func (s *MemoryStore) List(_ context.Context) ([]domain.UploadRecord, error) {
	s.mu.RLock()
	entries := make([]*storeEntry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	type snapshot struct {
		seq    int64
		record domain.UploadRecord
	}
	snaps := make([]snapshot, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		snaps = append(snaps, snapshot{seq: e.seq, record: e.record.Clone()})
		e.mu.Unlock()
	}

	sort.Slice(snaps, func(i, j int) bool {
		if !snaps[i].record.CreatedAt.Equal(snaps[j].record.CreatedAt) {
			return snaps[i].record.CreatedAt.After(snaps[j].record.CreatedAt)
		}
		return snaps[i].seq > snaps[j].seq
	})

	out := make([]domain.UploadRecord, len(snaps))
	for i, snap := range snaps {
		out[i] = snap.record
	}
	return out, nil
}

// Update implements Store
func (s *MemoryStore) Update(_ context.Context, id string, fn func(*domain.UploadRecord) error) (domain.UploadRecord, error) {
	entry, err := s.entry(id)
	if err != nil {
		return domain.UploadRecord{}, err
	}

	entry.mu.Lock()
	defer entry.mu.Unlock()

	if entry.record.Status.IsTerminal() {
		return entry.record.Clone(), fmt.Errorf("%w: %s is %s", ErrTerminalState, id, entry.record.Status)
	}

	next := entry.record.Clone()
	if err := fn(&next); err != nil {
		return entry.record.Clone(), err
	}
	if next.Status != entry.record.Status && !CanTransition(entry.record.Status, next.Status) {
		return entry.record.Clone(), fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, entry.record.Status, next.Status)
	}

	entry.record = next
	return next.Clone(), nil
}
