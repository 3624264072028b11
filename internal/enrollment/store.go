package enrollment

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// StateStore persists learner course states. Save is a check-and-set on
// Version: it fails with ErrConflict when the stored version differs, and on
// success increments state.Version.
type StateStore interface {
	Create(ctx context.Context, state *State) error
	Get(ctx context.Context, learnerID, courseID string) (*State, error)
	Save(ctx context.Context, state *State) error
	ListByCourse(ctx context.Context, courseID string) ([]*State, error)
}

// MemoryStore is an in-memory implementation of StateStore.
type MemoryStore struct {
	states map[string]*State
	mu     sync.RWMutex
}

// NewMemoryStore creates an empty in-memory state store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{states: make(map[string]*State)}
}

func (s *MemoryStore) Create(_ context.Context, state *State) error {
	if state.LearnerID == "" || state.CourseID == "" {
		return fmt.Errorf("learner_id and course_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.states[state.key()]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyEnrolled, state.key())
	}
	state.Version = 1
	s.states[state.key()] = state.Clone()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, learnerID, courseID string) (*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[learnerID+"/"+courseID]
	if !ok {
		return nil, fmt.Errorf("%w: enrollment %s/%s", ErrNotFound, learnerID, courseID)
	}
	return st.Clone(), nil
}

func (s *MemoryStore) Save(_ context.Context, state *State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.states[state.key()]
	if !ok {
		return fmt.Errorf("%w: enrollment %s", ErrNotFound, state.key())
	}
	if cur.Version != state.Version {
		return fmt.Errorf("%w: have version %d, stored %d", ErrConflict, state.Version, cur.Version)
	}
	state.Version++
	s.states[state.key()] = state.Clone()
	return nil
}

func (s *MemoryStore) ListByCourse(_ context.Context, courseID string) ([]*State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*State
	for _, st := range s.states {
		if st.CourseID == courseID {
			out = append(out, st.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LearnerID < out[j].LearnerID })
	return out, nil
}
