package assignment

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/p-n-ai/pai-course/internal/enrollment"
)

// Store persists assignments and submissions.
type Store interface {
	Create(ctx context.Context, a *Assignment) error
	Get(ctx context.Context, id string) (*Assignment, error)
	Update(ctx context.Context, a *Assignment) error
	// Delete removes an assignment and closes the gap in its course's order.
	Delete(ctx context.Context, id string) error
	ListByCourse(ctx context.Context, courseID string) ([]*Assignment, error)
	// SetOrder assigns order 1..n to ids in the given sequence.
	SetOrder(ctx context.Context, courseID string, ids []string) error

	// AddSubmission stores s as the latest submission, clearing the flag on
	// the learner's previous one.
	AddSubmission(ctx context.Context, s *Submission) error
	Submission(ctx context.Context, id string) (*Submission, error)
	UpdateSubmission(ctx context.Context, s *Submission) error
	Submissions(ctx context.Context, assignmentID string, latestOnly bool) ([]*Submission, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	assignments map[string]*Assignment
	submissions []*Submission
	mu          sync.RWMutex
}

// NewMemoryStore creates an empty in-memory assignment store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{assignments: make(map[string]*Assignment)}
}

func (s *MemoryStore) Create(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.assignments[id]
	if !ok {
		return nil, fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, id)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Update(_ context.Context, a *Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assignments[a.ID]; !ok {
		return fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, a.ID)
	}
	cp := *a
	s.assignments[a.ID] = &cp
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return fmt.Errorf("%w: assignment %s", enrollment.ErrNotFound, id)
	}
	delete(s.assignments, id)
	for _, other := range s.assignments {
		if other.CourseID == a.CourseID && other.Order > a.Order {
			other.Order--
		}
	}
	return nil
}

func (s *MemoryStore) ListByCourse(_ context.Context, courseID string) ([]*Assignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Assignment
	for _, a := range s.assignments {
		if a.CourseID == courseID {
			cp := *a
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Order < out[j].Order })
	return out, nil
}

func (s *MemoryStore) SetOrder(_ context.Context, courseID string, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if a, ok := s.assignments[id]; !ok || a.CourseID != courseID {
			return fmt.Errorf("%w: assignment %s in course %s", enrollment.ErrNotFound, id, courseID)
		}
	}
	for i, id := range ids {
		s.assignments[id].Order = i + 1
	}
	return nil
}

func (s *MemoryStore) AddSubmission(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, prev := range s.submissions {
		if prev.AssignmentID == sub.AssignmentID && prev.LearnerID == sub.LearnerID {
			prev.IsLatest = false
		}
	}
	cp := *sub
	cp.IsLatest = true
	s.submissions = append(s.submissions, &cp)
	sub.IsLatest = true
	return nil
}

func (s *MemoryStore) Submission(_ context.Context, id string) (*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sub := range s.submissions {
		if sub.ID == id {
			cp := *sub
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: submission %s", enrollment.ErrNotFound, id)
}

func (s *MemoryStore) UpdateSubmission(_ context.Context, sub *Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, cur := range s.submissions {
		if cur.ID == sub.ID {
			cp := *sub
			s.submissions[i] = &cp
			return nil
		}
	}
	return fmt.Errorf("%w: submission %s", enrollment.ErrNotFound, sub.ID)
}

func (s *MemoryStore) Submissions(_ context.Context, assignmentID string, latestOnly bool) ([]*Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Submission
	for i := len(s.submissions) - 1; i >= 0; i-- {
		sub := s.submissions[i]
		if sub.AssignmentID != assignmentID || (latestOnly && !sub.IsLatest) {
			continue
		}
		cp := *sub
		out = append(out, &cp)
	}
	return out, nil
}
