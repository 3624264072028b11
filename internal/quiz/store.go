package quiz

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for an unknown quiz.
var ErrNotFound = errors.New("quiz not found")

// Provider is the quiz collaborator of the progression engine.
type Provider interface {
	QuizzesForCourse(ctx context.Context, courseID string) ([]Quiz, error)
	QuizAttempts(ctx context.Context, learnerID, courseID string) ([]Attempt, error)
	SubmitAttempt(ctx context.Context, learnerID, quizID string, answers []int) (Attempt, error)
}

// Store adds quiz authoring to Provider.
type Store interface {
	Provider
	PutQuiz(ctx context.Context, q Quiz) error
	Quiz(ctx context.Context, id string) (Quiz, error)
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	quizzes  map[string]Quiz
	order    []string
	attempts []Attempt
	now      func() time.Time
	mu       sync.RWMutex
}

// NewMemoryStore creates an empty in-memory quiz store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		quizzes: make(map[string]Quiz),
		now:     time.Now,
	}
}

func (s *MemoryStore) PutQuiz(_ context.Context, q Quiz) error {
	if q.ID == "" || q.CourseID == "" {
		return fmt.Errorf("quiz id and course_id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizzes[q.ID]; !ok {
		s.order = append(s.order, q.ID)
	}
	s.quizzes[q.ID] = q
	return nil
}

func (s *MemoryStore) Quiz(_ context.Context, id string) (Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quizzes[id]
	if !ok {
		return Quiz{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return q, nil
}

func (s *MemoryStore) QuizzesForCourse(_ context.Context, courseID string) ([]Quiz, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Quiz
	for _, id := range s.order {
		if q := s.quizzes[id]; q.CourseID == courseID {
			out = append(out, q)
		}
	}
	return out, nil
}

func (s *MemoryStore) QuizAttempts(_ context.Context, learnerID, courseID string) ([]Attempt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Attempt
	for _, a := range s.attempts {
		if a.LearnerID == learnerID && a.CourseID == courseID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *MemoryStore) SubmitAttempt(ctx context.Context, learnerID, quizID string, answers []int) (Attempt, error) {
	q, err := s.Quiz(ctx, quizID)
	if err != nil {
		return Attempt{}, err
	}
	a, err := q.Grade(answers)
	if err != nil {
		return Attempt{}, err
	}
	a.ID = uuid.NewString()
	a.LearnerID = learnerID
	a.CompletedAt = s.now()

	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()
	return a, nil
}

// RecordAttempt stores an already graded attempt.
func (s *MemoryStore) RecordAttempt(a Attempt) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CompletedAt.IsZero() {
		a.CompletedAt = s.now()
	}
	s.mu.Lock()
	s.attempts = append(s.attempts, a)
	s.mu.Unlock()
}
