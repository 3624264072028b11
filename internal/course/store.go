package course

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned when a course has no content tree.
var ErrNotFound = errors.New("course not found")

// Provider returns the content tree of a course.
type Provider interface {
	ContentTree(ctx context.Context, courseID string) (*Tree, error)
}

// Store persists content trees and the administrator completion gate.
type Store interface {
	Provider
	PutTree(ctx context.Context, tree *Tree) error
	CompletionFlag(ctx context.Context, courseID string) (CompletionFlag, error)
	SetCompletionFlag(ctx context.Context, courseID string, flag CompletionFlag) error
}

// MemoryStore is an in-memory implementation of Store.
type MemoryStore struct {
	trees map[string]*Tree
	flags map[string]CompletionFlag
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory course store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		trees: make(map[string]*Tree),
		flags: make(map[string]CompletionFlag),
	}
}

func (s *MemoryStore) ContentTree(_ context.Context, courseID string) (*Tree, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.trees[courseID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, courseID)
	}
	return t.Clone(), nil
}

func (s *MemoryStore) PutTree(_ context.Context, tree *Tree) error {
	if tree == nil || tree.CourseID == "" {
		return fmt.Errorf("course_id is required")
	}
	t := tree.Clone()
	t.Normalize()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.trees[t.CourseID] = t
	return nil
}

func (s *MemoryStore) CompletionFlag(_ context.Context, courseID string) (CompletionFlag, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.trees[courseID]; !ok {
		return CompletionFlag{}, fmt.Errorf("%w: %s", ErrNotFound, courseID)
	}
	return s.flags[courseID], nil
}

func (s *MemoryStore) SetCompletionFlag(_ context.Context, courseID string, flag CompletionFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.trees[courseID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, courseID)
	}
	s.flags[courseID] = flag
	return nil
}
