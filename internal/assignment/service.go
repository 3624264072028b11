package assignment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/enrollment"
)

// ServiceConfig holds dependencies for the service.
type ServiceConfig struct {
	Store   Store
	Courses course.Provider
	Now     func() time.Time
}

// Service enforces the assignment rules on top of a Store.
type Service struct {
	store   Store
	courses course.Provider
	now     func() time.Time
}

// NewService creates an assignment service. A nil Store defaults to memory.
func NewService(cfg ServiceConfig) *Service {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	courses := cfg.Courses
	if courses == nil {
		courses = course.NewMemoryStore()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{store: store, courses: courses, now: now}
}

// Create adds an assignment at the end of the course's order. It unlocks
// UnlockLead before its deadline.
func (s *Service) Create(ctx context.Context, courseID string, d Draft) (*Assignment, error) {
	if err := validate(d); err != nil {
		return nil, err
	}
	if _, err := s.courses.ContentTree(ctx, courseID); err != nil {
		if errors.Is(err, course.ErrNotFound) {
			return nil, fmt.Errorf("create assignment: %w: %w", enrollment.ErrNotFound, err)
		}
		return nil, fmt.Errorf("create assignment: %w", err)
	}

	existing, err := s.store.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if len(existing) >= MaxPerCourse {
		return nil, ErrLimitReached
	}

	now := s.now()
	a := &Assignment{
		ID:           uuid.NewString(),
		CourseID:     courseID,
		Title:        strings.TrimSpace(d.Title),
		Description:  d.Description,
		Instructions: d.Instructions,
		Deadline:     d.Deadline,
		UnlockDate:   d.Deadline.Add(-UnlockLead),
		Order:        len(existing) + 1,
		IsPublished:  d.IsPublished,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return nil, err
	}
	slog.Info("assignment created", "course_id", courseID, "assignment_id", a.ID, "order", a.Order)
	return a, nil
}

// Update replaces the editable fields and moves the unlock date with the deadline.
func (s *Service) Update(ctx context.Context, id string, d Draft) (*Assignment, error) {
	if err := validate(d); err != nil {
		return nil, err
	}
	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	a.Title = strings.TrimSpace(d.Title)
	a.Description = d.Description
	a.Instructions = d.Instructions
	a.Deadline = d.Deadline
	a.UnlockDate = d.Deadline.Add(-UnlockLead)
	a.IsPublished = d.IsPublished
	a.UpdatedAt = s.now()
	if err := s.store.Update(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// Delete removes an assignment. Later assignments move up one place.
func (s *Service) Delete(ctx context.Context, id string) error {
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	slog.Info("assignment deleted", "assignment_id", id)
	return nil
}

// Reorder sets the course's order to ids. ids must name every assignment of
// the course exactly once.
func (s *Service) Reorder(ctx context.Context, courseID string, ids []string) ([]*Assignment, error) {
	existing, err := s.store.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("list assignments: %w", err)
	}
	if len(ids) != len(existing) {
		return nil, fmt.Errorf("reorder: %w: got %d ids for %d assignments", ErrInvalidRequest, len(ids), len(existing))
	}
	known := make(map[string]bool, len(existing))
	for _, a := range existing {
		known[a.ID] = true
	}
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			return nil, fmt.Errorf("reorder: %w: assignment %s listed twice", ErrInvalidRequest, id)
		}
		if !known[id] {
			return nil, fmt.Errorf("reorder: %w: assignment %s in course %s", enrollment.ErrNotFound, id, courseID)
		}
		seen[id] = true
	}

	if err := s.store.SetOrder(ctx, courseID, ids); err != nil {
		return nil, err
	}
	return s.store.ListByCourse(ctx, courseID)
}

// List returns every assignment of a course in order.
func (s *Service) List(ctx context.Context, courseID string) ([]*Assignment, error) {
	return s.store.ListByCourse(ctx, courseID)
}

// Available returns the assignments a learner can currently see.
func (s *Service) Available(ctx context.Context, courseID string) ([]*Assignment, error) {
	all, err := s.store.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	var out []*Assignment
	for _, a := range all {
		if a.Open(now) {
			out = append(out, a)
		}
	}
	return out, nil
}

// Submit records a learner's upload. Submissions after the deadline are
// accepted and flagged late.
func (s *Service) Submit(ctx context.Context, learnerID, assignmentID, url string) (*Submission, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: submission url is required", ErrInvalidRequest)
	}
	a, err := s.store.Get(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if !a.Open(now) {
		return nil, ErrNotAvailable
	}

	sub := &Submission{
		ID:           uuid.NewString(),
		AssignmentID: a.ID,
		LearnerID:    learnerID,
		CourseID:     a.CourseID,
		URL:          url,
		SubmittedAt:  now,
		IsLate:       a.Deadline.Before(now),
	}
	if err := s.store.AddSubmission(ctx, sub); err != nil {
		return nil, err
	}
	slog.Info("assignment submitted",
		"assignment_id", a.ID,
		"learner_id", learnerID,
		"late", sub.IsLate,
	)
	return sub, nil
}

// Grade stores feedback and a 0..100 grade on a submission.
func (s *Service) Grade(ctx context.Context, submissionID string, grade float64, feedback string) (*Submission, error) {
	if !(grade >= 0 && grade <= 100) {
		return nil, fmt.Errorf("grade %.1f: %w", grade, enrollment.ErrInvalidScore)
	}
	sub, err := s.store.Submission(ctx, submissionID)
	if err != nil {
		return nil, err
	}
	sub.Grade = &grade
	sub.Feedback = feedback
	if err := s.store.UpdateSubmission(ctx, sub); err != nil {
		return nil, err
	}
	return sub, nil
}

// Submissions lists an assignment's submissions, newest first.
func (s *Service) Submissions(ctx context.Context, assignmentID string, latestOnly bool) ([]*Submission, error) {
	if _, err := s.store.Get(ctx, assignmentID); err != nil {
		return nil, err
	}
	return s.store.Submissions(ctx, assignmentID, latestOnly)
}

func validate(d Draft) error {
	if strings.TrimSpace(d.Title) == "" || d.Deadline.IsZero() {
		return ErrInvalidDraft
	}
	return nil
}
