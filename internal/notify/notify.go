// Package notify delivers "newly unlocked" events to learners.
package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Event announces that a chapter, subchapter or section became available.
type Event struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Address   string    `json:"address"`
	LearnerID string    `json:"learner_id"`
	CourseID  string    `json:"course_id"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEvent fills in the id and timestamp.
func NewEvent(learnerID, courseID, kind, title, address string) Event {
	return Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     title,
		Address:   address,
		LearnerID: learnerID,
		CourseID:  courseID,
		CreatedAt: time.Now(),
	}
}

// Message is the learner-facing text, e.g. `New chapter unlocked: "Loops"`.
func (e Event) Message() string {
	return fmt.Sprintf("New %s unlocked: %q", e.Kind, e.Title)
}

// Headline is a short title-cased label such as "Subchapter Unlocked".
func (e Event) Headline() string {
	return cases.Title(language.English).String(e.Kind + " unlocked")
}

// Sink accepts unlock events. Delivery and formatting are up to the sink.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// NopSink drops every event.
type NopSink struct{}

func (NopSink) Notify(context.Context, Event) error {
	return nil
}

// MemorySink keeps events in memory for tests.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink {
	return &MemorySink{events: []Event{}}
}

func (s *MemorySink) Notify(_ context.Context, event Event) error {
	if event.Kind == "" {
		return fmt.Errorf("event kind is required")
	}
	s.mu.Lock()
	s.events = append(s.events, event)
	s.mu.Unlock()
	return nil
}

func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Event{}, s.events...)
}

// MultiSink fans an event out to every sink. All sinks are tried; their
// errors are joined.
type MultiSink []Sink

func (m MultiSink) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Notify(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
