// Package assignment manages graded course assignments and learner submissions.
package assignment

import (
	"errors"
	"time"
)

const (
	// MaxPerCourse caps the number of assignments in one course.
	MaxPerCourse = 5
	// UnlockLead is how long before its deadline an assignment opens.
	UnlockLead = 7 * 24 * time.Hour
)

var (
	// ErrLimitReached is returned when a course already has MaxPerCourse assignments.
	ErrLimitReached = errors.New("maximum number of assignments reached for this course")
	// ErrNotAvailable is returned for submissions to unpublished or not yet unlocked assignments.
	ErrNotAvailable = errors.New("assignment not yet available")
	// ErrInvalidDraft is returned for a draft without a title or deadline.
	ErrInvalidDraft = errors.New("assignment needs a title and a deadline")
	// ErrInvalidRequest is returned for a malformed reorder or submission.
	ErrInvalidRequest = errors.New("invalid assignment request")
)

// Assignment is a graded task with a deadline. Order runs 1..n within a course.
type Assignment struct {
	ID           string    `json:"id"`
	CourseID     string    `json:"course_id"`
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	Deadline     time.Time `json:"deadline"`
	UnlockDate   time.Time `json:"unlock_date"`
	Order        int       `json:"order"`
	IsPublished  bool      `json:"is_published"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Open reports whether learners can see and submit the assignment at now.
func (a *Assignment) Open(now time.Time) bool {
	return a.IsPublished && !a.UnlockDate.After(now)
}

// Draft carries the author-editable fields of an assignment.
type Draft struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Instructions string    `json:"instructions"`
	Deadline     time.Time `json:"deadline"`
	IsPublished  bool      `json:"is_published"`
}

// Submission is one learner upload. Only the newest submission per learner
// and assignment has IsLatest set.
type Submission struct {
	ID           string    `json:"id"`
	AssignmentID string    `json:"assignment_id"`
	LearnerID    string    `json:"learner_id"`
	CourseID     string    `json:"course_id"`
	URL          string    `json:"url"`
	SubmittedAt  time.Time `json:"submitted_at"`
	IsLatest     bool      `json:"is_latest"`
	IsLate       bool      `json:"is_late"`
	Feedback     string    `json:"feedback,omitempty"`
	Grade        *float64  `json:"grade,omitempty"`
}
