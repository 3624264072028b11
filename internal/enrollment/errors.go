package enrollment

import (
	"errors"
	"fmt"

	"github.com/p-n-ai/pai-course/internal/course"
)

var (
	// ErrNotFound covers a missing course, content tree, quiz or learner state.
	ErrNotFound = errors.New("not found")
	// ErrLocked is wrapped by *LockedError.
	ErrLocked = errors.New("content locked")
	// ErrPersistence means the state store rejected a write. Nothing was applied.
	ErrPersistence = errors.New("persistence failure")
	// ErrInvalidScore is a quiz or assignment grade outside 0..100.
	ErrInvalidScore = errors.New("invalid score")
	// ErrConflict is an optimistic version mismatch on save.
	ErrConflict = errors.New("state changed concurrently")
	// ErrAlreadyEnrolled is returned by Enroll for an existing state.
	ErrAlreadyEnrolled = errors.New("already enrolled")
)

// LockedError reports an attempt to open an inaccessible section.
type LockedError struct {
	Address course.Address
	Reason  string
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("section %s locked: %s", e.Address, e.Reason)
}

func (e *LockedError) Unwrap() error {
	return ErrLocked
}

// UserMessage maps an error from this package to text safe to show a learner.
func UserMessage(err error) string {
	var locked *LockedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &locked):
		return locked.Reason
	case errors.Is(err, ErrNotFound):
		return "This course or lesson could not be found."
	case errors.Is(err, ErrInvalidScore):
		return "The score must be between 0 and 100."
	case errors.Is(err, ErrAlreadyEnrolled):
		return "You are already enrolled in this course."
	case errors.Is(err, ErrPersistence), errors.Is(err, ErrConflict):
		return "Your progress could not be saved. Please try again."
	default:
		return "Something went wrong. Please try again."
	}
}
