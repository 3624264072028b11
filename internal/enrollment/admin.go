package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// BulkResult reports a SetCourseCompletion run. Failed learners keep their
// previous state and can be retried individually.
type BulkResult struct {
	Updated []string          `json:"updated"`
	Skipped []string          `json:"skipped"`
	Failed  map[string]string `json:"failed,omitempty"`
}

// SetCourseCompletion flips the administrator completion gate. An empty
// announcement keeps the current one. Marking the course complete also
// completes every learner whose stored progress is at least
// CompletionThreshold; learners below it are left alone.
func (s *Service) SetCourseCompletion(ctx context.Context, courseID string, isCompleted bool, announcement string) (*BulkResult, error) {
	flag, err := s.courses.CompletionFlag(ctx, courseID)
	if err != nil {
		return nil, lookupErr("set course completion", err)
	}
	flag.IsCompleted = isCompleted
	if announcement != "" {
		flag.Announcement = announcement
	}
	if err := s.courses.SetCompletionFlag(ctx, courseID, flag); err != nil {
		return nil, fmt.Errorf("%w: set completion flag: %w", ErrPersistence, err)
	}

	result := &BulkResult{Updated: []string{}, Skipped: []string{}}
	if !isCompleted {
		slog.Info("course completion cleared", "course_id", courseID)
		return result, nil
	}

	states, err := s.states.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("%w: list enrollments: %w", ErrPersistence, err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.bulkConcurrency)
	for _, st := range states {
		learnerID := st.LearnerID
		g.Go(func() error {
			updated, err := s.completeLearner(ctx, learnerID, courseID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				if result.Failed == nil {
					result.Failed = make(map[string]string)
				}
				result.Failed[learnerID] = err.Error()
				slog.Warn("bulk completion failed for learner",
					"learner_id", learnerID,
					"course_id", courseID,
					"error", err,
				)
			case updated:
				result.Updated = append(result.Updated, learnerID)
			default:
				result.Skipped = append(result.Skipped, learnerID)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(result.Updated)
	sort.Strings(result.Skipped)
	slog.Info("course marked completed",
		"course_id", courseID,
		"updated", len(result.Updated),
		"skipped", len(result.Skipped),
		"failed", len(result.Failed),
	)
	return result, nil
}

// completeLearner marks one learner completed if their stored progress allows
// it. It reports whether the state was changed.
func (s *Service) completeLearner(ctx context.Context, learnerID, courseID string) (bool, error) {
	for attempt := 0; ; attempt++ {
		st, err := s.states.Get(ctx, learnerID, courseID)
		if err != nil {
			return false, err
		}
		if st.Completed || st.Progress < CompletionThreshold {
			return false, nil
		}
		now := s.now()
		next := st.Clone()
		next.Completed = true
		next.CompletionDate = &now

		err = s.states.Save(ctx, next)
		if errors.Is(err, ErrConflict) && attempt < s.saveRetries {
			continue
		}
		if err != nil {
			return false, persistErr(err)
		}
		return true, nil
	}
}

// CompletedLearner is one row of the completed-learners report.
type CompletedLearner struct {
	LearnerID               string     `json:"learner_id"`
	Progress                int        `json:"progress"`
	StartDate               time.Time  `json:"start_date"`
	CompletionDate          *time.Time `json:"completion_date,omitempty"`
	CompletedAfterAdminMark bool       `json:"completed_after_admin_mark"`
	AdminMarkCompletedAt    *time.Time `json:"admin_mark_completed_at,omitempty"`
}

// CompletedLearners lists learners with the completed flag set.
func (s *Service) CompletedLearners(ctx context.Context, courseID string) ([]CompletedLearner, error) {
	if _, err := s.courses.CompletionFlag(ctx, courseID); err != nil {
		return nil, lookupErr("completed learners", err)
	}
	states, err := s.states.ListByCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("completed learners: %w", err)
	}

	out := []CompletedLearner{}
	for _, st := range states {
		if !st.Completed {
			continue
		}
		out = append(out, CompletedLearner{
			LearnerID:               st.LearnerID,
			Progress:                st.Progress,
			StartDate:               st.StartDate,
			CompletionDate:          st.CompletionDate,
			CompletedAfterAdminMark: st.CompletedAfterAdminMark != nil,
			AdminMarkCompletedAt:    st.CompletedAfterAdminMark,
		})
	}
	return out, nil
}
