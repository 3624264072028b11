// Package enrollment owns learner course state and the single mutation path
// that records progress, grants completion and announces newly unlocked content.
package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/progress"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/unlock"
)

const (
	defaultSaveRetries     = 3
	defaultBulkConcurrency = 8

	// CompletionThreshold is the stored progress a learner needs to be
	// completed by an administrator marking the course complete.
	CompletionThreshold = 70
)

// ServiceConfig holds dependencies for the service.
type ServiceConfig struct {
	Courses         course.Store
	Quizzes         quiz.Provider
	States          StateStore
	Notifier        notify.Sink
	SaveRetries     int // retries after a version conflict (default 3)
	BulkConcurrency int // parallel learner updates in SetCourseCompletion (default 8)
	Now             func() time.Time
}

// Service is the only writer of learner course state.
type Service struct {
	courses         course.Store
	quizzes         quiz.Provider
	states          StateStore
	notifier        notify.Sink
	saveRetries     int
	bulkConcurrency int
	now             func() time.Time
}

// NewService creates a service. Missing stores default to in-memory ones.
func NewService(cfg ServiceConfig) *Service {
	courses := cfg.Courses
	if courses == nil {
		courses = course.NewMemoryStore()
	}
	quizzes := cfg.Quizzes
	if quizzes == nil {
		quizzes = quiz.NewMemoryStore()
	}
	states := cfg.States
	if states == nil {
		states = NewMemoryStore()
	}
	notifier := cfg.Notifier
	if notifier == nil {
		notifier = notify.NopSink{}
	}
	retries := cfg.SaveRetries
	if retries == 0 {
		retries = defaultSaveRetries
	}
	concurrency := cfg.BulkConcurrency
	if concurrency == 0 {
		concurrency = defaultBulkConcurrency
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		courses:         courses,
		quizzes:         quizzes,
		states:          states,
		notifier:        notifier,
		saveRetries:     retries,
		bulkConcurrency: concurrency,
		now:             now,
	}
}

// Outcome is the result of a mutation.
type Outcome struct {
	State    *State          `json:"state"`
	Unlocked []unlock.Change `json:"unlocked"`
	Changed  bool            `json:"changed"`
}

// courseContext is everything loaded for one course and one learner. It is
// built per request and never shared.
type courseContext struct {
	tree     *course.Tree
	flag     course.CompletionFlag
	quizzes  []quiz.Quiz
	attempts []quiz.Attempt
	index    *quiz.Index
	hash     string
}

func (s *Service) load(ctx context.Context, learnerID, courseID string) (*courseContext, error) {
	cc := &courseContext{}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		tree, err := s.courses.ContentTree(gctx, courseID)
		if err != nil {
			return lookupErr("load content tree", err)
		}
		cc.tree = tree
		return nil
	})
	g.Go(func() error {
		flag, err := s.courses.CompletionFlag(gctx, courseID)
		if err != nil {
			return lookupErr("load completion flag", err)
		}
		cc.flag = flag
		return nil
	})
	g.Go(func() error {
		quizzes, err := s.quizzes.QuizzesForCourse(gctx, courseID)
		if err != nil {
			return lookupErr("load quizzes", err)
		}
		cc.quizzes = quizzes
		return nil
	})
	g.Go(func() error {
		attempts, err := s.quizzes.QuizAttempts(gctx, learnerID, courseID)
		if err != nil {
			return lookupErr("load quiz attempts", err)
		}
		cc.attempts = attempts
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	cc.index = quiz.BuildIndex(cc.quizzes, cc.tree, cc.attempts)
	cc.hash = course.Fingerprint(cc.tree)
	return cc, nil
}

// withAttempt returns a copy of cc whose index includes one more attempt.
func (cc *courseContext) withAttempt(a quiz.Attempt) *courseContext {
	next := *cc
	next.attempts = append(append([]quiz.Attempt(nil), cc.attempts...), a)
	next.index = quiz.BuildIndex(next.quizzes, next.tree, next.attempts)
	return &next
}

func (cc *courseContext) engine(st *State) *unlock.Engine {
	return unlock.New(cc.tree, st.CompletedSections, cc.index)
}

func (cc *courseContext) aggregator(st *State) progress.Aggregator {
	return progress.Aggregator{
		Tree:     cc.tree,
		Sections: st.CompletedSections,
		Quizzes:  cc.index,
		Scores:   st.CompletedQuizzes,
	}
}

// reconcile re-derives the cached quiz results from the provider's attempts
// and records the structure the positional keys refer to.
func (cc *courseContext) reconcile(st *State) {
	st.CompletedQuizzes = cc.index.Scores()
	st.QuizScores = cc.index.BestScores()
	if st.StructureHash != "" && st.StructureHash != cc.hash {
		slog.Warn("course structure changed since progress was recorded",
			"learner_id", st.LearnerID,
			"course_id", st.CourseID,
			"completed_sections", len(st.CompletedSections),
		)
	}
	st.StructureHash = cc.hash
}

func (cc *courseContext) quiz(id string) (quiz.Quiz, bool) {
	for _, q := range cc.quizzes {
		if q.ID == id {
			return q, true
		}
	}
	return quiz.Quiz{}, false
}

// quizAccessible reports whether any subchapter owning q has its last section
// completed.
func (cc *courseContext) quizAccessible(st *State, q quiz.Quiz) bool {
	owner := quiz.OwnerTitle(q, cc.tree)
	e := cc.engine(st)
	for ci, ch := range cc.tree.Chapters {
		for si, sub := range ch.Subchapters {
			if sub.Title == owner && e.QuizAccessible(ci, si) {
				return true
			}
		}
	}
	return false
}

// shouldComplete is the completion rule: the administrator gate must be set,
// and the learner must have reached the last section or 100%.
func shouldComplete(flag course.CompletionFlag, isLastSection bool, progress int) bool {
	return flag.IsCompleted && (isLastSection || progress == 100)
}

func (s *Service) applyCompletion(flag course.CompletionFlag, st *State, isLastSection bool, now time.Time) {
	if st.Completed || !shouldComplete(flag, isLastSection, st.Progress) {
		return
	}
	st.Completed = true
	st.CompletionDate = &now
	if st.CompletedAfterAdminMark == nil {
		mark := now
		st.CompletedAfterAdminMark = &mark
	}
	slog.Info("course completed",
		"learner_id", st.LearnerID,
		"course_id", st.CourseID,
		"progress", st.Progress,
	)
}

// RecordSectionViewed marks a section completed. Viewing an already completed
// section returns the current state unchanged.
func (s *Service) RecordSectionViewed(ctx context.Context, learnerID, courseID string, addr course.Address) (*Outcome, error) {
	var cc *courseContext
	for attempt := 0; ; attempt++ {
		st, err := s.states.Get(ctx, learnerID, courseID)
		if err != nil {
			return nil, fmt.Errorf("record section viewed: %w", err)
		}
		if st.CompletedSections.Has(addr) {
			return &Outcome{State: st}, nil
		}
		if cc == nil {
			if cc, err = s.load(ctx, learnerID, courseID); err != nil {
				return nil, err
			}
		}

		out, err := s.applyView(ctx, cc, st, addr)
		if errors.Is(err, ErrConflict) && attempt < s.saveRetries {
			slog.Warn("enrollment changed concurrently, retrying",
				"learner_id", learnerID,
				"course_id", courseID,
				"attempt", attempt+1,
			)
			continue
		}
		if err != nil {
			return nil, persistErr(err)
		}
		s.publish(ctx, learnerID, courseID, out.Unlocked)
		return out, nil
	}
}

func (s *Service) applyView(ctx context.Context, cc *courseContext, st *State, addr course.Address) (*Outcome, error) {
	if _, ok := cc.tree.Section(addr); !ok {
		return nil, fmt.Errorf("%w: section %s in course %s", ErrNotFound, addr, st.CourseID)
	}
	cc.reconcile(st)

	before := cc.engine(st)
	if reason := before.LockReason(addr); reason != "" {
		return nil, &LockedError{Address: addr, Reason: reason}
	}
	snapshot := before.Snapshot()

	now := s.now()
	next := st.Clone()
	next.CompletedSections.Add(addr)
	next.Progress = cc.aggregator(next).Overall()
	next.CurrentLesson = addr.String()
	next.LastAccessDate = now
	s.applyCompletion(cc.flag, next, cc.tree.IsLastSection(addr), now)

	changes := unlock.Diff(cc.tree, snapshot, cc.engine(next).Snapshot(), addr)

	if err := s.states.Save(ctx, next); err != nil {
		return nil, err
	}
	slog.Info("section viewed",
		"learner_id", next.LearnerID,
		"course_id", next.CourseID,
		"section", addr.String(),
		"progress", next.Progress,
		"unlocked", len(changes),
	)
	return &Outcome{State: next, Unlocked: changes, Changed: true}, nil
}

// publish delivers unlock events after a successful save. Delivery failures
// are logged and never undo the mutation.
func (s *Service) publish(ctx context.Context, learnerID, courseID string, changes []unlock.Change) {
	for _, c := range changes {
		event := notify.NewEvent(learnerID, courseID, string(c.Kind), c.Title, c.Address.String())
		if err := s.notifier.Notify(ctx, event); err != nil {
			slog.Warn("unlock notification failed",
				"learner_id", learnerID,
				"course_id", courseID,
				"kind", c.Kind,
				"error", err,
			)
		}
	}
}

// Enroll creates an empty state for the learner.
func (s *Service) Enroll(ctx context.Context, learnerID, courseID string) (*State, error) {
	tree, err := s.courses.ContentTree(ctx, courseID)
	if err != nil {
		return nil, lookupErr("enroll", err)
	}
	st := NewState(learnerID, courseID, s.now())
	st.StructureHash = course.Fingerprint(tree)
	if err := s.states.Create(ctx, st); err != nil {
		if errors.Is(err, ErrAlreadyEnrolled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	slog.Info("learner enrolled", "learner_id", learnerID, "course_id", courseID)
	return st, nil
}

// Uncomplete clears the learner's completed flag and completion date.
func (s *Service) Uncomplete(ctx context.Context, learnerID, courseID string) (*State, error) {
	for attempt := 0; ; attempt++ {
		st, err := s.states.Get(ctx, learnerID, courseID)
		if err != nil {
			return nil, fmt.Errorf("uncomplete: %w", err)
		}
		if !st.Completed {
			return st, nil
		}
		next := st.Clone()
		next.Completed = false
		next.CompletionDate = nil
		next.LastAccessDate = s.now()

		err = s.states.Save(ctx, next)
		if errors.Is(err, ErrConflict) && attempt < s.saveRetries {
			continue
		}
		if err != nil {
			return nil, persistErr(err)
		}
		slog.Info("course uncompleted", "learner_id", learnerID, "course_id", courseID)
		return next, nil
	}
}

// persistErr classifies a failed save. Not-found passes through; anything
// else, including an exhausted conflict, is a persistence failure.
func persistErr(err error) error {
	var locked *LockedError
	switch {
	case errors.As(err, &locked), errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalidScore), errors.Is(err, ErrPersistence):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
}

// lookupErr maps provider not-found errors to ErrNotFound.
func lookupErr(op string, err error) error {
	if errors.Is(err, course.ErrNotFound) || errors.Is(err, quiz.ErrNotFound) || errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
