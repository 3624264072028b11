package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/unlock"
)

// noTrigger is an address outside every tree, so Diff reports all changes.
var noTrigger = course.Address{Chapter: -1, Subchapter: -1, Section: -1}

// QuizOutcome is the result of SubmitQuiz.
type QuizOutcome struct {
	Outcome
	Attempt quiz.Attempt `json:"attempt"`
	Passed  bool         `json:"passed"`
}

// SubmitQuiz forwards answers to the quiz provider, which grades and stores
// the attempt, then refreshes the learner's quiz results and progress.
func (s *Service) SubmitQuiz(ctx context.Context, learnerID, courseID, quizID string, answers []int) (*QuizOutcome, error) {
	st, err := s.states.Get(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("submit quiz: %w", err)
	}
	cc, err := s.load(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	q, ok := cc.quiz(quizID)
	if !ok {
		return nil, fmt.Errorf("%w: quiz %s in course %s", ErrNotFound, quizID, courseID)
	}
	if !cc.quizAccessible(st, q) {
		slog.Warn("quiz submitted before its subchapter was finished",
			"learner_id", learnerID,
			"course_id", courseID,
			"quiz_id", quizID,
		)
	}

	attempt, err := s.quizzes.SubmitAttempt(ctx, learnerID, quizID, answers)
	if err != nil {
		return nil, lookupErr("submit quiz", err)
	}
	if !attempt.Valid() {
		return nil, fmt.Errorf("%w: quiz %s scored %v%%", ErrInvalidScore, quizID, attempt.Percentage)
	}
	after := cc.withAttempt(attempt)

	for try := 0; ; try++ {
		if try > 0 {
			if st, err = s.states.Get(ctx, learnerID, courseID); err != nil {
				return nil, fmt.Errorf("submit quiz: %w", err)
			}
		}
		out, err := s.applyAttempt(ctx, cc, after, st)
		if errors.Is(err, ErrConflict) && try < s.saveRetries {
			continue
		}
		if err != nil {
			return nil, persistErr(err)
		}
		s.publish(ctx, learnerID, courseID, out.Unlocked)
		slog.Info("quiz submitted",
			"learner_id", learnerID,
			"course_id", courseID,
			"quiz_id", quizID,
			"percentage", attempt.Percentage,
			"passed", after.index.Passed(quizID),
		)
		return &QuizOutcome{Outcome: *out, Attempt: attempt, Passed: attempt.Counts()}, nil
	}
}

func (s *Service) applyAttempt(ctx context.Context, before, after *courseContext, st *State) (*Outcome, error) {
	before.reconcile(st)
	snapshot := before.engine(st).Snapshot()

	now := s.now()
	next := st.Clone()
	after.reconcile(next)
	next.Progress = after.aggregator(next).Overall()
	next.LastAccessDate = now
	s.applyCompletion(after.flag, next, false, now)

	changes := unlock.Diff(after.tree, snapshot, after.engine(next).Snapshot(), noTrigger)
	if err := s.states.Save(ctx, next); err != nil {
		return nil, err
	}
	return &Outcome{State: next, Unlocked: changes, Changed: true}, nil
}
