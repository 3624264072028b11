// Package quiz holds quizzes, learner attempts and the per-course index
// that groups quizzes under the subchapter they belong to.
package quiz

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// PassThreshold is the percentage a best attempt must reach to count as passed,
// independent of the quiz's own passing score.
const PassThreshold = 70.0

// ErrInvalidAnswers is returned when the answer sheet does not match the quiz.
var ErrInvalidAnswers = errors.New("invalid answers")

// Question is a single multiple-choice question.
type Question struct {
	Text    string   `json:"text" yaml:"text"`
	Options []string `json:"options" yaml:"options"`
	Answer  int      `json:"answer" yaml:"answer"`
}

// Quiz belongs to one course and, by title convention, one subchapter.
type Quiz struct {
	ID           string     `json:"id" yaml:"id"`
	CourseID     string     `json:"course_id" yaml:"course_id"`
	Title        string     `json:"title" yaml:"title"`
	Subchapter   string     `json:"subchapter,omitempty" yaml:"subchapter,omitempty"`
	PassingScore float64    `json:"passing_score" yaml:"passing_score"`
	Questions    []Question `json:"questions" yaml:"questions"`
}

// Attempt is one graded submission of a quiz by a learner.
type Attempt struct {
	ID          string    `json:"id"`
	QuizID      string    `json:"quiz_id"`
	LearnerID   string    `json:"learner_id"`
	CourseID    string    `json:"course_id"`
	Score       int       `json:"score"`
	MaxScore    int       `json:"max_score"`
	Percentage  float64   `json:"percentage"`
	Passed      bool      `json:"passed"`
	CompletedAt time.Time `json:"completed_at"`
}

// Valid reports whether the percentage lies within 0..100.
func (a Attempt) Valid() bool {
	return a.Percentage >= 0 && a.Percentage <= 100
}

// Counts reports whether the attempt meets the site-wide pass condition.
func (a Attempt) Counts() bool {
	return a.Valid() && a.Passed && a.Percentage >= PassThreshold
}

// Grade scores answers against the quiz. answers[i] is the chosen option of
// question i. The attempt's own pass flag uses the quiz passing score,
// defaulting to PassThreshold when unset.
func (q Quiz) Grade(answers []int) (Attempt, error) {
	if len(answers) != len(q.Questions) {
		return Attempt{}, fmt.Errorf("%w: got %d answers for %d questions", ErrInvalidAnswers, len(answers), len(q.Questions))
	}
	score := 0
	for i, question := range q.Questions {
		if answers[i] == question.Answer {
			score++
		}
	}

	var pct float64
	if len(q.Questions) > 0 {
		pct = math.Round(100 * float64(score) / float64(len(q.Questions)))
	}
	passing := q.PassingScore
	if passing <= 0 {
		passing = PassThreshold
	}
	return Attempt{
		QuizID:     q.ID,
		CourseID:   q.CourseID,
		Score:      score,
		MaxScore:   len(q.Questions),
		Percentage: pct,
		Passed:     pct >= passing,
	}, nil
}
