package enrollment

import (
	"maps"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
)

// State is one learner's progress through one course.
type State struct {
	LearnerID               string             `json:"learner_id"`
	CourseID                string             `json:"course_id"`
	Progress                int                `json:"progress"`
	Completed               bool               `json:"completed"`
	CompletionDate          *time.Time         `json:"completion_date,omitempty"`
	CompletedAfterAdminMark *time.Time         `json:"completed_after_admin_mark,omitempty"`
	CompletedSections       course.SectionSet  `json:"completed_sections"`
	CompletedQuizzes        map[string]float64 `json:"completed_quizzes"`
	QuizScores              map[string]float64 `json:"quiz_scores"`
	CurrentLesson           string             `json:"current_lesson,omitempty"`
	StartDate               time.Time          `json:"start_date"`
	LastAccessDate          time.Time          `json:"last_access_date"`
	StructureHash           string             `json:"structure_hash,omitempty"`
	Version                 int64              `json:"version"`
}

// NewState returns the state created at enrollment: empty sets, 0 progress.
func NewState(learnerID, courseID string, now time.Time) *State {
	return &State{
		LearnerID:         learnerID,
		CourseID:          courseID,
		CompletedSections: course.NewSectionSet(),
		CompletedQuizzes:  map[string]float64{},
		QuizScores:        map[string]float64{},
		StartDate:         now,
		LastAccessDate:    now,
	}
}

// Clone returns an independent copy.
func (s *State) Clone() *State {
	out := *s
	out.CompletedSections = s.CompletedSections.Clone()
	out.CompletedQuizzes = maps.Clone(s.CompletedQuizzes)
	out.QuizScores = maps.Clone(s.QuizScores)
	if out.CompletedQuizzes == nil {
		out.CompletedQuizzes = map[string]float64{}
	}
	if out.QuizScores == nil {
		out.QuizScores = map[string]float64{}
	}
	if s.CompletionDate != nil {
		t := *s.CompletionDate
		out.CompletionDate = &t
	}
	if s.CompletedAfterAdminMark != nil {
		t := *s.CompletedAfterAdminMark
		out.CompletedAfterAdminMark = &t
	}
	return &out
}

func (s *State) key() string {
	return s.LearnerID + "/" + s.CourseID
}
