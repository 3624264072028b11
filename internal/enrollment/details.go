package enrollment

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// Details is the read model used to render a course and to rebuild unlock
// state when a session resumes.
type Details struct {
	LearnerID         string             `json:"learner_id"`
	CourseID          string             `json:"course_id"`
	Progress          int                `json:"progress"`
	Completed         bool               `json:"completed"`
	CompletionDate    *time.Time         `json:"completion_date,omitempty"`
	CompletedSections course.SectionSet  `json:"completed_sections"`
	CompletedQuizzes  map[string]float64 `json:"completed_quizzes"`
	BestAttempts      []quiz.Attempt     `json:"best_attempts"`
	CurrentLesson     string             `json:"current_lesson,omitempty"`
	StartDate         time.Time          `json:"start_date"`
	LastAccessDate    time.Time          `json:"last_access_date"`
}

// GetUserCourseDetails returns the learner's state with quiz results derived
// from the current attempts. Nothing is written.
func (s *Service) GetUserCourseDetails(ctx context.Context, learnerID, courseID string) (*Details, error) {
	st, err := s.states.Get(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course details: %w", err)
	}
	cc, err := s.load(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	cc.reconcile(st)

	var best []quiz.Attempt
	for _, q := range cc.quizzes {
		if a, ok := cc.index.BestAttempt(q.ID); ok {
			best = append(best, a)
		}
	}
	sort.Slice(best, func(i, j int) bool { return best[i].QuizID < best[j].QuizID })

	return &Details{
		LearnerID:         st.LearnerID,
		CourseID:          st.CourseID,
		Progress:          cc.aggregator(st).Overall(),
		Completed:         st.Completed,
		CompletionDate:    st.CompletionDate,
		CompletedSections: st.CompletedSections,
		CompletedQuizzes:  st.CompletedQuizzes,
		BestAttempts:      best,
		CurrentLesson:     st.CurrentLesson,
		StartDate:         st.StartDate,
		LastAccessDate:    st.LastAccessDate,
	}, nil
}

// View is a fully evaluated course for one learner.
type View struct {
	CourseID        string        `json:"course_id"`
	Title           string        `json:"title"`
	Progress        int           `json:"progress"`
	Completed       bool          `json:"completed"`
	CourseCompleted bool          `json:"course_completed"`
	Announcement    string        `json:"announcement,omitempty"`
	Chapters        []ChapterView `json:"chapters"`
}

type ChapterView struct {
	Title       string           `json:"title"`
	Unlocked    bool             `json:"unlocked"`
	Progress    int              `json:"progress"`
	Subchapters []SubchapterView `json:"subchapters"`
}

type SubchapterView struct {
	Title    string        `json:"title"`
	Unlocked bool          `json:"unlocked"`
	Progress int           `json:"progress"`
	Sections []SectionView `json:"sections"`
	Quizzes  []QuizView    `json:"quizzes"`
}

type SectionView struct {
	Title      string `json:"title"`
	Address    string `json:"address"`
	VideoURL   string `json:"video_url,omitempty"`
	Accessible bool   `json:"accessible"`
	Completed  bool   `json:"completed"`
	LockReason string `json:"lock_reason,omitempty"`
}

type QuizView struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Accessible bool    `json:"accessible"`
	Attempted  bool    `json:"attempted"`
	BestScore  float64 `json:"best_score"`
	Passed     bool    `json:"passed"`
}

// CourseView evaluates every node of the course for the learner.
func (s *Service) CourseView(ctx context.Context, learnerID, courseID string) (*View, error) {
	st, err := s.states.Get(ctx, learnerID, courseID)
	if err != nil {
		return nil, fmt.Errorf("course view: %w", err)
	}
	cc, err := s.load(ctx, learnerID, courseID)
	if err != nil {
		return nil, err
	}
	cc.reconcile(st)
	e := cc.engine(st)
	agg := cc.aggregator(st)

	v := &View{
		CourseID:        courseID,
		Title:           cc.tree.Title,
		Progress:        agg.Overall(),
		Completed:       st.Completed,
		CourseCompleted: cc.flag.IsCompleted,
		Announcement:    cc.flag.Announcement,
	}
	for ci, ch := range cc.tree.Chapters {
		cv := ChapterView{Title: ch.Title, Unlocked: e.ChapterUnlocked(ci), Progress: agg.Chapter(ci)}
		for si, sub := range ch.Subchapters {
			sv := SubchapterView{Title: sub.Title, Unlocked: e.SubchapterUnlocked(ci, si), Progress: agg.Subchapter(ci, si)}
			for ki, sec := range sub.Sections {
				addr := course.Address{Chapter: ci, Subchapter: si, Section: ki}
				reason := e.LockReason(addr)
				sv.Sections = append(sv.Sections, SectionView{
					Title:      sec.Title,
					Address:    addr.String(),
					VideoURL:   sec.VideoURL,
					Accessible: reason == "",
					Completed:  st.CompletedSections.Has(addr),
					LockReason: reason,
				})
			}
			quizOpen := e.QuizAccessible(ci, si)
			for _, q := range cc.index.QuizzesFor(sub.Title) {
				_, attempted := cc.index.BestAttempt(q.ID)
				sv.Quizzes = append(sv.Quizzes, QuizView{
					ID:         q.ID,
					Title:      q.Title,
					Accessible: quizOpen,
					Attempted:  attempted,
					BestScore:  cc.index.BestScore(q.ID),
					Passed:     cc.index.Passed(q.ID),
				})
			}
			cv.Subchapters = append(cv.Subchapters, sv)
		}
		v.Chapters = append(v.Chapters, cv)
	}
	return v, nil
}
