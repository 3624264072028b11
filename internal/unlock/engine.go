// Package unlock decides which chapters, subchapters and sections of a course
// a learner may open, given completed sections and passed quizzes.
package unlock

import (
	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// Lock reasons shown to learners.
const (
	ReasonPreviousChapter    = "Complete the previous chapter to unlock"
	ReasonPreviousSubchapter = "Complete the previous subchapter to unlock"
	ReasonPreviousSection    = "Complete the previous section to unlock"
	ReasonPendingQuizzes     = "Complete all quizzes with at least 70% score to unlock"
	ReasonLocked             = "Locked"
)

// QuizGate reports quiz ownership and pass state per subchapter title.
// *quiz.Index satisfies it.
type QuizGate interface {
	QuizzesFor(subchapterTitle string) []quiz.Quiz
	AllPassed(subchapterTitle string) bool
}

// Engine evaluates the sequential unlock policy for one learner. It holds no
// mutable state and is rebuilt after every change.
type Engine struct {
	tree    *course.Tree
	done    course.SectionSet
	quizzes QuizGate
}

// New creates an engine. A nil gate means the course has no quizzes.
func New(tree *course.Tree, done course.SectionSet, quizzes QuizGate) *Engine {
	if quizzes == nil {
		quizzes = quiz.BuildIndex(nil, tree, nil)
	}
	if done == nil {
		done = course.SectionSet{}
	}
	return &Engine{tree: tree, done: done, quizzes: quizzes}
}

// subchapterDone reports whether every section of the subchapter is completed
// and all its quizzes are passed.
func (e *Engine) subchapterDone(ch, sub int) bool {
	s, ok := e.tree.Subchapter(ch, sub)
	if !ok {
		return false
	}
	for k := range s.Sections {
		if !e.done.Has(course.Address{Chapter: ch, Subchapter: sub, Section: k}) {
			return false
		}
	}
	return e.quizzes.AllPassed(s.Title)
}

// ChapterUnlocked reports whether chapter i is open. Chapter 0 always is;
// chapter i>0 needs every subchapter of chapter i-1 done.
func (e *Engine) ChapterUnlocked(i int) bool {
	if i == 0 {
		return true
	}
	if i < 0 || i >= len(e.tree.Chapters) {
		return false
	}
	for sub := range e.tree.Chapters[i-1].Subchapters {
		if !e.subchapterDone(i-1, sub) {
			return false
		}
	}
	return true
}

// SubchapterUnlocked reports whether subchapter sub of chapter ch is open.
func (e *Engine) SubchapterUnlocked(ch, sub int) bool {
	if ch == 0 && sub == 0 {
		return true
	}
	if !e.ChapterUnlocked(ch) {
		return false
	}
	if sub == 0 {
		return true
	}
	if _, ok := e.tree.Subchapter(ch, sub); !ok {
		return false
	}
	return e.subchapterDone(ch, sub-1)
}

// SectionAccessible reports whether the section may be opened.
func (e *Engine) SectionAccessible(a course.Address) bool {
	return e.LockReason(a) == ""
}

// LockReason returns why the section is locked, or "" when it is accessible.
func (e *Engine) LockReason(a course.Address) string {
	if a == (course.Address{}) {
		return ""
	}
	if _, ok := e.tree.Section(a); !ok {
		return ReasonLocked
	}
	if !e.ChapterUnlocked(a.Chapter) {
		return ReasonPreviousChapter
	}
	if !e.SubchapterUnlocked(a.Chapter, a.Subchapter) {
		return ReasonPreviousSubchapter
	}
	if a.Section == 0 {
		return ""
	}
	if !e.done.Has(course.Address{Chapter: a.Chapter, Subchapter: a.Subchapter, Section: a.Section - 1}) {
		return ReasonPreviousSection
	}
	sub, _ := e.tree.Subchapter(a.Chapter, a.Subchapter)
	if len(e.quizzes.QuizzesFor(sub.Title)) > 0 && !e.quizzes.AllPassed(sub.Title) {
		return ReasonPendingQuizzes
	}
	return ""
}

// QuizAccessible reports whether the quizzes of a subchapter may be attempted:
// the subchapter is open and its last section is completed.
func (e *Engine) QuizAccessible(ch, sub int) bool {
	s, ok := e.tree.Subchapter(ch, sub)
	if !ok || !e.SubchapterUnlocked(ch, sub) {
		return false
	}
	if len(s.Sections) == 0 {
		return true
	}
	return e.done.Has(course.Address{Chapter: ch, Subchapter: sub, Section: len(s.Sections) - 1})
}
