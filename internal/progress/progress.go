// Package progress computes completion percentages over a content tree.
// Overall, chapter and subchapter progress are the same aggregation applied
// to a narrower scope.
package progress

import (
	"math"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// QuizLister returns the quizzes owned by a subchapter title.
// *quiz.Index satisfies it.
type QuizLister interface {
	QuizzesFor(subchapterTitle string) []quiz.Quiz
}

// Aggregator counts completed sections and passed quizzes.
// Scores holds the cached best score of each completed quiz; only scores at
// or above quiz.PassThreshold count.
type Aggregator struct {
	Tree     *course.Tree
	Sections course.SectionSet
	Quizzes  QuizLister
	Scores   map[string]float64
}

// Counts is the raw tally behind a percentage.
type Counts struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Percent returns round(100*completed/total), or 0 for an empty scope.
func (c Counts) Percent() int {
	if c.Total == 0 {
		return 0
	}
	return int(math.Round(100 * float64(c.Completed) / float64(c.Total)))
}

type scope func(ch, sub int) bool

// Overall returns progress over the whole course.
func (a Aggregator) Overall() int {
	return a.count(func(int, int) bool { return true }).Percent()
}

// Chapter returns progress within one chapter.
func (a Aggregator) Chapter(ch int) int {
	return a.count(func(c, _ int) bool { return c == ch }).Percent()
}

// Subchapter returns progress within one subchapter.
func (a Aggregator) Subchapter(ch, sub int) int {
	return a.count(func(c, s int) bool { return c == ch && s == sub }).Percent()
}

// OverallCounts returns the raw course-wide tally.
func (a Aggregator) OverallCounts() Counts {
	return a.count(func(int, int) bool { return true })
}

func (a Aggregator) count(in scope) Counts {
	var c Counts
	if a.Tree == nil {
		return c
	}
	for ci, ch := range a.Tree.Chapters {
		for si, sub := range ch.Subchapters {
			if !in(ci, si) {
				continue
			}
			for k := range sub.Sections {
				c.Total++
				if a.Sections.Has(course.Address{Chapter: ci, Subchapter: si, Section: k}) {
					c.Completed++
				}
			}
			if a.Quizzes == nil {
				continue
			}
			for _, q := range a.Quizzes.QuizzesFor(sub.Title) {
				c.Total++
				if score, ok := a.Scores[q.ID]; ok && score >= quiz.PassThreshold {
					c.Completed++
				}
			}
		}
	}
	return c
}
