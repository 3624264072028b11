// Package catalog loads course documents from YAML files and syncs them
// into the course and quiz stores.
package catalog

import (
	"fmt"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/quiz"
)

// Document is one course file: the content tree, its quizzes and an
// optional initial completion gate.
type Document struct {
	CourseID   string                 `yaml:"course_id"`
	Title      string                 `yaml:"title"`
	Completion *course.CompletionFlag `yaml:"completion,omitempty"`
	Chapters   []course.Chapter       `yaml:"chapters"`
	Quizzes    []quiz.Quiz            `yaml:"quizzes"`
}

// Tree returns the normalized content tree of the document. Nodes without an
// id get one derived from their position, so repeated syncs are stable.
func (d Document) Tree() *course.Tree {
	src := &course.Tree{CourseID: d.CourseID, Title: d.Title, Chapters: d.Chapters}
	t := src.Clone()
	for ci := range t.Chapters {
		ch := &t.Chapters[ci]
		if ch.ID == "" {
			ch.ID = fmt.Sprintf("%s-%d", d.CourseID, ci)
		}
		for si := range ch.Subchapters {
			sub := &ch.Subchapters[si]
			if sub.ID == "" {
				sub.ID = fmt.Sprintf("%s-%d", ch.ID, si)
			}
			for ki := range sub.Sections {
				if sub.Sections[ki].ID == "" {
					sub.Sections[ki].ID = fmt.Sprintf("%s-%d", sub.ID, ki)
				}
			}
		}
	}
	t.Normalize()
	return t
}

func (d Document) validate() error {
	for _, q := range d.Quizzes {
		for i, question := range q.Questions {
			if question.Answer >= len(question.Options) {
				return fmt.Errorf("quiz %s question %d: answer %d out of range", q.ID, i, question.Answer)
			}
		}
	}
	return nil
}
