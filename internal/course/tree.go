package course

import (
	"fmt"

	"github.com/google/uuid"
)

// Section returns the section at the given address.
func (t *Tree) Section(a Address) (Section, bool) {
	sub, ok := t.Subchapter(a.Chapter, a.Subchapter)
	if !ok || a.Section < 0 || a.Section >= len(sub.Sections) {
		return Section{}, false
	}
	return sub.Sections[a.Section], true
}

// Subchapter returns the subchapter at the given chapter/subchapter position.
func (t *Tree) Subchapter(chapter, subchapter int) (Subchapter, bool) {
	if chapter < 0 || chapter >= len(t.Chapters) {
		return Subchapter{}, false
	}
	subs := t.Chapters[chapter].Subchapters
	if subchapter < 0 || subchapter >= len(subs) {
		return Subchapter{}, false
	}
	return subs[subchapter], true
}

// Walk calls fn for every section in position order. Returning false stops the walk.
func (t *Tree) Walk(fn func(a Address, s Section) bool) {
	for ci, ch := range t.Chapters {
		for si, sub := range ch.Subchapters {
			for ki, sec := range sub.Sections {
				if !fn(Address{Chapter: ci, Subchapter: si, Section: ki}, sec) {
					return
				}
			}
		}
	}
}

// TotalSections counts every section in the tree.
func (t *Tree) TotalSections() int {
	n := 0
	for _, ch := range t.Chapters {
		for _, sub := range ch.Subchapters {
			n += len(sub.Sections)
		}
	}
	return n
}

// IsLastSection reports whether a is the final section of the final
// subchapter of the final chapter.
func (t *Tree) IsLastSection(a Address) bool {
	if len(t.Chapters) == 0 || a.Chapter != len(t.Chapters)-1 {
		return false
	}
	subs := t.Chapters[a.Chapter].Subchapters
	if len(subs) == 0 || a.Subchapter != len(subs)-1 {
		return false
	}
	return a.Section == len(subs[a.Subchapter].Sections)-1
}

// Normalize renumbers positions to match slice order and fills in the
// parent ids carried by each section.
func (t *Tree) Normalize() {
	for ci := range t.Chapters {
		ch := &t.Chapters[ci]
		ch.Position = ci
		for si := range ch.Subchapters {
			sub := &ch.Subchapters[si]
			sub.Position = si
			for ki := range sub.Sections {
				sec := &sub.Sections[ki]
				sec.Position = ki
				sec.ChapterID = ch.ID
				sec.SubchapterID = sub.ID
			}
		}
	}
}

// AppendChapter adds a chapter at the end, assigning ids to nodes that have none.
func (t *Tree) AppendChapter(ch Chapter) {
	if ch.ID == "" {
		ch.ID = uuid.NewString()
	}
	for si := range ch.Subchapters {
		if ch.Subchapters[si].ID == "" {
			ch.Subchapters[si].ID = uuid.NewString()
		}
		for ki := range ch.Subchapters[si].Sections {
			if ch.Subchapters[si].Sections[ki].ID == "" {
				ch.Subchapters[si].Sections[ki].ID = uuid.NewString()
			}
		}
	}
	t.Chapters = append(t.Chapters, ch)
	t.Normalize()
}

// DeleteChapter removes the chapter at index and renumbers the rest.
func (t *Tree) DeleteChapter(index int) error {
	if index < 0 || index >= len(t.Chapters) {
		return fmt.Errorf("chapter %d out of range", index)
	}
	t.Chapters = append(t.Chapters[:index], t.Chapters[index+1:]...)
	t.Normalize()
	return nil
}

// DeleteSubchapter removes a subchapter and renumbers its siblings.
func (t *Tree) DeleteSubchapter(chapter, index int) error {
	if _, ok := t.Subchapter(chapter, index); !ok {
		return fmt.Errorf("subchapter %d-%d out of range", chapter, index)
	}
	ch := &t.Chapters[chapter]
	ch.Subchapters = append(ch.Subchapters[:index], ch.Subchapters[index+1:]...)
	t.Normalize()
	return nil
}

// DeleteSection removes a section and renumbers its siblings.
func (t *Tree) DeleteSection(a Address) error {
	if _, ok := t.Section(a); !ok {
		return fmt.Errorf("section %s out of range", a)
	}
	sub := &t.Chapters[a.Chapter].Subchapters[a.Subchapter]
	sub.Sections = append(sub.Sections[:a.Section], sub.Sections[a.Section+1:]...)
	t.Normalize()
	return nil
}

// Clone returns a deep copy of the tree.
func (t *Tree) Clone() *Tree {
	out := &Tree{CourseID: t.CourseID, Title: t.Title}
	out.Chapters = make([]Chapter, len(t.Chapters))
	for ci, ch := range t.Chapters {
		c := ch
		c.Subchapters = make([]Subchapter, len(ch.Subchapters))
		for si, sub := range ch.Subchapters {
			s := sub
			s.Sections = append([]Section(nil), sub.Sections...)
			c.Subchapters[si] = s
		}
		out.Chapters[ci] = c
	}
	return out
}
