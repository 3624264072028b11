package unlock

import "github.com/p-n-ai/pai-course/internal/course"

// Kind is the level of a content node.
type Kind string

const (
	KindChapter    Kind = "chapter"
	KindSubchapter Kind = "subchapter"
	KindSection    Kind = "section"
)

// Change is a node that became unlocked between two snapshots.
// Address fields below the node's level are zero.
type Change struct {
	Kind    Kind           `json:"kind"`
	Title   string         `json:"title"`
	Address course.Address `json:"address"`
}

// Snapshot records the unlock state of every node of a tree.
type Snapshot struct {
	Chapters    []bool
	Subchapters [][]bool
	Sections    [][][]bool
}

// Snapshot evaluates every node of the tree.
func (e *Engine) Snapshot() Snapshot {
	var s Snapshot
	s.Chapters = make([]bool, len(e.tree.Chapters))
	s.Subchapters = make([][]bool, len(e.tree.Chapters))
	s.Sections = make([][][]bool, len(e.tree.Chapters))
	for ci, ch := range e.tree.Chapters {
		s.Chapters[ci] = e.ChapterUnlocked(ci)
		s.Subchapters[ci] = make([]bool, len(ch.Subchapters))
		s.Sections[ci] = make([][]bool, len(ch.Subchapters))
		for si, sub := range ch.Subchapters {
			s.Subchapters[ci][si] = e.SubchapterUnlocked(ci, si)
			s.Sections[ci][si] = make([]bool, len(sub.Sections))
			for ki := range sub.Sections {
				s.Sections[ci][si][ki] = e.SectionAccessible(course.Address{Chapter: ci, Subchapter: si, Section: ki})
			}
		}
	}
	return s
}

// Diff lists nodes locked in before and unlocked in after, in tree order.
// The section at trigger is never reported. Both snapshots must come from the
// same tree.
func Diff(tree *course.Tree, before, after Snapshot, trigger course.Address) []Change {
	var changes []Change
	for ci, ch := range tree.Chapters {
		if newly(before.Chapters, after.Chapters, ci) {
			changes = append(changes, Change{Kind: KindChapter, Title: ch.Title, Address: course.Address{Chapter: ci}})
		}
		for si, sub := range ch.Subchapters {
			if newly(at(before.Subchapters, ci), at(after.Subchapters, ci), si) {
				changes = append(changes, Change{
					Kind:    KindSubchapter,
					Title:   sub.Title,
					Address: course.Address{Chapter: ci, Subchapter: si},
				})
			}
			for ki, sec := range sub.Sections {
				addr := course.Address{Chapter: ci, Subchapter: si, Section: ki}
				if addr == trigger {
					continue
				}
				if newly(at(at(before.Sections, ci), si), at(at(after.Sections, ci), si), ki) {
					changes = append(changes, Change{Kind: KindSection, Title: sec.Title, Address: addr})
				}
			}
		}
	}
	return changes
}

func newly(before, after []bool, i int) bool {
	wasOpen := i < len(before) && before[i]
	isOpen := i < len(after) && after[i]
	return !wasOpen && isOpen
}

func at[T any](s []T, i int) T {
	var zero T
	if i < 0 || i >= len(s) {
		return zero
	}
	return s[i]
}
