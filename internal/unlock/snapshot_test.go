package unlock_test

import (
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/unlock"
)

func TestDiff_NewlyUnlocked(t *testing.T) {
	tree := buildTree([]int{2, 1})

	before := unlock.New(tree, course.NewSectionSet("0-0-0"), nil).Snapshot()
	after := unlock.New(tree, course.NewSectionSet("0-0-0", "0-0-1"), nil).Snapshot()

	changes := unlock.Diff(tree, before, after, addr(0, 0, 1))
	if len(changes) != 2 {
		t.Fatalf("Diff() = %+v, want 2 changes", changes)
	}
	if changes[0].Kind != unlock.KindSubchapter || changes[0].Title != "S0.1" {
		t.Errorf("changes[0] = %+v, want subchapter S0.1", changes[0])
	}
	if changes[1].Kind != unlock.KindSection || changes[1].Address != addr(0, 1, 0) {
		t.Errorf("changes[1] = %+v, want section 0-1-0", changes[1])
	}
}

func TestDiff_ExcludesTrigger(t *testing.T) {
	tree := buildTree([]int{3})

	before := unlock.New(tree, course.NewSectionSet(), nil).Snapshot()
	after := unlock.New(tree, course.NewSectionSet("0-0-0"), nil).Snapshot()

	changes := unlock.Diff(tree, before, after, addr(0, 0, 1))
	if len(changes) != 0 {
		t.Errorf("Diff() = %+v, want none", changes)
	}

	changes = unlock.Diff(tree, before, after, addr(0, 0, 0))
	if len(changes) != 1 || changes[0].Address != addr(0, 0, 1) {
		t.Errorf("Diff() = %+v, want section 0-0-1", changes)
	}
}

func TestDiff_ChapterBoundary(t *testing.T) {
	tree := buildTree([]int{1}, []int{1})

	before := unlock.New(tree, course.NewSectionSet(), nil).Snapshot()
	after := unlock.New(tree, course.NewSectionSet("0-0-0"), nil).Snapshot()

	changes := unlock.Diff(tree, before, after, addr(0, 0, 0))
	want := []unlock.Kind{unlock.KindChapter, unlock.KindSubchapter, unlock.KindSection}
	if len(changes) != len(want) {
		t.Fatalf("Diff() = %+v, want %d changes", changes, len(want))
	}
	for i, k := range want {
		if changes[i].Kind != k {
			t.Errorf("changes[%d].Kind = %s, want %s", i, changes[i].Kind, k)
		}
	}
	if changes[0].Title != "Chapter B" {
		t.Errorf("chapter title = %q, want Chapter B", changes[0].Title)
	}
}
