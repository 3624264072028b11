package course_test

import (
	"encoding/json"
	"testing"

	"github.com/p-n-ai/pai-course/internal/course"
)

func sampleTree(sectionCounts ...[]int) *course.Tree {
	t := &course.Tree{CourseID: "c1", Title: "Course"}
	for ci, subs := range sectionCounts {
		ch := course.Chapter{ID: "ch" + itoa(ci), Title: "Chapter " + itoa(ci)}
		for si, n := range subs {
			sub := course.Subchapter{ID: ch.ID + "-s" + itoa(si), Title: "Sub " + itoa(ci) + "." + itoa(si)}
			for ki := 0; ki < n; ki++ {
				sub.Sections = append(sub.Sections, course.Section{ID: sub.ID + "-k" + itoa(ki), Title: "Section " + itoa(ki)})
			}
			ch.Subchapters = append(ch.Subchapters, sub)
		}
		t.Chapters = append(t.Chapters, ch)
	}
	t.Normalize()
	return t
}

func itoa(i int) string {
	return string(rune('0' + i))
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    course.Address
		wantErr bool
	}{
		{"valid", "1-2-3", course.Address{Chapter: 1, Subchapter: 2, Section: 3}, false},
		{"zeros", "0-0-0", course.Address{}, false},
		{"too few parts", "1-2", course.Address{}, true},
		{"not a number", "a-0-0", course.Address{}, true},
		{"negative", "0--1-0", course.Address{}, true},
		{"empty", "", course.Address{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := course.ParseAddress(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAddress(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAddress_StringRoundTrip(t *testing.T) {
	a := course.Address{Chapter: 4, Subchapter: 0, Section: 12}
	if a.String() != "4-0-12" {
		t.Fatalf("String() = %q, want 4-0-12", a.String())
	}
	got, err := course.ParseAddress(a.String())
	if err != nil || got != a {
		t.Errorf("ParseAddress(String()) = %+v, %v", got, err)
	}
}

func TestTree_DeleteChapterRenumbers(t *testing.T) {
	tree := sampleTree([]int{1}, []int{1}, []int{1})

	if err := tree.DeleteChapter(1); err != nil {
		t.Fatalf("DeleteChapter() error = %v", err)
	}
	if len(tree.Chapters) != 2 {
		t.Fatalf("len(Chapters) = %d, want 2", len(tree.Chapters))
	}
	for i, ch := range tree.Chapters {
		if ch.Position != i {
			t.Errorf("Chapters[%d].Position = %d, want %d", i, ch.Position, i)
		}
	}
	if tree.Chapters[1].ID != "ch2" {
		t.Errorf("Chapters[1].ID = %q, want ch2", tree.Chapters[1].ID)
	}
}

func TestTree_DeleteOutOfRange(t *testing.T) {
	tree := sampleTree([]int{2})

	if err := tree.DeleteChapter(3); err == nil {
		t.Error("DeleteChapter(3) should fail")
	}
	if err := tree.DeleteSubchapter(0, 1); err == nil {
		t.Error("DeleteSubchapter(0, 1) should fail")
	}
	if err := tree.DeleteSection(course.Address{Section: 5}); err == nil {
		t.Error("DeleteSection(0-0-5) should fail")
	}
}

func TestTree_DeleteSectionRenumbers(t *testing.T) {
	tree := sampleTree([]int{3})

	if err := tree.DeleteSection(course.Address{Section: 0}); err != nil {
		t.Fatalf("DeleteSection() error = %v", err)
	}
	secs := tree.Chapters[0].Subchapters[0].Sections
	if len(secs) != 2 {
		t.Fatalf("len(Sections) = %d, want 2", len(secs))
	}
	for i, s := range secs {
		if s.Position != i {
			t.Errorf("Sections[%d].Position = %d, want %d", i, s.Position, i)
		}
	}
}

func TestTree_IsLastSection(t *testing.T) {
	tree := sampleTree([]int{2, 1}, []int{1, 3})

	tests := []struct {
		addr course.Address
		want bool
	}{
		{course.Address{Chapter: 1, Subchapter: 1, Section: 2}, true},
		{course.Address{Chapter: 1, Subchapter: 1, Section: 1}, false},
		{course.Address{Chapter: 1, Subchapter: 0, Section: 0}, false},
		{course.Address{Chapter: 0, Subchapter: 1, Section: 0}, false},
	}
	for _, tt := range tests {
		if got := tree.IsLastSection(tt.addr); got != tt.want {
			t.Errorf("IsLastSection(%s) = %v, want %v", tt.addr, got, tt.want)
		}
	}

	empty := &course.Tree{}
	if empty.IsLastSection(course.Address{}) {
		t.Error("IsLastSection on empty tree should be false")
	}
}

func TestTree_WalkAndTotal(t *testing.T) {
	tree := sampleTree([]int{2, 1}, []int{0, 3})

	if got := tree.TotalSections(); got != 6 {
		t.Errorf("TotalSections() = %d, want 6", got)
	}

	var seen []string
	tree.Walk(func(a course.Address, _ course.Section) bool {
		seen = append(seen, a.String())
		return true
	})
	want := []string{"0-0-0", "0-0-1", "0-1-0", "1-1-0", "1-1-1", "1-1-2"}
	if len(seen) != len(want) {
		t.Fatalf("Walk visited %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Walk[%d] = %s, want %s", i, seen[i], want[i])
		}
	}
}

func TestTree_NormalizeFillsParentIDs(t *testing.T) {
	tree := sampleTree([]int{1})
	sec, ok := tree.Section(course.Address{})
	if !ok {
		t.Fatal("Section(0-0-0) not found")
	}
	if sec.ChapterID != "ch0" || sec.SubchapterID != "ch0-s0" {
		t.Errorf("section parents = %q/%q, want ch0/ch0-s0", sec.ChapterID, sec.SubchapterID)
	}
}

func TestTree_AppendChapterAssignsIDs(t *testing.T) {
	tree := sampleTree([]int{1})
	tree.AppendChapter(course.Chapter{
		Title: "New",
		Subchapters: []course.Subchapter{
			{Title: "Intro", Sections: []course.Section{{Title: "Hello"}}},
		},
	})

	ch := tree.Chapters[1]
	if ch.ID == "" || ch.Subchapters[0].ID == "" || ch.Subchapters[0].Sections[0].ID == "" {
		t.Errorf("AppendChapter left empty ids: %+v", ch)
	}
	if ch.Position != 1 {
		t.Errorf("Position = %d, want 1", ch.Position)
	}
}

func TestFingerprint(t *testing.T) {
	a := sampleTree([]int{2, 1})
	b := sampleTree([]int{2, 1})
	if course.Fingerprint(a) != course.Fingerprint(b) {
		t.Error("identical trees should have equal fingerprints")
	}

	b.Chapters[0].Title = "Renamed"
	if course.Fingerprint(a) != course.Fingerprint(b) {
		t.Error("title edits should not change the fingerprint")
	}

	if err := b.DeleteSection(course.Address{Section: 0}); err != nil {
		t.Fatal(err)
	}
	if course.Fingerprint(a) == course.Fingerprint(b) {
		t.Error("deleting a section should change the fingerprint")
	}
}

func TestTree_CloneIsIndependent(t *testing.T) {
	a := sampleTree([]int{1})
	b := a.Clone()
	b.Chapters[0].Subchapters[0].Sections[0].Title = "changed"
	if a.Chapters[0].Subchapters[0].Sections[0].Title == "changed" {
		t.Error("Clone() shares section storage with the original")
	}
}

func TestSectionSet_JSON(t *testing.T) {
	s := course.NewSectionSet("1-0-0", "0-0-1", "0-0-0")
	raw, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(raw) != `["0-0-0","0-0-1","1-0-0"]` {
		t.Errorf("Marshal() = %s", raw)
	}

	var back course.SectionSet
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if len(back) != 3 || !back.Has(course.Address{Chapter: 1}) {
		t.Errorf("Unmarshal() = %v", back)
	}
}

func TestAddress_JSON(t *testing.T) {
	raw, err := json.Marshal(struct {
		At course.Address `json:"at"`
	}{course.Address{Chapter: 1, Subchapter: 2, Section: 3}})
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != `{"at":"1-2-3"}` {
		t.Errorf("Marshal() = %s", raw)
	}

	var back struct {
		At course.Address `json:"at"`
	}
	if err := json.Unmarshal(raw, &back); err != nil || back.At != (course.Address{Chapter: 1, Subchapter: 2, Section: 3}) {
		t.Errorf("Unmarshal() = %+v, %v", back, err)
	}
	if err := json.Unmarshal([]byte(`{"at":"x"}`), &back); err == nil {
		t.Error("Unmarshal() of a bad key should fail")
	}
}
