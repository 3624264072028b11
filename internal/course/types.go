// Package course models the content hierarchy of a course:
// Course -> Chapter -> Subchapter -> Section, ordered by position.
package course

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Tree is the content hierarchy of a single course.
type Tree struct {
	CourseID string    `json:"course_id" yaml:"course_id"`
	Title    string    `json:"title" yaml:"title"`
	Chapters []Chapter `json:"chapters" yaml:"chapters"`
}

// Chapter is a top-level grouping of subchapters.
type Chapter struct {
	ID          string       `json:"id" yaml:"id"`
	Title       string       `json:"title" yaml:"title"`
	Position    int          `json:"position" yaml:"position"`
	Subchapters []Subchapter `json:"subchapters" yaml:"subchapters"`
}

// Subchapter groups sections. Quizzes attach to a subchapter by title.
type Subchapter struct {
	ID       string    `json:"id" yaml:"id"`
	Title    string    `json:"title" yaml:"title"`
	Position int       `json:"position" yaml:"position"`
	Sections []Section `json:"sections" yaml:"sections"`
}

// Section is the smallest viewable unit of content.
type Section struct {
	ID               string  `json:"id" yaml:"id"`
	Title            string  `json:"title" yaml:"title"`
	Position         int     `json:"position" yaml:"position"`
	GeneratedContent *string `json:"generated_content,omitempty" yaml:"generated_content,omitempty"`
	VideoURL         string  `json:"video_url,omitempty" yaml:"video_url,omitempty"`
	ChapterID        string  `json:"chapter_id,omitempty" yaml:"chapter_id,omitempty"`
	SubchapterID     string  `json:"subchapter_id,omitempty" yaml:"subchapter_id,omitempty"`
}

// CompletionFlag is the administrator-controlled course completion gate.
type CompletionFlag struct {
	IsCompleted  bool   `json:"is_completed" yaml:"is_completed"`
	Announcement string `json:"announcement,omitempty" yaml:"announcement,omitempty"`
}

// Address identifies a section by position. Completion is keyed by
// address, so it survives content edits but not reordering.
type Address struct {
	Chapter    int
	Subchapter int
	Section    int
}

// String returns the "{chapter}-{subchapter}-{section}" key.
func (a Address) String() string {
	return fmt.Sprintf("%d-%d-%d", a.Chapter, a.Subchapter, a.Section)
}

// MarshalText encodes the address as its "{chapter}-{subchapter}-{section}" key.
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText parses a key produced by MarshalText.
func (a *Address) UnmarshalText(b []byte) error {
	parsed, err := ParseAddress(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddress parses a "{chapter}-{subchapter}-{section}" key.
func ParseAddress(s string) (Address, error) {
	parts := strings.Split(s, "-")
	if len(parts) != 3 {
		return Address{}, fmt.Errorf("invalid section address %q", s)
	}
	var idx [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return Address{}, fmt.Errorf("invalid section address %q", s)
		}
		idx[i] = n
	}
	return Address{Chapter: idx[0], Subchapter: idx[1], Section: idx[2]}, nil
}

// SectionSet is a set of completed section addresses.
type SectionSet map[string]struct{}

// NewSectionSet builds a set from address keys.
func NewSectionSet(keys ...string) SectionSet {
	s := make(SectionSet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Has reports whether the address is in the set.
func (s SectionSet) Has(a Address) bool {
	_, ok := s[a.String()]
	return ok
}

// Add inserts the address into the set.
func (s SectionSet) Add(a Address) {
	s[a.String()] = struct{}{}
}

// Clone returns an independent copy.
func (s SectionSet) Clone() SectionSet {
	out := make(SectionSet, len(s))
	for k := range s {
		out[k] = struct{}{}
	}
	return out
}

// Keys returns the addresses in the set in sorted order.
func (s SectionSet) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MarshalJSON encodes the set as a sorted array of address keys.
func (s SectionSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Keys())
}

// UnmarshalJSON decodes an array of address keys.
func (s *SectionSet) UnmarshalJSON(data []byte) error {
	var keys []string
	if err := json.Unmarshal(data, &keys); err != nil {
		return err
	}
	*s = NewSectionSet(keys...)
	return nil
}
