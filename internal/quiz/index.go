package quiz

import (
	"strings"

	"github.com/p-n-ai/pai-course/internal/course"
)

// UnknownSubchapter owns quizzes that cannot be attributed to any subchapter.
const UnknownSubchapter = "Unknown"

// Index groups a course's quizzes by owning subchapter title and tracks the
// learner's best attempt per quiz. It is built per course load and never shared
// between learners.
//
// Grouping is keyed by title, so two subchapters sharing a title share quizzes.
type Index struct {
	bySubchapter map[string][]Quiz
	order        []Quiz
	best         map[string]Attempt
}

// OwnerTitle resolves the subchapter a quiz belongs to: the explicit field,
// then the title text before the first colon, then the first subchapter of the
// tree, then UnknownSubchapter.
func OwnerTitle(q Quiz, tree *course.Tree) string {
	if q.Subchapter != "" {
		return q.Subchapter
	}
	prefix, _, _ := strings.Cut(q.Title, ":")
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		return prefix
	}
	if tree != nil && len(tree.Chapters) > 0 && len(tree.Chapters[0].Subchapters) > 0 {
		if title := tree.Chapters[0].Subchapters[0].Title; title != "" {
			return title
		}
	}
	return UnknownSubchapter
}

// BuildIndex groups quizzes under their owning subchapter and picks the best
// attempt per quiz. Attempts scored outside 0..100 are ignored. Quiz order
// within a subchapter follows the input order.
func BuildIndex(quizzes []Quiz, tree *course.Tree, attempts []Attempt) *Index {
	idx := &Index{
		bySubchapter: make(map[string][]Quiz),
		order:        append([]Quiz(nil), quizzes...),
		best:         make(map[string]Attempt),
	}
	for _, q := range quizzes {
		owner := OwnerTitle(q, tree)
		idx.bySubchapter[owner] = append(idx.bySubchapter[owner], q)
	}
	for _, a := range attempts {
		if !a.Valid() {
			continue
		}
		cur, ok := idx.best[a.QuizID]
		if !ok || better(a, cur) {
			idx.best[a.QuizID] = a
		}
	}
	return idx
}

// better orders attempts by percentage; a passed attempt wins a tie.
func better(a, b Attempt) bool {
	if a.Percentage != b.Percentage {
		return a.Percentage > b.Percentage
	}
	return a.Passed && !b.Passed
}

// BestAttempt returns the maximum-scoring valid attempt among attempts for quizID.
func BestAttempt(attempts []Attempt, quizID string) (Attempt, bool) {
	var best Attempt
	found := false
	for _, a := range attempts {
		if a.QuizID != quizID || !a.Valid() {
			continue
		}
		if !found || better(a, best) {
			best, found = a, true
		}
	}
	return best, found
}

// QuizzesFor returns the quizzes owned by the subchapter title.
func (idx *Index) QuizzesFor(subchapterTitle string) []Quiz {
	return idx.bySubchapter[subchapterTitle]
}

// Quizzes returns every quiz in load order.
func (idx *Index) Quizzes() []Quiz {
	return idx.order
}

// BestAttempt returns the learner's best attempt for the quiz.
func (idx *Index) BestAttempt(quizID string) (Attempt, bool) {
	a, ok := idx.best[quizID]
	return a, ok
}

// BestScore is the maximum percentage across the learner's attempts, or 0.
func (idx *Index) BestScore(quizID string) float64 {
	return idx.best[quizID].Percentage
}

// Passed reports whether the best attempt has its pass flag set and reaches
// PassThreshold.
func (idx *Index) Passed(quizID string) bool {
	a, ok := idx.best[quizID]
	return ok && a.Counts()
}

// AllPassed reports whether every quiz of the subchapter is passed. A
// subchapter without quizzes is trivially passed.
func (idx *Index) AllPassed(subchapterTitle string) bool {
	for _, q := range idx.bySubchapter[subchapterTitle] {
		if !idx.Passed(q.ID) {
			return false
		}
	}
	return true
}

// Scores returns the cached best score of every passed quiz, keyed by quiz id.
func (idx *Index) Scores() map[string]float64 {
	out := make(map[string]float64)
	for id, a := range idx.best {
		if a.Counts() {
			out[id] = a.Percentage
		}
	}
	return out
}

// BestScores returns the best percentage of every attempted quiz.
func (idx *Index) BestScores() map[string]float64 {
	out := make(map[string]float64, len(idx.best))
	for id, a := range idx.best {
		out[id] = a.Percentage
	}
	return out
}
