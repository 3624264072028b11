package enrollment_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
	"github.com/p-n-ai/pai-course/internal/enrollment"
	"github.com/p-n-ai/pai-course/internal/notify"
	"github.com/p-n-ai/pai-course/internal/quiz"
	"github.com/p-n-ai/pai-course/internal/unlock"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *enrollment.Service
	courses *course.MemoryStore
	quizzes *quiz.MemoryStore
	states  enrollment.StateStore
	sink    *notify.MemorySink
}

// newFixture stores course c1 whose single chapter has subchapters "S0",
// "S1", ... with the given section counts.
func newFixture(t *testing.T, sections []int, states enrollment.StateStore) *fixture {
	t.Helper()
	f := &fixture{
		courses: course.NewMemoryStore(),
		quizzes: quiz.NewMemoryStore(),
		states:  states,
		sink:    notify.NewMemorySink(),
	}
	if f.states == nil {
		f.states = enrollment.NewMemoryStore()
	}

	tree := &course.Tree{CourseID: "c1", Title: "Go Basics"}
	ch := course.Chapter{ID: "ch0", Title: "Intro"}
	for si, n := range sections {
		sub := course.Subchapter{ID: "s" + string(rune('0'+si)), Title: "S" + string(rune('0'+si))}
		for k := 0; k < n; k++ {
			sub.Sections = append(sub.Sections, course.Section{
				ID:    sub.ID + "-" + string(rune('0'+k)),
				Title: sub.Title + " part " + string(rune('1'+k)),
			})
		}
		ch.Subchapters = append(ch.Subchapters, sub)
	}
	tree.Chapters = []course.Chapter{ch}
	if err := f.courses.PutTree(context.Background(), tree); err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}

	f.svc = enrollment.NewService(enrollment.ServiceConfig{
		Courses:  f.courses,
		Quizzes:  f.quizzes,
		States:   f.states,
		Notifier: f.sink,
		Now:      func() time.Time { return fixedNow },
	})
	return f
}

func (f *fixture) enroll(t *testing.T, learnerID string) {
	t.Helper()
	if _, err := f.svc.Enroll(t.Context(), learnerID, "c1"); err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
}

func (f *fixture) view(t *testing.T, learnerID string, ch, sub, sec int) *enrollment.Outcome {
	t.Helper()
	out, err := f.svc.RecordSectionViewed(t.Context(), learnerID, "c1", course.Address{Chapter: ch, Subchapter: sub, Section: sec})
	if err != nil {
		t.Fatalf("RecordSectionViewed(%d-%d-%d) error = %v", ch, sub, sec, err)
	}
	return out
}

func TestRecordSectionViewed_ExampleScenario(t *testing.T) {
	f := newFixture(t, []int{2, 1}, nil)
	f.enroll(t, "u1")

	f.view(t, "u1", 0, 0, 0)
	out := f.view(t, "u1", 0, 0, 1)

	if out.State.Progress != 67 {
		t.Errorf("Progress = %d, want 67", out.State.Progress)
	}
	if out.State.CurrentLesson != "0-0-1" {
		t.Errorf("CurrentLesson = %q, want 0-0-1", out.State.CurrentLesson)
	}
	if len(out.Unlocked) != 2 {
		t.Fatalf("Unlocked = %+v, want subchapter and section", out.Unlocked)
	}
	if out.Unlocked[0].Kind != unlock.KindSubchapter || out.Unlocked[1].Address != (course.Address{Subchapter: 1}) {
		t.Errorf("Unlocked = %+v", out.Unlocked)
	}

	// 0-0-1 unlocked after the first view, 0-1-0 and S1 after the second.
	events := f.sink.Events()
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if got := events[1].Message(); got != `New subchapter unlocked: "S1"` {
		t.Errorf("events[1].Message() = %q", got)
	}
	for _, e := range events {
		if e.LearnerID != "u1" || e.CourseID != "c1" {
			t.Errorf("event = %+v, want learner u1 course c1", e)
		}
	}
}

func TestRecordSectionViewed_Idempotent(t *testing.T) {
	f := newFixture(t, []int{2, 1}, nil)
	f.enroll(t, "u1")

	first := f.view(t, "u1", 0, 0, 0)
	second := f.view(t, "u1", 0, 0, 0)

	if second.Changed {
		t.Error("second view reported a change")
	}
	if second.State.Progress != first.State.Progress || second.State.Version != first.State.Version {
		t.Errorf("second state = progress %d v%d, want progress %d v%d",
			second.State.Progress, second.State.Version, first.State.Progress, first.State.Version)
	}
	if len(second.State.CompletedSections) != 1 {
		t.Errorf("len(CompletedSections) = %d, want 1", len(second.State.CompletedSections))
	}
	if len(f.sink.Events()) != 1 {
		t.Errorf("len(events) = %d, want 1", len(f.sink.Events()))
	}
}

func TestRecordSectionViewed_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t, []int{3}, nil)
	f.enroll(t, "u1")

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.RecordSectionViewed(context.Background(), "u1", "c1", course.Address{})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Errorf("RecordSectionViewed() error = %v", err)
		}
	}

	st, err := f.states.Get(t.Context(), "u1", "c1")
	if err != nil {
		t.Fatal(err)
	}
	if st.Progress != 33 || len(st.CompletedSections) != 1 {
		t.Errorf("state = progress %d sections %v, want 33 and one section", st.Progress, st.CompletedSections)
	}
	if st.Version != 2 {
		t.Errorf("Version = %d, want 2 (one write)", st.Version)
	}
}

func TestRecordSectionViewed_Errors(t *testing.T) {
	f := newFixture(t, []int{2, 1}, nil)
	f.enroll(t, "u1")

	tests := []struct {
		name    string
		learner string
		addr    course.Address
		wantErr error
		reason  string
	}{
		{"locked subchapter", "u1", course.Address{Subchapter: 1}, enrollment.ErrLocked, unlock.ReasonPreviousSubchapter},
		{"locked section", "u1", course.Address{Section: 1}, enrollment.ErrLocked, unlock.ReasonPreviousSection},
		{"out of range", "u1", course.Address{Chapter: 4}, enrollment.ErrNotFound, ""},
		{"not enrolled", "u2", course.Address{}, enrollment.ErrNotFound, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.RecordSectionViewed(t.Context(), tt.learner, "c1", tt.addr)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.reason != "" {
				var locked *enrollment.LockedError
				if !errors.As(err, &locked) || locked.Reason != tt.reason {
					t.Errorf("error = %v, want LockedError with %q", err, tt.reason)
				}
				if got := enrollment.UserMessage(err); got != tt.reason {
					t.Errorf("UserMessage() = %q, want %q", got, tt.reason)
				}
			}
		})
	}

	st, _ := f.states.Get(t.Context(), "u1", "c1")
	if len(st.CompletedSections) != 0 || st.Version != 1 {
		t.Errorf("rejected views changed state: %+v", st)
	}
}

func TestRecordSectionViewed_CompletionRequiresAdminGate(t *testing.T) {
	f := newFixture(t, []int{1, 1}, nil)
	f.enroll(t, "u1")

	f.view(t, "u1", 0, 0, 0)
	out := f.view(t, "u1", 0, 1, 0)
	if out.State.Progress != 100 {
		t.Fatalf("Progress = %d, want 100", out.State.Progress)
	}
	if out.State.Completed || out.State.CompletionDate != nil {
		t.Error("learner completed without the course completion gate")
	}

	f.enroll(t, "u2")
	if _, err := f.svc.SetCourseCompletion(t.Context(), "c1", true, "Well done"); err != nil {
		t.Fatalf("SetCourseCompletion() error = %v", err)
	}
	f.view(t, "u2", 0, 0, 0)
	out = f.view(t, "u2", 0, 1, 0)
	if !out.State.Completed {
		t.Fatal("learner finishing the last section after the gate was not completed")
	}
	if out.State.CompletionDate == nil || !out.State.CompletionDate.Equal(fixedNow) {
		t.Errorf("CompletionDate = %v, want %v", out.State.CompletionDate, fixedNow)
	}
	if out.State.CompletedAfterAdminMark == nil {
		t.Error("CompletedAfterAdminMark not recorded")
	}
}

func TestRecordSectionViewed_LastSectionCompletesBelowFullProgress(t *testing.T) {
	f := newFixture(t, []int{1, 1}, nil)
	_ = f.quizzes.PutQuiz(t.Context(), quiz.Quiz{ID: "q1", CourseID: "c1", Title: "S1: final", Questions: []quiz.Question{{Answer: 0}}})
	if _, err := f.svc.SetCourseCompletion(t.Context(), "c1", true, ""); err != nil {
		t.Fatal(err)
	}
	f.enroll(t, "u1")

	f.view(t, "u1", 0, 0, 0)
	out := f.view(t, "u1", 0, 1, 0)
	if out.State.Progress != 67 {
		t.Errorf("Progress = %d, want 67 (quiz pending)", out.State.Progress)
	}
	if !out.State.Completed {
		t.Error("viewing the last section with the gate set should complete the course")
	}
}

type failingStore struct {
	enrollment.StateStore
	mu       sync.Mutex
	saveErrs []error
	saves    int
}

func (s *failingStore) Save(ctx context.Context, st *enrollment.State) error {
	s.mu.Lock()
	s.saves++
	var err error
	if len(s.saveErrs) > 0 {
		err = s.saveErrs[0]
		if len(s.saveErrs) > 1 {
			s.saveErrs = s.saveErrs[1:]
		}
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}
	return s.StateStore.Save(ctx, st)
}

func TestRecordSectionViewed_PersistenceFailureDiscardsChange(t *testing.T) {
	store := &failingStore{StateStore: enrollment.NewMemoryStore(), saveErrs: []error{errors.New("disk full")}}
	f := newFixture(t, []int{2}, store)
	f.enroll(t, "u1")

	_, err := f.svc.RecordSectionViewed(t.Context(), "u1", "c1", course.Address{})
	if !errors.Is(err, enrollment.ErrPersistence) {
		t.Fatalf("error = %v, want ErrPersistence", err)
	}
	if got := enrollment.UserMessage(err); got != "Your progress could not be saved. Please try again." {
		t.Errorf("UserMessage() = %q", got)
	}
	if len(f.sink.Events()) != 0 {
		t.Error("notifications were sent for a failed save")
	}
	st, _ := store.StateStore.Get(t.Context(), "u1", "c1")
	if len(st.CompletedSections) != 0 || st.Progress != 0 {
		t.Errorf("stored state changed: %+v", st)
	}
}

func TestRecordSectionViewed_RetriesConflicts(t *testing.T) {
	store := &failingStore{StateStore: enrollment.NewMemoryStore(), saveErrs: []error{enrollment.ErrConflict, nil}}
	f := newFixture(t, []int{2}, store)
	f.enroll(t, "u1")

	out, err := f.svc.RecordSectionViewed(t.Context(), "u1", "c1", course.Address{})
	if err != nil {
		t.Fatalf("RecordSectionViewed() error = %v", err)
	}
	if !out.Changed || store.saves != 2 {
		t.Errorf("Changed = %v saves = %d, want true and 2", out.Changed, store.saves)
	}

	always := &failingStore{StateStore: enrollment.NewMemoryStore(), saveErrs: []error{enrollment.ErrConflict}}
	f = newFixture(t, []int{2}, always)
	f.enroll(t, "u1")
	_, err = f.svc.RecordSectionViewed(t.Context(), "u1", "c1", course.Address{})
	if !errors.Is(err, enrollment.ErrPersistence) || !errors.Is(err, enrollment.ErrConflict) {
		t.Errorf("error = %v, want ErrPersistence wrapping ErrConflict", err)
	}
	if always.saves != 4 {
		t.Errorf("saves = %d, want 4 (1 + 3 retries)", always.saves)
	}
}

func TestEnroll(t *testing.T) {
	f := newFixture(t, []int{1}, nil)

	st, err := f.svc.Enroll(t.Context(), "u1", "c1")
	if err != nil {
		t.Fatalf("Enroll() error = %v", err)
	}
	if st.Progress != 0 || st.Completed || len(st.CompletedSections) != 0 || st.StructureHash == "" {
		t.Errorf("Enroll() = %+v, want empty state with structure hash", st)
	}
	if !st.StartDate.Equal(fixedNow) {
		t.Errorf("StartDate = %v, want %v", st.StartDate, fixedNow)
	}

	if _, err := f.svc.Enroll(t.Context(), "u1", "c1"); !errors.Is(err, enrollment.ErrAlreadyEnrolled) {
		t.Errorf("second Enroll() error = %v, want ErrAlreadyEnrolled", err)
	}
	if _, err := f.svc.Enroll(t.Context(), "u1", "nope"); !errors.Is(err, enrollment.ErrNotFound) {
		t.Errorf("Enroll(unknown course) error = %v, want ErrNotFound", err)
	}
}

func TestUncomplete(t *testing.T) {
	f := newFixture(t, []int{1}, nil)
	if _, err := f.svc.SetCourseCompletion(t.Context(), "c1", true, ""); err != nil {
		t.Fatal(err)
	}
	f.enroll(t, "u1")
	if out := f.view(t, "u1", 0, 0, 0); !out.State.Completed {
		t.Fatal("learner not completed")
	}

	st, err := f.svc.Uncomplete(t.Context(), "u1", "c1")
	if err != nil {
		t.Fatalf("Uncomplete() error = %v", err)
	}
	if st.Completed || st.CompletionDate != nil {
		t.Errorf("Uncomplete() = %+v, want not completed", st)
	}
	if st.Progress != 100 {
		t.Errorf("Progress = %d, want 100", st.Progress)
	}

	// Viewing a completed section again does not re-derive completion.
	out := f.view(t, "u1", 0, 0, 0)
	if out.State.Completed {
		t.Error("idempotent view re-completed the learner")
	}
}
