package course_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/p-n-ai/pai-course/internal/course"
)

func TestMemoryStore_TreeAndFlag(t *testing.T) {
	ctx := context.Background()
	s := course.NewMemoryStore()

	if _, err := s.ContentTree(ctx, "c1"); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("ContentTree() error = %v, want ErrNotFound", err)
	}

	if err := s.PutTree(ctx, sampleTree([]int{2})); err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}
	tree, err := s.ContentTree(ctx, "c1")
	if err != nil {
		t.Fatalf("ContentTree() error = %v", err)
	}
	if tree.TotalSections() != 2 {
		t.Errorf("TotalSections() = %d, want 2", tree.TotalSections())
	}

	flag, err := s.CompletionFlag(ctx, "c1")
	if err != nil || flag.IsCompleted {
		t.Fatalf("CompletionFlag() = %+v, %v; want zero flag", flag, err)
	}
	if err := s.SetCompletionFlag(ctx, "c1", course.CompletionFlag{IsCompleted: true, Announcement: "done"}); err != nil {
		t.Fatalf("SetCompletionFlag() error = %v", err)
	}
	flag, _ = s.CompletionFlag(ctx, "c1")
	if !flag.IsCompleted || flag.Announcement != "done" {
		t.Errorf("CompletionFlag() = %+v, want completed with announcement", flag)
	}

	if err := s.SetCompletionFlag(ctx, "missing", course.CompletionFlag{}); !errors.Is(err, course.ErrNotFound) {
		t.Errorf("SetCompletionFlag(missing) error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_PutTreeRequiresCourseID(t *testing.T) {
	s := course.NewMemoryStore()
	if err := s.PutTree(context.Background(), &course.Tree{}); err == nil {
		t.Error("PutTree() should reject a tree without course_id")
	}
}

type fakeCache struct {
	data    map[string][]byte
	deletes int
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: map[string][]byte{}}
}

func (c *fakeCache) GetJSON(_ context.Context, key string, dst any) (bool, error) {
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *fakeCache) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func (c *fakeCache) Delete(_ context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.data, k)
		c.deletes++
	}
	return nil
}

type countingStore struct {
	*course.MemoryStore
	reads int
}

func (s *countingStore) ContentTree(ctx context.Context, id string) (*course.Tree, error) {
	s.reads++
	return s.MemoryStore.ContentTree(ctx, id)
}

func TestCachedStore_ReadThrough(t *testing.T) {
	ctx := context.Background()
	backing := &countingStore{MemoryStore: course.NewMemoryStore()}
	cache := newFakeCache()
	s := course.NewCachedStore(backing, cache, time.Minute)

	if err := s.PutTree(ctx, sampleTree([]int{1, 1})); err != nil {
		t.Fatalf("PutTree() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		tree, err := s.ContentTree(ctx, "c1")
		if err != nil {
			t.Fatalf("ContentTree() error = %v", err)
		}
		if tree.TotalSections() != 2 {
			t.Errorf("TotalSections() = %d, want 2", tree.TotalSections())
		}
	}
	if backing.reads != 1 {
		t.Errorf("backing reads = %d, want 1", backing.reads)
	}

	// Writing invalidates the cached tree.
	if err := s.PutTree(ctx, sampleTree([]int{1, 1, 1})); err != nil {
		t.Fatal(err)
	}
	tree, err := s.ContentTree(ctx, "c1")
	if err != nil {
		t.Fatal(err)
	}
	if tree.TotalSections() != 3 {
		t.Errorf("TotalSections() after PutTree = %d, want 3", tree.TotalSections())
	}
	if backing.reads != 2 {
		t.Errorf("backing reads = %d, want 2", backing.reads)
	}
}

func TestCachedStore_NotFoundIsNotCached(t *testing.T) {
	cache := newFakeCache()
	s := course.NewCachedStore(course.NewMemoryStore(), cache, 0)

	if _, err := s.ContentTree(context.Background(), "nope"); !errors.Is(err, course.ErrNotFound) {
		t.Fatalf("ContentTree() error = %v, want ErrNotFound", err)
	}
	if len(cache.data) != 0 {
		t.Errorf("cache has %d entries, want 0", len(cache.data))
	}
}
