package course

import (
	"context"
	"log/slog"
	"time"
)

// JSONCache is the subset of the cache client used for content trees.
type JSONCache interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// CachedStore is a read-through cache in front of a Store. Only content
// trees are cached; the completion gate is always read from the backing store.
type CachedStore struct {
	Store
	cache JSONCache
	ttl   time.Duration
}

// NewCachedStore wraps store with cache. A zero ttl defaults to 10 minutes.
func NewCachedStore(store Store, cache JSONCache, ttl time.Duration) *CachedStore {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedStore{Store: store, cache: cache, ttl: ttl}
}

func treeKey(courseID string) string {
	return "course:tree:" + courseID
}

func (s *CachedStore) ContentTree(ctx context.Context, courseID string) (*Tree, error) {
	var t Tree
	found, err := s.cache.GetJSON(ctx, treeKey(courseID), &t)
	if err != nil {
		slog.Warn("content cache read failed", "course_id", courseID, "error", err)
	}
	if found {
		return &t, nil
	}

	tree, err := s.Store.ContentTree(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.SetJSON(ctx, treeKey(courseID), tree, s.ttl); err != nil {
		slog.Warn("content cache write failed", "course_id", courseID, "error", err)
	}
	return tree, nil
}

func (s *CachedStore) PutTree(ctx context.Context, tree *Tree) error {
	if err := s.Store.PutTree(ctx, tree); err != nil {
		return err
	}
	if err := s.cache.Delete(ctx, treeKey(tree.CourseID)); err != nil {
		slog.Warn("content cache invalidation failed", "course_id", tree.CourseID, "error", err)
	}
	return nil
}
