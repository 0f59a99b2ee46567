// Package dedup keeps the per-target memory the scheduler needs between
// ticks: which feed posts were already seen and the last observed live
// status. Both are loaded lazily per target and persisted on every change.
package dedup

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"bili_push/internal/domain"
)

// DefaultSeenCap bounds the number of ids remembered per target.
const DefaultSeenCap = 100

// Store is the key-value persistence backing both stores.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
}

func seenKey(target string) string {
	return "seen_posts_" + target
}

// SeenStore tracks the post ids already observed for each feed target.
type SeenStore struct {
	store  Store
	cap    int
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]*seenSet
}

type seenSet struct {
	mu     sync.Mutex
	loaded bool
	ids    map[string]struct{} // nil until primed
}

func NewSeenStore(store Store, capacity int, logger *slog.Logger) *SeenStore {
	if capacity <= 0 {
		capacity = DefaultSeenCap
	}
	return &SeenStore{
		store:   store,
		cap:     capacity,
		logger:  logger.With("component", "seen_store"),
		targets: make(map[string]*seenSet),
	}
}

func (s *SeenStore) entry(target string) *seenSet {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.targets[target]
	if !ok {
		e = &seenSet{}
		s.targets[target] = e
	}
	return e
}

// Diff returns the posts of a fetch that were not seen before and records
// them. The first non-empty fetch for a target only primes its set and
// reports nothing new. When the set outgrows the cap it is rebuilt from the
// newest posts of the current fetch.
func (s *SeenStore) Diff(ctx context.Context, target string, posts []domain.Post) ([]domain.Post, error) {
	e := s.entry(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		var ids []string
		found, err := s.store.Get(ctx, seenKey(target), &ids)
		if err != nil {
			return nil, fmt.Errorf("load seen posts: %w", err)
		}
		if found && len(ids) > 0 {
			e.ids = make(map[string]struct{}, len(ids))
			for _, id := range ids {
				e.ids[id] = struct{}{}
			}
		}
		e.loaded = true
	}

	if e.ids == nil {
		if len(posts) == 0 {
			return nil, nil
		}
		e.ids = make(map[string]struct{}, len(posts))
		for _, p := range posts {
			e.ids[p.ID] = struct{}{}
		}
		s.persist(ctx, target, e.ids)
		s.logger.Debug("primed seen posts", "target", target, "count", len(e.ids))
		return nil, nil
	}

	var fresh []domain.Post
	for _, p := range posts {
		if _, ok := e.ids[p.ID]; ok {
			continue
		}
		e.ids[p.ID] = struct{}{}
		fresh = append(fresh, p)
	}

	evicted := false
	if len(e.ids) > s.cap {
		e.ids = newestIDs(posts, s.cap)
		evicted = true
	}

	if len(fresh) > 0 || evicted {
		s.persist(ctx, target, e.ids)
	}
	return fresh, nil
}

func (s *SeenStore) persist(ctx context.Context, target string, ids map[string]struct{}) {
	list := make([]string, 0, len(ids))
	for id := range ids {
		list = append(list, id)
	}
	slices.Sort(list)

	if err := s.store.Put(ctx, seenKey(target), list); err != nil {
		s.logger.Error("failed to persist seen posts",
			"target", target,
			"error", err,
		)
	}
}

func newestIDs(posts []domain.Post, n int) map[string]struct{} {
	sorted := slices.Clone(posts)
	slices.SortStableFunc(sorted, func(a, b domain.Post) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})

	ids := make(map[string]struct{}, n)
	for _, p := range sorted {
		if len(ids) == n {
			break
		}
		ids[p.ID] = struct{}{}
	}
	return ids
}
