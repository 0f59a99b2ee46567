package dedup

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bili_push/internal/domain"
)

func statusKey(target string) string {
	return "live_status_" + target
}

// StatusStore caches the last observed live status per target.
type StatusStore struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	targets map[string]*statusEntry
}

type statusEntry struct {
	mu     sync.Mutex
	loaded bool
	status *domain.LiveStatus
}

func NewStatusStore(store Store, logger *slog.Logger) *StatusStore {
	return &StatusStore{
		store:   store,
		logger:  logger.With("component", "status_store"),
		targets: make(map[string]*statusEntry),
	}
}

func (s *StatusStore) entry(target string) *statusEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.targets[target]
	if !ok {
		e = &statusEntry{}
		s.targets[target] = e
	}
	return e
}

// Get returns the cached status for target, loading it from the store on
// first access.
func (s *StatusStore) Get(ctx context.Context, target string) (domain.LiveStatus, bool, error) {
	e := s.entry(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.loaded {
		var st domain.LiveStatus
		found, err := s.store.Get(ctx, statusKey(target), &st)
		if err != nil {
			return domain.LiveStatus{}, false, fmt.Errorf("load live status: %w", err)
		}
		if found {
			e.status = &st
		}
		e.loaded = true
	}

	if e.status == nil {
		return domain.LiveStatus{}, false, nil
	}
	return *e.status, true, nil
}

// Put replaces the cached status. The in-memory value is updated even when
// persisting fails.
func (s *StatusStore) Put(ctx context.Context, target string, status domain.LiveStatus) error {
	e := s.entry(target)
	e.mu.Lock()
	defer e.mu.Unlock()

	e.status = &status
	e.loaded = true

	if err := s.store.Put(ctx, statusKey(target), status); err != nil {
		return fmt.Errorf("persist live status: %w", err)
	}
	return nil
}
