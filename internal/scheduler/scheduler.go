package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"bili_push/internal/domain"
	"bili_push/internal/source/live"
)

// Config holds scheduler configuration.
type Config struct {
	Interval      time.Duration
	PushOnStartup bool
	MaxConcurrent int
}

type Scheduler struct {
	feed       FeedSource
	status     StatusSource
	registry   Registry
	seen       SeenStore
	statuses   StatusStore
	dispatcher Dispatcher
	logger     *slog.Logger
	cfg        Config

	// tickMu serializes ticks from the loop and from callers of Tick, so a
	// target's get, compare, dispatch and put never interleave.
	tickMu sync.Mutex
	// firstTickDone flips once the first tick of the process has finished.
	firstTickDone atomic.Bool

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

type targetResult struct {
	newPosts   int
	dispatched int
}

func New(
	feed FeedSource,
	status StatusSource,
	registry Registry,
	seen SeenStore,
	statuses StatusStore,
	dispatcher Dispatcher,
	logger *slog.Logger,
	cfg Config,
) *Scheduler {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 1
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Scheduler{
		feed:       feed,
		status:     status,
		registry:   registry,
		seen:       seen,
		statuses:   statuses,
		dispatcher: dispatcher,
		logger:     logger.With("component", "scheduler"),
		cfg:        cfg,
	}
}

// Start runs the loop in the background. It is a no-op while running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.logger.Debug("scheduler already running")
		return
	}

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.cancel, s.done = cancel, done

	go func() {
		defer close(done)
		_ = s.Run(runCtx)
	}()
}

// Stop cancels the loop, waits for the running tick to return and releases
// the dispatcher. It is a no-op while stopped.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel == nil {
		return nil
	}

	s.cancel()
	<-s.done
	s.cancel, s.done = nil, nil

	if err := s.dispatcher.Close(); err != nil {
		return fmt.Errorf("close dispatcher: %w", err)
	}
	return nil
}

// Running reports whether the background loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

// Run ticks immediately and then on every interval until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.cfg.Interval)

	s.Tick(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return ctx.Err()
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick checks every subscribed target once. Failures are counted and
// logged per target and never abort the tick. Concurrent calls run one
// after the other.
func (s *Scheduler) Tick(ctx context.Context) domain.TickStats {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()

	start := time.Now()
	var stats domain.TickStats

	subs, err := s.registry.List(ctx, "")
	if err != nil {
		s.logger.Error("failed to load subscriptions", "error", err)
		return stats
	}

	units := domain.GroupSubscriptions(subs)
	feedUnits := domain.FilterUnits(units, domain.SourceFeed)
	liveUnits := domain.FilterUnits(units, domain.SourceStatus)
	stats.Targets = len(feedUnits) + len(liveUnits)
	firstTick := !s.firstTickDone.Load()

	var mu sync.Mutex
	record := func(unit domain.Unit, res targetResult, err error) {
		mu.Lock()
		defer mu.Unlock()
		stats.NewPosts += res.newPosts
		stats.Dispatched += res.dispatched
		if err != nil {
			stats.Failed++
			s.logger.Error("target check failed",
				"kind", unit.Kind,
				"target", unit.Target,
				"error", err,
			)
		}
	}

	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrent)

	for _, unit := range feedUnits {
		g.Go(func() error {
			res, err := guard(func() (targetResult, error) {
				return s.checkFeed(ctx, unit)
			})
			record(unit, res, err)
			return nil
		})
	}

	if len(liveUnits) > 0 {
		current, err := s.batchStatus(ctx, liveUnits)
		for _, unit := range liveUnits {
			if err != nil {
				record(unit, targetResult{}, err)
				continue
			}
			cur, ok := current[unit.Target]
			if !ok {
				record(unit, targetResult{}, errors.New("status missing from batch response"))
				continue
			}
			g.Go(func() error {
				res, err := guard(func() (targetResult, error) {
					return s.checkStatus(ctx, unit, cur, firstTick)
				})
				record(unit, res, err)
				return nil
			})
		}
	}

	_ = g.Wait()
	s.firstTickDone.Store(true)

	stats.Duration = time.Since(start)
	s.logger.Info("tick completed",
		"targets", stats.Targets,
		"failed", stats.Failed,
		"new_posts", stats.NewPosts,
		"dispatched", stats.Dispatched,
		"duration", stats.Duration,
	)
	return stats
}

func (s *Scheduler) checkFeed(ctx context.Context, unit domain.Unit) (targetResult, error) {
	posts, err := s.feed.Fetch(ctx, unit.Target)
	if err != nil {
		return targetResult{}, fmt.Errorf("fetch posts: %w", err)
	}

	fresh, err := s.seen.Diff(ctx, unit.Target, posts)
	if err != nil {
		return targetResult{}, fmt.Errorf("diff posts: %w", err)
	}
	if len(fresh) == 0 {
		return targetResult{}, nil
	}

	n := s.dispatcher.Dispatch(ctx, domain.SourceFeed, fresh, unit.Subscribers)
	s.logger.Info("new posts",
		"target", unit.Target,
		"count", len(fresh),
		"dispatched", n,
	)
	return targetResult{newPosts: len(fresh), dispatched: n}, nil
}

func (s *Scheduler) batchStatus(ctx context.Context, units []domain.Unit) (map[string]domain.LiveStatus, error) {
	targets := make([]string, 0, len(units))
	for _, u := range units {
		targets = append(targets, u.Target)
	}

	statuses, err := s.status.BatchGetStatus(ctx, targets)
	if err != nil {
		return nil, fmt.Errorf("batch get status: %w", err)
	}

	byTarget := make(map[string]domain.LiveStatus, len(statuses))
	for _, st := range statuses {
		byTarget[st.Target] = st
	}
	return byTarget, nil
}

func (s *Scheduler) checkStatus(ctx context.Context, unit domain.Unit, cur domain.LiveStatus, firstTick bool) (targetResult, error) {
	old, cached, err := s.statuses.Get(ctx, unit.Target)
	if err != nil {
		return targetResult{}, fmt.Errorf("get cached status: %w", err)
	}

	var posts []domain.Post
	switch {
	case firstTick && s.cfg.PushOnStartup && cur.IsLive:
		posts = live.CompareStatus(domain.LiveStatus{Target: unit.Target}, cur)
	case cached:
		posts = live.CompareStatus(old, cur)
	}

	var res targetResult
	if len(posts) > 0 {
		res.newPosts = len(posts)
		res.dispatched = s.dispatcher.Dispatch(ctx, domain.SourceStatus, posts, unit.Subscribers)
		s.logger.Info("live status changed",
			"target", unit.Target,
			"category", posts[0].Category,
			"title", cur.Title,
			"dispatched", res.dispatched,
		)
	}

	if err := s.statuses.Put(ctx, unit.Target, cur); err != nil {
		return res, fmt.Errorf("save status: %w", err)
	}
	return res, nil
}

// ManualCheck announces every currently live target the subscriber follows
// as if it had just gone live, and returns the number of announcements.
func (s *Scheduler) ManualCheck(ctx context.Context, subscriberID string) (int, error) {
	subs, err := s.registry.List(ctx, subscriberID)
	if err != nil {
		return 0, fmt.Errorf("list subscriptions: %w", err)
	}

	units := domain.FilterUnits(domain.GroupSubscriptions(subs), domain.SourceStatus)
	s.logger.Info("manual check started",
		"subscriber", subscriberID,
		"targets", len(units),
	)

	count := 0
	for _, unit := range units {
		st, err := s.status.GetStatus(ctx, unit.Target)
		if err != nil {
			s.logger.Error("manual check failed",
				"target", unit.Target,
				"error", err,
			)
			continue
		}
		if !st.IsLive {
			continue
		}

		post := live.StatusPost(live.ActionTurnOn, st)
		s.dispatcher.Dispatch(ctx, domain.SourceStatus, []domain.Post{post}, unit.Subscribers)
		count++
	}
	return count, nil
}

func guard(fn func() (targetResult, error)) (res targetResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn()
}
