package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"bili_push/internal/domain"
	"bili_push/internal/scheduler/mocks"
)

type SchedulerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	feed       *mocks.MockFeedSource
	status     *mocks.MockStatusSource
	registry   *mocks.MockRegistry
	seen       *mocks.MockSeenStore
	statuses   *mocks.MockStatusStore
	dispatcher *mocks.MockDispatcher

	cfg    Config
	logger *slog.Logger
}

func (s *SchedulerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.feed = mocks.NewMockFeedSource(s.ctrl)
	s.status = mocks.NewMockStatusSource(s.ctrl)
	s.registry = mocks.NewMockRegistry(s.ctrl)
	s.seen = mocks.NewMockSeenStore(s.ctrl)
	s.statuses = mocks.NewMockStatusStore(s.ctrl)
	s.dispatcher = mocks.NewMockDispatcher(s.ctrl)

	s.cfg = Config{
		Interval:      time.Hour,
		MaxConcurrent: 5,
	}
	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func (s *SchedulerTestSuite) TearDownTest() {
	s.ctrl.Finish()
}

func TestSchedulerTestSuite(t *testing.T) {
	suite.Run(t, new(SchedulerTestSuite))
}

func (s *SchedulerTestSuite) newScheduler() *Scheduler {
	return New(s.feed, s.status, s.registry, s.seen, s.statuses, s.dispatcher, s.logger, s.cfg)
}

func sub(uid string, kind domain.SourceKind, subscriber string, categories ...domain.Category) domain.Subscription {
	return domain.Subscription{
		UID:          uid,
		Kind:         kind,
		SubscriberID: subscriber,
		Categories:   categories,
		Enabled:      true,
	}
}

func liveStatus(target string, isLive bool, title string) domain.LiveStatus {
	return domain.LiveStatus{Target: target, IsLive: isLive, Title: title, RoomID: 100, LiveState: 1}
}

func (s *SchedulerTestSuite) TestTick_FeedNewPostsDispatched() {
	ctx := context.Background()
	posts := []domain.Post{{ID: "p3", Timestamp: 300}, {ID: "p1", Timestamp: 100}}
	fresh := posts[:1]
	subscribers := []domain.Subscriber{
		{ID: "g1", Categories: []domain.Category{1}},
		{ID: "g2", Categories: []domain.Category{3}},
	}

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{
		sub("42", domain.SourceFeed, "g1", 1),
		sub("42", domain.SourceFeed, "g2", 3),
	}, nil)
	s.feed.EXPECT().Fetch(ctx, "42").Return(posts, nil)
	s.seen.EXPECT().Diff(ctx, "42", posts).Return(fresh, nil)
	s.dispatcher.EXPECT().Dispatch(ctx, domain.SourceFeed, fresh, subscribers).Return(1)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(1, stats.Targets)
	s.Equal(0, stats.Failed)
	s.Equal(1, stats.NewPosts)
	s.Equal(1, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_FeedNothingNew() {
	ctx := context.Background()
	posts := []domain.Post{{ID: "p1"}}

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("42", domain.SourceFeed, "g1", 1)}, nil)
	s.feed.EXPECT().Fetch(ctx, "42").Return(posts, nil)
	s.seen.EXPECT().Diff(ctx, "42", posts).Return(nil, nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(0, stats.NewPosts)
	s.Equal(0, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_DisabledSubscriptionsIgnored() {
	ctx := context.Background()
	disabled := sub("42", domain.SourceFeed, "g1", 1)
	disabled.Enabled = false

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{disabled}, nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(0, stats.Targets)
}

func (s *SchedulerTestSuite) TestTick_TargetFailureIsolated() {
	ctx := context.Background()
	posts := []domain.Post{{ID: "x"}}

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{
		sub("1", domain.SourceFeed, "g1", 1),
		sub("2", domain.SourceFeed, "g1", 1),
		sub("3", domain.SourceFeed, "g1", 1),
	}, nil)
	s.feed.EXPECT().Fetch(gomock.Any(), "1").Return(nil, errors.New("timeout"))
	s.feed.EXPECT().Fetch(gomock.Any(), "2").DoAndReturn(func(context.Context, string) ([]domain.Post, error) {
		panic("boom")
	})
	s.feed.EXPECT().Fetch(gomock.Any(), "3").Return(posts, nil)
	s.seen.EXPECT().Diff(gomock.Any(), "3", posts).Return(posts, nil)
	s.dispatcher.EXPECT().Dispatch(gomock.Any(), domain.SourceFeed, posts, gomock.Any()).Return(1)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(3, stats.Targets)
	s.Equal(2, stats.Failed)
	s.Equal(1, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_DiffFailureCountsAsFailed() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("1", domain.SourceFeed, "g1", 1)}, nil)
	s.feed.EXPECT().Fetch(ctx, "1").Return([]domain.Post{{ID: "a"}}, nil)
	s.seen.EXPECT().Diff(ctx, "1", gomock.Any()).Return(nil, errors.New("db down"))

	stats := s.newScheduler().Tick(ctx)

	s.Equal(1, stats.Failed)
}

func (s *SchedulerTestSuite) TestTick_RegistryFailure() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx, "").Return(nil, errors.New("db down"))

	stats := s.newScheduler().Tick(ctx)

	s.Equal(domain.TickStats{}, stats)
}

func (s *SchedulerTestSuite) TestTick_LiveTurnOn() {
	ctx := context.Background()
	cur := liveStatus("9", true, "Stream")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("9", domain.SourceStatus, "g1", 1, 2, 3)}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "9").Return(liveStatus("9", false, ""), true, nil)
	s.dispatcher.EXPECT().Dispatch(ctx, domain.SourceStatus, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.SourceKind, posts []domain.Post, subs []domain.Subscriber) int {
			if s.Len(posts, 1) && s.Len(subs, 1) {
				s.Equal(domain.CategoryLiveOn, posts[0].Category)
				s.Equal("[Live] Stream", posts[0].Title)
				s.Equal("g1", subs[0].ID)
			}
			return 1
		})
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(1, stats.NewPosts)
	s.Equal(1, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_LiveNoChange() {
	ctx := context.Background()
	cur := liveStatus("9", true, "Stream")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("9", domain.SourceStatus, "g1", 1)}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "9").Return(cur, true, nil)
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(0, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_LiveWithoutCacheIsBaselineOnly() {
	ctx := context.Background()
	cur := liveStatus("9", true, "Stream")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("9", domain.SourceStatus, "g1", 1)}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "9").Return(domain.LiveStatus{}, false, nil)
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(0, stats.Dispatched)
	s.Equal(0, stats.Failed)
}

func (s *SchedulerTestSuite) TestTick_PushOnStartupFiresOnce() {
	ctx := context.Background()
	s.cfg.PushOnStartup = true
	cur := liveStatus("9", true, "Stream")
	subs := []domain.Subscription{sub("9", domain.SourceStatus, "g1", 1)}

	s.registry.EXPECT().List(ctx, "").Return(subs, nil).Times(2)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil).Times(2)
	gomock.InOrder(
		s.statuses.EXPECT().Get(ctx, "9").Return(cur, true, nil),
		s.statuses.EXPECT().Get(ctx, "9").Return(cur, true, nil),
	)
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(nil).Times(2)
	s.dispatcher.EXPECT().Dispatch(ctx, domain.SourceStatus, gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ domain.SourceKind, posts []domain.Post, _ []domain.Subscriber) int {
			s.Equal(domain.CategoryLiveOn, posts[0].Category)
			return 1
		}).Times(1)

	scheduler := s.newScheduler()
	first := scheduler.Tick(ctx)
	second := scheduler.Tick(ctx)

	s.Equal(1, first.Dispatched)
	s.Equal(0, second.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_PushOnStartupSkipsOfflineTargets() {
	ctx := context.Background()
	s.cfg.PushOnStartup = true
	cur := liveStatus("9", false, "")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("9", domain.SourceStatus, "g1", 1)}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "9").Return(domain.LiveStatus{}, false, nil)
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(0, stats.Dispatched)
}

func (s *SchedulerTestSuite) TestTick_LiveBatchFailureSparesFeeds() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{
		sub("1", domain.SourceFeed, "g1", 1),
		sub("8", domain.SourceStatus, "g1", 1),
		sub("9", domain.SourceStatus, "g1", 1),
	}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"8", "9"}).Return(nil, errors.New("timeout"))
	s.feed.EXPECT().Fetch(ctx, "1").Return(nil, nil)
	s.seen.EXPECT().Diff(ctx, "1", nil).Return(nil, nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(3, stats.Targets)
	s.Equal(2, stats.Failed)
}

func (s *SchedulerTestSuite) TestTick_StatusMissingFromBatch() {
	ctx := context.Background()
	cur := liveStatus("8", false, "")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{
		sub("8", domain.SourceStatus, "g1", 1),
		sub("9", domain.SourceStatus, "g1", 1),
	}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"8", "9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "8").Return(cur, true, nil)
	s.statuses.EXPECT().Put(ctx, "8", cur).Return(nil)

	stats := s.newScheduler().Tick(ctx)

	s.Equal(1, stats.Failed)
}

func (s *SchedulerTestSuite) TestTick_StatusPersistFailureStillDispatches() {
	ctx := context.Background()
	cur := liveStatus("9", false, "Stream")

	s.registry.EXPECT().List(ctx, "").Return([]domain.Subscription{sub("9", domain.SourceStatus, "g1", 3)}, nil)
	s.status.EXPECT().BatchGetStatus(ctx, []string{"9"}).Return([]domain.LiveStatus{cur}, nil)
	s.statuses.EXPECT().Get(ctx, "9").Return(liveStatus("9", true, "Stream"), true, nil)
	s.dispatcher.EXPECT().Dispatch(ctx, domain.SourceStatus, gomock.Any(), gomock.Any()).Return(1)
	s.statuses.EXPECT().Put(ctx, "9", cur).Return(errors.New("disk full"))

	stats := s.newScheduler().Tick(ctx)

	s.Equal(1, stats.Dispatched)
	s.Equal(1, stats.Failed)
}

// memoryStatuses backs the status store mock with a map so overlapping ticks
// observe each other's writes.
func (s *SchedulerTestSuite) memoryStatuses(initial map[string]domain.LiveStatus) {
	var mu sync.Mutex
	s.statuses.EXPECT().Get(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, target string) (domain.LiveStatus, bool, error) {
			mu.Lock()
			defer mu.Unlock()
			st, ok := initial[target]
			return st, ok, nil
		}).AnyTimes()
	s.statuses.EXPECT().Put(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, target string, st domain.LiveStatus) error {
			mu.Lock()
			defer mu.Unlock()
			initial[target] = st
			return nil
		}).AnyTimes()
}

func (s *SchedulerTestSuite) runConcurrentTicks(scheduler *Scheduler, n int) []domain.TickStats {
	stats := make([]domain.TickStats, n)
	var wg sync.WaitGroup
	for i := range stats {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats[i] = scheduler.Tick(context.Background())
		}()
	}
	wg.Wait()
	return stats
}

func (s *SchedulerTestSuite) TestTick_OverlappingTicksDispatchTurnOnOnce() {
	s.registry.EXPECT().List(gomock.Any(), "").
		Return([]domain.Subscription{sub("42", domain.SourceStatus, "g1", 1)}, nil).AnyTimes()
	s.status.EXPECT().BatchGetStatus(gomock.Any(), []string{"42"}).
		Return([]domain.LiveStatus{liveStatus("42", true, "Stream")}, nil).AnyTimes()
	s.memoryStatuses(map[string]domain.LiveStatus{"42": liveStatus("42", false, "")})
	s.dispatcher.EXPECT().Dispatch(gomock.Any(), domain.SourceStatus, gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.SourceKind, []domain.Post, []domain.Subscriber) int {
			time.Sleep(10 * time.Millisecond)
			return 1
		}).Times(1)

	stats := s.runConcurrentTicks(s.newScheduler(), 2)

	s.Equal(1, stats[0].Dispatched+stats[1].Dispatched)
}

func (s *SchedulerTestSuite) TestTick_OverlappingFirstTicksPushOnStartupOnce() {
	s.cfg.PushOnStartup = true
	s.registry.EXPECT().List(gomock.Any(), "").
		Return([]domain.Subscription{sub("42", domain.SourceStatus, "g1", 1)}, nil).AnyTimes()
	s.status.EXPECT().BatchGetStatus(gomock.Any(), []string{"42"}).
		Return([]domain.LiveStatus{liveStatus("42", true, "Stream")}, nil).AnyTimes()
	s.memoryStatuses(map[string]domain.LiveStatus{})
	s.dispatcher.EXPECT().Dispatch(gomock.Any(), domain.SourceStatus, gomock.Any(), gomock.Any()).
		Return(1).Times(1)

	stats := s.runConcurrentTicks(s.newScheduler(), 3)

	total := 0
	for _, st := range stats {
		total += st.Dispatched
	}
	s.Equal(1, total)
}

func (s *SchedulerTestSuite) TestManualCheck() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx, "g1").Return([]domain.Subscription{
		sub("8", domain.SourceStatus, "g1", 1),
		sub("9", domain.SourceStatus, "g1", 1),
		sub("7", domain.SourceStatus, "g1", 1),
		sub("1", domain.SourceFeed, "g1", 1),
	}, nil)
	s.status.EXPECT().GetStatus(ctx, "8").Return(liveStatus("8", true, "On air"), nil)
	s.status.EXPECT().GetStatus(ctx, "9").Return(liveStatus("9", false, ""), nil)
	s.status.EXPECT().GetStatus(ctx, "7").Return(domain.LiveStatus{}, errors.New("timeout"))
	s.dispatcher.EXPECT().Dispatch(ctx, domain.SourceStatus, gomock.Any(), []domain.Subscriber{{ID: "g1", Categories: []domain.Category{1}}}).
		DoAndReturn(func(_ context.Context, _ domain.SourceKind, posts []domain.Post, _ []domain.Subscriber) int {
			s.Equal("[Live] On air", posts[0].Title)
			return 1
		})

	count, err := s.newScheduler().ManualCheck(ctx, "g1")

	s.Require().NoError(err)
	s.Equal(1, count)
}

func (s *SchedulerTestSuite) TestManualCheck_RegistryFailure() {
	ctx := context.Background()

	s.registry.EXPECT().List(ctx, "g1").Return(nil, errors.New("db down"))

	_, err := s.newScheduler().ManualCheck(ctx, "g1")

	s.Error(err)
}

func (s *SchedulerTestSuite) TestStartStop() {
	ticked := make(chan struct{}, 1)
	s.registry.EXPECT().List(gomock.Any(), "").DoAndReturn(func(context.Context, string) ([]domain.Subscription, error) {
		select {
		case ticked <- struct{}{}:
		default:
		}
		return nil, nil
	}).MinTimes(1)
	s.dispatcher.EXPECT().Close().Return(nil).Times(1)

	scheduler := s.newScheduler()
	s.NoError(scheduler.Stop(), "stop while stopped is a no-op")

	scheduler.Start(context.Background())
	scheduler.Start(context.Background())
	s.True(scheduler.Running())

	select {
	case <-ticked:
	case <-time.After(time.Second):
		s.Fail("first tick did not run")
	}

	s.NoError(scheduler.Stop())
	s.False(scheduler.Running())
	s.NoError(scheduler.Stop())
}
