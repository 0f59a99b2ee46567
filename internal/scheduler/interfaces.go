package scheduler

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"bili_push/internal/domain"
)

type FeedSource interface {
	Fetch(ctx context.Context, target string) ([]domain.Post, error)
}

type StatusSource interface {
	GetStatus(ctx context.Context, target string) (domain.LiveStatus, error)
	BatchGetStatus(ctx context.Context, targets []string) ([]domain.LiveStatus, error)
}

// Registry lists subscriptions. An empty subscriberID lists every subscriber.
type Registry interface {
	List(ctx context.Context, subscriberID string) ([]domain.Subscription, error)
}

type SeenStore interface {
	Diff(ctx context.Context, target string, posts []domain.Post) ([]domain.Post, error)
}

type StatusStore interface {
	Get(ctx context.Context, target string) (domain.LiveStatus, bool, error)
	Put(ctx context.Context, target string, status domain.LiveStatus) error
}

type Dispatcher interface {
	Dispatch(ctx context.Context, kind domain.SourceKind, posts []domain.Post, subscribers []domain.Subscriber) int
	Close() error
}
