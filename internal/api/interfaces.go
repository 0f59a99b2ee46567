package api

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"bili_push/internal/domain"
)

type Checker interface {
	ManualCheck(ctx context.Context, subscriberID string) (int, error)
	Tick(ctx context.Context) domain.TickStats
}

type AccountPool interface {
	List() []domain.Account
	Add(ctx context.Context, acc domain.Account) error
}

type Registry interface {
	List(ctx context.Context, subscriberID string) ([]domain.Subscription, error)
	ListByTargets(ctx context.Context, uids []string) ([]domain.Subscription, error)
	Add(ctx context.Context, sub domain.Subscription) error
	Remove(ctx context.Context, uid string, kind domain.SourceKind, subscriberID string) (bool, error)
}
