package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"bili_push/internal/domain"
)

type subscriptionRow struct {
	UID          string `db:"uid"`
	Username     string `db:"username"`
	Kind         string `db:"sub_type"`
	SubscriberID string `db:"subscriber_id"`
	Categories   string `db:"categories"`
	Tags         string `db:"tags"`
	Enabled      bool   `db:"enabled"`
}

func (r subscriptionRow) toDomain() (domain.Subscription, error) {
	sub := domain.Subscription{
		UID:          r.UID,
		Username:     r.Username,
		Kind:         domain.SourceKind(r.Kind),
		SubscriberID: r.SubscriberID,
		Enabled:      r.Enabled,
	}
	if err := json.Unmarshal([]byte(r.Categories), &sub.Categories); err != nil {
		return sub, fmt.Errorf("decode categories: %w", err)
	}
	if err := json.Unmarshal([]byte(r.Tags), &sub.Tags); err != nil {
		return sub, fmt.Errorf("decode tags: %w", err)
	}
	return sub, nil
}

const subscriptionColumns = "uid, username, sub_type, subscriber_id, categories, tags, enabled"

// SubscriptionStore is the subscription registry. Rows are unique per
// (uid, kind, subscriber).
type SubscriptionStore struct {
	db *sqlx.DB
	tm *TransactionManager
}

func NewSubscriptionStore(db *sqlx.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db, tm: NewTransactionManager(db)}
}

// Add inserts sub or replaces the row with the same key.
func (s *SubscriptionStore) Add(ctx context.Context, sub domain.Subscription) error {
	if !sub.Kind.Valid() {
		return fmt.Errorf("add subscription: unknown kind %q", sub.Kind)
	}

	categories, err := json.Marshal(nonNil(sub.Categories))
	if err != nil {
		return fmt.Errorf("encode categories: %w", err)
	}
	tags, err := json.Marshal(nonNil(sub.Tags))
	if err != nil {
		return fmt.Errorf("encode tags: %w", err)
	}

	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (uid, sub_type, subscriber_id) DO UPDATE SET
			username = excluded.username,
			categories = excluded.categories,
			tags = excluded.tags,
			enabled = excluded.enabled`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, s.db.Rebind(query),
		sub.UID,
		sub.Username,
		string(sub.Kind),
		sub.SubscriberID,
		string(categories),
		string(tags),
		sub.Enabled,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// Remove deletes one subscription and reports whether a row existed.
func (s *SubscriptionStore) Remove(ctx context.Context, uid string, kind domain.SourceKind, subscriberID string) (bool, error) {
	res, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		s.db.Rebind("DELETE FROM subscriptions WHERE uid = ? AND sub_type = ? AND subscriber_id = ?"),
		uid, string(kind), subscriberID,
	)
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete subscription: %w", err)
	}
	return n > 0, nil
}

// List returns subscriptions ordered by insertion. An empty subscriberID
// lists every subscriber.
func (s *SubscriptionStore) List(ctx context.Context, subscriberID string) ([]domain.Subscription, error) {
	query := "SELECT " + subscriptionColumns + " FROM subscriptions"
	var args []any
	if subscriberID != "" {
		query += " WHERE subscriber_id = ?"
		args = append(args, subscriberID)
	}
	query += " ORDER BY created_at, uid, sub_type, subscriber_id"

	return s.query(ctx, s.db.Rebind(query), args...)
}

// ListByTargets returns the subscriptions watching any of uids.
func (s *SubscriptionStore) ListByTargets(ctx context.Context, uids []string) ([]domain.Subscription, error) {
	if len(uids) == 0 {
		return nil, nil
	}

	if s.db.DriverName() == DriverPostgres {
		query := "SELECT " + subscriptionColumns + " FROM subscriptions WHERE uid = ANY($1) ORDER BY created_at, uid"
		return s.query(ctx, query, pq.Array(uids))
	}

	query, args, err := sqlx.In("SELECT "+subscriptionColumns+" FROM subscriptions WHERE uid IN (?) ORDER BY created_at, uid", uids)
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}
	return s.query(ctx, s.db.Rebind(query), args...)
}

// Seed upserts subs in a single transaction.
func (s *SubscriptionStore) Seed(ctx context.Context, subs []domain.Subscription) error {
	return s.tm.WithTransaction(ctx, func(ctx context.Context) error {
		for _, sub := range subs {
			if err := s.Add(ctx, sub); err != nil {
				return fmt.Errorf("seed %s/%s/%s: %w", sub.Kind, sub.UID, sub.SubscriberID, err)
			}
		}
		return nil
	})
}

func (s *SubscriptionStore) query(ctx context.Context, query string, args ...any) ([]domain.Subscription, error) {
	var rows []subscriptionRow
	if err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select subscriptions: %w", err)
	}

	subs := make([]domain.Subscription, 0, len(rows))
	for _, row := range rows {
		sub, err := row.toDomain()
		if err != nil {
			return nil, fmt.Errorf("subscription %s/%s/%s: %w", row.Kind, row.UID, row.SubscriberID, err)
		}
		subs = append(subs, sub)
	}
	return subs, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
