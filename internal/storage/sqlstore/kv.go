package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// KVStore keeps JSON documents by key. It backs the account pool, the
// seen-sets and the live status cache.
type KVStore struct {
	db *sqlx.DB
}

func NewKVStore(db *sqlx.DB) *KVStore {
	return &KVStore{db: db}
}

// Get decodes the value stored under key into dst. It reports false when the
// key does not exist.
func (s *KVStore) Get(ctx context.Context, key string, dst any) (bool, error) {
	var raw string
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &raw,
		s.db.Rebind("SELECT kv_value FROM kv_store WHERE kv_key = ?"), key)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *KVStore) Put(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	query := `
		INSERT INTO kv_store (kv_key, kv_value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (kv_key) DO UPDATE SET
			kv_value = excluded.kv_value,
			updated_at = excluded.updated_at`

	_, err = GetExecutor(ctx, s.db).ExecContext(ctx, s.db.Rebind(query), key, string(data))
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
