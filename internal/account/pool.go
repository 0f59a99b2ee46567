// Package account keeps the ordered pool of upstream credentials and rotates
// through it when the upstream flags the current one.
package account

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"bili_push/internal/domain"
)

// StorageKey is the KV key the pool is persisted under.
const StorageKey = "bilibili_push_accounts"

// Store persists the pool. A nil Store keeps the pool in memory only.
type Store interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
}

type Pool struct {
	mu       sync.Mutex
	accounts []domain.Account
	current  int
	store    Store
	logger   *slog.Logger
}

func NewPool(store Store, logger *slog.Logger) *Pool {
	return &Pool{
		store:  store,
		logger: logger.With("component", "account_pool"),
	}
}

// Load replaces the in-memory pool with the persisted one and resets the
// index to the first account.
func (p *Pool) Load(ctx context.Context) error {
	if p.store == nil {
		return nil
	}

	var accounts []domain.Account
	if _, err := p.store.Get(ctx, StorageKey, &accounts); err != nil {
		return fmt.Errorf("load accounts: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.accounts = accounts
	p.current = 0

	p.logger.Info("loaded accounts", "count", len(accounts))
	return nil
}

// Current returns the account the transport should use. ok is false when the
// pool is empty.
func (p *Pool) Current() (domain.Account, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.accounts) == 0 {
		return domain.Account{}, false
	}
	return p.accounts[p.current].Clone(), true
}

// Rotate advances to the next valid account after the current index. It
// checks at most len(pool) entries; when none is valid it returns false and
// the index is left on the last entry checked.
func (p *Pool) Rotate() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rotateLocked()
}

func (p *Pool) rotateLocked() bool {
	total := len(p.accounts)
	for attempts := 0; attempts < total; attempts++ {
		p.current = (p.current + 1) % total
		acc := p.accounts[p.current]
		if acc.Valid {
			p.logger.Info("switched account", "uid", acc.ID, "name", acc.DisplayName)
			return true
		}
	}
	return false
}

// Invalidate marks accountID invalid with the upstream code, persists the
// pool and rotates. Only the current account is touched: when another caller
// already rotated away from accountID, the pool is left as is. It reports
// whether a valid account is now current.
func (p *Pool) Invalidate(ctx context.Context, accountID string, code int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.accounts) == 0 {
		return false
	}

	acc := &p.accounts[p.current]
	if acc.ID != accountID {
		return acc.Valid
	}
	if !acc.Valid {
		return false
	}

	acc.Valid = false
	acc.LastErrorCode = &code
	p.logger.Warn("marking account invalid", "uid", acc.ID, "name", acc.DisplayName, "code", code)

	p.saveLocked(ctx)
	return p.rotateLocked()
}

// MarkValid clears the error state of accountID after a request it made
// succeeded. Anonymous requests (empty accountID) and accounts that are no
// longer current are ignored. Nothing is persisted when the account was
// already clean.
func (p *Pool) MarkValid(ctx context.Context, accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if accountID == "" || len(p.accounts) == 0 {
		return
	}
	acc := &p.accounts[p.current]
	if acc.ID != accountID {
		return
	}
	if acc.Valid && acc.LastErrorCode == nil {
		return
	}
	acc.Valid = true
	acc.LastErrorCode = nil
	p.saveLocked(ctx)
}

// Add upserts an account by ID. Added or refreshed accounts are valid.
func (p *Pool) Add(ctx context.Context, acc domain.Account) error {
	if acc.ID == "" {
		return fmt.Errorf("add account: empty uid")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	acc = acc.Clone()
	acc.Valid = true
	acc.LastErrorCode = nil

	if len(p.accounts) == 0 {
		p.current = 0
	}

	replaced := false
	for i := range p.accounts {
		if p.accounts[i].ID == acc.ID {
			p.accounts[i] = acc
			replaced = true
			break
		}
	}
	if !replaced {
		p.accounts = append(p.accounts, acc)
	}

	p.logger.Info("account stored", "uid", acc.ID, "name", acc.DisplayName, "replaced", replaced)
	return p.save(ctx)
}

func (p *Pool) List() []domain.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]domain.Account, len(p.accounts))
	for i, acc := range p.accounts {
		out[i] = acc.Clone()
	}
	return out
}

func (p *Pool) save(ctx context.Context) error {
	if p.store == nil {
		return nil
	}
	if err := p.store.Put(ctx, StorageKey, p.accounts); err != nil {
		return fmt.Errorf("save accounts: %w", err)
	}
	return nil
}

// saveLocked persists and only logs on failure; the in-memory pool stays
// authoritative for the rest of the process.
func (p *Pool) saveLocked(ctx context.Context) {
	if err := p.save(ctx); err != nil {
		p.logger.Error("failed to persist accounts", "error", err)
	}
}
