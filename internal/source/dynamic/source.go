// Package dynamic fetches a user's posts from the space feed. The signed
// polymer endpoint is tried first; the legacy space_history endpoint serves
// as fallback. Both are normalized into domain.Post.
package dynamic

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"bili_push/internal/domain"
	"bili_push/internal/source/bilibili"
)

const (
	DefaultFeedURL    = "https://api.bilibili.com/x/polymer/web-dynamic/v1/feed/space"
	DefaultHistoryURL = "https://api.vc.bilibili.com/dynamic_svr/v1/dynamic_svr/space_history"
)

// Client is the upstream transport.
type Client interface {
	GetJSONWithAccount(ctx context.Context, endpoint string, params url.Values, headers http.Header, out any) (string, error)
	SignWBI(ctx context.Context, params url.Values) (url.Values, error)
}

// AccountPool is the part of the account pool the source drives.
type AccountPool interface {
	Invalidate(ctx context.Context, accountID string, code int) bool
	MarkValid(ctx context.Context, accountID string)
}

// Config holds endpoint overrides.
type Config struct {
	FeedURL    string
	HistoryURL string
}

type Source struct {
	client     Client
	pool       AccountPool
	feedURL    string
	historyURL string
	logger     *slog.Logger
}

func New(cfg Config, client Client, pool AccountPool, logger *slog.Logger) *Source {
	if cfg.FeedURL == "" {
		cfg.FeedURL = DefaultFeedURL
	}
	if cfg.HistoryURL == "" {
		cfg.HistoryURL = DefaultHistoryURL
	}
	return &Source{
		client:     client,
		pool:       pool,
		feedURL:    cfg.FeedURL,
		historyURL: cfg.HistoryURL,
		logger:     logger.With("source", domain.SourceFeed),
	}
}

// Fetch returns the target's recent posts, newest first.
func (s *Source) Fetch(ctx context.Context, target string) ([]domain.Post, error) {
	logger := s.logger.With("target", target)

	posts, account, err := s.fetchFeed(ctx, target)
	if s.rotateOnRisk(ctx, logger, err) {
		posts, account, err = s.fetchFeed(ctx, target)
	}

	switch {
	case err == nil && len(posts) > 0:
		if account != "" {
			s.pool.MarkValid(ctx, account)
		}
		sortNewestFirst(posts)
		return posts, nil
	case err != nil:
		logger.Warn("feed request failed, falling back to history", "error", err)
	default:
		logger.Warn("feed returned no items, falling back to history")
	}

	posts, err = s.fetchHistory(ctx, target)
	if s.rotateOnRisk(ctx, logger, err) {
		posts, err = s.fetchHistory(ctx, target)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch history: %w", err)
	}

	sortNewestFirst(posts)
	return posts, nil
}

// rotateOnRisk invalidates the account that served a risk-control rejection
// and reports whether a valid account is current for the retry.
func (s *Source) rotateOnRisk(ctx context.Context, logger *slog.Logger, err error) bool {
	account, code, ok := bilibili.RiskRejection(err)
	if !ok {
		return false
	}
	rotated := s.pool.Invalidate(ctx, account, code)
	logger.Warn("risk control triggered",
		"account", account,
		"code", code,
		"rotated", rotated,
	)
	return rotated
}

// fetchFeed also returns the account whose cookies served the request.
func (s *Source) fetchFeed(ctx context.Context, target string) ([]domain.Post, string, error) {
	params := url.Values{}
	params.Set("host_mid", target)
	params.Set("features", "itemOpusStyle")

	signed, err := s.client.SignWBI(ctx, params)
	if err != nil {
		return nil, "", fmt.Errorf("sign feed request: %w", err)
	}

	var data FeedData
	account, err := s.client.GetJSONWithAccount(ctx, s.feedURL, signed, spaceReferer(target), &data)
	if err != nil {
		return nil, "", fmt.Errorf("get feed: %w", err)
	}

	posts := make([]domain.Post, 0, len(data.Items))
	for i, raw := range data.Items {
		var item Item
		if err := json.Unmarshal(raw, &item); err != nil {
			s.dropItem(target, &bilibili.SchemaError{Item: fmt.Sprintf("items[%d]", i), Err: err})
			continue
		}
		if item.Type == TypeNone {
			continue
		}
		post, err := toPost(&item)
		if err != nil {
			s.dropItem(target, err)
			continue
		}
		posts = append(posts, post)
	}
	return posts, account, nil
}

func (s *Source) fetchHistory(ctx context.Context, target string) ([]domain.Post, error) {
	params := url.Values{}
	params.Set("host_uid", target)
	params.Set("offset_dynamic_id", "0")
	params.Set("need_top", "0")
	params.Set("platform", "web")

	var data HistoryData
	if _, err := s.client.GetJSONWithAccount(ctx, s.historyURL, params, spaceReferer(target), &data); err != nil {
		return nil, fmt.Errorf("get space history: %w", err)
	}

	posts := make([]domain.Post, 0, len(data.Cards))
	for i, c := range data.Cards {
		post, err := s.convertCard(c)
		if err != nil {
			s.dropItem(target, &bilibili.SchemaError{Item: fmt.Sprintf("cards[%d]", i), Err: err})
			continue
		}
		posts = append(posts, post)
	}
	return posts, nil
}

func (s *Source) convertCard(c HistoryCard) (domain.Post, error) {
	desc, err := decodeFields(c.Desc)
	if err != nil {
		return domain.Post{}, fmt.Errorf("decode desc: %w", err)
	}
	card := fields{}
	if c.Card != "" {
		if card, err = decodeFields([]byte(c.Card)); err != nil {
			return domain.Post{}, fmt.Errorf("decode card: %w", err)
		}
	}
	return toPost(s.legacyItem(newLegacyDesc(desc), card, 1))
}

func (s *Source) dropItem(target string, err error) {
	s.logger.Warn("dropped malformed item",
		"target", target,
		"error", err,
	)
}

func spaceReferer(target string) http.Header {
	h := http.Header{}
	h.Set("Referer", "https://space.bilibili.com/"+target+"/dynamic")
	return h
}

func sortNewestFirst(posts []domain.Post) {
	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		return cmp.Compare(b.Timestamp, a.Timestamp)
	})
}
