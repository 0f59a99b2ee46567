// Package live polls room status for a set of users and turns status
// transitions into posts.
package live

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"bili_push/internal/domain"
)

const DefaultStatusURL = "https://api.live.bilibili.com/room/v1/Room/get_status_info_by_uids"

// Client is the upstream transport.
type Client interface {
	GetJSON(ctx context.Context, endpoint string, params url.Values, headers http.Header, out any) error
}

// Config holds endpoint overrides.
type Config struct {
	StatusURL string
}

type Source struct {
	client    Client
	statusURL string
	now       func() time.Time
	logger    *slog.Logger
}

func New(cfg Config, client Client, logger *slog.Logger) *Source {
	if cfg.StatusURL == "" {
		cfg.StatusURL = DefaultStatusURL
	}
	return &Source{
		client:    client,
		statusURL: cfg.StatusURL,
		now:       time.Now,
		logger:    logger.With("source", domain.SourceStatus),
	}
}

// GetStatus returns the status of a single target.
func (s *Source) GetStatus(ctx context.Context, target string) (domain.LiveStatus, error) {
	statuses, err := s.BatchGetStatus(ctx, []string{target})
	if err != nil {
		return domain.LiveStatus{}, err
	}
	for _, st := range statuses {
		if st.Target == target {
			return st, nil
		}
	}
	return domain.LiveStatus{}, fmt.Errorf("no status for %s", target)
}

// BatchGetStatus fetches every target in one request. Targets missing from
// the response are reported offline with an otherwise zero status; entries
// that cannot be decoded are left out.
func (s *Source) BatchGetStatus(ctx context.Context, targets []string) ([]domain.LiveStatus, error) {
	if len(targets) == 0 {
		return nil, nil
	}

	params := url.Values{}
	for _, t := range targets {
		params.Add("uids[]", t)
	}

	var raw json.RawMessage
	if err := s.client.GetJSON(ctx, s.statusURL, params, nil, &raw); err != nil {
		return nil, fmt.Errorf("get live status: %w", err)
	}

	// An empty result comes back as [] instead of {}.
	entries := map[string]json.RawMessage{}
	if trimmed := bytes.TrimSpace(raw); len(trimmed) > 0 && trimmed[0] == '{' {
		if err := json.Unmarshal(trimmed, &entries); err != nil {
			return nil, fmt.Errorf("decode live status: %w", err)
		}
	}

	asOf := s.now()
	statuses := make([]domain.LiveStatus, 0, len(targets))
	for _, target := range targets {
		entry, ok := entries[target]
		if !ok {
			statuses = append(statuses, domain.LiveStatus{Target: target, AsOf: asOf})
			continue
		}

		var info StatusInfo
		if err := json.Unmarshal(entry, &info); err != nil {
			s.logger.Warn("dropped malformed status entry",
				"target", target,
				"error", err,
			)
			continue
		}
		statuses = append(statuses, toStatus(target, info, asOf))
	}
	return statuses, nil
}

func toStatus(target string, info StatusInfo, asOf time.Time) domain.LiveStatus {
	return domain.LiveStatus{
		Target:       target,
		Title:        info.Title,
		IsLive:       info.LiveStatus == StateLive,
		LiveState:    info.LiveStatus,
		RoomID:       int64(info.RoomID),
		StreamerName: info.Uname,
		AvatarURL:    info.Face,
		CoverURL:     info.Cover,
		KeyframeURL:  info.Keyframe,
		AreaName:     info.AreaName,
		LiveTime:     int64(info.LiveTime),
		AsOf:         asOf,
	}
}
