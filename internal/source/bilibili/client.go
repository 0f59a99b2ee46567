// Package bilibili is the HTTP transport shared by the source adapters. It
// binds the current pool account to every request, paces requests, and
// classifies upstream failures.
package bilibili

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"bili_push/internal/domain"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
	DefaultNavURL    = "https://api.bilibili.com/x/web-interface/nav"
)

// AccountSource yields the credentials for the next request.
type AccountSource interface {
	Current() (domain.Account, bool)
}

// Config holds transport configuration.
type Config struct {
	Timeout           time.Duration
	UserAgent         string
	RequestsPerSecond float64
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	NavURL            string
}

type Client struct {
	httpClient     *http.Client
	accounts       AccountSource
	limiter        *rate.Limiter
	userAgent      string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	wbi            *wbiKeys
	logger         *slog.Logger
}

// Envelope is the common {code, message, data} wrapper of every endpoint.
// Account is the ID of the pool account whose cookies went out with the
// request, empty when it was sent anonymously.
type Envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Account string          `json:"-"`
}

func New(cfg Config, accounts AccountSource, logger *slog.Logger) *Client {
	jar, _ := cookiejar.New(nil)

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.NavURL == "" {
		cfg.NavURL = DefaultNavURL
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Jar:     jar,
		},
		accounts:       accounts,
		limiter:        rate.NewLimiter(limit, 1),
		userAgent:      cfg.UserAgent,
		maxAttempts:    cfg.MaxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("component", "bilibili_client"),
	}
	c.wbi = newWBIKeys(c, cfg.NavURL)
	return c
}

// GetJSON fetches endpoint and decodes the envelope's data into out. A
// non-zero envelope code is returned as *APIError.
func (c *Client) GetJSON(ctx context.Context, endpoint string, params url.Values, headers http.Header, out any) error {
	_, err := c.GetJSONWithAccount(ctx, endpoint, params, headers, out)
	return err
}

// GetJSONWithAccount is GetJSON that also reports the ID of the account whose
// cookies were attached to the successful request.
func (c *Client) GetJSONWithAccount(ctx context.Context, endpoint string, params url.Values, headers http.Header, out any) (string, error) {
	env, err := c.GetEnvelope(ctx, endpoint, params, headers)
	if err != nil {
		return "", err
	}
	if env.Code != 0 {
		return "", &APIError{
			Endpoint: endpoint,
			Status:   http.StatusOK,
			Code:     env.Code,
			Message:  env.Message,
			Account:  env.Account,
		}
	}
	if out == nil || len(env.Data) == 0 || string(env.Data) == "null" {
		return env.Account, nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return "", fmt.Errorf("decode %s data: %w", endpoint, err)
	}
	return env.Account, nil
}

// GetEnvelope fetches endpoint and returns the raw envelope without looking
// at its code. Transport failures are retried with backoff; upstream
// rejections are returned at once.
func (c *Client) GetEnvelope(ctx context.Context, endpoint string, params url.Values, headers http.Header) (*Envelope, error) {
	target := endpoint
	if len(params) > 0 {
		target += "?" + params.Encode()
	}

	var env *Envelope
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		env, err = c.doRequest(ctx, target, headers)
		if err == nil {
			return env, nil
		}

		if !retryable(err) || attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"endpoint", endpoint,
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, err
}

func (c *Client) doRequest(ctx context.Context, target string, headers http.Header) (*Envelope, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("wait for rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json, text/plain, */*")
	req.Header.Set("Accept-Language", "zh-CN,zh;q=0.9,en;q=0.8")
	req.Header.Set("Referer", "https://www.bilibili.com/")
	req.Header.Set("User-Agent", c.userAgent)
	for k, vs := range headers {
		req.Header[k] = vs
	}

	var accountID string
	if acc, ok := c.accounts.Current(); ok && acc.Valid {
		accountID = acc.ID
		for name, value := range acc.Cookies {
			req.AddCookie(&http.Cookie{Name: name, Value: value})
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Endpoint: req.URL.Path, Status: resp.StatusCode, Account: accountID}
	}

	var env Envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	env.Account = accountID
	return &env, nil
}

// retryable reports whether err is a transport failure or a server-side
// error. Envelope codes and client errors are final.
func retryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
	}
	return apiErr.Status >= http.StatusInternalServerError
}

func (c *Client) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if c.maxBackoff > 0 && backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}
