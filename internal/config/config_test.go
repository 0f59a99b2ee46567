package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bili_push/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "log_level: debug\n"))
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "data/bili_push.db", cfg.Database.ConnString())
	assert.Equal(t, 30*time.Second, cfg.Scheduler.Interval)
	assert.Equal(t, 100, cfg.Scheduler.SeenCap)
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrent)
	assert.Equal(t, 2.0, cfg.API.RequestsPerSecond)
	assert.Equal(t, 20*time.Second, cfg.API.Timeout)
	assert.Equal(t, 2, cfg.API.Retry.MaxAttempts)
	assert.Equal(t, time.Second, cfg.API.Retry.InitialBackoff)
	assert.Equal(t, 10*time.Second, cfg.API.Retry.MaxBackoff)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Empty(t, cfg.RabbitMQ.URL)
	assert.False(t, cfg.Scheduler.PushOnStartup)
}

func TestLoad_ExpandsEnvironment(t *testing.T) {
	t.Setenv("BILI_PUSH_TEST_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, `
database:
  driver: postgres
  host: db
  user: bili
  password: ${BILI_PUSH_TEST_PASSWORD}
  dbname: bili
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t,
		"host=db port=5432 user=bili password=s3cret dbname=bili sslmode=disable",
		cfg.Database.ConnString(),
	)
}

func TestLoad_SeedEntries(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
scheduler:
  interval: 1m
  push_on_startup: true
accounts:
  - uid: "10"
    name: alice
    cookies:
      SESSDATA: abc
subscriptions:
  - uid: "42"
    type: dynamic
    subscriber: group-1
    categories: [3, 4]
    tags: [music]
  - uid: "42"
    type: live
    subscriber: group-1
    categories: [1]
    enabled: false
`))
	require.NoError(t, err)

	assert.Equal(t, time.Minute, cfg.Scheduler.Interval)
	assert.True(t, cfg.Scheduler.PushOnStartup)

	require.Len(t, cfg.Accounts, 1)
	acc := cfg.Accounts[0].Account()
	assert.Equal(t, "10", acc.ID)
	assert.True(t, acc.Valid)
	assert.Equal(t, "abc", acc.Cookies["SESSDATA"])

	require.Len(t, cfg.Subscriptions, 2)
	feed := cfg.Subscriptions[0].Subscription()
	assert.Equal(t, domain.SourceFeed, feed.Kind)
	assert.Equal(t, []domain.Category{domain.CategoryVideo, domain.CategoryText}, feed.Categories)
	assert.True(t, feed.Enabled)

	live := cfg.Subscriptions[1].Subscription()
	assert.Equal(t, domain.SourceStatus, live.Kind)
	assert.False(t, live.Enabled)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "driver", body: "database:\n  driver: mysql\n"},
		{name: "subscription type", body: "subscriptions:\n  - uid: \"1\"\n    type: video\n    subscriber: g\n"},
		{name: "subscription uid", body: "subscriptions:\n  - type: live\n    subscriber: g\n"},
		{name: "account uid", body: "accounts:\n  - name: x\n"},
		{name: "yaml", body: "scheduler: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
