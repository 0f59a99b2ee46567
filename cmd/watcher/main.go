package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"bili_push/internal/account"
	"bili_push/internal/api"
	"bili_push/internal/config"
	"bili_push/internal/dedup"
	"bili_push/internal/dispatch"
	"bili_push/internal/domain"
	"bili_push/internal/publisher"
	"bili_push/internal/render"
	"bili_push/internal/scheduler"
	"bili_push/internal/source/bilibili"
	"bili_push/internal/source/dynamic"
	"bili_push/internal/source/live"
	"bili_push/internal/storage/sqlstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	logger := setupLogger("info")

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger = setupLogger(cfg.LogLevel)

	if err := run(cfg, logger); err != nil {
		logger.Error("watcher stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if cfg.Database.Driver == sqlstore.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
			return err
		}
	}

	db, err := sqlstore.Open(ctx, sqlstore.Config{
		Driver: cfg.Database.Driver,
		DSN:    cfg.Database.ConnString(),
	})
	if err != nil {
		return err
	}
	defer db.Close()
	logger.Info("connected to database", "driver", cfg.Database.Driver)

	kv := sqlstore.NewKVStore(db)
	registry := sqlstore.NewSubscriptionStore(db)

	pool := account.NewPool(kv, logger)
	if err := pool.Load(ctx); err != nil {
		return err
	}
	for _, acc := range cfg.Accounts {
		if err := pool.Add(ctx, acc.Account()); err != nil {
			return err
		}
	}

	if len(cfg.Subscriptions) > 0 {
		subs := make([]domain.Subscription, 0, len(cfg.Subscriptions))
		for _, s := range cfg.Subscriptions {
			subs = append(subs, s.Subscription())
		}
		if err := registry.Seed(ctx, subs); err != nil {
			return err
		}
		logger.Info("seeded subscriptions", "count", len(subs))
	}

	sender, closeSender, err := newSender(cfg.RabbitMQ, logger)
	if err != nil {
		return err
	}
	defer closeSender()

	client := bilibili.New(bilibili.Config{
		Timeout:           cfg.API.Timeout,
		UserAgent:         cfg.API.UserAgent,
		RequestsPerSecond: cfg.API.RequestsPerSecond,
		MaxAttempts:       cfg.API.Retry.MaxAttempts,
		InitialBackoff:    cfg.API.Retry.InitialBackoff,
		MaxBackoff:        cfg.API.Retry.MaxBackoff,
	}, pool, logger)

	sched := scheduler.New(
		dynamic.New(dynamic.Config{}, client, pool, logger),
		live.New(live.Config{}, client, logger),
		registry,
		dedup.NewSeenStore(kv, cfg.Scheduler.SeenCap, logger),
		dedup.NewStatusStore(kv, logger),
		dispatch.New(render.NewTextRenderer(cfg.Render.MaxImages), sender, logger),
		logger,
		scheduler.Config{
			Interval:      cfg.Scheduler.Interval,
			PushOnStartup: cfg.Scheduler.PushOnStartup,
			MaxConcurrent: cfg.Scheduler.MaxConcurrent,
		},
	)

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.New(sched, pool, registry, logger),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("http server starting", "addr", cfg.HTTP.Addr)
		serverErrors <- srv.ListenAndServe()
	}()

	logger.Info("starting watcher",
		"interval", cfg.Scheduler.Interval,
		"push_on_startup", cfg.Scheduler.PushOnStartup,
		"accounts", len(pool.List()),
	)
	sched.Start(ctx)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown failed", "error", err)
	}
	if err := sched.Stop(); err != nil {
		logger.Error("scheduler stop failed", "error", err)
	}

	logger.Info("watcher stopped")
	return runErr
}

func newSender(cfg config.RabbitMQConfig, logger *slog.Logger) (dispatch.Sender, func(), error) {
	if cfg.URL == "" {
		logger.Warn("rabbitmq url not set, notifications are only logged")
		return publisher.NewLog(logger), func() {}, nil
	}

	rabbitMQ, err := publisher.NewRabbitMQ(publisher.Config{
		URL:        cfg.URL,
		Exchange:   cfg.Exchange,
		RoutingKey: cfg.RoutingKey,
		QueueName:  cfg.QueueName,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	return rabbitMQ, func() {
		if err := rabbitMQ.Close(); err != nil {
			logger.Error("failed to close rabbitmq", "error", err)
		}
	}, nil
}

func setupLogger(level string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	handler := slog.NewJSONHandler(os.Stdout, opts)
	return slog.New(handler)
}
