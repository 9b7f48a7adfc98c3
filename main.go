package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"go.uber.org/zap"

	"github.com/biamino/team-report-bot/internal/cache"
	"github.com/biamino/team-report-bot/internal/config"
	"github.com/biamino/team-report-bot/internal/dialog"
	"github.com/biamino/team-report-bot/internal/fanout"
	"github.com/biamino/team-report-bot/internal/handlers"
	"github.com/biamino/team-report-bot/internal/scheduler"
	"github.com/biamino/team-report-bot/internal/tasksource"
	"github.com/biamino/team-report-bot/internal/transport"
	"github.com/biamino/team-report-bot/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisDB, cfg.RedisPrefix)
	if err != nil {
		logger.Fatal("redis connect failed", zap.Error(err))
	}
	defer rdb.Close()

	sessions := store.NewRedisSessionStore(rdb, cfg.SessionTTL)

	pgStore, err := store.NewPostgresStore(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("postgres connect failed", zap.Error(err))
	}
	defer pgStore.Close()

	dir := cache.NewDirectory(cache.New(cfg.CacheTTL, logger.Named("cache")), pgStore)

	httpClient := &http.Client{
		Timeout: 10 * time.Minute,
	}
	pollTimeout := 50 * time.Second

	b, err := bot.New(
		cfg.BotToken,
		bot.WithHTTPClient(pollTimeout, httpClient),
	)
	if err != nil {
		logger.Fatal("bot create failed", zap.Error(err))
	}

	dispatcher := fanout.NewEngine(
		transport.NewTelegram(b),
		fanout.Config{
			Workers:        cfg.FanoutWorkers,
			MaxRetries:     cfg.FanoutMaxRetries,
			AttemptTimeout: cfg.FanoutAttemptTimeout,
		},
		logger.Named("fanout"),
	)

	engine := dialog.NewEngine(sessions, pgStore, dir, dispatcher, dialog.Config{
		AdminIDs: cfg.AdminIDs,
		PageSize: cfg.PageSize,
	}, logger.Named("dialog"))

	var source scheduler.TaskSource
	if cfg.TaskSourceURL != "" {
		source = tasksource.NewClient(cfg.TaskSourceURL, cfg.TaskSourceToken)
	}

	sched := scheduler.NewScheduler(pgStore, dir, dispatcher, source, scheduler.Config{
		RemindUnreportedSpec: cfg.RemindUnreportedSpec,
		RemindLateSpec:       cfg.RemindLateSpec,
		DeadlineWarningSpec:  cfg.DeadlineWarningSpec,
		TaskSyncSpec:         cfg.TaskSyncSpec,
	}, logger.Named("scheduler"))
	if err := sched.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}
	defer sched.Stop()

	h := handlers.NewHandlers(engine, logger.Named("handlers"))

	b.RegisterHandlerMatchFunc(func(update *models.Update) bool {
		return update.Message != nil
	}, h.MainHandler)

	b.RegisterHandler(bot.HandlerTypeCallbackQueryData, "", bot.MatchTypePrefix, h.MainHandler)

	logger.Info("bot started")
	b.Start(ctx)
}
