package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"concierge_backend/internal/email"
	"concierge_backend/internal/leadscores"
	leadscorerepo "concierge_backend/internal/leadscores/repository"
	"concierge_backend/internal/notification"
	"concierge_backend/internal/notification/outbox"
	"concierge_backend/internal/scheduler"
	"concierge_backend/internal/webhook"
	"concierge_backend/internal/whatsapp"
	"concierge_backend/platform/config"
	"concierge_backend/platform/db"
	"concierge_backend/platform/events"
	"concierge_backend/platform/logger"
	"concierge_backend/platform/validator"

	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Error("scheduler exited", "error", err)
		os.Exit(1)
	}
}

// run drives the delivery pipeline: the dispatcher moves due outbox rows onto
// the asynq queue, the worker hands each task to the notification module, and
// the cleanup loop enforces lead score retention.
func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}
	outboxRepo := outbox.New(pool)
	notificationModule := notification.New(outboxRepo, sender, cfg, log)
	notificationModule.AttachChannels(whatsapp.NewClient(cfg, log), webhook.NewClient(cfg))
	notificationModule.RegisterHandlers(eventBus)

	leadScoresModule, err := leadscores.NewModule(leadscorerepo.New(pool), eventBus, validator.New(), cfg, log)
	if err != nil {
		return fmt.Errorf("lead scores module: %w", err)
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		return fmt.Errorf("scheduler client: %w", err)
	}
	defer func() { _ = client.Close() }()

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		return fmt.Errorf("scheduler worker: %w", err)
	}

	dispatcher := scheduler.NewNotificationOutboxDispatcher(outboxRepo, client, log)
	cleanup := scheduler.NewLeadScoreCleanup(leadScoresModule.Service(), log, cfg.GetLeadScoreCleanupInterval(), cfg.GetLeadScoreRetention())

	g, gctx := errgroup.WithContext(ctx)
	for _, loop := range []func(context.Context){dispatcher.Run, worker.Run, cleanup.Run} {
		g.Go(func() error {
			loop(gctx)
			return nil
		})
	}

	err = g.Wait()
	eventBus.Wait()
	log.Info("scheduler stopped")
	return err
}
