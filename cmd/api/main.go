package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concierge_backend/internal/email"
	apphttp "concierge_backend/internal/http"
	"concierge_backend/internal/http/router"
	"concierge_backend/internal/leadscores"
	leadscorerepo "concierge_backend/internal/leadscores/repository"
	leadscoreservice "concierge_backend/internal/leadscores/service"
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

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	if err := run(cfg, log); err != nil {
		log.Error("api exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	log.Info("starting api", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.ConnectAndMigrate(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer pool.Close()
	log.Info("database ready")

	eventBus := events.NewInMemoryBus(log)

	sender, err := email.NewSender(cfg)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}
	outboxRepo := outbox.New(pool)
	notificationModule := notification.New(outboxRepo, sender, cfg, log)
	notificationModule.AttachChannels(whatsapp.NewClient(cfg, log), webhook.NewClient(cfg))
	notificationModule.RegisterHandlers(eventBus)

	// Without Redis no scheduler process runs: alerts are delivered right
	// after the sync that claimed them, a local sweep picks up stragglers
	// and retention runs here.
	inlineDelivery := cfg.GetRedisURL() == ""
	if inlineDelivery {
		log.Warn("REDIS_URL not set, delivering admin alerts in-process")
	}

	leadScoresModule, err := leadscores.NewModule(
		leadscorerepo.New(pool), eventBus, validator.New(), cfg, log,
		leadscoreservice.WithInlineDelivery(inlineDelivery),
	)
	if err != nil {
		return fmt.Errorf("lead scores module: %w", err)
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: router.New(&apphttp.App{
			Config:  cfg,
			Logger:  log,
			Health:  db.NewPoolAdapter(pool),
			Modules: []apphttp.Module{leadScoresModule, notificationModule},
		}),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		leadScoresModule.RunBeaconEviction(gctx)
		return nil
	})
	if inlineDelivery {
		cleanup := scheduler.NewLeadScoreCleanup(leadScoresModule.Service(), log, cfg.GetLeadScoreCleanupInterval(), cfg.GetLeadScoreRetention())
		sweep := scheduler.NewNotificationOutboxDispatcher(outboxRepo, scheduler.NewBusEnqueuer(eventBus), log)
		g.Go(func() error {
			cleanup.Run(gctx)
			return nil
		})
		g.Go(func() error {
			sweep.Run(gctx)
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down api")
		notificationModule.SSE().Close()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	eventBus.Wait()
	log.Info("api stopped")
	return err
}
