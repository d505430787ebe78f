package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/daluzconsciente/tienda-api/internal/bus"
	"github.com/daluzconsciente/tienda-api/internal/config"
	"github.com/daluzconsciente/tienda-api/internal/events"
	"github.com/daluzconsciente/tienda-api/internal/mailer"
	"github.com/daluzconsciente/tienda-api/internal/notify"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/postgres"
	"github.com/daluzconsciente/tienda-api/internal/reconcile"
	"github.com/daluzconsciente/tienda-api/internal/redisx"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(cfg.Logger().With("component", "worker"))
	if err := cfg.ValidateWorker(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pub, closePub, err := bus.NewPublisher(cfg)
	if err != nil {
		slog.Error("event transport", "err", err)
		os.Exit(1)
	}
	defer closePub()

	var mail mailer.Sender = mailer.LogSender{}
	if cfg.SMTPHost != "" {
		smtp, err := mailer.NewSMTP(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.MailFrom)
		if err != nil {
			slog.Error("smtp client", "err", err)
			os.Exit(1)
		}
		mail = smtp
	}

	repo := &orders.Repo{DB: db}
	name := cfg.ServiceName + "-worker"

	confirmations := &notify.Service{
		Orders:      repo,
		Dedup:       &redisx.Marker{RDB: rdb, TTL: redisx.TTLDedup},
		Mailer:      mail,
		StoreURL:    cfg.PublicAppURL,
		ServiceName: name,
	}
	job := &reconcile.Job{
		Store:       repo,
		Cache:       &redisx.StatusCache{RDB: rdb},
		Publisher:   pub,
		Interval:    cfg.ReconcileInterval,
		UnpaidTTL:   cfg.UnpaidOrderTTL,
		PendingTTL:  cfg.PendingOrderTTL,
		ServiceName: name,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("consumer started",
			"transport", cfg.EventTransport, "group", cfg.WorkerGroup,
			"topic", events.TopicOrderPaid, "workers", cfg.WorkerConcurrency)
		return bus.Subscribe(gctx, cfg, events.TopicOrderPaid, confirmations.HandleOrderPaid)
	})
	g.Go(func() error { return job.Run(gctx) })

	if err := g.Wait(); err != nil {
		slog.Error("worker exit", "err", err)
		closePub()
		os.Exit(1)
	}
	slog.Info("worker stopped")
}
