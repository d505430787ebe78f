package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/admin"
	"github.com/daluzconsciente/tienda-api/internal/authx"
	"github.com/daluzconsciente/tienda-api/internal/bus"
	"github.com/daluzconsciente/tienda-api/internal/checkout"
	"github.com/daluzconsciente/tienda-api/internal/config"
	"github.com/daluzconsciente/tienda-api/internal/httpx"
	"github.com/daluzconsciente/tienda-api/internal/mailer"
	"github.com/daluzconsciente/tienda-api/internal/orders"
	"github.com/daluzconsciente/tienda-api/internal/payments"
	"github.com/daluzconsciente/tienda-api/internal/postgres"
	"github.com/daluzconsciente/tienda-api/internal/redisx"
	"github.com/daluzconsciente/tienda-api/internal/webhook"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(cfg.Logger())
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		slog.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Events
	pub, closePub, err := bus.NewPublisher(cfg)
	if err != nil {
		slog.Error("event transport", "err", err)
		os.Exit(1)
	}

	gateway, err := payments.NewMercadoPago(cfg.MPAccessToken, cfg.MPSandbox)
	if err != nil {
		slog.Error("mercadopago client", "err", err)
		os.Exit(1)
	}

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
	cache := &redisx.StatusCache{RDB: rdb}
	auth := &authx.Middleware{
		Verifier: &authx.Verifier{Secret: []byte(cfg.JWTSecret)},
		Roles:    &authx.AdminRepo{DB: db},
		Cookie:   cfg.SessionCookie,
	}

	server := &httpx.Server{
		Checkout: &checkout.Service{
			Orders:      repo,
			Gateway:     gateway,
			Cache:       cache,
			Publisher:   pub,
			PublicURL:   cfg.PublicAppURL,
			Currency:    cfg.Currency,
			ServiceName: cfg.ServiceName,
		},
		Webhook: &webhook.Service{
			Orders:           repo,
			Gateway:          gateway,
			Cache:            cache,
			Applied:          &redisx.Marker{RDB: rdb, TTL: redisx.TTLWebhookApplied},
			Publisher:        pub,
			ServiceName:      cfg.ServiceName,
			Secret:           cfg.MPWebhookSecret,
			VerifySignatures: cfg.IsProduction(),
		},
		Orders: repo,
		Admin: &admin.Service{
			Orders:      repo,
			Activity:    &admin.ActivityRepo{DB: db},
			Mailer:      mail,
			Cache:       cache,
			Publisher:   pub,
			ServiceName: cfg.ServiceName,
			StoreURL:    cfg.PublicAppURL,
		},
		Authenticate: auth.Authenticate,
		Production:   cfg.IsProduction(),
	}
	router := httpx.NewRouter()
	server.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("http listening", "addr", cfg.HTTPAddr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("listen", "err", err)
			os.Exit(1)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	slog.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel2()
	if err := srv.Shutdown(ctx2); err != nil {
		slog.Error("http shutdown", "err", err)
	}
	closePub() // flush queued events
}
