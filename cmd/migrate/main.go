package main

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/daluzconsciente/tienda-api/internal/config"
	"github.com/daluzconsciente/tienda-api/internal/migrate"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(cfg.Logger())
	if cfg.PostgresDSN == "" {
		slog.Error("DATABASE_URL is required")
		os.Exit(1)
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		slog.Error("db open", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	applied, err := migrate.Run(ctx, db)
	if err != nil {
		slog.Error("migrate", "err", err)
		os.Exit(1)
	}
	slog.Info("migrations done", "applied", applied)
}
