// Command cache-rebuild refreshes the Redis catalog snapshot from Postgres
// once and exits. It runs from the platform cron as a sidecar to the API's
// /admin/rebuild-cache endpoint.
package main

import (
	"context"
	"crypto/tls"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	appconfig "github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/config"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	if cfg.DatabaseURL == "" || cfg.RedisAddr == "" {
		logger.Error("DATABASE_URL and REDIS_ADDR are required")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
	if cfg.RedisTLS {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	rdb := redis.NewClient(opts)
	defer func() { _ = rdb.Close() }()

	repo := catalog.NewPostgresRepository(pool, logger)
	cache := catalog.NewCache(rdb, cfg.CatalogCacheTTL, logger)

	counts, err := cache.Rebuild(ctx, repo)
	if err != nil {
		logger.Error("cache rebuild failed", "error", err)
		os.Exit(1)
	}
	logger.Info("cache rebuild complete",
		"clientes", counts.Clients,
		"servicios", counts.Services,
		"preguntas", counts.Questions,
	)
}
