package main

import (
	"context"
	"crypto/tls"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"google.golang.org/api/option"

	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/api/router"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/auth"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/catalog"
	appconfig "github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/config"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/dialogue"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/http/handlers"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/notify"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/observability/metrics"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/internal/ticket"
	"github.com/lacolectivadigix/la-colectiva-solicitudes-assistant/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting solicitudes assistant API",
		"env", cfg.Env,
		"port", cfg.Port,
		"engine", cfg.DialogueEngine,
	)

	ctx := context.Background()

	if cfg.DatabaseURL == "" {
		logger.Error("DATABASE_URL is required")
		os.Exit(1)
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create postgres pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		opts := &redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword}
		if cfg.RedisTLS {
			opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		rdb = redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable at startup, continuing with database-only reads", "error", err)
		}
	}

	// Catalog reads, cached in Redis when available.
	repo := catalog.NewPostgresRepository(pool, logger)
	var cache *catalog.Cache
	if rdb != nil {
		cache = catalog.NewCache(rdb, cfg.CatalogCacheTTL, logger)
	}
	store := catalog.NewCachedStore(repo, cache, cfg.QueryTimeout, logger)

	tickets := ticket.NewWriter(pool, logger)

	var emailSender notify.EmailSender
	if sg := notify.NewSendGridSender(notify.SendGridConfig{
		APIKey:    cfg.SendGridAPIKey,
		FromEmail: cfg.NotifyFromEmail,
		FromName:  cfg.NotifyFromName,
	}, logger); sg != nil {
		emailSender = sg
	} else {
		emailSender = notify.NewStubEmailSender(logger)
	}
	notifier := notify.NewService(emailSender, cfg.NotifyToEmail, "Equipo Compras", logger)

	var sessions dialogue.SessionStore
	if rdb != nil {
		sessions = dialogue.NewRedisStore(rdb, cfg.SessionTTL)
	} else {
		logger.Warn("REDIS_ADDR not set, sessions are process-local")
		sessions = dialogue.NewMemoryStore()
	}

	dialogueMetrics := metrics.NewDialogueMetrics(nil)

	var engine dialogue.Engine = dialogue.NewRuleEngine(store, tickets, notifier, dialogueMetrics, logger)
	engineName := "rules"
	if cfg.DialogueEngine == "llm" {
		if cfg.GeminiAPIKey == "" {
			logger.Error("DIALOGUE_ENGINE=llm requires GEMINI_API_KEY")
			os.Exit(1)
		}
		client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiAPIKey))
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		defer func() { _ = client.Close() }()
		exec := dialogue.NewToolExecutor(store, tickets, notifier, logger)
		engine = dialogue.NewLLMEngine(client, cfg.GeminiModelID, exec, logger)
		engineName = "llm"
	}

	history := dialogue.NewHistoryStore(pool, logger)
	authEvents := auth.NewEventsRepository(pool, logger)

	chatHandler := handlers.NewChatHandler(engine, engineName, sessions, history, dialogueMetrics, logger)
	var rebuilder handlers.CacheRebuilder
	if cache != nil {
		rebuilder = cache
	}
	adminHandler := handlers.NewAdminHandler(rebuilder, repo, authEvents, cfg.CronKey, logger)
	healthHandler := handlers.NewHealthHandler(pool, rdb)

	r := router.New(&router.Config{
		Logger:             logger,
		ChatHandler:        chatHandler,
		AdminHandler:       adminHandler,
		HealthHandler:      healthHandler,
		MetricsHandler:     promhttp.Handler(),
		JWTSecret:          cfg.JWTSecret,
		AdminJWTSecret:     cfg.AdminJWTSecret,
		AuthEvents:         authEvents,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitRPS:       cfg.RateLimitRPS,
		RateLimitBurst:     cfg.RateLimitBurst,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown failed", "error", err)
	}

	// Let in-flight ticket emails finish before the pool closes.
	notifier.Wait()
	logger.Info("bye")
}
