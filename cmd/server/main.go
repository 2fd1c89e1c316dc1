// Command server runs the chat relay: an HTTP service that sits between
// clients and a model provider, owning per-user conversation memory, rate
// limiting, retry policy, and a best-effort conversation log.
//
// @title        Chat Relay API
// @version      1.0
// @description  Session-aware chat relay with per-user rate limiting and provider failover handling.
// @BasePath     /api/v1
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chatrelay/chat-relay/internal/config"
	"github.com/chatrelay/chat-relay/internal/health"
	httpapi "github.com/chatrelay/chat-relay/internal/http"
	"github.com/chatrelay/chat-relay/internal/observability"
	"github.com/chatrelay/chat-relay/internal/provider"
	"github.com/chatrelay/chat-relay/internal/ratelimit"
	"github.com/chatrelay/chat-relay/internal/repo"
	"github.com/chatrelay/chat-relay/internal/services"
	"github.com/chatrelay/chat-relay/internal/session"
	"github.com/chatrelay/chat-relay/internal/sysutil"
)

// version is stamped at build time via -ldflags.
var version = "dev"

func main() {
	// Local development convenience; missing .env is fine.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to set up tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	// Conversation log storage
	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to open database")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	// Session backend
	var store session.Store
	switch cfg.Session.Backend {
	case "redis":
		rs, err := session.NewRedisStore(ctx, cfg.Redis, cfg.Session)
		if err != nil {
			log.Fatal().Err(err).Str("addr", cfg.Redis.Addr).Msg("failed to connect to redis")
		}
		defer func() {
			if err := rs.Close(); err != nil {
				log.Warn().Err(err).Msg("redis close failed")
			}
		}()
		store = rs
	default:
		store = session.NewMemoryStore(cfg.Session.MaxMessages, cfg.Session.TTL)
	}

	limiter := ratelimit.NewSlidingWindow(cfg.RateLimit.MaxRequests, cfg.RateLimit.Window)
	client := provider.NewOpenAI(cfg.Provider)
	tracker := health.NewTracker(cfg.ReadinessWindow)
	svc := services.NewChatService(db, store, limiter, client, tracker, cfg)

	gin.SetMode(cfg.GinMode)
	engine := gin.New()
	httpapi.RegisterRoutes(engine, svc, tracker, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().
			Str("port", cfg.Port).
			Str("session_backend", cfg.Session.Backend).
			Str("model", cfg.Provider.Model).
			Str("version", version).
			Msg("chat relay listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	// In-flight turns get the write timeout to finish; a full provider retry
	// budget fits inside it.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.WriteTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		log.Error().Err(err).Msg("graceful shutdown failed")
	}
	log.Info().Msg("server stopped")
}
