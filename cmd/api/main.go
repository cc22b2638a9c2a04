package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/safiri-labs/safiri-payments/internal/config"
	"github.com/safiri-labs/safiri-payments/internal/handler"
	"github.com/safiri-labs/safiri-payments/internal/logging"
	"github.com/safiri-labs/safiri-payments/internal/middleware"
	"github.com/safiri-labs/safiri-payments/internal/notify"
	"github.com/safiri-labs/safiri-payments/internal/ratelimit"
	"github.com/safiri-labs/safiri-payments/internal/repository"
	"github.com/safiri-labs/safiri-payments/internal/service"
	"github.com/safiri-labs/safiri-payments/internal/signature"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logging.Init("safiri-payments", cfg.LogLevel, cfg.AppEnv)

	if cfg.WebhookSecret == "" {
		slog.Warn("CLICKPESA_WEBHOOK_SECRET not set, webhook signature verification disabled")
	}

	db, err := connectDB(cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	limitStore, err := buildLimitStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	paymentRepo := repository.NewPaymentRepository(db)
	bookingRepo := repository.NewBookingRepository(db)

	var sender notify.Sender = notify.LogSender{}
	if cfg.NotifyURL != "" {
		sender = notify.NewClient(cfg.NotifyURL, cfg.NotifyTimeout)
	}
	dispatcher := notify.NewDispatcher(sender, cfg.NotifyTimeout)

	reconciler := service.NewReconciler(paymentRepo, bookingRepo, dispatcher, db, slog.Default())

	verifier := signature.NewVerifier(cfg.WebhookSecret, signature.Encoding(cfg.SignatureEncoding))
	webhookHandler := handler.NewWebhookHandler(reconciler, verifier)
	opsHandler := handler.NewOpsHandler(paymentRepo, bookingRepo)
	healthHandler := handler.NewHealthHandler(db)

	webhookLimit := middleware.RateLimit(
		middleware.KeyedLimiter{
			Limiter: ratelimit.New(limitStore, cfg.WebhookRateLimit, cfg.WebhookRateWindow),
			Key:     middleware.ClientIP,
			Scope:   "webhook-ip",
		},
		middleware.KeyedLimiter{
			Limiter: ratelimit.New(limitStore, cfg.WebhookRateLimit*10, cfg.WebhookRateWindow),
			Key:     middleware.GlobalKey,
			Scope:   "webhook-global",
		},
	)
	opsLimit := middleware.RateLimit(
		middleware.KeyedLimiter{
			Limiter: ratelimit.New(limitStore, cfg.OpsRateLimit, cfg.OpsRateWindow),
			Key:     middleware.ClientIP,
			Scope:   "ops-ip",
		},
	)
	opsAuth := middleware.Auth(cfg.OpsJWTSecret)

	mux := http.NewServeMux()
	mux.Handle("POST /api/v1/webhooks/clickpesa", webhookLimit(http.HandlerFunc(webhookHandler.Receive)))
	mux.HandleFunc("OPTIONS /api/v1/webhooks/clickpesa", webhookHandler.Options)
	mux.Handle("GET /api/v1/ops/payments/{reference}", opsLimit(opsAuth(http.HandlerFunc(opsHandler.GetPaymentByReference))))
	mux.HandleFunc("GET /health", healthHandler.Check)
	mux.Handle("GET /metrics", promhttp.Handler())

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// buildLimitStore prefers Redis so the limit holds across instances; without
// it a per-process store with a background janitor is used.
func buildLimitStore(ctx context.Context, cfg *config.Config) (ratelimit.Store, error) {
	if cfg.RedisURL == "" {
		store := ratelimit.NewMemoryStore()
		go store.StartJanitor(ctx, time.Minute)
		slog.Info("using in-process rate limit store")
		return store, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("buildLimitStore: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("buildLimitStore: ping: %w", err)
	}

	slog.Info("using redis rate limit store")
	return ratelimit.NewRedisStore(client, "ratelimit"), nil
}

func connectDB(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connectDB: %w", err)
	}

	db.SetMaxOpenConns(cfg.DBMaxOpenConns)
	db.SetMaxIdleConns(cfg.DBMaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.DBConnMaxLifetimeS) * time.Second)
	db.SetConnMaxIdleTime(time.Duration(cfg.DBConnMaxIdleTimeS) * time.Second)

	for i := range 30 {
		if err = db.Ping(); err == nil {
			return db, nil
		}
		slog.Info("waiting for database", "attempt", i+1)
		time.Sleep(time.Second)
	}

	db.Close()
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", err)
}
