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

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/auth"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/config"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/db"
	loandomain "github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/loan"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/domain/negotiation"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/http/handlers"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/jobs"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/lock"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/observability"
	postgresrepo "github.com/fdmcneill2019/p2p-lending-resume-version/internal/repository/postgres"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/server"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/ws"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.Load()
	logger := observability.NewLogger(cfg.Env, cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.NewPostgresPool(ctx, cfg)
	if err != nil {
		logger.Error("failed to connect postgres", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if cfg.DBAutoMigrate {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Error("failed to apply migrations", "err", err)
			os.Exit(1)
		}
	}

	var redisClient *redis.Client
	readiness := map[string]handlers.Pinger{}
	if cfg.LockBackend == config.LockBackendRedis || cfg.RelayMode == config.RelayRedis {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Error("failed to connect redis", "err", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		readiness["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	locker := newLocker(cfg, redisClient, logger)
	loanRepo := postgresrepo.NewLoanRepository(pool)
	outboxRepo := postgresrepo.NewOutboxRepository(pool)

	loanService := loandomain.NewService(loanRepo, locker, loandomain.ServiceConfig{
		DefaultCurrency: cfg.DefaultCurrency,
		DefaultLateFee:  cfg.DefaultLateFee,
	})
	negotiationService := negotiation.NewService(postgresrepo.NewNegotiationRepository(pool), loanRepo, locker)

	hub := ws.NewHub()
	notifier := ws.NewNotifier(hub)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.RelayMode {
	case config.RelayRedis:
		subscriber := ws.NewSubscriber(redisClient, ws.DefaultBridgeChannel, notifier, logger)
		go func() {
			if err := subscriber.Run(sigCtx, nil); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("event bridge stopped", "err", err)
			}
		}()
	default:
		relay := jobs.NewWorker(outboxRepo, notifier, logger)
		go relay.Run(sigCtx, cfg.WorkerPollInterval, cfg.WorkerBatchSize)
	}

	r := server.NewRouter(cfg, logger, server.Dependencies{
		Pinger:             pool,
		Readiness:          readiness,
		LoanHandler:        handlers.NewLoanHandler(loanService),
		NegotiationHandler: handlers.NewNegotiationHandler(negotiationService, loanService),
		AdminHandler:       handlers.NewAdminHandler(outboxRepo),
		WSHandler:          ws.NewHandler(hub),
		JWTManager:         auth.NewJWTManager(cfg.JWTIssuer, cfg.JWTAudience, cfg.JWTSigningKey),
	})
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("api server starting", "addr", cfg.Addr(), "lock_backend", cfg.LockBackend, "relay_mode", cfg.RelayMode)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	<-sigCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	logger.Info("api server stopped")
}

func newLocker(cfg config.Config, client *redis.Client, logger *slog.Logger) lock.Locker {
	if cfg.LockBackend == config.LockBackendRedis {
		opts := lock.DefaultRedisOptions()
		opts.Expiry = cfg.LockTTL
		return lock.NewRedis(client, opts, logger)
	}
	return lock.NewLocal()
}
