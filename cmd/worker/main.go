package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/config"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/db"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/jobs"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/observability"
	postgresrepo "github.com/fdmcneill2019/p2p-lending-resume-version/internal/repository/postgres"
	"github.com/fdmcneill2019/p2p-lending-resume-version/internal/ws"
	"github.com/redis/go-redis/v9"
)

// The standalone relay drains the outbox into Redis pub/sub, where API
// replicas running with RELAY_MODE=redis pick events up for their websocket clients.
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

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Error("failed to connect redis", "err", err)
		os.Exit(1)
	}
	defer redisClient.Close()

	worker := jobs.NewWorker(
		postgresrepo.NewOutboxRepository(pool),
		ws.NewRedisPublisher(redisClient, ws.DefaultBridgeChannel),
		logger,
	)

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	worker.Run(sigCtx, cfg.WorkerPollInterval, cfg.WorkerBatchSize)
}
