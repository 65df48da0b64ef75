package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredislib "github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock not acquired")

type RedisOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
	Prefix     string
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Expiry:     10 * time.Second,
		Tries:      32,
		RetryDelay: 100 * time.Millisecond,
		Prefix:     "p2p-lending:",
	}
}

// Redis holds locks with the RedLock algorithm on a single Redis node.
type Redis struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *slog.Logger
}

func NewRedis(client goredislib.UniversalClient, opts RedisOptions, logger *slog.Logger) *Redis {
	def := DefaultRedisOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay < 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (r *Redis) WithLock(ctx context.Context, key string, fn func() error) error {
	if strings.TrimSpace(key) == "" {
		return ErrEmptyKey
	}
	name := r.opts.Prefix + key

	mutex := r.rs.NewMutex(
		name,
		redsync.WithExpiry(r.opts.Expiry),
		redsync.WithTries(r.opts.Tries),
		redsync.WithRetryDelay(r.opts.RetryDelay),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrNotAcquired, key, err)
	}
	defer func() {
		if ok, err := mutex.UnlockContext(context.WithoutCancel(ctx)); !ok || err != nil {
			r.logger.Warn("lock release failed", "key", key, "error", err)
		}
	}()

	return fn()
}
