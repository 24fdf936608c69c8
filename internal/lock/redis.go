package lock

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Options configures the distributed lock.
type Options struct {
	// Expiry must outlive a full orchestration run; the lock auto-expires
	// if the holder dies.
	Expiry time.Duration
	// Tries is the number of acquisition attempts before ErrLockBusy.
	Tries       int
	RetryDelay  time.Duration
	DriftFactor float64
}

// DefaultOptions wait roughly eight seconds for a busy order and hold it for
// at most two minutes.
func DefaultOptions() Options {
	return Options{
		Expiry:      2 * time.Minute,
		Tries:       32,
		RetryDelay:  250 * time.Millisecond,
		DriftFactor: 0.01,
	}
}

// RedisLocker is a RedLock-based Locker so several orchestrator replicas
// can share one Redis.
type RedisLocker struct {
	rs     *redsync.Redsync
	opts   Options
	logger *slog.Logger
}

func NewRedisLocker(client redis.UniversalClient, opts Options, logger *slog.Logger) *RedisLocker {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultOptions()
	if opts.Expiry <= 0 {
		opts.Expiry = def.Expiry
	}
	if opts.Tries < 1 {
		opts.Tries = def.Tries
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = def.RetryDelay
	}
	if opts.DriftFactor <= 0 || opts.DriftFactor >= 1 {
		opts.DriftFactor = def.DriftFactor
	}

	return &RedisLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (l *RedisLocker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	if err := validate(key, fn); err != nil {
		return err
	}

	ctx, span := otel.Tracer("github.com/jcmexdev/vendor-orchestration/internal/lock").
		Start(ctx, "redis.lock.with_lock")
	defer span.End()
	span.SetAttributes(attribute.String("lock.key", key))

	mutex := l.rs.NewMutex(key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
		redsync.WithDriftFactor(l.opts.DriftFactor),
	)

	if err := mutex.LockContext(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to acquire lock")

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("%w: %s: %w", ErrLockBusy, key, err)
	}

	defer func() {
		// Release even if ctx was cancelled while fn ran.
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if ok, err := mutex.UnlockContext(unlockCtx); !ok || err != nil {
			l.logger.ErrorContext(ctx, "failed to release lock", "lock_key", key, "unlock_ok", ok, "error", err)
		}
	}()

	return fn(ctx)
}
