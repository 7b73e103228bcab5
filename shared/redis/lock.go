package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	rsgoredis "github.com/go-redsync/redsync/v4/redis/goredis/v9"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLockHeld is returned when another process holds the lock.
var ErrLockHeld = errors.New("lock is held by another process")

type LockOptions struct {
	Expiry     time.Duration
	Tries      int
	RetryDelay time.Duration
}

func DefaultLockOptions() LockOptions {
	return LockOptions{
		Expiry:     30 * time.Second,
		Tries:      3,
		RetryDelay: 200 * time.Millisecond,
	}
}

// Locker hands out redsync mutexes. A held lock is extended in the
// background for as long as the guarded function runs.
type Locker struct {
	redsync *redsync.Redsync
	opts    LockOptions
	logger  *zap.Logger
}

func NewLocker(client goredis.UniversalClient, opts LockOptions, logger *zap.Logger) *Locker {
	if opts.Expiry <= 0 {
		opts.Expiry = DefaultLockOptions().Expiry
	}
	if opts.Tries <= 0 {
		opts.Tries = 1
	}
	return &Locker{
		redsync: redsync.New(rsgoredis.NewPool(client)),
		opts:    opts,
		logger:  logger,
	}
}

func (l *Locker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	mutex := l.redsync.NewMutex(
		key,
		redsync.WithExpiry(l.opts.Expiry),
		redsync.WithTries(l.opts.Tries),
		redsync.WithRetryDelay(l.opts.RetryDelay),
	)

	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.Is(err, redsync.ErrFailed) || errors.As(err, &taken) {
			return fmt.Errorf("%w: %s", ErrLockHeld, key)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}

	// Unlocking and extending must outlive a cancelled caller.
	bg := context.WithoutCancel(ctx)
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(l.opts.Expiry / 2)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if ok, err := mutex.ExtendContext(bg); !ok || err != nil {
					l.logger.Warn("failed to extend lock", zap.String("key", key), zap.Error(err))
				}
			}
		}
	}()

	defer func() {
		close(stop)
		<-done
		if ok, err := mutex.UnlockContext(bg); !ok || err != nil {
			l.logger.Warn("failed to release lock", zap.String("key", key), zap.Bool("ok", ok), zap.Error(err))
		}
	}()

	return fn(ctx)
}
