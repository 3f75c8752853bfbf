package reservation

import (
	"context"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Locker grants a short exclusive lease so several service instances do
// not sweep the same window at once.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// RedisLocker implements Locker with SET NX PX.  The lease is never
// released explicitly; it lapses after its TTL.
type RedisLocker struct {
	rdb *redis.Client
}

func NewRedisLocker(rdb *redis.Client) *RedisLocker { return &RedisLocker{rdb: rdb} }

func (l *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), ttl).Result()
}

const sweepLockKey = "reservations:sweep:lock"

// Sweeper periodically expires lapsed holds.  A missed or failed run is
// not visible to clients because claims already ignore lapsed holds.
type Sweeper struct {
	manager  *Manager
	interval time.Duration
	locker   Locker
	lockTTL  time.Duration
	now      func() time.Time
}

// NewSweeper builds a sweeper.  locker may be nil, in which case every
// tick sweeps.
func NewSweeper(manager *Manager, interval time.Duration, locker Locker, lockTTL time.Duration) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	if lockTTL <= 0 || lockTTL > interval {
		lockTTL = interval
	}
	return &Sweeper{manager: manager, interval: interval, locker: locker, lockTTL: lockTTL, now: manager.opts.Now}
}

// Run sweeps every interval until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				log.Printf("sweeper: %v", err)
			}
		}
	}
}

// RunOnce performs a single sweep and returns the number of holds it
// expired.  When another instance holds the lease it returns 0.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	if s.locker != nil {
		ok, err := s.locker.TryLock(ctx, sweepLockKey, s.lockTTL)
		if err != nil {
			// sweeps are idempotent
			log.Printf("sweeper: lock unavailable, sweeping anyway: %v", err)
		} else if !ok {
			return 0, nil
		}
	}
	n, err := s.manager.SweepExpired(ctx, s.now())
	if n > 0 {
		log.Printf("sweeper: expired %d holds", n)
	}
	return n, err
}
