package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("lock not acquired")
)

// Locker serialises schedule mutations per doctor across api-server replicas.
type Locker interface {
	WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error
}

// KeyLocker guards an arbitrary key, e.g. one scheduled report run.
type KeyLocker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

type redisLocker struct {
	client   *redis.Client
	ttl      time.Duration
	attempts int
	backoff  time.Duration
}

// NewRedisDoctorLocker creates a locker that uses a per doctor Redis key. A
// busy key is retried a few times before giving up with ErrLockNotAcquired.
func NewRedisDoctorLocker(client *redis.Client, ttl time.Duration) Locker {
	return &redisLocker{
		client:   client,
		ttl:      ttl,
		attempts: 5,
		backoff:  50 * time.Millisecond,
	}
}

// NewRedisKeyLocker tries each key once; a held key means someone else is
// already doing the work.
func NewRedisKeyLocker(client *redis.Client, ttl time.Duration) KeyLocker {
	return &redisLocker{
		client:   client,
		ttl:      ttl,
		attempts: 1,
		backoff:  50 * time.Millisecond,
	}
}

func DoctorLockKey(doctorID uuid.UUID) string {
	return fmt.Sprintf("lock:doctor:%s", doctorID.String())
}

func ReportLockKey(scheduleID uuid.UUID) string {
	return fmt.Sprintf("lock:report:%s", scheduleID.String())
}

func (l *redisLocker) WithDoctorLock(ctx context.Context, doctorID uuid.UUID, fn func(ctx context.Context) error) error {
	return l.WithLock(ctx, DoctorLockKey(doctorID), fn)
}

func (l *redisLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	token := uuid.NewString()

	if err := l.acquire(ctx, key, token); err != nil {
		return err
	}

	defer func() {
		// release with a fresh context so a cancelled request still frees the key
		releaseCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = l.release(releaseCtx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

func (l *redisLocker) acquire(ctx context.Context, key, token string) error {
	wait := l.backoff
	for attempt := 0; attempt < l.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}

		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return nil
		}
	}
	return ErrLockNotAcquired
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release lock %s: %w", key, err)
	}
	return nil
}
