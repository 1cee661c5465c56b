package concurrency

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/acme/outbound-dialer/pkg/logger"
)

var releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

var renewScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`)

// RunLock keeps two drivers from working the same queue at once. Two
// concurrent dialers would each see the same active count and could
// together exceed the provider ceiling. A held lock is renewed every third
// of its TTL until released, so the TTL only bounds how long a crashed
// holder blocks the next run.
type RunLock struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	log    *logger.Logger
}

// NewRunLock constructs a lock. A nil client yields a lock that always succeeds.
func NewRunLock(client *redis.Client, prefix string, ttl time.Duration, log *logger.Logger) *RunLock {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if prefix == "" {
		prefix = "dialer:lock"
	}
	if log == nil {
		log = logger.Nop()
	}
	return &RunLock{client: client, prefix: prefix, ttl: ttl, log: log}
}

// Acquire takes the named lock and returns a release func. ok is false when
// another holder owns it. Release stops the renewal and deletes the key if
// this holder still owns it; calling it more than once is safe.
func (l *RunLock) Acquire(ctx context.Context, name string) (release func(context.Context) error, ok bool, err error) {
	if l == nil || l.client == nil {
		return func(context.Context) error { return nil }, true, nil
	}

	token := uuid.NewString()
	key := l.key(name)
	ok, err = l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("run lock acquire: %w", err)
	}
	if !ok {
		return nil, false, nil
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go l.keepAlive(renewCtx, key, token, done)

	var once sync.Once
	release = func(ctx context.Context) error {
		var rerr error
		once.Do(func() {
			stop()
			<-done
			if _, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int(); err != nil {
				rerr = fmt.Errorf("run lock release: %w", err)
			}
		})
		return rerr
	}
	return release, true, nil
}

func (l *RunLock) keepAlive(ctx context.Context, key, token string, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		n, err := renewScript.Run(ctx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			l.log.Warn("run lock renew failed", zap.String("key", key), zap.Error(err))
			continue
		}
		if n == 0 {
			l.log.Error("run lock lost to another holder", zap.String("key", key))
			return
		}
	}
}

func (l *RunLock) key(name string) string {
	return fmt.Sprintf("%s:%s", l.prefix, name)
}
