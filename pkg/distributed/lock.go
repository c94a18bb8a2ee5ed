package distributed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrNotHeld is returned by Unlock when the lock expired or was taken over.
var ErrNotHeld = errors.New("lock not held by this holder")

var (
	unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lock is a single-holder Redis lock with a TTL, renewed while held.
type Lock struct {
	client    *redis.Client
	key       string
	value     string
	ttl       time.Duration
	stopRenew chan struct{}
}

func NewLock(client *redis.Client, key string, ttl time.Duration) *Lock {
	return &Lock{
		client: client,
		key:    key,
		value:  generateLockValue(),
		ttl:    ttl,
	}
}

func generateLockValue() string {
	b := make([]byte, 16)
	rand.Read(b)
	return hex.EncodeToString(b)
}

// TryLock attempts to acquire the lock without blocking.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	acquired, err := l.client.SetNX(ctx, l.key, l.value, l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to try lock: %w", err)
	}
	if acquired {
		l.stopRenew = make(chan struct{})
		go l.renew(ctx, l.stopRenew)
	}
	return acquired, nil
}

func (l *Lock) Unlock(ctx context.Context) error {
	if l.stopRenew != nil {
		close(l.stopRenew)
		l.stopRenew = nil
	}

	n, err := unlockScript.Run(ctx, l.client, []string{l.key}, l.value).Int()
	if err != nil {
		return fmt.Errorf("failed to unlock: %w", err)
	}
	if n == 0 {
		return ErrNotHeld
	}
	return nil
}

func (l *Lock) renew(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			n, err := renewScript.Run(ctx, l.client, []string{l.key}, l.value, l.ttl.Milliseconds()).Int()
			if err != nil || n == 0 {
				return
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// LockManager hands out locks under a common key prefix.
type LockManager struct {
	client *redis.Client
	prefix string
}

func NewLockManager(client *redis.Client, prefix string) *LockManager {
	return &LockManager{
		client: client,
		prefix: prefix,
	}
}

func (lm *LockManager) NewLock(key string, ttl time.Duration) *Lock {
	return NewLock(lm.client, lm.prefix+key, ttl)
}

// Exclusive wraps fn so that across all instances sharing Redis only the
// holder of the named lock runs it. Instances that lose the race skip the
// round without error. A nil manager returns fn unchanged.
func (lm *LockManager) Exclusive(name string, ttl time.Duration, fn func(context.Context) error) func(context.Context) error {
	if lm == nil {
		return fn
	}
	return func(ctx context.Context) error {
		lock := lm.NewLock(name, ttl)
		ok, err := lock.TryLock(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		defer lock.Unlock(context.WithoutCancel(ctx))
		return fn(ctx)
	}
}
