// Package lease provides the cross-process guard around a reconciliation
// cycle.
package lease

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Release gives a held lease back.
type Release func(ctx context.Context) error

type Lease interface {
	// TryAcquire never blocks. ok is false when another holder has the lease.
	TryAcquire(ctx context.Context) (release Release, ok bool, err error)
}

// ReconcileKey builds the redis key guarding one shop's reconciliation.
func ReconcileKey(shopID string) string {
	return fmt.Sprintf("sync:reconcile:%s:lock", shopID)
}

// Noop always grants the lease. It is used by single-process deployments.
type Noop struct{}

func (Noop) TryAcquire(context.Context) (Release, bool, error) {
	return func(context.Context) error { return nil }, true, nil
}

// releaseScript deletes the key only while it still holds our token, so an
// expired lease taken over by another process is left alone.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the TTL while the key still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

// Redis is a SET NX lease. A held lease is renewed every third of its TTL
// until released, so a slow cycle keeps it.
type Redis struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedis(client *redis.Client, key string, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Redis{client: client, key: key, ttl: ttl}
}

func (l *Redis) TryAcquire(ctx context.Context) (Release, bool, error) {
	token, err := newToken()
	if err != nil {
		return nil, false, err
	}
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("lease: acquire %s: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(token, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() { close(stop) })
		<-done
		if err := releaseScript.Run(ctx, l.client, []string{l.key}, token).Err(); err != nil {
			return fmt.Errorf("lease: release %s: %w", l.key, err)
		}
		return nil
	}, true, nil
}

// keepAlive renews the lease until stop is closed or the key no longer holds
// token. Failed renewals are retried on the next tick.
func (l *Redis) keepAlive(token string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	interval := max(l.ttl/3, time.Millisecond)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			held, err := renewScript.Run(ctx, l.client, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err == nil && held == 0 {
				return
			}
		}
	}
}

func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
