package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Lease enforces single-worker-per-campaign exclusivity. A worker must
// hold the campaign's lease for the whole dispatch pass; a second
// instance (retry, duplicate control call, another deployment replica)
// fails to acquire and backs off instead of double-dispatching.
type Lease interface {
	Acquire(ctx context.Context, campaignID uint) (bool, error)
	Refresh(ctx context.Context, campaignID uint) error
	Release(ctx context.Context, campaignID uint)
	Held(ctx context.Context, campaignID uint) (bool, error)
}

// RedisLease backs the lease with SET NX + TTL so it survives across
// instances and expires on its own if the holder dies.
type RedisLease struct {
	Client     *redis.Client
	InstanceID string
	TTL        time.Duration
}

func NewRedisLease(client *redis.Client, instanceID string, ttl time.Duration) *RedisLease {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisLease{Client: client, InstanceID: instanceID, TTL: ttl}
}

func leaseKey(campaignID uint) string {
	return fmt.Sprintf("dispatch:lease:%d", campaignID)
}

// Release/refresh must only act on our own lease, so both compare the
// stored holder before touching the key.
var refreshScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("pexpire", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

func (l *RedisLease) Acquire(ctx context.Context, campaignID uint) (bool, error) {
	return l.Client.SetNX(ctx, leaseKey(campaignID), l.InstanceID, l.TTL).Result()
}

func (l *RedisLease) Refresh(ctx context.Context, campaignID uint) error {
	return refreshScript.Run(ctx, l.Client, []string{leaseKey(campaignID)},
		l.InstanceID, l.TTL.Milliseconds()).Err()
}

func (l *RedisLease) Release(ctx context.Context, campaignID uint) {
	_ = releaseScript.Run(ctx, l.Client, []string{leaseKey(campaignID)}, l.InstanceID).Err()
}

func (l *RedisLease) Held(ctx context.Context, campaignID uint) (bool, error) {
	n, err := l.Client.Exists(ctx, leaseKey(campaignID)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// LocalLease is the in-process fallback for single-instance deployments
// running without Redis.
type LocalLease struct {
	mu   sync.Mutex
	held map[uint]bool
}

func NewLocalLease() *LocalLease {
	return &LocalLease{held: make(map[uint]bool)}
}

func (l *LocalLease) Acquire(_ context.Context, campaignID uint) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[campaignID] {
		return false, nil
	}
	l.held[campaignID] = true
	return true, nil
}

func (l *LocalLease) Refresh(_ context.Context, _ uint) error { return nil }

func (l *LocalLease) Release(_ context.Context, campaignID uint) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, campaignID)
}

func (l *LocalLease) Held(_ context.Context, campaignID uint) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held[campaignID], nil
}
