package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConfirmRatePolicy bounds how often one (caller IP, chat id) pair may
// hit the confirmation receiver inside a rolling window.
type ConfirmRatePolicy struct {
	Limit  int
	Window time.Duration
}

// ConfirmRateLimiter guards the confirmation receiver. The local
// implementation is volatile and resets on process restart; the Redis
// one survives restarts and is shared across replicas.
type ConfirmRateLimiter interface {
	Allow(ctx context.Context, callerIP string, chatID int64) (bool, error)
}

type localConfirmRateLimiter struct {
	mu      sync.Mutex
	policy  ConfirmRatePolicy
	hits    map[string][]time.Time
	cleanup time.Time
}

func NewLocalConfirmRateLimiter(policy ConfirmRatePolicy) ConfirmRateLimiter {
	return &localConfirmRateLimiter{
		policy:  normalizeConfirmRatePolicy(policy),
		hits:    make(map[string][]time.Time),
		cleanup: time.Now().Add(time.Minute),
	}
}

func (l *localConfirmRateLimiter) Allow(_ context.Context, callerIP string, chatID int64) (bool, error) {
	key := confirmRateKey(callerIP, chatID)
	now := time.Now()
	cutoff := now.Add(-l.policy.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.cleanup) {
		for k, hits := range l.hits {
			if len(hits) == 0 || !hits[len(hits)-1].After(cutoff) {
				delete(l.hits, k)
			}
		}
		l.cleanup = now.Add(l.policy.Window)
	}

	pruned := l.hits[key][:0]
	for _, hit := range l.hits[key] {
		if hit.After(cutoff) {
			pruned = append(pruned, hit)
		}
	}
	if len(pruned) >= l.policy.Limit {
		l.hits[key] = pruned
		return false, nil
	}
	l.hits[key] = append(pruned, now)
	return true, nil
}

type redisConfirmRateLimiter struct {
	client redis.UniversalClient
	prefix string
	policy ConfirmRatePolicy
}

func NewRedisConfirmRateLimiter(client redis.UniversalClient, prefix string, policy ConfirmRatePolicy) ConfirmRateLimiter {
	if prefix == "" {
		prefix = "confirm_rate"
	}
	return &redisConfirmRateLimiter{
		client: client,
		prefix: prefix,
		policy: normalizeConfirmRatePolicy(policy),
	}
}

func (l *redisConfirmRateLimiter) Allow(ctx context.Context, callerIP string, chatID int64) (bool, error) {
	key := fmt.Sprintf("%s:%s", l.prefix, confirmRateKey(callerIP, chatID))
	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, err
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.policy.Window).Err(); err != nil {
			return false, err
		}
	}
	return count <= int64(l.policy.Limit), nil
}

func confirmRateKey(callerIP string, chatID int64) string {
	return fmt.Sprintf("%s:%d", callerIP, chatID)
}

func normalizeConfirmRatePolicy(policy ConfirmRatePolicy) ConfirmRatePolicy {
	if policy.Limit <= 0 {
		policy.Limit = 10
	}
	if policy.Window <= 0 {
		policy.Window = time.Hour
	}
	return policy
}
