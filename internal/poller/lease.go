package poller

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"campaign-callsync/pkg/utils"
)

const leaseKey = "campaign-callsync:poll-lease"

// RedisLease implements Lease on a shared redis instance so that only one
// replica polls the provider at a time. The TTL covers crashes: a dead
// holder's lease expires instead of blocking polling forever.
type RedisLease struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisLease(rdb *redis.Client, ttl time.Duration) *RedisLease {
	return &RedisLease{rdb: rdb, ttl: ttl}
}

func (l *RedisLease) TryAcquire(ctx context.Context) (func(), bool, error) {
	token := uuid.NewString()
	ok, err := utils.AcquireLease(ctx, l.rdb, leaseKey, token, l.ttl)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		// The cycle context may already be canceled by the time we release.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = utils.ReleaseLease(releaseCtx, l.rdb, leaseKey, token)
	}
	return release, true, nil
}
