package accounts

import (
	"context"

	"github.com/redis/go-redis/v9"

	"github.com/abojihad01/central-payment-system-sub002/internal/pkg/cache"
)

const rotationKeyPrefix = "accounts:rotation:"

type redisRotation struct {
	client *redis.Client
}

// NewRedisRotation stores the round_robin pointer in Redis so the rotation
// is shared across worker processes.
func NewRedisRotation() Rotation {
	return &redisRotation{client: cache.GetClient()}
}

func (r *redisRotation) Next(ctx context.Context, gateway string) (int64, error) {
	return r.client.Incr(ctx, rotationKeyPrefix+gateway).Result()
}
