package sequence

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"examreg/pkg/sentinel"
)

const redisKeyPrefix = "examreg:counter:"

// Redis backs counters with INCR, which atomically creates absent keys at 0.
type Redis struct {
	client redis.Cmdable
}

func NewRedis(client redis.Cmdable) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Next(ctx context.Context, name string) (int64, error) {
	v, err := s.client.Incr(ctx, redisKeyPrefix+name).Result()
	if err != nil {
		return 0, fmt.Errorf("incr counter %q: %w", name, wrapRedisErr(err))
	}
	return v, nil
}

func (s *Redis) Current(ctx context.Context, name string) (int64, error) {
	v, err := s.client.Get(ctx, redisKeyPrefix+name).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get counter %q: %w", name, wrapRedisErr(err))
	}
	return v, nil
}

func (s *Redis) Reset(ctx context.Context, name string, value int64) error {
	if err := s.client.Set(ctx, redisKeyPrefix+name, value, 0).Err(); err != nil {
		return fmt.Errorf("set counter %q: %w", name, wrapRedisErr(err))
	}
	return nil
}

func wrapRedisErr(err error) error {
	return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
}
