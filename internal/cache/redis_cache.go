package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl}
}

var _ SentCache = (*RedisCache)(nil)

type sentValue struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

func sentKey(appointmentID int64, appointmentDate string) string {
	return fmt.Sprintf("reminder:%d:%s", appointmentID, appointmentDate)
}

func (c *RedisCache) StoreSent(ctx context.Context, appointmentID int64, appointmentDate, providerMsgID string, sentAt time.Time) error {
	val := sentValue{
		ProviderMessageID: providerMsgID,
		SentAt:            sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(appointmentID, appointmentDate), b, c.ttl).Err()
}

func (c *RedisCache) WasSent(ctx context.Context, appointmentID int64, appointmentDate string) (bool, error) {
	err := c.rdb.Get(ctx, sentKey(appointmentID, appointmentDate)).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
