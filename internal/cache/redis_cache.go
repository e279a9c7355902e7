package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/Nselenduna/inventory-sales-app/internal/domain"
)

// ReportKey is the key the last report of a shop is stored under.
func ReportKey(shopID string) string {
	return fmt.Sprintf("sync:report:%s", shopID)
}

// RedisReportCache shares the last report between every process of a shop.
type RedisReportCache struct {
	client *redis.Client
	key    string
	ttl    time.Duration
}

func NewRedisReportCache(client *redis.Client, shopID string, ttl time.Duration) *RedisReportCache {
	return &RedisReportCache{client: client, key: ReportKey(shopID), ttl: ttl}
}

func (c *RedisReportCache) LastReport(ctx context.Context) (*domain.SyncReport, bool, error) {
	val, err := c.client.Get(ctx, c.key).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var report domain.SyncReport
	if err := json.Unmarshal([]byte(val), &report); err != nil {
		return nil, false, err
	}
	return &report, true, nil
}

func (c *RedisReportCache) SaveReport(ctx context.Context, report domain.SyncReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key, payload, c.ttl).Err()
}
