// internal/dispatch/dedup.go
package dispatch

import (
	"context"
	"fmt"
	"time"

	"school-notify/internal/models"

	"github.com/redis/go-redis/v9"
)

// DedupStore remembers which (notification, recipient, channel) deliveries
// already succeeded. Dispatch is at-least-once; the dedup key is what keeps
// gateways from seeing the same delivery twice after a crash or re-dispatch.
type DedupStore interface {
	Seen(ctx context.Context, notificationID, recipientID string, ch models.Channel) (bool, error)
	MarkDelivered(ctx context.Context, notificationID, recipientID string, ch models.Channel) error
}

// RedisDedup stores dedup keys in Redis with a TTL.
type RedisDedup struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisDedup(client *redis.Client, ttl time.Duration) *RedisDedup {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &RedisDedup{client: client, ttl: ttl}
}

func dedupKey(notificationID, recipientID string, ch models.Channel) string {
	return fmt.Sprintf("notify:dedup:%s:%s:%s", notificationID, recipientID, ch)
}

func (d *RedisDedup) Seen(ctx context.Context, notificationID, recipientID string, ch models.Channel) (bool, error) {
	n, err := d.client.Exists(ctx, dedupKey(notificationID, recipientID, ch)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *RedisDedup) MarkDelivered(ctx context.Context, notificationID, recipientID string, ch models.Channel) error {
	return d.client.Set(ctx, dedupKey(notificationID, recipientID, ch), 1, d.ttl).Err()
}

// NoopDedup disables delivery dedup; the aggregate's own attempt history
// still prevents double counting in the rollup.
type NoopDedup struct{}

func (NoopDedup) Seen(context.Context, string, string, models.Channel) (bool, error) {
	return false, nil
}

func (NoopDedup) MarkDelivered(context.Context, string, string, models.Channel) error {
	return nil
}
