package reconciler

import (
	"context"
	"time"

	"github.com/kevobebop/kindmind/internal/config"
	redis "github.com/redis/go-redis/v9"
)

// NotifyGuard suppresses duplicate notification side effects across worker
// instances when the provider redelivers an event. State correctness never
// depends on it; without redis every node falls back to always-notify.
type NotifyGuard struct {
	client *redis.Client
}

func NewNotifyGuard(client *redis.Client) *NotifyGuard {
	if client == nil {
		return nil
	}
	return &NotifyGuard{client: client}
}

// FirstDelivery marks the event id and reports whether this call was the
// first to do so within the ttl window.
func (g *NotifyGuard) FirstDelivery(ctx context.Context, eventID string, ttl time.Duration) bool {
	if g == nil || g.client == nil || eventID == "" {
		return true
	}
	ok, err := g.client.SetNX(ctx, "billing:event:"+eventID, "1", ttl).Result()
	if err != nil {
		// Degrade to notifying rather than dropping.
		return true
	}
	return ok
}

func newRedisClient(cfg config.Config) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	})
}
