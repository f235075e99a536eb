package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// NotificationDedup is the short-lived seen-set for notification
// uniqueness tokens. Entries expire after the horizon, which should
// cover the largest plausible provider retry window.
type NotificationDedup struct {
	client  *redis.Client
	horizon time.Duration
}

// NewNotificationDedup creates the seen-set with the given eviction
// horizon.
func NewNotificationDedup(client *redis.Client, horizon time.Duration) *NotificationDedup {
	return &NotificationDedup{client: client, horizon: horizon}
}

// Seen atomically records the token and reports whether it had been
// seen before. The first caller for a token gets false; every replay
// within the horizon gets true.
func (d *NotificationDedup) Seen(ctx context.Context, token string) (bool, error) {
	ok, err := d.client.SetNX(ctx, "ipn:seen:"+token, "1", d.horizon).Result()
	if err != nil {
		return false, fmt.Errorf("check notification seen-set: %w", err)
	}
	return !ok, nil
}

// Forget removes a token from the seen-set. Used to unwind the marker
// when processing a freshly seen notification fails, so the provider's
// retry is not mistaken for a replay.
func (d *NotificationDedup) Forget(ctx context.Context, token string) error {
	if err := d.client.Del(ctx, "ipn:seen:"+token).Err(); err != nil {
		return fmt.Errorf("clear notification seen-set entry: %w", err)
	}
	return nil
}
