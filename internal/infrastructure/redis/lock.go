package redis

import (
	"context"
	"fmt"
	"time"

	domainErrors "github.com/channel-UCJcHjib4Hs6nikJXoImc-QA/woocommerce-gateway-amazon-pay/internal/domain/errors"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lua script for safe lock release (only owner can release)
var releaseLockScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// OrderLocks serializes all reference-state mutation per order. The
// synchronous reconciler and the IPN handler share one instance, so no
// two reconciling operations ever mutate the same order concurrently;
// operations on different orders proceed in parallel.
type OrderLocks struct {
	client     *redis.Client
	ttl        time.Duration
	maxRetries int
	retryDelay time.Duration
}

// NewOrderLocks creates a per-order lock manager. ttl bounds how long a
// crashed holder can block an order.
func NewOrderLocks(client *redis.Client, ttl time.Duration) *OrderLocks {
	return &OrderLocks{
		client:     client,
		ttl:        ttl,
		maxRetries: 50,
		retryDelay: 100 * time.Millisecond,
	}
}

// Acquire takes the lock for one order, waiting briefly if another
// writer holds it. The returned release function is safe to call on
// every exit path; only the owner's token can release the key.
func (m *OrderLocks) Acquire(ctx context.Context, orderID string) (func(), error) {
	key := "lock:order:" + orderID
	value := uuid.New().String()

	for i := 0; i < m.maxRetries; i++ {
		ok, err := m.client.SetNX(ctx, key, value, m.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, err)
		}
		if ok {
			return func() {
				// Release must not inherit a cancelled request context.
				releaseCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
				defer cancel()
				_, _ = releaseLockScript.Run(releaseCtx, m.client, []string{key}, value).Result()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", domainErrors.ErrLockAcquisitionFailed, ctx.Err())
		case <-time.After(m.retryDelay):
		}
	}

	return nil, domainErrors.ErrLockAcquisitionFailed
}
