package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReferenceEventStream carries accepted state transitions to downstream
// consumers (event journal, subscriptions feed).
const ReferenceEventStream = "amazon:reference:events"

type StreamProducer struct {
	client *redis.Client
}

func NewStreamProducer(client *redis.Client) *StreamProducer {
	return &StreamProducer{client: client}
}

// PublishReferenceEvent appends one state transition to the event
// stream.
func (p *StreamProducer) PublishReferenceEvent(ctx context.Context, orderID, entity, entityID, state, source string, observedAt time.Time) error {
	args := &redis.XAddArgs{
		Stream: ReferenceEventStream,
		Values: map[string]any{
			"order_id":    orderID,
			"entity":      entity,
			"entity_id":   entityID,
			"state":       state,
			"source":      source,
			"observed_at": observedAt.UTC().Format(time.RFC3339Nano),
		},
	}
	if _, err := p.client.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("publish reference event: %w", err)
	}
	return nil
}

type StreamConsumer struct {
	client        *redis.Client
	stream        string
	group         string
	consumer      string
	batchSize     int64
	blockDuration time.Duration
}

func NewStreamConsumer(client *redis.Client, stream, group, consumer string, batchSize int64, blockDuration time.Duration) *StreamConsumer {
	return &StreamConsumer{
		client:        client,
		stream:        stream,
		group:         group,
		consumer:      consumer,
		batchSize:     batchSize,
		blockDuration: blockDuration,
	}
}

// CreateGroup creates the consumer group, starting from the beginning
// of the stream. Errors from an already existing group are returned to
// the caller, who typically logs and continues.
func (c *StreamConsumer) CreateGroup(ctx context.Context) error {
	return c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
}

// Read blocks for up to the configured duration and returns the next
// batch of messages for this consumer.
func (c *StreamConsumer) Read(ctx context.Context) ([]redis.XStream, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.consumer,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockDuration,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return streams, err
}

// Ack acknowledges one processed message.
func (c *StreamConsumer) Ack(ctx context.Context, messageID string) error {
	return c.client.XAck(ctx, c.stream, c.group, messageID).Err()
}
