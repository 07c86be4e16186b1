package websocket

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/quizcheck-backend/internal/config"
)

// Broker fans grade events out to every stream of a test, across server
// instances.
type Broker interface {
	Publish(ctx context.Context, testID uuid.UUID, ev GradeEvent) error
	// Subscribe delivers events until ctx ends or the returned func is
	// called.
	Subscribe(ctx context.Context, testID uuid.UUID) (<-chan GradeEvent, func())
}

// RedisBroker is a Broker over Redis PubSub.
type RedisBroker struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewRedisBroker creates a new RedisBroker.
func NewRedisBroker(rdb *redis.Client, log zerolog.Logger) *RedisBroker {
	return &RedisBroker{
		rdb: rdb,
		log: log.With().Str("component", "ws_broker").Logger(),
	}
}

// Publish sends ev to the test's channel.
func (b *RedisBroker) Publish(ctx context.Context, testID uuid.UUID, ev GradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return b.rdb.Publish(ctx, config.CacheKey.TestStreamChannel(testID.String()), payload).Err()
}

// Subscribe listens on the test's channel.
func (b *RedisBroker) Subscribe(ctx context.Context, testID uuid.UUID) (<-chan GradeEvent, func()) {
	sub := b.rdb.Subscribe(ctx, config.CacheKey.TestStreamChannel(testID.String()))
	out := make(chan GradeEvent, 16)

	go func() {
		defer close(out)
		for msg := range sub.Channel() {
			var ev GradeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("Dropping malformed event")
				continue
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, func() { _ = sub.Close() }
}
