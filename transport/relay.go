package transport

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Relay republishes payloads on a Redis pub/sub channel so processes outside
// the hub can follow the board.
type Relay struct {
	client  redis.UniversalClient
	channel string
	logger  logrus.FieldLogger
}

// NewRelay connects to the Redis server at addr and checks it is reachable.
func NewRelay(ctx context.Context, addr, channel string, logger logrus.FieldLogger) (*Relay, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis at %s: %w", addr, err)
	}
	logger.WithFields(logrus.Fields{"addr": addr, "channel": channel}).Info("connected to redis")
	return NewRelayWithClient(client, channel, logger), nil
}

// NewRelayWithClient wraps an existing client.
func NewRelayWithClient(client redis.UniversalClient, channel string, logger logrus.FieldLogger) *Relay {
	return &Relay{client: client, channel: channel, logger: logger}
}

// Publish sends data to the relay channel.
func (r *Relay) Publish(ctx context.Context, data string) error {
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", r.channel, err)
	}
	return nil
}

// Follow calls fn for every payload published on the relay channel until ctx
// is done.
func (r *Relay) Follow(ctx context.Context, fn func(data string)) error {
	pubsub := r.client.Subscribe(ctx, r.channel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed before reading.
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", r.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			fn(msg.Payload)
		}
	}
}

// Close closes the Redis client.
func (r *Relay) Close() error {
	return r.client.Close()
}
