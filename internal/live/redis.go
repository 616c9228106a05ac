package live

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const changedPayload = "changed"

// RedisFeed shares change notifications between service instances through
// Redis pub/sub, so a write handled by one instance refreshes live views
// served by another.
type RedisFeed struct {
	rdb    *redis.Client
	prefix string
}

// NewRedisFeed uses rdb for pub/sub. Channels are named "<prefix>:<topic>".
func NewRedisFeed(rdb *redis.Client, prefix string) *RedisFeed {
	return &RedisFeed{rdb: rdb, prefix: prefix}
}

func (f *RedisFeed) channel(topic string) string {
	return f.prefix + ":" + topic
}

func (f *RedisFeed) Publish(ctx context.Context, topic string) error {
	if err := f.rdb.Publish(ctx, f.channel(topic), changedPayload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", topic, err)
	}
	return nil
}

func (f *RedisFeed) Subscribe(ctx context.Context, topic string) (<-chan struct{}, error) {
	pubsub := f.rdb.Subscribe(ctx, f.channel(topic))

	// Wait for the subscription confirmation so that no publish issued after
	// Subscribe returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", topic, err)
	}

	s := newSignal()
	messages := pubsub.Channel()
	go func() {
		defer s.close()
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				s.notify()
			}
		}
	}()

	return s.ch, nil
}

func (f *RedisFeed) Close() error {
	return f.rdb.Close()
}
