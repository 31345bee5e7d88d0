// Package pubsub is a thin wrapper over a Redis-compatible broker used to
// fan delta batches out from feed adapters to the persistence worker.
// Channels are named by exchange ("bitmex", "gdax", ...); the payload of
// every publish is a JSON array of delta.Delta for one upstream message.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/epic1st/dtfeed/delta"
)

// Conn wraps a single Redis connection used for publishing. Multiple
// adapter worker goroutines may share one Conn; PublishBatch is guarded by a
// mutex so writes from concurrent goroutines never interleave, while the
// JSON marshal itself happens outside the critical section.
type Conn struct {
	mu     sync.Mutex
	client *redis.Client
}

// Dial connects to a Redis-compatible broker at addr, authenticating with
// password if it is non-empty.
func Dial(ctx context.Context, addr, password string) (*Conn, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pubsub: dial %s: %w", addr, err)
	}
	return &Conn{client: client}, nil
}

// Close releases the underlying connection.
func (c *Conn) Close() error {
	return c.client.Close()
}

// PublishBatch serializes deltas as a JSON array and publishes them on
// channel in one critical section.
func (c *Conn) PublishBatch(ctx context.Context, channel string, deltas []delta.Delta) error {
	payload, err := json.Marshal(deltas)
	if err != nil {
		return fmt.Errorf("pubsub: marshal batch: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client.Publish(ctx, channel, payload).Err()
}

// Batch is one decoded pub/sub message: the channel it arrived on (which
// doubles as the exchange key) and its deltas.
type Batch struct {
	Channel string
	Deltas  []delta.Delta
}

// Subscriber receives delta batches published on one or more channels, on
// its own dedicated connection.
type Subscriber struct {
	client *redis.Client
	sub    *redis.PubSub
}

// Subscribe opens a subscription to channels — typically one per supported
// exchange — on a fresh connection.
func Subscribe(ctx context.Context, addr, password string, channels ...string) (*Subscriber, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	sub := client.Subscribe(ctx, channels...)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		client.Close()
		return nil, fmt.Errorf("pubsub: subscribe: %w", err)
	}

	return &Subscriber{client: client, sub: sub}, nil
}

// Channel returns a channel of decoded batches. A message whose payload
// fails to decode as a JSON array of deltas is dropped rather than
// propagated — a malformed batch must never stop the subscriber, per the
// decode-error policy.
func (s *Subscriber) Channel(ctx context.Context) <-chan Batch {
	out := make(chan Batch, 256)
	msgs := s.sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}

				var deltas []delta.Delta
				if err := json.Unmarshal([]byte(msg.Payload), &deltas); err != nil {
					continue
				}

				select {
				case out <- Batch{Channel: msg.Channel, Deltas: deltas}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out
}

// Close releases the subscription and its connection.
func (s *Subscriber) Close() error {
	_ = s.sub.Close()
	return s.client.Close()
}
