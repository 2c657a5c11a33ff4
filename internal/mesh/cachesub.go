// ============================================================================
// Aegis distributed-cache subscriber - Redis pub/sub fallback
// ============================================================================
//
// Package: internal/mesh
// File: cachesub.go
// Purpose: gives the DISTRIBUTED_CACHE_ENABLED configuration flag
// a concrete backend: a Redis pub/sub channel that can
// carry broadcast events between processes alongside, or instead of,
// the WebSocket mesh. Grounded on the retrieved
// maumercado-task-queue-go example, which depends on
// github.com/redis/go-redis/v9 for its own queue/cache backend.
//
// ============================================================================

package mesh

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/aegis-run/poolrt/pkg/types"
)

// CacheSink publishes and subscribes to broadcast events over a Redis
// pub/sub channel. It implements the same Publish shape as Uplink, so
// the router can treat both as interchangeable RemoteSinks.
type CacheSink struct {
	client    *redis.Client
	topic     string
	onMessage func(types.BroadcastMessage)
	pubsub    *redis.PubSub
	cancel    context.CancelFunc
}

// NewCacheSink connects to a Redis instance at addr and subscribes to
// topic, delivering every received BroadcastMessage to onMessage from
// its own read-loop goroutine.
func NewCacheSink(ctx context.Context, addr, topic string, onMessage func(types.BroadcastMessage)) *CacheSink {
	client := redis.NewClient(&redis.Options{Addr: addr})
	subCtx, cancel := context.WithCancel(ctx)

	c := &CacheSink{
		client:    client,
		topic:     topic,
		onMessage: onMessage,
		pubsub:    client.Subscribe(subCtx, topic),
		cancel:    cancel,
	}
	go c.readLoop(subCtx)
	return c
}

func (c *CacheSink) readLoop(ctx context.Context) {
	ch := c.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case m, ok := <-ch:
			if !ok {
				return
			}
			var msg types.BroadcastMessage
			if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
				log.Error("mesh: cache subscriber received malformed payload", "error", err)
				continue
			}
			if c.onMessage != nil {
				c.onMessage(msg)
			}
		}
	}
}

// Publish implements router.RemoteSink by publishing msg as JSON on
// the configured Redis topic.
func (c *CacheSink) Publish(eventName string, msg types.BroadcastMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("mesh: cache publish marshal: %w", err)
	}
	return c.client.Publish(context.Background(), c.topic, raw).Err()
}

// Close stops the subscriber's read loop and releases the Redis
// client.
func (c *CacheSink) Close() error {
	c.cancel()
	_ = c.pubsub.Close()
	return c.client.Close()
}
