package cache

import (
	"context"
	"time"
)

// publishTimeout bounds how long a local invalidation waits on the bus.
const publishTimeout = 5 * time.Second

// Invalidation is a cache invalidation exchanged between instances.
type Invalidation struct {
	Origin string `json:"origin"`
	Key    string `json:"key"`
	Prefix bool   `json:"prefix,omitempty"`
}

// Bus carries invalidations between front-end server instances.
type Bus interface {
	Publish(ctx context.Context, inv Invalidation) error
	// Listen delivers remote invalidations to handler until ctx is done.
	Listen(ctx context.Context, handler func(Invalidation)) error
}

// Attach publishes local invalidations to bus and applies remote ones until
// ctx is done. It blocks; run it in its own goroutine.
func (c *QueryCache) Attach(ctx context.Context, bus Bus) error {
	c.mu.Lock()
	c.bus = bus
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.bus = nil
		c.mu.Unlock()
	}()

	return bus.Listen(ctx, func(inv Invalidation) {
		if inv.Origin == c.origin {
			return
		}
		c.log.Debug().
			Str("key", inv.Key).
			Bool("prefix", inv.Prefix).
			Str("origin", inv.Origin).
			Msg("Applying remote invalidation")
		c.invalidate(inv.Key, inv.Prefix)
	})
}

func (c *QueryCache) publish(inv Invalidation) {
	c.mu.Lock()
	bus := c.bus
	c.mu.Unlock()
	if bus == nil {
		return
	}

	inv.Origin = c.origin
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := bus.Publish(ctx, inv); err != nil {
			c.log.Error().Err(err).Str("key", inv.Key).Msg("Failed to publish invalidation")
		}
	}()
}
