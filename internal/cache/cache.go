package cache

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
)

// Cache is the framework-independent view of server state held by the client.
type Cache interface {
	// Get returns the latest successful result for key.
	Get(key string) (interface{}, bool)
	// Invalidate drops key and notifies its subscribers.
	Invalidate(key string)
	// Subscribe registers fn to run after key is invalidated. The returned
	// function removes the subscription.
	Subscribe(key string, fn func(key string)) (unsubscribe func())
}

// Fetcher loads the value of a query from the backend.
type Fetcher func(ctx context.Context) (interface{}, error)

// Options configures a QueryCache.
type Options struct {
	// MaxEntries bounds how many query results are retained.
	MaxEntries int64
	// Retry is how many extra attempts a failing read gets. Zero disables retries.
	Retry int
}

// QueryCache associates query keys with their latest successful result.
// Concurrent fetches of the same key share one request, and an invalidation
// that lands while a fetch is in flight keeps the stale result out.
type QueryCache struct {
	store *ristretto.Cache[string, interface{}]
	group singleflight.Group
	retry int
	log   zerolog.Logger

	// origin tags invalidations published to a Bus so echoes can be ignored.
	origin string
	bus    Bus

	mu         sync.Mutex
	keys       map[string]struct{}
	generation map[string]uint64
	inflight   map[string]int
	subs       map[string]map[uint64]func(string)
	nextSubID  uint64
}

// New creates a QueryCache.
func New(opts Options, log zerolog.Logger) (*QueryCache, error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = 1000
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, interface{}]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &QueryCache{
		store:      store,
		retry:      opts.Retry,
		log:        log,
		origin:     uuid.New().String(),
		keys:       make(map[string]struct{}),
		generation: make(map[string]uint64),
		inflight:   make(map[string]int),
		subs:       make(map[string]map[uint64]func(string)),
	}, nil
}

// Close releases the underlying store.
func (c *QueryCache) Close() {
	c.store.Close()
}

// Get returns the cached value for key.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	return c.store.Get(key)
}

// Fetching reports whether a request for key is in flight.
func (c *QueryCache) Fetching(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight[key] > 0
}

// Fetch returns the cached value for key, loading it with fetch on a miss.
func (c *QueryCache) Fetch(ctx context.Context, key string, fetch Fetcher) (interface{}, error) {
	if v, ok := c.store.Get(key); ok {
		return v, nil
	}
	return c.Refetch(ctx, key, fetch)
}

// Refetch loads key with fetch regardless of what is cached. At most one
// request per key is in flight; concurrent callers share its result.
func (c *QueryCache) Refetch(ctx context.Context, key string, fetch Fetcher) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		// The shared request outlives any single caller so the result can
		// still land in the cache after the caller that started it goes away.
		fetchCtx := context.WithoutCancel(ctx)

		c.mu.Lock()
		gen := c.generation[key]
		c.inflight[key]++
		c.mu.Unlock()

		v, err := c.fetchWithRetry(fetchCtx, key, fetch)

		c.mu.Lock()
		if err == nil && c.generation[key] == gen && c.store.Set(key, v, 1) {
			c.store.Wait()
			if _, ok := c.store.Get(key); ok {
				c.keys[key] = struct{}{}
			}
		}
		c.inflight[key]--
		if c.inflight[key] == 0 {
			delete(c.inflight, key)
			delete(c.generation, key)
		}
		c.mu.Unlock()
		return v, err
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.Val, res.Err
	}
}

func (c *QueryCache) fetchWithRetry(ctx context.Context, key string, fetch Fetcher) (interface{}, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retry; attempt++ {
		v, err := fetch(ctx)
		if err == nil {
			return v, nil
		}
		lastErr = err
		c.log.Warn().
			Err(err).
			Str("key", key).
			Int("attempt", attempt+1).
			Msg("Query fetch failed")
	}
	return nil, lastErr
}

// Invalidate drops key, publishes the invalidation when a bus is attached and
// notifies subscribers.
func (c *QueryCache) Invalidate(key string) {
	c.invalidate(key, false)
	c.publish(Invalidation{Key: key})
}

// InvalidatePrefix invalidates every known key starting with prefix.
func (c *QueryCache) InvalidatePrefix(prefix string) {
	c.invalidate(prefix, true)
	c.publish(Invalidation{Key: prefix, Prefix: true})
}

func (c *QueryCache) invalidate(key string, prefix bool) {
	c.mu.Lock()
	matched := []string{key}
	if prefix {
		for k := range c.keys {
			if _, ok := c.store.Get(k); !ok {
				// Evicted or rejected by the store.
				delete(c.keys, k)
			}
		}

		seen := make(map[string]struct{})
		matched = matched[:0]
		match := func(k string) {
			if _, ok := seen[k]; ok || !strings.HasPrefix(k, key) {
				return
			}
			seen[k] = struct{}{}
			matched = append(matched, k)
		}
		for k := range c.keys {
			match(k)
		}
		for k := range c.inflight {
			match(k)
		}
		for k := range c.subs {
			match(k)
		}
	}

	var notify []func()
	for _, k := range matched {
		if c.inflight[k] > 0 {
			c.generation[k]++
		}
		// Later fetches start a new request instead of joining one that
		// began before the invalidation.
		c.group.Forget(k)
		delete(c.keys, k)
		c.store.Del(k)
		for _, fn := range c.subs[k] {
			fn := fn
			k := k
			notify = append(notify, func() { fn(k) })
		}
	}
	c.store.Wait()
	c.mu.Unlock()

	for _, fn := range notify {
		fn()
	}
}

// Subscribe registers fn to be called with the key after each invalidation of key.
func (c *QueryCache) Subscribe(key string, fn func(key string)) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.nextSubID++
	id := c.nextSubID
	if c.subs[key] == nil {
		c.subs[key] = make(map[uint64]func(string))
	}
	c.subs[key][id] = fn

	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs[key], id)
		if len(c.subs[key]) == 0 {
			delete(c.subs, key)
		}
	}
}

// Query is a typed wrapper around Fetch.
func Query[T any](ctx context.Context, c *QueryCache, key string, fetch func(ctx context.Context) (T, error)) (T, error) {
	v, err := c.Fetch(ctx, key, func(ctx context.Context) (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		var zero T
		return zero, err
	}
	typed, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("cached value for %q has type %T", key, v)
	}
	return typed, nil
}
