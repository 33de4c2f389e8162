// Package cache is a read-through TTL cache that coalesces concurrent loads
// of the same key into a single call.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

const DefaultEvictionThreshold = 100

// Loader produces a value for a missing key.
type Loader func(ctx context.Context) (interface{}, error)

// Options configures a Cache.
type Options struct {
	// EvictionThreshold is the entry count above which a store sweeps expired entries.
	EvictionThreshold int
	Clock             clock.Clock
}

// DefaultOptions returns the default configuration.
func DefaultOptions() Options {
	return Options{
		EvictionThreshold: DefaultEvictionThreshold,
		Clock:             clock.New(),
	}
}

type entry struct {
	value     interface{}
	storedAt  time.Time
	expiresAt time.Time
}

// flight tracks callers attached to one in-progress load so the load can be
// cancelled once every caller has gone away.
type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

// Stats is a point-in-time view of cache counters.
type Stats struct {
	Entries   int
	InFlight  int
	Hits      uint64
	Misses    uint64
	Coalesced uint64
	Evicted   uint64
}

// Cache is safe for concurrent use. Entries and in-flight loads are only
// touched through GetOrLoad and the maintenance methods below.
type Cache struct {
	mu        sync.Mutex
	entries   map[Key]entry
	flights   map[string]*flight
	group     singleflight.Group
	clock     clock.Clock
	threshold int

	hits, misses, coalesced, evicted uint64

	logger  *zap.Logger
	metrics *metrics.Collector
}

// New creates an empty cache.
func New(opts Options, collector *metrics.Collector, logger *zap.Logger) *Cache {
	if opts.EvictionThreshold <= 0 {
		opts.EvictionThreshold = DefaultEvictionThreshold
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Cache{
		entries:   make(map[Key]entry),
		flights:   make(map[string]*flight),
		clock:     opts.Clock,
		threshold: opts.EvictionThreshold,
		logger:    logger.Named("cache"),
		metrics:   collector,
	}
}

// GetOrLoad returns the live value for key, or joins the in-flight load for
// key, or runs loader. Concurrent callers for the same key share one loader
// call and observe the same value or error. Errors are never stored.
//
// The loader runs with a context that stays alive while at least one caller
// is still waiting; when all of them give up, it is cancelled.
func (c *Cache) GetOrLoad(ctx context.Context, key Key, ttl time.Duration, loader Loader) (interface{}, error) {
	if v, ok := c.lookup(key); ok {
		c.mu.Lock()
		c.hits++
		c.mu.Unlock()
		c.metrics.RecordCacheRequest(string(key.Kind), "hit")
		return v, nil
	}

	sk := key.String()

	// Registering on the flight and joining the singleflight call happen under
	// one lock, so every caller counted as a waiter is attached to the same call.
	c.mu.Lock()
	f, joined := c.attachLocked(ctx, sk)
	ch := c.group.DoChan(sk, func() (interface{}, error) {
		// A load that finished between our lookup and DoChan has already stored the value.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := loader(f.ctx)
		if err != nil {
			c.metrics.RecordCacheRequest(string(key.Kind), "error")
			return nil, err
		}
		c.store(key, v, ttl)
		return v, nil
	})
	c.mu.Unlock()
	defer c.detach(sk, f)

	if joined {
		c.metrics.RecordCacheRequest(string(key.Kind), "coalesced")
		c.logger.Debug("Joining in-flight load", zap.String("key", sk))
	} else {
		c.metrics.RecordCacheRequest(string(key.Kind), "miss")
	}

	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetOrLoad is the typed form of Cache.GetOrLoad.
func GetOrLoad[V any](ctx context.Context, c *Cache, key Key, ttl time.Duration, loader func(ctx context.Context) (V, error)) (V, error) {
	var zero V
	v, err := c.GetOrLoad(ctx, key, ttl, func(ctx context.Context) (interface{}, error) {
		return loader(ctx)
	})
	if err != nil {
		return zero, err
	}
	typed, ok := v.(V)
	if !ok {
		return zero, fmt.Errorf("cache: value for %s has type %T, want %T", key.Kind, v, zero)
	}
	return typed, nil
}

// Invalidate drops the stored value for key. An in-flight load is not affected.
func (c *Cache) Invalidate(key Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	c.metrics.SetCacheEntries(len(c.entries))
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns current counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries:   len(c.entries),
		InFlight:  len(c.flights),
		Hits:      c.hits,
		Misses:    c.misses,
		Coalesced: c.coalesced,
		Evicted:   c.evicted,
	}
}

func (c *Cache) lookup(key Key) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[key]
	if !ok || !c.clock.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

func (c *Cache) store(key Key, v interface{}, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	c.entries[key] = entry{value: v, storedAt: now, expiresAt: now.Add(ttl)}
	if len(c.entries) > c.threshold {
		if n := c.sweepLocked(); n > 0 {
			c.logger.Debug("Swept expired entries",
				zap.Int("removed", n),
				zap.Int("remaining", len(c.entries)))
		}
	}
	c.metrics.SetCacheEntries(len(c.entries))
}

func (c *Cache) sweepLocked() int {
	now := c.clock.Now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	c.evicted += uint64(removed)
	c.metrics.RecordCacheEvictions(removed)
	return removed
}

// attachLocked registers the caller on the flight for sk, creating it if needed.
func (c *Cache) attachLocked(ctx context.Context, sk string) (*flight, bool) {
	f, ok := c.flights[sk]
	if !ok {
		fctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
		f = &flight{ctx: fctx, cancel: cancel}
		c.flights[sk] = f
		c.misses++
	} else {
		c.coalesced++
	}
	f.waiters++
	return f, ok
}

// detach releases the caller; the last one out cancels the load and makes
// the next caller start a fresh one instead of joining an abandoned call.
func (c *Cache) detach(sk string, f *flight) {
	c.mu.Lock()
	defer c.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return
	}
	f.cancel()
	if c.flights[sk] == f {
		delete(c.flights, sk)
	}
	c.group.Forget(sk)
}
