// Package cache is the TTL cache and fetch coordinator for server-fetched
// collections.
//
// Every key is bound to one Source. Fetch serves a fresh entry without
// touching the network, joins an in-flight fetch for the same key instead of
// issuing a second one, and keeps serving the last good entry when a refresh
// fails. Keys fetch independently of each other.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/five82/tracksync/internal/metrics"
)

// ErrUnknownKey is returned for keys that were never registered.
var ErrUnknownKey = errors.New("unknown cache key")

// FetchOptions tune one Fetch call.
type FetchOptions struct {
	// Force bypasses the freshness check. A forced call still joins a fetch
	// that is already in flight, which returns post-request data.
	Force bool
}

// Coordinator owns the cache entries. Create it with New.
type Coordinator struct {
	logger *slog.Logger
	now    func() time.Time
	group  singleflight.Group

	refreshers sync.WaitGroup

	mu      sync.RWMutex
	sources map[string]Source
	entries map[string]Entry
	waiting map[string]int
}

// New returns an empty coordinator. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		logger:  logger,
		now:     time.Now,
		sources: make(map[string]Source),
		entries: make(map[string]Entry),
		waiting: make(map[string]int),
	}
}

// Register binds key to src. Registering a key twice replaces its source
// but keeps any cached entry.
func (c *Coordinator) Register(key string, src Source) error {
	if key == "" {
		return errors.New("cache key is required")
	}
	if src.Fetch == nil {
		return fmt.Errorf("cache key %q: fetch function is required", key)
	}
	if src.TTL <= 0 {
		return fmt.Errorf("cache key %q: ttl must be positive", key)
	}
	c.mu.Lock()
	c.sources[key] = src
	c.mu.Unlock()
	return nil
}

// Keys returns the registered keys in sorted order.
func (c *Coordinator) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]string, 0, len(c.sources))
	for k := range c.sources {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Fetch returns the entry for key, loading it when needed.
//
// A failed load with a previous entry returns that entry with LastError set
// and a nil error. A failed load with nothing cached returns the error.
func (c *Coordinator) Fetch(ctx context.Context, key string, opts FetchOptions) (Entry, error) {
	c.mu.RLock()
	src, ok := c.sources[key]
	entry, cached := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	if !opts.Force && cached && entry.Fresh(c.now()) {
		metrics.CacheLookups.WithLabelValues(key, "hit").Inc()
		return entry.clone(), nil
	}

	c.mu.Lock()
	c.waiting[key]++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.waiting[key]--
		c.mu.Unlock()
	}()

	// The load runs detached so one caller giving up does not fail the
	// others joined to it.
	ch := c.group.DoChan(key, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), key, src)
	})

	select {
	case <-ctx.Done():
		return Entry{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			metrics.CacheLookups.WithLabelValues(key, "joined").Inc()
		}
		if res.Err != nil {
			return Entry{}, res.Err
		}
		return res.Val.(Entry).clone(), nil
	}
}

// InFlight reports whether a load for key is running.
func (c *Coordinator) InFlight(key string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiting[key] > 0
}

func (c *Coordinator) waiters(key string) int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.waiting[key]
}

func (c *Coordinator) load(ctx context.Context, key string, src Source) (Entry, error) {
	start := c.now()
	raw, err := src.Fetch(ctx)
	metrics.CacheFetchDuration.WithLabelValues(key).Observe(time.Since(start).Seconds())

	var items []json.RawMessage
	if err == nil {
		items, err = Normalize(raw)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	prev, cached := c.entries[key]
	if err != nil {
		if cached {
			prev.LastError = err.Error()
			c.entries[key] = prev
			metrics.CacheLookups.WithLabelValues(key, "stale").Inc()
			c.logger.Warn("cache refresh failed; serving stale entry",
				"key", key,
				"age", prev.Age(c.now()).Round(time.Second).String(),
				"error", err,
			)
			return prev, nil
		}
		metrics.CacheLookups.WithLabelValues(key, "error").Inc()
		return Entry{}, fmt.Errorf("fetch %s: %w", key, err)
	}

	entry := Entry{
		Key:       key,
		Items:     items,
		FetchedAt: c.now(),
		TTL:       src.TTL,
		PushedAt:  prev.PushedAt,
	}
	c.entries[key] = entry
	metrics.CacheLookups.WithLabelValues(key, "fetched").Inc()
	return entry, nil
}

// Warm replaces the items for key from a pushed update. FetchedAt is left
// alone, so a pushed entry never suppresses a pull.
func (c *Coordinator) Warm(key string, items []json.RawMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		entry = Entry{Key: key}
		if src, registered := c.sources[key]; registered {
			entry.TTL = src.TTL
		}
	}
	entry.Items = append([]json.RawMessage(nil), items...)
	entry.PushedAt = c.now()
	c.entries[key] = entry
}

// Peek returns the cached entry without fetching.
func (c *Coordinator) Peek(key string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	return e.clone(), ok
}

// Entries returns every cached entry sorted by key.
func (c *Coordinator) Entries() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Entry, 0, len(c.entries))
	for _, e := range c.entries {
		out = append(out, e.clone())
	}
	slices.SortFunc(out, func(a, b Entry) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return out
}

// RefreshAll fetches every registered key concurrently.
func (c *Coordinator) RefreshAll(ctx context.Context, force bool) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, key := range c.Keys() {
		g.Go(func() error {
			_, err := c.Fetch(ctx, key, FetchOptions{Force: force})
			return err
		})
	}
	return g.Wait()
}

// StartRefresh starts one ticker per Refresh source and calls a non-forced
// Fetch on every tick. A tick inside the freshness window is a cache hit.
// The tickers stop when ctx is done; Wait blocks until they have.
func (c *Coordinator) StartRefresh(ctx context.Context) {
	c.mu.RLock()
	scheduled := make(map[string]time.Duration)
	for key, src := range c.sources {
		if src.Refresh {
			scheduled[key] = src.TTL
		}
	}
	c.mu.RUnlock()

	for key, every := range scheduled {
		c.refreshers.Add(1)
		go func() {
			defer c.refreshers.Done()
			ticker := time.NewTicker(every)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if _, err := c.Fetch(ctx, key, FetchOptions{}); err != nil && ctx.Err() == nil {
						c.logger.Warn("scheduled cache refresh failed", "key", key, "error", err)
					}
				}
			}
		}()
	}
	c.logger.Debug("cache refresh started", "keys", len(scheduled))
}

// Wait blocks until every refresh ticker started by StartRefresh has exited.
func (c *Coordinator) Wait() {
	c.refreshers.Wait()
}
