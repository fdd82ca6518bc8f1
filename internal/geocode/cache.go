package geocode

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"chargelog/internal/core"

	"golang.org/x/sync/errgroup"
)

// Resolver looks up a free-text query against the external geocoding
// provider. ok=false with a nil error is a definitive "no match"; an error
// is a transient provider failure. Both are cached as misses.
type Resolver interface {
	Lookup(ctx context.Context, query string) (core.Coordinates, bool, error)
}

// Cache memoizes location-name resolution for the lifetime of the process.
// Keys are exact case-sensitive location strings. Once a name has resolved,
// to coordinates or to a definitive miss, it is never looked up again until
// Forget is called explicitly.
//
// All outbound lookups pass through a single throttle that enforces the
// minimum spacing the anonymous provider tier tolerates, no matter how many
// goroutines resolve concurrently.
type Cache struct {
	resolver    Resolver
	country     string
	minInterval time.Duration
	concurrency int

	mu      sync.Mutex
	entries map[string]*core.Coordinates // nil value = cached miss

	callMu   sync.Mutex // serializes outbound calls
	lastCall time.Time
}

type Config struct {
	Country     string
	MinInterval time.Duration
	Concurrency int
}

func DefaultConfig() Config {
	return Config{
		Country:     "Malaysia",
		MinInterval: time.Second,
		Concurrency: 4,
	}
}

func NewCache(resolver Resolver, cfg Config) *Cache {
	if cfg.MinInterval <= 0 {
		cfg.MinInterval = time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	return &Cache{
		resolver:    resolver,
		country:     cfg.Country,
		minInterval: cfg.MinInterval,
		concurrency: cfg.Concurrency,
		entries:     make(map[string]*core.Coordinates),
	}
}

// Resolve returns the coordinates for a location name, or nil when the name
// could not be resolved. At most one outbound lookup is ever issued per
// name; failures are recorded as misses rather than retried, so callers are
// never blocked by a flaky provider.
func (c *Cache) Resolve(ctx context.Context, name string) (*core.Coordinates, error) {
	if name == "" {
		return nil, nil
	}

	c.mu.Lock()
	if coords, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return coords, nil
	}
	c.mu.Unlock()

	c.callMu.Lock()
	defer c.callMu.Unlock()

	// Another caller may have resolved this name while we waited.
	c.mu.Lock()
	if coords, ok := c.entries[name]; ok {
		c.mu.Unlock()
		return coords, nil
	}
	c.mu.Unlock()

	if err := c.waitInterval(ctx); err != nil {
		return nil, err
	}

	query := name
	if c.country != "" {
		query = fmt.Sprintf("%s, %s", name, c.country)
	}
	coords, ok, err := c.resolver.Lookup(ctx, query)
	c.lastCall = time.Now()

	var result *core.Coordinates
	switch {
	case err != nil:
		slog.WarnContext(ctx, "Geocode lookup failed, caching as unresolved",
			"location", name, "error", err)
	case !ok:
		slog.InfoContext(ctx, "Geocode lookup found no match", "location", name)
	default:
		result = &coords
	}

	c.mu.Lock()
	c.entries[name] = result
	c.mu.Unlock()
	return result, nil
}

// ResolveMissing resolves a batch of names, returning one entry per name
// (nil for unresolved). The pipeline is bounded-concurrency, but cache
// misses still serialize through the shared throttle, so the batch never
// fans out against the provider.
func (c *Cache) ResolveMissing(ctx context.Context, names []string) (map[string]*core.Coordinates, error) {
	results := make(map[string]*core.Coordinates, len(names))
	var resMu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)
	for _, name := range names {
		name := name
		g.Go(func() error {
			coords, err := c.Resolve(ctx, name)
			if err != nil {
				return err
			}
			resMu.Lock()
			results[name] = coords
			resMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Cached returns the coordinates already known for a name without ever
// going outbound. Unknown names and cached misses both return nil.
func (c *Cache) Cached(name string) *core.Coordinates {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[name]
}

// Forget drops a cached entry so the next Resolve performs a fresh lookup.
// This is the only way a cached miss is ever retried.
func (c *Cache) Forget(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, name)
}

// Size returns the number of cached names, resolved or not.
func (c *Cache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// waitInterval blocks until minInterval has passed since the previous
// outbound call. Callers hold callMu.
func (c *Cache) waitInterval(ctx context.Context) error {
	wait := c.minInterval - time.Since(c.lastCall)
	if c.lastCall.IsZero() || wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
