// Package imagecache holds the most recently shown animal image.
//
// The cache has a single slot. [Cache.GetOrRefresh] fetches new pixels when
// the requested key differs from the cached one or the cached entry is older
// than the refresh period, and otherwise returns the cached entry untouched.
// The period keeps randomly chosen sprite variants from flickering on every
// render tick while still rotating them if the same word lingers.
package imagecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/MrWong99/brainball/internal/observe"
	"github.com/MrWong99/brainball/pkg/pixel"
)

const (
	// DefaultPeriod is how long an entry is served before it is refreshed.
	DefaultPeriod = time.Second

	// DefaultSize is the edge length of cached grids.
	DefaultSize = 16
)

// Entry is one cached image. Key is never empty when Pixels is non-nil.
type Entry struct {
	Key         string     `json:"key"`
	Pixels      pixel.Grid `json:"pixels"`
	LastRefresh time.Time  `json:"last_refresh"`
}

// FetchFunc produces the pixels for key. A nil grid without error counts as a
// failed fetch.
type FetchFunc func(ctx context.Context, key string) (pixel.Grid, error)

// Cache is a single-slot image cache. It is safe for concurrent use; fetches
// run outside the lock and concurrent fetches of the same key are merged.
type Cache struct {
	period        time.Duration
	width, height int
	now           func() time.Time
	metrics       *observe.Metrics

	group singleflight.Group

	mu    sync.RWMutex
	entry Entry
	valid bool
}

// Option configures a [Cache].
type Option func(*Cache)

// WithPeriod sets the refresh period. Defaults to 1s.
func WithPeriod(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.period = d
		}
	}
}

// WithSize sets the required grid dimensions. Defaults to 16×16.
func WithSize(width, height int) Option {
	return func(c *Cache) {
		if width > 0 && height > 0 {
			c.width, c.height = width, height
		}
	}
}

// WithClock replaces time.Now (for tests).
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithMetrics records lookups into m.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// New returns an empty cache.
func New(opts ...Option) *Cache {
	c := &Cache{
		period: DefaultPeriod,
		width:  DefaultSize,
		height: DefaultSize,
		now:    time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Size returns the grid dimensions every entry has.
func (c *Cache) Size() (width, height int) { return c.width, c.height }

// Period returns the refresh period.
func (c *Cache) Period() time.Duration { return c.period }

// Current returns the cached entry, if any.
func (c *Cache) Current() (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.entry, c.valid
}

// GetOrRefresh returns the entry for key, calling fetch only when key differs
// from the cached key or the cached entry has expired. When fetch fails the
// cache is left unchanged and the previous entry, whatever its key, is
// returned. ok is false only when nothing has ever been cached.
func (c *Cache) GetOrRefresh(ctx context.Context, key string, fetch FetchFunc) (Entry, bool) {
	if key == "" {
		return c.Current()
	}

	c.mu.RLock()
	cur, valid := c.entry, c.valid
	c.mu.RUnlock()
	if valid && cur.Key == key && c.now().Sub(cur.LastRefresh) <= c.period {
		c.record(ctx, "hit")
		return cur, true
	}

	v, err, _ := c.group.Do(key, func() (any, error) {
		fctx, span := observe.StartImageFetchSpan(ctx, key)
		grid, err := fetch(fctx, key)
		span.End()
		if err != nil {
			return nil, err
		}
		if grid == nil {
			return nil, fmt.Errorf("imagecache: fetch %q returned no pixels", key)
		}
		if err := grid.Validate(c.width, c.height); err != nil {
			return nil, fmt.Errorf("imagecache: fetch %q: %w", key, err)
		}
		e := Entry{Key: key, Pixels: grid, LastRefresh: c.now()}
		c.mu.Lock()
		c.entry, c.valid = e, true
		c.mu.Unlock()
		return e, nil
	})
	if err != nil {
		c.record(ctx, "miss")
		observe.Logger(ctx).Debug("image fetch failed, keeping previous entry", "key", key, "err", err)
		return c.Current()
	}
	c.record(ctx, "refresh")
	return v.(Entry), true
}

func (c *Cache) record(ctx context.Context, result string) {
	if c.metrics != nil {
		c.metrics.RecordImageLookup(ctx, result)
	}
}

// LogValue implements slog.LogValuer.
func (e Entry) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("key", e.Key),
		slog.Time("last_refresh", e.LastRefresh),
	)
}
