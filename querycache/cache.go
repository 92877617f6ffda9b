// Package querycache makes sure there is at most one enrichment request per
// distinct query string. The early path (user submitted a query) and the
// late path (the response finished rendering) share the same Entry, so the
// request started at submit time is the one the panel ends up showing.
package querycache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/chatenrich/demo"
	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/match"
	"github.com/hazyhaar/chatenrich/settings"
)

// MaxAge is how long an entry is kept, settled or not.
const MaxAge = 5 * time.Minute

// Fetcher performs the enrichment call. *enrichment.Client satisfies it.
type Fetcher interface {
	ProcessQuery(ctx context.Context, req enrichment.Request) *enrichment.Result
}

// Entry is one query's request. Result is filled exactly once, after which
// Done is closed.
type Entry struct {
	Query   string
	Created time.Time
	Demo    bool

	done   chan struct{}
	result *enrichment.Result
}

func newEntry(query string, now time.Time) *Entry {
	return &Entry{Query: query, Created: now, done: make(chan struct{})}
}

func (e *Entry) resolve(r *enrichment.Result) {
	e.result = r
	close(e.done)
}

// Done is closed once the result is available.
func (e *Entry) Done() <-chan struct{} { return e.done }

// Result returns the result, or nil while the request is in flight.
func (e *Entry) Result() *enrichment.Result {
	select {
	case <-e.done:
		return e.result
	default:
		return nil
	}
}

// Wait blocks until the result is available or ctx is done.
func (e *Entry) Wait(ctx context.Context) (*enrichment.Result, error) {
	select {
	case <-e.done:
		return e.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Cache maps raw query strings to entries.
type Cache struct {
	fetcher  Fetcher
	settings settings.Source
	catalog  *demo.Catalog
	now      func() time.Time
	maxAge   time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	entries map[string]*Entry

	inflight sync.WaitGroup
}

// Option configures a Cache.
type Option func(*Cache)

// WithCatalog sets the demo catalog. Default: demo.Default().
func WithCatalog(c *demo.Catalog) Option {
	return func(q *Cache) { q.catalog = c }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(q *Cache) { q.now = now }
}

// WithMaxAge overrides MaxAge.
func WithMaxAge(d time.Duration) Option {
	return func(q *Cache) { q.maxAge = d }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(q *Cache) { q.logger = l }
}

// New creates an empty cache.
func New(f Fetcher, s settings.Source, opts ...Option) *Cache {
	c := &Cache{
		fetcher:  f,
		settings: s,
		catalog:  demo.Default(),
		now:      time.Now,
		maxAge:   MaxAge,
		logger:   slog.Default(),
		entries:  make(map[string]*Entry),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ProcessEarly starts (or joins) the request for a query the user just
// submitted. It returns nil when enrichment is disabled or the query does
// not look commercial.
func (c *Cache) ProcessEarly(ctx context.Context, query string) *Entry {
	st := c.settings.Get()
	if !st.ExtensionEnabled {
		return nil
	}
	if !match.LooksCommercial(query) {
		c.logger.Debug("querycache: skipping non-commercial query", "query", query)
		return nil
	}
	return c.get(ctx, query, st)
}

// Fetch is the response-time path: the same entry semantics without the
// enabled and commercial gates, which the caller has already applied.
func (c *Cache) Fetch(ctx context.Context, query string) *Entry {
	return c.get(ctx, query, c.settings.Get())
}

// Lookup returns the entry for query, or nil.
func (c *Cache) Lookup(query string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries[query]
}

// Refresh drops any entry for query and issues a new request.
func (c *Cache) Refresh(ctx context.Context, query string) *Entry {
	c.mu.Lock()
	delete(c.entries, query)
	c.mu.Unlock()
	return c.Fetch(ctx, query)
}

func (c *Cache) get(ctx context.Context, query string, st settings.Settings) *Entry {
	var hit demo.Entry
	var isDemo bool
	if st.DemoMode {
		hit, isDemo = c.catalog.Lookup(query)
	}

	c.mu.Lock()
	if e, ok := c.entries[query]; ok {
		c.mu.Unlock()
		return e
	}
	e := newEntry(query, c.now())
	e.Demo = isDemo
	c.entries[query] = e
	c.mu.Unlock()

	if isDemo {
		c.logger.Info("querycache: demo answer", "query", query, "demo_id", hit.ID)
		r := hit.Response
		e.resolve(&r)
		return e
	}

	req := enrichment.Request{Query: query, TemplateID: st.TemplateID, EnableWebSearch: st.EnableWebSearch}
	fctx := context.WithoutCancel(ctx)
	c.inflight.Add(1)
	go func() {
		defer c.inflight.Done()
		e.resolve(c.fetcher.ProcessQuery(fctx, req))
	}()
	c.logger.Debug("querycache: request issued", "query", query)
	return e
}

// Evict drops entries older than the max age at now, settled or not, and
// returns how many were dropped.
func (c *Cache) Evict(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for q, e := range c.entries {
		if now.Sub(e.Created) > c.maxAge {
			delete(c.entries, q)
			n++
		}
	}
	return n
}

// Clear drops every entry. In-flight requests still settle their entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	n := len(c.entries)
	clear(c.entries)
	c.mu.Unlock()
	if n > 0 {
		c.logger.Info("querycache: cleared", "entries", n)
	}
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Drain waits for every in-flight request to settle.
func (c *Cache) Drain() {
	c.inflight.Wait()
}
