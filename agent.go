// Package chatenrich attaches to AI chat pages, detects assistant answers
// and shows an enrichment panel next to each one.
//
// An Agent owns everything shared between pages: the settings store, the
// enrichment client, the query cache and the event sinks. Each attached
// page is a Session with its own vendor adapter, response processor and
// signal loop.
package chatenrich

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chatenrich/adapter"
	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/internal/browser"
	"github.com/hazyhaar/chatenrich/internal/livepage"
	"github.com/hazyhaar/chatenrich/internal/observer"
	"github.com/hazyhaar/chatenrich/internal/sink"
	"github.com/hazyhaar/chatenrich/processor"
	"github.com/hazyhaar/chatenrich/querycache"
	"github.com/hazyhaar/chatenrich/settings"
)

var (
	// ErrNoAdapter is returned when no vendor adapter handles a page URL.
	ErrNoAdapter = errors.New("chatenrich: no adapter for page")
	// ErrUnknownSession is returned for session ids that are not attached.
	ErrUnknownSession = errors.New("chatenrich: unknown session")
	// ErrDisabled is returned by on-demand enrichment while the extension
	// setting is off.
	ErrDisabled = errors.New("chatenrich: enrichment disabled")
)

// reopenDelay separates attempts to reopen a page whose session failed.
const reopenDelay = 5 * time.Second

// Agent is the top-level orchestrator. Create one per process.
type Agent struct {
	cfg      *Config
	store    *settings.Store
	ownStore bool
	client   *enrichment.Client
	cache    *querycache.Cache
	contexts *querycache.ContextSet
	sweeper  *querycache.Sweeper
	sinkList []sink.Sink
	sinks    *sink.Router
	mgr      *browser.Manager
	sleep    func(ctx context.Context, d time.Duration) error
	logger   *slog.Logger
	unsub    func()

	mu       sync.RWMutex
	sessions map[string]*Session
	order    []string
	restarts map[string]context.CancelFunc // live page runs by session id

	tasks sync.WaitGroup
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithSettingsStore uses an already open store instead of opening
// cfg.Settings.Path. The agent does not close it.
func WithSettingsStore(s *settings.Store) Option {
	return func(a *Agent) { a.store = s }
}

// WithSinks sets the event sinks. Default: none.
func WithSinks(sinks ...Sink) Option {
	return func(a *Agent) { a.sinkList = append(a.sinkList, sinks...) }
}

// WithSleep replaces the context-aware sleep used for processing delays,
// pacing and retry backoff.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(a *Agent) { a.sleep = fn }
}

// New creates an Agent from configuration. A nil cfg means DefaultConfig.
func New(ctx context.Context, cfg *Config, opts ...Option) (*Agent, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	a := &Agent{
		cfg:      cfg,
		logger:   slog.Default(),
		sessions: make(map[string]*Session),
		restarts: make(map[string]context.CancelFunc),
	}
	for _, o := range opts {
		o(a)
	}
	if a.sleep == nil {
		a.sleep = enrichment.Sleep
	}

	if a.store == nil {
		st, err := settings.Open(ctx, cfg.Settings.Path,
			settings.WithLogger(a.logger),
			settings.WithPollInterval(cfg.Settings.PollInterval))
		if err != nil {
			return nil, fmt.Errorf("chatenrich: settings: %w", err)
		}
		a.store = st
		a.ownStore = true
	}

	a.client = enrichment.New(cfg.Enrichment.BaseURL,
		enrichment.WithTimeout(cfg.Enrichment.Timeout),
		enrichment.WithBackoff(cfg.Enrichment.Backoff),
		enrichment.WithMaxRetries(cfg.Enrichment.MaxRetries),
		enrichment.WithSleep(a.sleep),
		enrichment.WithLogger(a.logger))
	a.cache = querycache.New(a.client, a.store,
		querycache.WithMaxAge(cfg.Cache.MaxAge),
		querycache.WithLogger(a.logger))
	a.contexts = querycache.NewContextSet(cfg.Cache.MaxContexts)
	a.sweeper = querycache.NewSweeper(a.cache, a.contexts, cfg.Cache.SweepInterval, a.logger)
	a.sinks = sink.NewRouter(a.logger, a.sinkList...)
	a.unsub = a.store.Subscribe(a.settingsChanged)
	return a, nil
}

// Settings returns the current settings snapshot.
func (a *Agent) Settings() settings.Settings { return a.store.Get() }

// UpdateSettings applies p and returns the stored result.
func (a *Agent) UpdateSettings(ctx context.Context, p settings.Patch) (settings.Settings, error) {
	return a.store.Update(ctx, p)
}

// Health queries the enrichment service.
func (a *Agent) Health(ctx context.Context) (*enrichment.Health, error) {
	return a.client.Health(ctx)
}

// Early starts the enrichment request for a query the user just
// submitted, as the composer listener does. It reports false when the
// query was gated out.
func (a *Agent) Early(ctx context.Context, query string) bool {
	return a.cache.ProcessEarly(context.WithoutCancel(ctx), query) != nil
}

// Enrich resolves one query through the cache and waits for the result.
// Unlike Early it does not apply the commercial-intent gate.
func (a *Agent) Enrich(ctx context.Context, query string) (*enrichment.Result, error) {
	if !a.store.Get().ExtensionEnabled {
		return nil, ErrDisabled
	}
	entry := a.cache.Lookup(query)
	if entry == nil {
		entry = a.cache.Fetch(context.WithoutCancel(ctx), query)
	}
	return entry.Wait(ctx)
}

// Attach starts a session over surface for the chat page at pageURL. It
// returns ErrNoAdapter, and touches nothing, when no vendor handles the
// page. The caller runs the session with Session.Run.
func (a *Agent) Attach(id string, surface dom.Surface, pageURL string) (*Session, error) {
	ad := adapter.ForURL(pageURL)
	if ad == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoAdapter, pageURL)
	}
	logger := a.logger.With("session_id", id, "vendor", ad.Name())

	proc, err := processor.New(processor.Config{
		SessionID:          id,
		Adapter:            ad,
		Surface:            surface,
		Cache:              a.cache,
		Contexts:           a.contexts,
		Settings:           a.store,
		Emitter:            a.sinks,
		Pacing:             a.cfg.Processor.Pacing,
		MinTextLength:      a.cfg.Processor.MinTextLength,
		AllowNonCommercial: a.cfg.Processor.AllowNonCommercial,
		Sleep:              a.sleep,
		Logger:             logger,
	})
	if err != nil {
		return nil, fmt.Errorf("chatenrich: attach %s: %w", id, err)
	}
	input := observer.NewInputWatcher(surface, ad, a.cfg.Input.PollInterval, logger)
	obs := observer.New(observer.Config{
		Surface:        surface,
		Processor:      proc,
		Early:          a.cache,
		Input:          input,
		Debounce:       ad.TimingConfig().DebounceDelay,
		MinQueryLength: a.cfg.Input.MinQueryLength,
		Logger:         logger,
	})

	s := &Session{
		ID:       id,
		URL:      pageURL,
		Vendor:   ad.Name(),
		Attached: time.Now(),
		surface:  surface,
		settings: a.store,
		proc:     proc,
		obs:      obs,
		input:    input,
		logger:   logger,
	}

	a.mu.Lock()
	if _, ok := a.sessions[id]; !ok {
		a.order = append(a.order, id)
	}
	a.sessions[id] = s
	a.mu.Unlock()

	logger.Info("chatenrich: session attached", "url", pageURL)
	return s, nil
}

// Detach forgets a session. It does not stop a running Session.Run.
func (a *Agent) Detach(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.sessions[id]; !ok {
		return
	}
	delete(a.sessions, id)
	for i, x := range a.order {
		if x == id {
			a.order = append(a.order[:i], a.order[i+1:]...)
			break
		}
	}
}

// Session returns an attached session.
func (a *Agent) Session(id string) (*Session, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	s, ok := a.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}
	return s, nil
}

// Sessions returns the attached sessions in attach order.
func (a *Agent) Sessions() []*Session {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*Session, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.sessions[id])
	}
	return out
}

// Run launches the browser for the configured pages and supervises the
// page sessions, the cache sweeper and the settings watcher until ctx is
// done.
func (a *Agent) Run(ctx context.Context) error {
	if len(a.cfg.Pages) > 0 {
		a.mgr = browser.NewManager(browser.Config{
			RemoteURL:        a.cfg.Browser.Remote,
			UserDataDir:      a.cfg.Browser.UserDataDir,
			Mode:             browser.Mode(a.cfg.Browser.Mode),
			MemoryLimit:      a.cfg.Browser.MemoryLimit,
			RecycleInterval:  a.cfg.Browser.RecycleInterval,
			ResourceBlocking: a.cfg.Browser.ResourceBlocking,
			XvfbDisplay:      a.cfg.Browser.XvfbDisplay,
			Logger:           a.logger,
		})
		if _, err := a.mgr.Start(ctx); err != nil {
			return fmt.Errorf("chatenrich: start browser: %w", err)
		}
		a.mgr.OnRecycle(a.reopenPages)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.sweeper.Run(gctx) })
	g.Go(func() error { return a.store.Watch(gctx) })
	if a.mgr != nil {
		g.Go(func() error { return a.mgr.Run(gctx) })
		for _, pc := range a.cfg.Pages {
			g.Go(func() error { return a.runPage(gctx, pc) })
		}
	}

	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// runPage keeps one configured page attached, reopening it after a
// browser recycle or a failed session.
func (a *Agent) runPage(ctx context.Context, pc PageConfig) error {
	if adapter.ForURL(pc.URL) == nil {
		a.logger.Warn("chatenrich: no adapter, page skipped", "page_id", pc.ID, "url", pc.URL)
		return nil
	}
	for {
		runCtx, cancel := context.WithCancel(ctx)
		a.mu.Lock()
		a.restarts[pc.ID] = cancel
		a.mu.Unlock()

		err := a.openPage(runCtx, pc)
		cancel()
		if ctx.Err() != nil {
			return nil
		}
		if err != nil {
			a.logger.Error("chatenrich: page session failed", "page_id", pc.ID, "error", err)
			if err := a.sleep(ctx, reopenDelay); err != nil {
				return nil
			}
		}
		a.logger.Info("chatenrich: reopening page", "page_id", pc.ID)
	}
}

func (a *Agent) openPage(ctx context.Context, pc PageConfig) error {
	tab, err := a.mgr.OpenTab(ctx, pc.URL)
	if err != nil {
		return err
	}
	defer tab.Close()

	page, err := livepage.Attach(ctx, tab, livepage.WithLogger(a.logger.With("page_id", pc.ID)))
	if err != nil {
		return err
	}
	defer page.Close()

	s, err := a.Attach(pc.ID, page, pc.URL)
	if err != nil {
		return err
	}
	return s.Run(ctx)
}

// reopenPages ends every live page run so runPage reopens it in the new
// browser.
func (a *Agent) reopenPages(_ context.Context, _ *rod.Browser) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	for _, cancel := range a.restarts {
		cancel()
	}
}

func (a *Agent) settingsChanged(old, cur settings.Settings) {
	if old.ExtensionEnabled && !cur.ExtensionEnabled {
		a.cache.Clear()
		a.contexts.Clear()
		a.logger.Info("chatenrich: enrichment disabled, cache cleared")
	}
	if old.DemoMode != cur.DemoMode {
		for _, s := range a.Sessions() {
			a.tasks.Add(1)
			go func() {
				defer a.tasks.Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.surface.SetDemoBadge(ctx, cur.DemoMode); err != nil {
					s.logger.Warn("chatenrich: demo badge", "error", err)
				}
			}()
		}
	}
}

// Close releases everything the agent owns. Sessions must have returned
// from Run.
func (a *Agent) Close() error {
	a.unsub()
	a.tasks.Wait()
	a.cache.Drain()
	var firstErr error
	if err := a.sinks.Close(); err != nil {
		firstErr = err
	}
	if a.mgr != nil {
		if err := a.mgr.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if a.ownStore {
		if err := a.store.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
