// Package browser owns the Chrome process the agent drives: launch or
// remote attach, a persistent profile so chat logins survive restarts,
// and recycling on a lifetime or JS heap threshold.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how a local Chrome is shown.
type Mode string

const (
	Headless Mode = "headless"
	Headful  Mode = "headful" // under Xvfb
)

// Config configures the manager.
type Config struct {
	// RemoteURL attaches to an existing Chrome over its DevTools
	// WebSocket. Empty launches a local one.
	RemoteURL string
	// UserDataDir is the Chrome profile directory. Empty uses a
	// throwaway profile, which means logging into every chat again.
	UserDataDir string
	Mode        Mode

	// MemoryLimit recycles Chrome once the JS heap exceeds it. Default: 1GB.
	MemoryLimit int64
	// RecycleInterval bounds the life of one Chrome process. Default: 4h.
	RecycleInterval time.Duration
	// CheckInterval is how often the limits are checked. Default: 30s.
	CheckInterval time.Duration

	// ResourceBlocking names resource types to refuse (images, fonts,
	// media, stylesheets).
	ResourceBlocking []string
	XvfbDisplay      string

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Mode == "" {
		c.Mode = Headless
	}
	if c.MemoryLimit <= 0 {
		c.MemoryLimit = 1 << 30
	}
	if c.RecycleInterval <= 0 {
		c.RecycleInterval = 4 * time.Hour
	}
	if c.CheckInterval <= 0 {
		c.CheckInterval = 30 * time.Second
	}
	if c.XvfbDisplay == "" {
		c.XvfbDisplay = ":99"
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Manager owns one Chrome process at a time.
type Manager struct {
	cfg     Config
	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	xvfb    *exec.Cmd
	startAt time.Time
	closed  bool

	hooksMu sync.Mutex
	hooks   []func(ctx context.Context, b *rod.Browser)
}

// NewManager creates a manager. Call Start to get a browser.
func NewManager(cfg Config) *Manager {
	cfg.defaults()
	return &Manager{cfg: cfg}
}

// OnRecycle registers fn to run with the new browser after every recycle,
// so sessions can reopen their tabs.
func (m *Manager) OnRecycle(fn func(ctx context.Context, b *rod.Browser)) {
	m.hooksMu.Lock()
	m.hooks = append(m.hooks, fn)
	m.hooksMu.Unlock()
}

// Start launches or attaches to Chrome.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	b, err := m.launch(ctx)
	if err != nil {
		return nil, err
	}
	m.browser = b
	m.startAt = time.Now()
	return b, nil
}

// Browser returns the current browser, or nil before Start.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Run checks the recycle limits until ctx is done.
func (m *Manager) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if reason := m.recycleReason(); reason != "" {
				m.cfg.Logger.Info("browser: recycling", "reason", reason)
				if err := m.Recycle(ctx); err != nil {
					if errors.Is(err, ErrClosed) {
						return nil
					}
					m.cfg.Logger.Error("browser: recycle failed", "error", err)
				}
			}
		}
	}
}

func (m *Manager) recycleReason() string {
	m.mu.RLock()
	b, startAt, closed := m.browser, m.startAt, m.closed
	m.mu.RUnlock()
	if closed || b == nil {
		return ""
	}
	if time.Since(startAt) > m.cfg.RecycleInterval {
		return "lifetime"
	}
	used, err := heapUsage(b)
	if err != nil {
		m.cfg.Logger.Debug("browser: heap check failed", "error", err)
		return ""
	}
	if used > m.cfg.MemoryLimit {
		m.cfg.Logger.Info("browser: heap over limit", "used", used, "limit", m.cfg.MemoryLimit)
		return "memory"
	}
	return ""
}

// Recycle restarts Chrome and runs the OnRecycle hooks.
func (m *Manager) Recycle(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	uptime := time.Since(m.startAt)
	m.cleanup()
	b, err := m.launch(ctx)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("browser: relaunch: %w", err)
	}
	m.browser = b
	m.startAt = time.Now()
	m.mu.Unlock()

	m.hooksMu.Lock()
	hooks := append(([]func(context.Context, *rod.Browser))(nil), m.hooks...)
	m.hooksMu.Unlock()
	for _, fn := range hooks {
		fn(ctx, b)
	}
	m.cfg.Logger.Info("browser: recycled", "previous_uptime", uptime)
	return nil
}

// Close shuts Chrome (and Xvfb) down.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.cleanup()
	return nil
}

func (m *Manager) launch(ctx context.Context) (*rod.Browser, error) {
	log := m.cfg.Logger
	wsURL := m.cfg.RemoteURL

	if wsURL == "" {
		if m.cfg.Mode == Headful {
			if err := m.startXvfb(); err != nil {
				return nil, fmt.Errorf("browser: xvfb: %w", err)
			}
		}
		l := launcher.New().Context(ctx).
			Headless(m.cfg.Mode != Headful).
			Set("disable-blink-features", "AutomationControlled")
		if m.cfg.Mode == Headful {
			l = l.Env("DISPLAY=" + m.cfg.XvfbDisplay)
		}
		if m.cfg.UserDataDir != "" {
			l = l.UserDataDir(m.cfg.UserDataDir)
		}
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		m.lnch = l
		log.Info("browser: launched chrome", "mode", m.cfg.Mode, "profile", m.cfg.UserDataDir)
	} else {
		log.Info("browser: attaching to remote chrome", "url", wsURL)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}
	return b, nil
}

func (m *Manager) cleanup() {
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.cfg.Logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	m.stopXvfb()
}

// heapUsage reads the JS heap of the first tab as a proxy for the
// process footprint.
func heapUsage(b *rod.Browser) (int64, error) {
	pages, err := b.Pages()
	if err != nil {
		return 0, fmt.Errorf("browser: list pages: %w", err)
	}
	if len(pages) == 0 {
		return 0, errors.New("browser: no pages for heap check")
	}
	res, err := pages[0].Eval(`() => (performance.memory ? performance.memory.usedJSHeapSize : 0)`)
	if err != nil {
		return 0, err
	}
	return int64(res.Value.Int()), nil
}
