package settings

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Row keys.
const (
	KeyExtensionEnabled = "extension_enabled"
	KeyTemplateID       = "template_id"
	KeyEnableWebSearch  = "enable_web_search"
	KeyDemoMode         = "demo_mode"
)

var _ Source = (*Store)(nil)

// Store is the SQLite-backed settings snapshot. Get never blocks.
type Store struct {
	db     *sql.DB
	ownsDB bool
	logger *slog.Logger

	interval time.Duration
	debounce time.Duration

	cur atomic.Pointer[Settings]

	// swapMu orders snapshot swaps and their notifications.
	swapMu sync.Mutex
	// writeMu serialises read-modify-write updates.
	writeMu sync.Mutex

	subMu  sync.Mutex
	subs   map[int]func(old, new Settings)
	nextID int
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPollInterval sets how often Watch checks for external writes.
// Default: 500ms.
func WithPollInterval(d time.Duration) Option {
	return func(s *Store) { s.interval = d }
}

// WithDebounce sets the quiet period Watch waits after a change before
// reloading. Default: 100ms.
func WithDebounce(d time.Duration) Option {
	return func(s *Store) { s.debounce = d }
}

// Open opens (or creates) the settings database at path.
func Open(ctx context.Context, path string, opts ...Option) (*Store, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	s, err := New(ctx, db, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// New wraps an open database, seeding defaults for missing keys.
func New(ctx context.Context, db *sql.DB, opts ...Option) (*Store, error) {
	s := &Store{
		db:       db,
		logger:   slog.Default(),
		interval: 500 * time.Millisecond,
		debounce: 100 * time.Millisecond,
		subs:     make(map[int]func(old, new Settings)),
	}
	for _, o := range opts {
		o(s)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("settings: schema: %w", err)
	}
	if err := s.seed(ctx); err != nil {
		return nil, err
	}
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database if the store opened it.
func (s *Store) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// Get returns the current snapshot.
func (s *Store) Get() Settings {
	if p := s.cur.Load(); p != nil {
		return *p
	}
	return Defaults()
}

// Load re-reads the database and notifies subscribers if anything changed.
func (s *Store) Load(ctx context.Context) (Settings, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key, value FROM settings`)
	if err != nil {
		return Settings{}, fmt.Errorf("settings: load: %w", err)
	}
	defer rows.Close()

	next := Defaults()
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return Settings{}, fmt.Errorf("settings: load scan: %w", err)
		}
		if err := decodeInto(&next, key, value); err != nil {
			s.logger.Warn("settings: ignoring malformed value", "key", key, "error", err)
		}
	}
	if err := rows.Err(); err != nil {
		return Settings{}, fmt.Errorf("settings: load rows: %w", err)
	}
	rows.Close()

	s.swap(next)
	return next, nil
}

// Put replaces every setting.
func (s *Store) Put(ctx context.Context, v Settings) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.put(ctx, v)
}

// Update applies p to the current settings and stores the result.
func (s *Store) Update(ctx context.Context, p Patch) (Settings, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	next := p.Apply(s.Get())
	if err := s.put(ctx, next); err != nil {
		return Settings{}, err
	}
	return next, nil
}

func (s *Store) put(ctx context.Context, v Settings) error {
	vals, err := encode(v)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	err = runTx(ctx, s.db, func(tx *sql.Tx) error {
		for k, val := range vals {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				k, val, now)
			if err != nil {
				return fmt.Errorf("settings: put %s: %w", k, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.swap(v)
	return nil
}

// Subscribe registers fn to run after every change, with the previous and
// the new settings. Callbacks run synchronously and in order; they must not
// write to the store. The returned func unsubscribes.
func (s *Store) Subscribe(fn func(old, new Settings)) func() {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) swap(next Settings) {
	s.swapMu.Lock()
	defer s.swapMu.Unlock()

	old := s.cur.Swap(&next)
	if old == nil || *old == next {
		return
	}
	s.logger.Info("settings: changed",
		"extension_enabled", next.ExtensionEnabled,
		"demo_mode", next.DemoMode,
		"template_id", next.TemplateID,
		"enable_web_search", next.EnableWebSearch)

	s.subMu.Lock()
	fns := make([]func(old, new Settings), 0, len(s.subs))
	for i := 0; i < s.nextID; i++ {
		if fn, ok := s.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(*old, next)
	}
}

func (s *Store) seed(ctx context.Context) error {
	vals, err := encode(Defaults())
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	return runTx(ctx, s.db, func(tx *sql.Tx) error {
		for k, v := range vals {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`, k, v, now); err != nil {
				return fmt.Errorf("settings: seed %s: %w", k, err)
			}
		}
		return nil
	})
}

func encode(v Settings) (map[string]string, error) {
	raw := map[string]any{
		KeyExtensionEnabled: v.ExtensionEnabled,
		KeyTemplateID:       v.TemplateID,
		KeyEnableWebSearch:  v.EnableWebSearch,
		KeyDemoMode:         v.DemoMode,
	}
	out := make(map[string]string, len(raw))
	for k, x := range raw {
		b, err := json.Marshal(x)
		if err != nil {
			return nil, fmt.Errorf("settings: encode %s: %w", k, err)
		}
		out[k] = string(b)
	}
	return out, nil
}

func decodeInto(s *Settings, key, value string) error {
	switch key {
	case KeyExtensionEnabled:
		return json.Unmarshal([]byte(value), &s.ExtensionEnabled)
	case KeyTemplateID:
		return json.Unmarshal([]byte(value), &s.TemplateID)
	case KeyEnableWebSearch:
		return json.Unmarshal([]byte(value), &s.EnableWebSearch)
	case KeyDemoMode:
		return json.Unmarshal([]byte(value), &s.DemoMode)
	}
	return nil
}
