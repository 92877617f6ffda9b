package chatenrich

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/event"
	"github.com/hazyhaar/chatenrich/internal/mockapi"
	"github.com/hazyhaar/chatenrich/processor"
	"github.com/hazyhaar/chatenrich/settings"
)

const chatURL = "https://claude.ai/chat/7"

func noSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

func prose(n int) string {
	const sentence = "Owners say the battery lasts a full day and the hinge feels solid. "
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(sentence)
	}
	return strings.TrimSpace(sb.String())
}

func claudePage(query, response string) string {
	return `<html><head><title>Claude</title></head><body><div class="conversation">` +
		`<div data-testid="user-message">` + query + `</div>` +
		`<div data-is-streaming="false"><div class="font-claude-message">` + response + `</div></div>` +
		`</div></body></html>`
}

type events struct {
	mu  sync.Mutex
	all []event.Event
}

func (e *events) send(_ context.Context, ev event.Event) error {
	e.mu.Lock()
	e.all = append(e.all, ev)
	e.mu.Unlock()
	return nil
}

func (e *events) states() []event.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]event.State, len(e.all))
	for i, ev := range e.all {
		out[i] = ev.State
	}
	return out
}

type harness struct {
	agent  *Agent
	store  *settings.Store
	mock   *mockapi.Server
	api    *httptest.Server
	events *events
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mock := mockapi.New()
	backend := httptest.NewServer(mock.Handler())
	t.Cleanup(backend.Close)

	db, err := settings.OpenDB(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	store, err := settings.New(context.Background(), db)
	require.NoError(t, err)

	cfg := DefaultConfig()
	cfg.Enrichment.BaseURL = backend.URL

	rec := &events{}
	a, err := New(context.Background(), cfg,
		WithSettingsStore(store),
		WithSleep(noSleep),
		WithSinks(NewCallbackSink(rec.send)))
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	api := httptest.NewServer(a.Handler())
	t.Cleanup(api.Close)
	return &harness{agent: a, store: store, mock: mock, api: api, events: rec}
}

// run attaches markup as a session and runs it until the test ends.
func (h *harness) run(t *testing.T, id, markup string) (*Session, *dom.MemorySurface) {
	t.Helper()
	surface, err := dom.NewMemorySurface(markup, chatURL)
	require.NoError(t, err)
	s, err := h.agent.Attach(id, surface, chatURL)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		assert.NoError(t, <-done)
	})
	return s, surface
}

func (h *harness) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, h.api.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, buf.Bytes()
}

func populated(s *Session) func() bool {
	return func() bool {
		cur, ok := s.Current()
		return ok && cur.State == processor.PanelPopulated
	}
}

func TestAttach_NoAdapter(t *testing.T) {
	h := newHarness(t)
	surface, err := dom.NewMemorySurface(claudePage("Which laptop is best?", prose(300)), "https://example.com/chat")
	require.NoError(t, err)

	_, err = h.agent.Attach("s1", surface, "https://example.com/chat")
	require.ErrorIs(t, err, ErrNoAdapter)
	assert.Empty(t, h.agent.Sessions())
	assert.NotContains(t, surface.HTML(), dom.PanelClass)
}

func TestSession_PopulatesPanel(t *testing.T) {
	h := newHarness(t)
	s, surface := h.run(t, "s1", claudePage("Which laptop is best for students?", prose(300)))

	require.Eventually(t, populated(s), 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, "claude", s.Vendor)
	assert.Contains(t, surface.HTML(), "Here is what buyers report about")
	assert.Contains(t, surface.HTML(), "Aggregated owner feedback across retailers.")
	assert.EqualValues(t, 1, h.mock.Calls())

	require.Eventually(t, func() bool { return len(h.events.states()) == 1 }, 2*time.Second, 10*time.Millisecond)
	h.events.mu.Lock()
	ev := h.events.all[0]
	h.events.mu.Unlock()
	assert.Equal(t, event.StatePopulated, ev.State)
	assert.Equal(t, "s1", ev.SessionID)
	assert.Equal(t, "Which laptop is best for students?", ev.Query)

	info := s.Info()
	assert.Equal(t, 1, info.Panels)
	assert.Equal(t, 1, info.Processed)
	assert.NotEmpty(t, info.Current)
}

func TestSettings_DisableClearsCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.True(t, h.agent.Early(ctx, "which laptop is best for students"))
	require.Eventually(t, func() bool { return h.mock.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.agent.cache.Len())

	off := false
	_, err := h.agent.UpdateSettings(ctx, settings.Patch{ExtensionEnabled: &off})
	require.NoError(t, err)
	assert.Equal(t, 0, h.agent.cache.Len())

	_, err = h.agent.Enrich(ctx, "which laptop is best for students")
	assert.ErrorIs(t, err, ErrDisabled)
}

func TestSettings_DemoModeTogglesBadge(t *testing.T) {
	h := newHarness(t)
	_, surface := h.run(t, "s1", claudePage("Tell me a story about dragons", prose(300)))

	on := true
	_, err := h.agent.UpdateSettings(context.Background(), settings.Patch{DemoMode: &on})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return strings.Contains(surface.HTML(), dom.DemoBadgeID)
	}, 2*time.Second, 10*time.Millisecond)

	off := false
	_, err = h.agent.UpdateSettings(context.Background(), settings.Patch{DemoMode: &off})
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return !strings.Contains(surface.HTML(), dom.DemoBadgeID)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestEnrich_DemoCatalogSkipsNetwork(t *testing.T) {
	h := newHarness(t)
	on := true
	_, err := h.agent.UpdateSettings(context.Background(), settings.Patch{DemoMode: &on})
	require.NoError(t, err)

	res, err := h.agent.Enrich(context.Background(), "Which weight loss drug is safer: Zepbound or Wegovy?")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.NotEmpty(t, res.Answer)
	assert.EqualValues(t, 0, h.mock.Calls())
}

func TestSessions_Lookup(t *testing.T) {
	h := newHarness(t)
	h.run(t, "a", claudePage("Tell me a story about dragons", prose(300)))
	h.run(t, "b", claudePage("Tell me a story about knights", prose(300)))

	var ids []string
	for _, s := range h.agent.Sessions() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	_, err := h.agent.Session("c")
	assert.ErrorIs(t, err, ErrUnknownSession)

	h.agent.Detach("a")
	require.Len(t, h.agent.Sessions(), 1)
	assert.Equal(t, "b", h.agent.Sessions()[0].ID)
}
