package querycache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/settings"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}

	mu   sync.Mutex
	reqs []enrichment.Request
}

func (f *fakeFetcher) ProcessQuery(ctx context.Context, req enrichment.Request) *enrichment.Result {
	f.calls.Add(1)
	f.mu.Lock()
	f.reqs = append(f.reqs, req)
	f.mu.Unlock()
	if f.gate != nil {
		<-f.gate
	}
	return &enrichment.Result{Answer: "answer for " + req.Query, Success: true}
}

var enabled = settings.Static{ExtensionEnabled: true}

func TestProcessEarly_ConcurrentSameQuery(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	c := New(f, enabled)
	defer c.Drain()

	const n = 16
	entries := make([]*Entry, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			entries[i] = c.ProcessEarly(context.Background(), "best budget laptop")
		}()
	}
	wg.Wait()

	for i, e := range entries {
		if e == nil || e != entries[0] {
			t.Fatalf("entry %d: got %p, want %p", i, e, entries[0])
		}
	}
	if entries[0].Result() != nil {
		t.Error("Result should be nil while in flight")
	}

	close(f.gate)
	res, err := entries[0].Wait(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Answer != "answer for best budget laptop" {
		t.Errorf("Answer: got %q", res.Answer)
	}
	if n := f.calls.Load(); n != 1 {
		t.Errorf("network calls: got %d, want 1", n)
	}
	if c.Len() != 1 {
		t.Errorf("Len: got %d, want 1", c.Len())
	}
}

func TestProcessEarly_Gates(t *testing.T) {
	f := &fakeFetcher{}

	c := New(f, settings.Static{ExtensionEnabled: false})
	if e := c.ProcessEarly(context.Background(), "best budget laptop"); e != nil {
		t.Error("disabled: want nil entry")
	}

	c = New(f, enabled)
	if e := c.ProcessEarly(context.Background(), "write a haiku about autumn"); e != nil {
		t.Error("non-commercial: want nil entry")
	}
	if f.calls.Load() != 0 {
		t.Errorf("calls: got %d, want 0", f.calls.Load())
	}

	// The response-time path skips both gates.
	c = New(f, settings.Static{ExtensionEnabled: false})
	e := c.Fetch(context.Background(), "write a haiku about autumn")
	if e == nil {
		t.Fatal("Fetch: nil entry")
	}
	if _, err := e.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Drain()
}

func TestFetch_ForwardsSettings(t *testing.T) {
	f := &fakeFetcher{}
	c := New(f, settings.Static{ExtensionEnabled: true, TemplateID: "tpl", EnableWebSearch: true})
	e := c.Fetch(context.Background(), "best tv")
	e.Wait(context.Background())
	c.Drain()

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.reqs) != 1 {
		t.Fatalf("requests: got %d", len(f.reqs))
	}
	if got := f.reqs[0]; got.Query != "best tv" || got.TemplateID != "tpl" || !got.EnableWebSearch {
		t.Errorf("request: got %+v", got)
	}
}

func TestEvict_FakeClock(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	now := t0
	c := New(&fakeFetcher{}, enabled, WithClock(func() time.Time { return now }))

	c.Fetch(context.Background(), "old query").Wait(context.Background())
	now = t0.Add(2 * time.Minute)
	c.Fetch(context.Background(), "newer query").Wait(context.Background())
	c.Drain()

	if n := c.Evict(t0.Add(MaxAge)); n != 0 {
		t.Fatalf("at exactly 5m: evicted %d, want 0", n)
	}
	if n := c.Evict(t0.Add(MaxAge + time.Nanosecond)); n != 1 {
		t.Fatalf("just past 5m: evicted %d, want 1", n)
	}
	if c.Lookup("old query") != nil || c.Lookup("newer query") == nil {
		t.Error("wrong entry evicted")
	}
}

func TestEvict_InFlight(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(f, enabled, WithClock(func() time.Time { return t0 }))

	e := c.Fetch(context.Background(), "best blender")
	if n := c.Evict(t0.Add(6 * time.Minute)); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}

	// The evicted entry still settles for whoever holds it.
	close(f.gate)
	if _, err := e.Wait(context.Background()); err != nil {
		t.Fatal(err)
	}
	c.Drain()
}

func TestProcessEarly_DemoMode(t *testing.T) {
	f := &fakeFetcher{}
	c := New(f, settings.Static{ExtensionEnabled: true, DemoMode: true})

	e := c.ProcessEarly(context.Background(), "which weight loss drug is safer: zepbound or wegovy?")
	if e == nil {
		t.Fatal("nil entry")
	}
	res := e.Result()
	if res == nil {
		t.Fatal("demo entry should resolve immediately")
	}
	if !e.Demo || !res.Success || !res.Enriched() {
		t.Errorf("demo entry: demo=%v result=%+v", e.Demo, res)
	}
	if f.calls.Load() != 0 {
		t.Errorf("network calls: got %d, want 0", f.calls.Load())
	}

	// Anything outside the catalog goes to the network.
	e = c.ProcessEarly(context.Background(), "best espresso machine")
	e.Wait(context.Background())
	c.Drain()
	if e.Demo || f.calls.Load() != 1 {
		t.Errorf("non-catalog query: demo=%v calls=%d", e.Demo, f.calls.Load())
	}
}

func TestRefresh(t *testing.T) {
	f := &fakeFetcher{}
	c := New(f, enabled)
	first := c.Fetch(context.Background(), "best drone")
	first.Wait(context.Background())

	second := c.Refresh(context.Background(), "best drone")
	second.Wait(context.Background())
	c.Drain()

	if first == second {
		t.Error("Refresh returned the old entry")
	}
	if f.calls.Load() != 2 {
		t.Errorf("calls: got %d, want 2", f.calls.Load())
	}
	if c.Lookup("best drone") != second {
		t.Error("Lookup should return the refreshed entry")
	}
}

func TestClear(t *testing.T) {
	c := New(&fakeFetcher{}, enabled)
	c.Fetch(context.Background(), "a").Wait(context.Background())
	c.Fetch(context.Background(), "b").Wait(context.Background())
	c.Drain()
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len after Clear: got %d", c.Len())
	}
}

func TestEntry_WaitCancelled(t *testing.T) {
	e := newEntry("q", time.Now())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := e.Wait(ctx); err == nil {
		t.Error("Wait: want error on cancelled context")
	}
}
