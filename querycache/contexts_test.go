package querycache

import (
	"context"
	"strconv"
	"testing"
	"time"
)

func TestContextKey(t *testing.T) {
	a := ContextKey("Best  Laptop", 420, "response-1")
	if b := ContextKey("best laptop", 420, "response-1"); a != b {
		t.Error("key should not depend on case or spacing")
	}
	if b := ContextKey("best laptop", 421, "response-1"); a == b {
		t.Error("key should depend on response length")
	}
	if b := ContextKey("best laptop", 420, "response-2"); a == b {
		t.Error("key should depend on the element")
	}
	if len(a) != 64 {
		t.Errorf("key length: got %d, want 64 hex chars", len(a))
	}
}

func TestContextSet(t *testing.T) {
	s := NewContextSet(0)
	if !s.Add("k") {
		t.Fatal("first Add should report new")
	}
	if s.Add("k") {
		t.Fatal("second Add should report seen")
	}
	if !s.Has("k") {
		t.Fatal("Has: got false")
	}

	for i := range MaxContexts - 1 {
		s.Add(strconv.Itoa(i))
	}
	if s.ResetIfOver() {
		t.Fatalf("reset at %d keys", s.Len())
	}
	s.Add("one more")
	if !s.ResetIfOver() {
		t.Fatalf("no reset at %d keys", s.Len())
	}
	if s.Len() != 0 {
		t.Errorf("Len after reset: got %d", s.Len())
	}
}

func TestSweeper(t *testing.T) {
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c := New(&fakeFetcher{}, enabled, WithClock(func() time.Time { return t0 }))
	c.Fetch(context.Background(), "best camera").Wait(context.Background())
	c.Drain()

	contexts := NewContextSet(2)
	for _, k := range []string{"a", "b", "c"} {
		contexts.Add(k)
	}

	s := NewSweeper(c, contexts, time.Minute, nil)
	evicted, reset := s.Sweep(t0.Add(time.Minute))
	if evicted != 0 || !reset {
		t.Errorf("first sweep: evicted=%d reset=%v", evicted, reset)
	}
	evicted, reset = s.Sweep(t0.Add(10 * time.Minute))
	if evicted != 1 || reset {
		t.Errorf("second sweep: evicted=%d reset=%v", evicted, reset)
	}
}

func TestSweeper_RunStops(t *testing.T) {
	c := New(&fakeFetcher{}, enabled)
	s := NewSweeper(c, nil, 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop")
	}
}
