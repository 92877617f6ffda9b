package enrichment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

type recordedSleep struct {
	delays []time.Duration
}

func (r *recordedSleep) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func TestProcessQuery_Success(t *testing.T) {
	var got Request
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/answer" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"answer":"Wegovy has a longer track record.","sources":[{"title":"FDA","url":"https://fda.gov"}],"metadata":{"enriched":true},"success":true}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	res := c.ProcessQuery(context.Background(), Request{Query: "zepbound or wegovy", TemplateID: "t1", EnableWebSearch: true})

	if !res.Success {
		t.Fatalf("Success: got false, error %q", res.Error)
	}
	if res.Answer != "Wegovy has a longer track record." {
		t.Errorf("Answer: got %q", res.Answer)
	}
	if len(res.Sources) != 1 || res.Sources[0].Title != "FDA" {
		t.Errorf("Sources: got %+v", res.Sources)
	}
	if !res.Enriched() {
		t.Error("Enriched: got false")
	}
	if res.Error != "" || res.ErrorType != "" {
		t.Errorf("error fields should be empty: %q %q", res.Error, res.ErrorType)
	}
	if got.Query != "zepbound or wegovy" || got.TemplateID != "t1" || !got.EnableWebSearch {
		t.Errorf("request body: got %+v", got)
	}
}

func TestProcessQuery_RetriesNetworkThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			// Drop the connection without a response.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Fatal("hijack unsupported")
			}
			conn, _, _ := hj.Hijack()
			conn.Close()
			return
		}
		w.Write([]byte(`{"answer":"ok","success":true}`))
	}))
	defer srv.Close()

	rec := &recordedSleep{}
	c := New(srv.URL, WithBackoff(10*time.Millisecond), WithSleep(rec.sleep))
	res := c.ProcessQuery(context.Background(), Request{Query: "best laptop"})

	if !res.Success {
		t.Fatalf("Success: got false, error %q (%s)", res.Error, res.ErrorType)
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}
	if len(rec.delays) != 2 {
		t.Fatalf("delays: got %v, want 2 entries", rec.delays)
	}
	if rec.delays[0] != 10*time.Millisecond || rec.delays[1] != 20*time.Millisecond {
		t.Errorf("delays: got %v, want [10ms 20ms]", rec.delays)
	}
}

func TestProcessQuery_Timeout(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	rec := &recordedSleep{}
	c := New(srv.URL, WithTimeout(50*time.Millisecond), WithSleep(rec.sleep))
	res := c.ProcessQuery(context.Background(), Request{Query: "best tv"})

	if res.Success {
		t.Fatal("Success: got true")
	}
	if res.ErrorType != KindTimeout {
		t.Errorf("ErrorType: got %q, want timeout", res.ErrorType)
	}
	if !res.Retryable {
		t.Error("Retryable: got false")
	}
	if n := calls.Load(); n != 3 {
		t.Errorf("calls: got %d, want 3", n)
	}
}

func TestProcessQuery_StatusClassification(t *testing.T) {
	cases := []struct {
		status    int
		kind      ErrorKind
		retryable bool
	}{
		{http.StatusInternalServerError, KindServer, true},
		{http.StatusBadGateway, KindServer, true},
		{http.StatusNotFound, KindHTTPStatus, false},
		{http.StatusBadRequest, KindHTTPStatus, false},
	}
	for _, tc := range cases {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			w.WriteHeader(tc.status)
		}))

		c := New(srv.URL, WithSleep((&recordedSleep{}).sleep))
		res := c.ProcessQuery(context.Background(), Request{Query: "q"})
		srv.Close()

		if res.Success {
			t.Errorf("%d: Success true", tc.status)
		}
		if res.ErrorType != tc.kind {
			t.Errorf("%d: kind got %q, want %q", tc.status, res.ErrorType, tc.kind)
		}
		if res.Retryable != tc.retryable {
			t.Errorf("%d: retryable got %v, want %v", tc.status, res.Retryable, tc.retryable)
		}
		if n := calls.Load(); n != 1 {
			t.Errorf("%d: calls got %d, want 1 (no automatic retry)", tc.status, n)
		}
	}
}

func TestProcessQuery_NotFoundMessage(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	res := New(srv.URL).ProcessQuery(context.Background(), Request{Query: "q"})
	if res.Error != "The enrichment endpoint was not found (404)." {
		t.Errorf("Error: got %q", res.Error)
	}
}

func TestProcessQuery_ServiceReportedFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success":false,"error":"x"}`))
	}))
	defer srv.Close()

	res := New(srv.URL).ProcessQuery(context.Background(), Request{Query: "q"})
	if res.Success || res.Error != "x" {
		t.Fatalf("got %+v", res)
	}
	if !res.Retryable {
		t.Error("Retryable: got false")
	}
}

func TestProcessQuery_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{not json`))
	}))
	defer srv.Close()

	res := New(srv.URL).ProcessQuery(context.Background(), Request{Query: "q"})
	if res.ErrorType != KindGeneric {
		t.Errorf("ErrorType: got %q, want generic", res.ErrorType)
	}
	if res.Retryable {
		t.Error("Retryable: got true")
	}
}

func TestProcessQuery_CancelledDuringBackoff(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, _, _ := w.(http.Hijacker).Hijack()
		conn.Close()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c := New(srv.URL, WithSleep(func(context.Context, time.Duration) error {
		cancel()
		return context.Canceled
	}))
	res := c.ProcessQuery(ctx, Request{Query: "q"})
	if res.Success || res.ErrorType != KindGeneric {
		t.Errorf("got %+v", res)
	}
}

func TestHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"ok","databaseConnected":true,"timestamp":"2026-01-01T00:00:00Z"}`))
	}))
	defer srv.Close()

	h, err := New(srv.URL + "/").Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || !h.DatabaseConnected {
		t.Errorf("Health: got %+v", h)
	}
}

func TestSleep_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := Sleep(ctx, time.Hour); err == nil {
		t.Error("Sleep: want error on cancelled context")
	}
}
