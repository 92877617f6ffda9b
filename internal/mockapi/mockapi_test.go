package mockapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/chatenrich/enrichment"
)

func TestHealth(t *testing.T) {
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	srv := httptest.NewServer(New(WithClock(func() time.Time { return fixed })).Handler())
	defer srv.Close()

	h, err := enrichment.New(srv.URL, enrichment.WithHTTPClient(srv.Client())).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "ok" || !h.DatabaseConnected || h.Timestamp != "2026-03-01T12:00:00Z" {
		t.Errorf("Health: got %+v", h)
	}
}

func TestAnswer_Catalog(t *testing.T) {
	m := New()
	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	c := enrichment.New(srv.URL, enrichment.WithHTTPClient(srv.Client()))
	res := c.ProcessQuery(context.Background(), enrichment.Request{Query: "Which weight loss drug is safer: Zepbound or Wegovy?"})
	if !res.Success || res.Answer == "" {
		t.Fatalf("got %+v", res)
	}
	if v, _ := res.Metadata["demo"].(bool); !v {
		t.Errorf("Metadata: got %v, want catalog response", res.Metadata)
	}
	if m.Calls() != 1 {
		t.Errorf("Calls: got %d", m.Calls())
	}
}

func TestAnswer_Generic(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	c := enrichment.New(srv.URL, enrichment.WithHTTPClient(srv.Client()))
	res := c.ProcessQuery(context.Background(), enrichment.Request{Query: "best espresso machine", TemplateID: "t9", EnableWebSearch: true})
	if !res.Success {
		t.Fatalf("got %+v", res)
	}
	if !strings.Contains(res.Answer, "best espresso machine") {
		t.Errorf("Answer: got %q", res.Answer)
	}
	if len(res.Sources) != 2 || res.Sources[0].Description == "" {
		t.Errorf("Sources: got %+v", res.Sources)
	}
	if !res.Enriched() || res.Metadata["templateId"] != "t9" {
		t.Errorf("Metadata: got %v", res.Metadata)
	}
}

func TestAnswer_BadRequest(t *testing.T) {
	srv := httptest.NewServer(New().Handler())
	defer srv.Close()

	for _, body := range []string{`{`, `{"query":"   "}`} {
		resp, err := srv.Client().Post(srv.URL+"/answer", "application/json", strings.NewReader(body))
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("%s: status %d", body, resp.StatusCode)
		}
	}
}
