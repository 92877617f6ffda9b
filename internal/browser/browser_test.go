package browser

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
)

func TestResourceName(t *testing.T) {
	cases := map[proto.NetworkResourceType]string{
		proto.NetworkResourceTypeImage:      "images",
		proto.NetworkResourceTypeFont:       "fonts",
		proto.NetworkResourceTypeMedia:      "media",
		proto.NetworkResourceTypeStylesheet: "stylesheets",
		proto.NetworkResourceTypeXHR:        "xhr",
	}
	for in, want := range cases {
		if got := resourceName(in); got != want {
			t.Errorf("resourceName(%s): got %q, want %q", in, got, want)
		}
	}
}

func TestBlockSet(t *testing.T) {
	s := blockSet([]string{"Images", " fonts "})
	if !s["images"] || !s["fonts"] || s["media"] {
		t.Errorf("blockSet: got %v", s)
	}
}

func TestConfigDefaults(t *testing.T) {
	m := NewManager(Config{})
	if m.cfg.Mode != Headless {
		t.Errorf("Mode: got %q", m.cfg.Mode)
	}
	if m.cfg.MemoryLimit != 1<<30 || m.cfg.RecycleInterval != 4*time.Hour || m.cfg.CheckInterval != 30*time.Second {
		t.Errorf("limits: got %+v", m.cfg)
	}
	if m.Browser() != nil {
		t.Error("Browser: want nil before Start")
	}
}

func TestClosedManager(t *testing.T) {
	m := NewManager(Config{})
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := m.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start: got %v, want ErrClosed", err)
	}
	if err := m.Recycle(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Recycle: got %v, want ErrClosed", err)
	}
	if _, err := m.OpenTab(context.Background(), "https://claude.ai"); err == nil {
		t.Error("OpenTab: want error without a browser")
	}
}
