package chatenrich

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/internal/observer"
	"github.com/hazyhaar/chatenrich/processor"
	"github.com/hazyhaar/chatenrich/settings"
)

// Session is one attached chat page. Its vendor adapter is fixed at
// attach time.
type Session struct {
	ID       string
	URL      string
	Vendor   string
	Attached time.Time

	surface  dom.Surface
	settings settings.Source
	proc     *processor.Processor
	obs      *observer.Observer
	input    *observer.InputWatcher
	logger   *slog.Logger
}

// SessionInfo is the JSON view of a session.
type SessionInfo struct {
	ID        string    `json:"id"`
	URL       string    `json:"url"`
	Vendor    string    `json:"vendor"`
	Attached  time.Time `json:"attached"`
	Processed int       `json:"processed"`
	Panels    int       `json:"panels"`
	Current   string    `json:"current,omitempty"`
}

// Info summarises the session.
func (s *Session) Info() SessionInfo {
	info := SessionInfo{
		ID:        s.ID,
		URL:       s.URL,
		Vendor:    s.Vendor,
		Attached:  s.Attached,
		Processed: s.proc.Processed().Len(),
		Panels:    len(s.proc.Panels()),
	}
	if cur, ok := s.proc.Current(); ok {
		info.Current = cur.ID
	}
	return info
}

// Run processes the responses already on the page, then follows the
// page's signals and keeps the composer listener armed until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	if s.settings.Get().DemoMode {
		if err := s.surface.SetDemoBadge(ctx, true); err != nil {
			s.logger.Warn("chatenrich: demo badge", "error", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	s.obs.Trigger(gctx)
	g.Go(func() error { return s.obs.Run(gctx) })
	g.Go(func() error { return s.input.Run(gctx) })

	err := g.Wait()
	s.proc.Wait()
	s.logger.Info("chatenrich: session stopped")
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Panels lists the session's panels in creation order.
func (s *Session) Panels() []processor.PanelRecord { return s.proc.Panels() }

// Current returns the most recently populated panel.
func (s *Session) Current() (processor.PanelRecord, bool) { return s.proc.Current() }

// Retry re-requests the content of one panel.
func (s *Session) Retry(ctx context.Context, panelID string) error {
	return s.proc.Retry(ctx, panelID)
}

// Dismiss removes one panel from the page.
func (s *Session) Dismiss(ctx context.Context, panelID string) error {
	return s.proc.Dismiss(ctx, panelID)
}

// RetryCurrent retries the most recently populated panel.
func (s *Session) RetryCurrent(ctx context.Context) error { return s.proc.RetryCurrent(ctx) }

// DismissCurrent dismisses the most recently populated panel.
func (s *Session) DismissCurrent(ctx context.Context) error { return s.proc.DismissCurrent(ctx) }

// Scan runs one processing pass over the page immediately.
func (s *Session) Scan(ctx context.Context) (int, error) { return s.proc.ProcessAll(ctx) }
