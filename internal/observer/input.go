package observer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

// InputLocator finds a vendor's composer. adapter.Adapter satisfies it.
type InputLocator interface {
	FindInputField(doc *dom.Document) *goquery.Selection
	FindSubmitButtons(doc *dom.Document) []*goquery.Selection
}

// InputWatcher polls the page until the vendor input field is mounted,
// then asks the surface to report submissions from it and from the
// submit buttons.
type InputWatcher struct {
	surface  dom.Surface
	locator  InputLocator
	interval time.Duration
	logger   *slog.Logger
	rearm    chan struct{}
}

// NewInputWatcher creates a watcher polling every interval (default 1s).
func NewInputWatcher(s dom.Surface, l InputLocator, interval time.Duration, logger *slog.Logger) *InputWatcher {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &InputWatcher{surface: s, locator: l, interval: interval, logger: logger, rearm: make(chan struct{}, 1)}
}

// Rearm makes the watcher look for the input field again, e.g. after the
// page replaced its composer.
func (w *InputWatcher) Rearm() {
	select {
	case w.rearm <- struct{}{}:
	default:
	}
}

// Run polls until the field is armed, then waits for a rearm request.
func (w *InputWatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	armed := false
	for {
		if !armed {
			ok, err := w.Arm(ctx)
			if err != nil {
				w.logger.Debug("observer: input not armed", "error", err)
			}
			armed = ok
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.rearm:
			armed = false
		case <-ticker.C:
		}
	}
}

// Arm looks for the input field once. It reports false when the field is
// not on the page yet.
func (w *InputWatcher) Arm(ctx context.Context) (bool, error) {
	doc, err := w.surface.Snapshot(ctx)
	if err != nil {
		return false, fmt.Errorf("observer: input snapshot: %w", err)
	}
	input := w.locator.FindInputField(doc)
	if input == nil || input.Length() == 0 {
		return false, nil
	}
	id := dom.ID(input)
	if id == "" {
		return false, nil
	}
	var buttons []string
	for _, b := range w.locator.FindSubmitButtons(doc) {
		if bid := dom.ID(b); bid != "" {
			buttons = append(buttons, bid)
		}
	}
	if err := w.surface.WatchInput(ctx, id, buttons); err != nil {
		return false, fmt.Errorf("observer: watch input: %w", err)
	}
	w.logger.Info("observer: input armed", "input_id", id, "buttons", len(buttons))
	return true, nil
}
