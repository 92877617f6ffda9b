// Package observer drives a page session from the signals its surface
// reports: debounced mutation bursts re-run the response processor, query
// submissions start early enrichment requests, and panel clicks are
// routed to retry or dismiss.
package observer

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/querycache"
)

// Processor is the part of processor.Processor the observer drives.
type Processor interface {
	ProcessAll(ctx context.Context) (int, error)
	HandleAction(ctx context.Context, sig dom.Signal) error
}

// EarlyFetcher starts enrichment for a submitted query. *querycache.Cache
// satisfies it.
type EarlyFetcher interface {
	ProcessEarly(ctx context.Context, query string) *querycache.Entry
}

// Config wires an Observer.
type Config struct {
	Surface   dom.Surface
	Processor Processor
	Early     EarlyFetcher
	// Input is re-armed after navigations. Optional.
	Input *InputWatcher

	// Debounce is the quiet period after the last mutation burst.
	Debounce time.Duration
	// MinMutationText ignores bursts adding less text. Default: 1.
	MinMutationText int
	// MinQueryLength ignores shorter submissions. Default: 10.
	MinQueryLength int

	Logger *slog.Logger
}

// Observer is the per-page signal loop.
type Observer struct {
	cfg   Config
	debo  *debouncer
	tasks sync.WaitGroup
}

// New creates an Observer.
func New(cfg Config) *Observer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MinMutationText <= 0 {
		cfg.MinMutationText = 1
	}
	if cfg.MinQueryLength <= 0 {
		cfg.MinQueryLength = 10
	}
	return &Observer{cfg: cfg, debo: newDebouncer(cfg.Debounce)}
}

// Run consumes signals until ctx is done or the signal channel closes,
// then waits for the batches and actions it started.
func (o *Observer) Run(ctx context.Context) error {
	defer o.tasks.Wait()
	defer o.debo.stop()

	signals := o.cfg.Surface.Signals()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case sig, ok := <-signals:
			if !ok {
				return nil
			}
			o.handle(ctx, sig)

		case <-o.debo.timerC():
			bursts := o.debo.fire()
			o.cfg.Logger.Debug("observer: mutations settled", "bursts", bursts)
			o.spawn(ctx, o.batch)
		}
	}
}

func (o *Observer) handle(ctx context.Context, sig dom.Signal) {
	switch sig.Op {
	case dom.OpMutation:
		if sig.TextLen >= o.cfg.MinMutationText {
			o.debo.touch()
		}

	case dom.OpSubmit:
		q := strings.TrimSpace(sig.Value)
		if utf8.RuneCountInString(q) < o.cfg.MinQueryLength {
			return
		}
		if o.cfg.Early == nil {
			return
		}
		if e := o.cfg.Early.ProcessEarly(ctx, q); e != nil {
			o.cfg.Logger.Info("observer: early request", "query", q, "demo", e.Demo)
		}

	case dom.OpAction:
		o.spawn(ctx, func(ctx context.Context) {
			if err := o.cfg.Processor.HandleAction(ctx, sig); err != nil {
				o.cfg.Logger.Warn("observer: action failed",
					"action", sig.Action, "panel_id", sig.Panel, "error", err)
			}
		})

	case dom.OpNavigate:
		o.cfg.Logger.Info("observer: navigation", "url", sig.Value)
		if o.cfg.Input != nil {
			o.cfg.Input.Rearm()
		}
		o.debo.touch()
	}
}

// Trigger runs one batch immediately, outside the debounce window.
func (o *Observer) Trigger(ctx context.Context) {
	o.spawn(ctx, o.batch)
}

func (o *Observer) batch(ctx context.Context) {
	n, err := o.cfg.Processor.ProcessAll(ctx)
	if err != nil {
		if ctx.Err() == nil {
			o.cfg.Logger.Warn("observer: batch failed", "error", err)
		}
		return
	}
	if n > 0 {
		o.cfg.Logger.Info("observer: batch done", "populated", n)
	}
}

// spawn runs fn in its own goroutine. Batches may overlap; the processor's
// claimed set keeps them from handling the same response twice.
func (o *Observer) spawn(ctx context.Context, fn func(context.Context)) {
	o.tasks.Add(1)
	go func() {
		defer o.tasks.Done()
		fn(ctx)
	}()
}
