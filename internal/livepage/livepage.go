// Package livepage implements dom.Surface over a Chrome tab. An injected
// script stamps elements, applies panel mutations, and reports page
// activity back through a CDP runtime binding.
package livepage

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/chatenrich/dom"
)

//go:embed bootstrap.js
var bootstrapJS string

const bindingName = "__chatenrich_binding"

var _ dom.Surface = (*Page)(nil)

// Page is a live chat tab.
type Page struct {
	page    *rod.Page
	logger  *slog.Logger
	signals chan dom.Signal

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu           sync.Mutex
	removeScript func() error
}

// Option configures a Page.
type Option func(*Page)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Page) { p.logger = l }
}

// Attach installs the page script on page, now and on every future
// document, and starts forwarding its signals.
func Attach(ctx context.Context, page *rod.Page, opts ...Option) (*Page, error) {
	p := &Page{
		page:    page,
		logger:  slog.Default(),
		signals: make(chan dom.Signal, 256),
		done:    make(chan struct{}),
	}
	for _, o := range opts {
		o(p)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		p.cancel()
		return nil, fmt.Errorf("livepage: add binding: %w", err)
	}

	wait := page.Context(p.ctx).EachEvent(func(e *proto.RuntimeBindingCalled) {
		if e.Name != bindingName {
			return
		}
		sig, err := decodeSignal(e.Payload)
		if err != nil {
			p.logger.Warn("livepage: bad signal", "error", err)
			return
		}
		p.forward(sig)
	})
	go func() {
		wait()
		close(p.done)
	}()

	remove, err := page.EvalOnNewDocument(bootstrapJS)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("livepage: register script: %w", err)
	}
	p.mu.Lock()
	p.removeScript = remove
	p.mu.Unlock()

	if err := p.bootstrap(ctx); err != nil {
		p.Close()
		return nil, err
	}
	p.logger.Info("livepage: attached")
	return p, nil
}

// Close stops forwarding signals and unregisters the page script.
func (p *Page) Close() error {
	p.cancel()
	<-p.done

	p.mu.Lock()
	remove := p.removeScript
	p.removeScript = nil
	p.mu.Unlock()
	if remove != nil {
		return remove()
	}
	return nil
}

// forward delivers sig unless the page is closing. Mutation bursts are
// dropped when the consumer lags; the next burst carries the same news.
func (p *Page) forward(sig dom.Signal) {
	if sig.Op == dom.OpMutation {
		select {
		case p.signals <- sig:
		default:
		}
		return
	}
	select {
	case p.signals <- sig:
	case <-p.ctx.Done():
	}
}

func (p *Page) bootstrap(ctx context.Context) error {
	if _, err := p.page.Context(ctx).Eval(`() => {` + bootstrapJS + `}`); err != nil {
		return fmt.Errorf("livepage: bootstrap: %w", err)
	}
	return nil
}

// invoke calls a page script method, re-installing the script once if the
// document was replaced since the last call.
func (p *Page) invoke(ctx context.Context, method string, args ...any) (*proto.RuntimeRemoteObject, error) {
	const js = `(m, args) => {
		const api = window.__chatenrich;
		if (!api) return { missing: true };
		return { value: api[m].apply(null, args) };
	}`
	if args == nil {
		args = []any{}
	}
	for attempt := 0; attempt < 2; attempt++ {
		res, err := p.page.Context(ctx).Eval(js, method, args)
		if err != nil {
			return nil, fmt.Errorf("livepage: %s: %w", method, err)
		}
		if !res.Value.Get("missing").Bool() {
			return res, nil
		}
		p.logger.Debug("livepage: script missing, reinstalling", "method", method)
		if err := p.bootstrap(ctx); err != nil {
			return nil, err
		}
	}
	return nil, fmt.Errorf("livepage: %s: page script unavailable", method)
}

// mutate runs a mutating method whose result is "" or a missing-node
// description.
func (p *Page) mutate(ctx context.Context, method string, args ...any) error {
	res, err := p.invoke(ctx, method, args...)
	if err != nil {
		return err
	}
	if msg := res.Value.Get("value").Str(); msg != "" {
		return fmt.Errorf("livepage: %s: %s: %w", method, msg, dom.ErrNodeNotFound)
	}
	return nil
}

// Snapshot implements dom.Surface.
func (p *Page) Snapshot(ctx context.Context) (*dom.Document, error) {
	res, err := p.invoke(ctx, "snapshot")
	if err != nil {
		return nil, err
	}
	v := res.Value.Get("value")
	doc, err := dom.ParseString(v.Get("html").Str(), v.Get("url").Str())
	if err != nil {
		return nil, fmt.Errorf("livepage: snapshot: %w", err)
	}
	return doc, nil
}

// Inject implements dom.Surface.
func (p *Page) Inject(ctx context.Context, inj dom.Injection) error {
	return p.mutate(ctx, "inject", inj)
}

// UpdatePanel implements dom.Surface.
func (p *Page) UpdatePanel(ctx context.Context, panelID string, u dom.PanelUpdate) error {
	return p.mutate(ctx, "update", panelID, u)
}

// RemovePanel implements dom.Surface.
func (p *Page) RemovePanel(ctx context.Context, panelID string) error {
	return p.mutate(ctx, "remove", panelID)
}

// SetDemoBadge implements dom.Surface.
func (p *Page) SetDemoBadge(ctx context.Context, on bool) error {
	return p.mutate(ctx, "demoBadge", on)
}

// WatchInput implements dom.Surface.
func (p *Page) WatchInput(ctx context.Context, inputID string, buttonIDs []string) error {
	if buttonIDs == nil {
		buttonIDs = []string{}
	}
	return p.mutate(ctx, "watchInput", inputID, buttonIDs)
}

// Signals implements dom.Surface. The channel is never closed.
func (p *Page) Signals() <-chan dom.Signal { return p.signals }

// Navigate loads url in the tab and waits for the load event.
func (p *Page) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("livepage: navigate %s: %w", url, err)
	}
	if err := pg.WaitLoad(); err != nil {
		p.logger.Warn("livepage: wait load", "url", url, "error", err)
	}
	return nil
}

var errEmptySignal = errors.New("livepage: signal without op")

func decodeSignal(payload string) (dom.Signal, error) {
	var sig dom.Signal
	if err := json.Unmarshal([]byte(payload), &sig); err != nil {
		return dom.Signal{}, fmt.Errorf("livepage: decode signal: %w", err)
	}
	switch sig.Op {
	case "":
		return dom.Signal{}, errEmptySignal
	case dom.OpMutation, dom.OpSubmit, dom.OpAction, dom.OpNavigate:
		return sig, nil
	}
	return dom.Signal{}, fmt.Errorf("livepage: unknown signal op %q", sig.Op)
}
