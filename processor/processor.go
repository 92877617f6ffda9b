// Package processor turns "a response appeared on the page" into "an
// enrichment panel is showing next to it". Each response element is
// claimed once; accepted ones get a loading panel, then the cached or
// freshly fetched enrichment result.
package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/adapter"
	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/event"
	"github.com/hazyhaar/chatenrich/internal/idgen"
	"github.com/hazyhaar/chatenrich/match"
	"github.com/hazyhaar/chatenrich/panel"
	"github.com/hazyhaar/chatenrich/querycache"
	"github.com/hazyhaar/chatenrich/settings"
)

// DefaultPacing separates consecutive responses within one batch.
const DefaultPacing = 500 * time.Millisecond

// preparatory matches assistants announcing work instead of answering.
var preparatory = regexp.MustCompile(`(?i)^\s*(i['’]ll|i will|let me|i['’]m going to|i am going to|searching( for)?|looking (up|into)|one moment|give me a (moment|second))\b`)

// Emitter receives panel events. internal/sink.Sink satisfies it.
type Emitter interface {
	Send(ctx context.Context, e event.Event) error
}

// Config wires a Processor. Adapter, Surface, Cache and Settings are
// required.
type Config struct {
	SessionID string
	Adapter   adapter.Adapter
	Surface   dom.Surface
	Cache     *querycache.Cache
	Contexts  *querycache.ContextSet
	Settings  settings.Source
	Emitter   Emitter

	// Pacing is the pause between responses in a batch. Default: 500ms.
	Pacing time.Duration
	// MinTextLength overrides the adapter's minimum response length.
	MinTextLength int
	// AllowNonCommercial lets every extracted query through.
	AllowNonCommercial bool

	Sleep  func(ctx context.Context, d time.Duration) error
	Clock  func() time.Time
	Logger *slog.Logger
}

// Processor runs the per-response state machine for one page session.
type Processor struct {
	cfg       Config
	processed *ProcessedSet
	panels    *registry
	md        *converter.Converter
	emits     sync.WaitGroup
}

// New validates cfg and fills defaults.
func New(cfg Config) (*Processor, error) {
	switch {
	case cfg.Adapter == nil:
		return nil, errors.New("processor: adapter is required")
	case cfg.Surface == nil:
		return nil, errors.New("processor: surface is required")
	case cfg.Cache == nil:
		return nil, errors.New("processor: cache is required")
	case cfg.Settings == nil:
		return nil, errors.New("processor: settings are required")
	}
	if cfg.Contexts == nil {
		cfg.Contexts = querycache.NewContextSet(querycache.MaxContexts)
	}
	if cfg.Pacing <= 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.MinTextLength <= 0 {
		cfg.MinTextLength = cfg.Adapter.TimingConfig().MinResponseLength
	}
	if cfg.Sleep == nil {
		cfg.Sleep = enrichment.Sleep
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Processor{
		cfg:       cfg,
		processed: NewProcessedSet(),
		panels:    newRegistry(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
				table.NewTablePlugin(),
			),
		),
	}, nil
}

// Processed exposes the claimed-element set.
func (p *Processor) Processed() *ProcessedSet { return p.processed }

// ProcessAll snapshots the page and processes every unclaimed response the
// adapter finds, one after the other. It returns how many panels were
// populated. Per-response failures are logged and do not stop the batch.
func (p *Processor) ProcessAll(ctx context.Context) (int, error) {
	doc, err := p.cfg.Surface.Snapshot(ctx)
	if err != nil {
		return 0, fmt.Errorf("processor: snapshot: %w", err)
	}
	found := p.cfg.Adapter.FindResponseContainers(doc, p.processed)
	if len(found) == 0 {
		return 0, nil
	}
	p.cfg.Logger.Debug("processor: batch", "vendor", p.cfg.Adapter.Name(), "candidates", len(found))

	n := 0
	for i, el := range found {
		if i > 0 {
			if err := p.cfg.Sleep(ctx, p.cfg.Pacing); err != nil {
				return n, err
			}
		}
		ok, err := p.ProcessResponse(ctx, doc, el)
		if err != nil {
			if ctx.Err() != nil {
				return n, err
			}
			p.cfg.Logger.Warn("processor: response failed", "response_id", dom.ID(el), "error", err)
			continue
		}
		if ok {
			n++
		}
	}
	return n, nil
}

// ProcessResponse runs one element through the pipeline and reports whether
// a panel was populated. Rejections are not errors.
func (p *Processor) ProcessResponse(ctx context.Context, doc *dom.Document, el *goquery.Selection) (bool, error) {
	id := dom.ID(el)
	if id == "" || !p.processed.Claim(id) {
		return false, nil
	}
	log := p.cfg.Logger.With("vendor", p.cfg.Adapter.Name(), "response_id", id)

	if !p.cfg.Settings.Get().ExtensionEnabled {
		log.Debug("processor: disabled")
		return false, nil
	}

	text := dom.Text(el)
	if utf8.RuneCountInString(text) < p.cfg.MinTextLength {
		log.Debug("processor: response too short")
		return false, nil
	}
	if preparatory.MatchString(text) {
		log.Debug("processor: preparatory response")
		return false, nil
	}

	query, ok := p.cfg.Adapter.ExtractQuery(el)
	query = strings.TrimSpace(query)
	if !ok || query == "" {
		log.Debug("processor: no query found")
		return false, nil
	}
	if !p.cfg.AllowNonCommercial && !match.LooksCommercial(query) {
		log.Debug("processor: non-commercial query", "query", query)
		return false, nil
	}

	key := querycache.ContextKey(query, utf8.RuneCountInString(text), elementKey(el))
	if !p.cfg.Contexts.Add(key) {
		log.Debug("processor: context already handled", "query", query)
		return false, nil
	}

	markdown := p.markdown(el, doc.URL())

	pid := panel.NewID()
	cid, err := p.cfg.Adapter.InjectPanel(ctx, p.cfg.Surface, el, adapter.Panel{ID: pid, HTML: panel.Loading(pid)})
	if err != nil {
		return false, fmt.Errorf("processor: inject: %w", err)
	}
	now := p.cfg.Clock()
	rec := PanelRecord{
		ID:          pid,
		Query:       query,
		ResponseID:  id,
		ContainerID: cid,
		PageURL:     doc.URL(),
		State:       PanelPending,
		Status:      panel.StatusLoading,
		Created:     now,
		Updated:     now,
	}
	p.panels.add(rec)
	log.Info("processor: panel injected", "panel_id", pid, "query", query)

	if err := p.cfg.Sleep(ctx, p.cfg.Adapter.TimingConfig().ProcessingDelay); err != nil {
		return false, err
	}

	res, demo, err := p.resolve(ctx, query)
	if err != nil {
		return false, fmt.Errorf("processor: resolve %q: %w", query, err)
	}
	rec.Demo = demo
	return p.populate(ctx, rec, res, markdown, text)
}

// resolve prefers the entry the input path may already have started.
func (p *Processor) resolve(ctx context.Context, query string) (*enrichment.Result, bool, error) {
	e := p.cfg.Cache.Lookup(query)
	if e == nil {
		e = p.cfg.Cache.Fetch(ctx, query)
	}
	r, err := e.Wait(ctx)
	if err != nil {
		return nil, false, err
	}
	return r, e.Demo, nil
}

// populate renders res into the panel unless it was dismissed meanwhile.
func (p *Processor) populate(ctx context.Context, rec PanelRecord, res *enrichment.Result, markdown, text string) (bool, error) {
	if _, err := p.panels.live(rec.ID); err != nil {
		p.cfg.Logger.Debug("processor: panel gone before result", "panel_id", rec.ID)
		return false, nil
	}
	status, content := panel.Content(rec.ID, res)
	if err := p.cfg.Surface.UpdatePanel(ctx, rec.ID, dom.PanelUpdate{Status: status, ContentHTML: content}); err != nil {
		return false, fmt.Errorf("processor: update panel %s: %w", rec.ID, err)
	}
	p.panels.populated(rec.ID, status, rec.Demo, p.cfg.Clock())

	state := event.StatePopulated
	if status != panel.StatusSuccess {
		state = event.StateFailed
	}
	p.cfg.Logger.Info("processor: panel populated", "panel_id", rec.ID, "status", status, "demo", rec.Demo)

	ev := event.Event{
		PageURL:          rec.PageURL,
		Query:            rec.Query,
		PanelID:          rec.ID,
		State:            state,
		Demo:             rec.Demo,
		ResponseMarkdown: markdown,
		Result:           res,
	}
	if text != "" {
		ev.ResponseHash = event.Hash(text)
	}
	p.emit(ctx, ev)
	return true, nil
}

// Retry re-issues the request behind a panel and re-renders it.
func (p *Processor) Retry(ctx context.Context, panelID string) error {
	rec, err := p.panels.live(panelID)
	if err != nil {
		return err
	}
	p.cfg.Logger.Info("processor: retry", "panel_id", panelID, "query", rec.Query)
	loading := dom.PanelUpdate{Status: panel.StatusLoading, ContentHTML: panel.LoadingContent()}
	if err := p.cfg.Surface.UpdatePanel(ctx, panelID, loading); err != nil {
		return fmt.Errorf("processor: retry %s: %w", panelID, err)
	}
	p.panels.update(panelID, func(r *PanelRecord) {
		r.State = PanelPending
		r.Status = panel.StatusLoading
	})
	p.emit(ctx, event.Event{PageURL: rec.PageURL, Query: rec.Query, PanelID: panelID, State: event.StateRetried, Demo: rec.Demo})

	e := p.cfg.Cache.Refresh(ctx, rec.Query)
	res, err := e.Wait(ctx)
	if err != nil {
		return fmt.Errorf("processor: retry %s: %w", panelID, err)
	}
	rec.Demo = e.Demo
	_, err = p.populate(ctx, rec, res, "", "")
	return err
}

// Dismiss removes a panel from the page.
func (p *Processor) Dismiss(ctx context.Context, panelID string) error {
	rec, err := p.panels.live(panelID)
	if err != nil {
		return err
	}
	if err := p.cfg.Surface.RemovePanel(ctx, panelID); err != nil && !errors.Is(err, dom.ErrNodeNotFound) {
		return fmt.Errorf("processor: dismiss %s: %w", panelID, err)
	}
	p.panels.dismissed(panelID, p.cfg.Clock())
	p.cfg.Logger.Info("processor: panel dismissed", "panel_id", panelID)
	p.emit(ctx, event.Event{PageURL: rec.PageURL, Query: rec.Query, PanelID: panelID, State: event.StateDismissed, Demo: rec.Demo})
	return nil
}

// RetryCurrent retries the most recently populated panel.
func (p *Processor) RetryCurrent(ctx context.Context) error {
	id := p.panels.currentID()
	if id == "" {
		return ErrNoCurrentPanel
	}
	return p.Retry(ctx, id)
}

// DismissCurrent dismisses the most recently populated panel.
func (p *Processor) DismissCurrent(ctx context.Context) error {
	id := p.panels.currentID()
	if id == "" {
		return ErrNoCurrentPanel
	}
	return p.Dismiss(ctx, id)
}

// HandleAction dispatches a click on a panel button. A signal without a
// panel id targets the current panel.
func (p *Processor) HandleAction(ctx context.Context, sig dom.Signal) error {
	switch sig.Action {
	case panel.ActionRetry:
		if sig.Panel == "" {
			return p.RetryCurrent(ctx)
		}
		return p.Retry(ctx, sig.Panel)
	case panel.ActionDismiss:
		if sig.Panel == "" {
			return p.DismissCurrent(ctx)
		}
		return p.Dismiss(ctx, sig.Panel)
	}
	return fmt.Errorf("processor: unknown action %q", sig.Action)
}

// Panels lists every injected panel in injection order.
func (p *Processor) Panels() []PanelRecord { return p.panels.list() }

// Current returns the most recently populated panel.
func (p *Processor) Current() (PanelRecord, bool) {
	id := p.panels.currentID()
	if id == "" {
		return PanelRecord{}, false
	}
	rec, err := p.panels.live(id)
	return rec, err == nil
}

// Wait blocks until every emitted event was delivered.
func (p *Processor) Wait() { p.emits.Wait() }

func (p *Processor) emit(ctx context.Context, ev event.Event) {
	if p.cfg.Emitter == nil {
		return
	}
	ev.ID = idgen.New()
	ev.SessionID = p.cfg.SessionID
	ev.Vendor = p.cfg.Adapter.Name()
	ev.Timestamp = p.cfg.Clock().UnixMilli()

	sctx := context.WithoutCancel(ctx)
	p.emits.Add(1)
	go func() {
		defer p.emits.Done()
		if err := p.cfg.Emitter.Send(sctx, ev); err != nil {
			p.cfg.Logger.Warn("processor: emit failed", "panel_id", ev.PanelID, "state", ev.State, "error", err)
		}
	}()
}

func (p *Processor) markdown(el *goquery.Selection, pageURL string) string {
	raw, err := goquery.OuterHtml(el)
	if err != nil {
		return dom.Text(el)
	}
	md, err := p.md.ConvertString(raw, converter.WithDomain(pageURL))
	if err != nil {
		p.cfg.Logger.Debug("processor: markdown conversion failed", "error", err)
		return dom.Text(el)
	}
	return strings.TrimSpace(md)
}

// elementKey names an element for context dedupe: its id, else its class,
// else its tag. The node stamp is left out so a re-rendered response still
// matches.
func elementKey(el *goquery.Selection) string {
	if v, ok := el.Attr("id"); ok && v != "" {
		return v
	}
	if v, ok := el.Attr("class"); ok && v != "" {
		return v
	}
	return goquery.NodeName(el)
}
