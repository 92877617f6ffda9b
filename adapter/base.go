package adapter

import (
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chatenrich/dom"
)

// base carries the defaults that fit Claude-like markup. It deliberately
// has no ExtractQuery: every vendor must supply its own.
type base struct {
	cfg VendorConfig
}

func (b *base) Name() string         { return b.cfg.Name }
func (b *base) Config() VendorConfig { return b.cfg }
func (b *base) TimingConfig() Timing { return b.cfg.Timing }

// FindInputField returns the first element matched by the ordered input
// selectors, or nil.
func (b *base) FindInputField(doc *dom.Document) *goquery.Selection {
	for _, sel := range b.cfg.Selectors.Inputs {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			return s
		}
	}
	return nil
}

// FindSubmitButtons returns the union of every button selector's matches.
func (b *base) FindSubmitButtons(doc *dom.Document) []*goquery.Selection {
	var out []*goquery.Selection
	seen := make(map[*html.Node]bool)
	for _, sel := range b.cfg.Selectors.Buttons {
		doc.Find(sel).Each(func(_ int, s *goquery.Selection) {
			n := s.Get(0)
			if !seen[n] {
				seen[n] = true
				out = append(out, s)
			}
		})
	}
	return out
}

// ValidateResponse is the default predicate.
func (b *base) ValidateResponse(el *goquery.Selection) bool {
	return b.validate(el)
}

// validate rejects elements we cannot address and anything overlapping
// injected markup: inside a panel or container, or holding a panel.
func (b *base) validate(el *goquery.Selection) bool {
	if el == nil || el.Length() == 0 || dom.ID(el) == "" {
		return false
	}
	if el.HasClass(dom.PanelClass) || el.HasClass(dom.ContainerClass) {
		return false
	}
	if dom.Inside(el, "."+dom.PanelClass) || dom.Inside(el, "."+dom.ContainerClass) {
		return false
	}
	if dom.Holds(el, "."+dom.PanelClass) {
		return false
	}
	return true
}

// findContainers runs the primary selector, then each fallback, and
// returns the first non-empty set of candidates that are unprocessed,
// pass valid, and are longer than the vendor minimum.
func (b *base) findContainers(doc *dom.Document, seen Seen, valid func(*goquery.Selection) bool) []*goquery.Selection {
	sels := append([]string{b.cfg.Selectors.Responses.Primary}, b.cfg.Selectors.Responses.Fallbacks...)
	for _, sel := range sels {
		if sel == "" {
			continue
		}
		if found := b.collect(doc.Find(sel), seen, valid); len(found) > 0 {
			return found
		}
	}
	return nil
}

func (b *base) collect(matches *goquery.Selection, seen Seen, valid func(*goquery.Selection) bool) []*goquery.Selection {
	var out []*goquery.Selection
	dup := make(map[*html.Node]bool)
	matches.Each(func(_ int, s *goquery.Selection) {
		n := s.Get(0)
		if dup[n] {
			return
		}
		dup[n] = true
		id := dom.ID(s)
		if id == "" || (seen != nil && seen.Seen(id)) {
			return
		}
		if !valid(s) || dom.TextLen(s) <= b.cfg.Timing.MinResponseLength {
			return
		}
		out = append(out, s)
	})
	return out
}

// InjectPanel is the default strategy: a container inserted before the
// response, holding the response then the panel.
func (b *base) InjectPanel(ctx context.Context, s dom.Surface, el *goquery.Selection, p Panel) (string, error) {
	return wrap(ctx, s, el, dom.Before, p)
}

// userQueries selects every user-turn element on the page el belongs to.
func (b *base) userQueries(el *goquery.Selection) *goquery.Selection {
	return dom.Root(el).Find(strings.Join(b.cfg.Selectors.UserQueries, ", "))
}

// matchesUserQuery reports whether s is, or holds, a user turn, and returns
// the last such element.
func (b *base) matchesUserQuery(s *goquery.Selection) (*goquery.Selection, bool) {
	sel := strings.Join(b.cfg.Selectors.UserQueries, ", ")
	if found := s.Find(sel); found.Length() > 0 {
		return found.Last(), true
	}
	if s.Is(sel) {
		return s, true
	}
	return nil, false
}

// wrap moves anchor and the panel into a fresh container placed at pos.
func wrap(ctx context.Context, s dom.Surface, anchor *goquery.Selection, pos dom.Position, p Panel) (string, error) {
	id := dom.ID(anchor)
	if id == "" {
		return "", ErrUnaddressable
	}
	cid := dom.ContainerID(p.ID)
	err := s.Inject(ctx, dom.Injection{
		Anchor:      id,
		Position:    pos,
		Move:        []string{id},
		ContainerID: cid,
		PanelID:     p.ID,
		PanelHTML:   p.HTML,
	})
	if err != nil {
		return "", fmt.Errorf("adapter: inject %s: %w", id, err)
	}
	return cid, nil
}

// pruneNested drops elements nested inside (or containing) an element kept
// earlier.
func pruneNested(in []*goquery.Selection) []*goquery.Selection {
	var out []*goquery.Selection
next:
	for _, s := range in {
		for _, k := range out {
			if dom.Contains(k, s) || dom.Contains(s, k) {
				continue next
			}
		}
		out = append(out, s)
	}
	return out
}

// ancestors returns up to n ancestors of el, nearest first.
func ancestors(el *goquery.Selection, n int) []*html.Node {
	var out []*html.Node
	for p := el.Get(0).Parent; p != nil && len(out) < n; p = p.Parent {
		if p.Type != html.ElementNode {
			break
		}
		out = append(out, p)
	}
	return out
}

// prevElements returns the element siblings before n, nearest first.
func prevElements(n *html.Node) []*html.Node {
	var out []*html.Node
	for s := n.PrevSibling; s != nil; s = s.PrevSibling {
		if s.Type == html.ElementNode {
			out = append(out, s)
		}
	}
	return out
}
