package adapter

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

var _ Adapter = (*Gemini)(nil)

const (
	geminiTurn     = ".conversation-container"
	geminiResponse = "model-response"
	geminiCarousel = "sources-carousel-inline, .sources-carousel"
)

// Gemini handles gemini.google.com. Responses are Angular custom elements
// that exist before their markdown has rendered.
type Gemini struct {
	base
}

// NewGemini returns the gemini.google.com adapter.
func NewGemini() *Gemini {
	return &Gemini{base{cfg: VendorConfig{
		Name:      "gemini",
		Hostnames: []string{"gemini.google.com"},
		Selectors: Selectors{
			Responses: ResponseSelectors{
				Primary: geminiResponse,
				Fallbacks: []string{
					"message-content",
					".model-response-text",
					".response-container",
				},
			},
			Inputs: []string{
				`rich-textarea .ql-editor`,
				`div[contenteditable="true"]`,
				`textarea`,
			},
			Buttons: []string{
				`button.send-button`,
				`button[aria-label="Send message"]`,
			},
			UserQueries: []string{
				`user-query .query-text`,
				`user-query`,
				`.query-text`,
			},
		},
		Timing: Timing{
			ProcessingDelay:   2000 * time.Millisecond,
			DebounceDelay:     1500 * time.Millisecond,
			MinResponseLength: 100,
		},
	}}}
}

// FindResponseContainers implements Adapter. A model-response and the
// message-content inside it can both match; only the outer one is kept.
func (g *Gemini) FindResponseContainers(doc *dom.Document, seen Seen) []*goquery.Selection {
	return pruneNested(g.findContainers(doc, seen, g.ValidateResponse))
}

// ValidateResponse rejects the inline sources carousel and responses whose
// markdown has not rendered yet.
func (g *Gemini) ValidateResponse(el *goquery.Selection) bool {
	if !g.validate(el) {
		return false
	}
	if el.Is(geminiCarousel) || dom.Inside(el, geminiCarousel) {
		return false
	}
	if el.Is("model-response, message-content") {
		md := el.Find(".markdown")
		if md.Length() == 0 || dom.Text(md) == "" {
			return false
		}
	}
	return true
}

// ExtractQuery reads the user-query of the enclosing conversation turn,
// falling back to the last user-query on the page.
func (g *Gemini) ExtractQuery(el *goquery.Selection) (string, bool) {
	if el == nil || el.Length() == 0 {
		return "", false
	}
	if turn := el.Closest(geminiTurn); turn.Length() > 0 {
		if uq := turn.ChildrenFiltered("user-query"); uq.Length() > 0 {
			if q := queryText(uq.First()); q != "" {
				return q, true
			}
		}
	}
	if uq := dom.Root(el).Find("user-query"); uq.Length() > 0 {
		if q := queryText(uq.Last()); q != "" {
			return q, true
		}
	}
	return "", false
}

func queryText(uq *goquery.Selection) string {
	if t := uq.Find(".query-text"); t.Length() > 0 {
		return dom.Text(t.First())
	}
	return dom.Text(uq)
}

// InjectPanel places the container right after the turn's model-response,
// which may be an ancestor or sibling of el. The default wrap applies when
// no model-response can be located.
func (g *Gemini) InjectPanel(ctx context.Context, s dom.Surface, el *goquery.Selection, p Panel) (string, error) {
	if target := g.responseElement(el); target != nil {
		return wrap(ctx, s, target, dom.After, p)
	}
	return g.base.InjectPanel(ctx, s, el, p)
}

func (g *Gemini) responseElement(el *goquery.Selection) *goquery.Selection {
	if el.Is(geminiResponse) {
		return el
	}
	if r := el.Closest(geminiResponse); r.Length() > 0 {
		return r
	}
	turn := el.Closest(geminiTurn)
	if turn.Length() == 0 {
		return nil
	}
	if r := turn.Find(geminiResponse); r.Length() > 0 && dom.ID(r) != "" {
		return r.First()
	}
	return nil
}
