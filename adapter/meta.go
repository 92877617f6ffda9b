package adapter

import (
	"context"
	"regexp"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

var _ Adapter = (*Meta)(nil)

const (
	metaPlaceholder  = "Meta AI"
	metaMinText      = 200
	metaLandingText  = 1200
	metaDominance    = 0.7
	metaShortButton  = 400
	metaInjectMin    = 100
	metaEditable     = `textarea, input, [contenteditable="true"]`
	metaTextbox      = `textarea, input, [role="textbox"], [contenteditable="true"]`
	metaQuerySpans   = `span[dir="auto"], span[class*="query"]`
	metaMaxQueryText = 500
)

var (
	metaChrome = map[string]bool{
		"new chat": true, "settings": true, "meta ai": true, "imagine": true,
		"discover": true, "log in": true, "sign up": true, "history": true,
		"share": true, "copy": true, "regenerate": true, "see more": true,
	}
	responseOpener = regexp.MustCompile(`(?i)^(here (is|are)|sure|certainly|of course|great question|based on|i'd|i would|absolutely)\b`)
)

// Meta handles meta.ai. Its class names are generated and change often,
// so it leans on structural heuristics when the selectors miss.
type Meta struct {
	base
	settled atomic.Bool
}

// NewMeta returns the meta.ai adapter.
func NewMeta() *Meta {
	return &Meta{base: base{cfg: VendorConfig{
		Name:      "meta",
		Hostnames: []string{"meta.ai", "www.meta.ai"},
		Selectors: Selectors{
			Responses: ResponseSelectors{
				Primary: `div[data-testid="assistant-message"]`,
				Fallbacks: []string{
					`div[class*="markdown"]`,
					`div[role="article"]`,
				},
			},
			Inputs: []string{
				`textarea[placeholder*="Ask Meta AI"]`,
				`div[contenteditable="true"][role="textbox"]`,
				`textarea`,
			},
			Buttons: []string{
				`div[aria-label="Send message"]`,
				`button[aria-label="Send"]`,
				`button[type="submit"]`,
			},
			UserQueries: []string{
				`div[data-testid="user-message"]`,
				`div[class*="user-message"]`,
			},
		},
		Timing: Timing{
			ProcessingDelay:   2000 * time.Millisecond,
			DebounceDelay:     1500 * time.Millisecond,
			MinResponseLength: metaMinText,
		},
	}}}
}

// FindResponseContainers runs the selectors and falls back to the
// structural heuristic, capped to one result. Until the page has shown
// more than a landing page's worth of text it reports nothing.
func (m *Meta) FindResponseContainers(doc *dom.Document, seen Seen) []*goquery.Selection {
	if !m.settled.Load() {
		if dom.TextLen(doc.Body()) < metaLandingText {
			return nil
		}
		m.settled.Store(true)
	}
	if found := m.findContainers(doc, seen, m.ValidateResponse); len(found) > 0 {
		return found
	}
	return m.heuristic(doc, seen)
}

func (m *Meta) heuristic(doc *dom.Document, seen Seen) []*goquery.Selection {
	var cands []Candidate
	doc.Body().Find("*").Each(func(_ int, s *goquery.Selection) {
		id := dom.ID(s)
		if id == "" || (seen != nil && seen.Seen(id)) || !dom.Rendered(s) || !m.ValidateResponse(s) {
			return
		}
		text := dom.Text(s)
		cands = append(cands, Candidate{
			ID:        id,
			Ancestors: ancestorIDs(s),
			Features: Features{
				TextLen:        utf8.RuneCountInString(text),
				DescendantDivs: s.Find("div").Length(),
				DirectChildren: s.Children().Length(),
				Words:          dom.Words(text),
				TerminalPunct:  dom.EndsSentence(text),
			},
		})
	})

	var out []*goquery.Selection
	for _, c := range Rank(cands, 1) {
		if s := doc.Node(c.ID); s.Length() > 0 {
			out = append(out, s)
		}
	}
	return out
}

func ancestorIDs(s *goquery.Selection) []string {
	var ids []string
	s.Parents().Each(func(_ int, p *goquery.Selection) {
		if id := dom.ID(p); id != "" {
			ids = append(ids, id)
		}
	})
	return ids
}

// ValidateResponse rejects fragments that are too short to be answers,
// bits of the composer, and blocks that are mostly the user's own query.
func (m *Meta) ValidateResponse(el *goquery.Selection) bool {
	if !m.validate(el) {
		return false
	}
	text := dom.Text(el)
	n := utf8.RuneCountInString(text)
	if n < metaMinText {
		return false
	}
	if !dom.EndsSentence(text) && dom.Words(text) <= 20 {
		return false
	}
	if el.Is(metaTextbox) || dom.Holds(el, metaEditable) {
		return false
	}
	if q := el.Find(m.querySelector()); q.Length() > 0 {
		if float64(dom.TextLen(q)) > metaDominance*float64(n) {
			return false
		}
	}
	if n < metaShortButton && dom.Holds(el, strings.Join(m.cfg.Selectors.Buttons, ", ")) {
		return false
	}
	return true
}

func (m *Meta) querySelector() string {
	return strings.Join(m.cfg.Selectors.UserQueries, ", ")
}

// ExtractQuery tries query-like spans, then the page title, then nearby
// sibling text up to 15 ancestors out.
func (m *Meta) ExtractQuery(el *goquery.Selection) (string, bool) {
	if el == nil || el.Length() == 0 {
		return "", false
	}

	var found string
	dom.Root(el).Find(m.querySelector() + ", " + metaQuerySpans).Each(func(_ int, s *goquery.Selection) {
		if dom.Inside(s, "."+dom.PanelClass) {
			return
		}
		// Spans inside the response are its own text unless they are the
		// bundled user query.
		if dom.Contains(el, s) {
			if !s.Is(m.querySelector()) {
				return
			}
		} else if !dom.Precedes(s, el) {
			return
		}
		if t := dom.Text(s); plausibleQuery(t) {
			found = t
		}
	})
	if found != "" {
		return found, true
	}

	if t := dom.PageTitle(el); t != "" && t != metaPlaceholder && !strings.Contains(t, "|") {
		return t, true
	}

	for _, a := range ancestors(el, 15) {
		for _, sib := range prevElements(a) {
			if t := dom.Text(dom.Wrap(sib)); plausibleQuery(t) {
				return t, true
			}
		}
	}
	return "", false
}

func plausibleQuery(t string) bool {
	n := utf8.RuneCountInString(t)
	if n < 4 || n > metaMaxQueryText {
		return false
	}
	if metaChrome[strings.ToLower(t)] {
		return false
	}
	return !responseOpener.MatchString(t)
}

// InjectPanel wraps only the answer part when el also renders the user
// query at its top.
func (m *Meta) InjectPanel(ctx context.Context, s dom.Surface, el *goquery.Selection, p Panel) (string, error) {
	if answer := m.answerPart(el); answer != nil {
		return wrap(ctx, s, answer, dom.Before, p)
	}
	return m.base.InjectPanel(ctx, s, el, p)
}

func (m *Meta) answerPart(el *goquery.Selection) *goquery.Selection {
	q := el.Find(m.querySelector()).First()
	if q.Length() == 0 {
		return nil
	}
	first := el.Children().First()
	if !dom.Same(first, q) && !dom.Contains(first, q) {
		return nil
	}
	var answer *goquery.Selection
	el.Children().EachWithBreak(func(_ int, c *goquery.Selection) bool {
		if dom.Same(c, q) || dom.Contains(c, q) {
			return true
		}
		if dom.TextLen(c) >= metaInjectMin && dom.ID(c) != "" {
			answer = c
			return false
		}
		return true
	})
	return answer
}
