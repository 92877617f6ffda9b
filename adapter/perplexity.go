package adapter

import (
	"regexp"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

var _ Adapter = (*Perplexity)(nil)

const (
	perplexityPlaceholder = "Perplexity"
	perplexityMinText     = 50
	perplexityCitation    = `.citation, [data-testid="citation"], [class*="citation"]`
)

var (
	perplexityTitles = []string{`[data-testid="thread-title"]`, `h1.thread-title`, `h1[class*="title"]`}
	citationText     = regexp.MustCompile(`^\[?\d+\]?$`)
)

// Perplexity handles perplexity.ai, where the thread title doubles as the
// query.
type Perplexity struct {
	base
}

// NewPerplexity returns the perplexity.ai adapter.
func NewPerplexity() *Perplexity {
	return &Perplexity{base{cfg: VendorConfig{
		Name:      "perplexity",
		Hostnames: []string{"perplexity.ai", "www.perplexity.ai"},
		Selectors: Selectors{
			Responses: ResponseSelectors{
				Primary: `div.prose`,
				Fallbacks: []string{
					`[data-testid="answer"]`,
					`.answer-content`,
					`div[class*="markdown"]`,
				},
			},
			Inputs: []string{
				`textarea[placeholder*="Ask"]`,
				`textarea`,
				`div[contenteditable="true"]`,
			},
			Buttons: []string{
				`button[aria-label="Submit"]`,
				`button[type="submit"]`,
			},
			UserQueries: []string{
				`[data-testid="user-query"]`,
				`h1[class*="query"]`,
				`.query-text`,
			},
		},
		Timing: Timing{
			ProcessingDelay:   1500 * time.Millisecond,
			DebounceDelay:     1200 * time.Millisecond,
			MinResponseLength: perplexityMinText,
		},
	}}}
}

// FindResponseContainers implements Adapter.
func (p *Perplexity) FindResponseContainers(doc *dom.Document, seen Seen) []*goquery.Selection {
	return p.findContainers(doc, seen, p.ValidateResponse)
}

// ValidateResponse rejects short fragments and citation chips.
func (p *Perplexity) ValidateResponse(el *goquery.Selection) bool {
	if !p.validate(el) {
		return false
	}
	if dom.TextLen(el) < perplexityMinText {
		return false
	}
	if el.Is(perplexityCitation) || dom.Inside(el, perplexityCitation) {
		return false
	}
	if el.Is("a") || citationText.MatchString(dom.Text(el)) {
		return false
	}
	return true
}

// ExtractQuery prefers the thread title, then the user-query elements,
// then the page title unless it is the site placeholder.
func (p *Perplexity) ExtractQuery(el *goquery.Selection) (string, bool) {
	if el == nil || el.Length() == 0 {
		return "", false
	}
	root := dom.Root(el)
	for _, sel := range perplexityTitles {
		if t := dom.Text(root.Find(sel).First()); t != "" {
			return t, true
		}
	}
	for _, sel := range p.cfg.Selectors.UserQueries {
		if t := dom.Text(root.Find(sel).Last()); t != "" {
			return t, true
		}
	}
	if t := dom.PageTitle(el); t != "" && t != perplexityPlaceholder {
		return t, true
	}
	return "", false
}
