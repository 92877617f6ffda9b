package adapter

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

var _ Adapter = (*Claude)(nil)

// Claude handles claude.ai.
type Claude struct {
	base
}

// NewClaude returns the claude.ai adapter.
func NewClaude() *Claude {
	return &Claude{base{cfg: VendorConfig{
		Name:      "claude",
		Hostnames: []string{"claude.ai"},
		Selectors: Selectors{
			Responses: ResponseSelectors{
				Primary: `[data-is-streaming="false"] .font-claude-message`,
				Fallbacks: []string{
					`.font-claude-message`,
					`[data-testid="assistant-message"]`,
					`div.grid-cols-1 div.standard-markdown`,
				},
			},
			Inputs: []string{
				`div.ProseMirror[contenteditable="true"]`,
				`[contenteditable="true"]`,
				`textarea`,
			},
			Buttons: []string{
				`button[aria-label="Send message"]`,
				`button[aria-label="Send Message"]`,
				`fieldset button[type="submit"]`,
			},
			UserQueries: []string{
				`[data-testid="user-message"]`,
				`.font-user-message`,
			},
		},
		Timing: Timing{
			ProcessingDelay:   1500 * time.Millisecond,
			DebounceDelay:     1000 * time.Millisecond,
			MinResponseLength: 100,
		},
	}}}
}

// FindResponseContainers implements Adapter.
func (c *Claude) FindResponseContainers(doc *dom.Document, seen Seen) []*goquery.Selection {
	return c.findContainers(doc, seen, c.ValidateResponse)
}

// ValidateResponse adds to the defaults: user turns and the composer are
// never responses.
func (c *Claude) ValidateResponse(el *goquery.Selection) bool {
	if !c.validate(el) {
		return false
	}
	if _, ok := c.matchesUserQuery(el); ok {
		return false
	}
	if dom.Inside(el, "fieldset") || dom.Holds(el, `[contenteditable="true"]`) {
		return false
	}
	return true
}

// ExtractQuery finds the user turn that produced el: the last user turn
// before it, then a walk of up to 10 ancestors over preceding sibling
// subtrees, then the last user turn on the page.
func (c *Claude) ExtractQuery(el *goquery.Selection) (string, bool) {
	if el == nil || el.Length() == 0 {
		return "", false
	}
	var last, before *goquery.Selection
	c.userQueries(el).Each(func(_ int, t *goquery.Selection) {
		if dom.Inside(t, "."+dom.PanelClass) || dom.TextLen(t) <= 3 {
			return
		}
		last = t
		if dom.Precedes(t, el) {
			before = t
		}
	})
	if before != nil {
		return dom.Text(before), true
	}

	for _, a := range ancestors(el, 10) {
		for _, sib := range prevElements(a) {
			if t, ok := c.matchesUserQuery(dom.Wrap(sib)); ok {
				if q := dom.Text(t); q != "" {
					return q, true
				}
			}
		}
	}

	if last != nil {
		return dom.Text(last), true
	}
	return "", false
}
