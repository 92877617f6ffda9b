// Package panel renders the enrichment panel markup: the loading shell
// injected next to a response, then the success or error content that
// replaces its content region.
package panel

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/internal/idgen"
)

// Status dot states.
const (
	StatusLoading = "loading"
	StatusSuccess = "success"
	StatusError   = "error"
)

// Actions carried by panel buttons.
const (
	ActionRetry   = "retry"
	ActionDismiss = "dismiss"
)

// Title is the panel heading.
const Title = "Consumer insights"

var (
	policy = bluemonday.UGCPolicy().
		AllowAttrs("class").Matching(regexp.MustCompile(`^chatenrich-[a-z-]+( chatenrich-[a-z-]+)*$`)).Globally().
		AddTargetBlankToFullyQualifiedLinks(true)
	boldPattern   = regexp.MustCompile(`\*\*(.+?)\*\*`)
	bulletPattern = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)])\s+`)
)

// IDPrefix starts every panel id.
const IDPrefix = "chatenrich-"

var newID = idgen.Prefixed(IDPrefix, idgen.UUIDv7())

// NewID returns a fresh panel id.
func NewID() string {
	return newID()
}

// Loading returns the full panel markup in its loading state.
func Loading(id string) string {
	eid := html.EscapeString(id)
	var b strings.Builder
	fmt.Fprintf(&b, `<div id="%s" class="%s" %s="%s">`, eid, dom.PanelClass, dom.PanelAttr, eid)
	b.WriteString(`<div class="chatenrich-panel-header">`)
	b.WriteString(`<span class="chatenrich-logo" aria-hidden="true">&#9670;</span>`)
	fmt.Fprintf(&b, `<span class="chatenrich-title">%s</span>`, Title)
	fmt.Fprintf(&b, `<span class="chatenrich-status chatenrich-status-%s"></span>`, StatusLoading)
	fmt.Fprintf(&b, `<button type="button" class="chatenrich-dismiss" %s="%s" %s="%s" aria-label="Dismiss">&times;</button>`,
		dom.ActionAttr, ActionDismiss, dom.PanelAttr, eid)
	b.WriteString(`</div>`)
	b.WriteString(`<div class="chatenrich-panel-content">` + LoadingContent() + `</div>`)
	b.WriteString(`</div>`)
	return b.String()
}

// LoadingContent is the content region shown while a request is pending.
func LoadingContent() string {
	return `<div class="chatenrich-loading">Looking for insights&hellip;</div>`
}

// Content returns the status and content markup for r.
func Content(panelID string, r *enrichment.Result) (status, content string) {
	if r != nil && r.Success {
		return StatusSuccess, Success(r)
	}
	return StatusError, Failure(panelID, r)
}

// Success renders the answer, an enriched badge when flagged, and the
// sources with their descriptions. Service text is sanitised.
func Success(r *enrichment.Result) string {
	var b strings.Builder
	b.WriteString(`<div class="chatenrich-answer">`)
	b.WriteString(FormatAnswer(r.Answer))
	b.WriteString(`</div>`)

	if len(r.Sources) > 0 {
		b.WriteString(`<div class="chatenrich-sources"><h4>Sources</h4><ul>`)
		for _, s := range r.Sources {
			b.WriteString(`<li class="chatenrich-source">`)
			title := html.EscapeString(s.Title)
			if s.URL != "" {
				fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(s.URL), title)
			} else {
				fmt.Fprintf(&b, `<strong>%s</strong>`, title)
			}
			if s.Description != "" {
				fmt.Fprintf(&b, `<p class="chatenrich-source-description">%s</p>`, html.EscapeString(s.Description))
			}
			b.WriteString(`</li>`)
		}
		b.WriteString(`</ul></div>`)
	}
	out := policy.Sanitize(b.String())
	if r.Enriched() {
		out = `<span class="chatenrich-badge">Enriched</span>` + out
	}
	return out
}

// Failure renders the error block, with a retry button when the failure
// is retryable.
func Failure(panelID string, r *enrichment.Result) string {
	msg := "Something went wrong while loading insights."
	kind := enrichment.KindGeneric
	retryable := false
	if r != nil {
		if r.Error != "" {
			msg = r.Error
		}
		if r.ErrorType != "" {
			kind = r.ErrorType
		}
		retryable = r.Retryable
	}

	var b strings.Builder
	fmt.Fprintf(&b, `<div class="chatenrich-error chatenrich-error-%s">`, html.EscapeString(string(kind)))
	fmt.Fprintf(&b, `<p class="chatenrich-error-message">%s</p>`, html.EscapeString(msg))
	if retryable {
		fmt.Fprintf(&b, `<button type="button" class="chatenrich-retry" %s="%s" %s="%s">Try again</button>`,
			dom.ActionAttr, ActionRetry, dom.PanelAttr, html.EscapeString(panelID))
	}
	b.WriteString(`</div>`)
	return b.String()
}

// FormatAnswer turns the service's lightly formatted text into HTML:
// blank-line separated paragraphs, bullet lists, and **bold** runs.
func FormatAnswer(text string) string {
	var b strings.Builder
	for _, block := range strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n\n") {
		lines := nonEmpty(strings.Split(block, "\n"))
		if len(lines) == 0 {
			continue
		}

		var para []string
		inList := false
		flush := func() {
			if len(para) > 0 {
				b.WriteString("<p>" + strings.Join(para, "<br>") + "</p>")
				para = nil
			}
		}
		for _, l := range lines {
			if bulletPattern.MatchString(l) {
				flush()
				if !inList {
					b.WriteString("<ul>")
					inList = true
				}
				b.WriteString("<li>" + inline(bulletPattern.ReplaceAllString(l, "")) + "</li>")
				continue
			}
			if inList {
				b.WriteString("</ul>")
				inList = false
			}
			para = append(para, inline(l))
		}
		if inList {
			b.WriteString("</ul>")
		}
		flush()
	}
	return b.String()
}

func inline(s string) string {
	return boldPattern.ReplaceAllString(html.EscapeString(strings.TrimSpace(s)), "<strong>$1</strong>")
}

func nonEmpty(lines []string) []string {
	out := lines[:0]
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}
