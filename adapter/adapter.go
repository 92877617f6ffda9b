// Package adapter isolates the rest of the pipeline from each chat vendor's
// markup. An Adapter finds assistant responses in a page snapshot, works
// out which user query produced them, and places the enrichment panel next
// to them.
//
// Adapters are pure over snapshots except for InjectPanel, which issues a
// single mutation through a dom.Surface.
package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/hazyhaar/chatenrich/dom"
)

// ErrUnaddressable is returned when an element carries no node stamp and
// cannot be targeted by a mutation.
var ErrUnaddressable = errors.New("adapter: element has no node stamp")

// ResponseSelectors lists where assistant responses live, most specific
// first.
type ResponseSelectors struct {
	Primary   string
	Fallbacks []string
}

// Selectors groups a vendor's CSS selectors.
type Selectors struct {
	Responses   ResponseSelectors
	Inputs      []string
	Buttons     []string
	UserQueries []string
}

// Timing holds a vendor's pacing.
type Timing struct {
	ProcessingDelay   time.Duration `json:"processing_delay"`
	DebounceDelay     time.Duration `json:"debounce_delay"`
	MinResponseLength int           `json:"min_response_length"`
}

// VendorConfig is the static descriptor of one supported vendor.
type VendorConfig struct {
	Name      string
	Hostnames []string
	Selectors Selectors
	Timing    Timing
}

// Seen reports whether an element (by node stamp) was already handled.
type Seen interface {
	Seen(id string) bool
}

// Panel is the markup to place next to a response.
type Panel struct {
	ID   string
	HTML string
}

// Adapter is the per-vendor detection, extraction and injection strategy.
//
// Absence is never an error: no containers is an empty slice, no input
// field is nil, no query is ("", false).
type Adapter interface {
	Name() string
	Config() VendorConfig

	// FindResponseContainers returns unprocessed, valid responses longer
	// than the vendor minimum, in discovery order.
	FindResponseContainers(doc *dom.Document, seen Seen) []*goquery.Selection
	FindInputField(doc *dom.Document) *goquery.Selection
	FindSubmitButtons(doc *dom.Document) []*goquery.Selection
	ValidateResponse(el *goquery.Selection) bool
	ExtractQuery(el *goquery.Selection) (string, bool)

	// InjectPanel wraps the response and the panel in a shared container
	// and returns the container stamp.
	InjectPanel(ctx context.Context, s dom.Surface, el *goquery.Selection, p Panel) (string, error)
	TimingConfig() Timing
}
