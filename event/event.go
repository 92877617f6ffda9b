// Package event defines the record emitted each time a panel settles.
// Consumers (log shippers, analytics webhooks, in-process callbacks)
// import this package to receive enrichment activity.
package event

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"

	"github.com/hazyhaar/chatenrich/enrichment"
)

// State is how a panel ended up.
type State string

const (
	StatePopulated State = "populated" // success content rendered
	StateFailed    State = "failed"    // error block rendered
	StateRetried   State = "retried"   // user asked for a retry
	StateDismissed State = "dismissed" // user closed the panel
)

// Event is one panel outcome.
type Event struct {
	ID               string             `json:"id"` // UUIDv7
	SessionID        string             `json:"session_id"`
	Vendor           string             `json:"vendor"`
	PageURL          string             `json:"page_url"`
	Query            string             `json:"query"`
	PanelID          string             `json:"panel_id"`
	State            State              `json:"state"`
	Demo             bool               `json:"demo,omitempty"`
	ResponseMarkdown string             `json:"response_markdown,omitempty"`
	ResponseHash     string             `json:"response_hash,omitempty"` // SHA-256 hex of the response text
	Result           *enrichment.Result `json:"result,omitempty"`
	Timestamp        int64              `json:"timestamp"` // epoch milliseconds
}

// Marshal serialises an Event to JSON.
func Marshal(e *Event) ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal deserialises an Event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// Hash returns the SHA-256 hex digest of text.
func Hash(text string) string {
	h := sha256.Sum256([]byte(text))
	return fmt.Sprintf("%x", h)
}
