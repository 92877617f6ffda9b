// Package enrichment is the client for the remote enrichment service: the
// POST /answer call that returns consumer-insight content for a user query,
// and the GET /health probe.
package enrichment

// Source is one reference attached to an answer.
type Source struct {
	Title       string `json:"title"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
}

// Result is what the panel renders. Failures are synthesised locally with
// Success=false, a human-readable Error, and the classification fields set.
type Result struct {
	Answer    string         `json:"answer"`
	Sources   []Source       `json:"sources"`
	Metadata  map[string]any `json:"metadata"`
	Success   bool           `json:"success"`
	Error     string         `json:"error,omitempty"`
	ErrorType ErrorKind      `json:"_errorType,omitempty"`
	Retryable bool           `json:"_retryable,omitempty"`
}

// Enriched reports whether the service flagged the answer as enriched.
func (r *Result) Enriched() bool {
	if r == nil || r.Metadata == nil {
		return false
	}
	v, _ := r.Metadata["enriched"].(bool)
	return v
}

// Request is the POST /answer body.
type Request struct {
	Query           string `json:"query"`
	TemplateID      string `json:"templateId,omitempty"`
	EnableWebSearch bool   `json:"enableWebSearch,omitempty"`
}

// Health is the GET /health body.
type Health struct {
	Status            string `json:"status"`
	DatabaseConnected bool   `json:"databaseConnected"`
	Timestamp         string `json:"timestamp"`
}
