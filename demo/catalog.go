// Package demo holds the canned question/answer pairs served in demo mode,
// so a presentation can run without the enrichment service.
package demo

import (
	"github.com/hazyhaar/chatenrich/enrichment"
	"github.com/hazyhaar/chatenrich/match"
)

// Threshold is the minimum positional similarity for a fuzzy hit.
const Threshold = 0.95

// Entry is one rehearsed question and its canned response.
type Entry struct {
	ID       string
	Question string
	Response enrichment.Result
}

// Catalog is a fixed list of entries.
type Catalog struct {
	entries []Entry
	norm    []string
}

// New builds a catalog over entries.
func New(entries []Entry) *Catalog {
	c := &Catalog{entries: entries, norm: make([]string, len(entries))}
	for i, e := range entries {
		c.norm[i] = match.Normalize(e.Question)
	}
	return c
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Lookup finds the entry for query: an exact match after normalisation
// first, then the most similar question if it scores at least Threshold.
// The returned Result is a copy the caller may keep.
func (c *Catalog) Lookup(query string) (Entry, bool) {
	if c == nil || len(c.entries) == 0 {
		return Entry{}, false
	}
	q := match.Normalize(query)
	for i, n := range c.norm {
		if n == q {
			return c.entry(i), true
		}
	}
	i, score := match.Best(q, c.norm)
	if i < 0 || score < Threshold {
		return Entry{}, false
	}
	return c.entry(i), true
}

func (c *Catalog) entry(i int) Entry {
	e := c.entries[i]
	e.Response.Sources = append([]enrichment.Source(nil), e.Response.Sources...)
	if e.Response.Metadata != nil {
		md := make(map[string]any, len(e.Response.Metadata))
		for k, v := range e.Response.Metadata {
			md[k] = v
		}
		e.Response.Metadata = md
	}
	return e
}

// Default returns the rehearsed catalog.
func Default() *Catalog {
	return New(defaultEntries)
}

var defaultEntries = []Entry{
	{
		ID:       "glp1-safety",
		Question: "Which weight loss drug is safer: Zepbound or Wegovy?",
		Response: enrichment.Result{
			Answer: "Both Zepbound (tirzepatide) and Wegovy (semaglutide) are FDA-approved for chronic weight management and share a similar safety profile.\n\n" +
				"**What users report**\n" +
				"- Nausea is the most common complaint for both, usually fading after dose escalation.\n" +
				"- Zepbound users report slightly more weight loss at comparable stages.\n" +
				"- Wegovy has a longer post-approval track record and a cardiovascular indication.\n\n" +
				"Discuss contraindications such as a history of pancreatitis with a clinician before choosing.",
			Sources: []enrichment.Source{
				{Title: "FDA approval summary: Zepbound", URL: "https://www.fda.gov/", Description: "Approval notes and boxed warning for tirzepatide.", Type: "regulatory"},
				{Title: "Patient forum survey", Description: "1,200 self-reported experiences comparing side effects.", Type: "community"},
			},
			Metadata: map[string]any{"enriched": true, "demo": true},
			Success:  true,
		},
	},
	{
		ID:       "headphones-budget",
		Question: "What are the best noise cancelling headphones under $200?",
		Response: enrichment.Result{
			Answer: "Owners in this price range most often recommend three models.\n\n" +
				"- **Sony WH-CH720N**: light, long battery life, modest ANC.\n" +
				"- **Soundcore Space Q45**: strongest ANC for the price.\n" +
				"- **Bose QuietComfort 45 (on sale)**: best comfort, occasionally discounted below $200.",
			Sources: []enrichment.Source{
				{Title: "Owner reviews roundup", Description: "Aggregated ratings from verified buyers.", Type: "reviews"},
			},
			Metadata: map[string]any{"enriched": true, "demo": true},
			Success:  true,
		},
	},
	{
		ID:       "ev-vs-hybrid",
		Question: "Should I buy an electric car or a hybrid?",
		Response: enrichment.Result{
			Answer: "Buyers who charge at home and drive under 60 miles a day report the highest satisfaction with EVs.\n\n" +
				"Hybrids remain the common choice for frequent long trips or where public charging is sparse.",
			Sources: []enrichment.Source{
				{Title: "Ownership cost study", Description: "Five-year cost of ownership by powertrain.", Type: "research"},
			},
			Metadata: map[string]any{"enriched": true, "demo": true},
			Success:  true,
		},
	},
}
