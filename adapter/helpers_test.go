package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/chatenrich/dom"
)

type seenSet map[string]bool

func (s seenSet) Seen(id string) bool { return s[id] }

// prose returns sentence text of at least n runes.
func prose(n int) string {
	const sentence = "Owners say the battery lasts all day and the keyboard feels solid. "
	var sb strings.Builder
	for sb.Len() < n {
		sb.WriteString(sentence)
	}
	return strings.TrimSpace(sb.String())
}

func page(title, body string) string {
	return "<html><head><title>" + title + "</title></head><body>" + body + "</body></html>"
}

func snapshot(t *testing.T, markup, pageURL string) (*dom.MemorySurface, *dom.Document) {
	t.Helper()
	s, err := dom.NewMemorySurface(markup, pageURL)
	require.NoError(t, err)
	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return s, doc
}

func resnap(t *testing.T, s *dom.MemorySurface) *dom.Document {
	t.Helper()
	doc, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return doc
}

func ids(sels []*goquery.Selection) []string {
	out := make([]string, len(sels))
	for i, s := range sels {
		out[i] = dom.ID(s)
	}
	return out
}

func testPanel(id string) Panel {
	return Panel{
		ID:   id,
		HTML: `<div id="` + id + `" class="chatenrich-panel"><div class="chatenrich-panel-content">loading</div></div>`,
	}
}

// prevTag returns the tag of the element right before s.
func prevTag(s *goquery.Selection) string {
	return goquery.NodeName(s.Prev())
}
