package panel

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/chatenrich/dom"
	"github.com/hazyhaar/chatenrich/enrichment"
)

func TestNewID(t *testing.T) {
	a, b := NewID(), NewID()
	assert.True(t, strings.HasPrefix(a, "chatenrich-"))
	assert.NotEqual(t, a, b)
}

func TestLoading_Structure(t *testing.T) {
	id := "chatenrich-test"
	doc, err := dom.ParseString("<html><body>"+Loading(id)+"</body></html>", "")
	require.NoError(t, err)

	p := doc.Find("#" + id)
	require.Equal(t, 1, p.Length())
	assert.True(t, p.HasClass(dom.PanelClass))
	assert.Equal(t, Title, dom.Text(p.Find(".chatenrich-title")))
	assert.True(t, p.Find(".chatenrich-status").HasClass("chatenrich-status-loading"))
	assert.Equal(t, 1, p.Find(".chatenrich-panel-content").Length())

	dismiss := p.Find(`[data-chatenrich-action="dismiss"]`)
	require.Equal(t, 1, dismiss.Length())
	assert.Equal(t, id, dismiss.AttrOr(dom.PanelAttr, ""))
}

func TestSuccess(t *testing.T) {
	r := &enrichment.Result{
		Answer: "Most owners prefer **Model A**.\n\n- quiet\n- cheap to run",
		Sources: []enrichment.Source{
			{Title: "Owner survey", URL: "https://example.com/survey", Description: "2,000 verified owners."},
			{Title: "Second", Description: "Another source."},
		},
		Metadata: map[string]any{"enriched": true},
		Success:  true,
	}
	out := Success(r)
	assert.Contains(t, out, "Most owners prefer <strong>Model A</strong>.")
	assert.Contains(t, out, "<li>quiet</li>")
	assert.Contains(t, out, "2,000 verified owners.")
	assert.Contains(t, out, "chatenrich-badge")
	assert.Contains(t, out, `href="https://example.com/survey"`)
}

func TestSuccess_Sanitises(t *testing.T) {
	r := &enrichment.Result{
		Answer:  "<script>alert(1)</script>safe",
		Sources: []enrichment.Source{{Title: "x", URL: "javascript:alert(1)"}},
		Success: true,
	}
	out := Success(r)
	assert.NotContains(t, out, "<script>")
	assert.NotContains(t, out, "javascript:")
	assert.Contains(t, out, "safe")
	assert.NotContains(t, out, "chatenrich-badge")
}

func TestFailure(t *testing.T) {
	out := Failure("chatenrich-p", &enrichment.Result{Error: "x", ErrorType: enrichment.KindServer, Retryable: true})
	assert.Contains(t, out, "chatenrich-error")
	assert.Contains(t, out, ">x</p>")
	assert.Contains(t, out, `data-chatenrich-action="retry"`)
	assert.Contains(t, out, `data-chatenrich-panel="chatenrich-p"`)

	out = Failure("chatenrich-p", &enrichment.Result{Error: "bad request", ErrorType: enrichment.KindHTTPStatus})
	assert.NotContains(t, out, "retry")

	out = Failure("chatenrich-p", nil)
	assert.Contains(t, out, "chatenrich-error-generic")
}

func TestContent(t *testing.T) {
	status, _ := Content("p", &enrichment.Result{Success: true, Answer: "ok"})
	assert.Equal(t, StatusSuccess, status)
	status, html := Content("p", &enrichment.Result{Success: false, Error: "x", Retryable: true})
	assert.Equal(t, StatusError, status)
	assert.Contains(t, html, "Try again")
}

func TestFormatAnswer(t *testing.T) {
	got := FormatAnswer("Intro line\nsecond line\n\n1. first\n2. second\nafter\n\n\n")
	assert.Equal(t, "<p>Intro line<br>second line</p><ul><li>first</li><li>second</li></ul><p>after</p>", got)
	assert.Equal(t, "<p>a &lt;b&gt;</p>", FormatAnswer("a <b>"))
	assert.Empty(t, FormatAnswer("  \n\n "))
}
