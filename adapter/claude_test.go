package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/chatenrich/dom"
)

func claudePage() string {
	return page("Claude", `
<div class="conversation">
  <div data-testid="user-message">Which laptop is best for students?</div>
  <div data-is-streaming="false"><div class="font-claude-message" id="r1">`+prose(300)+`</div></div>
  <div data-testid="user-message">And the cheapest one?</div>
  <div data-is-streaming="false"><div class="font-claude-message" id="r2">`+prose(260)+`</div></div>
</div>
<fieldset><div class="ProseMirror" contenteditable="true"></div><button aria-label="Send message">Send</button></fieldset>`)
}

func TestClaude_FindResponseContainers(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, claudePage(), "https://claude.ai/chat/1")

	found := c.FindResponseContainers(doc, nil)
	require.Len(t, found, 2)
	assert.Equal(t, "r1", found[0].AttrOr("id", ""))
	assert.Equal(t, "r2", found[1].AttrOr("id", ""))

	found = c.FindResponseContainers(doc, seenSet{dom.ID(found[0]): true})
	require.Len(t, found, 1)
	assert.Equal(t, "r2", found[0].AttrOr("id", ""))
}

func TestClaude_SkipsInjectedMarkup(t *testing.T) {
	c := NewClaude()
	s, doc := snapshot(t, claudePage(), "https://claude.ai/chat/1")

	el := doc.Find("#r1")
	cid, err := c.InjectPanel(context.Background(), s, el, testPanel("chatenrich-p1"))
	require.NoError(t, err)
	assert.Equal(t, "chatenrich-p1-container", cid)

	doc = resnap(t, s)
	container := doc.Node(cid)
	require.Equal(t, 1, container.Length())
	kids := container.Children()
	require.Equal(t, 2, kids.Length())
	assert.Equal(t, "r1", kids.Eq(0).AttrOr("id", ""))
	assert.True(t, kids.Eq(1).HasClass(dom.VisibleClass))

	found := c.FindResponseContainers(doc, nil)
	require.Len(t, found, 1)
	assert.Equal(t, "r2", found[0].AttrOr("id", ""))
}

func TestClaude_ExtractQuery(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, claudePage(), "https://claude.ai/chat/1")

	q, ok := c.ExtractQuery(doc.Find("#r1"))
	require.True(t, ok)
	assert.Equal(t, "Which laptop is best for students?", q)

	q, ok = c.ExtractQuery(doc.Find("#r2"))
	require.True(t, ok)
	assert.Equal(t, "And the cheapest one?", q)
}

func TestClaude_ExtractQuery_GlobalFallback(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, page("Claude", `
<div class="font-claude-message" id="r1">`+prose(200)+`</div>
<div data-testid="user-message">best phone under 500</div>`), "https://claude.ai/new")

	q, ok := c.ExtractQuery(doc.Find("#r1"))
	require.True(t, ok)
	assert.Equal(t, "best phone under 500", q)
}

func TestClaude_ExtractQuery_None(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, page("Claude", `<div class="font-claude-message" id="r1">`+prose(200)+`</div>`), "https://claude.ai/new")

	_, ok := c.ExtractQuery(doc.Find("#r1"))
	assert.False(t, ok)
}

func TestClaude_ValidateResponse(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, claudePage(), "https://claude.ai/chat/1")

	assert.True(t, c.ValidateResponse(doc.Find("#r1")))
	assert.False(t, c.ValidateResponse(doc.Find(`[data-testid="user-message"]`).First()))
	assert.False(t, c.ValidateResponse(doc.Find("fieldset")))
}

func TestClaude_InputAndButtons(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, claudePage(), "https://claude.ai/chat/1")

	in := c.FindInputField(doc)
	require.NotNil(t, in)
	assert.True(t, in.HasClass("ProseMirror"))

	buttons := c.FindSubmitButtons(doc)
	require.Len(t, buttons, 1)

	_, empty := snapshot(t, page("Claude", "<p>loading</p>"), "https://claude.ai/")
	assert.Nil(t, c.FindInputField(empty))
	assert.Empty(t, c.FindSubmitButtons(empty))
}

func TestClaude_ExtractQuery_GlobalFallbackFilters(t *testing.T) {
	c := NewClaude()
	_, doc := snapshot(t, page("Claude", `
<div class="font-claude-message" id="r1">`+prose(200)+`</div>
<div data-testid="user-message">best phone under 500</div>
<div data-testid="user-message">ok</div>
<div class="chatenrich-panel"><div data-testid="user-message">quoted inside a panel</div></div>`), "https://claude.ai/new")

	q, ok := c.ExtractQuery(doc.Find("#r1"))
	require.True(t, ok)
	assert.Equal(t, "best phone under 500", q)

	_, doc = snapshot(t, page("Claude", `
<div class="font-claude-message" id="r1">`+prose(200)+`</div>
<div data-testid="user-message">hi</div>`), "https://claude.ai/new")
	_, ok = c.ExtractQuery(doc.Find("#r1"))
	assert.False(t, ok)
}

func TestClaude_StyleDoesNotCountAsText(t *testing.T) {
	c := NewClaude()
	css := ".katex{font-family:serif} " + strings.Repeat(".x{margin:0} ", 30)
	_, doc := snapshot(t, page("Claude", `
<div data-testid="user-message">Which laptop is best for students?</div>
<div data-is-streaming="false"><div class="font-claude-message" id="r1"><style>`+css+`</style>Short reply.</div></div>`), "https://claude.ai/chat/2")

	assert.Empty(t, c.FindResponseContainers(doc, nil))
	assert.Equal(t, "Short reply.", dom.Text(doc.Find("#r1")))
}
