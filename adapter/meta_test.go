package adapter

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hazyhaar/chatenrich/dom"
)

func TestMeta_LandingShortCircuit(t *testing.T) {
	m := NewMeta()
	_, doc := snapshot(t, page("Meta AI", `<div data-testid="assistant-message">`+prose(300)+`</div>`), "https://www.meta.ai/")

	assert.Empty(t, m.FindResponseContainers(doc, nil))

	_, doc = snapshot(t, page("Meta AI", `<div data-testid="assistant-message">`+prose(1300)+`</div>`), "https://www.meta.ai/c/1")
	require.Len(t, m.FindResponseContainers(doc, nil), 1)

	// Once past the landing page, short pages are processed normally.
	_, doc = snapshot(t, page("Meta AI", `<div data-testid="assistant-message">`+prose(300)+`</div>`), "https://www.meta.ai/c/2")
	assert.Len(t, m.FindResponseContainers(doc, nil), 1)
}

func TestMeta_HeuristicPrunesNested(t *testing.T) {
	m := NewMeta()
	m.settled.Store(true)
	_, doc := snapshot(t, page("Meta AI", `
<nav><a href="/">New chat</a></nav>
<div class="x1abc" id="outer">`+prose(200)+`<div class="x2def" id="inner">`+prose(210)+`</div></div>`), "https://www.meta.ai/c/3")

	found := m.FindResponseContainers(doc, nil)
	require.Len(t, found, 1)
	assert.Equal(t, "outer", found[0].AttrOr("id", ""))

	found = m.FindResponseContainers(doc, seenSet{dom.ID(found[0]): true})
	require.Len(t, found, 1)
	assert.Equal(t, "inner", found[0].AttrOr("id", ""))
}

func TestRank(t *testing.T) {
	outer := Candidate{ID: "outer", Features: Features{TextLen: 400, DescendantDivs: 1, DirectChildren: 1, Words: 60, TerminalPunct: true}}
	inner := Candidate{ID: "inner", Ancestors: []string{"outer", "body"}, Features: Features{TextLen: 200, Words: 30, TerminalPunct: true}}
	chrome := Candidate{ID: "nav", Features: Features{TextLen: 40, DescendantDivs: 40, DirectChildren: 8}}

	require.Equal(t, 4, Score(outer.Features))
	require.Equal(t, 3, Score(inner.Features))
	require.Less(t, Score(chrome.Features), MinScore)

	got := Rank([]Candidate{inner, chrome, outer}, 0)
	require.Len(t, got, 1)
	assert.Equal(t, "outer", got[0].ID)

	sibling := Candidate{ID: "sib", Features: Features{TextLen: 500, DirectChildren: 3, Words: 80, TerminalPunct: true}}
	got = Rank([]Candidate{outer, sibling}, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "sib", got[0].ID)

	got = Rank([]Candidate{outer, sibling}, 1)
	require.Len(t, got, 1)
}

func TestMeta_ValidateResponse(t *testing.T) {
	m := NewMeta()
	_, doc := snapshot(t, page("Meta AI", `
<div id="short">A short reply.</div>
<div id="fragment">best vacuum for pet hair and stairs under 300 dollars in 2026 with a long battery life and strong suction and a self emptying base station included</div>
<div id="composer">`+prose(250)+`<textarea></textarea></div>
<div id="dominated"><div data-testid="user-message">`+prose(240)+`</div><p>Sure.</p></div>
<div id="ok">`+prose(250)+`</div>`), "https://www.meta.ai/c/4")

	assert.False(t, m.ValidateResponse(doc.Find("#short")))
	assert.False(t, m.ValidateResponse(doc.Find("#fragment")))
	assert.False(t, m.ValidateResponse(doc.Find("#composer")))
	assert.False(t, m.ValidateResponse(doc.Find("#dominated")))
	assert.True(t, m.ValidateResponse(doc.Find("#ok")))
}

func TestMeta_ExtractQuery(t *testing.T) {
	m := NewMeta()
	_, doc := snapshot(t, page("Meta AI", `
<span dir="auto">New chat</span>
<span dir="auto">what is the best air purifier for allergies?</span>
<div id="r">`+prose(250)+`</div>
<span dir="auto">Regenerate</span>`), "https://www.meta.ai/c/5")

	q, ok := m.ExtractQuery(doc.Find("#r"))
	require.True(t, ok)
	assert.Equal(t, "what is the best air purifier for allergies?", q)
}

func TestMeta_ExtractQuery_TitleAndSiblings(t *testing.T) {
	m := NewMeta()

	_, doc := snapshot(t, page("Air purifiers for allergies", `<div id="r">`+prose(250)+`</div>`), "https://www.meta.ai/c/6")
	q, ok := m.ExtractQuery(doc.Find("#r"))
	require.True(t, ok)
	assert.Equal(t, "Air purifiers for allergies", q)

	_, doc = snapshot(t, page("Meta AI | Chat", `
<section><p>cheapest robot vacuum that maps rooms</p><div><div id="r">`+prose(250)+`</div></div></section>`), "https://www.meta.ai/c/7")
	q, ok = m.ExtractQuery(doc.Find("#r"))
	require.True(t, ok)
	assert.Equal(t, "cheapest robot vacuum that maps rooms", q)
}

func TestMeta_InjectPanel_WrapsAnswerOnly(t *testing.T) {
	m := NewMeta()
	s, doc := snapshot(t, page("Meta AI", `
<div data-testid="assistant-message" id="bundle">
  <div data-testid="user-message">best robot vacuum for pet hair</div>
  <div class="answer" id="answer">`+prose(250)+`</div>
</div>`), "https://www.meta.ai/c/8")

	cid, err := m.InjectPanel(context.Background(), s, doc.Find("#bundle"), testPanel("chatenrich-m1"))
	require.NoError(t, err)

	doc = resnap(t, s)
	container := doc.Node(cid)
	assert.Equal(t, "bundle", container.Parent().AttrOr("id", ""))
	assert.Equal(t, "answer", container.Children().First().AttrOr("id", ""))
	assert.Equal(t, 1, doc.Find(`#bundle > [data-testid="user-message"]`).Length())
}

func TestMeta_InjectPanel_WholeElement(t *testing.T) {
	m := NewMeta()
	s, doc := snapshot(t, page("Meta AI", `<div id="r">`+prose(250)+`</div>`), "https://www.meta.ai/c/9")

	cid, err := m.InjectPanel(context.Background(), s, doc.Find("#r"), testPanel("chatenrich-m2"))
	require.NoError(t, err)

	doc = resnap(t, s)
	assert.Equal(t, "r", doc.Node(cid).Children().First().AttrOr("id", ""))
}

func TestMeta_LandingIgnoresScripts(t *testing.T) {
	m := NewMeta()
	state := `<script type="application/json">{"bootstrap":"` + strings.Repeat("x", 2000) + `"}</script>`
	_, doc := snapshot(t, page("Meta AI", state+`<div data-testid="assistant-message">`+prose(300)+`</div>`), "https://www.meta.ai/")

	assert.Less(t, dom.TextLen(doc.Body()), metaLandingText)
	assert.Empty(t, m.FindResponseContainers(doc, nil))
	assert.False(t, m.settled.Load())
}

func TestMeta_HeuristicScansEveryElement(t *testing.T) {
	m := NewMeta()
	m.settled.Store(true)
	_, doc := snapshot(t, page("Meta AI", `
<nav><a href="/">New chat</a></nav>
<article id="answer"><p>`+prose(200)+`</p><p>`+prose(200)+`</p></article>
<template><section>`+prose(400)+`</section></template>`), "https://www.meta.ai/c/10")

	found := m.FindResponseContainers(doc, nil)
	require.Len(t, found, 1)
	assert.Equal(t, "answer", found[0].AttrOr("id", ""))
}
