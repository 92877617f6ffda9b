// Package dom holds page snapshots and the mutation surface the enrichment
// pipeline writes to.
//
// A snapshot is the page's outer HTML parsed with x/net/html and queried
// through goquery. Every element of the live page carries a stable
// data-chatenrich-node stamp, so an element found in an older snapshot can
// still be addressed on the page after other mutations happened.
package dom

import (
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Stamps and class names shared by the injected markup and the adapters.
const (
	NodeAttr       = "data-chatenrich-node"
	PanelAttr      = "data-chatenrich-panel"
	ActionAttr     = "data-chatenrich-action"
	PanelClass     = "chatenrich-panel"
	ContainerClass = "chatenrich-container"
	VisibleClass   = "chatenrich-visible"
	DemoBadgeID    = "chatenrich-demo-badge"
)

// Document is a parsed snapshot of a page.
type Document struct {
	doc *goquery.Document
	url string
}

// Parse reads an HTML snapshot.
func Parse(r io.Reader, pageURL string) (*Document, error) {
	d, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("dom: parse: %w", err)
	}
	return &Document{doc: d, url: pageURL}, nil
}

// ParseString is Parse over a string.
func ParseString(s, pageURL string) (*Document, error) {
	return Parse(strings.NewReader(s), pageURL)
}

// URL returns the page URL the snapshot was taken from.
func (d *Document) URL() string { return d.url }

// Find runs a CSS selector over the whole document. An invalid selector
// matches nothing.
func (d *Document) Find(selector string) *goquery.Selection {
	return d.doc.Find(selector)
}

// Title returns the trimmed <title> text.
func (d *Document) Title() string {
	return strings.TrimSpace(d.doc.Find("title").First().Text())
}

// Body returns the <body> element.
func (d *Document) Body() *goquery.Selection {
	return d.doc.Find("body").First()
}

// Node returns the element carrying the given stamp.
func (d *Document) Node(id string) *goquery.Selection {
	return d.doc.Find(stampSelector(id))
}

// HTML renders the snapshot back to markup.
func (d *Document) HTML() (string, error) {
	return d.doc.Html()
}

func stampSelector(id string) string {
	return "[" + NodeAttr + "=\"" + id + "\"]"
}

// ID returns the node stamp of the first element in s, or "".
func ID(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	v, _ := s.First().Attr(NodeAttr)
	return v
}

var unrendered = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// Text returns the trimmed rendered text of s. Text inside script, style,
// noscript and template elements is left out.
func Text(s *goquery.Selection) string {
	if s == nil || s.Length() == 0 {
		return ""
	}
	var sb strings.Builder
	for _, n := range s.Nodes {
		renderedText(&sb, n)
	}
	return strings.TrimSpace(sb.String())
}

// Rendered reports whether the first element of s can show on the page,
// that is neither it nor an ancestor is a script, style, noscript or
// template element.
func Rendered(s *goquery.Selection) bool {
	if s == nil || s.Length() == 0 {
		return false
	}
	for n := s.Get(0); n != nil; n = n.Parent {
		if n.Type == html.ElementNode && unrendered[n.Data] {
			return false
		}
	}
	return true
}

func renderedText(sb *strings.Builder, n *html.Node) {
	switch n.Type {
	case html.TextNode:
		sb.WriteString(n.Data)
		return
	case html.ElementNode:
		if unrendered[n.Data] {
			return
		}
	case html.CommentNode, html.DoctypeNode:
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		renderedText(sb, c)
	}
}

// TextLen is the rune length of Text(s).
func TextLen(s *goquery.Selection) int {
	return utf8.RuneCountInString(Text(s))
}

// Same reports whether a and b hold the same first node.
func Same(a, b *goquery.Selection) bool {
	if a == nil || b == nil || a.Length() == 0 || b.Length() == 0 {
		return false
	}
	return a.Get(0) == b.Get(0)
}

// Contains reports whether inner is a strict descendant of outer.
func Contains(outer, inner *goquery.Selection) bool {
	if outer == nil || inner == nil || outer.Length() == 0 || inner.Length() == 0 {
		return false
	}
	o := outer.Get(0)
	for n := inner.Get(0).Parent; n != nil; n = n.Parent {
		if n == o {
			return true
		}
	}
	return false
}

// Inside reports whether s has an ancestor matching selector.
func Inside(s *goquery.Selection, selector string) bool {
	return s.ParentsFiltered(selector).Length() > 0
}

// Holds reports whether s has a descendant matching selector.
func Holds(s *goquery.Selection, selector string) bool {
	return s.Find(selector).Length() > 0
}

// Root returns the top of the tree s belongs to, so that page-wide lookups
// can start from any element.
func Root(s *goquery.Selection) *goquery.Selection {
	if s == nil || s.Length() == 0 {
		return s
	}
	n := s.Get(0)
	for n.Parent != nil {
		n = n.Parent
	}
	return goquery.NewDocumentFromNode(n).Selection
}

// PageTitle returns the <title> text of the page s belongs to.
func PageTitle(s *goquery.Selection) string {
	return strings.TrimSpace(Root(s).Find("title").First().Text())
}

// Words counts whitespace-separated words.
func Words(text string) int {
	return len(strings.Fields(text))
}

// EndsSentence reports whether text ends with terminal punctuation.
func EndsSentence(text string) bool {
	text = strings.TrimRightFunc(text, unicode.IsSpace)
	if text == "" {
		return false
	}
	r, _ := utf8.DecodeLastRuneInString(text)
	switch r {
	case '.', '!', '?', '…', '"', ')':
		return true
	}
	return false
}

// Stamp assigns a node stamp to every element under root that lacks one.
func Stamp(root *html.Node, next func() string) int {
	n := 0
	var walk func(*html.Node)
	walk = func(node *html.Node) {
		if node.Type == html.ElementNode && !hasAttr(node, NodeAttr) {
			node.Attr = append(node.Attr, html.Attribute{Key: NodeAttr, Val: next()})
			n++
		}
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return n
}

func hasAttr(n *html.Node, key string) bool {
	for _, a := range n.Attr {
		if a.Key == key {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	cur := strings.TrimSpace(getAttr(n, "class"))
	if cur == "" {
		setAttr(n, "class", class)
		return
	}
	setAttr(n, "class", cur+" "+class)
}

// findNode returns the first node under root for which match is true.
func findNode(root *html.Node, match func(*html.Node) bool) *html.Node {
	if match(root) {
		return root
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if n := findNode(c, match); n != nil {
			return n
		}
	}
	return nil
}

// Precedes reports whether a starts before b in document order. Both must
// belong to the same tree.
func Precedes(a, b *goquery.Selection) bool {
	if a == nil || b == nil || a.Length() == 0 || b.Length() == 0 {
		return false
	}
	na, nb := a.Get(0), b.Get(0)
	if na == nb {
		return false
	}
	root := na
	for root.Parent != nil {
		root = root.Parent
	}
	first := findNode(root, func(n *html.Node) bool { return n == na || n == nb })
	return first == na
}

// Wrap returns a selection over n, for code that walks raw sibling nodes.
func Wrap(n *html.Node) *goquery.Selection {
	return goquery.NewDocumentFromNode(n).Selection
}
