package dom

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ErrNodeNotFound is returned when a stamp no longer names a node.
var ErrNodeNotFound = errors.New("dom: node not found")

var _ Surface = (*MemorySurface)(nil)

// MemorySurface is a Surface over an in-process HTML tree. It applies the
// same mutations as the live page script and is what tests and offline
// fixture runs drive.
type MemorySurface struct {
	mu      sync.Mutex
	root    *html.Node
	url     string
	seq     int
	input   string
	buttons []string
	signals chan Signal
}

// NewMemorySurface parses markup into a surface and stamps every element.
func NewMemorySurface(markup, pageURL string) (*MemorySurface, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return nil, fmt.Errorf("dom: memory parse: %w", err)
	}
	m := &MemorySurface{root: root, url: pageURL, signals: make(chan Signal, 64)}
	Stamp(root, m.nextID)
	return m, nil
}

func (m *MemorySurface) nextID() string {
	m.seq++
	return "n" + strconv.Itoa(m.seq)
}

// Snapshot renders and re-parses the tree, the same round trip the live
// page goes through.
func (m *MemorySurface) Snapshot(ctx context.Context) (*Document, error) {
	m.mu.Lock()
	Stamp(m.root, m.nextID)
	var buf bytes.Buffer
	err := html.Render(&buf, m.root)
	m.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("dom: memory render: %w", err)
	}
	return Parse(&buf, m.url)
}

// Inject implements Surface.
func (m *MemorySurface) Inject(ctx context.Context, inj Injection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	anchor := m.byStamp(inj.Anchor)
	if anchor == nil || anchor.Parent == nil {
		return fmt.Errorf("dom: inject anchor %s: %w", inj.Anchor, ErrNodeNotFound)
	}

	// Nothing is touched until every node involved is known.
	move := make([]*html.Node, 0, len(inj.Move))
	for _, id := range inj.Move {
		n := m.byStamp(id)
		if n == nil || n.Parent == nil {
			return fmt.Errorf("dom: inject move %s: %w", id, ErrNodeNotFound)
		}
		move = append(move, n)
	}
	nodes, err := parseFragment(inj.PanelHTML)
	if err != nil {
		return err
	}

	container := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	setAttr(container, "id", inj.ContainerID)
	setAttr(container, "class", ContainerClass)
	setAttr(container, NodeAttr, inj.ContainerID)

	if inj.Position == After {
		anchor.Parent.InsertBefore(container, anchor.NextSibling)
	} else {
		anchor.Parent.InsertBefore(container, anchor)
	}
	for _, n := range move {
		n.Parent.RemoveChild(n)
		container.AppendChild(n)
	}

	for _, n := range nodes {
		container.AppendChild(n)
		if n.Type == html.ElementNode && getAttr(n, "id") == inj.PanelID {
			addClass(n, VisibleClass)
		}
	}
	Stamp(container, m.nextID)
	return nil
}

// UpdatePanel implements Surface.
func (m *MemorySurface) UpdatePanel(ctx context.Context, panelID string, u PanelUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.byHTMLID(panelID)
	if p == nil {
		return fmt.Errorf("dom: panel %s: %w", panelID, ErrNodeNotFound)
	}
	content := findNode(p, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, "chatenrich-panel-content")
	})
	if content == nil {
		return fmt.Errorf("dom: panel %s content: %w", panelID, ErrNodeNotFound)
	}
	for c := content.FirstChild; c != nil; {
		next := c.NextSibling
		content.RemoveChild(c)
		c = next
	}
	nodes, err := parseFragment(u.ContentHTML)
	if err != nil {
		return err
	}
	for _, n := range nodes {
		content.AppendChild(n)
	}
	if dot := findNode(p, func(n *html.Node) bool {
		return n.Type == html.ElementNode && hasClass(n, "chatenrich-status")
	}); dot != nil && u.Status != "" {
		setAttr(dot, "class", "chatenrich-status chatenrich-status-"+u.Status)
	}
	Stamp(p, m.nextID)
	return nil
}

// RemovePanel implements Surface.
func (m *MemorySurface) RemovePanel(ctx context.Context, panelID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p := m.byHTMLID(panelID)
	if p == nil {
		return fmt.Errorf("dom: panel %s: %w", panelID, ErrNodeNotFound)
	}
	p.Parent.RemoveChild(p)
	return nil
}

// SetDemoBadge implements Surface.
func (m *MemorySurface) SetDemoBadge(ctx context.Context, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	badge := m.byHTMLID(DemoBadgeID)
	switch {
	case on && badge == nil:
		body := findNode(m.root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
		if body == nil {
			return fmt.Errorf("dom: demo badge body: %w", ErrNodeNotFound)
		}
		nodes, err := parseFragment(`<div id="` + DemoBadgeID + `" class="chatenrich-demo-badge">Demo mode</div>`)
		if err != nil {
			return err
		}
		for _, n := range nodes {
			body.AppendChild(n)
		}
		Stamp(body, m.nextID)
	case !on && badge != nil:
		badge.Parent.RemoveChild(badge)
	}
	return nil
}

// WatchInput implements Surface. Submissions are fed with Submit.
func (m *MemorySurface) WatchInput(ctx context.Context, inputID string, buttonIDs []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byStamp(inputID) == nil {
		return fmt.Errorf("dom: watch input %s: %w", inputID, ErrNodeNotFound)
	}
	m.input = inputID
	m.buttons = append([]string(nil), buttonIDs...)
	return nil
}

// Signals implements Surface.
func (m *MemorySurface) Signals() <-chan Signal { return m.signals }

// Watched returns the input and button stamps registered by WatchInput.
func (m *MemorySurface) Watched() (string, []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.input, append([]string(nil), m.buttons...)
}

// Submit simulates the user submitting query. It is dropped unless an
// input field is being watched, like on a real page.
func (m *MemorySurface) Submit(query string) bool {
	m.mu.Lock()
	watched := m.input != ""
	m.mu.Unlock()
	if !watched {
		return false
	}
	m.signals <- Signal{Op: OpSubmit, Value: query}
	return true
}

// Click simulates a click on a panel action button.
func (m *MemorySurface) Click(panelID, action string) {
	m.signals <- Signal{Op: OpAction, Panel: panelID, Action: action}
}

// Append parses markup and appends it under the element matching the
// stamp (or <body> when stamp is empty), then reports a mutation burst.
func (m *MemorySurface) Append(stamp, markup string) error {
	m.mu.Lock()
	var parent *html.Node
	if stamp == "" {
		parent = findNode(m.root, func(n *html.Node) bool { return n.DataAtom == atom.Body })
	} else {
		parent = m.byStamp(stamp)
	}
	if parent == nil {
		m.mu.Unlock()
		return fmt.Errorf("dom: append %q: %w", stamp, ErrNodeNotFound)
	}
	nodes, err := parseFragment(markup)
	if err != nil {
		m.mu.Unlock()
		return err
	}
	textLen := 0
	for _, n := range nodes {
		parent.AppendChild(n)
		textLen += len(strings.TrimSpace(textOf(n)))
	}
	Stamp(parent, m.nextID)
	m.mu.Unlock()

	m.signals <- Signal{Op: OpMutation, TextLen: textLen}
	return nil
}

// HTML renders the current tree.
func (m *MemorySurface) HTML() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var buf bytes.Buffer
	_ = html.Render(&buf, m.root)
	return buf.String()
}

func (m *MemorySurface) byStamp(id string) *html.Node {
	if id == "" {
		return nil
	}
	return findNode(m.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && getAttr(n, NodeAttr) == id
	})
}

func (m *MemorySurface) byHTMLID(id string) *html.Node {
	return findNode(m.root, func(n *html.Node) bool {
		return n.Type == html.ElementNode && getAttr(n, "id") == id
	})
}

func parseFragment(markup string) ([]*html.Node, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(markup), ctx)
	if err != nil {
		return nil, fmt.Errorf("dom: parse fragment: %w", err)
	}
	return nodes, nil
}

func textOf(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textOf(c))
	}
	return sb.String()
}
