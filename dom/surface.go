package dom

import "context"

// Position places a container relative to its anchor.
type Position string

const (
	Before Position = "before"
	After  Position = "after"
)

// Injection wraps one or more page nodes and a panel in a shared container.
// The container is placed next to Anchor, then the Move nodes are moved into
// it in order, then the panel markup is appended after them.
type Injection struct {
	Anchor      string   `json:"anchor"`
	Position    Position `json:"position"`
	Move        []string `json:"move"`
	ContainerID string   `json:"container_id"`
	PanelID     string   `json:"panel_id"`
	PanelHTML   string   `json:"panel_html"`
}

// PanelUpdate replaces the content region and status dot of a panel.
type PanelUpdate struct {
	Status      string `json:"status"`
	ContentHTML string `json:"content_html"`
}

// Signal is an event reported by the page: a mutation burst, a query
// submission, or a click on a panel action.
type Signal struct {
	Op      string `json:"op"`
	Value   string `json:"value,omitempty"`
	TextLen int    `json:"text_len,omitempty"`
	Panel   string `json:"panel,omitempty"`
	Action  string `json:"action,omitempty"`
}

// Signal ops.
const (
	OpMutation = "mutation"
	OpSubmit   = "submit"
	OpAction   = "action"
	OpNavigate = "navigate"
)

// Surface is a page the pipeline can read and mutate. The live
// implementation talks to Chrome over CDP; MemorySurface works on an
// in-process tree.
type Surface interface {
	Snapshot(ctx context.Context) (*Document, error)
	Inject(ctx context.Context, inj Injection) error
	UpdatePanel(ctx context.Context, panelID string, u PanelUpdate) error
	RemovePanel(ctx context.Context, panelID string) error
	SetDemoBadge(ctx context.Context, on bool) error
	// WatchInput installs submit listeners on the input field and the
	// submit buttons. Submissions arrive on Signals as OpSubmit.
	WatchInput(ctx context.Context, inputID string, buttonIDs []string) error
	Signals() <-chan Signal
}

// ContainerID derives the container stamp for a panel.
func ContainerID(panelID string) string {
	return panelID + "-container"
}
