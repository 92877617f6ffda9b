package processor

import (
	"errors"
	"sync"
	"time"
)

var (
	// ErrUnknownPanel is returned for an id that was never injected or has
	// been dismissed.
	ErrUnknownPanel = errors.New("processor: unknown panel")
	// ErrNoCurrentPanel is returned by the current-panel actions before any
	// panel was populated.
	ErrNoCurrentPanel = errors.New("processor: no current panel")
)

// PanelState is the lifecycle of an injected panel.
type PanelState string

const (
	PanelPending   PanelState = "pending"
	PanelPopulated PanelState = "populated"
	PanelDismissed PanelState = "dismissed"
)

// PanelRecord describes one injected panel.
type PanelRecord struct {
	ID          string     `json:"id"`
	Query       string     `json:"query"`
	ResponseID  string     `json:"response_id"`
	ContainerID string     `json:"container_id"`
	PageURL     string     `json:"page_url"`
	State       PanelState `json:"state"`
	Status      string     `json:"status,omitempty"`
	Demo        bool       `json:"demo,omitempty"`
	Created     time.Time  `json:"created"`
	Updated     time.Time  `json:"updated"`
}

// registry tracks panels by id and the most recently populated one.
type registry struct {
	mu      sync.Mutex
	byID    map[string]*PanelRecord
	order   []string
	current string
}

func newRegistry() *registry {
	return &registry{byID: make(map[string]*PanelRecord)}
}

func (r *registry) add(rec PanelRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[rec.ID] = &rec
	r.order = append(r.order, rec.ID)
}

func (r *registry) drop(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// live returns a copy of a non-dismissed panel.
func (r *registry) live(id string) (PanelRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.byID[id]
	if !ok || rec.State == PanelDismissed {
		return PanelRecord{}, ErrUnknownPanel
	}
	return *rec, nil
}

func (r *registry) update(id string, fn func(*PanelRecord)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		fn(rec)
	}
}

// populated marks id as populated and makes it current.
func (r *registry) populated(id, status string, demo bool, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		rec.State = PanelPopulated
		rec.Status = status
		rec.Demo = demo
		rec.Updated = now
		r.current = id
	}
}

func (r *registry) dismissed(id string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.byID[id]; ok {
		rec.State = PanelDismissed
		rec.Updated = now
	}
	if r.current == id {
		r.current = ""
	}
}

func (r *registry) currentID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.current
}

func (r *registry) list() []PanelRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]PanelRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}
