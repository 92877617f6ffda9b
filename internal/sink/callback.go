package sink

import (
	"context"

	"github.com/hazyhaar/chatenrich/event"
)

// Func is called for each event, in process.
type Func func(ctx context.Context, e event.Event) error

// Callback delivers events via a Go function call, for embedders that run
// the agent inside their own binary.
type Callback struct {
	fn Func
}

// NewCallback creates a Callback sink. fn may be nil.
func NewCallback(fn Func) *Callback {
	return &Callback{fn: fn}
}

func (c *Callback) Send(ctx context.Context, e event.Event) error {
	if c.fn != nil {
		return c.fn(ctx, e)
	}
	return nil
}

func (c *Callback) Close() error { return nil }
