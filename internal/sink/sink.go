// Package sink delivers panel events to output backends.
package sink

import (
	"context"

	"github.com/hazyhaar/chatenrich/event"
)

// Sink is the output interface. Implementations deliver events to
// different backends (stdout, webhook, in-process callback).
type Sink interface {
	Send(ctx context.Context, e event.Event) error
	Close() error
}
