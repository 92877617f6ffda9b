package chatenrich

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/hazyhaar/chatenrich/event"
	"github.com/hazyhaar/chatenrich/internal/sink"
)

// Sink is the output interface for panel events.
type Sink = sink.Sink

// NewStdoutSink creates a stdout JSON-lines sink.
func NewStdoutSink(w io.Writer) Sink {
	return sink.NewStdout(w)
}

// NewWebhookSink creates a webhook POST sink with retry.
func NewWebhookSink(url string, logger *slog.Logger) Sink {
	return sink.NewWebhook(url, sink.WithWebhookLogger(logger))
}

// NewCallbackSink creates an in-process sink.
func NewCallbackSink(fn func(ctx context.Context, e event.Event) error) Sink {
	return sink.NewCallback(fn)
}

// SinksFromConfig builds the sinks a configuration names. No entries
// means a single stdout sink.
func SinksFromConfig(cfg *Config, stdout io.Writer, logger *slog.Logger) ([]Sink, error) {
	if len(cfg.Sinks) == 0 {
		return []Sink{NewStdoutSink(stdout)}, nil
	}
	out := make([]Sink, 0, len(cfg.Sinks))
	for i, sc := range cfg.Sinks {
		switch sc.Type {
		case "stdout":
			out = append(out, NewStdoutSink(stdout))
		case "webhook":
			out = append(out, NewWebhookSink(sc.URL, logger))
		default:
			return nil, fmt.Errorf("chatenrich: sink %d: unknown type %q", i, sc.Type)
		}
	}
	return out, nil
}
