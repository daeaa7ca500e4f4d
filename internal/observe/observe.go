// Package observe wires logging, tracing and metrics for workgraph.
//
// Components take a *bolt.Logger through their options and fall back to
// Discard. Spans and counters go through the global OpenTelemetry
// providers, which are no-ops unless the host process installs an SDK.
package observe

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("workgraph")

// Observer handles logging and tracing.
type Observer struct {
	log *bolt.Logger
}

// New creates an Observer with console output at the given level
// ("debug", "info", "warn" or "error").
func New(out io.Writer, level string) (*Observer, error) {
	l := bolt.New(bolt.NewConsoleHandler(out))
	if err := setLevel(l, level); err != nil {
		return nil, err
	}
	return &Observer{log: l}, nil
}

// NewJSON creates an Observer with JSON output at the given level.
func NewJSON(out io.Writer, level string) (*Observer, error) {
	l := bolt.New(bolt.NewJSONHandler(out))
	if err := setLevel(l, level); err != nil {
		return nil, err
	}
	return &Observer{log: l}, nil
}

func setLevel(l *bolt.Logger, level string) error {
	switch strings.ToLower(level) {
	case "debug":
		l.SetLevel(bolt.DEBUG)
	case "info", "":
		l.SetLevel(bolt.INFO)
	case "warn", "warning":
		l.SetLevel(bolt.WARN)
	case "error":
		l.SetLevel(bolt.ERROR)
	default:
		return fmt.Errorf("unknown log level %q", level)
	}
	return nil
}

// Log returns the underlying logger.
func (o *Observer) Log() *bolt.Logger {
	return o.log
}

// StartSpan starts a new OTel span.
func (o *Observer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return StartSpan(ctx, name)
}

// Close flushes buffered output. Nothing is buffered today.
func (o *Observer) Close() error {
	return nil
}

// StartSpan starts a span on the workgraph tracer.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name)
}

// Discard returns a logger that drops everything. Used as the default
// when a component is given no logger.
func Discard() *bolt.Logger {
	l := bolt.New(bolt.NewJSONHandler(io.Discard))
	l.SetLevel(bolt.ERROR)
	return l
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l *bolt.Logger) *bolt.Logger {
	if l == nil {
		return Discard()
	}
	return l
}
