package attribution

import (
	"context"
	"fmt"

	"github.com/roach88/workgraph/internal/eventlog"
)

// Appender is the write side of the event log.
type Appender interface {
	Append(ctx context.Context, ev *eventlog.Event) error
}

// Recorder attributes events and then appends them.
type Recorder struct {
	engine *Engine
	log    Appender
}

// NewRecorder pairs an engine with the log it records into.
func NewRecorder(engine *Engine, log Appender) *Recorder {
	return &Recorder{engine: engine, log: log}
}

// Record fills ev's session and agent from actor when unset, attributes
// it and appends it. An event is recorded even when no node matches; only
// a failed append is an error.
func (r *Recorder) Record(ctx context.Context, ev *eventlog.Event, actor Actor) (Result, error) {
	if ev.SessionID == "" {
		ev.SessionID = actor.SessionID
	}
	if ev.Agent == "" {
		ev.Agent = actor.Agent
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = r.engine.now()
	}

	res, err := r.engine.Attribute(ctx, *ev, actor)
	if err != nil {
		return Result{}, err
	}
	ev.AttributedNodeID = res.NodeID
	ev.DriftScore = nil
	if res.Attributed() {
		ev.SetDrift(res.Drift)
	}
	ev.LowConfidence = res.LowConfidence

	if err := r.log.Append(ctx, ev); err != nil {
		return res, fmt.Errorf("record event: %w", err)
	}
	return res, nil
}
