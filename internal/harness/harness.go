package harness

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/felixgeelhaar/bolt/v3"

	"github.com/roach88/workgraph/internal/attribution"
	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/nodestore"
	"github.com/roach88/workgraph/internal/observe"
	"github.com/roach88/workgraph/internal/testutil"
)

// Harness holds one scenario's workspace.
type Harness struct {
	clock    *testutil.FakeClock
	recorder *attribution.Recorder
	log      *bolt.Logger
}

// Option configures a run.
type Option func(*Harness)

// WithLogger routes workspace logs to l. Runs are silent by default.
func WithLogger(l *bolt.Logger) Option {
	return func(h *Harness) { h.log = l }
}

// Run executes s in dir, which should be empty, and returns the result.
// A failed expectation or assertion is reported in the result; the error
// is reserved for a workspace that cannot be set up or written.
func Run(ctx context.Context, dir string, s *Scenario, opts ...Option) (*Result, error) {
	h := &Harness{clock: testutil.NewFakeClock(testutil.Epoch)}
	for _, opt := range opts {
		opt(h)
	}
	h.log = observe.OrDiscard(h.log)

	if err := h.setup(ctx, dir, s); err != nil {
		return nil, err
	}

	result := NewResult()
	if err := h.executeFlow(ctx, s.Flow, result); err != nil {
		return nil, err
	}
	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}

func (h *Harness) setup(ctx context.Context, dir string, s *Scenario) error {
	store, err := nodestore.Open(ctx, dir,
		nodestore.WithClock(h.clock),
		nodestore.WithLogger(h.log),
	)
	if err != nil {
		return fmt.Errorf("failed to open node store: %w", err)
	}
	for _, ns := range s.Nodes {
		h.clock.Set(testutil.Epoch.Add(ns.Updated))
		if err := store.Add(ns.node(), false); err != nil {
			return fmt.Errorf("seed node %s: %w", ns.ID, err)
		}
	}

	events, err := eventlog.Open(filepath.Join(dir, "events"),
		eventlog.WithClock(h.clock),
		eventlog.WithIDGenerator(testutil.NewSequenceGenerator("ev")),
		eventlog.WithLogger(h.log),
	)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}

	engine := attribution.New(store, events, s.Config,
		attribution.WithClock(h.clock),
		attribution.WithLogger(h.log),
	)
	h.recorder = attribution.NewRecorder(engine, events)
	return nil
}

func (h *Harness) executeFlow(ctx context.Context, flow []Step, result *Result) error {
	for i, step := range flow {
		h.clock.Set(testutil.Epoch.Add(step.At))
		ev := &eventlog.Event{
			Tool:             step.Tool,
			Summary:          step.Summary,
			Success:          !step.Failed,
			AttributedNodeID: step.Node,
			FilePaths:        step.Files,
		}
		res, err := h.recorder.Record(ctx, ev, attribution.Actor{SessionID: step.Session, Agent: step.Agent})
		if err != nil {
			return fmt.Errorf("flow[%d]: %w", i, err)
		}

		result.Trace = append(result.Trace, TraceEvent{
			Seq:           i + 1,
			EventID:       ev.EventID,
			Session:       ev.SessionID,
			Tool:          ev.Tool,
			Files:         ev.FilePaths,
			Node:          res.NodeID,
			Reason:        string(res.Reason),
			Drift:         res.Drift,
			LowConfidence: res.LowConfidence,
		})

		if exp := step.Expect; exp != nil {
			if res.NodeID != exp.Node {
				result.AddError(fmt.Sprintf("flow[%d]: expected node %q, got %q (%s)", i, exp.Node, res.NodeID, res.Reason))
			}
			if exp.Reason != "" && string(res.Reason) != exp.Reason {
				result.AddError(fmt.Sprintf("flow[%d]: expected reason %s, got %s", i, exp.Reason, res.Reason))
			}
		}
	}
	h.log.Debug().Int("steps", len(flow)).Msg("scenario flow recorded")
	return nil
}

func (ns NodeSeed) node() model.Node {
	if ns.Placeholder {
		return testutil.Placeholder(ns.ID, ns.Session)
	}
	n := testutil.InProgress(ns.ID, testutil.Epoch.Add(ns.Started), ns.Scope...)
	if ns.Status != "" {
		n.Status = ns.Status
	}
	w, _ := n.Work()
	w.SessionID = ns.Session
	n.Ext = w
	return n
}
