// Package attribution assigns events to the work item they most likely
// belong to and scores how confident that assignment is.
//
// Attribution is annotation, never a gate: every event is recorded, and a
// drift score above the configured threshold only marks it low-confidence.
// The session and agent are always passed in explicitly as an Actor.
package attribution

import (
	"cmp"
	"context"
	"iter"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/felixgeelhaar/bolt/v3"
	"go.opentelemetry.io/otel/attribute"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/observe"
	"github.com/roach88/workgraph/internal/query"
)

// Nodes is the read side of the node store.
type Nodes interface {
	All() iter.Seq[model.Node]
	Get(id string) (model.Node, bool)
}

// History supplies a session's recent events.
type History interface {
	Recent(session string, n int) ([]eventlog.Event, error)
}

// Actor identifies who produced an event.
type Actor struct {
	SessionID string
	Agent     string
}

// Reason names the rule that chose the node.
type Reason string

const (
	ReasonExplicit    Reason = "explicit"
	ReasonScope       Reason = "scope"
	ReasonPlaceholder Reason = "placeholder"
	ReasonRecent      Reason = "recent"
	ReasonNone        Reason = "none"
)

// Result is one attribution decision.
type Result struct {
	NodeID        string  `json:"node_id,omitempty"`
	Reason        Reason  `json:"reason"`
	Drift         float64 `json:"drift"`
	LowConfidence bool    `json:"low_confidence"`
}

// Attributed reports whether a node was chosen.
func (r Result) Attributed() bool { return r.NodeID != "" }

// Engine attributes events against a node source and event history.
type Engine struct {
	nodes   Nodes
	history History
	cfg     Config
	clock   model.Clock
	log     *bolt.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(l *bolt.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithClock sets the clock used for events that carry no timestamp.
func WithClock(c model.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// New creates an Engine. A zero cfg means DefaultConfig.
func New(nodes Nodes, history History, cfg Config, opts ...Option) *Engine {
	e := &Engine{nodes: nodes, history: history, cfg: cfg.withDefaults(), clock: model.SystemClock{}}
	for _, opt := range opts {
		opt(e)
	}
	e.log = observe.OrDiscard(e.log)
	return e
}

// Config returns the effective configuration.
func (e *Engine) Config() Config { return e.cfg }

func (e *Engine) now() time.Time { return e.clock.Now() }

var inProgress = query.Query{Terms: []query.Predicate{
	query.Equals{Attr: query.AttrStatus, Value: ir.String(model.StatusInProgress)},
}}

// Attribute picks a node for ev. Rules apply in order:
//  1. an explicit attributed node id that exists
//  2. an in-progress node whose scope matches one of the event's paths
//  3. the session's active auto-generated placeholder
//  4. the session's most recently started in-progress node, with drift
//     from idle time and repeated identical calls
//
// Ties within a rule go to the most recently updated node. The only error
// is ctx being done.
func (e *Engine) Attribute(ctx context.Context, ev eventlog.Event, actor Actor) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	res := e.choose(ev, actor)
	res.LowConfidence = res.Attributed() && res.Drift > e.cfg.Threshold
	if res.LowConfidence {
		observe.Inc(ctx, observe.Metrics().LowConfidence, attribute.String("reason", string(res.Reason)))
	}
	e.log.Debug().
		Str("session", actor.SessionID).
		Str("node", res.NodeID).
		Str("reason", string(res.Reason)).
		Msg("event attributed")
	return res, nil
}

func (e *Engine) choose(ev eventlog.Event, actor Actor) Result {
	if id := ev.AttributedNodeID; id != "" {
		if _, ok := e.nodes.Get(id); ok {
			return Result{NodeID: id, Reason: ReasonExplicit}
		}
		e.log.Debug().Str("node", id).Msg("explicit attribution target missing")
	}

	active := query.Run(e.nodes, inProgress)

	var (
		scoped       []model.Node
		placeholders []model.Node
		work         []model.Node
		scopedActive bool
	)
	for _, n := range active {
		w, ok := n.Work()
		if !ok {
			continue
		}
		if w.IsPlaceholder() {
			if w.SessionID == actor.SessionID {
				placeholders = append(placeholders, n)
			}
			continue
		}
		work = append(work, n)
		if len(w.Scope) > 0 {
			scopedActive = true
			if e.inScope(w.Scope, ev.FilePaths) {
				scoped = append(scoped, n)
			}
		}
	}

	if n, ok := mostRecentlyUpdated(scoped); ok {
		return Result{NodeID: n.ID, Reason: ReasonScope}
	}

	if n, ok := mostRecentlyUpdated(placeholders); ok {
		drift := 0.0
		if scopedActive && len(ev.FilePaths) > 0 {
			drift = e.cfg.ScopeMissDrift
		}
		return Result{NodeID: n.ID, Reason: ReasonPlaceholder, Drift: drift}
	}

	if n, ok := e.mostRecentlyStarted(work, actor.SessionID); ok {
		return Result{NodeID: n.ID, Reason: ReasonRecent, Drift: e.drift(ev, actor, n)}
	}

	return Result{Reason: ReasonNone}
}

func (e *Engine) inScope(patterns, paths []string) bool {
	for _, p := range paths {
		p = normalizePath(p)
		for _, pattern := range patterns {
			match, err := doublestar.Match(pattern, p)
			if err != nil {
				e.log.Debug().Str("pattern", pattern).Err(err).Msg("bad scope pattern")
				continue
			}
			if match {
				return true
			}
		}
	}
	return false
}

// normalizePath turns an event path into the slash-separated relative form
// scope patterns are written against.
func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = path.Clean(p)
	return strings.TrimPrefix(p, "./")
}

// mostRecentlyUpdated picks the latest UpdatedAt, then the smallest id.
func mostRecentlyUpdated(nodes []model.Node) (model.Node, bool) {
	if len(nodes) == 0 {
		return model.Node{}, false
	}
	return slices.MinFunc(nodes, func(a, b model.Node) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}), true
}

// mostRecentlyStarted prefers nodes claimed by session, then unclaimed
// nodes. Nodes held by another session are never chosen.
func (e *Engine) mostRecentlyStarted(nodes []model.Node, session string) (model.Node, bool) {
	var own, unclaimed []model.Node
	for _, n := range nodes {
		w, _ := n.Work()
		switch w.SessionID {
		case session:
			own = append(own, n)
		case "":
			unclaimed = append(unclaimed, n)
		}
	}
	pool := own
	if len(pool) == 0 {
		pool = unclaimed
	}
	if len(pool) == 0 {
		return model.Node{}, false
	}
	return slices.MinFunc(pool, func(a, b model.Node) int {
		if c := startedAt(b).Compare(startedAt(a)); c != 0 {
			return c
		}
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	}), true
}
