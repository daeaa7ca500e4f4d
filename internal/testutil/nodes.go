package testutil

import (
	"iter"
	"slices"
	"time"

	"github.com/roach88/workgraph/internal/model"
)

// Feature returns a todo feature node with a work-item extension.
func Feature(id string) model.Node {
	return model.Node{
		ID:       id,
		Type:     model.TypeFeature,
		Title:    "Feature " + id,
		Status:   model.StatusTodo,
		Priority: model.PriorityMedium,
		Ext:      model.WorkItem{},
	}
}

// InProgress returns an in-progress feature scoped to patterns, started at
// startedAt.
func InProgress(id string, startedAt time.Time, patterns ...string) model.Node {
	n := Feature(id)
	n.Status = model.StatusInProgress
	n.Ext = model.WorkItem{StartedAt: startedAt, Scope: patterns}
	return n
}

// Placeholder returns an active auto-generated session-init node for
// session.
func Placeholder(id, session string) model.Node {
	return model.Node{
		ID:     id,
		Type:   model.TypeChore,
		Title:  "Session start " + session,
		Status: model.StatusInProgress,
		Ext: model.WorkItem{
			SessionID:     session,
			AutoGenerated: true,
			Subtype:       model.SubtypeSessionInit,
		},
	}
}

// BlockedBy adds blocked_by edges from n to each target.
func BlockedBy(n model.Node, targets ...string) model.Node {
	for _, t := range targets {
		n.Edges.Link(model.EdgeBlockedBy, t)
	}
	return n
}

// Blocks adds blocks edges from n to each target.
func Blocks(n model.Node, targets ...string) model.Node {
	for _, t := range targets {
		n.Edges.Link(model.EdgeBlocks, t)
	}
	return n
}

// MemSource is an in-memory node set for packages that read nodes through
// an All/Get interface. Nodes are yielded in id order.
type MemSource struct {
	nodes map[string]model.Node
}

// NewMemSource builds a source from nodes. Later duplicates win.
func NewMemSource(nodes ...model.Node) *MemSource {
	m := &MemSource{nodes: make(map[string]model.Node, len(nodes))}
	for _, n := range nodes {
		m.nodes[n.ID] = n.Clone()
	}
	return m
}

// Put adds or replaces a node.
func (m *MemSource) Put(n model.Node) {
	m.nodes[n.ID] = n.Clone()
}

// Get returns a copy of the node with id.
func (m *MemSource) Get(id string) (model.Node, bool) {
	n, ok := m.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return n.Clone(), true
}

// All yields copies of the nodes in id order.
func (m *MemSource) All() iter.Seq[model.Node] {
	ids := make([]string, 0, len(m.nodes))
	for id := range m.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return func(yield func(model.Node) bool) {
		for _, id := range ids {
			if !yield(m.nodes[id].Clone()) {
				return
			}
		}
	}
}
