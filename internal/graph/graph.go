// Package graph runs traversal and dependency analysis over node edges.
//
// A Graph is built once from a node source and is immutable afterwards, so
// it can be shared between goroutines. Stored edges keep their insertion
// order; for every stored blocks or blocked_by edge the inverse edge is
// inferred on the target. Edges pointing at ids that are not in the source
// are kept for reporting but never traversed.
package graph

import (
	"cmp"
	"iter"
	"slices"

	"github.com/roach88/workgraph/internal/model"
)

// AnyKind follows every stored edge regardless of kind. Inferred inverse
// edges are only followed when their kind is requested by name.
const AnyKind = ""

// Source enumerates the nodes a graph is built from.
type Source interface {
	All() iter.Seq[model.Node]
}

// arc is one outgoing adjacency entry.
type arc struct {
	kind     string
	to       string
	edge     model.Edge
	inferred bool
}

// Graph is an adjacency view over a node set.
type Graph struct {
	ids []string // sorted
	has map[string]bool
	out map[string][]arc
}

// Build reads every node from src and indexes its edges.
func Build(src Source) *Graph {
	g := &Graph{
		has: make(map[string]bool),
		out: make(map[string][]arc),
	}

	var nodes []model.Node
	for n := range src.All() {
		if g.has[n.ID] {
			continue
		}
		g.has[n.ID] = true
		g.ids = append(g.ids, n.ID)
		nodes = append(nodes, n)
	}
	slices.Sort(g.ids)
	slices.SortFunc(nodes, func(a, b model.Node) int { return cmp.Compare(a.ID, b.ID) })

	for _, n := range nodes {
		for kind, e := range n.Edges.All() {
			g.out[n.ID] = append(g.out[n.ID], arc{kind: kind, to: e.Target, edge: e})
		}
	}

	// Inverse edges go after every stored edge so stored order wins ties.
	for _, n := range nodes {
		for kind, e := range n.Edges.All() {
			inv, ok := model.InverseKind(kind)
			if !ok || !g.has[e.Target] || g.hasArc(e.Target, inv, n.ID) {
				continue
			}
			g.out[e.Target] = append(g.out[e.Target], arc{
				kind:     inv,
				to:       n.ID,
				edge:     model.Edge{Target: n.ID, Relationship: inv},
				inferred: true,
			})
		}
	}

	return g
}

func (g *Graph) hasArc(from, kind, to string) bool {
	for _, a := range g.out[from] {
		if a.kind == kind && a.to == to {
			return true
		}
	}
	return false
}

// Has reports whether id is a node of the graph.
func (g *Graph) Has(id string) bool { return g.has[id] }

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.ids) }

// IDs returns the node ids in sorted order.
func (g *Graph) IDs() []string { return slices.Clone(g.ids) }

// neighbors yields targets of id's arcs matching kind that exist in the
// graph, in adjacency order.
func (g *Graph) neighbors(id, kind string) iter.Seq[string] {
	return func(yield func(string) bool) {
		for _, a := range g.out[id] {
			if kind == AnyKind {
				if a.inferred {
					continue
				}
			} else if a.kind != kind {
				continue
			}
			if !g.has[a.to] {
				continue
			}
			if !yield(a.to) {
				return
			}
		}
	}
}

// EdgeView is one edge as seen from its source node.
type EdgeView struct {
	Kind string
	model.Edge
	// Inferred marks an inverse of a blocks/blocked_by edge stored on the
	// other node.
	Inferred bool
	// Missing marks a target id that is not in the graph.
	Missing bool
}

// EdgesOf lists the stored and inferred edges of id in adjacency order.
// Unknown ids have no edges.
func (g *Graph) EdgesOf(id string) []EdgeView {
	arcs := g.out[id]
	if len(arcs) == 0 {
		return nil
	}
	views := make([]EdgeView, 0, len(arcs))
	for _, a := range arcs {
		views = append(views, EdgeView{
			Kind:     a.kind,
			Edge:     a.edge,
			Inferred: a.inferred,
			Missing:  !g.has[a.to],
		})
	}
	return views
}

// DanglingEdge is a stored edge whose target is not in the graph.
type DanglingEdge struct {
	Source string
	Kind   string
	Target string
}

// Dangling lists every edge whose target is missing, ordered by source id
// then edge order.
func (g *Graph) Dangling() []DanglingEdge {
	var out []DanglingEdge
	for _, id := range g.ids {
		for _, a := range g.out[id] {
			if !g.has[a.to] {
				out = append(out, DanglingEdge{Source: id, Kind: a.kind, Target: a.to})
			}
		}
	}
	return out
}
