package model

import (
	"iter"
	"slices"
)

// Reserved edge kinds. Any other non-empty kind is allowed.
const (
	EdgeBlocks     = "blocks"
	EdgeBlockedBy  = "blocked_by"
	EdgeRelated    = "related"
	EdgeImplements = "implements"
)

// InverseKind returns the kind that a traversal may infer in the reverse
// direction. Only blocks and blocked_by have inverses.
func InverseKind(kind string) (string, bool) {
	switch kind {
	case EdgeBlocks:
		return EdgeBlockedBy, true
	case EdgeBlockedBy:
		return EdgeBlocks, true
	default:
		return "", false
	}
}

// Edge is a directed reference stored on its source node.
type Edge struct {
	Target       string
	Relationship string
	Metadata     []Attr
}

func (e Edge) equal(o Edge) bool {
	return e.Target == o.Target && e.Relationship == o.Relationship && slices.Equal(e.Metadata, o.Metadata)
}

// Edges maps edge kinds to ordered edge lists. Kinds keep the order in
// which they were first added. The zero value is empty and ready to use.
type Edges struct {
	kinds []string
	refs  map[string][]Edge
}

// Add appends e under kind. An empty Relationship defaults to kind.
func (es *Edges) Add(kind string, e Edge) {
	if e.Relationship == "" {
		e.Relationship = kind
	}
	if es.refs == nil {
		es.refs = make(map[string][]Edge)
	}
	if _, ok := es.refs[kind]; !ok {
		es.kinds = append(es.kinds, kind)
	}
	es.refs[kind] = append(es.refs[kind], e)
}

// Link is shorthand for Add(kind, Edge{Target: target}).
func (es *Edges) Link(kind, target string) {
	es.Add(kind, Edge{Target: target})
}

// Remove deletes every edge of kind pointing at target and reports whether
// anything was removed. A kind left empty is dropped.
func (es *Edges) Remove(kind, target string) bool {
	list, ok := es.refs[kind]
	if !ok {
		return false
	}
	kept := slices.DeleteFunc(slices.Clone(list), func(e Edge) bool { return e.Target == target })
	if len(kept) == len(list) {
		return false
	}
	if len(kept) == 0 {
		delete(es.refs, kind)
		es.kinds = slices.DeleteFunc(es.kinds, func(k string) bool { return k == kind })
	} else {
		es.refs[kind] = kept
	}
	return true
}

// Kinds returns the edge kinds in insertion order.
func (es Edges) Kinds() []string {
	return slices.Clone(es.kinds)
}

// Get returns a copy of the edges of kind.
func (es Edges) Get(kind string) []Edge {
	return cloneEdgeList(es.refs[kind])
}

// Targets returns the target ids of kind in order.
func (es Edges) Targets(kind string) []string {
	list := es.refs[kind]
	out := make([]string, len(list))
	for i, e := range list {
		out[i] = e.Target
	}
	return out
}

// Len returns the total number of edges across all kinds.
func (es Edges) Len() int {
	n := 0
	for _, list := range es.refs {
		n += len(list)
	}
	return n
}

// All yields (kind, edge) pairs, kinds in insertion order and edges in
// list order.
func (es Edges) All() iter.Seq2[string, Edge] {
	return func(yield func(string, Edge) bool) {
		for _, k := range es.kinds {
			for _, e := range es.refs[k] {
				if !yield(k, e) {
					return
				}
			}
		}
	}
}

// Clone returns a deep copy.
func (es Edges) Clone() Edges {
	if len(es.kinds) == 0 {
		return Edges{}
	}
	out := Edges{kinds: slices.Clone(es.kinds), refs: make(map[string][]Edge, len(es.refs))}
	for k, list := range es.refs {
		out.refs[k] = cloneEdgeList(list)
	}
	return out
}

// Equal compares kinds, order and edge contents.
func (es Edges) Equal(o Edges) bool {
	if !slices.Equal(es.kinds, o.kinds) {
		return false
	}
	for _, k := range es.kinds {
		if !slices.EqualFunc(es.refs[k], o.refs[k], Edge.equal) {
			return false
		}
	}
	return true
}

func cloneEdgeList(list []Edge) []Edge {
	if list == nil {
		return nil
	}
	out := make([]Edge, len(list))
	for i, e := range list {
		e.Metadata = slices.Clone(e.Metadata)
		out[i] = e
	}
	return out
}
