package nodestore

import (
	"iter"
	"slices"
	"time"

	"github.com/roach88/workgraph/internal/model"
)

// Snapshot is an immutable point-in-time copy of every node.
//
// It exposes only read methods. Nodes it returns are copies, so callers
// cannot reach its contents.
type Snapshot struct {
	nodes   map[string]model.Node
	ids     []string
	takenAt time.Time
}

// Snapshot deep-copies the current node set.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	nodes := make(map[string]model.Node, len(s.nodes))
	for id, n := range s.nodes {
		nodes[id] = n.Clone()
	}
	return &Snapshot{
		nodes:   nodes,
		ids:     sortedIDs(nodes),
		takenAt: s.clock.Now(),
	}
}

// TakenAt is the store clock reading when the snapshot was taken.
func (sn *Snapshot) TakenAt() time.Time {
	return sn.takenAt
}

// Get returns a copy of the node with id.
func (sn *Snapshot) Get(id string) (model.Node, bool) {
	n, ok := sn.nodes[id]
	if !ok {
		return model.Node{}, false
	}
	return n.Clone(), true
}

// Has reports whether id is in the snapshot.
func (sn *Snapshot) Has(id string) bool {
	_, ok := sn.nodes[id]
	return ok
}

// Len returns the number of nodes.
func (sn *Snapshot) Len() int {
	return len(sn.ids)
}

// IDs returns the ids in ascending order.
func (sn *Snapshot) IDs() []string {
	return slices.Clone(sn.ids)
}

// All yields copies of every node in id order.
func (sn *Snapshot) All() iter.Seq[model.Node] {
	return func(yield func(model.Node) bool) {
		for _, id := range sn.ids {
			if !yield(sn.nodes[id].Clone()) {
				return
			}
		}
	}
}
