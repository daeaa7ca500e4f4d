package query

import (
	"cmp"
	"iter"
	"slices"

	"github.com/roach88/workgraph/internal/model"
)

// Source is anything that can enumerate nodes: the live store, a snapshot
// or a test fixture.
type Source interface {
	All() iter.Seq[model.Node]
}

// Run returns every node in src matching q, sorted by id.
// It scans the whole source once. No match is an empty result, not an error.
func Run(src Source, q Query) []model.Node {
	var out []model.Node
	for n := range src.All() {
		if q.Match(n) {
			out = append(out, n)
		}
	}
	slices.SortFunc(out, func(a, b model.Node) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Select parses selector and runs it against src.
func Select(src Source, selector string) ([]model.Node, error) {
	q, err := Parse(selector)
	if err != nil {
		return nil, err
	}
	return Run(src, q), nil
}

// Count returns how many nodes in src match q.
func Count(src Source, q Query) int {
	n := 0
	for node := range src.All() {
		if q.Match(node) {
			n++
		}
	}
	return n
}
