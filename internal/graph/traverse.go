package graph

import (
	"cmp"
	"slices"

	"github.com/roach88/workgraph/internal/model"
)

// Reachable returns every id reachable from start through edges of kind,
// in breadth-first order. start itself is not included unless a cycle
// leads back to it. An unknown start yields an empty result.
func (g *Graph) Reachable(start, kind string) []string {
	if !g.has[start] {
		return nil
	}
	var (
		out     []string
		visited = map[string]bool{}
		queue   = []string{start}
	)
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.neighbors(cur, kind) {
			if visited[next] {
				continue
			}
			visited[next] = true
			out = append(out, next)
			queue = append(queue, next)
		}
	}
	return out
}

// ShortestPath returns an unweighted shortest path from -> to following
// edges of kind, endpoints included. Ties go to the path whose edges come
// first in insertion order. ok is false when no path exists.
func (g *Graph) ShortestPath(from, to, kind string) (path []string, ok bool) {
	if !g.has[from] || !g.has[to] {
		return nil, false
	}
	if from == to {
		return []string{from}, true
	}

	parent := map[string]string{from: ""}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for next := range g.neighbors(cur, kind) {
			if _, seen := parent[next]; seen {
				continue
			}
			parent[next] = cur
			if next == to {
				for at := to; at != ""; at = parent[at] {
					path = append(path, at)
				}
				slices.Reverse(path)
				return path, true
			}
			queue = append(queue, next)
		}
	}
	return nil, false
}

// TransitiveDeps returns everything id depends on through blocked_by edges
// (stored or inferred from blocks), in breadth-first order.
//
// The traversal always terminates. When the dependency subgraph it covers
// contains a cycle, the closure is still returned together with a
// CycleDetected error naming one cycle.
func (g *Graph) TransitiveDeps(id string) ([]string, error) {
	deps := g.Reachable(id, model.EdgeBlockedBy)

	members := make(map[string]bool, len(deps)+1)
	members[id] = true
	for _, d := range deps {
		members[d] = true
	}
	if cycles := g.cycles(members); len(cycles) > 0 {
		return deps, model.NewCycle(cycles[0])
	}
	return deps, nil
}

// Cycles returns every dependency cycle as a closed path
// [a, b, ..., a]. Each cycle starts at its smallest id; cycles are
// ordered by that id.
func (g *Graph) Cycles() [][]string {
	return g.cycles(nil)
}

// TopologicalOrder orders every node so that dependencies come before the
// nodes blocked by them. Ties are broken by id. A cycle makes the order
// undefined and returns CycleDetected.
func (g *Graph) TopologicalOrder() ([]string, error) {
	if cycles := g.Cycles(); len(cycles) > 0 {
		return nil, model.NewCycle(cycles[0])
	}

	// indegree counts distinct unresolved dependencies.
	indegree := make(map[string]int, len(g.ids))
	dependents := make(map[string][]string)
	for _, id := range g.ids {
		seen := map[string]bool{}
		for dep := range g.neighbors(id, model.EdgeBlockedBy) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			indegree[id]++
			dependents[dep] = append(dependents[dep], id)
		}
	}

	var ready []string
	for _, id := range g.ids {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	order := make([]string, 0, len(g.ids))
	for len(ready) > 0 {
		cur := ready[0]
		ready = ready[1:]
		order = append(order, cur)
		for _, next := range dependents[cur] {
			indegree[next]--
			if indegree[next] == 0 {
				i, _ := slices.BinarySearch(ready, next)
				ready = slices.Insert(ready, i, next)
			}
		}
	}
	return order, nil
}

// Score is a node's bottleneck weight.
type Score struct {
	ID string `json:"id"`
	// Blocked is the number of nodes transitively blocked by ID.
	Blocked int `json:"blocked"`
}

// Bottlenecks ranks nodes by how many others they transitively block,
// highest first, ties by id. Nodes blocking nothing are left out.
// limit <= 0 returns every ranked node.
func (g *Graph) Bottlenecks(limit int) []Score {
	var scores []Score
	for _, id := range g.ids {
		n := 0
		for _, r := range g.Reachable(id, model.EdgeBlocks) {
			if r != id {
				n++
			}
		}
		if n > 0 {
			scores = append(scores, Score{ID: id, Blocked: n})
		}
	}
	slices.SortFunc(scores, func(a, b Score) int {
		if c := cmp.Compare(b.Blocked, a.Blocked); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	if limit > 0 && len(scores) > limit {
		scores = scores[:limit]
	}
	return scores
}
