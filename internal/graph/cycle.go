package graph

import (
	"cmp"
	"slices"

	"github.com/roach88/workgraph/internal/model"
)

// cycles finds dependency cycles with Tarjan's algorithm. When members is
// non-nil only those nodes and the edges between them are considered.
func (g *Graph) cycles(members map[string]bool) [][]string {
	in := func(id string) bool { return members == nil || members[id] }

	deps := func(id string) []string {
		var out []string
		for next := range g.neighbors(id, model.EdgeBlockedBy) {
			if in(next) {
				out = append(out, next)
			}
		}
		return out
	}

	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps(v) {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, id := range g.ids {
		if !in(id) {
			continue
		}
		if _, visited := indices[id]; !visited {
			strongConnect(id)
		}
	}

	var out [][]string
	for _, scc := range sccs {
		if len(scc) == 1 && !slices.Contains(deps(scc[0]), scc[0]) {
			continue
		}
		out = append(out, cyclePath(scc, deps))
	}
	slices.SortFunc(out, func(a, b []string) int { return cmp.Compare(a[0], b[0]) })
	return out
}

// cyclePath walks a strongly connected component from its smallest id
// back to itself. The walk is a shortest cycle through that id.
func cyclePath(scc []string, deps func(string) []string) []string {
	set := make(map[string]bool, len(scc))
	for _, id := range scc {
		set[id] = true
	}
	start := slices.Min(scc)

	parent := map[string]string{}
	queue := []string{start}
	seen := map[string]bool{start: true}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, next := range deps(cur) {
			if !set[next] {
				continue
			}
			if next == start {
				path := []string{start}
				for at := cur; at != start; at = parent[at] {
					path = append(path, at)
				}
				path = append(path, start)
				slices.Reverse(path[1 : len(path)-1])
				return path
			}
			if seen[next] {
				continue
			}
			seen[next] = true
			parent[next] = cur
			queue = append(queue, next)
		}
	}
	return []string{start, start}
}
