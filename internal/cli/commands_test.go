package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/graph"
)

func TestQueryCommand(t *testing.T) {
	root := seedWorkspace(t)

	res := decodeData[QueryResult](t, runCLI(t, root, "--format", "json", "query", "feature[status=todo]"))
	assert.Equal(t, 3, res.Count)
	ids := make([]string, 0, len(res.Nodes))
	for _, n := range res.Nodes {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"build", "design", "test"}, ids)

	res = decodeData[QueryResult](t, runCLI(t, root, "--format", "json", "query", "bug"))
	assert.Zero(t, res.Count, "no matches is not an error")
	assert.NotNil(t, res.Nodes)

	text := runCLI(t, root, "query", "*[status=in-progress]")
	require.NoError(t, text.err)
	assert.Contains(t, text.stdout, "feat-auth")
	assert.Contains(t, text.stdout, "STATUS")
}

func TestQueryCommand_BadSelector(t *testing.T) {
	r := runCLI(t, seedWorkspace(t), "--format", "json", "query", "feature[status=")
	e := decodeError(t, r)
	assert.Equal(t, ErrCodeSelector, e.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestShowCommand(t *testing.T) {
	root := seedWorkspace(t)

	res := decodeData[ShowResult](t, runCLI(t, root, "--format", "json", "show", "design"))
	assert.Equal(t, "design", res.ID)
	require.Len(t, res.Edges, 1)
	assert.Equal(t, EdgeOut{Kind: "blocks", Target: "build", Relationship: "blocks", Inferred: true}, res.Edges[0])

	r := runCLI(t, root, "--format", "json", "show", "nope")
	e := decodeError(t, r)
	assert.Equal(t, "NOT_FOUND", e.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestGraphCommands(t *testing.T) {
	root := seedWorkspace(t)

	deps := decodeData[IDList](t, runCLI(t, root, "--format", "json", "deps", "test"))
	assert.Equal(t, []string{"build", "design"}, deps.IDs)

	p := decodeData[PathResult](t, runCLI(t, root, "--format", "json", "path", "design", "test", "--kind", "blocks"))
	assert.True(t, p.Found)
	assert.Equal(t, []string{"design", "build", "test"}, p.Path)

	p = decodeData[PathResult](t, runCLI(t, root, "--format", "json", "path", "design", "test"))
	assert.False(t, p.Found, "stored edges only point from test towards design")
	assert.Empty(t, p.Path)

	topo := decodeData[IDList](t, runCLI(t, root, "--format", "json", "topo"))
	pos := map[string]int{}
	for i, id := range topo.IDs {
		pos[id] = i
	}
	assert.Len(t, topo.IDs, 4)
	assert.Less(t, pos["design"], pos["build"])
	assert.Less(t, pos["build"], pos["test"])

	b := decodeData[BottlenecksResult](t, runCLI(t, root, "--format", "json", "bottlenecks"))
	assert.Equal(t, []graph.Score{{ID: "design", Blocked: 2}, {ID: "build", Blocked: 1}}, b.Scores)

	c := decodeData[CyclesResult](t, runCLI(t, root, "--format", "json", "cycles"))
	assert.Zero(t, c.Count)
}

func TestGraphCommands_Cycle(t *testing.T) {
	root := seedWorkspace(t)
	addCycle(t, root)

	r := runCLI(t, root, "--format", "json", "deps", "cyc-a")
	e := decodeError(t, r)
	assert.Equal(t, "CYCLE_DETECTED", e.Code)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Equal(t, map[string]any{"path": []any{"cyc-a", "cyc-b", "cyc-a"}}, e.Details)

	r = runCLI(t, root, "topo")
	require.Error(t, r.err)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))
	assert.Contains(t, r.stdout, "Error [CYCLE_DETECTED]")

	c := decodeData[CyclesResult](t, runCLI(t, root, "--format", "json", "cycles"))
	assert.Equal(t, [][]string{{"cyc-a", "cyc-b", "cyc-a"}}, c.Cycles)

	deps := decodeData[IDList](t, runCLI(t, root, "--format", "json", "deps", "test"))
	assert.Equal(t, []string{"build", "design"}, deps.IDs, "cycles elsewhere do not affect acyclic deps")
}

func TestEventsAndIndex(t *testing.T) {
	root := seedWorkspace(t)

	hit := decodeData[AppendResult](t, runCLI(t, root, "--format", "json", "events", "append",
		"--session", "sess-1", "--agent", "claude", "--tool", "Edit", "--file", "src/auth/login.py"))
	assert.Equal(t, "feat-auth", hit.NodeID)
	assert.Zero(t, hit.Drift)
	assert.Equal(t, "sess-1.jsonl", hit.File)
	assert.NotEmpty(t, hit.EventID)

	decodeData[AppendResult](t, runCLI(t, root, "--format", "json", "events", "append",
		"--session", "sess-1", "--tool", "Bash", "--summary", "go test", "--failed"))
	decodeData[AppendResult](t, runCLI(t, root, "--format", "json", "events", "append",
		"--session", "sess-2", "--tool", "Read", "--node", "design"))

	r := runCLI(t, root, "--format", "json", "index", "query")
	e := decodeError(t, r)
	assert.Equal(t, "INDEX_STALE", e.Code)
	assert.Equal(t, ExitFailure, GetExitCode(r.err))

	rebuilt := decodeData[RebuildResult](t, runCLI(t, root, "--format", "json", "index", "rebuild"))
	assert.Equal(t, 3, rebuilt.Events)
	assert.Equal(t, 2, rebuilt.Files)
	assert.Len(t, rebuilt.Digest, 64)

	again := decodeData[RebuildResult](t, runCLI(t, root, "--format", "json", "index", "rebuild"))
	assert.Equal(t, rebuilt.Digest, again.Digest)

	st := decodeData[StatusResult](t, runCLI(t, root, "--format", "json", "index", "status"))
	assert.True(t, st.Built)
	assert.False(t, st.Stale)
	assert.Equal(t, 3, st.Events)

	all := decodeData[EventsResult](t, runCLI(t, root, "--format", "json", "index", "query"))
	assert.Equal(t, 3, all.Count)

	failed := decodeData[EventsResult](t, runCLI(t, root, "--format", "json", "index", "query", "--failed"))
	require.Equal(t, 1, failed.Count)
	assert.Equal(t, "Bash", failed.Events[0].Tool)

	byNode := decodeData[EventsResult](t, runCLI(t, root, "--format", "json", "index", "query", "--node", "design"))
	require.Equal(t, 1, byNode.Count)
	assert.Equal(t, "sess-2", byNode.Events[0].SessionID)

	byFile := decodeData[EventsResult](t, runCLI(t, root, "--format", "json", "index", "query", "--file", "src/auth/*"))
	assert.Equal(t, 1, byFile.Count)

	stats := decodeData[StatsResult](t, runCLI(t, root, "--format", "json", "index", "stats"))
	require.Len(t, stats.Sessions, 2)
	assert.Equal(t, "sess-1", stats.Sessions[0].SessionID)
	assert.Equal(t, 2, stats.Sessions[0].Events)
	assert.Equal(t, 1, stats.Sessions[0].Failures)
	assert.NotEmpty(t, stats.Hours)

	text := runCLI(t, root, "index", "query", "--session", "sess-1")
	require.NoError(t, text.err)
	assert.Contains(t, text.stdout, "feat-auth")
}

func TestEventsAppend_InvalidSession(t *testing.T) {
	r := runCLI(t, seedWorkspace(t), "--format", "json", "events", "append", "--session", "bad/session", "--tool", "Edit")
	e := decodeError(t, r)
	assert.Equal(t, ErrCodeUsage, e.Code)
	assert.Equal(t, ExitCommandError, GetExitCode(r.err))
}

func TestIndexQuery_BadTime(t *testing.T) {
	r := runCLI(t, seedWorkspace(t), "--format", "json", "index", "query", "--since", "yesterday")
	e := decodeError(t, r)
	assert.Equal(t, ErrCodeUsage, e.Code)
}
