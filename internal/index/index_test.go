package index

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/testutil"
)

type fixture struct {
	log   *eventlog.Log
	clock *testutil.FakeClock
	path  string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	clock := testutil.NewFakeClock(testutil.Epoch)
	log, err := eventlog.Open(filepath.Join(root, "events"),
		eventlog.WithClock(clock),
		eventlog.WithIDGenerator(testutil.NewSequenceGenerator("ev")),
	)
	require.NoError(t, err)
	return &fixture{log: log, clock: clock, path: filepath.Join(root, "index.db")}
}

func (f *fixture) open(t *testing.T, opts ...Option) *Index {
	t.Helper()
	ix, err := Open(f.path, f.log, append([]Option{WithClock(f.clock)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { ix.Close() })
	return ix
}

var sessions = []string{"sess-a", "sess-b", "sess-c"}

// appendEvents writes n events spread round-robin over three sessions.
func (f *fixture) appendEvents(t *testing.T, n int) {
	t.Helper()
	ctx := context.Background()
	for i := range n {
		f.clock.Advance(7 * time.Minute)
		ev := &eventlog.Event{
			SessionID: sessions[i%3],
			Agent:     fmt.Sprintf("agent-%d", i%2),
			Tool:      []string{"Edit", "Read", "Bash"}[i%3],
			Summary:   fmt.Sprintf("step %d", i),
			Success:   i%10 != 0,
			FilePaths: []string{fmt.Sprintf("src/pkg%d/file.go", i%4)},
		}
		if i%5 == 0 {
			ev.AttributedNodeID = "feat-login"
			ev.SetDrift(0.25)
		}
		if i%25 == 0 {
			ev.LowConfidence = true
		}
		require.NoError(t, f.log.Append(ctx, ev))
	}
}

func sessionTotals(t *testing.T, ix *Index) map[string]int {
	t.Helper()
	ctx := context.Background()
	out := map[string]int{}
	for _, s := range sessions {
		n, err := ix.Count(ctx, Filter{SessionID: s}, ReadOptions{})
		require.NoError(t, err)
		out[s] = n
	}
	return out
}

func TestRebuild_DeleteAndRecover(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 100)
	ctx := context.Background()

	ix := f.open(t)
	stats, err := ix.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 100, stats.Events)
	assert.Equal(t, 3, stats.Files)

	before := sessionTotals(t, ix)
	assert.Equal(t, map[string]int{"sess-a": 34, "sess-b": 33, "sess-c": 33}, before)
	digest, err := ix.Digest(ctx)
	require.NoError(t, err)

	require.NoError(t, ix.Close())
	require.NoError(t, Remove(f.path))

	fresh := f.open(t)
	_, err = fresh.Query(ctx, Filter{}, 0, ReadOptions{})
	assert.True(t, model.IsIndexStale(err), "a missing index is stale until rebuilt")

	_, err = fresh.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, sessionTotals(t, fresh))

	again, err := fresh.Digest(ctx)
	require.NoError(t, err)
	assert.Equal(t, digest, again)
}

func TestRebuild_Idempotent(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 30)
	ctx := context.Background()
	ix := f.open(t)

	_, err := ix.Rebuild(ctx)
	require.NoError(t, err)
	first, err := ix.Digest(ctx)
	require.NoError(t, err)

	f.clock.Advance(time.Hour)
	_, err = ix.Rebuild(ctx)
	require.NoError(t, err)
	second, err := ix.Digest(ctx)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 64)
}

func TestQuery_Filters(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 100)
	ctx := context.Background()
	ix := f.open(t)
	_, err := ix.Rebuild(ctx)
	require.NoError(t, err)

	yes, no := true, false

	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 100},
		{"agent", Filter{Agent: "agent-1"}, 50},
		{"tool", Filter{Tool: "Bash"}, 33},
		{"node", Filter{NodeID: "feat-login"}, 20},
		{"file glob", Filter{FilePath: "src/pkg0/*"}, 25},
		{"low confidence", Filter{LowConfidence: &yes}, 4},
		{"failures", Filter{Success: &no}, 10},
		{"session and tool", Filter{SessionID: "sess-a", Tool: "Edit"}, 34},
		{"since", Filter{Since: testutil.Epoch.Add(7 * time.Minute * 91)}, 10},
		{"until", Filter{Until: testutil.Epoch.Add(7*time.Minute*10 + time.Second)}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ix.Query(ctx, tt.filter, 0, ReadOptions{})
			require.NoError(t, err)
			assert.Len(t, got, tt.want)

			n, err := ix.Count(ctx, tt.filter, ReadOptions{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestQuery_OrderAndRoundTrip(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 10)
	ctx := context.Background()
	ix := f.open(t)
	_, err := ix.Rebuild(ctx)
	require.NoError(t, err)

	oldest, err := ix.Query(ctx, Filter{}, 3, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, oldest, 3)
	assert.Equal(t, "ev-0001", oldest[0].EventID)
	assert.True(t, oldest[0].Timestamp.Before(oldest[1].Timestamp))

	newest, err := ix.Query(ctx, Filter{}, 1, ReadOptions{Newest: true})
	require.NoError(t, err)
	require.Len(t, newest, 1)
	assert.Equal(t, "ev-0010", newest[0].EventID)

	logged, err := f.log.Recent("sess-a", 0)
	require.NoError(t, err)
	indexed, err := ix.Query(ctx, Filter{SessionID: "sess-a"}, 0, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, indexed, len(logged))
	for i := range logged {
		assert.Equal(t, logged[i].EventID, indexed[i].EventID)
		assert.True(t, logged[i].Timestamp.Equal(indexed[i].Timestamp))
		assert.Equal(t, logged[i].FilePaths, indexed[i].FilePaths)
		assert.Equal(t, logged[i].DriftScore, indexed[i].DriftScore)
		assert.Equal(t, logged[i].Success, indexed[i].Success)
	}
}

func TestStaleness(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 5)
	ctx := context.Background()
	ix := f.open(t, WithStaleAfter(10*time.Minute))

	st, err := ix.Status(ctx)
	require.NoError(t, err)
	assert.False(t, st.Built)
	assert.True(t, st.Stale)

	_, err = ix.Rebuild(ctx)
	require.NoError(t, err)

	st, err = ix.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Built)
	assert.False(t, st.Pending)
	assert.False(t, st.Stale)
	assert.Equal(t, 5, st.Events)

	f.appendEvents(t, 1) // advances the clock by 7 minutes

	st, err = ix.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Pending)
	assert.False(t, st.Stale, "within the grace period")

	f.clock.Advance(5 * time.Minute)
	_, err = ix.Query(ctx, Filter{}, 0, ReadOptions{})
	require.Error(t, err)
	assert.True(t, model.IsIndexStale(err))

	got, err := ix.Query(ctx, Filter{}, 0, ReadOptions{AllowStale: true})
	require.NoError(t, err)
	assert.Len(t, got, 5, "stale reads return what was indexed")

	_, err = ix.Rebuild(ctx)
	require.NoError(t, err)
	got, err = ix.Query(ctx, Filter{}, 0, ReadOptions{})
	require.NoError(t, err)
	assert.Len(t, got, 6)
}

func TestAggregates(t *testing.T) {
	f := newFixture(t)
	f.appendEvents(t, 100)
	ctx := context.Background()
	ix := f.open(t)
	_, err := ix.Rebuild(ctx)
	require.NoError(t, err)

	sc, err := ix.SessionCounts(ctx, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, sc, 3)
	assert.Equal(t, "sess-a", sc[0].SessionID)
	assert.Equal(t, 34, sc[0].Events)
	assert.Equal(t, 4, sc[0].Failures)
	assert.True(t, sc[0].FirstSeen.Before(sc[0].LastSeen))

	ac, err := ix.AgentCounts(ctx, ReadOptions{})
	require.NoError(t, err)
	assert.Equal(t, []AgentCount{
		{Agent: "agent-0", Events: 50, Sessions: 3},
		{Agent: "agent-1", Events: 50, Sessions: 3},
	}, ac)

	na, err := ix.NodeActivity(ctx, 10, ReadOptions{})
	require.NoError(t, err)
	require.Len(t, na, 1)
	assert.Equal(t, "feat-login", na[0].NodeID)
	assert.Equal(t, 20, na[0].Events)
	assert.Equal(t, 4, na[0].LowConfidence)
	assert.InDelta(t, 0.25, na[0].AvgDrift, 1e-9)

	buckets, err := ix.TimeBuckets(ctx, time.Time{}, time.Time{}, ReadOptions{})
	require.NoError(t, err)
	total := 0
	for i, b := range buckets {
		total += b.Events
		if i > 0 {
			assert.True(t, buckets[i-1].Start.Before(b.Start))
		}
	}
	assert.Equal(t, 100, total)

	first, err := ix.TimeBuckets(ctx, testutil.Epoch, testutil.Epoch.Add(time.Hour), ReadOptions{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, 8, first[0].Events, "minutes 7..56 of the first hour")
}

func TestRebuild_DropsDuplicateIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	ts := testutil.Epoch.Add(time.Minute)
	for range 2 {
		require.NoError(t, f.log.Append(ctx, &eventlog.Event{EventID: "dup", Timestamp: ts, Tool: "Edit"}))
	}
	require.NoError(t, f.log.Append(ctx, &eventlog.Event{SessionID: "s", Tool: "Read"}))

	ix := f.open(t)
	stats, err := ix.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Events)
	assert.Equal(t, 1, stats.Duplicates)
}
