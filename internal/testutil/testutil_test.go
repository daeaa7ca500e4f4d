package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/model"
)

func TestFakeClock_AdvanceAndSet(t *testing.T) {
	clock := NewFakeClock(Epoch)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch, clock.Now(), "a plain fake clock does not move on its own")

	clock.Advance(time.Minute)
	assert.Equal(t, Epoch.Add(time.Minute), clock.Now())

	clock.Set(Epoch.Add(-time.Hour))
	assert.Equal(t, Epoch.Add(-time.Hour), clock.Now())
}

func TestTickingClock_MovesEveryRead(t *testing.T) {
	clock := NewTickingClock(Epoch, time.Second)
	assert.Equal(t, Epoch, clock.Now())
	assert.Equal(t, Epoch.Add(time.Second), clock.Now())
}

func TestSequenceGenerator_ConcurrentUnique(t *testing.T) {
	gen := NewSequenceGenerator("tx")
	seen := make(map[string]bool)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := gen.Generate()
			mu.Lock()
			seen[id] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	assert.Len(t, seen, 50)
	assert.Equal(t, "id-0001", NewSequenceGenerator("").Generate())
}

func TestFixtures(t *testing.T) {
	n := BlockedBy(InProgress("a", Epoch, "src/**"), "b", "c")
	require.NoError(t, n.Validate())
	assert.Equal(t, []string{"b", "c"}, n.Edges.Targets(model.EdgeBlockedBy))

	w, ok := n.Work()
	require.True(t, ok)
	assert.Equal(t, []string{"src/**"}, w.Scope)

	p := Placeholder("init-1", "sess-1")
	pw, _ := p.Work()
	assert.True(t, pw.IsPlaceholder())
}

func TestMemSource_OrderedCopies(t *testing.T) {
	src := NewMemSource(Feature("b"), Feature("a"))
	var ids []string
	for n := range src.All() {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"a", "b"}, ids)

	got, ok := src.Get("a")
	require.True(t, ok)
	got.Title = "changed"
	again, _ := src.Get("a")
	assert.Equal(t, "Feature a", again.Title)
}
