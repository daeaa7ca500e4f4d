package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/testutil"
)

func fixture() *testutil.MemSource {
	login := testutil.Feature("feat-login")
	login.Status = model.StatusInProgress
	login.Priority = model.PriorityHigh
	login.Ext = model.WorkItem{TrackID: "track-auth", Agent: "claude"}
	login.Properties.Set("effort", ir.Int(3))
	login.Properties.Set("area", ir.String("auth"))

	signup := testutil.Feature("feat-signup")
	signup.Properties.Set("effort", ir.String("3"))

	bug := model.Node{
		ID:       "bug-42",
		Type:     model.TypeBug,
		Title:    "Crash on logout",
		Status:   model.StatusBlocked,
		Priority: model.PriorityCritical,
		Ext:      model.WorkItem{TrackID: "track-auth"},
	}
	bug.Properties.Set("reviewed", ir.Bool(true))

	placeholder := testutil.Placeholder("chore-init", "sess-1")

	session := model.Node{
		ID:    "sess-1",
		Type:  model.TypeSession,
		Title: "Session 1",
		Ext:   model.SessionInfo{Agent: "claude"},
	}

	return testutil.NewMemSource(login, signup, bug, placeholder, session)
}

func ids(nodes []model.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

func TestSelect(t *testing.T) {
	src := fixture()

	tests := []struct {
		name     string
		selector string
		want     []string
	}{
		{"type only", "feature", []string{"feat-login", "feat-signup"}},
		{"any type", "*", []string{"bug-42", "chore-init", "feat-login", "feat-signup", "sess-1"}},
		{"status", "feature[status=in-progress]", []string{"feat-login"}},
		{"data prefix", "[data-status=blocked]", []string{"bug-42"}},
		{"int property", "[effort=3]", []string{"feat-login"}},
		{"string property", `[effort="3"]`, []string{"feat-signup"}},
		{"bool property", "[reviewed=true]", []string{"bug-42"}},
		{"bool mismatch", `[reviewed="true"]`, nil},
		{"exists", "[effort]", []string{"feat-login", "feat-signup"}},
		{"not exists", "feature:not([area])", []string{"feat-signup"}},
		{"in set", "*:is([priority=high],[priority=critical])", []string{"bug-42", "feat-login"}},
		{"conjunction", "[track=track-auth][priority=critical]", []string{"bug-42"}},
		{"agent on work and session", "[agent=claude]", []string{"feat-login", "sess-1"}},
		{"auto generated", "[auto-generated=true]", []string{"chore-init"}},
		{"subtype", "[subtype=session-init]", []string{"chore-init"}},
		{"case sensitive", "[status=In-Progress]", nil},
		{"empty status is absent", "session:not([status])", []string{"sess-1"}},
		{"no match", "epic", nil},
		{"spaces", `feature [ effort = 3 ]`, []string{"feat-login"}},
		{"single quotes", `[title='Crash on logout']`, []string{"bug-42"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Select(src, tt.selector)
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, got)
				return
			}
			assert.Equal(t, tt.want, ids(got))
		})
	}
}

func TestParse_Terms(t *testing.T) {
	q, err := Parse(`feature[status=todo][effort=-2][flag=false][note="a \"b\""]:not([track]):is([area=auth],[area=ui])`)
	require.NoError(t, err)

	assert.Equal(t, "feature", q.Type)
	assert.Equal(t, []Predicate{
		Equals{Attr: "status", Value: ir.String("todo")},
		Equals{Attr: "effort", Value: ir.Int(-2)},
		Equals{Attr: "flag", Value: ir.Bool(false)},
		Equals{Attr: "note", Value: ir.String(`a "b"`)},
		NotExists{Attr: "track"},
		InSet{Attr: "area", Values: []ir.Value{ir.String("auth"), ir.String("ui")}},
	}, q.Terms)
}

func TestParse_StringRoundTrip(t *testing.T) {
	for _, sel := range []string{
		"*",
		"feature",
		`bug[status="blocked"][effort=3][reviewed=true]`,
		`*:not([track]):is([priority="high"],[priority="low"])`,
		`*[title="say \"hi\""]`,
	} {
		q := MustParse(sel)
		again, err := Parse(q.String())
		require.NoError(t, err, sel)
		assert.Equal(t, q, again, sel)
	}
}

func TestParse_Errors(t *testing.T) {
	for _, sel := range []string{
		"[",
		"[status",
		"[status=]",
		"[=x]",
		`[title="open]`,
		"feature:not([status=todo])",
		"feature:not([status]",
		"*:is([status])",
		"*:is([status=a],[priority=b])",
		"*:is([status=a]",
		"feature > bug",
		"feature:has([x])",
		"[effort=+x]",
	} {
		_, err := Parse(sel)
		require.Error(t, err, sel)
		var pe *ParseError
		assert.ErrorAs(t, err, &pe, sel)
	}
}

func TestMustParse_Panics(t *testing.T) {
	assert.Panics(t, func() { MustParse("[") })
}

func TestRun_SortedAndCounted(t *testing.T) {
	src := fixture()
	q := Query{Terms: []Predicate{Exists{Attr: AttrTrack}}}

	got := Run(src, q)
	assert.Equal(t, []string{"bug-42", "feat-login"}, ids(got))
	assert.Equal(t, 2, Count(src, q))
}

func TestLookup(t *testing.T) {
	track := model.Node{ID: "track-auth", Type: model.TypeTrack, Ext: model.TrackInfo{Owner: "ana"}}

	v, ok := Lookup(track, AttrOwner)
	require.True(t, ok)
	assert.Equal(t, ir.String("ana"), v)

	_, ok = Lookup(track, AttrTrack)
	assert.False(t, ok, "work-item attributes do not apply to tracks")

	_, ok = Lookup(testutil.Feature("f"), AttrTrack)
	assert.False(t, ok)

	v, ok = Lookup(testutil.Feature("f"), AttrAutoGenerated)
	require.True(t, ok)
	assert.Equal(t, ir.Bool(false), v)
}
