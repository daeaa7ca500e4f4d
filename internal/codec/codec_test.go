package codec

import (
	"strings"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
)

func featureNode() model.Node {
	n := model.Node{
		ID:        "feat-login",
		Type:      model.TypeFeature,
		Title:     "Login & session flow",
		Status:    model.StatusInProgress,
		Priority:  model.PriorityHigh,
		CreatedAt: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 2, 10, 30, 0, 500_000_000, time.UTC),
		Properties: ir.NewProperties(
			ir.P("effort", ir.Int(3)),
			ir.P("area", ir.String("auth")),
			ir.P("reviewed", ir.Bool(false)),
		),
		Steps: []model.Step{
			{Description: "Write handler", Completed: true, Agent: "claude"},
			{Description: "Add tests <unit>"},
		},
		Content: `Users sign in with "email" & password.`,
		Ext: model.WorkItem{
			TrackID:   "track-auth",
			Agent:     "claude",
			SessionID: "sess-1",
			StartedAt: time.Date(2026, 3, 1, 9, 15, 0, 0, time.UTC),
			Scope:     []string{"src/auth/**", "docs/auth.md"},
		},
	}
	n.Edges.Add(model.EdgeBlockedBy, model.Edge{Target: "chore-db", Metadata: []model.Attr{{Key: "since", Value: "v1"}}})
	n.Edges.Link(model.EdgeRelated, "bug-42")
	return n
}

func TestEncodeGolden(t *testing.T) {
	data, err := Marshal(featureNode())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "feature", data)
}

func TestRoundTrip(t *testing.T) {
	ts := time.Date(2026, 1, 5, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		node model.Node
	}{
		{"feature", featureNode()},
		{"minimal", model.Node{ID: "n1", Type: "note"}},
		{"session", model.Node{
			ID: "sess-1", Type: model.TypeSession, Status: model.StatusInProgress,
			CreatedAt: ts, UpdatedAt: ts,
			Ext: model.SessionInfo{Agent: "claude", StartedAt: ts, EndedAt: ts.Add(time.Hour), EventCount: 12},
		}},
		{"track", model.Node{
			ID: "track-auth", Type: model.TypeTrack, Title: "Auth",
			Ext: model.TrackInfo{Owner: "dana", Goal: "SSO by Q3"},
		}},
		{"placeholder", model.Node{
			ID: "sess-1-init", Type: model.TypeChore, Status: model.StatusInProgress,
			Ext: model.WorkItem{SessionID: "sess-1", AutoGenerated: true, Subtype: model.SubtypeSessionInit},
		}},
		{"awkward text", model.Node{
			ID: "bug.7", Type: model.TypeBug, Title: "it's <broken>",
			Content:    "line one\n\n  indented\r\nand a tab\t",
			Properties: ir.NewProperties(ir.P("empty", ir.String("")), ir.P("neg", ir.Int(-4))),
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Marshal(tt.node)
			require.NoError(t, err)

			got, err := Unmarshal(data)
			require.NoError(t, err)
			assert.True(t, tt.node.Equal(got), "round trip changed the node:\n%s", data)

			again, err := Marshal(got)
			require.NoError(t, err)
			assert.Equal(t, string(data), string(again))
		})
	}
}

func TestDecodePreservesUnknownContent(t *testing.T) {
	doc := `<!DOCTYPE html><html><body>
<article id="feat-x" data-type="feature" data-color="red" data-owner="someone">
<section data-notes=""><p>keep me</p></section>
<nav data-graph-edges><section data-edge-type="depends_on"><ul><li><a href="../nodes/lib-a.html">lib-a</a></li></ul></section></nav>
</article></body></html>`

	n, err := Unmarshal([]byte(doc))
	require.NoError(t, err)

	assert.Equal(t, []model.Attr{{Key: "data-color", Value: "red"}, {Key: "data-owner", Value: "someone"}}, n.Extra.Attrs,
		"track attributes on a feature are unknown content")
	assert.Equal(t, []string{`<section data-notes=""><p>keep me</p></section>`}, n.Extra.Sections)

	edges := n.Edges.Get("depends_on")
	require.Len(t, edges, 1)
	assert.Equal(t, "lib-a", edges[0].Target)

	// Read-modify-write keeps the unknown content.
	n.Status = model.StatusDone
	data, err := Marshal(n)
	require.NoError(t, err)
	assert.Contains(t, string(data), `data-color="red"`)
	assert.Contains(t, string(data), `<p>keep me</p>`)

	back, err := Unmarshal(data)
	require.NoError(t, err)
	assert.True(t, n.Equal(back))
}

func TestDecodeIgnoresContentOutsideArticle(t *testing.T) {
	doc := `<!DOCTYPE html><html><head><title>old</title><link rel="stylesheet" href="x.css"></head><body>
<header>site banner</header>
<article id="feat-x" data-type="feature"><section data-notes=""><p>keep me</p></section></article>
<footer>generated</footer>
</body></html>`

	n, err := Unmarshal([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{`<section data-notes=""><p>keep me</p></section>`}, n.Extra.Sections)
	assert.Empty(t, n.Extra.Attrs)

	data, err := Marshal(n)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "site banner")
	assert.NotContains(t, string(data), "x.css")
	assert.Contains(t, string(data), "<p>keep me</p>")
}

func TestDecodeMalformed(t *testing.T) {
	wrap := func(article string) string {
		return "<html><body>" + article + "</body></html>"
	}
	tests := []struct {
		name string
		doc  string
	}{
		{"no article", "just text"},
		{"missing id", wrap(`<article data-type="bug"></article>`)},
		{"missing type", wrap(`<article id="b1"></article>`)},
		{"invalid id", wrap(`<article id="a b" data-type="bug"></article>`)},
		{"two articles", wrap(`<article id="a" data-type="bug"></article><article id="b" data-type="bug"></article>`)},
		{"bad timestamp", wrap(`<article id="a" data-type="bug" data-created="yesterday"></article>`)},
		{"duplicate id", wrap(`<article id="a" data-type="bug"><section id="a"></section></article>`)},
		{"bad property kind", wrap(`<article id="a" data-type="bug"><section data-properties><dl><dd data-key="k" data-kind="float">1.5</dd></dl></section></article>`)},
		{"bad int literal", wrap(`<article id="a" data-type="bug"><section data-properties><dl><dd data-key="k" data-kind="int">x</dd></dl></section></article>`)},
		{"duplicate property", wrap(`<article id="a" data-type="bug"><section data-properties><dl><dd data-key="k">1</dd><dd data-key="k">2</dd></dl></section></article>`)},
		{"edge without kind", wrap(`<article id="a" data-type="bug"><nav data-graph-edges><section><ul><li><a href="b.html">b</a></li></ul></section></nav></article>`)},
		{"edge without href", wrap(`<article id="a" data-type="bug"><nav data-graph-edges><section data-edge-type="blocks"><ul><li><a>b</a></li></ul></section></nav></article>`)},
		{"scope on session", wrap(`<article id="a" data-type="session"><section data-scope><ul><li>x</li></ul></section></article>`)},
		{"updated before created", wrap(`<article id="a" data-type="bug" data-created="2026-01-02T00:00:00Z" data-updated="2026-01-01T00:00:00Z"></article>`)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, model.IsMalformed(err), "got %v", err)
		})
	}
}

func TestEncodeRejectsInvalidNode(t *testing.T) {
	_, err := Marshal(model.Node{ID: "", Type: "bug"})
	assert.Error(t, err)

	n := model.Node{ID: "a", Type: "bug"}
	n.Edges.Add(model.EdgeBlocks, model.Edge{Target: "b", Metadata: []model.Attr{{Key: "Upper", Value: "x"}}})
	_, err = Marshal(n)
	assert.Error(t, err, "metadata keys must survive attribute lowercasing")
}

func TestEncodeRejectsNUL(t *testing.T) {
	_, err := Marshal(model.Node{ID: "a", Type: "bug", Content: "before\x00after"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NUL")
}

func FuzzRoundTrip(f *testing.F) {
	f.Add("Login flow", "body text", "write handler", "auth")
	f.Add("it's <broken> & \"quoted\"", "line one\r\n\n  indented\t", "", "")
	f.Add(" padded ", "\f form feed", "\u2028sep\u2029", "caf\u00e9")
	f.Add("a\x00b", "nul", "nul", "nul")
	f.Add("bad \xff utf8", "\xfe", "x", "\x80")

	f.Fuzz(func(t *testing.T, title, content, step, prop string) {
		n := model.Node{
			ID:         "fuzz-1",
			Type:       model.TypeFeature,
			Title:      title,
			Content:    content,
			Steps:      []model.Step{{Description: step}},
			Properties: ir.NewProperties(ir.P("note", ir.String(prop))),
			Ext:        model.WorkItem{},
		}
		if n.Validate() != nil {
			t.Skip()
		}

		data, err := Marshal(n)
		require.NoError(t, err)
		got, err := Unmarshal(data)
		require.NoError(t, err)
		assert.True(t, n.Equal(got), "round trip changed the node:\n%s", data)
	})
}

func TestFileName(t *testing.T) {
	assert.Equal(t, "feat-1.html", FileName("feat-1"))
}
