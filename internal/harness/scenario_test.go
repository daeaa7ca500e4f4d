package harness

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadScenario(t *testing.T) {
	s, err := LoadScenario("testdata/scenarios/session_flow.yaml")
	require.NoError(t, err)

	assert.Equal(t, "session_flow", s.Name)
	require.Len(t, s.Nodes, 3)
	assert.Equal(t, []string{"src/auth/**"}, s.Nodes[0].Scope)
	assert.True(t, s.Nodes[1].Placeholder)
	require.Len(t, s.Flow, 8)
	assert.Equal(t, 5*time.Minute, s.Flow[0].At)
	assert.Equal(t, 10*time.Hour, s.Flow[7].At)
	require.NotNil(t, s.Flow[0].Expect)
	assert.Equal(t, "feat-auth", s.Flow[0].Expect.Node)
	assert.True(t, s.Flow[2].Failed)
	require.NotNil(t, s.Assertions[4].Min)
	assert.Equal(t, 0.5, *s.Assertions[4].Min)
}

func TestLoadScenario_MissingFile(t *testing.T) {
	_, err := LoadScenario(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read scenario file")
}

func TestLoadScenario_FromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: x\nflow:\n  - {session: s, tool: Read}\n"), 0o644))

	s, err := LoadScenario(path)
	require.NoError(t, err)
	assert.Equal(t, "x", s.Name)
}

func TestParseScenario_Config(t *testing.T) {
	s, err := ParseScenario([]byte(`
name: cfg
config:
  threshold: 0.4
  idle_scale: 30m
  scope_miss_drift: 0
flow:
  - {session: s, tool: Read}
`))
	require.NoError(t, err)
	assert.Equal(t, 0.4, s.Config.Threshold)
	assert.Equal(t, 30*time.Minute, s.Config.IdleScale)
	assert.Zero(t, s.Config.ScopeMissDrift)
	assert.Equal(t, 5, s.Config.RepeatWindow, "omitted keys keep their defaults")
}

func TestParseScenario_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "unknown field",
			doc:  "name: x\nflows: []\n",
			want: "failed to parse YAML",
		},
		{
			name: "missing name",
			doc:  "flow:\n  - {session: s, tool: Read}\n",
			want: "name is required",
		},
		{
			name: "empty flow",
			doc:  "name: x\n",
			want: "flow list is required",
		},
		{
			name: "missing tool",
			doc:  "name: x\nflow:\n  - {session: s}\n",
			want: "flow[0]: tool is required",
		},
		{
			name: "missing session",
			doc:  "name: x\nflow:\n  - {tool: Read}\n",
			want: "flow[0]: session is required",
		},
		{
			name: "time goes backwards",
			doc:  "name: x\nflow:\n  - {session: s, tool: Read, at: 1h}\n  - {session: s, tool: Read, at: 5m}\n",
			want: "flow[1]: at goes backwards",
		},
		{
			name: "bad node id",
			doc:  "name: x\nnodes:\n  - {id: \"a/b\"}\nflow:\n  - {session: s, tool: Read}\n",
			want: "invalid id",
		},
		{
			name: "duplicate node",
			doc:  "name: x\nnodes:\n  - {id: a}\n  - {id: a}\nflow:\n  - {session: s, tool: Read}\n",
			want: "duplicate id",
		},
		{
			name: "placeholder without session",
			doc:  "name: x\nnodes:\n  - {id: a, placeholder: true}\nflow:\n  - {session: s, tool: Read}\n",
			want: "placeholder needs a session",
		},
		{
			name: "unknown assertion",
			doc:  "name: x\nflow:\n  - {session: s, tool: Read}\nassertions:\n  - {type: trace_order}\n",
			want: "unknown assertion type",
		},
		{
			name: "attributed count without node",
			doc:  "name: x\nflow:\n  - {session: s, tool: Read}\nassertions:\n  - {type: attributed_count, count: 1}\n",
			want: "node is required",
		},
		{
			name: "drift step out of range",
			doc:  "name: x\nflow:\n  - {session: s, tool: Read}\nassertions:\n  - {type: drift_range, step: 2, max: 0.5}\n",
			want: "step 2 out of range",
		},
		{
			name: "drift without bounds",
			doc:  "name: x\nflow:\n  - {session: s, tool: Read}\nassertions:\n  - {type: drift_range, step: 1}\n",
			want: "min or max is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseScenario([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
