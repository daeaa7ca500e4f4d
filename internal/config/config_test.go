package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/workgraph/internal/attribution"
	"github.com/roach88/workgraph/internal/testutil"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	root := t.TempDir()
	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, root, cfg.Root)
	assert.Equal(t, 8, cfg.Nodes.LoadWorkers)
	assert.Equal(t, filepath.Join(root, "events"), cfg.Events.Dir)
	assert.Equal(t, filepath.Join(root, "index.db"), cfg.Index.Path)
	assert.Equal(t, 5*time.Minute, cfg.Index.StaleAfter)
	assert.Equal(t, 0.7, cfg.Attribution.Threshold)
}

func TestLoad_OverridesMergeOverDefaults(t *testing.T) {
	root := t.TempDir()
	data := []byte(`
log:
  level: debug
index:
  stale_after: 90s
  path: /var/lib/wg/index.db
attribution:
  threshold: 0.5
  idle_scale: 30m
`)
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), data, 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "console", cfg.Log.Format, "untouched keys keep defaults")
	assert.Equal(t, 90*time.Second, cfg.Index.StaleAfter)
	assert.Equal(t, "/var/lib/wg/index.db", cfg.Index.Path)
	assert.Equal(t, 500*time.Millisecond, cfg.Index.WatchDebounce)
	assert.Equal(t, 0.5, cfg.Attribution.Threshold)
	assert.Equal(t, 30*time.Minute, cfg.Attribution.IdleScale)
	assert.Equal(t, 5, cfg.Attribution.RepeatWindow)
}

func TestLoad_ZeroAttributionValuesSurvive(t *testing.T) {
	root := t.TempDir()
	data := []byte("attribution:\n  scope_miss_drift: 0\n  repeat_window: 0\n")
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), data, 0o644))

	cfg, err := Load(root)
	require.NoError(t, err)
	assert.Zero(t, cfg.Attribution.ScopeMissDrift)
	assert.Zero(t, cfg.Attribution.RepeatWindow)
	assert.Equal(t, 0.7, cfg.Attribution.Threshold)

	got := attribution.New(testutil.NewMemSource(), nil, cfg.Attribution).Config()
	assert.Zero(t, got.ScopeMissDrift)
	assert.Zero(t, got.RepeatWindow)
}

func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown top-level key", "colour: blue\n"},
		{"unknown nested key", "index:\n  stail_after: 1m\n"},
		{"bad level", "log:\n  level: loud\n"},
		{"bad format", "log:\n  format: xml\n"},
		{"threshold above one", "attribution:\n  threshold: 1.5\n"},
		{"zero threshold", "attribution:\n  threshold: 0\n"},
		{"negative weight", "attribution:\n  idle_weight: -0.1\n"},
		{"fractional window", "attribution:\n  repeat_window: 2.5\n"},
		{"bad duration", "index:\n  stale_after: soon\n"},
		{"empty path", "index:\n  path: \"\"\n"},
		{"too many workers", "nodes:\n  load_workers: 1000\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate([]byte(tt.yaml))
			assert.Error(t, err)

			_, err = Parse(t.TempDir(), []byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestValidate_Accepts(t *testing.T) {
	for _, doc := range []string{
		"",
		"log:\n  level: warn\n  format: json\n",
		"index:\n  stale_after: 0\n",
		"index:\n  stale_after: 1h30m\n",
		"attribution:\n  threshold: 1\n  idle_weight: 0.5\n  repeat_weight: 0.5\n",
	} {
		assert.NoError(t, Validate([]byte(doc)), "%q", doc)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, FileName), []byte("log: [unterminated\n"), 0o644))
	_, err := Load(root)
	assert.Error(t, err)
}

func TestLogger(t *testing.T) {
	var buf bytes.Buffer
	cfg := Default()
	cfg.Log.Format = "json"
	l, err := cfg.Logger(&buf)
	require.NoError(t, err)
	l.Info().Str("k", "v").Msg("hello")
	assert.Contains(t, buf.String(), "hello")

	cfg.Log.Level = "chatty"
	_, err = cfg.Logger(&buf)
	assert.Error(t, err)
}
