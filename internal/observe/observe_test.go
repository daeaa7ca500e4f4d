package observe

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestNewLogsAtLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	obs, err := New(buf, "info")
	require.NoError(t, err)

	obs.Log().Info().Str("node", "feat-1").Int("count", 3).Msg("node loaded")
	assert.Contains(t, buf.String(), "node loaded")
}

func TestNewJSONFiltersBelowLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	obs, err := NewJSON(buf, "warn")
	require.NoError(t, err)

	obs.Log().Info().Msg("hidden")
	obs.Log().Warn().Msg("shown")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(&bytes.Buffer{}, "chatty")
	assert.Error(t, err)
}

func TestDiscard(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	l.Error().Msg("goes nowhere")
}

func TestStartSpan(t *testing.T) {
	obs, err := New(&bytes.Buffer{}, "error")
	require.NoError(t, err)

	ctx, span := obs.StartSpan(context.Background(), "test-span")
	require.NotNil(t, ctx)
	require.NotNil(t, span)
	span.End()
	assert.NoError(t, obs.Close())
}

func TestMetricsSingleton(t *testing.T) {
	m := Metrics()
	require.NotNil(t, m)
	assert.Same(t, m, Metrics())

	// Global provider is a no-op; recording must not panic.
	Inc(context.Background(), m.TxCommit, attribute.String("outcome", "ok"))
}
