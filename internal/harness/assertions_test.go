package harness

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *Result {
	r := NewResult()
	r.Trace = []TraceEvent{
		{Seq: 1, Session: "sess-1", Tool: "Edit", Files: []string{"a.go"}, Node: "feat-a", Reason: "scope"},
		{Seq: 2, Session: "sess-1", Tool: "Read", Node: "feat-a", Reason: "recent", Drift: 0.8, LowConfidence: true},
		{Seq: 3, Session: "sess-2", Tool: "Bash", Reason: "none"},
	}
	return r
}

func ptr(f float64) *float64 { return &f }

func TestEvaluateAssertions_Pass(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertAttributedCount, Node: "feat-a", Count: 2},
		{Type: AssertAttributedCount, Node: "feat-b", Count: 0},
		{Type: AssertUnattributedCount, Count: 1},
		{Type: AssertLowConfidenceCount, Count: 1},
		{Type: AssertDriftRange, Step: 1, Max: ptr(0)},
		{Type: AssertDriftRange, Step: 2, Min: ptr(0.7), Max: ptr(0.9)},
	})
	assert.Empty(t, failures)
}

func TestEvaluateAssertions_Failures(t *testing.T) {
	failures := EvaluateAssertions(sampleResult(), []Assertion{
		{Type: AssertAttributedCount, Node: "feat-a", Count: 1},
		{Type: AssertLowConfidenceCount, Count: 0},
		{Type: AssertDriftRange, Step: 2, Max: ptr(0.5)},
		{Type: AssertDriftRange, Step: 9, Max: ptr(0.5)},
		{Type: "bogus"},
	})
	require.Len(t, failures, 5)
	assert.Contains(t, failures[0], "assertions[0]")
	assert.Contains(t, failures[0], "Expected: 1 events attributed to feat-a")
	assert.Contains(t, failures[0], "Actual: 2")
	assert.Contains(t, failures[2], "step 2 drift in [0.000, 0.500]")
	assert.Contains(t, failures[3], "step 9 out of range")
	assert.Contains(t, failures[4], `unknown assertion type "bogus"`)
}

func TestAssertionError_IncludesTrace(t *testing.T) {
	err := &AssertionError{
		Type:     AssertUnattributedCount,
		Expected: "0 unattributed events",
		Actual:   "1",
		Trace:    sampleResult().Trace,
	}
	msg := err.Error()
	assert.Contains(t, msg, "Assertion failed: unattributed_count")
	assert.Contains(t, msg, "[1] sess-1 Edit [a.go] -> feat-a (scope, drift 0.000)")
	assert.Contains(t, msg, "[3] sess-2 Bash [] -> - (none, drift 0.000)")
}

func TestResult_AddError(t *testing.T) {
	r := NewResult()
	assert.True(t, r.Pass)
	r.AddError("boom")
	assert.False(t, r.Pass)
	assert.Equal(t, []string{"boom"}, r.Errors)
}

func TestTraceSnapshot_Canonical(t *testing.T) {
	data, err := TraceSnapshot{ScenarioName: "s", Trace: sampleResult().Trace[2:]}.MarshalCanonical()
	require.NoError(t, err)
	assert.Equal(t,
		`{"scenario_name":"s","trace":[{"event_id":"","files":[],"low_confidence":false,"reason":"none","seq":3,"session":"sess-2","tool":"Bash"}]}`,
		string(data))
}
