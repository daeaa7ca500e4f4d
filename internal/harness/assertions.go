package harness

import (
	"fmt"
	"strings"
)

// AssertionError describes a failed assertion with the trace for context.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	fmt.Fprintf(&buf, "\nFull trace:\n")
	for _, ev := range e.Trace {
		node := ev.Node
		if node == "" {
			node = "-"
		}
		fmt.Fprintf(&buf, "  [%d] %s %s %v -> %s (%s, drift %.3f)\n",
			ev.Seq, ev.Session, ev.Tool, ev.Files, node, ev.Reason, ev.Drift)
	}
	return buf.String()
}

func countTrace(trace []TraceEvent, match func(TraceEvent) bool) int {
	n := 0
	for _, ev := range trace {
		if match(ev) {
			n++
		}
	}
	return n
}

func assertCount(trace []TraceEvent, a Assertion, what string, match func(TraceEvent) bool) error {
	got := countTrace(trace, match)
	if got == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s", a.Count, what),
		Actual:   fmt.Sprintf("%d", got),
		Trace:    trace,
	}
}

func assertDriftRange(trace []TraceEvent, a Assertion) error {
	ev := trace[a.Step-1]
	low, high := 0.0, 1.0
	if a.Min != nil {
		low = *a.Min
	}
	if a.Max != nil {
		high = *a.Max
	}
	if ev.Drift >= low && ev.Drift <= high {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("step %d drift in [%.3f, %.3f]", a.Step, low, high),
		Actual:   fmt.Sprintf("%.3f", ev.Drift),
		Trace:    trace,
	}
}

// EvaluateAssertions runs every assertion against result's trace and
// returns one message per failure.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var failures []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertAttributedCount:
			err = assertCount(result.Trace, a, "events attributed to "+a.Node,
				func(ev TraceEvent) bool { return ev.Node == a.Node })
		case AssertUnattributedCount:
			err = assertCount(result.Trace, a, "unattributed events",
				func(ev TraceEvent) bool { return ev.Node == "" })
		case AssertLowConfidenceCount:
			err = assertCount(result.Trace, a, "low-confidence events",
				func(ev TraceEvent) bool { return ev.LowConfidence })
		case AssertDriftRange:
			if a.Step < 1 || a.Step > len(result.Trace) {
				err = fmt.Errorf("step %d out of range", a.Step)
				break
			}
			err = assertDriftRange(result.Trace, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			failures = append(failures, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return failures
}
