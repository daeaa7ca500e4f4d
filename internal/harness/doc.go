// Package harness replays attribution scenarios against a real workspace.
//
// A scenario seeds a node store, records a flow of tool calls through the
// attribution recorder into the event log, and checks the outcome. Every
// run uses a fake clock starting at testutil.Epoch and sequential event
// ids, so traces are reproducible and can be compared to golden files.
//
// # Scenario Format
//
//	name: session_flow
//	description: "Scoped edits hit the feature, stray edits the placeholder"
//	config:
//	  threshold: 0.7
//	nodes:
//	  - id: feat-auth
//	    session: sess-1
//	    scope: ["src/auth/**"]
//	  - id: init-sess-1
//	    placeholder: true
//	    session: sess-1
//	flow:
//	  - session: sess-1
//	    tool: Edit
//	    files: [src/auth/login.py]
//	    at: 5m
//	    expect: { node: feat-auth, reason: scope }
//	assertions:
//	  - type: attributed_count
//	    node: feat-auth
//	    count: 1
//
// Offsets such as at, started and updated are durations from the epoch.
//
// # Assertion Types
//
//   - attributed_count: exactly count events went to node
//   - unattributed_count: exactly count events matched no node
//   - low_confidence_count: exactly count events were marked low-confidence
//   - drift_range: the drift of flow step (1-based) lies within [min, max]
package harness
