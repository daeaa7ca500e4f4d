package harness

import "strconv"

// TraceEvent is one recorded step as it landed in the event log.
type TraceEvent struct {
	Seq           int      `json:"seq"`
	EventID       string   `json:"event_id"`
	Session       string   `json:"session"`
	Tool          string   `json:"tool"`
	Files         []string `json:"files"`
	Node          string   `json:"node,omitempty"`
	Reason        string   `json:"reason"`
	Drift         float64  `json:"drift"`
	LowConfidence bool     `json:"low_confidence"`
}

// canonical renders e for golden comparison. Drift is fixed to three
// decimals because canonical JSON has no floats.
func (e TraceEvent) canonical() map[string]any {
	m := map[string]any{
		"seq":            e.Seq,
		"event_id":       e.EventID,
		"session":        e.Session,
		"tool":           e.Tool,
		"files":          e.Files,
		"reason":         e.Reason,
		"low_confidence": e.LowConfidence,
	}
	if e.Node != "" {
		m["node"] = e.Node
		m["drift"] = strconv.FormatFloat(e.Drift, 'f', 3, 64)
	}
	return m
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
