package eventlog

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/workgraph/internal/model"
)

// Event is one recorded tool call. It is the unit of the append-only log
// and one line of JSON on disk.
type Event struct {
	EventID          string    `json:"event_id" validate:"required,safeid"`
	Timestamp        time.Time `json:"timestamp" validate:"required"`
	SessionID        string    `json:"session_id" validate:"omitempty,sessionid"`
	Agent            string    `json:"agent"`
	Tool             string    `json:"tool" validate:"required"`
	Summary          string    `json:"summary"`
	Success          bool      `json:"success"`
	AttributedNodeID string    `json:"attributed_node_id,omitempty" validate:"omitempty,safeid"`
	DriftScore       *float64  `json:"drift_score,omitempty" validate:"omitempty,gte=0,lte=1"`
	LowConfidence    bool      `json:"low_confidence,omitempty"`
	FilePaths        []string  `json:"file_paths" validate:"dive,required"`
}

// Drift returns the drift score, or 0 when none was recorded.
func (e Event) Drift() float64 {
	if e.DriftScore == nil {
		return 0
	}
	return *e.DriftScore
}

// SetDrift records a drift score.
func (e *Event) SetDrift(d float64) {
	e.DriftScore = &d
}

var validate *validator.Validate

func init() {
	validate = validator.New()

	// safeid: usable as a node id and as a file name.
	_ = validate.RegisterValidation("safeid", func(fl validator.FieldLevel) bool {
		return model.ValidID(fl.Field().String())
	})
	// sessionid: a safeid that does not collide with DefaultFile.
	_ = validate.RegisterValidation("sessionid", func(fl validator.FieldLevel) bool {
		return ValidSessionID(fl.Field().String())
	})
}

// ValidSessionID reports whether id can name a session. The stem of
// DefaultFile is reserved for events without a session.
func ValidSessionID(id string) bool {
	return model.ValidID(id) && id+FileExt != DefaultFile
}

// Validate checks e against the event schema.
func (e *Event) Validate() error {
	return validate.Struct(e)
}
