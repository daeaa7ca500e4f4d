package attribution

import (
	"math"
	"slices"
	"time"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/model"
)

// Config holds the drift heuristics. The weights are tuning knobs, not a
// contract; only their monotonicity is relied on.
type Config struct {
	// Threshold above which an attribution is low-confidence.
	Threshold float64 `yaml:"threshold"`
	// ScopeMissDrift is charged when the session placeholder absorbs an
	// event that misses every active scope.
	ScopeMissDrift float64 `yaml:"scope_miss_drift"`
	// IdleScale is the idle time at which the idle component reaches
	// 1 - 1/e of its weight.
	IdleScale time.Duration `yaml:"idle_scale"`
	// IdleWeight and RepeatWeight split the drift between idle time and
	// repeated identical calls. They should sum to at most 1.
	IdleWeight   float64 `yaml:"idle_weight"`
	RepeatWeight float64 `yaml:"repeat_weight"`
	// RepeatWindow is how many recent session events are checked for
	// repeats.
	RepeatWindow int `yaml:"repeat_window"`
}

// DefaultConfig returns the stock heuristics.
func DefaultConfig() Config {
	return Config{
		Threshold:      0.7,
		ScopeMissDrift: 0.5,
		IdleScale:      2 * time.Hour,
		IdleWeight:     0.6,
		RepeatWeight:   0.4,
		RepeatWindow:   5,
	}
}

// withDefaults turns the zero Config into DefaultConfig. Otherwise only
// fields with no usable zero value are filled: a zero Threshold would mark
// every drifted event and a zero IdleScale has no meaning. Zero weights,
// ScopeMissDrift and RepeatWindow are taken as set.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c == (Config{}) {
		return d
	}
	if c.Threshold <= 0 {
		c.Threshold = d.Threshold
	}
	if c.IdleScale <= 0 {
		c.IdleScale = d.IdleScale
	}
	return c
}

// drift scores a fallback attribution of ev to n in [0, 1].
func (e *Engine) drift(ev eventlog.Event, actor Actor, n model.Node) float64 {
	at := ev.Timestamp
	if at.IsZero() {
		at = e.now()
	}
	idle := at.Sub(startedAt(n))
	repeats := e.repeats(ev, actor)
	return Drift(e.cfg, idle, repeats)
}

// Drift combines idle time and the share of repeated calls. It is
// non-decreasing in both arguments and clamped to [0, 1].
func Drift(cfg Config, idle time.Duration, repeatShare float64) float64 {
	cfg = cfg.withDefaults()
	idleScore := 0.0
	if idle > 0 {
		idleScore = 1 - math.Exp(-float64(idle)/float64(cfg.IdleScale))
	}
	d := cfg.IdleWeight*idleScore + cfg.RepeatWeight*clamp01(repeatShare)
	return clamp01(d)
}

// repeats returns the share of the session's recent events that are the
// same call as ev: same tool and same file paths.
func (e *Engine) repeats(ev eventlog.Event, actor Actor) float64 {
	if e.history == nil || e.cfg.RepeatWindow <= 0 {
		return 0
	}
	recent, err := e.history.Recent(actor.SessionID, e.cfg.RepeatWindow)
	if err != nil {
		e.log.Warn().Str("session", actor.SessionID).Err(err).Msg("reading history for drift")
		return 0
	}
	same := 0
	for _, r := range recent {
		if r.Tool == ev.Tool && slices.Equal(r.FilePaths, ev.FilePaths) {
			same++
		}
	}
	return float64(same) / float64(e.cfg.RepeatWindow)
}

// startedAt is when work on n began, falling back to its timestamps.
func startedAt(n model.Node) time.Time {
	if w, ok := n.Work(); ok && !w.StartedAt.IsZero() {
		return w.StartedAt
	}
	if !n.UpdatedAt.IsZero() {
		return n.UpdatedAt
	}
	return n.CreatedAt
}

func clamp01(f float64) float64 {
	return math.Max(0, math.Min(1, f))
}
