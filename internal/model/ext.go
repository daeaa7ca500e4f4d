package model

import (
	"slices"
	"time"
)

// Work item subtypes used by auto-generated placeholder nodes.
const (
	SubtypeSessionInit = "session-init"
	SubtypeTransition  = "transition"
)

// Extension is a sealed interface over the per-type extension records.
// Only WorkItem, SessionInfo and TrackInfo implement it.
type Extension interface {
	extKind() string
	appliesTo(nodeType string) bool
	cloneExt() Extension
}

// WorkItem extends feature, bug, chore, spike and epic nodes.
type WorkItem struct {
	TrackID   string
	Agent     string
	SessionID string
	StartedAt time.Time
	// Scope lists doublestar file patterns the work is expected to touch.
	Scope         []string
	AutoGenerated bool
	Subtype       string
}

func (WorkItem) extKind() string { return "work" }

func (WorkItem) appliesTo(t string) bool {
	switch t {
	case TypeFeature, TypeBug, TypeChore, TypeSpike, TypeEpic:
		return true
	}
	return false
}

func (w WorkItem) cloneExt() Extension {
	w.Scope = slices.Clone(w.Scope)
	return w
}

// IsPlaceholder reports whether the item is an auto-generated
// session-init or transition node.
func (w WorkItem) IsPlaceholder() bool {
	return w.AutoGenerated && (w.Subtype == SubtypeSessionInit || w.Subtype == SubtypeTransition)
}

// SessionInfo extends session nodes.
type SessionInfo struct {
	Agent      string
	StartedAt  time.Time
	EndedAt    time.Time
	EventCount int
}

func (SessionInfo) extKind() string         { return "session" }
func (SessionInfo) appliesTo(t string) bool { return t == TypeSession }
func (s SessionInfo) cloneExt() Extension   { return s }

// TrackInfo extends track nodes.
type TrackInfo struct {
	Owner string
	Goal  string
}

func (TrackInfo) extKind() string         { return "track" }
func (TrackInfo) appliesTo(t string) bool { return t == TypeTrack }
func (t TrackInfo) cloneExt() Extension   { return t }

// DefaultExtension returns the empty extension for a node type, or nil
// when the type has none.
func DefaultExtension(nodeType string) Extension {
	switch {
	case WorkItem{}.appliesTo(nodeType):
		return WorkItem{}
	case nodeType == TypeSession:
		return SessionInfo{}
	case nodeType == TypeTrack:
		return TrackInfo{}
	}
	return nil
}

// extEqual treats a nil extension as equal to an empty one, since a
// document cannot tell them apart.
func extEqual(a, b Extension) bool {
	if a == nil {
		return b == nil || extIsZero(b)
	}
	if b == nil {
		return extIsZero(a)
	}
	switch av := a.(type) {
	case WorkItem:
		bv, ok := b.(WorkItem)
		return ok && av.TrackID == bv.TrackID && av.Agent == bv.Agent &&
			av.SessionID == bv.SessionID && av.StartedAt.Equal(bv.StartedAt) &&
			slices.Equal(av.Scope, bv.Scope) && av.AutoGenerated == bv.AutoGenerated &&
			av.Subtype == bv.Subtype
	case SessionInfo:
		bv, ok := b.(SessionInfo)
		return ok && av.Agent == bv.Agent && av.StartedAt.Equal(bv.StartedAt) &&
			av.EndedAt.Equal(bv.EndedAt) && av.EventCount == bv.EventCount
	case TrackInfo:
		bv, ok := b.(TrackInfo)
		return ok && av == bv
	}
	return false
}

func extIsZero(e Extension) bool {
	switch v := e.(type) {
	case WorkItem:
		return v.TrackID == "" && v.Agent == "" && v.SessionID == "" && v.StartedAt.IsZero() &&
			len(v.Scope) == 0 && !v.AutoGenerated && v.Subtype == ""
	case SessionInfo:
		return v.Agent == "" && v.StartedAt.IsZero() && v.EndedAt.IsZero() && v.EventCount == 0
	case TrackInfo:
		return v == TrackInfo{}
	}
	return false
}
