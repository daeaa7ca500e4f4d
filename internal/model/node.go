package model

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/roach88/workgraph/internal/ir"
)

// Node types. The set is open; these are the types the rest of the system
// knows how to extend.
const (
	TypeFeature = "feature"
	TypeBug     = "bug"
	TypeChore   = "chore"
	TypeSpike   = "spike"
	TypeEpic    = "epic"
	TypeSession = "session"
	TypeTrack   = "track"
)

// Statuses. Tracks may use supersets.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in-progress"
	StatusBlocked    = "blocked"
	StatusDone       = "done"
)

// Priorities.
const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// MaxIDLength bounds node ids so they stay usable as file names.
const MaxIDLength = 128

var (
	idPattern      = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)
	metaKeyPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

// ValidID reports whether id may be used as a node id.
// Ids become file names, so "." and ".." are rejected as well.
func ValidID(id string) bool {
	if id == "" || len(id) > MaxIDLength || id == "." || id == ".." {
		return false
	}
	return idPattern.MatchString(id)
}

// Step is one entry of a node's ordered checklist.
type Step struct {
	Description string
	Completed   bool
	Agent       string
}

// Attr is an ordered key/value string pair. Used for edge metadata and for
// unknown document attributes carried through a round trip.
type Attr struct {
	Key   string
	Value string
}

// Extra holds document content this version does not understand.
// It is written back unchanged so read-modify-write keeps it.
type Extra struct {
	Attrs    []Attr
	Sections []string
}

// IsZero reports whether nothing unknown was captured.
func (e Extra) IsZero() bool {
	return len(e.Attrs) == 0 && len(e.Sections) == 0
}

func (e Extra) clone() Extra {
	return Extra{Attrs: slices.Clone(e.Attrs), Sections: slices.Clone(e.Sections)}
}

func (e Extra) equal(o Extra) bool {
	return slices.Equal(e.Attrs, o.Attrs) && slices.Equal(e.Sections, o.Sections)
}

// Node is a work item or activity record.
//
// Nodes are plain values. Stores hand out copies made with Clone, so a Node
// obtained from a store can be modified freely by the caller.
type Node struct {
	ID        string
	Type      string
	Title     string
	Status    string
	Priority  string
	CreatedAt time.Time
	UpdatedAt time.Time

	Properties ir.Properties
	Steps      []Step
	Edges      Edges

	// Content is the free-form body of the document.
	Content string

	// Ext carries the fields specific to the node's type. Nil for types
	// without an extension.
	Ext Extension

	Extra Extra
}

// Clone returns a deep copy of n.
func (n Node) Clone() Node {
	out := n
	out.Properties = n.Properties.Clone()
	out.Steps = slices.Clone(n.Steps)
	out.Edges = n.Edges.Clone()
	if n.Ext != nil {
		out.Ext = n.Ext.cloneExt()
	}
	out.Extra = n.Extra.clone()
	return out
}

// Equal reports whether two nodes carry the same semantic content.
// Timestamps are compared as instants.
func (n Node) Equal(o Node) bool {
	if n.ID != o.ID || n.Type != o.Type || n.Title != o.Title ||
		n.Status != o.Status || n.Priority != o.Priority || n.Content != o.Content {
		return false
	}
	if !n.CreatedAt.Equal(o.CreatedAt) || !n.UpdatedAt.Equal(o.UpdatedAt) {
		return false
	}
	if !n.Properties.Equal(o.Properties) || !slices.Equal(n.Steps, o.Steps) || !n.Edges.Equal(o.Edges) {
		return false
	}
	if !extEqual(n.Ext, o.Ext) {
		return false
	}
	return n.Extra.equal(o.Extra)
}

// Validate checks the structural invariants every stored node satisfies.
func (n Node) Validate() error {
	if !ValidID(n.ID) {
		return fmt.Errorf("invalid node id %q", n.ID)
	}
	if n.Type == "" {
		return fmt.Errorf("node %s: type is required", n.ID)
	}
	if n.Ext != nil && !n.Ext.appliesTo(n.Type) {
		return fmt.Errorf("node %s: %s extension does not apply to type %q", n.ID, n.Ext.extKind(), n.Type)
	}
	if field, ok := n.nulField(); ok {
		return fmt.Errorf("node %s: %s contains a NUL character", n.ID, field)
	}
	if !n.CreatedAt.IsZero() && !n.UpdatedAt.IsZero() && n.UpdatedAt.Before(n.CreatedAt) {
		return fmt.Errorf("node %s: updated_at before created_at", n.ID)
	}
	for k, v := range n.Properties.All() {
		if v == nil {
			return fmt.Errorf("node %s: property %q has no value", n.ID, k)
		}
	}
	for kind, e := range n.Edges.All() {
		if kind == "" {
			return fmt.Errorf("node %s: empty edge kind", n.ID)
		}
		if !ValidID(e.Target) {
			return fmt.Errorf("node %s: invalid %s edge target %q", n.ID, kind, e.Target)
		}
		for _, m := range e.Metadata {
			// Metadata keys become attribute names, which HTML lowercases.
			if !metaKeyPattern.MatchString(m.Key) {
				return fmt.Errorf("node %s: invalid edge metadata key %q", n.ID, m.Key)
			}
		}
	}
	return nil
}

// Work returns the work-item extension, if the node has one.
func (n Node) Work() (WorkItem, bool) {
	w, ok := n.Ext.(WorkItem)
	return w, ok
}

// Session returns the session extension, if the node has one.
func (n Node) Session() (SessionInfo, bool) {
	s, ok := n.Ext.(SessionInfo)
	return s, ok
}

// Track returns the track extension, if the node has one.
func (n Node) Track() (TrackInfo, bool) {
	t, ok := n.Ext.(TrackInfo)
	return t, ok
}

type textField struct{ name, value string }

// nulField names the first text field holding U+0000. HTML parsing drops
// or replaces NUL, so such a node could not be read back from its document.
func (n Node) nulField() (string, bool) {
	texts := []textField{
		{"type", n.Type},
		{"title", n.Title},
		{"status", n.Status},
		{"priority", n.Priority},
		{"content", n.Content},
	}
	for i, s := range n.Steps {
		texts = append(texts,
			textField{fmt.Sprintf("step %d description", i), s.Description},
			textField{fmt.Sprintf("step %d agent", i), s.Agent})
	}
	for k, v := range n.Properties.All() {
		texts = append(texts, textField{"property key", k})
		if str, ok := v.(ir.String); ok {
			texts = append(texts, textField{"property " + k, string(str)})
		}
	}
	for kind, e := range n.Edges.All() {
		texts = append(texts, textField{kind + " edge relationship", e.Relationship})
		for _, m := range e.Metadata {
			texts = append(texts, textField{kind + " edge metadata", m.Value})
		}
	}
	switch ext := n.Ext.(type) {
	case WorkItem:
		texts = append(texts,
			textField{"track", ext.TrackID},
			textField{"agent", ext.Agent},
			textField{"session", ext.SessionID},
			textField{"subtype", ext.Subtype})
		for _, p := range ext.Scope {
			texts = append(texts, textField{"scope", p})
		}
	case SessionInfo:
		texts = append(texts, textField{"agent", ext.Agent})
	case TrackInfo:
		texts = append(texts, textField{"owner", ext.Owner}, textField{"goal", ext.Goal})
	}
	for _, a := range n.Extra.Attrs {
		texts = append(texts, textField{"attribute " + a.Key, a.Value})
	}

	for _, t := range texts {
		if strings.ContainsRune(t.value, 0) {
			return t.name, true
		}
	}
	return "", false
}
