package query

import (
	"strings"

	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
)

// Predicate is one term of a structural query.
//
// This is a sealed interface; only Equals, InSet, Exists and NotExists
// implement it.
type Predicate interface {
	predicateNode()
	// Attribute is the attribute the term tests.
	Attribute() string
	// String renders the term in selector syntax.
	String() string
}

// Equals matches when the attribute is present and equal to Value.
// Kinds must match exactly: Int(3) never equals String("3").
type Equals struct {
	Attr  string
	Value ir.Value
}

func (Equals) predicateNode()      {}
func (p Equals) Attribute() string { return p.Attr }
func (p Equals) String() string    { return "[" + p.Attr + "=" + literal(p.Value) + "]" }

// InSet matches when the attribute is present and equal to any of Values.
type InSet struct {
	Attr   string
	Values []ir.Value
}

func (InSet) predicateNode()      {}
func (p InSet) Attribute() string { return p.Attr }
func (p InSet) String() string {
	parts := make([]string, len(p.Values))
	for i, v := range p.Values {
		parts[i] = "[" + p.Attr + "=" + literal(v) + "]"
	}
	return ":is(" + strings.Join(parts, ",") + ")"
}

// Exists matches when the attribute is present.
type Exists struct {
	Attr string
}

func (Exists) predicateNode()      {}
func (p Exists) Attribute() string { return p.Attr }
func (p Exists) String() string    { return "[" + p.Attr + "]" }

// NotExists matches when the attribute is absent.
type NotExists struct {
	Attr string
}

func (NotExists) predicateNode()      {}
func (p NotExists) Attribute() string { return p.Attr }
func (p NotExists) String() string    { return ":not([" + p.Attr + "])" }

// Query is a conjunction of terms, optionally restricted to one node type.
// An empty Type or "*" matches every type.
type Query struct {
	Type  string
	Terms []Predicate
}

// String renders q in selector syntax. Parse(q.String()) yields q.
func (q Query) String() string {
	var b strings.Builder
	if q.Type == "" {
		b.WriteString("*")
	} else {
		b.WriteString(q.Type)
	}
	for _, t := range q.Terms {
		b.WriteString(t.String())
	}
	return b.String()
}

// Match reports whether n satisfies every term of q.
func (q Query) Match(n model.Node) bool {
	if q.Type != "" && q.Type != "*" && q.Type != n.Type {
		return false
	}
	for _, t := range q.Terms {
		if !matchTerm(t, n) {
			return false
		}
	}
	return true
}

func matchTerm(p Predicate, n model.Node) bool {
	v, ok := Lookup(n, p.Attribute())
	switch t := p.(type) {
	case Equals:
		return ok && ir.Equal(v, t.Value)
	case InSet:
		if !ok {
			return false
		}
		for _, want := range t.Values {
			if ir.Equal(v, want) {
				return true
			}
		}
		return false
	case Exists:
		return ok
	case NotExists:
		return !ok
	}
	return false
}

// Built-in attribute names. Anything else is looked up in Properties.
const (
	AttrID            = "id"
	AttrType          = "type"
	AttrStatus        = "status"
	AttrPriority      = "priority"
	AttrTitle         = "title"
	AttrTrack         = "track"
	AttrAgent         = "agent"
	AttrSession       = "session"
	AttrSubtype       = "subtype"
	AttrAutoGenerated = "auto-generated"
	AttrOwner         = "owner"
)

// Lookup resolves attr on n. Empty built-in fields count as absent.
func Lookup(n model.Node, attr string) (ir.Value, bool) {
	str := func(s string) (ir.Value, bool) {
		if s == "" {
			return nil, false
		}
		return ir.String(s), true
	}

	switch attr {
	case AttrID:
		return str(n.ID)
	case AttrType:
		return str(n.Type)
	case AttrStatus:
		return str(n.Status)
	case AttrPriority:
		return str(n.Priority)
	case AttrTitle:
		return str(n.Title)
	}

	switch e := n.Ext.(type) {
	case model.WorkItem:
		switch attr {
		case AttrTrack:
			return str(e.TrackID)
		case AttrAgent:
			return str(e.Agent)
		case AttrSession:
			return str(e.SessionID)
		case AttrSubtype:
			return str(e.Subtype)
		case AttrAutoGenerated:
			return ir.Bool(e.AutoGenerated), true
		}
	case model.SessionInfo:
		if attr == AttrAgent {
			return str(e.Agent)
		}
	case model.TrackInfo:
		if attr == AttrOwner {
			return str(e.Owner)
		}
	}

	return n.Properties.Get(attr)
}

func literal(v ir.Value) string {
	if v == nil {
		return `""`
	}
	if v.Kind() == ir.KindString {
		return quote(v.Literal())
	}
	return v.Literal()
}

func quote(s string) string {
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}
