package codec

import (
	"bytes"
	"io"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
)

// Attribute names used in node documents.
const (
	attrType          = "data-type"
	attrStatus        = "data-status"
	attrPriority      = "data-priority"
	attrCreated       = "data-created"
	attrUpdated       = "data-updated"
	attrTrack         = "data-track"
	attrAgent         = "data-agent"
	attrSession       = "data-session"
	attrStarted       = "data-started"
	attrEnded         = "data-ended"
	attrEventCount    = "data-event-count"
	attrAutoGenerated = "data-auto-generated"
	attrSubtype       = "data-subtype"
	attrOwner         = "data-owner"
	attrGoal          = "data-goal"
	attrEdgeType      = "data-edge-type"
	attrRelationship  = "data-relationship"
	attrCompleted     = "data-completed"
	attrKey           = "data-key"
	attrKind          = "data-kind"
	metaPrefix        = "data-meta-"
)

// Marker attributes of the known child sections.
const (
	markEdges      = "data-graph-edges"
	markSteps      = "data-steps"
	markProperties = "data-properties"
	markScope      = "data-scope"
	markContent    = "data-content"
)

var baseAttrs = map[string]bool{
	"id": true, attrType: true, attrStatus: true, attrPriority: true,
	attrCreated: true, attrUpdated: true,
}

// extAttrs lists the article attributes owned by each extension kind.
// Anything else on the article goes to Extra.
var extAttrs = map[string][]string{
	"work":    {attrTrack, attrAgent, attrSession, attrStarted, attrAutoGenerated, attrSubtype},
	"session": {attrAgent, attrStarted, attrEnded, attrEventCount},
	"track":   {attrOwner, attrGoal},
}

// Unmarshal decodes a node document from data.
func Unmarshal(data []byte) (model.Node, error) {
	return Decode(bytes.NewReader(data))
}

// Decode parses a node document.
//
// Unknown article attributes and unknown child elements are kept in
// Node.Extra. Structural problems are reported as MalformedDocument
// errors; Decode never panics on bad input.
func Decode(r io.Reader) (model.Node, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return model.Node{}, &model.Error{Code: model.CodeMalformedDocument, Message: "parse html", Err: err}
	}

	var articles []*html.Node
	for n := range doc.Descendants() {
		if n.Type == html.ElementNode && n.DataAtom == atom.Article {
			articles = append(articles, n)
		}
	}
	switch len(articles) {
	case 0:
		return model.Node{}, model.NewMalformed("", "no article element")
	case 1:
	default:
		return model.Node{}, model.NewMalformed("", "%d article elements, want exactly one", len(articles))
	}

	d := decoder{article: articles[0]}
	n, err := d.decode()
	if err != nil {
		return model.Node{}, err
	}
	return n, nil
}

type decoder struct {
	article *html.Node
	node    model.Node
}

func (d *decoder) fail(format string, args ...any) error {
	return model.NewMalformed(d.node.ID, format, args...)
}

func (d *decoder) decode() (model.Node, error) {
	if err := d.rootAttrs(); err != nil {
		return model.Node{}, err
	}
	if err := d.children(); err != nil {
		return model.Node{}, err
	}
	if err := d.node.Validate(); err != nil {
		return model.Node{}, &model.Error{Code: model.CodeMalformedDocument, Message: "invalid node", ID: d.node.ID, Err: err}
	}
	return d.node, nil
}

func (d *decoder) rootAttrs() error {
	seen := make(map[string]bool, len(d.article.Attr))
	for _, a := range d.article.Attr {
		if seen[a.Key] {
			return d.fail("duplicate attribute %q", a.Key)
		}
		seen[a.Key] = true
	}

	id, ok := attr(d.article, "id")
	if !ok || id == "" {
		return model.NewMalformed("", "article has no id")
	}
	if !model.ValidID(id) {
		return model.NewMalformed(id, "invalid id %q", id)
	}
	d.node.ID = id

	typ, ok := attr(d.article, attrType)
	if !ok || typ == "" {
		return d.fail("article has no %s", attrType)
	}
	d.node.Type = typ
	d.node.Status, _ = attr(d.article, attrStatus)
	d.node.Priority, _ = attr(d.article, attrPriority)

	var err error
	if d.node.CreatedAt, err = d.timeAttr(d.article, attrCreated); err != nil {
		return err
	}
	if d.node.UpdatedAt, err = d.timeAttr(d.article, attrUpdated); err != nil {
		return err
	}

	ext := model.DefaultExtension(typ)
	owned := map[string]bool{}
	if ext != nil {
		kind := extKindOf(ext)
		for _, k := range extAttrs[kind] {
			owned[k] = true
		}
		if ext, err = d.extension(ext); err != nil {
			return err
		}
	}
	d.node.Ext = ext

	for _, a := range d.article.Attr {
		if baseAttrs[a.Key] || owned[a.Key] {
			continue
		}
		d.node.Extra.Attrs = append(d.node.Extra.Attrs, model.Attr{Key: a.Key, Value: a.Val})
	}
	return nil
}

func extKindOf(ext model.Extension) string {
	switch ext.(type) {
	case model.WorkItem:
		return "work"
	case model.SessionInfo:
		return "session"
	case model.TrackInfo:
		return "track"
	}
	return ""
}

func (d *decoder) extension(ext model.Extension) (model.Extension, error) {
	a := d.article
	switch e := ext.(type) {
	case model.WorkItem:
		e.TrackID, _ = attr(a, attrTrack)
		e.Agent, _ = attr(a, attrAgent)
		e.SessionID, _ = attr(a, attrSession)
		e.Subtype, _ = attr(a, attrSubtype)
		started, err := d.timeAttr(a, attrStarted)
		if err != nil {
			return nil, err
		}
		e.StartedAt = started
		if v, ok := attr(a, attrAutoGenerated); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return nil, d.fail("bad %s %q", attrAutoGenerated, v)
			}
			e.AutoGenerated = b
		}
		return e, nil
	case model.SessionInfo:
		e.Agent, _ = attr(a, attrAgent)
		var err error
		if e.StartedAt, err = d.timeAttr(a, attrStarted); err != nil {
			return nil, err
		}
		if e.EndedAt, err = d.timeAttr(a, attrEnded); err != nil {
			return nil, err
		}
		if v, ok := attr(a, attrEventCount); ok {
			count, err := strconv.Atoi(v)
			if err != nil {
				return nil, d.fail("bad %s %q", attrEventCount, v)
			}
			e.EventCount = count
		}
		return e, nil
	case model.TrackInfo:
		e.Owner, _ = attr(a, attrOwner)
		e.Goal, _ = attr(a, attrGoal)
		return e, nil
	}
	return ext, nil
}

func (d *decoder) children() error {
	for c := range d.article.Descendants() {
		if id, ok := attr(c, "id"); ok && id == d.node.ID {
			return d.fail("duplicate id %q inside document", id)
		}
	}
	for c := range d.article.ChildNodes() {
		if c.Type != html.ElementNode {
			continue
		}
		var err error
		switch {
		case c.DataAtom == atom.Header:
			d.node.Title = textOf(findFirst(c, atom.H1))
		case c.DataAtom == atom.Nav && hasAttr(c, markEdges):
			err = d.edges(c)
		case c.DataAtom == atom.Section && hasAttr(c, markSteps):
			err = d.steps(c)
		case c.DataAtom == atom.Section && hasAttr(c, markProperties):
			err = d.properties(c)
		case c.DataAtom == atom.Section && hasAttr(c, markScope):
			err = d.scope(c)
		case c.DataAtom == atom.Div && hasAttr(c, markContent):
			d.node.Content = textOf(c)
		default:
			var buf bytes.Buffer
			if err := html.Render(&buf, c); err != nil {
				return d.fail("render unknown section: %v", err)
			}
			d.node.Extra.Sections = append(d.node.Extra.Sections, buf.String())
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (d *decoder) edges(nav *html.Node) error {
	for sec := range nav.ChildNodes() {
		if sec.Type != html.ElementNode || sec.DataAtom != atom.Section {
			continue
		}
		kind, ok := attr(sec, attrEdgeType)
		if !ok || kind == "" {
			return d.fail("edge section without %s", attrEdgeType)
		}
		for link := range sec.Descendants() {
			if link.Type != html.ElementNode || link.DataAtom != atom.A {
				continue
			}
			href, ok := attr(link, "href")
			if !ok {
				return d.fail("%s edge without href", kind)
			}
			target := strings.TrimSuffix(path.Base(href), Extension)
			if !model.ValidID(target) {
				return d.fail("%s edge has invalid target %q", kind, href)
			}
			e := model.Edge{Target: target}
			e.Relationship, _ = attr(link, attrRelationship)
			for _, a := range link.Attr {
				if key, ok := strings.CutPrefix(a.Key, metaPrefix); ok {
					e.Metadata = append(e.Metadata, model.Attr{Key: key, Value: a.Val})
				}
			}
			d.node.Edges.Add(kind, e)
		}
	}
	return nil
}

func (d *decoder) steps(sec *html.Node) error {
	for li := range sec.Descendants() {
		if li.Type != html.ElementNode || li.DataAtom != atom.Li {
			continue
		}
		s := model.Step{Description: textOf(li)}
		s.Agent, _ = attr(li, attrAgent)
		if v, ok := attr(li, attrCompleted); ok {
			done, err := strconv.ParseBool(v)
			if err != nil {
				return d.fail("bad %s %q", attrCompleted, v)
			}
			s.Completed = done
		}
		d.node.Steps = append(d.node.Steps, s)
	}
	return nil
}

func (d *decoder) properties(sec *html.Node) error {
	for dd := range sec.Descendants() {
		if dd.Type != html.ElementNode || dd.DataAtom != atom.Dd {
			continue
		}
		key, ok := attr(dd, attrKey)
		if !ok {
			return d.fail("property without %s", attrKey)
		}
		if _, dup := d.node.Properties.Get(key); dup {
			return d.fail("duplicate property %q", key)
		}
		kind, _ := attr(dd, attrKind)
		v, err := ir.ParseValue(ir.Kind(kind), textOf(dd))
		if err != nil {
			return &model.Error{Code: model.CodeMalformedDocument, Message: "property " + key, ID: d.node.ID, Err: err}
		}
		d.node.Properties.Set(key, v)
	}
	return nil
}

func (d *decoder) scope(sec *html.Node) error {
	w, ok := d.node.Ext.(model.WorkItem)
	if !ok {
		return d.fail("scope section on %s node", d.node.Type)
	}
	for li := range sec.Descendants() {
		if li.Type == html.ElementNode && li.DataAtom == atom.Li {
			w.Scope = append(w.Scope, textOf(li))
		}
	}
	d.node.Ext = w
	return nil
}

func (d *decoder) timeAttr(n *html.Node, key string) (time.Time, error) {
	v, ok := attr(n, key)
	if !ok || v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(TimeLayout, v)
	if err != nil {
		return time.Time{}, d.fail("bad timestamp %s=%q", key, v)
	}
	return t.UTC(), nil
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func hasAttr(n *html.Node, key string) bool {
	_, ok := attr(n, key)
	return ok
}

func findFirst(n *html.Node, a atom.Atom) *html.Node {
	for c := range n.Descendants() {
		if c.Type == html.ElementNode && c.DataAtom == a {
			return c
		}
	}
	return nil
}

// textOf concatenates the text content below n.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	for c := range n.Descendants() {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}
