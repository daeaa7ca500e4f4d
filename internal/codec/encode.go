// Package codec converts nodes to and from their HTML documents.
//
// The node lives in the document's single <article>. Unknown attributes
// of the article and unknown child elements inside it are kept in
// Node.Extra and written back unchanged. Everything outside the article,
// the <head> and any sibling elements in <body>, is page chrome: Encode
// regenerates it and Decode ignores it.
package codec

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"

	"github.com/roach88/workgraph/internal/model"
)

// Extension is the file suffix of node documents.
const Extension = ".html"

// TimeLayout is the timestamp format used in every document attribute.
const TimeLayout = time.RFC3339Nano

// FileName maps a node id to its document file name.
func FileName(id string) string {
	return id + Extension
}

// Marshal encodes n into a byte slice.
func Marshal(n model.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, n); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Encode writes n as an HTML document.
//
// The output is deterministic: attributes, edge kinds, steps and
// properties appear in a fixed order, so the same node always encodes to
// the same bytes.
func Encode(w io.Writer, n model.Node) error {
	if err := n.Validate(); err != nil {
		return fmt.Errorf("encode node: %w", err)
	}

	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", esc(titleOrID(n)))
	b.WriteString("</head>\n<body>\n<article")
	writeAttr(&b, "id", n.ID)
	writeAttr(&b, attrType, n.Type)
	writeOptAttr(&b, attrStatus, n.Status)
	writeOptAttr(&b, attrPriority, n.Priority)
	writeTimeAttr(&b, attrCreated, n.CreatedAt)
	writeTimeAttr(&b, attrUpdated, n.UpdatedAt)
	scope := writeExtAttrs(&b, n.Ext)
	for _, a := range n.Extra.Attrs {
		writeAttr(&b, a.Key, a.Value)
	}
	b.WriteString(">\n")

	if n.Title != "" {
		fmt.Fprintf(&b, "<header><h1>%s</h1></header>\n", esc(n.Title))
	}
	writeEdges(&b, n.Edges)
	writeSteps(&b, n.Steps)
	writeProperties(&b, n)
	if len(scope) > 0 {
		b.WriteString("<section data-scope>\n<ul>\n")
		for _, pattern := range scope {
			fmt.Fprintf(&b, "<li>%s</li>\n", esc(pattern))
		}
		b.WriteString("</ul>\n</section>\n")
	}
	if n.Content != "" {
		fmt.Fprintf(&b, "<div data-content>%s</div>\n", esc(n.Content))
	}
	for _, raw := range n.Extra.Sections {
		b.WriteString(raw)
		b.WriteByte('\n')
	}
	b.WriteString("</article>\n</body>\n</html>\n")

	if _, err := io.WriteString(w, b.String()); err != nil {
		return fmt.Errorf("write document %s: %w", n.ID, err)
	}
	return nil
}

func titleOrID(n model.Node) string {
	if n.Title != "" {
		return n.Title
	}
	return n.ID
}

// writeExtAttrs writes the article attributes of the extension and returns
// the scope patterns, which go in their own section.
func writeExtAttrs(b *strings.Builder, ext model.Extension) []string {
	switch e := ext.(type) {
	case model.WorkItem:
		writeOptAttr(b, attrTrack, e.TrackID)
		writeOptAttr(b, attrAgent, e.Agent)
		writeOptAttr(b, attrSession, e.SessionID)
		writeTimeAttr(b, attrStarted, e.StartedAt)
		if e.AutoGenerated {
			writeAttr(b, attrAutoGenerated, "true")
		}
		writeOptAttr(b, attrSubtype, e.Subtype)
		return e.Scope
	case model.SessionInfo:
		writeOptAttr(b, attrAgent, e.Agent)
		writeTimeAttr(b, attrStarted, e.StartedAt)
		writeTimeAttr(b, attrEnded, e.EndedAt)
		if e.EventCount != 0 {
			writeAttr(b, attrEventCount, strconv.Itoa(e.EventCount))
		}
	case model.TrackInfo:
		writeOptAttr(b, attrOwner, e.Owner)
		writeOptAttr(b, attrGoal, e.Goal)
	}
	return nil
}

func writeEdges(b *strings.Builder, edges model.Edges) {
	if edges.Len() == 0 {
		return
	}
	b.WriteString("<nav data-graph-edges>\n")
	for _, kind := range edges.Kinds() {
		b.WriteString("<section")
		writeAttr(b, attrEdgeType, kind)
		b.WriteString(">\n<ul>\n")
		for _, e := range edges.Get(kind) {
			b.WriteString("<li><a")
			writeAttr(b, "href", FileName(e.Target))
			writeAttr(b, attrRelationship, e.Relationship)
			for _, m := range e.Metadata {
				writeAttr(b, metaPrefix+m.Key, m.Value)
			}
			fmt.Fprintf(b, ">%s</a></li>\n", esc(e.Target))
		}
		b.WriteString("</ul>\n</section>\n")
	}
	b.WriteString("</nav>\n")
}

func writeSteps(b *strings.Builder, steps []model.Step) {
	if len(steps) == 0 {
		return
	}
	b.WriteString("<section data-steps>\n<ol>\n")
	for _, s := range steps {
		b.WriteString("<li")
		writeAttr(b, attrCompleted, strconv.FormatBool(s.Completed))
		writeOptAttr(b, attrAgent, s.Agent)
		fmt.Fprintf(b, ">%s</li>\n", esc(s.Description))
	}
	b.WriteString("</ol>\n</section>\n")
}

func writeProperties(b *strings.Builder, n model.Node) {
	if n.Properties.Len() == 0 {
		return
	}
	b.WriteString("<section data-properties>\n<dl>\n")
	for k, v := range n.Properties.All() {
		fmt.Fprintf(b, "<dt>%s</dt><dd", esc(k))
		writeAttr(b, attrKey, k)
		writeAttr(b, attrKind, string(v.Kind()))
		fmt.Fprintf(b, ">%s</dd>\n", esc(v.Literal()))
	}
	b.WriteString("</dl>\n</section>\n")
}

func writeAttr(b *strings.Builder, key, value string) {
	fmt.Fprintf(b, " %s=\"%s\"", key, esc(value))
}

func writeOptAttr(b *strings.Builder, key, value string) {
	if value != "" {
		writeAttr(b, key, value)
	}
}

func writeTimeAttr(b *strings.Builder, key string, t time.Time) {
	if !t.IsZero() {
		writeAttr(b, key, t.UTC().Format(TimeLayout))
	}
}

func esc(s string) string {
	return html.EscapeString(s)
}
