package cli

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/workgraph/internal/graph"
	"github.com/roach88/workgraph/internal/ir"
	"github.com/roach88/workgraph/internal/model"
	"github.com/roach88/workgraph/internal/query"
)

// NodeSummary is the one-line view of a node.
type NodeSummary struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Status   string `json:"status"`
	Priority string `json:"priority,omitempty"`
	Title    string `json:"title,omitempty"`
}

func summarize(n model.Node) NodeSummary {
	return NodeSummary{ID: n.ID, Type: n.Type, Status: n.Status, Priority: n.Priority, Title: n.Title}
}

// QueryResult is the output of the query command.
type QueryResult struct {
	Selector string        `json:"selector"`
	Count    int           `json:"count"`
	Nodes    []NodeSummary `json:"nodes"`
}

func (r QueryResult) renderText(w io.Writer) error {
	if r.Count == 0 {
		_, err := fmt.Fprintf(w, "No nodes match %s\n", r.Selector)
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTYPE\tSTATUS\tPRIORITY\tTITLE")
	for _, n := range r.Nodes {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", n.ID, n.Type, n.Status, n.Priority, n.Title)
	}
	return tw.Flush()
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "query <selector>",
		Short: "List nodes matching a selector",
		Long: `List nodes matching an attribute selector, ordered by id.

Selectors combine a type with attribute terms:
  feature[status=in-progress]
  *[priority=high]:not([agent])
  bug:is([status=todo],[status=blocked])

Exit codes:
  0 - Success (including no matches)
  2 - Invalid selector or unreadable workspace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("query", err)
			}
			defer ws.Close()

			q, err := query.Parse(args[0])
			if err != nil {
				return f.Fail("invalid selector", err)
			}
			s, err := ws.store(cmd.Context())
			if err != nil {
				return f.Fail("query", err)
			}
			nodes := query.Run(s.Snapshot(), q)
			if limit > 0 && len(nodes) > limit {
				nodes = nodes[:limit]
			}
			res := QueryResult{Selector: q.String(), Count: len(nodes), Nodes: make([]NodeSummary, 0, len(nodes))}
			for _, n := range nodes {
				res.Nodes = append(res.Nodes, summarize(n))
			}
			return f.Success(res)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum number of nodes (0 = all)")
	return cmd
}

// EdgeOut is one edge in show output.
type EdgeOut struct {
	Kind         string            `json:"kind"`
	Target       string            `json:"target"`
	Relationship string            `json:"relationship,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	Inferred     bool              `json:"inferred,omitempty"`
	Missing      bool              `json:"missing,omitempty"`
}

// StepOut is one step in show output.
type StepOut struct {
	Description string `json:"description"`
	Completed   bool   `json:"completed"`
	Agent       string `json:"agent,omitempty"`
}

// ShowResult is the output of the show command.
type ShowResult struct {
	NodeSummary
	CreatedAt  time.Time     `json:"created_at,omitzero"`
	UpdatedAt  time.Time     `json:"updated_at,omitzero"`
	Properties ir.Properties `json:"properties"`
	Steps      []StepOut     `json:"steps,omitempty"`
	Edges      []EdgeOut     `json:"edges,omitempty"`
	Content    string        `json:"content,omitempty"`
}

func (r ShowResult) renderText(w io.Writer) error {
	fmt.Fprintf(w, "%s  %s  [%s]", r.ID, r.Type, r.Status)
	if r.Priority != "" {
		fmt.Fprintf(w, "  priority=%s", r.Priority)
	}
	fmt.Fprintln(w)
	if r.Title != "" {
		fmt.Fprintf(w, "  %s\n", r.Title)
	}
	if !r.UpdatedAt.IsZero() {
		fmt.Fprintf(w, "  updated %s\n", r.UpdatedAt.Format(time.RFC3339))
	}
	for k, v := range r.Properties.All() {
		fmt.Fprintf(w, "  %s = %s\n", k, v.Literal())
	}
	if len(r.Steps) > 0 {
		fmt.Fprintln(w, "Steps:")
		for _, s := range r.Steps {
			mark := " "
			if s.Completed {
				mark = "x"
			}
			fmt.Fprintf(w, "  [%s] %s\n", mark, s.Description)
		}
	}
	if len(r.Edges) > 0 {
		fmt.Fprintln(w, "Edges:")
		for _, e := range r.Edges {
			note := ""
			switch {
			case e.Missing:
				note = " (missing)"
			case e.Inferred:
				note = " (inferred)"
			}
			fmt.Fprintf(w, "  %s -> %s%s\n", e.Kind, e.Target, note)
		}
	}
	if r.Content != "" {
		fmt.Fprintf(w, "\n%s\n", r.Content)
	}
	return nil
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <id>",
		Short:         "Show one node with its stored and inferred edges",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("show", err)
			}
			defer ws.Close()

			s, err := ws.store(cmd.Context())
			if err != nil {
				return f.Fail("show", err)
			}
			sn := s.Snapshot()
			n, ok := sn.Get(args[0])
			if !ok {
				return f.Fail("show", model.NewNotFound(args[0]))
			}

			res := ShowResult{
				NodeSummary: summarize(n),
				CreatedAt:   n.CreatedAt,
				UpdatedAt:   n.UpdatedAt,
				Properties:  n.Properties,
				Content:     n.Content,
			}
			for _, st := range n.Steps {
				res.Steps = append(res.Steps, StepOut{Description: st.Description, Completed: st.Completed, Agent: st.Agent})
			}
			for _, e := range graph.Build(sn).EdgesOf(n.ID) {
				out := EdgeOut{
					Kind:         e.Kind,
					Target:       e.Target,
					Relationship: e.Relationship,
					Inferred:     e.Inferred,
					Missing:      e.Missing,
				}
				if len(e.Metadata) > 0 {
					out.Metadata = make(map[string]string, len(e.Metadata))
					for _, a := range e.Metadata {
						out.Metadata[a.Key] = a.Value
					}
				}
				res.Edges = append(res.Edges, out)
			}
			return f.Success(res)
		},
	}
}
