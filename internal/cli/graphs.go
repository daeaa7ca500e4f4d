package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/workgraph/internal/graph"
	"github.com/roach88/workgraph/internal/model"
)

// loadGraph builds the graph over a snapshot of the workspace nodes.
func loadGraph(rootOpts *RootOptions, cmd *cobra.Command) (*graph.Graph, *workspace, error) {
	ws, err := openWorkspace(rootOpts, cmd)
	if err != nil {
		return nil, nil, err
	}
	s, err := ws.store(cmd.Context())
	if err != nil {
		ws.Close()
		return nil, nil, err
	}
	return graph.Build(s.Snapshot()), ws, nil
}

func requireNodes(g *graph.Graph, ids ...string) error {
	for _, id := range ids {
		if !g.Has(id) {
			return model.NewNotFound(id)
		}
	}
	return nil
}

// PathResult is the output of the path command.
type PathResult struct {
	From  string   `json:"from"`
	To    string   `json:"to"`
	Kind  string   `json:"kind,omitempty"`
	Found bool     `json:"found"`
	Path  []string `json:"path"`
}

func (r PathResult) renderText(w io.Writer) error {
	if !r.Found {
		_, err := fmt.Fprintf(w, "No path from %s to %s\n", r.From, r.To)
		return err
	}
	_, err := fmt.Fprintln(w, strings.Join(r.Path, " -> "))
	return err
}

// NewPathCommand creates the path command.
func NewPathCommand(rootOpts *RootOptions) *cobra.Command {
	var kind string
	cmd := &cobra.Command{
		Use:   "path <from> <to>",
		Short: "Shortest path between two nodes",
		Long: `Print the shortest path between two nodes.

Without --kind every stored edge is followed. With --kind only that edge
kind is followed, including inverses inferred from blocks/blocked_by.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			g, ws, err := loadGraph(rootOpts, cmd)
			if err != nil {
				return f.Fail("path", err)
			}
			defer ws.Close()
			if err := requireNodes(g, args[0], args[1]); err != nil {
				return f.Fail("path", err)
			}
			path, ok := g.ShortestPath(args[0], args[1], kind)
			if path == nil {
				path = []string{}
			}
			return f.Success(PathResult{From: args[0], To: args[1], Kind: kind, Found: ok, Path: path})
		},
	}
	cmd.Flags().StringVar(&kind, "kind", graph.AnyKind, "edge kind to follow (default: any stored edge)")
	return cmd
}

// IDList is a list-of-ids result.
type IDList struct {
	ID    string   `json:"id,omitempty"`
	Count int      `json:"count"`
	IDs   []string `json:"ids"`
	empty string
}

func (r IDList) renderText(w io.Writer) error {
	if len(r.IDs) == 0 {
		_, err := fmt.Fprintln(w, r.empty)
		return err
	}
	for _, id := range r.IDs {
		if _, err := fmt.Fprintln(w, id); err != nil {
			return err
		}
	}
	return nil
}

// NewDepsCommand creates the deps command.
func NewDepsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deps <id>",
		Short: "Transitive blocked_by dependencies of a node",
		Long: `List every node the given node transitively depends on, in
breadth-first order.

Exit codes:
  0 - Success
  1 - The dependencies contain a cycle (the cycle path is reported)
  2 - Unknown id or unreadable workspace`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			g, ws, err := loadGraph(rootOpts, cmd)
			if err != nil {
				return f.Fail("deps", err)
			}
			defer ws.Close()
			if err := requireNodes(g, args[0]); err != nil {
				return f.Fail("deps", err)
			}
			deps, err := g.TransitiveDeps(args[0])
			if err != nil {
				return f.Fail("deps", err)
			}
			if deps == nil {
				deps = []string{}
			}
			return f.Success(IDList{ID: args[0], Count: len(deps), IDs: deps, empty: "No dependencies"})
		},
	}
}

// NewTopoCommand creates the topo command.
func NewTopoCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "topo",
		Short: "Order nodes so dependencies come first",
		Long: `Print every node with each node after everything it is blocked by.

Exit codes:
  0 - Success
  1 - The graph has a dependency cycle`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			g, ws, err := loadGraph(rootOpts, cmd)
			if err != nil {
				return f.Fail("topo", err)
			}
			defer ws.Close()
			order, err := g.TopologicalOrder()
			if err != nil {
				return f.Fail("topo", err)
			}
			return f.Success(IDList{Count: len(order), IDs: order, empty: "No nodes"})
		},
	}
}

// CyclesResult is the output of the cycles command.
type CyclesResult struct {
	Count  int        `json:"count"`
	Cycles [][]string `json:"cycles"`
}

func (r CyclesResult) renderText(w io.Writer) error {
	if r.Count == 0 {
		_, err := fmt.Fprintln(w, "No cycles")
		return err
	}
	for _, c := range r.Cycles {
		if _, err := fmt.Fprintln(w, strings.Join(c, " -> ")); err != nil {
			return err
		}
	}
	return nil
}

// NewCyclesCommand creates the cycles command.
func NewCyclesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cycles",
		Short:         "List blocked_by dependency cycles",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			g, ws, err := loadGraph(rootOpts, cmd)
			if err != nil {
				return f.Fail("cycles", err)
			}
			defer ws.Close()
			cycles := g.Cycles()
			if cycles == nil {
				cycles = [][]string{}
			}
			for _, d := range g.Dangling() {
				ws.log.Debug().Str("source", d.Source).Str("kind", d.Kind).Str("target", d.Target).Msg("dangling edge")
			}
			return f.Success(CyclesResult{Count: len(cycles), Cycles: cycles})
		},
	}
}

// BottlenecksResult is the output of the bottlenecks command.
type BottlenecksResult struct {
	Scores []graph.Score `json:"scores"`
}

func (r BottlenecksResult) renderText(w io.Writer) error {
	if len(r.Scores) == 0 {
		_, err := fmt.Fprintln(w, "Nothing is blocking anything")
		return err
	}
	for _, s := range r.Scores {
		if _, err := fmt.Fprintf(w, "%-24s blocks %d\n", s.ID, s.Blocked); err != nil {
			return err
		}
	}
	return nil
}

// NewBottlenecksCommand creates the bottlenecks command.
func NewBottlenecksCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:           "bottlenecks",
		Short:         "Rank nodes by how much work they transitively block",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			g, ws, err := loadGraph(rootOpts, cmd)
			if err != nil {
				return f.Fail("bottlenecks", err)
			}
			defer ws.Close()
			scores := g.Bottlenecks(limit)
			if scores == nil {
				scores = []graph.Score{}
			}
			return f.Success(BottlenecksResult{Scores: scores})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum number of nodes (0 = all)")
	return cmd
}
