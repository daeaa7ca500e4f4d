package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/workgraph/internal/attribution"
	"github.com/roach88/workgraph/internal/eventlog"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Record agent activity",
	}
	cmd.AddCommand(newEventsAppendCommand(rootOpts))
	return cmd
}

// AppendResult is the output of events append.
type AppendResult struct {
	EventID string `json:"event_id"`
	File    string `json:"file"`
	attribution.Result
}

func (r AppendResult) renderText(w io.Writer) error {
	if !r.Attributed() {
		_, err := fmt.Fprintf(w, "Recorded %s (unattributed)\n", r.EventID)
		return err
	}
	flag := ""
	if r.LowConfidence {
		flag = ", low confidence"
	}
	_, err := fmt.Fprintf(w, "Recorded %s -> %s (%s, drift %.2f%s)\n", r.EventID, r.NodeID, r.Reason, r.Drift, flag)
	return err
}

type appendOptions struct {
	session string
	agent   string
	tool    string
	summary string
	node    string
	files   []string
	failed  bool
}

func newEventsAppendCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &appendOptions{}
	cmd := &cobra.Command{
		Use:   "append",
		Short: "Append one event, attributing it to a work item",
		Long: `Append an event to the session's log file.

The event is attributed to the explicit --node when given, otherwise to
the in-progress work whose scope covers the touched files, the session
placeholder, or the session's most recent work. Attribution never blocks
recording.

Examples:
  workgraph events append --session s1 --agent claude --tool Edit --file src/auth/login.py
  workgraph events append --session s1 --tool Bash --summary "go test" --failed`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("append", err)
			}
			defer ws.Close()

			ctx := cmd.Context()
			s, err := ws.store(ctx)
			if err != nil {
				return f.Fail("append", err)
			}
			log, err := ws.eventLog()
			if err != nil {
				return f.Fail("append", err)
			}

			engine := attribution.New(s.Snapshot(), log, ws.cfg.Attribution, attribution.WithLogger(ws.log))
			rec := attribution.NewRecorder(engine, log)

			ev := &eventlog.Event{
				Tool:             opts.tool,
				Summary:          opts.summary,
				Success:          !opts.failed,
				AttributedNodeID: opts.node,
				FilePaths:        opts.files,
			}
			res, err := rec.Record(ctx, ev, attribution.Actor{SessionID: opts.session, Agent: opts.agent})
			if err != nil {
				return f.Fail("failed to record event", err)
			}
			return f.Success(AppendResult{EventID: ev.EventID, File: eventlog.FileFor(ev.SessionID), Result: res})
		},
	}
	cmd.Flags().StringVar(&opts.session, "session", "", "session id")
	cmd.Flags().StringVar(&opts.agent, "agent", "", "agent name")
	cmd.Flags().StringVar(&opts.tool, "tool", "", "tool name (required)")
	cmd.Flags().StringVar(&opts.summary, "summary", "", "short description")
	cmd.Flags().StringVar(&opts.node, "node", "", "attribute to this node id")
	cmd.Flags().StringArrayVar(&opts.files, "file", nil, "touched file path (repeatable)")
	cmd.Flags().BoolVar(&opts.failed, "failed", false, "mark the tool call as failed")
	_ = cmd.MarkFlagRequired("tool")
	return cmd
}
