package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/index"
	"github.com/roach88/workgraph/internal/model"
)

// NewIndexCommand creates the index command group.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Maintain and query the event index",
		Long: `The event index is a SQLite cache derived from the event log. It can be
deleted at any time and rebuilt with "workgraph index rebuild".`,
	}
	cmd.AddCommand(newIndexRebuildCommand(rootOpts))
	cmd.AddCommand(newIndexStatusCommand(rootOpts))
	cmd.AddCommand(newIndexQueryCommand(rootOpts))
	cmd.AddCommand(newIndexStatsCommand(rootOpts))
	cmd.AddCommand(newIndexWatchCommand(rootOpts))
	return cmd
}

// failIndex adds a rebuild hint to stale-index failures.
func failIndex(f *OutputFormatter, message string, err error) error {
	if model.IsIndexStale(err) {
		message += " (run \"workgraph index rebuild\" or pass --allow-stale)"
	}
	return f.Fail(message, err)
}

// RebuildResult is the output of index rebuild.
type RebuildResult struct {
	index.RebuildStats
	Digest   string `json:"digest"`
	Duration string `json:"duration"`
}

func (r RebuildResult) renderText(w io.Writer) error {
	_, err := fmt.Fprintf(w, "Indexed %d events from %d files in %s (corrupt lines: %d, duplicates: %d)\nDigest: %s\n",
		r.Events, r.Files, r.Duration, r.Corrupt, r.Duplicates, r.Digest)
	return err
}

func newIndexRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rebuild",
		Short:         "Rebuild the index from the event log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("rebuild", err)
			}
			defer ws.Close()
			ix, err := ws.index()
			if err != nil {
				return f.Fail("rebuild", err)
			}

			ctx := cmd.Context()
			start := time.Now()
			stats, err := ix.Rebuild(ctx)
			if err != nil {
				return f.Fail("rebuild failed", err)
			}
			digest, err := ix.Digest(ctx)
			if err != nil {
				return f.Fail("rebuild failed", err)
			}
			return f.Success(RebuildResult{
				RebuildStats: stats,
				Digest:       digest,
				Duration:     time.Since(start).Round(time.Millisecond).String(),
			})
		},
	}
}

// StatusResult is the output of index status.
type StatusResult struct {
	index.Status
}

func (r StatusResult) renderText(w io.Writer) error {
	fmt.Fprintf(w, "Index:   %s\n", r.Path)
	if !r.Built {
		_, err := fmt.Fprintln(w, "State:   never built")
		return err
	}
	state := "fresh"
	switch {
	case r.Stale:
		state = "stale: " + r.StaleReason
	case r.Pending:
		state = "pending (within grace period)"
	}
	fmt.Fprintf(w, "State:   %s\n", state)
	fmt.Fprintf(w, "Built:   %s\n", r.LastRebuild.Format(time.RFC3339))
	_, err := fmt.Fprintf(w, "Events:  %d (corrupt lines skipped: %d)\n", r.Events, r.Corrupt)
	return err
}

func newIndexStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Report whether the index is behind the log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("status", err)
			}
			defer ws.Close()
			ix, err := ws.index()
			if err != nil {
				return f.Fail("status", err)
			}
			st, err := ix.Status(cmd.Context())
			if err != nil {
				return f.Fail("status", err)
			}
			return f.Success(StatusResult{Status: st})
		},
	}
}

// EventsResult is the output of index query.
type EventsResult struct {
	Count  int              `json:"count"`
	Events []eventlog.Event `json:"events"`
}

func (r EventsResult) renderText(w io.Writer) error {
	if r.Count == 0 {
		_, err := fmt.Fprintln(w, "No events")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSESSION\tTOOL\tNODE\tDRIFT\tFILES")
	for _, ev := range r.Events {
		drift := "-"
		if ev.DriftScore != nil {
			drift = fmt.Sprintf("%.2f", *ev.DriftScore)
			if ev.LowConfidence {
				drift += "!"
			}
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ev.Timestamp.Format(time.RFC3339), ev.SessionID, ev.Tool, ev.AttributedNodeID, drift,
			strings.Join(ev.FilePaths, ","))
	}
	return tw.Flush()
}

type indexQueryOptions struct {
	filter     index.Filter
	since      string
	until      string
	lowConf    bool
	failed     bool
	limit      int
	newest     bool
	allowStale bool
}

func parseTimeFlag(name, v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if d, err := time.ParseDuration(v); err == nil {
		return time.Now().UTC().Add(-d), nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, NewExitError(ExitCommandError, ErrCodeUsage,
			fmt.Sprintf("--%s: want RFC 3339 time or duration, got %q", name, v))
	}
	return t, nil
}

func newIndexQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &indexQueryOptions{}
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Query indexed events",
		Long: `Query events from the index, oldest first.

--since and --until take an RFC 3339 time or a duration back from now
(e.g. --since 2h). --file takes a glob matched against touched paths.

Exit codes:
  0 - Success (including no matches)
  1 - The index is stale
  2 - Bad flags or unreadable workspace`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			flt := opts.filter
			var err error
			if flt.Since, err = parseTimeFlag("since", opts.since); err != nil {
				return f.Fail("query", err)
			}
			if flt.Until, err = parseTimeFlag("until", opts.until); err != nil {
				return f.Fail("query", err)
			}
			if cmd.Flags().Changed("low-confidence") {
				flt.LowConfidence = &opts.lowConf
			}
			if cmd.Flags().Changed("failed") {
				ok := !opts.failed
				flt.Success = &ok
			}

			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("query", err)
			}
			defer ws.Close()
			ix, err := ws.index()
			if err != nil {
				return f.Fail("query", err)
			}
			events, err := ix.Query(cmd.Context(), flt, opts.limit,
				index.ReadOptions{AllowStale: opts.allowStale, Newest: opts.newest})
			if err != nil {
				return failIndex(f, "query failed", err)
			}
			return f.Success(EventsResult{Count: len(events), Events: events})
		},
	}
	fl := cmd.Flags()
	fl.StringVar(&opts.filter.SessionID, "session", "", "session id")
	fl.StringVar(&opts.filter.Agent, "agent", "", "agent name")
	fl.StringVar(&opts.filter.Tool, "tool", "", "tool name")
	fl.StringVar(&opts.filter.NodeID, "node", "", "attributed node id")
	fl.StringVar(&opts.filter.FilePath, "file", "", "touched path glob")
	fl.StringVar(&opts.since, "since", "", "earliest time (inclusive)")
	fl.StringVar(&opts.until, "until", "", "latest time (exclusive)")
	fl.BoolVar(&opts.lowConf, "low-confidence", false, "only low-confidence attributions (false: only confident)")
	fl.BoolVar(&opts.failed, "failed", false, "only failed tool calls (false: only successful)")
	fl.IntVar(&opts.limit, "limit", 50, "maximum number of events (0 = all)")
	fl.BoolVar(&opts.newest, "newest", false, "newest first")
	fl.BoolVar(&opts.allowStale, "allow-stale", false, "read a stale index instead of failing")
	return cmd
}

// StatsResult is the output of index stats.
type StatsResult struct {
	Sessions []index.SessionCount `json:"sessions"`
	Agents   []index.AgentCount   `json:"agents"`
	Nodes    []index.NodeActivity `json:"nodes"`
	Hours    []index.Bucket       `json:"hours"`
}

func (r StatsResult) renderText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tAGENT\tEVENTS\tFAILURES\tLAST SEEN")
	for _, s := range r.Sessions {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", s.SessionID, s.Agent, s.Events, s.Failures, s.LastSeen.Format(time.RFC3339))
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "AGENT\tEVENTS\tSESSIONS")
	for _, a := range r.Agents {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", a.Agent, a.Events, a.Sessions)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "NODE\tEVENTS\tLOW CONFIDENCE\tAVG DRIFT")
	for _, n := range r.Nodes {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\n", n.NodeID, n.Events, n.LowConfidence, n.AvgDrift)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "HOUR\tEVENTS")
	for _, b := range r.Hours {
		fmt.Fprintf(tw, "%s\t%d\n", b.Start.Format(time.RFC3339), b.Events)
	}
	return tw.Flush()
}

func newIndexStatsCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		nodes      int
		since      string
		allowStale bool
	)
	cmd := &cobra.Command{
		Use:           "stats",
		Short:         "Per-session, per-agent, per-node and hourly event totals",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			from, err := parseTimeFlag("since", since)
			if err != nil {
				return f.Fail("stats", err)
			}
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("stats", err)
			}
			defer ws.Close()
			ix, err := ws.index()
			if err != nil {
				return f.Fail("stats", err)
			}

			ctx := cmd.Context()
			ro := index.ReadOptions{AllowStale: allowStale}
			var res StatsResult
			if res.Sessions, err = ix.SessionCounts(ctx, ro); err != nil {
				return failIndex(f, "stats failed", err)
			}
			if res.Agents, err = ix.AgentCounts(ctx, ro); err != nil {
				return failIndex(f, "stats failed", err)
			}
			if res.Nodes, err = ix.NodeActivity(ctx, nodes, ro); err != nil {
				return failIndex(f, "stats failed", err)
			}
			if res.Hours, err = ix.TimeBuckets(ctx, from, time.Time{}, ro); err != nil {
				return failIndex(f, "stats failed", err)
			}
			return f.Success(res)
		},
	}
	cmd.Flags().IntVar(&nodes, "nodes", 10, "number of most active nodes (0 = all)")
	cmd.Flags().StringVar(&since, "since", "24h", "hourly buckets from this time or duration back")
	cmd.Flags().BoolVar(&allowStale, "allow-stale", false, "read a stale index instead of failing")
	return cmd
}

func newIndexWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Rebuild the index whenever the event log changes",
		Long: `Rebuild once, then watch the event log directory and rebuild after
each burst of appends. Runs until interrupted.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ws, err := openWorkspace(rootOpts, cmd)
			if err != nil {
				return f.Fail("watch", err)
			}
			defer ws.Close()
			ix, err := ws.index()
			if err != nil {
				return f.Fail("watch", err)
			}
			log, err := ws.eventLog()
			if err != nil {
				return f.Fail("watch", err)
			}
			if !cmd.Flags().Changed("debounce") {
				debounce = ws.cfg.Index.WatchDebounce
			}

			ctx := cmd.Context()
			if _, err := ix.Rebuild(ctx); err != nil {
				return f.Fail("initial rebuild failed", err)
			}
			f.VerboseLog("Watching %s", log.Dir())

			err = log.Watch(ctx, debounce, func(files []string) {
				stats, err := ix.Rebuild(ctx)
				if err != nil {
					ws.log.Error().Err(err).Msg("rebuild after change failed")
					return
				}
				ws.log.Info().Int("events", stats.Events).Int("files", len(files)).Msg("index rebuilt")
			})
			if err != nil {
				return f.Fail("watch failed", err)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before rebuilding (default from config)")
	return cmd
}
