package cli

import (
	"context"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/spf13/cobra"

	"github.com/roach88/workgraph/internal/config"
	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/index"
	"github.com/roach88/workgraph/internal/nodestore"
)

// workspace bundles what a command opened. Components are opened on first
// use so read-only commands never touch the index.
type workspace struct {
	cfg config.Config
	log *bolt.Logger

	nodes  *nodestore.Store
	events *eventlog.Log
	ix     *index.Index
}

func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}
}

// openWorkspace loads the config under opts.Root. Logs go to stderr so
// JSON output stays clean.
func openWorkspace(opts *RootOptions, cmd *cobra.Command) (*workspace, error) {
	cfg, err := config.Load(opts.Root)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, "failed to load config", err)
	}
	if opts.Verbose {
		cfg.Log.Level = "debug"
	}
	l, err := cfg.Logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeConfig, "failed to configure logging", err)
	}
	return &workspace{cfg: cfg, log: l}, nil
}

func (ws *workspace) store(ctx context.Context) (*nodestore.Store, error) {
	if ws.nodes != nil {
		return ws.nodes, nil
	}
	s, err := nodestore.Open(ctx, ws.cfg.Root,
		nodestore.WithLogger(ws.log),
		nodestore.WithLoadWorkers(ws.cfg.Nodes.LoadWorkers),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeWorkspace, "failed to open node store", err)
	}
	for _, sk := range s.LoadReport().Skipped {
		ws.log.Warn().Str("file", sk.File).Err(sk.Err).Msg("skipped node document")
	}
	ws.nodes = s
	return s, nil
}

func (ws *workspace) eventLog() (*eventlog.Log, error) {
	if ws.events != nil {
		return ws.events, nil
	}
	l, err := eventlog.Open(ws.cfg.Events.Dir, eventlog.WithLogger(ws.log))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeWorkspace, "failed to open event log", err)
	}
	ws.events = l
	return l, nil
}

func (ws *workspace) index() (*index.Index, error) {
	if ws.ix != nil {
		return ws.ix, nil
	}
	l, err := ws.eventLog()
	if err != nil {
		return nil, err
	}
	ix, err := index.Open(ws.cfg.Index.Path, l,
		index.WithLogger(ws.log),
		index.WithStaleAfter(ws.cfg.Index.StaleAfter),
	)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, ErrCodeWorkspace, "failed to open index", err)
	}
	ws.ix = ix
	return ix, nil
}

// Close releases the index. The node store and log hold no open handles.
func (ws *workspace) Close() error {
	if ws.ix != nil {
		return ws.ix.Close()
	}
	return nil
}
