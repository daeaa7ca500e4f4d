package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/model"
)

// Filter selects events. Zero fields do not constrain.
type Filter struct {
	SessionID string
	Agent     string
	Tool      string
	NodeID    string
	// FilePath is a SQLite GLOB pattern matched against any touched path.
	FilePath string
	Since    time.Time // inclusive
	Until    time.Time // exclusive
	// LowConfidence and Success filter on the flag when non-nil.
	LowConfidence *bool
	Success       *bool
}

// ReadOptions control how a read treats a stale index.
type ReadOptions struct {
	// AllowStale returns whatever the index holds instead of IndexStale.
	AllowStale bool
	// Newest returns the most recent events first.
	Newest bool
}

// compile builds the WHERE clause. Values are always bound, never
// interpolated.
func (f Filter) compile() (string, []any) {
	var (
		conds []string
		args  []any
	)
	eq := func(col, v string) {
		if v != "" {
			conds = append(conds, col+" = ?")
			args = append(args, v)
		}
	}
	eq("e.session_id", f.SessionID)
	eq("e.agent", f.Agent)
	eq("e.tool", f.Tool)
	eq("e.attributed_node_id", f.NodeID)

	if f.FilePath != "" {
		conds = append(conds, "EXISTS (SELECT 1 FROM event_files f WHERE f.event_id = e.event_id AND f.path GLOB ?)")
		args = append(args, f.FilePath)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "e.timestamp >= ?")
		args = append(args, formatTime(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "e.timestamp < ?")
		args = append(args, formatTime(f.Until))
	}
	if f.LowConfidence != nil {
		conds = append(conds, "e.low_confidence = ?")
		args = append(args, *f.LowConfidence)
	}
	if f.Success != nil {
		conds = append(conds, "e.success = ?")
		args = append(args, *f.Success)
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns events matching f in log order (timestamp, then id).
// limit <= 0 returns every match.
func (ix *Index) Query(ctx context.Context, f Filter, limit int, opts ReadOptions) ([]eventlog.Event, error) {
	if err := ix.guard(ctx, opts); err != nil {
		return nil, err
	}

	where, args := f.compile()
	order := " ORDER BY e.seq ASC"
	if opts.Newest {
		order = " ORDER BY e.seq DESC"
	}
	q := `
		SELECT e.event_id, e.timestamp, e.session_id, e.agent, e.tool, e.summary, e.success,
		       e.attributed_node_id, e.drift_score, e.low_confidence,
		       (SELECT json_group_array(path) FROM
		           (SELECT path FROM event_files f WHERE f.event_id = e.event_id ORDER BY f.position))
		FROM events e` + where + order
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []eventlog.Event{}
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// Count returns the number of events matching f.
func (ix *Index) Count(ctx context.Context, f Filter, opts ReadOptions) (int, error) {
	if err := ix.guard(ctx, opts); err != nil {
		return 0, err
	}
	where, args := f.compile()
	var n int
	if err := ix.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM events e"+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}

func scanEvent(rows *sql.Rows) (eventlog.Event, error) {
	var (
		ev        eventlog.Event
		ts        string
		node      sql.NullString
		drift     sql.NullFloat64
		filesJSON string
	)
	if err := rows.Scan(
		&ev.EventID, &ts, &ev.SessionID, &ev.Agent, &ev.Tool, &ev.Summary, &ev.Success,
		&node, &drift, &ev.LowConfidence, &filesJSON,
	); err != nil {
		return eventlog.Event{}, fmt.Errorf("scan event: %w", err)
	}

	t, err := parseTime(ts)
	if err != nil {
		return eventlog.Event{}, fmt.Errorf("event %s: parse timestamp: %w", ev.EventID, err)
	}
	ev.Timestamp = t
	ev.AttributedNodeID = node.String
	if drift.Valid {
		ev.SetDrift(drift.Float64)
	}
	if err := json.Unmarshal([]byte(filesJSON), &ev.FilePaths); err != nil {
		return eventlog.Event{}, fmt.Errorf("event %s: file paths: %w", ev.EventID, err)
	}
	return ev, nil
}

// Status describes the index relative to the log.
type Status struct {
	Path        string    `json:"path"`
	Built       bool      `json:"built"`
	LastRebuild time.Time `json:"last_rebuild,omitzero"`
	Events      int       `json:"events"`
	Corrupt     int       `json:"corrupt"`
	// Pending reports log data appended since the last rebuild.
	Pending bool `json:"pending"`
	// Stale reports whether reads without AllowStale would fail.
	Stale       bool   `json:"stale"`
	StaleReason string `json:"stale_reason,omitempty"`
}

// Status reports the index state. It never returns IndexStale.
func (ix *Index) Status(ctx context.Context) (Status, error) {
	st := Status{Path: ix.path}

	meta, err := ix.readMeta(ctx)
	if err != nil {
		return Status{}, err
	}
	if v, ok := meta[metaLastRebuild]; ok {
		t, err := parseTime(v)
		if err != nil {
			return Status{}, fmt.Errorf("parse last rebuild: %w", err)
		}
		st.Built = true
		st.LastRebuild = t
	}
	st.Events, _ = strconv.Atoi(meta[metaEventCount])
	st.Corrupt, _ = strconv.Atoi(meta[metaCorrupt])

	if st.Built {
		if st.Pending, err = ix.pending(ctx); err != nil {
			return Status{}, err
		}
	}
	st.StaleReason = ix.staleReason(st)
	st.Stale = st.StaleReason != ""
	return st, nil
}

// guard returns IndexStale when the staleness policy rejects a read.
func (ix *Index) guard(ctx context.Context, opts ReadOptions) error {
	if opts.AllowStale {
		return nil
	}
	st, err := ix.Status(ctx)
	if err != nil {
		return err
	}
	if st.Stale {
		return model.NewIndexStale(st.StaleReason)
	}
	return nil
}

func (ix *Index) staleReason(st Status) string {
	switch {
	case !st.Built:
		return "index has never been built"
	case st.Pending && ix.clock.Now().Sub(st.LastRebuild) >= ix.staleAfter:
		return "event log has entries newer than the last rebuild"
	}
	return ""
}

// pending compares the log's current sizes with those recorded at the last
// rebuild.
func (ix *Index) pending(ctx context.Context) (bool, error) {
	now, err := ix.log.Checkpoint()
	if err != nil {
		return false, fmt.Errorf("log checkpoint: %w", err)
	}

	rows, err := ix.db.QueryContext(ctx, `SELECT file, size FROM log_offsets ORDER BY file`)
	if err != nil {
		return false, fmt.Errorf("read offsets: %w", err)
	}
	defer rows.Close()

	indexed := eventlog.Checkpoint{}
	for rows.Next() {
		var (
			file string
			size int64
		)
		if err := rows.Scan(&file, &size); err != nil {
			return false, fmt.Errorf("scan offset: %w", err)
		}
		indexed[file] = size
	}
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("iterate offsets: %w", err)
	}
	return indexed.Behind(now), nil
}

func (ix *Index) readMeta(ctx context.Context) (map[string]string, error) {
	rows, err := ix.db.QueryContext(ctx, `SELECT key, value FROM meta ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	defer rows.Close()

	meta := map[string]string{}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	return meta, nil
}
