package index

import (
	"cmp"
	"context"
	"database/sql"
	"fmt"
	"maps"
	"slices"
	"strconv"

	"github.com/roach88/workgraph/internal/eventlog"
	"github.com/roach88/workgraph/internal/observe"
)

// Meta keys.
const (
	metaLastRebuild = "last_rebuild"
	metaEventCount  = "event_count"
	metaCorrupt     = "corrupt_lines"
	metaDuplicates  = "duplicate_events"
)

// RebuildStats summarizes one rebuild.
type RebuildStats struct {
	Events     int `json:"events"`
	Files      int `json:"files"`
	Corrupt    int `json:"corrupt"`
	Duplicates int `json:"duplicates"`
}

// derivedTables lists every table Rebuild replaces, children first.
var derivedTables = []string{
	"event_files",
	"events",
	"session_stats",
	"agent_stats",
	"node_stats",
	"hour_buckets",
	"log_offsets",
	"meta",
}

// Rebuild replaces the index contents with the log as of a checkpoint
// taken at the start. Events are ordered by timestamp, then event id.
// A repeated event id keeps its first occurrence in that order.
//
// The whole replacement is one SQL transaction: readers see the old index
// or the new one, never a mix. Running Rebuild twice over the same log
// yields the same Digest.
func (ix *Index) Rebuild(ctx context.Context) (stats RebuildStats, err error) {
	ctx, span := observe.StartSpan(ctx, "index.rebuild")
	defer span.End()

	cp, err := ix.log.Checkpoint()
	if err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: checkpoint: %w", err)
	}
	batch, err := ix.log.ReadUpTo(cp)
	if err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: read log: %w", err)
	}

	events := batch.Events
	slices.SortStableFunc(events, func(a, b eventlog.Event) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.EventID, b.EventID)
	})
	seen := make(map[string]bool, len(events))
	unique := events[:0]
	for _, ev := range events {
		if seen[ev.EventID] {
			stats.Duplicates++
			continue
		}
		seen[ev.EventID] = true
		unique = append(unique, ev)
	}
	events = unique

	stats.Events = len(events)
	stats.Files = len(cp)
	stats.Corrupt = batch.Corrupt

	tx, err := ix.db.BeginTx(ctx, nil)
	if err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: begin tx: %w", err)
	}
	defer tx.Rollback()

	for _, table := range derivedTables {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return RebuildStats{}, fmt.Errorf("rebuild: clear %s: %w", table, err)
		}
	}

	if err := insertEvents(ctx, tx, events); err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: %w", err)
	}
	if err := insertAggregates(ctx, tx); err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: %w", err)
	}

	for _, file := range slices.Sorted(maps.Keys(cp)) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO log_offsets (file, size, consumed) VALUES (?, ?, ?)`,
			file, cp[file], batch.Offsets[file],
		); err != nil {
			return RebuildStats{}, fmt.Errorf("rebuild: insert offset: %w", err)
		}
	}

	meta := map[string]string{
		metaLastRebuild: formatTime(ix.clock.Now()),
		metaEventCount:  strconv.Itoa(stats.Events),
		metaCorrupt:     strconv.Itoa(stats.Corrupt),
		metaDuplicates:  strconv.Itoa(stats.Duplicates),
	}
	for _, key := range slices.Sorted(maps.Keys(meta)) {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, key, meta[key]); err != nil {
			return RebuildStats{}, fmt.Errorf("rebuild: insert meta: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return RebuildStats{}, fmt.Errorf("rebuild: commit: %w", err)
	}

	observe.Inc(ctx, observe.Metrics().IndexRebuilds)
	ix.logger.Info().
		Int("events", stats.Events).
		Int("files", stats.Files).
		Int("corrupt", stats.Corrupt).
		Msg("index rebuilt")
	return stats, nil
}

func insertEvents(ctx context.Context, tx *sql.Tx, events []eventlog.Event) error {
	evStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events
		(event_id, seq, timestamp, session_id, agent, tool, summary, success,
		 attributed_node_id, drift_score, low_confidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer evStmt.Close()

	fileStmt, err := tx.PrepareContext(ctx,
		`INSERT INTO event_files (event_id, position, path) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare event files: %w", err)
	}
	defer fileStmt.Close()

	for i, ev := range events {
		var node sql.NullString
		if ev.AttributedNodeID != "" {
			node = sql.NullString{String: ev.AttributedNodeID, Valid: true}
		}
		var drift sql.NullFloat64
		if ev.DriftScore != nil {
			drift = sql.NullFloat64{Float64: *ev.DriftScore, Valid: true}
		}
		if _, err := evStmt.ExecContext(ctx,
			ev.EventID,
			i+1,
			formatTime(ev.Timestamp),
			ev.SessionID,
			ev.Agent,
			ev.Tool,
			ev.Summary,
			ev.Success,
			node,
			drift,
			ev.LowConfidence,
		); err != nil {
			return fmt.Errorf("insert event %s: %w", ev.EventID, err)
		}
		for pos, path := range ev.FilePaths {
			if _, err := fileStmt.ExecContext(ctx, ev.EventID, pos, path); err != nil {
				return fmt.Errorf("insert file for %s: %w", ev.EventID, err)
			}
		}
	}
	return nil
}

// aggregateSQL derives the summary tables from events.
var aggregateSQL = []string{
	`INSERT INTO session_stats (session_id, agent, event_count, failures, first_seen, last_seen)
	 SELECT e.session_id,
	        (SELECT l.agent FROM events l WHERE l.session_id = e.session_id ORDER BY l.seq DESC LIMIT 1),
	        COUNT(*),
	        SUM(CASE WHEN e.success THEN 0 ELSE 1 END),
	        MIN(e.timestamp),
	        MAX(e.timestamp)
	 FROM events e
	 GROUP BY e.session_id`,

	`INSERT INTO agent_stats (agent, event_count, session_count)
	 SELECT agent, COUNT(*), COUNT(DISTINCT session_id)
	 FROM events
	 GROUP BY agent`,

	`INSERT INTO node_stats (node_id, event_count, low_confidence_count, avg_drift, last_seen)
	 SELECT attributed_node_id,
	        COUNT(*),
	        SUM(low_confidence),
	        COALESCE(AVG(drift_score), 0),
	        MAX(timestamp)
	 FROM events
	 WHERE attributed_node_id IS NOT NULL
	 GROUP BY attributed_node_id`,

	`INSERT INTO hour_buckets (bucket, event_count)
	 SELECT substr(timestamp, 1, 13) || ':00:00Z', COUNT(*)
	 FROM events
	 GROUP BY substr(timestamp, 1, 13)`,
}

func insertAggregates(ctx context.Context, tx *sql.Tx) error {
	for _, stmt := range aggregateSQL {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("aggregate: %w", err)
		}
	}
	return nil
}
