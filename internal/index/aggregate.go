package index

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SessionCount summarizes one session.
type SessionCount struct {
	SessionID string    `json:"session_id"`
	Agent     string    `json:"agent"`
	Events    int       `json:"events"`
	Failures  int       `json:"failures"`
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
}

// AgentCount summarizes one agent.
type AgentCount struct {
	Agent    string `json:"agent"`
	Events   int    `json:"events"`
	Sessions int    `json:"sessions"`
}

// NodeActivity summarizes the events attributed to one node.
type NodeActivity struct {
	NodeID        string    `json:"node_id"`
	Events        int       `json:"events"`
	LowConfidence int       `json:"low_confidence"`
	AvgDrift      float64   `json:"avg_drift"`
	LastSeen      time.Time `json:"last_seen"`
}

// Bucket is the event count for one UTC hour.
type Bucket struct {
	Start  time.Time `json:"start"`
	Events int       `json:"events"`
}

// SessionCounts returns per-session totals ordered by session id.
func (ix *Index) SessionCounts(ctx context.Context, opts ReadOptions) ([]SessionCount, error) {
	out := []SessionCount{}
	err := ix.collect(ctx, opts, `
		SELECT session_id, agent, event_count, failures, first_seen, last_seen
		FROM session_stats
		ORDER BY session_id COLLATE BINARY ASC
	`, nil, func(rows *sql.Rows) error {
		var (
			c           SessionCount
			first, last string
		)
		if err := rows.Scan(&c.SessionID, &c.Agent, &c.Events, &c.Failures, &first, &last); err != nil {
			return err
		}
		var err error
		if c.FirstSeen, err = parseTime(first); err != nil {
			return err
		}
		if c.LastSeen, err = parseTime(last); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// AgentCounts returns per-agent totals ordered by agent.
func (ix *Index) AgentCounts(ctx context.Context, opts ReadOptions) ([]AgentCount, error) {
	out := []AgentCount{}
	err := ix.collect(ctx, opts, `
		SELECT agent, event_count, session_count
		FROM agent_stats
		ORDER BY agent COLLATE BINARY ASC
	`, nil, func(rows *sql.Rows) error {
		var c AgentCount
		if err := rows.Scan(&c.Agent, &c.Events, &c.Sessions); err != nil {
			return err
		}
		out = append(out, c)
		return nil
	})
	return out, err
}

// NodeActivity returns the most active nodes, busiest first, ties by id.
// limit <= 0 returns every node.
func (ix *Index) NodeActivity(ctx context.Context, limit int, opts ReadOptions) ([]NodeActivity, error) {
	q := `
		SELECT node_id, event_count, low_confidence_count, avg_drift, last_seen
		FROM node_stats
		ORDER BY event_count DESC, node_id COLLATE BINARY ASC
	`
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	out := []NodeActivity{}
	err := ix.collect(ctx, opts, q, args, func(rows *sql.Rows) error {
		var (
			a    NodeActivity
			last string
		)
		if err := rows.Scan(&a.NodeID, &a.Events, &a.LowConfidence, &a.AvgDrift, &last); err != nil {
			return err
		}
		var err error
		if a.LastSeen, err = parseTime(last); err != nil {
			return err
		}
		out = append(out, a)
		return nil
	})
	return out, err
}

// TimeBuckets returns hourly event counts in [since, until). Zero bounds
// are open.
func (ix *Index) TimeBuckets(ctx context.Context, since, until time.Time, opts ReadOptions) ([]Bucket, error) {
	q := `SELECT bucket, event_count FROM hour_buckets WHERE 1 = 1`
	var args []any
	if !since.IsZero() {
		q += " AND bucket >= ?"
		args = append(args, formatHour(since))
	}
	if !until.IsZero() {
		q += " AND bucket < ?"
		args = append(args, formatHour(until))
	}
	q += " ORDER BY bucket ASC"

	out := []Bucket{}
	err := ix.collect(ctx, opts, q, args, func(rows *sql.Rows) error {
		var (
			b     Bucket
			start string
		)
		if err := rows.Scan(&start, &b.Events); err != nil {
			return err
		}
		var err error
		if b.Start, err = time.Parse(time.RFC3339, start); err != nil {
			return err
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

// formatHour renders the bucket key for the hour containing t.
func formatHour(t time.Time) string {
	return t.UTC().Truncate(time.Hour).Format("2006-01-02T15") + ":00:00Z"
}

// collect runs q after the staleness check and hands each row to scan.
func (ix *Index) collect(ctx context.Context, opts ReadOptions, q string, args []any, scan func(*sql.Rows) error) error {
	if err := ix.guard(ctx, opts); err != nil {
		return err
	}
	rows, err := ix.db.QueryContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	return nil
}
