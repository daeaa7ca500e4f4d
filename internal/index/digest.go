package index

import (
	"context"
	"fmt"
	"strconv"

	"github.com/roach88/workgraph/internal/ir"
)

// digestTables lists the tables covered by Digest with their stable order.
// meta is left out because it records when the rebuild ran.
var digestTables = []struct {
	name  string
	order string
}{
	{"events", "seq"},
	{"event_files", "event_id COLLATE BINARY, position"},
	{"session_stats", "session_id COLLATE BINARY"},
	{"agent_stats", "agent COLLATE BINARY"},
	{"node_stats", "node_id COLLATE BINARY"},
	{"hour_buckets", "bucket"},
	{"log_offsets", "file COLLATE BINARY"},
}

// Digest returns a SHA-256 over the canonical JSON of every derived
// table. Two rebuilds over the same log produce the same digest.
func (ix *Index) Digest(ctx context.Context) (string, error) {
	doc := make(map[string]any, len(digestTables))
	for _, t := range digestTables {
		rows, err := ix.dumpTable(ctx, t.name, t.order)
		if err != nil {
			return "", err
		}
		doc[t.name] = rows
	}
	return ir.Digest(ir.DomainIndex, doc)
}

// dumpTable reads a table into canonical-JSON friendly values. NULL
// columns are omitted and reals are rendered as strings, since canonical
// JSON carries no floats.
func (ix *Index) dumpTable(ctx context.Context, table, order string) ([]any, error) {
	rows, err := ix.db.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY "+order)
	if err != nil {
		return nil, fmt.Errorf("dump %s: %w", table, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("dump %s: columns: %w", table, err)
	}

	out := []any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("dump %s: scan: %w", table, err)
		}

		row := make(map[string]any, len(cols))
		for i, col := range cols {
			switch v := vals[i].(type) {
			case nil:
			case float64:
				row[col] = strconv.FormatFloat(v, 'g', -1, 64)
			case []byte:
				row[col] = string(v)
			case bool:
				row[col] = v
			case int64:
				row[col] = v
			case string:
				row[col] = v
			default:
				return nil, fmt.Errorf("dump %s: column %s: unexpected %T", table, col, v)
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("dump %s: iterate: %w", table, err)
	}
	return out, nil
}
