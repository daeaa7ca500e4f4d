package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

var meter = otel.Meter("workgraph")

// Counters are the metric instruments shared across packages.
type Counters struct {
	TxCommit       metric.Int64Counter
	TxRollback     metric.Int64Counter
	EventsAppended metric.Int64Counter
	IndexRebuilds  metric.Int64Counter
	LoadSkipped    metric.Int64Counter
	LowConfidence  metric.Int64Counter
}

var (
	countersOnce sync.Once
	counters     *Counters
)

// Metrics returns the process-wide counters, creating them on first use.
// An instrument the meter refuses to create is replaced by a no-op.
func Metrics() *Counters {
	countersOnce.Do(func() {
		counters = &Counters{
			TxCommit:       counter("workgraph_tx_commit_total", "Transactions committed"),
			TxRollback:     counter("workgraph_tx_rollback_total", "Transactions rolled back or rejected"),
			EventsAppended: counter("workgraph_events_appended_total", "Events appended to the log"),
			IndexRebuilds:  counter("workgraph_index_rebuild_total", "Secondary index rebuilds"),
			LoadSkipped:    counter("workgraph_load_skipped_total", "Node documents skipped during load"),
			LowConfidence:  counter("workgraph_low_confidence_total", "Attributions flagged low confidence"),
		}
	})
	return counters
}

func counter(name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		return noop.Int64Counter{}
	}
	return c
}

// Inc adds one to c with the given attributes.
func Inc(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}
