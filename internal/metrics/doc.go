// Package metrics collects per-request outcomes of the forwarding proxy.
//
// Request handlers Emit MetricEvent values into a buffered channel without
// blocking; a single collector goroutine folds them into Metrics:
//   - request and response counts
//   - failures by kind (connection, upstream, malformed, canceled)
//   - upstream status code distribution and bytes relayed
//   - response times with P50, P95 and P99
//   - last known destination health
//
// Example usage:
//
//	collector := metrics.NewCollector(1000, logger)
//	go collector.Run(ctx)
//
//	collector.Emit(metrics.MetricEvent{
//		Type:       metrics.EventResponseCompleted,
//		Duration:   150 * time.Millisecond,
//		StatusCode: 200,
//		Bytes:      512,
//	})
//
//	snapshot := collector.Snapshot("http://localhost:8081")
//
// Pending events are drained when the collector's context is cancelled.
package metrics
