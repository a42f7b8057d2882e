// Package metrics exposes Prometheus metrics for the click feed.
//
// Key metrics:
//   - Connection state, transitions, dials and reconnects
//   - Subscription counts and subscribe/unsubscribe frames sent
//   - Router throughput, dropped events and listener panics
//   - Recorder inserts, conflicts and queue depth
//
// Most values are read from the components' Stats at scrape time, so
// nothing on the hot path touches Prometheus.
package metrics
