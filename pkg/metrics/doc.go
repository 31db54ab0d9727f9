/*
Package metrics provides Prometheus metrics collection and exposition for
Trove.

Metrics are registered at package init and exposed via Handler() for
scraping. Categories:

  - Trove op metrics: op latency, bytes read/written, live handles
  - Scheduler metrics: post->ready latency, waiters per mode, forced releases
  - Flow engine metrics: buffers in flight, bytes transferred, cancellations
  - SID cache metrics: record count, lookup latency

# Usage

	timer := metrics.NewTimer()
	// ... do work ...
	timer.ObserveDuration(metrics.TroveOpLatency)
*/
package metrics
