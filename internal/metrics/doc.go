// Package metrics wires the queue's lifecycle observer into Prometheus
// collectors and keeps the per-partition gauges in sync with the store.
package metrics
