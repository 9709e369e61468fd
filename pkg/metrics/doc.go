/*
Package metrics exposes Mirror's Prometheus instrumentation.

All collectors are package-level variables registered in init() and
updated directly by the components: documents written and duplicates
skipped by the replicator, endpoint health gauges by the health monitor,
auth counters by the auth replicator, drift gauges by the reconciler.
Handler() returns the promhttp handler the HTTP adapter mounts at
/metrics.
*/
package metrics
