/*
Package api exposes the engine over HTTP.

Read endpoints serve stats, health, collections, and observed schemas.
Control endpoints trigger syncs, recovery, reconciliation, and stats
resets; triggered runs execute in the background and concurrent
requests are refused while one is active. Live events stream over a
websocket at /api/events, with persisted history at /api/events/history
and Prometheus metrics at /metrics.
*/
package api
