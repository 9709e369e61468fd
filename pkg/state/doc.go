/*
Package state owns the persisted replication state: the cumulative run
counters, the per-collection forward/recover watermarks, and the auth
watermark.

The state lives in one JSON file (stats.json) written after every run via
write-to-temp-then-rename, and restored at startup when present. Counters
are monotonic non-decreasing; Reset is the only operation that zeroes
them, and ClearForwardWatermarks the only one that moves a watermark
backward.
*/
package state
