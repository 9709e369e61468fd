/*
Package reconciler detects drift between the two sides.

A pass lists document IDs per collection and user UIDs per directory on
both sides concurrently, diffs the sets, and publishes an integrity
report. The pass is strictly read-only: it surfaces what the replicator
and recovery flows should heal, it never heals anything itself.
*/
package reconciler
