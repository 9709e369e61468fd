/*
Package health maintains the four-endpoint health snapshot that gates
replication.

The Monitor probes primary/standby database and auth endpoints every
probe interval (default 10s). Probes run concurrently with a 5s deadline
each; a timeout counts as unhealthy. The completed round is published
atomically as a types.HealthSnapshot on the event bus and stored for
Snapshot() readers.

Decide translates a snapshot into the gating policy the coordinator
consults before a run:

	primaryDb  standbyDb  primaryAuth  standbyAuth  action
	false      *          *            *            paused (cannot read source)
	true       false      *            *            error (cannot write target)
	true       true       false        true         replicate DB only, auth paused
	true       true       true         false        error on auth phase
	true       true       true         true         full replication
*/
package health
