/*
Package coordinator serializes and sequences replication runs.

Exactly one run is active at a time; concurrent requests get ErrBusy
instead of queueing. A forward run gates on the latest health probes,
discovers collections, refreshes schema observations, replicates
documents and then users, and persists the stats file whether the run
completed, paused, or failed. Every tenth run an integrity pass rides
along; recovery always ends with one.
*/
package coordinator
