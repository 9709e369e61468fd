// Package journal persists the event stream to a bolt file, capped at
// the most recent entries, so history survives client reconnects and
// process restarts.
package journal
