// Package scheduler fires incremental runs on a fixed interval. Ticks
// that collide with an active run are dropped rather than queued.
package scheduler
