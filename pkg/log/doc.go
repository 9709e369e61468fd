/*
Package log provides structured logging for Mirror using zerolog.

The package wraps zerolog with a global logger initialized once via
log.Init(), configurable between JSON output (production) and console
output (development), plus child-logger helpers that attach the fields
used across the codebase: component, collection, side, and run_id.

Usage:

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	replLog := log.WithComponent("replicator")
	replLog.Info().
		Str("collection", "appointments").
		Int("written", 42).
		Msg("collection replicated")

Structured fields keep the output queryable: prefer .Str/.Int/.Err fields
over string interpolation, and never log credentials or password-hash
material.
*/
package log
