/*
Package types defines the shared data model for Mirror: documents, health
snapshots, run counters, watermarks, auth-directory users, and integrity
reports, plus the timestamp normalization rules every component relies on.

Timestamps are ISO-8601 strings normalized to fixed-width UTC nanosecond
form so that ordering is plain lexicographic string comparison. A document
without updatedAt or createdAt normalizes to the empty string, which is
treated as infinitely old when advancing watermarks and as always newer
when deciding whether to overwrite a target document.

The package has no dependencies on other Mirror packages; everything else
imports it.
*/
package types
