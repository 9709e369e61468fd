package types

import (
	"time"
)

// Timestamps are compared lexicographically, so the normalized form must be
// fixed width: UTC with nanosecond precision and a literal Z suffix. The
// normalized form of an instant is lexicographically minimal among its
// RFC-3339 spellings, which keeps watermarks conservative when documents
// store shorter forms (worst case a re-read, never a skipped document).
const timestampLayout = "2006-01-02T15:04:05.000000000"

// NormalizeTime formats t as a normalized timestamp string.
func NormalizeTime(t time.Time) string {
	return t.UTC().Format(timestampLayout) + "Z"
}

// NormalizeTimestamp converts a raw timestamp value from a document payload
// into the normalized form. It accepts time.Time (the Firestore decoding of
// native timestamps) and RFC-3339 strings. Anything else, including an
// unparseable string, normalizes to "".
func NormalizeTimestamp(v interface{}) string {
	switch t := v.(type) {
	case time.Time:
		return NormalizeTime(t)
	case *time.Time:
		if t == nil {
			return ""
		}
		return NormalizeTime(*t)
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return ""
		}
		return NormalizeTime(parsed)
	default:
		return ""
	}
}

// DocTimestamp extracts the engine-meaningful timestamp from a document
// payload: updatedAt preferred, createdAt as fallback, "" when neither is
// present or parseable. A document with "" is infinitely old for watermark
// advancement and always newer than the target for overwrite purposes.
func DocTimestamp(data map[string]interface{}) string {
	if data == nil {
		return ""
	}
	if ts := NormalizeTimestamp(data["updatedAt"]); ts != "" {
		return ts
	}
	return NormalizeTimestamp(data["createdAt"])
}

// NewerThan reports whether candidate is strictly newer than reference.
// An empty candidate is always newer (missing timestamps overwrite); an
// empty reference never wins against a non-empty candidate.
func NewerThan(candidate, reference string) bool {
	if candidate == "" {
		return true
	}
	if reference == "" {
		return true
	}
	return candidate > reference
}

// MaxTimestamp returns the later of two normalized timestamps, treating ""
// as infinitely old.
func MaxTimestamp(a, b string) string {
	if a > b {
		return a
	}
	return b
}
