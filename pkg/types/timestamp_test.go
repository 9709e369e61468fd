package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		value    interface{}
		expected string
	}{
		{
			name:     "rfc3339 string",
			value:    "2024-01-01T00:00:03Z",
			expected: "2024-01-01T00:00:03.000000000Z",
		},
		{
			name:     "rfc3339 with offset",
			value:    "2024-01-01T02:00:03+02:00",
			expected: "2024-01-01T00:00:03.000000000Z",
		},
		{
			name:     "rfc3339 with fraction",
			value:    "2024-01-01T00:00:03.5Z",
			expected: "2024-01-01T00:00:03.500000000Z",
		},
		{
			name:     "native time",
			value:    time.Date(2024, 1, 1, 0, 0, 3, 0, time.UTC),
			expected: "2024-01-01T00:00:03.000000000Z",
		},
		{
			name:     "unparseable string",
			value:    "yesterday",
			expected: "",
		},
		{
			name:     "nil",
			value:    nil,
			expected: "",
		},
		{
			name:     "wrong type",
			value:    42,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, NormalizeTimestamp(tt.value))
		})
	}
}

func TestNormalizedFormIsLexicographicallyMinimal(t *testing.T) {
	// Short spellings of the same instant must never sort below the
	// normalized form, otherwise a watermark could skip documents.
	normalized := NormalizeTimestamp("2024-01-01T00:00:03Z")
	if "2024-01-01T00:00:03Z" < normalized {
		t.Fatalf("raw form sorts below normalized form %q", normalized)
	}
	if "2024-01-01T00:00:03.5Z" < NormalizeTimestamp("2024-01-01T00:00:03.5Z") {
		t.Fatal("fractional raw form sorts below its normalized form")
	}
}

func TestDocTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		data     map[string]interface{}
		expected string
	}{
		{
			name:     "updatedAt preferred",
			data:     map[string]interface{}{"updatedAt": "2024-01-02T00:00:00Z", "createdAt": "2024-01-01T00:00:00Z"},
			expected: "2024-01-02T00:00:00.000000000Z",
		},
		{
			name:     "createdAt fallback",
			data:     map[string]interface{}{"createdAt": "2024-01-01T00:00:00Z"},
			expected: "2024-01-01T00:00:00.000000000Z",
		},
		{
			name:     "neither present",
			data:     map[string]interface{}{"name": "doc"},
			expected: "",
		},
		{
			name:     "nil payload",
			data:     nil,
			expected: "",
		},
		{
			name:     "garbage updatedAt falls through to createdAt",
			data:     map[string]interface{}{"updatedAt": "not a time", "createdAt": "2024-01-01T00:00:00Z"},
			expected: "2024-01-01T00:00:00.000000000Z",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, DocTimestamp(tt.data))
		})
	}
}

func TestNewerThan(t *testing.T) {
	assert.True(t, NewerThan("2024-01-02T00:00:00.000000000Z", "2024-01-01T00:00:00.000000000Z"))
	assert.False(t, NewerThan("2024-01-01T00:00:00.000000000Z", "2024-01-01T00:00:00.000000000Z"))
	assert.False(t, NewerThan("2024-01-01T00:00:00.000000000Z", "2024-01-02T00:00:00.000000000Z"))

	// Missing source timestamp always overwrites.
	assert.True(t, NewerThan("", "2024-01-01T00:00:00.000000000Z"))
	// Target without a timestamp never wins.
	assert.True(t, NewerThan("2024-01-01T00:00:00.000000000Z", ""))
}

func TestMaxTimestamp(t *testing.T) {
	assert.Equal(t, "b", MaxTimestamp("a", "b"))
	assert.Equal(t, "b", MaxTimestamp("b", "a"))
	assert.Equal(t, "a", MaxTimestamp("a", ""))
	assert.Equal(t, "", MaxTimestamp("", ""))
}
