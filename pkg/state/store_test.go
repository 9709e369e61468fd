package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/mirror/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileStartsFresh(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "stats.json"))
	require.NoError(t, s.Load())
	assert.Zero(t, s.Counters().TotalDocumentsWritten)
	assert.Empty(t, s.Watermarks())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s := New(path)
	s.AddWritten(5)
	s.AddSkipped(2)
	s.AddErrors(1)
	s.MarkRun(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), true)
	s.AdvanceWatermark("appointments", types.DirectionForward, "2024-01-01T00:00:03.000000000Z")
	s.AdvanceWatermark("appointments", types.DirectionRecover, "2024-01-01T00:00:01.000000000Z")
	s.SetAuthWatermark(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	require.NoError(t, s.Save())

	restored := New(path)
	require.NoError(t, restored.Load())
	assert.Equal(t, int64(5), restored.Counters().TotalDocumentsWritten)
	assert.Equal(t, int64(2), restored.Counters().DuplicatesSkipped)
	assert.Equal(t, int64(1), restored.Counters().Errors)
	assert.Equal(t, "2024-01-01T00:00:03.000000000Z", restored.Watermark("appointments", types.DirectionForward))
	assert.Equal(t, "2024-01-01T00:00:01.000000000Z", restored.Watermark("appointments", types.DirectionRecover))
	assert.Equal(t, 2024, restored.AuthWatermark().Year())
}

func TestFileLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s := New(path)
	s.AddWritten(3)
	s.AdvanceWatermark("users", types.DirectionForward, "2024-01-01T00:00:02.000000000Z")
	require.NoError(t, s.Save())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	// Counters at top level, watermarks nested per collection.
	assert.EqualValues(t, 3, decoded["totalDocumentsWritten"])
	watermarks := decoded["watermarks"].(map[string]interface{})
	users := watermarks["users"].(map[string]interface{})
	assert.Equal(t, "2024-01-01T00:00:02.000000000Z", users["forward"])
	assert.Contains(t, decoded, "authWatermark")
}

func TestWatermarkNeverMovesBackward(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "stats.json"))
	s.AdvanceWatermark("c", types.DirectionForward, "2024-01-02T00:00:00.000000000Z")
	s.AdvanceWatermark("c", types.DirectionForward, "2024-01-01T00:00:00.000000000Z")
	assert.Equal(t, "2024-01-02T00:00:00.000000000Z", s.Watermark("c", types.DirectionForward))

	// Empty timestamps never advance anything.
	s.AdvanceWatermark("c", types.DirectionForward, "")
	assert.Equal(t, "2024-01-02T00:00:00.000000000Z", s.Watermark("c", types.DirectionForward))
}

func TestClearForwardWatermarksKeepsRecover(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "stats.json"))
	s.AdvanceWatermark("c", types.DirectionForward, "2024-01-02T00:00:00.000000000Z")
	s.AdvanceWatermark("c", types.DirectionRecover, "2024-01-01T00:00:00.000000000Z")

	s.ClearForwardWatermarks()

	assert.Equal(t, "", s.Watermark("c", types.DirectionForward))
	assert.Equal(t, "2024-01-01T00:00:00.000000000Z", s.Watermark("c", types.DirectionRecover))
}

func TestResetZeroesCountersNotWatermarks(t *testing.T) {
	s := New(filepath.Join(t.TempDir(), "stats.json"))
	s.AddWritten(10)
	s.AddAuth(4, 4, 2, 0, time.Now())
	s.AdvanceWatermark("c", types.DirectionForward, "2024-01-02T00:00:00.000000000Z")

	s.Reset()

	assert.Zero(t, s.Counters().TotalDocumentsWritten)
	assert.Zero(t, s.Counters().Auth.SyncedUsers)
	assert.Equal(t, "2024-01-02T00:00:00.000000000Z", s.Watermark("c", types.DirectionForward))
}

func TestSaveOverwritesAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats.json")
	s := New(path)
	require.NoError(t, s.Save())
	s.AddWritten(1)
	require.NoError(t, s.Save())

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
