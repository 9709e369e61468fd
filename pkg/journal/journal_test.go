package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestJournal(t *testing.T, capacity int) *Journal {
	t.Helper()
	j, err := Open(filepath.Join(t.TempDir(), "events.db"), capacity)
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestAppendAndRecent(t *testing.T) {
	j := openTestJournal(t, 100)

	for _, typ := range []events.EventType{events.EventRunStarted, events.EventRunCompleted, events.EventStats} {
		require.NoError(t, j.Append(&events.Event{ID: string(typ), Type: typ, Timestamp: time.Now().UTC()}))
	}

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 3)
	// Chronological order, oldest first.
	assert.Equal(t, events.EventRunStarted, got[0].Type)
	assert.Equal(t, events.EventStats, got[2].Type)

	got, err = j.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, events.EventRunCompleted, got[0].Type)
	assert.Equal(t, events.EventStats, got[1].Type)
}

func TestPruneBeyondCap(t *testing.T) {
	j := openTestJournal(t, 5)

	for i := 0; i < 12; i++ {
		require.NoError(t, j.Append(&events.Event{Type: events.EventHealth, Timestamp: time.Now().UTC()}))
	}

	n, err := j.Len()
	require.NoError(t, err)
	assert.Equal(t, 5, n)
}

func TestFollowRecordsBrokerEvents(t *testing.T) {
	j := openTestJournal(t, 100)
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	j.Follow(broker)
	broker.Emit(events.EventSchemaChange, events.SchemaChange{Collection: "c", NewKeys: []string{"a"}, TotalKeys: 1})

	require.Eventually(t, func() bool {
		n, err := j.Len()
		return err == nil && n == 1
	}, 2*time.Second, 10*time.Millisecond)

	got, err := j.Recent(1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, events.EventSchemaChange, got[0].Type)
	assert.NotEmpty(t, got[0].ID)
}

func TestSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	j, err := Open(path, 100)
	require.NoError(t, err)
	require.NoError(t, j.Append(&events.Event{ID: "e1", Type: events.EventHealth}))
	require.NoError(t, j.Close())

	j, err = Open(path, 100)
	require.NoError(t, err)
	defer j.Close()

	got, err := j.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].ID)
}
