package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitForEvent(t *testing.T, sub Subscriber) *Event {
	t.Helper()
	select {
	case ev := <-sub:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func TestBrokerDeliversToAllSubscribers(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub1 := broker.Subscribe()
	sub2 := broker.Subscribe()
	defer broker.Unsubscribe(sub1)
	defer broker.Unsubscribe(sub2)

	broker.Emit(EventCollectionCompleted, CollectionCompleted{Collection: "appointments", WrittenCount: 3})

	for _, sub := range []Subscriber{sub1, sub2} {
		ev := waitForEvent(t, sub)
		assert.Equal(t, EventCollectionCompleted, ev.Type)
		payload, ok := ev.Payload.(CollectionCompleted)
		require.True(t, ok)
		assert.Equal(t, "appointments", payload.Collection)
		assert.Equal(t, int64(3), payload.WrittenCount)
	}
}

func TestPublishFillsIDAndTimestamp(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	broker.Publish(&Event{Type: EventHealth})

	ev := waitForEvent(t, sub)
	assert.NotEmpty(t, ev.ID)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	// Never drained; its buffer fills and subsequent events are skipped.
	slow := broker.Subscribe()
	defer broker.Unsubscribe(slow)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 500; i++ {
			broker.Emit(EventStats, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("publishing blocked on a slow subscriber")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	broker := NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	assert.Equal(t, 1, broker.SubscriberCount())

	broker.Unsubscribe(sub)
	assert.Equal(t, 0, broker.SubscriberCount())

	_, open := <-sub
	assert.False(t, open)

	// Double unsubscribe is a no-op, not a double close.
	broker.Unsubscribe(sub)
}
