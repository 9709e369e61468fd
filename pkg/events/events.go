package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventHealth              EventType = "health"
	EventStats               EventType = "stats"
	EventStatsReset          EventType = "statsReset"
	EventRunStarted          EventType = "runStarted"
	EventRunCompleted        EventType = "runCompleted"
	EventCollectionProgress  EventType = "collectionProgress"
	EventCollectionCompleted EventType = "collectionCompleted"
	EventSchemaChange        EventType = "schemaChange"
	EventAutoRunTriggered    EventType = "autoRunTriggered"
	EventRecoveryProgress    EventType = "recoveryProgress"
	EventCollectionRecovered EventType = "collectionRecovered"
	EventAuthProgress        EventType = "authProgress"
	EventAuthCompleted       EventType = "authCompleted"
	EventIntegrityReport     EventType = "integrityReport"
	EventAuthIntegrityReport EventType = "authIntegrityReport"
)

// Event is a typed notification with a JSON-serializable payload.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker fans published events out to all subscribers. Broadcast is
// non-blocking: a subscriber whose buffer is full misses the event rather
// than stalling the run that published it.
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
	stopOnce    sync.Once
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100),
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// Subscribe creates a new subscription and returns its channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 64)
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription and closes its channel
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.subscribers[sub] {
		delete(b.subscribers, sub)
		close(sub)
	}
}

// Publish queues an event for broadcast. The event ID and timestamp are
// filled in when absent.
func (b *Broker) Publish(event *Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

// Emit publishes an event of the given type with the given payload.
func (b *Broker) Emit(t EventType, payload interface{}) {
	b.Publish(&Event{Type: t, Payload: payload})
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
