/*
Package events provides the in-memory pub/sub bus Mirror uses to publish
replication progress to subscribers.

The broker broadcasts every published event to every subscriber; there is
no topic filtering, subscribers switch on Event.Type. Publishing is
non-blocking: the broker buffers up to 100 in-flight events and each
subscriber channel buffers 64, after which a slow subscriber misses events
rather than stalling the run. Delivery is best effort; components never
depend on an event being observed.

Event types mirror the control-surface stream: health, stats, run
lifecycle (runStarted/runCompleted), per-collection progress and
completion for both forward replication and recovery, schema changes,
auth-phase progress, and integrity reports. Payload shapes live in
payloads.go; snapshot-like payloads (health, stats, integrity reports)
reuse the pkg/types structs directly.

Usage:

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	go func() {
		for event := range sub {
			// event.Payload is JSON-serializable
		}
	}()

	broker.Emit(events.EventCollectionCompleted, events.CollectionCompleted{
		Collection:   "appointments",
		WrittenCount: 5,
		Incremental:  true,
	})
*/
package events
