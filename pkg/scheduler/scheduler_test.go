package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/mirror/pkg/authsync"
	"github.com/cuemby/mirror/pkg/coordinator"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/health"
	"github.com/cuemby/mirror/pkg/reconciler"
	"github.com/cuemby/mirror/pkg/replicator"
	"github.com/cuemby/mirror/pkg/schema"
	"github.com/cuemby/mirror/pkg/state"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/stretchr/testify/require"
)

func testCoordinator(t *testing.T, broker *events.Broker) (*coordinator.Coordinator, *state.Store) {
	t.Helper()
	gw := &gateway.Gateways{
		PrimaryDB:   gateway.NewMemoryDB(),
		StandbyDB:   gateway.NewMemoryDB(),
		PrimaryAuth: gateway.NewMemoryDirectory(),
		StandbyAuth: gateway.NewMemoryDirectory(),
	}
	store := state.New(filepath.Join(t.TempDir(), "stats.json"))
	monitor := health.NewMonitor(gw, nil, time.Minute)
	coord := coordinator.New(coordinator.Deps{
		Gateways:   gw,
		Store:      store,
		Broker:     broker,
		Health:     monitor,
		Replicator: replicator.New(gw, store, nil, monitor, 0),
		AuthSync:   authsync.New(gw, store, nil, types.HashParams{Algorithm: "SCRYPT"}),
		Reconciler: reconciler.New(gw, nil),
		Schema:     schema.NewTracker(nil),
	})
	return coord, store
}

func TestSchedulerTriggersRuns(t *testing.T) {
	coord, store := testCoordinator(t, nil)
	s := New(coord, nil, 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	require.Eventually(t, func() bool {
		return store.RunCount() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSchedulerEmitsAutoRunEvent(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	coord, _ := testCoordinator(t, nil)
	s := New(coord, broker, 20*time.Millisecond)
	s.Start()
	defer s.Stop()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-sub:
			if ev.Type == events.EventAutoRunTriggered {
				return
			}
		case <-deadline:
			t.Fatal("no autoRunTriggered event")
		}
	}
}

func TestSchedulerStops(t *testing.T) {
	coord, store := testCoordinator(t, nil)
	s := New(coord, nil, 10*time.Millisecond)
	s.Start()

	require.Eventually(t, func() bool {
		return store.RunCount() >= 1
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	count := store.RunCount()
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, count, store.RunCount())
}
