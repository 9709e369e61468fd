package health

import (
	"context"
	"sync"
	"time"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/metrics"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
)

// Monitor probes the four endpoints on a fixed cadence and publishes the
// latest snapshot. Probes run concurrently; one slow endpoint never
// delays the others.
type Monitor struct {
	gw       *gateway.Gateways
	broker   *events.Broker
	interval time.Duration

	mu       sync.RWMutex
	snapshot types.HealthSnapshot

	stopCh   chan struct{}
	stopOnce sync.Once
	logger   zerolog.Logger
}

// NewMonitor creates a health monitor over the four gateway handles.
func NewMonitor(gw *gateway.Gateways, broker *events.Broker, interval time.Duration) *Monitor {
	return &Monitor{
		gw:       gw,
		broker:   broker,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("health"),
	}
}

// Start begins the probe loop. The first round runs immediately.
func (m *Monitor) Start() {
	go m.run()
}

// Stop stops the probe loop.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stopCh) })
}

func (m *Monitor) run() {
	m.Refresh(context.Background())

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.Refresh(context.Background())
		case <-m.stopCh:
			return
		}
	}
}

// Snapshot returns the most recently completed probe round.
func (m *Monitor) Snapshot() types.HealthSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}

// Refresh runs one probe round now, publishes it, and returns it. The
// four probes run in parallel; each carries its own deadline inside the
// gateway, and a timeout counts as unhealthy.
func (m *Monitor) Refresh(ctx context.Context) types.HealthSnapshot {
	var snap types.HealthSnapshot

	var wg sync.WaitGroup
	probe := func(target *bool, name string, fn func(context.Context) error) {
		defer wg.Done()
		err := fn(ctx)
		*target = err == nil
		metrics.SetEndpointHealth(name, *target)
		if err != nil {
			m.logger.Warn().Err(err).Str("endpoint", name).Msg("probe failed")
		}
	}

	wg.Add(4)
	go probe(&snap.PrimaryDB, "primary_db", m.gw.PrimaryDB.Probe)
	go probe(&snap.StandbyDB, "standby_db", m.gw.StandbyDB.Probe)
	go probe(&snap.PrimaryAuth, "primary_auth", m.gw.PrimaryAuth.Probe)
	go probe(&snap.StandbyAuth, "standby_auth", m.gw.StandbyAuth.Probe)
	wg.Wait()

	snap.Timestamp = time.Now().UTC()

	m.mu.Lock()
	m.snapshot = snap
	m.mu.Unlock()

	if m.broker != nil {
		m.broker.Emit(events.EventHealth, snap)
	}
	return snap
}
