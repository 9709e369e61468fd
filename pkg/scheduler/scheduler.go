package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cuemby/mirror/pkg/coordinator"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/rs/zerolog"
)

// Scheduler triggers an incremental run on a fixed interval. A trigger
// that lands while a run is still active is dropped, not queued; the
// next tick tries again.
type Scheduler struct {
	coord    *coordinator.Coordinator
	broker   *events.Broker
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   zerolog.Logger
}

// New creates a scheduler firing every interval.
func New(coord *coordinator.Coordinator, broker *events.Broker, interval time.Duration) *Scheduler {
	return &Scheduler{
		coord:    coord,
		broker:   broker,
		interval: interval,
		stopCh:   make(chan struct{}),
		logger:   log.WithComponent("scheduler"),
	}
}

// Start launches the ticker loop.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.run()
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")
}

// Stop halts the loop and waits for it to exit. A run already in flight
// finishes on its own.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

func (s *Scheduler) run() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.trigger()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Scheduler) trigger() {
	if s.broker != nil {
		s.broker.Emit(events.EventAutoRunTriggered, events.AutoRunTriggered{
			Timestamp:    time.Now().UTC(),
			IntervalHint: s.interval.String(),
		})
	}

	report, err := s.coord.RunOnce(context.Background())
	if errors.Is(err, coordinator.ErrBusy) {
		s.logger.Debug().Msg("previous run still active, tick skipped")
		return
	}
	if err != nil {
		s.logger.Error().Err(err).Msg("scheduled run failed")
		return
	}
	s.logger.Debug().Str("status", string(report.Status)).Msg("scheduled run finished")
}
