package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cuemby/mirror/pkg/authsync"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/health"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/metrics"
	"github.com/cuemby/mirror/pkg/reconciler"
	"github.com/cuemby/mirror/pkg/replicator"
	"github.com/cuemby/mirror/pkg/schema"
	"github.com/cuemby/mirror/pkg/state"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
)

// ReconcileEvery is how many forward runs pass between implicit
// integrity checks.
const ReconcileEvery = 10

// ErrBusy is returned when a run is requested while another is active.
// Runs are strictly serialized; callers retry later.
var ErrBusy = errors.New("a run is already in progress")

// Health supplies probe results for run gating.
type Health interface {
	Refresh(ctx context.Context) types.HealthSnapshot
	Snapshot() types.HealthSnapshot
}

// Deps bundles everything a coordinator drives.
type Deps struct {
	Gateways   *gateway.Gateways
	Store      *state.Store
	Broker     *events.Broker
	Health     Health
	Replicator *replicator.Replicator
	AuthSync   *authsync.Syncer
	Reconciler *reconciler.Reconciler
	Schema     *schema.Tracker
}

// Stats is the aggregate view served by the stats endpoint.
type Stats struct {
	Status        types.RunStatus                       `json:"status"`
	Counters      types.RunCounters                     `json:"counters"`
	Watermarks    map[string]types.CollectionWatermarks `json:"watermarks"`
	AuthWatermark time.Time                             `json:"authWatermark"`
	Schemas       map[string][]string                   `json:"schemas"`
	Health        types.HealthSnapshot                  `json:"health"`
}

// Coordinator serializes replication runs and sequences their phases:
// gate on health, discover collections, refresh schemas, replicate
// documents, replicate users, persist state, publish the outcome.
type Coordinator struct {
	mu      sync.Mutex
	busy    bool
	status  types.RunStatus
	gw      *gateway.Gateways
	store   *state.Store
	broker  *events.Broker
	health  Health
	repl    *replicator.Replicator
	auth    *authsync.Syncer
	recon   *reconciler.Reconciler
	schemas *schema.Tracker
	logger  zerolog.Logger
}

// New creates a coordinator.
func New(d Deps) *Coordinator {
	return &Coordinator{
		status:  types.StatusIdle,
		gw:      d.Gateways,
		store:   d.Store,
		broker:  d.Broker,
		health:  d.Health,
		repl:    d.Replicator,
		auth:    d.AuthSync,
		recon:   d.Reconciler,
		schemas: d.Schema,
		logger:  log.WithComponent("coordinator"),
	}
}

// Status returns the engine's current run status.
func (c *Coordinator) Status() types.RunStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Busy reports whether a run is active.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.busy
}

func (c *Coordinator) begin(status types.RunStatus) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.busy {
		return ErrBusy
	}
	c.busy = true
	c.status = status
	return nil
}

func (c *Coordinator) end(status types.RunStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.busy = false
	c.status = status
}

// RunOnce executes one incremental forward run.
func (c *Coordinator) RunOnce(ctx context.Context) (types.RunReport, error) {
	return c.runForward(ctx, types.ModeIncremental)
}

// ForceFull clears the forward watermarks and runs a full forward pass.
// Duplicate suppression keeps the rescan cheap on the write side.
func (c *Coordinator) ForceFull(ctx context.Context) (types.RunReport, error) {
	if err := c.begin(types.StatusRunning); err != nil {
		return types.RunReport{}, err
	}
	c.store.ClearForwardWatermarks()
	report, err := c.forward(ctx, types.ModeFull)
	c.end(idleAfter(report.Status))
	return report, err
}

func (c *Coordinator) runForward(ctx context.Context, mode types.Mode) (types.RunReport, error) {
	if err := c.begin(types.StatusRunning); err != nil {
		return types.RunReport{}, err
	}
	report, err := c.forward(ctx, mode)
	c.end(idleAfter(report.Status))
	return report, err
}

// forward is the shared body of incremental and full runs. The caller
// holds the busy flag.
func (c *Coordinator) forward(ctx context.Context, mode types.Mode) (types.RunReport, error) {
	started := time.Now()
	report := types.RunReport{
		Mode:      mode,
		Direction: types.DirectionForward,
		StartedAt: started.UTC(),
	}

	c.emit(events.EventRunStarted, events.RunStarted{
		Mode:      string(mode),
		Direction: string(types.DirectionForward),
		Timestamp: started.UTC(),
	})

	decision := health.Decide(c.health.Refresh(ctx))
	if !decision.ReplicateDB {
		report.Status = decision.Status
		report.Reason = decision.Reason
		c.finishRun("forward", &report, started, false)
		return report, nil
	}

	collections, err := c.gw.PrimaryDB.ListCollections(ctx)
	if err != nil {
		report.Status = types.StatusError
		report.Reason = fmt.Sprintf("collection discovery failed: %v", err)
		report.Errors = 1
		c.store.AddErrors(1)
		c.finishRun("forward", &report, started, false)
		return report, nil
	}
	report.Collections = len(collections)

	paused := false
	for _, collection := range collections {
		if _, err := c.schemas.Refresh(ctx, c.gw.PrimaryDB, collection); err != nil {
			c.logger.Warn().Err(err).Str("collection", collection).Msg("schema refresh failed")
		}

		res, err := c.repl.ReplicateCollection(ctx, collection, mode)
		report.Written += res.Written
		report.Skipped += res.Skipped
		report.Errors += res.Errors
		if err != nil {
			c.logger.Error().Err(err).Str("collection", collection).Msg("collection pass failed")
		}
		if res.Paused {
			// Remaining collections wait for the next run.
			paused = true
			report.Reason = "primary database lost mid-run"
			break
		}
	}

	if !paused && decision.ReplicateAuth {
		res, err := c.auth.Replicate(ctx, mode)
		report.Errors += res.Errors
		if err != nil {
			c.logger.Error().Err(err).Msg("auth pass failed")
		}
	}

	switch {
	case paused:
		report.Status = types.StatusPaused
	case report.Errors > 0 || decision.Status == types.StatusError:
		report.Status = types.StatusError
		if report.Reason == "" {
			report.Reason = decision.Reason
		}
	default:
		report.Status = types.StatusCompleted
		report.Reason = decision.Reason
	}

	c.store.MarkRun(time.Now().UTC(), mode == types.ModeFull)
	if !paused && report.Status != types.StatusError && c.store.RunCount()%ReconcileEvery == 0 {
		if _, err := c.recon.Run(ctx, collections); err != nil {
			c.logger.Warn().Err(err).Msg("implicit integrity pass failed")
		}
	}

	c.finishRun("forward", &report, started, true)
	return report, nil
}

// ForceAuth runs a standalone full auth pass.
func (c *Coordinator) ForceAuth(ctx context.Context) (types.RunReport, error) {
	if err := c.begin(types.StatusRunning); err != nil {
		return types.RunReport{}, err
	}
	defer func() { c.end(types.StatusIdle) }()

	started := time.Now()
	report := types.RunReport{
		Mode:      types.ModeFull,
		Direction: types.DirectionForward,
		StartedAt: started.UTC(),
	}

	snap := c.health.Refresh(ctx)
	if !snap.PrimaryAuth || !snap.StandbyAuth {
		report.Status = types.StatusPaused
		report.Reason = "auth endpoints not healthy on both sides"
		c.finishRun("auth", &report, started, false)
		return report, nil
	}

	res, err := c.auth.Replicate(ctx, types.ModeFull)
	report.Errors = res.Errors
	report.Status = types.StatusCompleted
	if err != nil || res.Errors > 0 {
		report.Status = types.StatusError
	}
	c.finishRun("auth", &report, started, true)
	return report, err
}

// Recover copies standby data and users back into primary after a
// failover, then reconciles. Both databases must be reachable.
func (c *Coordinator) Recover(ctx context.Context) (types.RunReport, error) {
	if err := c.begin(types.StatusRecovering); err != nil {
		return types.RunReport{}, err
	}

	started := time.Now()
	report := types.RunReport{
		Mode:      types.ModeIncremental,
		Direction: types.DirectionRecover,
		StartedAt: started.UTC(),
	}

	c.emit(events.EventRunStarted, events.RunStarted{
		Mode:      string(types.ModeIncremental),
		Direction: string(types.DirectionRecover),
		Timestamp: started.UTC(),
	})

	snap := c.health.Refresh(ctx)
	if !snap.PrimaryDB || !snap.StandbyDB {
		report.Status = types.StatusPaused
		report.Reason = "recovery requires both databases reachable"
		c.end(types.StatusIdle)
		c.finishRun("recover", &report, started, false)
		return report, nil
	}

	collections, err := c.gw.StandbyDB.ListCollections(ctx)
	if err != nil {
		report.Status = types.StatusError
		report.Reason = fmt.Sprintf("collection discovery failed: %v", err)
		report.Errors = 1
		c.store.AddErrors(1)
		c.end(types.StatusIdle)
		c.finishRun("recover", &report, started, false)
		return report, nil
	}
	report.Collections = len(collections)

	for _, collection := range collections {
		res, err := c.repl.RecoverCollection(ctx, collection)
		report.Written += res.Written
		report.Skipped += res.Skipped
		report.Errors += res.Errors
		if err != nil {
			c.logger.Error().Err(err).Str("collection", collection).Msg("collection recovery failed")
		}
		if res.Paused {
			report.Status = types.StatusPaused
			report.Reason = "standby database lost mid-recovery"
			break
		}
	}

	if report.Status != types.StatusPaused && snap.PrimaryAuth && snap.StandbyAuth {
		res, err := c.auth.Recover(ctx)
		report.Errors += res.Errors
		if err != nil {
			c.logger.Error().Err(err).Msg("auth recovery failed")
		}
	}

	if report.Status == "" {
		if report.Errors > 0 {
			report.Status = types.StatusError
		} else {
			report.Status = types.StatusCompleted
		}
	}

	// Recovery always ends with an integrity pass so the operator sees
	// what, if anything, is still adrift.
	if report.Status == types.StatusCompleted {
		if _, err := c.recon.Run(ctx, collections); err != nil {
			c.logger.Warn().Err(err).Msg("post-recovery integrity pass failed")
		}
	}

	c.end(types.StatusIdle)
	c.finishRun("recover", &report, started, true)
	return report, nil
}

// Reconcile runs an explicit integrity pass over the primary's
// collections.
func (c *Coordinator) Reconcile(ctx context.Context) (*types.IntegrityReport, error) {
	if err := c.begin(types.StatusRunning); err != nil {
		return nil, err
	}
	defer func() { c.end(types.StatusIdle) }()

	collections, err := c.gw.PrimaryDB.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("collection discovery failed: %w", err)
	}
	return c.recon.Run(ctx, collections)
}

// Stats returns the aggregate engine view.
func (c *Coordinator) Stats() Stats {
	return Stats{
		Status:        c.Status(),
		Counters:      c.store.Counters(),
		Watermarks:    c.store.Watermarks(),
		AuthWatermark: c.store.AuthWatermark(),
		Schemas:       c.schemas.Schemas(),
		Health:        c.health.Snapshot(),
	}
}

// ResetStats zeroes the counters and schema observations. Watermarks
// survive; ForceFull is the operation that clears those.
func (c *Coordinator) ResetStats() error {
	c.store.Reset()
	c.schemas.Reset()
	if err := c.store.Save(); err != nil {
		return err
	}
	c.emit(events.EventStatsReset, nil)
	c.emit(events.EventStats, c.Stats())
	return nil
}

// finishRun persists state and publishes the outcome. Persisting happens
// after every run, including gated and failed ones.
func (c *Coordinator) finishRun(kind string, report *types.RunReport, started time.Time, ran bool) {
	duration := time.Since(started)
	report.Duration = duration.String()

	if err := c.store.Save(); err != nil {
		c.logger.Error().Err(err).Msg("failed to persist stats")
	}

	metrics.RunsTotal.WithLabelValues(kind, string(report.Status)).Inc()
	if ran {
		metrics.RunDuration.WithLabelValues(kind).Observe(duration.Seconds())
	}

	c.emit(events.EventRunCompleted, *report)
	c.emit(events.EventStats, c.Stats())

	c.logger.Info().
		Str("kind", kind).
		Str("status", string(report.Status)).
		Int("collections", report.Collections).
		Int64("written", report.Written).
		Int64("skipped", report.Skipped).
		Int64("errors", report.Errors).
		Dur("took", duration).
		Msg("run finished")
}

func (c *Coordinator) emit(t events.EventType, payload interface{}) {
	if c.broker != nil {
		c.broker.Emit(t, payload)
	}
}

func idleAfter(status types.RunStatus) types.RunStatus {
	if status == types.StatusPaused {
		return types.StatusPaused
	}
	return types.StatusIdle
}
