package replicator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/metrics"
	"github.com/cuemby/mirror/pkg/state"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultChunkSize is how many documents are read before the target-side
// duplicate check runs.
const DefaultChunkSize = 100

// errSourceLost aborts the stream when the health monitor reports the
// source side down mid-run. The batch in flight still commits.
var errSourceLost = errors.New("source lost mid-run")

// HealthSource supplies the latest health snapshot for mid-run gating.
type HealthSource interface {
	Snapshot() types.HealthSnapshot
}

// Result summarizes one per-collection replication or recovery pass.
type Result struct {
	Collection string
	Written    int64
	Skipped    int64
	Errors     int64
	Paused     bool
	Watermark  string
}

// Replicator copies documents between the two sides, forward
// (primary to standby) or recovering (standby to primary). Both
// directions share the same loop: stream from the source since the
// direction's watermark, suppress duplicates against the target, commit
// merge batches of up to 450 operations in order.
type Replicator struct {
	gw        *gateway.Gateways
	store     *state.Store
	broker    *events.Broker
	health    HealthSource
	chunkSize int
	logger    zerolog.Logger
}

// New creates a replicator. health may be nil, disabling mid-run gating.
func New(gw *gateway.Gateways, store *state.Store, broker *events.Broker, health HealthSource, chunkSize int) *Replicator {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &Replicator{
		gw:        gw,
		store:     store,
		broker:    broker,
		health:    health,
		chunkSize: chunkSize,
		logger:    log.WithComponent("replicator"),
	}
}

// ReplicateCollection runs one forward pass over a collection. In
// incremental mode the scan starts after the stored forward watermark;
// full mode rescans everything and relies on duplicate suppression.
func (r *Replicator) ReplicateCollection(ctx context.Context, collection string, mode types.Mode) (Result, error) {
	return r.replicate(ctx, types.DirectionForward, collection, mode)
}

// RecoverCollection copies standby documents missing or newer back into
// primary. Upsert-merge only; recovery never deletes. Uses the recover
// watermark so repeated recoveries stay incremental.
func (r *Replicator) RecoverCollection(ctx context.Context, collection string) (Result, error) {
	return r.replicate(ctx, types.DirectionRecover, collection, types.ModeIncremental)
}

type runState struct {
	direction  types.Direction
	collection string
	src, dst   gateway.DB

	chunk      []types.Document
	pending    []types.Document
	pendingMax string
	committed  string // max timestamp over successfully committed docs

	observed int64
	written  int64
	skipped  int64
	errors   int64

	// chunkFailed marks that a chunk already accounted its own errors,
	// so the scan-failure path must not count the same failure again.
	chunkFailed bool
}

func (r *Replicator) replicate(ctx context.Context, direction types.Direction, collection string, mode types.Mode) (Result, error) {
	rs := &runState{
		direction:  direction,
		collection: collection,
		src:        r.gw.DB(sourceSide(direction)),
		dst:        r.gw.DB(targetSide(direction)),
	}

	since := ""
	if mode == types.ModeIncremental {
		since = r.store.Watermark(collection, direction)
	}

	start := time.Now()
	scanErr := rs.src.ScanSince(ctx, collection, since, func(doc types.Document) error {
		rs.observed++
		rs.chunk = append(rs.chunk, doc)
		if len(rs.chunk) < r.chunkSize {
			return nil
		}
		if err := r.processChunk(ctx, rs); err != nil {
			return err
		}
		if r.sourceLost(direction) {
			return errSourceLost
		}
		return nil
	})

	paused := errors.Is(scanErr, errSourceLost)
	if scanErr == nil || paused {
		// Residual chunk, then the final batch. On pause the batch in
		// flight still commits; nothing new is scanned.
		if err := r.processChunk(ctx, rs); err != nil {
			scanErr = err
		} else if err := r.commit(ctx, rs); err != nil {
			scanErr = err
		}
		if paused {
			scanErr = nil
		}
	} else {
		// Scan failed outright; whatever was already scheduled commits.
		if !rs.chunkFailed {
			rs.errors++
			r.store.AddErrors(1)
			metrics.ReplicationErrors.Inc()
		}
		if err := r.commit(ctx, rs); err != nil {
			r.logger.Error().Err(err).Str("collection", collection).Msg("final commit failed after scan error")
		}
		scanErr = fmt.Errorf("scan %s: %w", collection, scanErr)
	}

	r.store.AdvanceWatermark(collection, direction, rs.committed)

	result := Result{
		Collection: collection,
		Written:    rs.written,
		Skipped:    rs.skipped,
		Errors:     rs.errors,
		Paused:     paused,
		Watermark:  r.store.Watermark(collection, direction),
	}

	completed := events.EventCollectionCompleted
	if direction == types.DirectionRecover {
		completed = events.EventCollectionRecovered
	}
	if r.broker != nil && scanErr == nil && !paused {
		r.broker.Emit(completed, events.CollectionCompleted{
			Collection:   collection,
			WrittenCount: rs.written,
			Incremental:  mode == types.ModeIncremental,
			Timestamp:    time.Now().UTC(),
		})
	}

	r.logger.Info().
		Str("collection", collection).
		Str("direction", string(direction)).
		Int64("observed", rs.observed).
		Int64("written", rs.written).
		Int64("skipped", rs.skipped).
		Int64("errors", rs.errors).
		Bool("paused", paused).
		Dur("took", time.Since(start)).
		Msg("collection pass finished")

	return result, scanErr
}

// processChunk runs the duplicate check for the buffered chunk and moves
// survivors into the pending batch, committing whenever it fills.
func (r *Replicator) processChunk(ctx context.Context, rs *runState) error {
	if len(rs.chunk) == 0 {
		return nil
	}
	chunk := rs.chunk
	rs.chunk = nil

	ids := make([]string, 0, len(chunk))
	for _, doc := range chunk {
		ids = append(ids, doc.ID)
	}

	targets, err := rs.dst.MultiGet(ctx, rs.collection, ids)
	if err != nil {
		rs.chunkFailed = true
		rs.errors += int64(len(chunk))
		r.store.AddErrors(int64(len(chunk)))
		metrics.ReplicationErrors.Inc()
		return fmt.Errorf("duplicate check %s: %w", rs.collection, err)
	}

	var skipped int64
	for _, doc := range chunk {
		if target, ok := targets[doc.ID]; ok && !types.NewerThan(doc.UpdatedAt, target.UpdatedAt) {
			skipped++
			continue
		}
		rs.pending = append(rs.pending, doc)
		rs.pendingMax = types.MaxTimestamp(rs.pendingMax, doc.UpdatedAt)
		if len(rs.pending) >= gateway.MaxBatchWrite {
			if err := r.commit(ctx, rs); err != nil {
				return err
			}
		}
	}
	rs.skipped += skipped
	r.store.AddSkipped(skipped)
	if skipped > 0 {
		metrics.DuplicatesSkipped.Add(float64(skipped))
	}
	return nil
}

// commit flushes the pending batch. A failed batch counts its operations
// as errors, not as written, and the per-batch max timestamp is not
// folded into the watermark.
func (r *Replicator) commit(ctx context.Context, rs *runState) error {
	if len(rs.pending) == 0 {
		return nil
	}
	batch := rs.pending
	batchMax := rs.pendingMax
	rs.pending = nil
	rs.pendingMax = ""

	if err := rs.dst.BatchWrite(ctx, rs.collection, batch); err != nil {
		rs.errors += int64(len(batch))
		r.store.AddErrors(int64(len(batch)))
		metrics.ReplicationErrors.Inc()
		r.logger.Error().Err(err).
			Str("collection", rs.collection).
			Int("ops", len(batch)).
			Msg("batch commit failed")
		return nil
	}

	rs.written += int64(len(batch))
	rs.committed = types.MaxTimestamp(rs.committed, batchMax)
	r.store.AddWritten(int64(len(batch)))
	metrics.DocumentsWritten.WithLabelValues(string(rs.direction)).Add(float64(len(batch)))

	if r.broker != nil {
		progress := events.EventCollectionProgress
		if rs.direction == types.DirectionRecover {
			progress = events.EventRecoveryProgress
		}
		r.broker.Emit(progress, events.CollectionProgress{
			Collection:   rs.collection,
			WrittenSoFar: rs.written,
			OfTotal:      rs.observed,
			Phase:        "writing",
		})
	}
	return nil
}

func (r *Replicator) sourceLost(direction types.Direction) bool {
	if r.health == nil {
		return false
	}
	snap := r.health.Snapshot()
	if direction == types.DirectionRecover {
		return !snap.StandbyDB
	}
	return !snap.PrimaryDB
}

func sourceSide(d types.Direction) types.Side {
	if d == types.DirectionRecover {
		return types.SideStandby
	}
	return types.SidePrimary
}

func targetSide(d types.Direction) types.Side {
	if d == types.DirectionRecover {
		return types.SidePrimary
	}
	return types.SideStandby
}
