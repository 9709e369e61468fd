package authsync

import (
	"context"
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

// ImportChunk is the most users submitted in one bulk import call, the
// backend's documented ceiling.
const ImportChunk = 1000

// Result summarizes one auth-directory pass.
type Result struct {
	Total  int64
	Synced int64
	Claims int64
	Errors int64
}

// Syncer mirrors the auth directory between the two sides. Users are
// exported page by page and bulk-imported with the source's password
// hash parameters attached, so existing credentials keep working on the
// target. Custom claims ride along in a second pass because bulk import
// does not carry them.
type Syncer struct {
	gw     *gateway.Gateways
	store  *state.Store
	broker *events.Broker
	hash   types.HashParams
	logger zerolog.Logger
}

// New creates a syncer. hash must describe the source project's password
// hashing configuration.
func New(gw *gateway.Gateways, store *state.Store, broker *events.Broker, hash types.HashParams) *Syncer {
	return &Syncer{
		gw:     gw,
		store:  store,
		broker: broker,
		hash:   hash,
		logger: log.WithComponent("authsync"),
	}
}

// Replicate runs one forward pass, primary directory into standby. Full
// mode considers every user; incremental mode only users created or
// signed in after the last completed auth pass.
func (s *Syncer) Replicate(ctx context.Context, mode types.Mode) (Result, error) {
	return s.sync(ctx, types.DirectionForward, mode)
}

// Recover copies standby users back into primary, incrementally.
func (s *Syncer) Recover(ctx context.Context) (Result, error) {
	return s.sync(ctx, types.DirectionRecover, types.ModeIncremental)
}

func (s *Syncer) sync(ctx context.Context, direction types.Direction, mode types.Mode) (Result, error) {
	src := s.gw.Auth(sourceSide(direction))
	dst := s.gw.Auth(targetSide(direction))

	started := time.Now()
	var res Result

	since := time.Time{}
	if mode == types.ModeIncremental {
		since = s.store.AuthWatermark()
	}

	candidates, total, err := s.export(ctx, src, since)
	if err != nil {
		res.Errors++
		s.store.AddAuth(total, 0, 0, res.Errors, time.Now().UTC())
		metrics.AuthErrors.Inc()
		return res, fmt.Errorf("user export: %w", err)
	}
	res.Total = total

	for start := 0; start < len(candidates); start += ImportChunk {
		end := start + ImportChunk
		if end > len(candidates) {
			end = len(candidates)
		}
		chunk := candidates[start:end]

		imported, err := dst.ImportUsers(ctx, chunk, s.hash)
		if err != nil {
			res.Errors += int64(len(chunk))
			s.logger.Error().Err(err).Int("users", len(chunk)).Msg("user import chunk failed")
			continue
		}
		res.Synced += int64(imported.SuccessCount)
		res.Errors += int64(imported.FailureCount)
		for _, ie := range imported.Errors {
			s.logger.Warn().Int("index", ie.Index).Str("reason", ie.Reason).Msg("user rejected by import")
		}

		if s.broker != nil {
			s.broker.Emit(events.EventAuthProgress, events.AuthProgress{
				Phase:     "import",
				UserCount: int(res.Synced),
				OfTotal:   len(candidates),
			})
		}
	}

	res.Claims = s.propagateClaims(ctx, dst, candidates, &res)

	now := time.Now().UTC()
	s.store.AddAuth(res.Total, res.Synced, res.Claims, res.Errors, now)
	if res.Errors == 0 {
		// Only a clean pass moves the watermark; a lossy one re-reads.
		s.store.SetAuthWatermark(started.UTC())
	}

	metrics.AuthUsersSynced.Add(float64(res.Synced))
	metrics.AuthClaimsPropagated.Add(float64(res.Claims))
	metrics.AuthErrors.Add(float64(res.Errors))

	if s.broker != nil {
		s.broker.Emit(events.EventAuthCompleted, events.AuthCompleted{
			TotalUsers:             res.Total,
			SyncedUsers:            res.Synced,
			CustomClaimsPropagated: res.Claims,
			Errors:                 res.Errors,
			Timestamp:              now,
		})
	}

	s.logger.Info().
		Str("direction", string(direction)).
		Int64("total", res.Total).
		Int64("synced", res.Synced).
		Int64("claims", res.Claims).
		Int64("errors", res.Errors).
		Dur("took", time.Since(started)).
		Msg("auth pass finished")

	return res, nil
}

// export lists every user in the source directory, returning those that
// pass the incremental filter plus the total count seen.
func (s *Syncer) export(ctx context.Context, src gateway.Directory, since time.Time) ([]types.User, int64, error) {
	var candidates []types.User
	var total int64

	sinceMs := int64(0)
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}

	pageToken := ""
	for {
		users, next, err := src.ListUsers(ctx, pageToken)
		if err != nil {
			return nil, total, err
		}
		total += int64(len(users))
		for _, u := range users {
			if sinceMs > 0 && u.CreatedAtMs <= sinceMs && u.LastSignInMs <= sinceMs {
				continue
			}
			candidates = append(candidates, u)
		}

		if s.broker != nil && len(users) > 0 {
			s.broker.Emit(events.EventAuthProgress, events.AuthProgress{
				Phase:     "export",
				UserCount: int(total),
				OfTotal:   int(total),
			})
		}

		if next == "" {
			return candidates, total, nil
		}
		pageToken = next
	}
}

// propagateClaims copies non-empty custom claims onto the target, one
// user at a time. Bulk import drops claims, this pass restores them.
func (s *Syncer) propagateClaims(ctx context.Context, dst gateway.Directory, users []types.User, res *Result) int64 {
	var propagated int64
	for _, u := range users {
		if len(u.CustomClaims) == 0 {
			continue
		}
		if err := dst.SetCustomClaims(ctx, u.UID, u.CustomClaims); err != nil {
			res.Errors++
			s.logger.Error().Err(err).Str("uid", u.UID).Msg("claims propagation failed")
			continue
		}
		propagated++
	}
	return propagated
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
