package reconciler

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/metrics"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Reconciler compares document ID sets and user UID sets between the two
// sides and reports drift. It never writes to either side; healing is the
// replicator's and the recovery flow's job.
type Reconciler struct {
	gw     *gateway.Gateways
	broker *events.Broker
	logger zerolog.Logger
}

// New creates a reconciler publishing reports on the broker.
func New(gw *gateway.Gateways, broker *events.Broker) *Reconciler {
	return &Reconciler{
		gw:     gw,
		broker: broker,
		logger: log.WithComponent("reconciler"),
	}
}

// Run produces an integrity report over the given collections plus the
// auth directories. Collection failures abort the pass; an auth listing
// failure only drops the auth half of the report.
func (r *Reconciler) Run(ctx context.Context, collections []string) (*types.IntegrityReport, error) {
	started := time.Now()
	report := &types.IntegrityReport{
		Collections: make(map[string]types.CollectionReport, len(collections)),
	}

	var missingStandby, missingPrimary int
	for _, collection := range collections {
		cr, err := r.compareCollection(ctx, collection)
		if err != nil {
			return nil, fmt.Errorf("reconcile %s: %w", collection, err)
		}
		report.Collections[collection] = cr
		missingStandby += len(cr.MissingInStandby)
		missingPrimary += len(cr.MissingInPrimary)
	}

	auth, err := r.compareAuth(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("auth comparison skipped")
	} else {
		report.Auth = auth
	}
	report.GeneratedAt = time.Now().UTC()

	metrics.ReconcileRuns.Inc()
	metrics.ReconcileDrift.WithLabelValues(string(types.SideStandby)).Set(float64(missingStandby))
	metrics.ReconcileDrift.WithLabelValues(string(types.SidePrimary)).Set(float64(missingPrimary))

	if r.broker != nil {
		r.broker.Emit(events.EventIntegrityReport, *report)
		if report.Auth != nil {
			r.broker.Emit(events.EventAuthIntegrityReport, *report.Auth)
		}
	}

	r.logger.Info().
		Int("collections", len(collections)).
		Int("missing_in_standby", missingStandby).
		Int("missing_in_primary", missingPrimary).
		Dur("took", time.Since(started)).
		Msg("integrity pass finished")

	return report, nil
}

// compareCollection lists both sides concurrently and diffs the ID sets.
func (r *Reconciler) compareCollection(ctx context.Context, collection string) (types.CollectionReport, error) {
	var primary, standby []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ids, err := r.gw.PrimaryDB.ListIDs(gctx, collection)
		primary = ids
		return err
	})
	g.Go(func() error {
		ids, err := r.gw.StandbyDB.ListIDs(gctx, collection)
		standby = ids
		return err
	})
	if err := g.Wait(); err != nil {
		return types.CollectionReport{}, err
	}

	return types.CollectionReport{
		PrimaryCount:     len(primary),
		StandbyCount:     len(standby),
		MissingInStandby: diff(primary, standby),
		MissingInPrimary: diff(standby, primary),
	}, nil
}

// compareAuth diffs the full UID sets of both directories.
func (r *Reconciler) compareAuth(ctx context.Context) (*types.AuthReport, error) {
	var primary, standby []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		uids, err := listUIDs(gctx, r.gw.PrimaryAuth)
		primary = uids
		return err
	})
	g.Go(func() error {
		uids, err := listUIDs(gctx, r.gw.StandbyAuth)
		standby = uids
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &types.AuthReport{
		PrimaryCount:     len(primary),
		StandbyCount:     len(standby),
		MissingInStandby: diff(primary, standby),
		MissingInPrimary: diff(standby, primary),
	}, nil
}

func listUIDs(ctx context.Context, dir gateway.Directory) ([]string, error) {
	var uids []string
	pageToken := ""
	for {
		users, next, err := dir.ListUsers(ctx, pageToken)
		if err != nil {
			return nil, err
		}
		for _, u := range users {
			uids = append(uids, u.UID)
		}
		if next == "" {
			return uids, nil
		}
		pageToken = next
	}
}

// diff returns the sorted members of a not present in b.
func diff(a, b []string) []string {
	present := make(map[string]struct{}, len(b))
	for _, id := range b {
		present[id] = struct{}{}
	}
	var out []string
	for _, id := range a {
		if _, ok := present[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}
