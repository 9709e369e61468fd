package coordinator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/mirror/pkg/authsync"
	"github.com/cuemby/mirror/pkg/events"
	"github.com/cuemby/mirror/pkg/gateway"
	"github.com/cuemby/mirror/pkg/health"
	"github.com/cuemby/mirror/pkg/reconciler"
	"github.com/cuemby/mirror/pkg/replicator"
	"github.com/cuemby/mirror/pkg/schema"
	"github.com/cuemby/mirror/pkg/state"
	"github.com/cuemby/mirror/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	coord        *Coordinator
	pdb, sdb     *gateway.MemoryDB
	pauth, sauth *gateway.MemoryDirectory
	store        *state.Store
	statsPath    string
}

func newFixture(t *testing.T, broker *events.Broker) *fixture {
	t.Helper()
	pdb, sdb := gateway.NewMemoryDB(), gateway.NewMemoryDB()
	pauth, sauth := gateway.NewMemoryDirectory(), gateway.NewMemoryDirectory()
	gw := &gateway.Gateways{
		PrimaryDB:   pdb,
		StandbyDB:   sdb,
		PrimaryAuth: pauth,
		StandbyAuth: sauth,
	}
	statsPath := filepath.Join(t.TempDir(), "stats.json")
	store := state.New(statsPath)
	monitor := health.NewMonitor(gw, broker, time.Minute)
	hash := types.HashParams{Algorithm: "SCRYPT", Key: []byte("k"), Rounds: 8, MemoryCost: 14}

	coord := New(Deps{
		Gateways:   gw,
		Store:      store,
		Broker:     broker,
		Health:     monitor,
		Replicator: replicator.New(gw, store, broker, monitor, 0),
		AuthSync:   authsync.New(gw, store, broker, hash),
		Reconciler: reconciler.New(gw, broker),
		Schema:     schema.NewTracker(broker),
	})
	return &fixture{coord: coord, pdb: pdb, sdb: sdb, pauth: pauth, sauth: sauth, store: store, statsPath: statsPath}
}

func seedBasic(f *fixture) {
	f.pdb.SeedDoc("patients", "p1", map[string]interface{}{"name": "Ada", "updatedAt": "2026-01-01T00:00:01.000000000Z"})
	f.pdb.SeedDoc("visits", "v1", map[string]interface{}{"kind": "intake", "updatedAt": "2026-01-01T00:00:02.000000000Z"})
	f.pauth.SeedUser(types.User{UID: "u1", Email: "ada@example.com"})
}

func TestRunOnceReplicatesAndPersists(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Equal(t, 2, report.Collections)
	assert.Equal(t, int64(2), report.Written)
	assert.Equal(t, 1, f.sdb.DocCount("patients"))
	assert.Equal(t, 1, f.sdb.DocCount("visits"))
	assert.Equal(t, 1, f.sauth.UserCount())

	counters := f.store.Counters()
	assert.Equal(t, int64(2), counters.TotalDocumentsWritten)
	assert.Equal(t, int64(1), counters.IncrementalRunCount)
	assert.Equal(t, int64(1), counters.Auth.SyncedUsers)

	// State survives the run on disk.
	_, err = os.Stat(f.statsPath)
	require.NoError(t, err)
	assert.Equal(t, types.StatusIdle, f.coord.Status())
}

func TestSecondRunIsIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)
	first := f.store.Counters()

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Zero(t, report.Written)
	assert.Zero(t, report.Skipped)

	second := f.store.Counters()
	assert.Equal(t, first.TotalDocumentsWritten, second.TotalDocumentsWritten)
	assert.Equal(t, first.IncrementalRunCount+1, second.IncrementalRunCount)
}

func TestPrimaryDownPausesRun(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)
	f.pdb.SetUnavailable(true)

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusPaused, report.Status)
	assert.Zero(t, report.Written)
	assert.Zero(t, report.Errors)
	assert.Zero(t, f.sdb.DocCount("patients"))
	assert.Zero(t, f.store.Counters().TotalDocumentsWritten)
	assert.Equal(t, types.StatusPaused, f.coord.Status())

	// Primary comes back: the next run proceeds normally.
	f.pdb.SetUnavailable(false)
	report, err = f.coord.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Equal(t, int64(2), report.Written)
}

func TestStandbyDownIsError(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)
	f.sdb.SetUnavailable(true)

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusError, report.Status)
	assert.Zero(t, report.Written)
}

func TestPrimaryAuthDownStillReplicatesDocuments(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)
	f.pauth.SetUnavailable(true)

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Equal(t, int64(2), report.Written)
	assert.Zero(t, f.sauth.UserCount())
}

func TestStandbyAuthDownFailsRunButReplicatesDocuments(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)
	f.sauth.SetUnavailable(true)

	report, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusError, report.Status)
	assert.Equal(t, int64(2), report.Written)
	assert.Equal(t, 1, f.sdb.DocCount("patients"))
}

func TestForceFullRescans(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, f.store.Watermark("patients", types.DirectionForward))

	report, err := f.coord.ForceFull(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Zero(t, report.Written)
	assert.Equal(t, int64(2), report.Skipped)
	// Nothing was committed, so the forward watermark stays cleared; the
	// next incremental pass rescans and skips again.
	assert.Empty(t, f.store.Watermark("patients", types.DirectionForward))
	assert.False(t, f.store.Counters().LastFullRunAt.IsZero())
}

func TestFailoverRoundTrip(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	// Failover: writes land on standby while primary is out.
	f.sdb.SeedDoc("patients", "p2", map[string]interface{}{"name": "Grace", "updatedAt": "2026-01-02T00:00:00.000000000Z"})
	f.sauth.SeedUser(types.User{UID: "u2", Email: "grace@example.com"})

	report, err := f.coord.Recover(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	got, ok := f.pdb.GetDoc("patients", "p2")
	require.True(t, ok)
	assert.Equal(t, "Grace", got["name"])
	_, err = f.pauth.GetUser(context.Background(), "u2")
	require.NoError(t, err)

	// Nothing on either side is lost.
	assert.Equal(t, 2, f.pdb.DocCount("patients"))
	assert.Equal(t, 2, f.sdb.DocCount("patients"))
}

func TestRecoverRequiresBothDatabases(t *testing.T) {
	f := newFixture(t, nil)
	f.sdb.SetUnavailable(true)

	report, err := f.coord.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, types.StatusPaused, report.Status)
}

func TestBusyRunsAreRejected(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.coord.begin(types.StatusRunning))

	_, err := f.coord.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.coord.Recover(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.coord.Reconcile(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	f.coord.end(types.StatusIdle)
	_, err = f.coord.RunOnce(context.Background())
	assert.NoError(t, err)
}

func TestImplicitReconcileOnCadence(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	f := newFixture(t, broker)
	seedBasic(f)

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	seen := make(chan struct{}, 1)
	go func() {
		for ev := range sub {
			if ev.Type == events.EventIntegrityReport {
				select {
				case seen <- struct{}{}:
				default:
				}
			}
		}
	}()

	for i := 0; i < ReconcileEvery-1; i++ {
		_, err := f.coord.RunOnce(context.Background())
		require.NoError(t, err)
	}
	select {
	case <-seen:
		t.Fatal("integrity pass ran before the cadence boundary")
	case <-time.After(100 * time.Millisecond):
	}

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)
	select {
	case <-seen:
	case <-time.After(2 * time.Second):
		t.Fatal("no implicit integrity pass on the cadence boundary")
	}
}

func TestRunEventsPublished(t *testing.T) {
	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()
	f := newFixture(t, broker)
	seedBasic(f)

	sub := broker.Subscribe()
	defer broker.Unsubscribe(sub)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	var started, completed, stats bool
	deadline := time.After(2 * time.Second)
	for !(started && completed && stats) {
		select {
		case ev := <-sub:
			switch ev.Type {
			case events.EventRunStarted:
				started = true
			case events.EventRunCompleted:
				report := ev.Payload.(types.RunReport)
				assert.Equal(t, types.StatusCompleted, report.Status)
				completed = true
			case events.EventStats:
				stats = true
			}
		case <-deadline:
			t.Fatalf("missing events: started=%v completed=%v stats=%v", started, completed, stats)
		}
	}
}

func TestStatsSnapshot(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)

	stats := f.coord.Stats()
	assert.Equal(t, types.StatusIdle, stats.Status)
	assert.Equal(t, int64(2), stats.Counters.TotalDocumentsWritten)
	assert.Contains(t, stats.Watermarks, "patients")
	assert.Contains(t, stats.Schemas, "patients")
	assert.True(t, stats.Health.AllHealthy())
}

func TestResetStatsKeepsWatermarks(t *testing.T) {
	f := newFixture(t, nil)
	seedBasic(f)

	_, err := f.coord.RunOnce(context.Background())
	require.NoError(t, err)
	wm := f.store.Watermark("patients", types.DirectionForward)
	require.NotEmpty(t, wm)

	require.NoError(t, f.coord.ResetStats())

	counters := f.store.Counters()
	assert.Zero(t, counters.TotalDocumentsWritten)
	assert.Zero(t, counters.IncrementalRunCount)
	assert.Equal(t, wm, f.store.Watermark("patients", types.DirectionForward))
	assert.Empty(t, f.coord.Stats().Schemas)
}

func TestForceAuthRunsStandalonePass(t *testing.T) {
	f := newFixture(t, nil)
	f.pauth.SeedUser(types.User{UID: "u1"})

	report, err := f.coord.ForceAuth(context.Background())
	require.NoError(t, err)

	assert.Equal(t, types.StatusCompleted, report.Status)
	assert.Equal(t, 1, f.sauth.UserCount())
	assert.Zero(t, f.sdb.DocCount("patients"))
}

func TestReconcileReportsWithoutHealing(t *testing.T) {
	f := newFixture(t, nil)
	f.pdb.SeedDoc("c", "only-primary", map[string]interface{}{"v": 1})

	report, err := f.coord.Reconcile(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"only-primary"}, report.Collections["c"].MissingInStandby)
	assert.Zero(t, f.sdb.DocCount("c"))
}
