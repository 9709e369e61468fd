package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Replication metrics
	DocumentsWritten = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_documents_written_total",
			Help: "Total documents committed to the target side by direction",
		},
		[]string{"direction"},
	)

	DuplicatesSkipped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_duplicates_skipped_total",
			Help: "Total documents skipped because the target already had a newer copy",
		},
	)

	ReplicationErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_replication_errors_total",
			Help: "Total failed replication operations",
		},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mirror_runs_total",
			Help: "Total runs by kind and terminal status",
		},
		[]string{"kind", "status"},
	)

	RunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mirror_run_duration_seconds",
			Help:    "Run duration in seconds by kind",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Health metrics
	EndpointHealthy = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mirror_endpoint_healthy",
			Help: "Whether an endpoint answered its last probe (1 = healthy)",
		},
		[]string{"endpoint"},
	)

	// Auth metrics
	AuthUsersSynced = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_auth_users_synced_total",
			Help: "Total users upserted into the standby auth directory",
		},
	)

	AuthClaimsPropagated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_auth_claims_propagated_total",
			Help: "Total custom-claims writes propagated",
		},
	)

	AuthErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_auth_errors_total",
			Help: "Total failed auth-directory operations",
		},
	)

	// Reconciler metrics
	ReconcileRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "mirror_reconcile_runs_total",
			Help: "Total integrity reconciliation passes",
		},
	)

	ReconcileDrift = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mirror_reconcile_drift_documents",
			Help: "Documents present on one side only, from the last reconcile pass",
		},
		[]string{"side"},
	)
)

func init() {
	prometheus.MustRegister(DocumentsWritten)
	prometheus.MustRegister(DuplicatesSkipped)
	prometheus.MustRegister(ReplicationErrors)
	prometheus.MustRegister(RunsTotal)
	prometheus.MustRegister(RunDuration)
	prometheus.MustRegister(EndpointHealthy)
	prometheus.MustRegister(AuthUsersSynced)
	prometheus.MustRegister(AuthClaimsPropagated)
	prometheus.MustRegister(AuthErrors)
	prometheus.MustRegister(ReconcileRuns)
	prometheus.MustRegister(ReconcileDrift)
}

// Handler returns the Prometheus HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// boolGauge converts a probe result to a gauge value.
func boolGauge(healthy bool) float64 {
	if healthy {
		return 1
	}
	return 0
}

// SetEndpointHealth updates the health gauge for one endpoint.
func SetEndpointHealth(endpoint string, healthy bool) {
	EndpointHealthy.WithLabelValues(endpoint).Set(boolGauge(healthy))
}
