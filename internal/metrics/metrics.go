package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "socsync_connection_state",
			Help: "1 for the current push connection state, 0 otherwise",
		},
		[]string{"state"},
	)

	ReconnectAttemptsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socsync_reconnect_attempts_total",
			Help: "Total number of push channel reconnect attempts",
		},
	)

	OutboundQueueDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socsync_outbound_queue_dropped_total",
			Help: "Outgoing messages dropped because the offline queue was full",
		},
	)

	OutboundQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "socsync_outbound_queue_depth",
			Help: "Messages waiting in the offline queue",
		},
	)

	// Synchronization metrics
	DeltasTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socsync_deltas_total",
			Help: "Push deltas by type and outcome (applied, stale, invalid, buffered)",
		},
		[]string{"type", "outcome"},
	)

	SnapshotFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socsync_snapshot_fetches_total",
			Help: "REST snapshot fetches by reason and result",
		},
		[]string{"reason", "result"},
	)

	MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socsync_mutations_total",
			Help: "Mutation requests by action and outcome",
		},
		[]string{"action", "outcome"},
	)

	MutationDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "socsync_mutation_duration_seconds",
			Help:    "Round trip of mutation requests to the backend",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"action"},
	)

	PermissionDenialsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "socsync_permission_denials_total",
			Help: "Mutation requests rejected by the permission engine",
		},
		[]string{"action", "role"},
	)

	AuditEventsDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "socsync_audit_events_dropped_total",
			Help: "Audit events dropped because the recorder buffer was full",
		},
	)
)

var connectionStates = []string{"disconnected", "connecting", "connected", "error"}

// RecordConnectionState marks state as the only active connection state.
func RecordConnectionState(state string) {
	for _, s := range connectionStates {
		v := 0.0
		if s == state {
			v = 1
		}
		ConnectionState.WithLabelValues(s).Set(v)
	}
}

// RecordReconnectAttempt counts a reconnect attempt.
func RecordReconnectAttempt() {
	ReconnectAttemptsTotal.Inc()
}

// RecordQueueDrop counts a dropped outbound message.
func RecordQueueDrop() {
	OutboundQueueDroppedTotal.Inc()
}

// RecordQueueDepth sets the current offline queue depth.
func RecordQueueDepth(n int) {
	OutboundQueueDepth.Set(float64(n))
}

// RecordDelta counts a push delta outcome.
func RecordDelta(msgType, outcome string) {
	DeltasTotal.WithLabelValues(msgType, outcome).Inc()
}

// RecordSnapshotFetch counts a snapshot fetch.
func RecordSnapshotFetch(reason string, ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	SnapshotFetchesTotal.WithLabelValues(reason, result).Inc()
}

// RecordMutation counts a mutation outcome and, when seconds > 0, its latency.
func RecordMutation(action, outcome string, seconds float64) {
	MutationsTotal.WithLabelValues(action, outcome).Inc()
	if seconds > 0 {
		MutationDurationSeconds.WithLabelValues(action).Observe(seconds)
	}
}

// RecordPermissionDenied counts a denied mutation.
func RecordPermissionDenied(action, role string) {
	PermissionDenialsTotal.WithLabelValues(action, role).Inc()
}

// RecordAuditDrop counts a dropped audit event.
func RecordAuditDrop() {
	AuditEventsDroppedTotal.Inc()
}
