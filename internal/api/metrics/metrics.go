// Package metrics defines and registers all custom Prometheus metrics for the
// storefront. It is the single source of truth for metric names, labels, and
// help strings.
//
// Metrics are registered with the default Prometheus registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marketplace/storefront/internal/core/domain"
	"github.com/marketplace/storefront/internal/core/ports"
)

const namespace = "storefront"

// ── Session metrics ───────────────────────────────────────────────────────────

// SessionTransitionsTotal counts session store state changes.
// Labels:
//   - cause: init, login, logout, forced_logout, external
//   - state: the resulting state (authenticated, anonymous)
var SessionTransitionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_transitions_total",
		Help:      "Total number of session state changes, by cause and resulting state.",
	},
	[]string{"cause", "state"},
)

// SessionCorruptRecordsTotal counts persisted sessions discarded as corrupt.
var SessionCorruptRecordsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_corrupt_records_total",
		Help:      "Total number of persisted session records cleared because they were partial or unparseable.",
	},
)

// DurableStoreErrorsTotal counts failed durable store operations.
// Label:
//   - op: get, set, delete
var DurableStoreErrorsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "durable_store_errors_total",
		Help:      "Total number of failed durable store operations.",
	},
	[]string{"op"},
)

// ── Access metrics ────────────────────────────────────────────────────────────

// AccessDecisionsTotal counts access guard decisions.
// Labels:
//   - outcome: allow, redirect, loading
//   - reason: no_session, inactive, role_mismatch, or empty
var AccessDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "access_decisions_total",
		Help:      "Total number of access guard decisions, by outcome and denial reason.",
	},
	[]string{"outcome", "reason"},
)

// ── Login metrics ─────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts.
// Label:
//   - result: success, invalid_credentials, account_suspended, account_banned, error
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// SessionRecorder feeds session store telemetry into the metrics above.
type SessionRecorder struct{}

var _ ports.SessionObserver = SessionRecorder{}

func (SessionRecorder) Transition(cause ports.ChangeCause, to domain.SessionState) {
	SessionTransitionsTotal.WithLabelValues(string(cause), to.String()).Inc()
}

func (SessionRecorder) CorruptRecord() {
	SessionCorruptRecordsTotal.Inc()
}

func (SessionRecorder) StoreError(op string) {
	DurableStoreErrorsTotal.WithLabelValues(op).Inc()
}

// ObserveDecision records one access guard decision.
func ObserveDecision(d domain.Decision) {
	AccessDecisionsTotal.WithLabelValues(d.Outcome.String(), string(d.Reason)).Inc()
}
