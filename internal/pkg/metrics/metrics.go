// Package metrics defines the custom Prometheus metrics of the identity
// service. It is the single source of truth for metric names, labels and
// help strings.
//
// All collectors register with the default registry on package load; HTTP
// request metrics come from echoprometheus and share the same namespace.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const Namespace = "identity"

// ── Token verification ────────────────────────────────────────────────────────

// TokenVerificationsTotal counts bearer token checks.
// Label:
//   - result: "ok" or the rejection kind (e.g. "expired", "invalid_signature", "key_unavailable")
var TokenVerificationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "token_verifications_total",
		Help:      "Total number of bearer token verifications, by result.",
	},
	[]string{"result"},
)

// KeyFetchesTotal counts signing key fetches from the key set endpoint.
// Label:
//   - result: "ok" or "error"
var KeyFetchesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "key_fetches_total",
		Help:      "Total number of signing key set fetches, by result.",
	},
	[]string{"result"},
)

// ── Authorization cache ───────────────────────────────────────────────────────

// AuthzCacheRequestsTotal counts cache lookups.
// Label:
//   - result: "hit", "miss" or "error" (backend failure, served as a miss)
var AuthzCacheRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "authz_cache_requests_total",
		Help:      "Total number of authorization cache lookups, by result.",
	},
	[]string{"result"},
)

// AuthzCacheInvalidationErrorsTotal counts failed invalidations after a committed mutation.
var AuthzCacheInvalidationErrorsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "authz_cache_invalidation_errors_total",
		Help:      "Total number of authorization cache invalidations that failed.",
	},
)

// IdentityResolutionDuration measures token-to-identity resolution.
// Label:
//   - source: "cache", "store" or "rejected"
var IdentityResolutionDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: Namespace,
		Name:      "identity_resolution_duration_seconds",
		Help:      "Duration of identity resolution from token to roles.",
		Buckets:   prometheus.DefBuckets,
	},
	[]string{"source"},
)

// ── Role mutations ────────────────────────────────────────────────────────────

// RoleMutationsTotal counts admin role mutations.
// Labels:
//   - operation: "assign" or "revoke"
//   - outcome: "created", "already_exists", "promoted", "revoked", "absent"
var RoleMutationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "role_mutations_total",
		Help:      "Total number of role assign/revoke calls, by outcome.",
	},
	[]string{"operation", "outcome"},
)

// ── Webhook and security events ───────────────────────────────────────────────

// WebhookDeliveriesTotal counts signup webhook deliveries.
// Label:
//   - result: "processed", "ignored", "duplicate", "signature_invalid", "error"
var WebhookDeliveriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "webhook_deliveries_total",
		Help:      "Total number of user-created webhook deliveries, by result.",
	},
	[]string{"result"},
)

// SecurityEventsTotal counts asynchronous security events.
// Labels:
//   - event_type: e.g. "auth.token_rejected", "auth.forbidden"
//   - result: "recorded", "dropped" or "failed"
var SecurityEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: Namespace,
		Name:      "security_events_total",
		Help:      "Total number of security events handled by the dispatcher.",
	},
	[]string{"event_type", "result"},
)

// SecurityEventsQueueDepth tracks pending events per dispatcher worker.
// Label:
//   - worker_id: numeric worker index (e.g. "0", "1", …)
var SecurityEventsQueueDepth = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: Namespace,
		Name:      "security_events_queue_depth",
		Help:      "Current number of security events pending in each dispatcher worker channel.",
	},
	[]string{"worker_id"},
)
