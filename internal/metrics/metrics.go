// Package metrics exposes Prometheus counters for the authorization server.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "authz"

// Metrics holds the server collectors on a private registry.
type Metrics struct {
	registry          *prometheus.Registry
	tokensIssued      *prometheus.CounterVec
	oauthErrors       *prometheus.CounterVec
	authorizeOutcomes *prometheus.CounterVec
	permissionCache   *prometheus.CounterVec
	reuseDetected     *prometheus.CounterVec
	auditDropped      prometheus.Counter
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		tokensIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_issued_total",
			Help:      "Access tokens issued by grant type.",
		}, []string{"grant_type"}),
		oauthErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_errors_total",
			Help:      "OAuth protocol errors by endpoint and error code.",
		}, []string{"endpoint", "code"}),
		authorizeOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "authorize_outcomes_total",
			Help:      "Authorization state machine results by state.",
		}, []string{"state"}),
		permissionCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "permission_cache_lookups_total",
			Help:      "Permission resolver cache lookups by result.",
		}, []string{"result"}),
		reuseDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credential_reuse_detected_total",
			Help:      "Replayed authorization codes and refresh tokens.",
		}, []string{"credential"}),
		auditDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_dropped_total",
			Help:      "Audit events dropped because the buffer was full.",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.tokensIssued,
		m.oauthErrors,
		m.authorizeOutcomes,
		m.permissionCache,
		m.reuseDetected,
		m.auditDropped,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) TokenIssued(grantType string) {
	if m == nil {
		return
	}
	m.tokensIssued.WithLabelValues(grantType).Inc()
}

func (m *Metrics) OAuthError(endpoint, code string) {
	if m == nil {
		return
	}
	m.oauthErrors.WithLabelValues(endpoint, code).Inc()
}

func (m *Metrics) AuthorizeOutcome(state string) {
	if m == nil {
		return
	}
	m.authorizeOutcomes.WithLabelValues(state).Inc()
}

func (m *Metrics) PermissionCacheHit() {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues("hit").Inc()
}

func (m *Metrics) PermissionCacheMiss() {
	if m == nil {
		return
	}
	m.permissionCache.WithLabelValues("miss").Inc()
}

func (m *Metrics) ReuseDetected(credential string) {
	if m == nil {
		return
	}
	m.reuseDetected.WithLabelValues(credential).Inc()
}

func (m *Metrics) AuditDropped() {
	if m == nil {
		return
	}
	m.auditDropped.Inc()
}
