package obs

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service's Prometheus instruments. A nil *Metrics is valid
// and records nothing, which keeps tests free of registry plumbing.
type Metrics struct {
	registry *prometheus.Registry

	logins        *prometheus.CounterVec
	registrations prometheus.Counter
	rotations     prometheus.Counter
	reuseDetected prometheus.Counter
	verifications *prometheus.CounterVec
	oauthReplays  prometheus.Counter

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		logins: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_logins_total",
			Help: "Login attempts by result.",
		}, []string{"result"}),
		registrations: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_registrations_total",
			Help: "Successful account registrations.",
		}),
		rotations: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_token_rotations_total",
			Help: "Successful refresh token rotations.",
		}),
		reuseDetected: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_token_reuse_detected_total",
			Help: "Refresh reuse events that triggered a family revocation.",
		}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_verifications_total",
			Help: "Verification token consumptions by kind and result.",
		}, []string{"kind", "result"}),
		oauthReplays: factory.NewCounter(prometheus.CounterOpts{
			Name: "identity_oauth_state_replays_total",
			Help: "OAuth callbacks rejected because the state was replayed or expired.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "identity_http_requests_total",
			Help: "HTTP requests by route and status class.",
		}, []string{"route", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "identity_http_request_duration_seconds",
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) Login(result string) {
	if m == nil {
		return
	}
	m.logins.WithLabelValues(result).Inc()
}

func (m *Metrics) Registration() {
	if m == nil {
		return
	}
	m.registrations.Inc()
}

func (m *Metrics) Rotation() {
	if m == nil {
		return
	}
	m.rotations.Inc()
}

func (m *Metrics) ReuseDetected() {
	if m == nil {
		return
	}
	m.reuseDetected.Inc()
}

func (m *Metrics) Verification(kind, result string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(kind, result).Inc()
}

func (m *Metrics) OAuthReplay() {
	if m == nil {
		return
	}
	m.oauthReplays.Inc()
}

func (m *Metrics) HTTPRequest(route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, status).Inc()
	m.httpDuration.WithLabelValues(route).Observe(seconds)
}
