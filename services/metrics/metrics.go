package metrics

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels shared by the sign-in and validation counters.
const (
	ResultSuccess         = "success"
	ResultRejected        = "rejected"
	ResultUnavailable     = "unavailable"
	ResultSecurityRevoked = "security_revoked"
)

// Metrics owns a private registry so tests can build as many as they like.
// A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	noncesIssued   prometheus.Counter
	signIns        *prometheus.CounterVec
	signInDuration prometheus.Histogram
	validations    *prometheus.CounterVec
	revocations    *prometheus.CounterVec
	purged         *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		noncesIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "walletauth_nonces_issued_total",
			Help: "Sign-in nonces handed out",
		}),
		signIns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_sign_ins_total",
			Help: "Sign-in attempts by outcome",
		}, []string{"result"}),
		signInDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "walletauth_sign_in_duration_seconds",
			Help:    "Time spent verifying a signed message and opening a session",
			Buckets: prometheus.DefBuckets,
		}),
		validations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_session_validations_total",
			Help: "Session validations by outcome",
		}, []string{"result"}),
		revocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_session_revocations_total",
			Help: "Sessions taken out of service by reason",
		}, []string{"reason"}),
		purged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "walletauth_purged_records_total",
			Help: "Expired records deleted by the janitor",
		}, []string{"store"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.noncesIssued,
		m.signIns,
		m.signInDuration,
		m.validations,
		m.revocations,
		m.purged,
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) NonceIssued() {
	if m != nil {
		m.noncesIssued.Inc()
	}
}

func (m *Metrics) SignIn(result string, started time.Time) {
	if m != nil {
		m.signIns.WithLabelValues(result).Inc()
		m.signInDuration.Observe(time.Since(started).Seconds())
	}
}

func (m *Metrics) Validation(result string) {
	if m != nil {
		m.validations.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) Revoked(reason string, count int) {
	if m != nil && count > 0 {
		m.revocations.WithLabelValues(reason).Add(float64(count))
	}
}

func (m *Metrics) Purged(store string, count int64) {
	if m != nil && count > 0 {
		m.purged.WithLabelValues(store).Add(float64(count))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() echo.HandlerFunc {
	return echo.WrapHandler(promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))
}
