package breach

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds Prometheus metrics for the breach engine. A nil *Metrics
// is valid everywhere; the helpers below no-op on it so tests and minimal
// setups can skip registration.
type Metrics struct {
	ChecksTotal         *prometheus.CounterVec
	CheckDuration       prometheus.Histogram
	GeofencesEvaluated  prometheus.Histogram
	BreachesTotal       *prometheus.CounterVec
	InsertFailures      prometheus.Counter
	DispatchTotal       *prometheus.CounterVec
	MarkAlertedFailures prometheus.Counter
}

// NewMetrics registers and returns breach engine metrics on the given
// registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ChecksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geowatch_checks_total",
			Help: "Total location checks by outcome.",
		}, []string{"outcome"}),
		CheckDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geowatch_check_duration_seconds",
			Help:    "Duration of location checks in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms .. ~4s
		}),
		GeofencesEvaluated: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "geowatch_geofences_evaluated",
			Help:    "Active geofences evaluated per location check.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1 .. 512
		}),
		BreachesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geowatch_breaches_total",
			Help: "Total detected breaches by risk tier.",
		}, []string{"tier"}),
		InsertFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geowatch_breach_insert_failures_total",
			Help: "Breach events that failed to persist.",
		}),
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "geowatch_dispatch_total",
			Help: "Notification dispatch attempts by target and outcome.",
		}, []string{"target", "outcome"}),
		MarkAlertedFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geowatch_mark_alerted_failures_total",
			Help: "Failures flipping the alert-sent flag after dispatch.",
		}),
	}

	reg.MustRegister(
		m.ChecksTotal,
		m.CheckDuration,
		m.GeofencesEvaluated,
		m.BreachesTotal,
		m.InsertFailures,
		m.DispatchTotal,
		m.MarkAlertedFailures,
	)

	return m
}

func (m *Metrics) check(outcome string, seconds float64, evaluated int) {
	if m == nil {
		return
	}
	m.ChecksTotal.WithLabelValues(outcome).Inc()
	m.CheckDuration.Observe(seconds)
	m.GeofencesEvaluated.Observe(float64(evaluated))
}

func (m *Metrics) breachDetected(tier RiskTier) {
	if m == nil {
		return
	}
	m.BreachesTotal.WithLabelValues(string(tier)).Inc()
}

func (m *Metrics) insertFailure() {
	if m == nil {
		return
	}
	m.InsertFailures.Inc()
}

func (m *Metrics) dispatch(target, outcome string) {
	if m == nil {
		return
	}
	m.DispatchTotal.WithLabelValues(target, outcome).Inc()
}

func (m *Metrics) markAlertedFailure() {
	if m == nil {
		return
	}
	m.MarkAlertedFailures.Inc()
}
