package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics exposes counters for the reservation lifecycle.
type LedgerMetrics struct {
	reservations  *prometheus.CounterVec
	confirmations *prometheus.CounterVec
	cancellations *prometheus.CounterVec
	releases      prometheus.Counter
	holdsExpired  prometheus.Counter
	activeHolds   prometheus.Gauge
	followups     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	opLatency     *prometheus.HistogramVec
}

func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	m := &LedgerMetrics{
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "reservations_total",
			Help:      "Reserve attempts by outcome",
		}, []string{"outcome"}),
		confirmations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "confirmations_total",
			Help:      "Confirm attempts by outcome",
		}, []string{"outcome"}),
		cancellations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "cancellations_total",
			Help:      "Cancel attempts by outcome",
		}, []string{"outcome"}),
		releases: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "releases_total",
			Help:      "Holds released before expiry",
		}),
		holdsExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "holds_expired_total",
			Help:      "Holds reverted after their TTL elapsed",
		}),
		activeHolds: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "active_holds",
			Help:      "Holds currently pending confirmation",
		}),
		followups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "bookings",
			Name:      "followups_total",
			Help:      "Post-confirmation follow-up steps by status",
		}, []string{"step", "status"}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "virevamind",
			Subsystem: "verification",
			Name:      "results_total",
			Help:      "Credential verification results",
		}, []string{"status"}),
		opLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "virevamind",
			Subsystem: "ledger",
			Name:      "operation_seconds",
			Help:      "Latency of ledger operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.reservations, m.confirmations, m.cancellations, m.releases,
		m.holdsExpired, m.activeHolds, m.followups, m.verifications, m.opLatency,
	)
	return m
}

func (m *LedgerMetrics) ObserveReserve(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.activeHolds.Inc()
	}
}

func (m *LedgerMetrics) ObserveConfirm(outcome string) {
	if m == nil {
		return
	}
	m.confirmations.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.activeHolds.Dec()
	}
}

func (m *LedgerMetrics) ObserveCancel(outcome string) {
	if m == nil {
		return
	}
	m.cancellations.WithLabelValues(outcome).Inc()
}

func (m *LedgerMetrics) ObserveRelease() {
	if m == nil {
		return
	}
	m.releases.Inc()
	m.activeHolds.Dec()
}

func (m *LedgerMetrics) ObserveExpired(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.holdsExpired.Add(float64(n))
	m.activeHolds.Sub(float64(n))
}

func (m *LedgerMetrics) ObserveFollowup(step, status string) {
	if m == nil {
		return
	}
	m.followups.WithLabelValues(step, status).Inc()
}

func (m *LedgerMetrics) ObserveVerification(status string) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(status).Inc()
}

func (m *LedgerMetrics) ObserveLatency(op string, seconds float64) {
	if m == nil {
		return
	}
	m.opLatency.WithLabelValues(op).Observe(seconds)
}
