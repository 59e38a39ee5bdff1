package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the booking protocol. The retry
// exhaustion counter is what distinguishes "no slots existed" from "lost every
// race" without changing the caller-facing error.
type BookingMetrics struct {
	attemptsTotal   *prometheus.CounterVec
	slotConflicts   prometheus.Counter
	retryExhausted  prometheus.Counter
	notifyFailures  prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		attemptsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "teleconsult",
			Subsystem: "booking",
			Name:      "accept_total",
			Help:      "Accept-request outcomes",
		}, []string{"outcome"}),
		slotConflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teleconsult",
			Subsystem: "booking",
			Name:      "slot_conflicts_total",
			Help:      "Slot claims lost to a concurrent consultation",
		}),
		retryExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teleconsult",
			Subsystem: "booking",
			Name:      "retry_exhausted_total",
			Help:      "Accept attempts that spent the full retry budget",
		}),
		notifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "teleconsult",
			Subsystem: "booking",
			Name:      "notify_failures_total",
			Help:      "Bookings whose post-commit notification failed",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.attemptsTotal, m.slotConflicts, m.retryExhausted, m.notifyFailures)
	return m
}

func (m *BookingMetrics) ObserveAccept(outcome string) {
	if m == nil {
		return
	}
	m.attemptsTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveSlotConflict() {
	if m == nil {
		return
	}
	m.slotConflicts.Inc()
}

func (m *BookingMetrics) ObserveRetryExhausted() {
	if m == nil {
		return
	}
	m.retryExhausted.Inc()
}

func (m *BookingMetrics) ObserveNotifyFailure() {
	if m == nil {
		return
	}
	m.notifyFailures.Inc()
}
