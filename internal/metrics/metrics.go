// Package metrics holds the Prometheus collectors of the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups every collector. A nil *Metrics records nothing.
type Metrics struct {
	marks           *prometheus.CounterVec
	markErrors      *prometheus.CounterVec
	requests        *prometheus.HistogramVec
	classPercentage *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		marks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "marks_saved_total",
			Help:      "Attendance marks written, by status.",
		}, []string{"status"}),
		markErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "attendance",
			Name:      "mark_errors_total",
			Help:      "Attendance batch entries rejected, by error code.",
		}, []string{"code"}),
		requests: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "attendance",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		classPercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "attendance",
			Name:      "class_day_percentage",
			Help:      "Latest attendance percentage per class, set by the alert worker.",
		}, []string{"class_id"}),
	}
	reg.MustRegister(m.marks, m.markErrors, m.requests, m.classPercentage)
	return m
}

// MarkSaved counts one written attendance record.
func (m *Metrics) MarkSaved(status string) {
	if m == nil {
		return
	}
	m.marks.WithLabelValues(status).Inc()
}

// MarkRejected counts one rejected batch entry.
func (m *Metrics) MarkRejected(code string) {
	if m == nil {
		return
	}
	m.markErrors.WithLabelValues(code).Inc()
}

// ObserveRequest records the latency of one HTTP request.
func (m *Metrics) ObserveRequest(method, route, status string, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, route, status).Observe(seconds)
}

// SetClassPercentage publishes the latest computed percentage of a class.
func (m *Metrics) SetClassPercentage(classID string, pct int) {
	if m == nil {
		return
	}
	m.classPercentage.WithLabelValues(classID).Set(float64(pct))
}
