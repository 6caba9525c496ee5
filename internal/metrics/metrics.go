package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the review workflow.
type Metrics struct {
	// Decisions recorded, by stage and decision
	Decisions *prometheus.CounterVec

	// Claim attempts by result: claimed, conflict, limited
	Claims *prometheus.CounterVec

	// Workflow failures returned to callers, by error code
	Failures *prometheus.CounterVec

	// Route-level access denials by action
	AccessDenials *prometheus.CounterVec

	// Notifications that could not be published
	NotifyFailures prometheus.Counter

	CompleteLatency prometheus.Histogram
}

// New registers all workflow metrics on reg. A nil reg uses the default
// registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		Decisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_decisions_total",
			Help: "Decisions recorded by stage and decision",
		}, []string{"stage", "decision"}),

		Claims: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_task_claims_total",
			Help: "Task claim attempts by result",
		}, []string{"result"}),

		Failures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_failures_total",
			Help: "Workflow operation failures by error code",
		}, []string{"code"}),

		AccessDenials: f.NewCounterVec(prometheus.CounterOpts{
			Name: "review_access_denials_total",
			Help: "Route-level access denials by action",
		}, []string{"action"}),

		NotifyFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "review_notify_failures_total",
			Help: "Notifications that failed to publish",
		}),

		CompleteLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "review_complete_duration_seconds",
			Help:    "Duration of task completion including the repository transaction",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

func (m *Metrics) IncDecision(stage, decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(stage, decision).Inc()
	}
}

func (m *Metrics) IncClaim(result string) {
	if m != nil {
		m.Claims.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) IncFailure(code string) {
	if m != nil {
		m.Failures.WithLabelValues(code).Inc()
	}
}

func (m *Metrics) IncAccessDenial(action string) {
	if m != nil {
		m.AccessDenials.WithLabelValues(action).Inc()
	}
}

func (m *Metrics) IncNotifyFailure() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}

func (m *Metrics) ObserveComplete(d time.Duration) {
	if m != nil {
		m.CompleteLatency.Observe(d.Seconds())
	}
}
