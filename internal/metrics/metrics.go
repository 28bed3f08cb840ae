package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the service's prometheus collectors. A nil *Metrics is
// safe to call, which keeps tests free of registry bookkeeping.
type Metrics struct {
	JobsCreated     *prometheus.CounterVec
	JobsCompleted   prometheus.Counter
	JobsFailed      *prometheus.CounterVec
	WebhooksIn      *prometheus.CounterVec
	CreditsCharged  prometheus.Counter
	CreditsRefunded prometheus.Counter
}

// New registers the collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		JobsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_jobs_created_total",
			Help: "Generation jobs created, by kind.",
		}, []string{"kind"}),
		JobsCompleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_jobs_completed_total",
			Help: "Generation jobs that reached VIDEO_READY.",
		}),
		JobsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_jobs_failed_total",
			Help: "Generation jobs that reached FAILED, by error code.",
		}, []string{"code"}),
		WebhooksIn: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mediagen_webhooks_received_total",
			Help: "Inbound provider webhooks, by outcome.",
		}, []string{"outcome"}),
		CreditsCharged: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_credits_charged_total",
			Help: "Credits charged across all jobs.",
		}),
		CreditsRefunded: factory.NewCounter(prometheus.CounterOpts{
			Name: "mediagen_credits_refunded_total",
			Help: "Credits refunded across all jobs.",
		}),
	}
}

func (m *Metrics) JobCreated(kind string) {
	if m == nil {
		return
	}
	m.JobsCreated.WithLabelValues(kind).Inc()
}

func (m *Metrics) JobCompleted() {
	if m == nil {
		return
	}
	m.JobsCompleted.Inc()
}

func (m *Metrics) JobFailed(code string) {
	if m == nil {
		return
	}
	m.JobsFailed.WithLabelValues(code).Inc()
}

func (m *Metrics) WebhookReceived(outcome string) {
	if m == nil {
		return
	}
	m.WebhooksIn.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Charged(amount int) {
	if m == nil {
		return
	}
	m.CreditsCharged.Add(float64(amount))
}

func (m *Metrics) Refunded(amount int) {
	if m == nil {
		return
	}
	m.CreditsRefunded.Add(float64(amount))
}
