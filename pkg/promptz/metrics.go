package promptz

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors of the mutation pipeline. A nil
// *Metrics records nothing.
type Metrics struct {
	mutations       *prometheus.CounterVec
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptz",
			Name:      "mutations_total",
			Help:      "Store mutations by kind, operation and result.",
		}, []string{"kind", "op", "result"}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptz",
			Name:      "events_published_total",
			Help:      "Domain events delivered to the event bus.",
		}, []string{"detail_type"}),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "promptz",
			Name:      "event_publish_failures_total",
			Help:      "Domain events lost because the event bus rejected them.",
		}, []string{"detail_type"}),
	}

	for _, c := range []prometheus.Collector{m.mutations, m.published, m.publishFailures} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) observeMutation(kind, op string, err error) {
	if m == nil {
		return
	}
	m.mutations.WithLabelValues(kind, op, resultLabel(err)).Inc()
}

func (m *Metrics) observePublish(detailType string, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.publishFailures.WithLabelValues(detailType).Inc()
		return
	}
	m.published.WithLabelValues(detailType).Inc()
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid"
	default:
		return "error"
	}
}
