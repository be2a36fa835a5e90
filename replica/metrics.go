package replica

import (
	"fmt"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what replicas do. Counters are labelled with the replica ID.
type Metrics struct {
	OpsIssued    metrics.Counter
	OpsDelivered metrics.Counter
	Merges       metrics.Counter
}

// NewDiscardMetrics returns metrics that record nothing.
func NewDiscardMetrics() *Metrics {
	return &Metrics{
		OpsIssued:    discard.NewCounter(),
		OpsDelivered: discard.NewCounter(),
		Merges:       discard.NewCounter(),
	}
}

// NewPrometheusMetrics returns metrics registered in the default prometheus registry.
// It must be called at most once per process.
func NewPrometheusMetrics() *Metrics {
	return &Metrics{
		OpsIssued: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "counters",
			Subsystem: "replica",
			Name:      "ops_issued_total",
			Help:      "Number of operations issued locally",
		}, []string{"replica"}),
		OpsDelivered: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "counters",
			Subsystem: "replica",
			Name:      "ops_delivered_total",
			Help:      "Number of remote operations applied, including duplicates",
		}, []string{"replica"}),
		Merges: prometheus.NewCounterFrom(prom.CounterOpts{
			Namespace: "counters",
			Subsystem: "replica",
			Name:      "merges_total",
			Help:      "Number of remote states merged",
		}, []string{"replica"}),
	}
}

func (m *Metrics) with(id interface{}) *Metrics {
	label := fmt.Sprint(id)
	return &Metrics{
		OpsIssued:    m.OpsIssued.With("replica", label),
		OpsDelivered: m.OpsDelivered.With("replica", label),
		Merges:       m.Merges.With("replica", label),
	}
}
