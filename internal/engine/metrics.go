package engine

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/taskforge/internal/model"
)

var (
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taskforge_executions_total",
			Help: "Total number of executions that reached a terminal status.",
		},
		[]string{"status"},
	)

	fragmentsPublished = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "taskforge_fragments_published_total",
			Help: "Total number of provider fragments published to execution channels.",
		},
	)

	busChannels = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "taskforge_bus_channels",
			Help: "Number of live execution channels on the event bus.",
		},
	)

	providerCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "taskforge_provider_call_seconds",
			Help:    "Duration of provider calls from request to last fragment, in seconds.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"provider"},
	)
)

func init() {
	prometheus.MustRegister(executionsTotal)
	prometheus.MustRegister(fragmentsPublished)
	prometheus.MustRegister(busChannels)
	prometheus.MustRegister(providerCallDuration)

	executionsTotal.WithLabelValues(model.StatusCompleted)
	executionsTotal.WithLabelValues(model.StatusFailed)
}
