package controller

import "github.com/prometheus/client_golang/prometheus"

var stats = metrics{
	events: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zof",
		Subsystem: "controller",
		Name:      "events_total",
		Help:      "Number of events dispatched, by type",
	}, []string{
		"type",
	}),

	datapaths: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zof",
		Subsystem: "controller",
		Name:      "datapaths",
		Help:      "Number of connected datapaths",
	}),

	appErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zof",
		Subsystem: "controller",
		Name:      "app_errors_total",
		Help:      "Number of handler and task failures, by app",
	}, []string{
		"app",
	}),
}

type metrics struct {
	events    *prometheus.CounterVec
	datapaths prometheus.Gauge
	appErrors *prometheus.CounterVec
}

func init() {
	prometheus.MustRegister(stats.events)
	prometheus.MustRegister(stats.datapaths)
	prometheus.MustRegister(stats.appErrors)
}

func (m *metrics) Event(typ string) {
	m.events.WithLabelValues(typ).Add(1)
}

func (m *metrics) Datapaths(n int) {
	m.datapaths.Set(float64(n))
}

func (m *metrics) AppError(app string) {
	m.appErrors.WithLabelValues(app).Add(1)
}
