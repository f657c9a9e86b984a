package driver

import "github.com/prometheus/client_golang/prometheus"

var stats = metrics{
	framesSent: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zof",
		Subsystem: "driver",
		Name:      "frames_sent_total",
		Help:      "Number of frames written to oftr",
	}),

	framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "zof",
		Subsystem: "driver",
		Name:      "frames_received_total",
		Help:      "Number of frames read from oftr",
	}),

	pending: prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "zof",
		Subsystem: "driver",
		Name:      "pending_requests",
		Help:      "Number of requests waiting for a reply",
	}),

	requestErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "zof",
		Subsystem: "driver",
		Name:      "request_errors_total",
		Help:      "Number of requests that failed, by reason",
	}, []string{
		"reason",
	}),
}

type metrics struct {
	framesSent     prometheus.Counter
	framesReceived prometheus.Counter
	pending        prometheus.Gauge
	requestErrors  *prometheus.CounterVec
}

func init() {
	prometheus.MustRegister(stats.framesSent)
	prometheus.MustRegister(stats.framesReceived)
	prometheus.MustRegister(stats.pending)
	prometheus.MustRegister(stats.requestErrors)
}

func (m *metrics) SentFrame() {
	m.framesSent.Add(1)
}

func (m *metrics) ReceivedFrame() {
	m.framesReceived.Add(1)
}

func (m *metrics) PendingDelta(n int) {
	m.pending.Add(float64(n))
}

func (m *metrics) RequestFailed(reason string) {
	m.requestErrors.WithLabelValues(reason).Add(1)
}
