package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "console_events_total",
		Help: "Lifecycle events ingested, by kind",
	}, []string{"kind"})

	EventsUnknown = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_events_unknown_total",
		Help: "Events passed through with an unrecognized kind",
	})

	DecodeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_decode_failures_total",
		Help: "Event frames that could not be parsed at all",
	})

	CallsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_calls_active",
		Help: "Call records currently open",
	})

	CallsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_calls_total",
		Help: "Call records created",
	})

	PhaseDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "console_phase_duration_seconds",
		Help:    "Per-phase latency as reported by timing events",
		Buckets: []float64{0.05, 0.1, 0.2, 0.3, 0.5, 0.8, 1.0, 2.0, 5.0, 10.0, 30.0},
	}, []string{"phase"})

	StreamReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "console_stream_reconnects_total",
		Help: "Event stream reconnect attempts",
	})

	ClientsConnected = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "console_dashboard_clients",
		Help: "Dashboard WebSocket clients currently connected",
	})
)
