package server

import "github.com/prometheus/client_golang/prometheus"

var prom struct {
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	FramesRead          prometheus.Counter
	FramesWritten       prometheus.Counter
	BytesRead           prometheus.Counter
	BytesWritten        prometheus.Counter
	CallsInflight       prometheus.Gauge
	CallsSuspended      prometheus.Gauge
	CallSeconds         *prometheus.HistogramVec
	ConnFatalErrors     *prometheus.CounterVec
}

func init() {
	prom.ConnectionsAccepted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "connections_accepted_total",
		Help:      "Client connections accepted since process start.",
	})
	prom.ConnectionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "connections_active",
		Help:      "Client connections currently open.",
	})
	prom.FramesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "frames_read_total",
		Help:      "Complete request frames read off client connections.",
	})
	prom.FramesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "frames_written_total",
		Help:      "Response frames written to client connections.",
	})
	prom.BytesRead = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "bytes_read_total",
		Help:      "Request bytes read off client connections.",
	})
	prom.BytesWritten = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "bytes_written_total",
		Help:      "Response bytes written to client connections.",
	})
	prom.CallsInflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "calls_inflight",
		Help:      "Calls currently registered on a stream id.",
	})
	prom.CallsSuspended = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "calls_suspended",
		Help:      "Calls currently parked on a pending continuation.",
	})
	prom.CallSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "call_seconds",
		Help:      "Time from frame receipt to response write, per opcode.",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
	}, []string{"opcode"})
	prom.ConnFatalErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "yb",
		Subsystem: "cqlserver",
		Name:      "connection_fatal_errors_total",
		Help:      "Connections torn down by class of fatal error.",
	}, []string{"kind"})
}

func PrometheusRegister(registry prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		prom.ConnectionsAccepted,
		prom.ConnectionsActive,
		prom.FramesRead,
		prom.FramesWritten,
		prom.BytesRead,
		prom.BytesWritten,
		prom.CallsInflight,
		prom.CallsSuspended,
		prom.CallSeconds,
		prom.ConnFatalErrors,
	} {
		if err := registry.Register(c); err != nil {
			return err
		}
	}
	return nil
}
