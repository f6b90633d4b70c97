package sserelay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	accepted     prometheus.Counter
	acceptErrors prometheus.Counter
	closed       *prometheus.CounterVec
	open         prometheus.Gauge
	broadcasts   prometheus.Counter
	bridgeBytes  prometheus.Counter
	writes       prometheus.Counter
	shortWrites  prometheus.Counter
	bytesWritten prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "connections_accepted_total",
			Help:      "Client connections accepted.",
		}),
		acceptErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "accept_errors_total",
			Help:      "Client connections that could not be accepted or registered.",
		}),
		closed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "connections_closed_total",
			Help:      "Client connections closed, by reason.",
		}, []string{"reason"}),
		open: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "sserelay",
			Name:      "connections_open",
			Help:      "Client connections currently registered.",
		}),
		broadcasts: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "broadcasts_total",
			Help:      "Broadcasts drained from the bridge.",
		}),
		bridgeBytes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "bridge_bytes_total",
			Help:      "Bytes drained from the bridge.",
		}),
		writes: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "writes_total",
			Help:      "Write attempts to client connections.",
		}),
		shortWrites: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "short_writes_total",
			Help:      "Writes that accepted fewer bytes than requested.",
		}),
		bytesWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: "sserelay",
			Name:      "bytes_written_total",
			Help:      "Bytes accepted by client sockets.",
		}),
	}
}
