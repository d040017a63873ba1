// Package metrics exposes Prometheus counters for the messaging core. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "carenest"

type Metrics struct {
	MessagesSent       prometheus.Counter
	MirrorFailures     prometheus.Counter
	AttachmentFailures prometheus.Counter
	NotifyFailures     prometheus.Counter
	AuthFailures       *prometheus.CounterVec
	Connections        prometheus.Gauge
}

// New registers all collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "messages_sent_total",
			Help: "Messages committed to the authoritative store.",
		}),
		MirrorFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mirror_failures_total",
			Help: "Failed writes or reads against the realtime mirror.",
		}),
		AttachmentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "attachment_failures_total",
			Help: "Attachments skipped because they could not be decoded or stored.",
		}),
		NotifyFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "notify_failures_total",
			Help: "Notifications that could not be published.",
		}),
		AuthFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "auth_failures_total",
			Help: "Rejected credentials by transport.",
		}, []string{"transport"}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "ws_connections",
			Help: "Open websocket connections.",
		}),
	}
	reg.MustRegister(m.MessagesSent, m.MirrorFailures, m.AttachmentFailures,
		m.NotifyFailures, m.AuthFailures, m.Connections)
	return m
}

func (m *Metrics) MessageSent() {
	if m != nil {
		m.MessagesSent.Inc()
	}
}

func (m *Metrics) MirrorFailed() {
	if m != nil {
		m.MirrorFailures.Inc()
	}
}

func (m *Metrics) AttachmentFailed() {
	if m != nil {
		m.AttachmentFailures.Inc()
	}
}

func (m *Metrics) NotifyFailed() {
	if m != nil {
		m.NotifyFailures.Inc()
	}
}

func (m *Metrics) AuthFailed(transport string) {
	if m != nil {
		m.AuthFailures.WithLabelValues(transport).Inc()
	}
}

func (m *Metrics) ConnectionOpened() {
	if m != nil {
		m.Connections.Inc()
	}
}

func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.Connections.Dec()
	}
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
