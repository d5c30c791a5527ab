package doorpanel

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.tigermatt.uk/doorpanel/zusi"
)

// Metrics are the translator's Prometheus collectors. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	MessagesReceived prometheus.Counter
	BatchesSent      prometheus.Counter
	CommandsSent     *prometheus.CounterVec
	DoorStatus       prometheus.Gauge
	PanelSide        prometheus.Gauge
	HardwareSide     prometheus.Gauge

	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doorpanel",
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Messages received from the simulator",
		}),
		BatchesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "doorpanel",
			Subsystem: "batches",
			Name:      "sent_total",
			Help:      "Input batches sent to the simulator",
		}),
		CommandsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "doorpanel",
			Subsystem: "commands",
			Name:      "sent_total",
			Help:      "Synthetic inputs sent to the simulator",
		}, []string{"kind"}),
		DoorStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorpanel",
			Name:      "door_status",
			Help:      "Door level, 0 = all closed",
		}),
		PanelSide: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorpanel",
			Name:      "panel_side",
			Help:      "Panel side selector (1=left, 2=right, 3=both)",
		}),
		HardwareSide: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "doorpanel",
			Name:      "hardware_side",
			Help:      "Simulator side selector (0=none, 1=left, 2=right, 3=both)",
		}),
		registry: prometheus.NewRegistry(),
	}

	m.registry.MustRegister(
		m.MessagesReceived,
		m.BatchesSent,
		m.CommandsSent,
		m.DoorStatus,
		m.PanelSide,
		m.HardwareSide,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the collectors in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

func (m *Metrics) received() {
	if m == nil {
		return
	}
	m.MessagesReceived.Inc()
}

func (m *Metrics) observe(s State) {
	if m == nil {
		return
	}
	m.DoorStatus.Set(float64(s.DoorStatus))
	m.PanelSide.Set(float64(s.PanelSide))
	m.HardwareSide.Set(float64(s.HardwareSide))
}

func (m *Metrics) sent(inputs []*zusi.Node) {
	if m == nil {
		return
	}
	m.BatchesSent.Inc()
	for _, n := range inputs {
		m.CommandsSent.WithLabelValues(inputKind(n)).Inc()
	}
}

func inputKind(n *zusi.Node) string {
	if _, ok := n.Attribute(attrSwitchNotch); ok {
		return "switch"
	}
	return "keypress"
}
