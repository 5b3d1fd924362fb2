package ws

import "github.com/prometheus/client_golang/prometheus"

var (
	wsClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "uptimed_ws_clients",
		Help: "Connected WebSocket clients.",
	})
	wsDropped = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "uptimed_ws_dropped_messages_total",
		Help: "Messages dropped because a client's send buffer was full.",
	})
)

func init() {
	prometheus.MustRegister(wsClients, wsDropped)
}
