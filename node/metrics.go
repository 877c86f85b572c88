package node

import "github.com/prometheus/client_golang/prometheus"

var (
	ConnectedClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "relay_connected_clients",
		Help: "Number of currently connected clients",
	})

	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_messages_total",
		Help: "Total lines processed by type",
	}, []string{"type"})

	BytesIn = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_bytes_in_total",
		Help: "Total bytes read from client sockets",
	})

	BytesOut = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_bytes_out_total",
		Help: "Total bytes written to client sockets",
	})

	WriteTasksStarted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "relay_write_tasks_started_total",
		Help: "Write tasks created because a send hit backpressure",
	})
)

func init() {
	prometheus.MustRegister(ConnectedClients)
	prometheus.MustRegister(MessagesTotal)
	prometheus.MustRegister(BytesIn)
	prometheus.MustRegister(BytesOut)
	prometheus.MustRegister(WriteTasksStarted)
}
