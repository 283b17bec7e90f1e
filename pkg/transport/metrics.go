package transport

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the transport's Prometheus counters. Each Transport owns a
// private registry so that multiple transports (e.g. one per process in a
// test) can coexist without a double-registration panic against the global
// default registry.
type Metrics struct {
	Registry *prometheus.Registry

	DatagramsSent        prometheus.Counter
	DatagramsDroppedLoss prometheus.Counter
	AcksSent             prometheus.Counter
	AcksDroppedLoss      prometheus.Counter
	Retransmissions      prometheus.Counter
	DeliveryGaveUp       prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
}

// NewMetrics builds a fresh, privately-registered set of counters labeled
// with the owning process id.
func NewMetrics(processID int) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"process_id": strconv.Itoa(processID)}

	m := &Metrics{
		Registry: reg,
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "datagrams_sent_total",
			Help:        "Datagrams written to the wire.",
			ConstLabels: labels,
		}),
		DatagramsDroppedLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "datagrams_dropped_loss_total",
			Help:        "Datagrams dropped pre-wire by loss injection.",
			ConstLabels: labels,
		}),
		AcksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "acks_sent_total",
			Help:        "ACK frames written to the wire.",
			ConstLabels: labels,
		}),
		AcksDroppedLoss: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "acks_dropped_loss_total",
			Help:        "ACK frames dropped pre-wire by loss injection.",
			ConstLabels: labels,
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "retransmissions_total",
			Help:        "Datagrams re-emitted by the retry timer.",
			ConstLabels: labels,
		}),
		DeliveryGaveUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "delivery_gaveup_total",
			Help:        "Messages abandoned after exhausting the retry budget.",
			ConstLabels: labels,
		}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "causalnet",
			Subsystem:   "transport",
			Name:        "duplicates_suppressed_total",
			Help:        "Inbound data frames whose msg_id was already delivered.",
			ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.DatagramsSent,
		m.DatagramsDroppedLoss,
		m.AcksSent,
		m.AcksDroppedLoss,
		m.Retransmissions,
		m.DeliveryGaveUp,
		m.DuplicatesSuppressed,
	)
	return m
}
