package simple

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds a Pair's Prometheus counters, privately registered so
// multiple pairs can coexist in one process without a double-registration
// panic against the default registry.
type Metrics struct {
	Registry *prometheus.Registry

	DatagramsSent        prometheus.Counter
	AcksSent             prometheus.Counter
	Retransmissions      prometheus.Counter
	DeliveryGaveUp       prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	DeliveriesAtMostOnce prometheus.Counter
}

// NewMetrics builds a fresh set of counters labeled with the owning pair's
// listen address.
func NewMetrics(listenAddr string) *Metrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"listen_addr": listenAddr}

	m := &Metrics{
		Registry: reg,
		DatagramsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "datagrams_sent_total",
			Help: "Datagrams written to the wire.", ConstLabels: labels,
		}),
		AcksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "acks_sent_total",
			Help: "ACK frames written to the wire.", ConstLabels: labels,
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "retransmissions_total",
			Help: "Frames re-emitted by the retry timer.", ConstLabels: labels,
		}),
		DeliveryGaveUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "delivery_gaveup_total",
			Help: "Messages abandoned after exhausting the retry budget.", ConstLabels: labels,
		}),
		DuplicatesSuppressed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "duplicates_suppressed_total",
			Help: "Inbound frames whose id was already delivered.", ConstLabels: labels,
		}),
		DeliveriesAtMostOnce: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "causalnet", Subsystem: "simple", Name: "deliveries_at_most_once_total",
			Help: "Frames delivered under at_most_once (no id, no ack).", ConstLabels: labels,
		}),
	}

	reg.MustRegister(
		m.DatagramsSent,
		m.AcksSent,
		m.Retransmissions,
		m.DeliveryGaveUp,
		m.DuplicatesSuppressed,
		m.DeliveriesAtMostOnce,
	)
	return m
}
