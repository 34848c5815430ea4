package prometheus

import "github.com/prometheus/client_golang/prometheus"

var (
	registry = prometheus.NewRegistry()

	// InboundMessages counts unified messages produced by channel adapters,
	// labeled by channel type.
	InboundMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnigate",
		Name:      "inbound_messages_total",
		Help:      "Inbound messages normalized by channel adapters.",
	}, []string{"channel"})

	// OutboundMessages counts successful provider sends, labeled by channel type.
	OutboundMessages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnigate",
		Name:      "outbound_messages_total",
		Help:      "Outbound messages accepted by the provider.",
	}, []string{"channel"})

	// FanoutEvents counts events re-emitted by the channel manager,
	// labeled by event kind (message, status, contact).
	FanoutEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnigate",
		Name:      "fanout_events_total",
		Help:      "Events fanned out to manager subscribers.",
	}, []string{"kind"})

	// WebhookDeliveries counts webhook sink delivery attempts by result
	// (ok, error, dropped).
	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "omnigate",
		Name:      "webhook_deliveries_total",
		Help:      "Webhook sink delivery attempts by result.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(InboundMessages, OutboundMessages, FanoutEvents, WebhookDeliveries)
}

func GetRegistry() *prometheus.Registry {
	return registry
}
