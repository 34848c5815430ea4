package gateway

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/bytedance/sonic"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/config"
	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/prometheus"
)

// webhookSink forwards every unified event to one external HTTP consumer.
// Delivery is decoupled from emission through a bounded queue: a slow or dead
// endpoint drops events instead of blocking the adapters.
type webhookSink struct {
	url    string
	queue  chan *envelope
	client *http.Client

	closeOnce sync.Once
	done      chan struct{}
}

func newWebhookSink(cfg config.WebhookConfig) *webhookSink {
	return &webhookSink{
		url:   cfg.URL,
		queue: make(chan *envelope, cfg.QueueSize),
		client: &http.Client{
			Timeout: time.Duration(cfg.TimeoutSec) * time.Second,
		},
		done: make(chan struct{}),
	}
}

func (s *webhookSink) attach(m *channel.Manager) {
	m.OnMessage(func(msg *channel.Message) {
		s.enqueue(newEnvelope("message", msg))
	})
	m.OnStatus(func(status *channel.Status) {
		s.enqueue(newEnvelope("status", status))
	})
	m.OnContact(func(contact *channel.Contact) {
		s.enqueue(newEnvelope("contact", contact))
	})
}

func (s *webhookSink) enqueue(env *envelope) {
	select {
	case <-s.done:
	case s.queue <- env:
	default:
		prometheus.WebhookDeliveries.WithLabelValues("dropped").Inc()
		logs.Warn("[gateway] webhook queue full, %s event dropped", env.Event)
	}
}

func (s *webhookSink) start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case env := <-s.queue:
				s.deliver(ctx, env)
			}
		}
	}()
}

func (s *webhookSink) deliver(ctx context.Context, env *envelope) {
	body, err := sonic.Marshal(env)
	if err != nil {
		prometheus.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		prometheus.WebhookDeliveries.WithLabelValues("error").Inc()
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		prometheus.WebhookDeliveries.WithLabelValues("error").Inc()
		logs.Warn("[gateway] webhook delivery failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		prometheus.WebhookDeliveries.WithLabelValues("error").Inc()
		logs.Warn("[gateway] webhook endpoint answered %d", resp.StatusCode)
		return
	}
	prometheus.WebhookDeliveries.WithLabelValues("ok").Inc()
}

func (s *webhookSink) close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}
