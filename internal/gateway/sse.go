package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/sse"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

// envelope is the wire shape shared by the SSE stream and the webhook sink.
type envelope struct {
	Event     string      `json:"event"` // message, status, contact
	Payload   interface{} `json:"payload"`
	Timestamp time.Time   `json:"timestamp"`
}

func newEnvelope(event string, payload interface{}) *envelope {
	return &envelope{Event: event, Payload: payload, Timestamp: time.Now()}
}

const clientBuffer = 32

// broadcaster relays manager events to any number of SSE clients. Each
// client has its own buffered queue; a client that cannot drain fast enough
// loses events rather than stalling the emitters.
type broadcaster struct {
	mu      sync.Mutex
	clients map[string]chan *envelope
	closed  bool
}

func newBroadcaster() *broadcaster {
	return &broadcaster{clients: make(map[string]chan *envelope, 8)}
}

func (b *broadcaster) attach(m *channel.Manager) {
	m.OnMessage(func(msg *channel.Message) {
		b.publish(newEnvelope("message", msg))
	})
	m.OnStatus(func(status *channel.Status) {
		b.publish(newEnvelope("status", status))
	})
	m.OnContact(func(contact *channel.Contact) {
		b.publish(newEnvelope("contact", contact))
	})
}

func (b *broadcaster) publish(env *envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for id, ch := range b.clients {
		select {
		case ch <- env:
		default:
			logs.Debug("[gateway] sse client %s lagging, event dropped", id)
		}
	}
}

func (b *broadcaster) subscribe() (string, chan *envelope) {
	id := uuid.New().String()
	ch := make(chan *envelope, clientBuffer)

	b.mu.Lock()
	if b.closed {
		close(ch)
	} else {
		b.clients[id] = ch
	}
	b.mu.Unlock()
	return id, ch
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	if ch, ok := b.clients[id]; ok {
		delete(b.clients, id)
		close(ch)
	}
	b.mu.Unlock()
}

func (b *broadcaster) close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.clients {
		delete(b.clients, id)
		close(ch)
	}
}

// handleEvents streams unified events to one SSE client until it goes away.
func (gw *Gateway) handleEvents(ctx context.Context, c *app.RequestContext) {
	id, ch := gw.stream.subscribe()
	defer gw.stream.unsubscribe(id)

	logs.CtxDebug(ctx, "[gateway] sse client %s connected", id)
	s := sse.NewStream(c)

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-ch:
			if !ok {
				return
			}
			data, err := sonic.Marshal(env)
			if err != nil {
				continue
			}
			if err := s.Publish(&sse.Event{Event: env.Event, Data: data}); err != nil {
				return
			}
		}
	}
}
