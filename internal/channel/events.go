package channel

import (
	"sync"

	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/prometheus"
)

type (
	MessageHandler func(msg *Message)
	StatusHandler  func(status *Status)
	ContactHandler func(contact *Contact)
)

// Emitter fans events out to typed subscriber lists. Handlers are invoked
// synchronously in registration order; events from one source are never
// reordered. A panicking handler is isolated so it cannot take down the
// ingestion path.
type Emitter struct {
	mu       sync.RWMutex
	nextID   int
	messages []subscriber[MessageHandler]
	statuses []subscriber[StatusHandler]
	contacts []subscriber[ContactHandler]
}

type subscriber[H any] struct {
	id      int
	handler H
}

func NewEmitter() *Emitter {
	return &Emitter{}
}

// OnMessage registers a message subscriber and returns its unsubscribe func.
func (e *Emitter) OnMessage(h MessageHandler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.messages = append(e.messages, subscriber[MessageHandler]{id: id, handler: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.messages = remove(e.messages, id)
	}
}

func (e *Emitter) OnStatus(h StatusHandler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.statuses = append(e.statuses, subscriber[StatusHandler]{id: id, handler: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.statuses = remove(e.statuses, id)
	}
}

func (e *Emitter) OnContact(h ContactHandler) (unsubscribe func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nextID++
	id := e.nextID
	e.contacts = append(e.contacts, subscriber[ContactHandler]{id: id, handler: h})
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.contacts = remove(e.contacts, id)
	}
}

func (e *Emitter) EmitMessage(msg *Message) {
	if msg == nil {
		return
	}
	e.mu.RLock()
	subs := make([]subscriber[MessageHandler], len(e.messages))
	copy(subs, e.messages)
	e.mu.RUnlock()

	prometheus.FanoutEvents.WithLabelValues("message").Inc()
	for _, s := range subs {
		invoke(func() { s.handler(msg) })
	}
}

func (e *Emitter) EmitStatus(status *Status) {
	if status == nil {
		return
	}
	e.mu.RLock()
	subs := make([]subscriber[StatusHandler], len(e.statuses))
	copy(subs, e.statuses)
	e.mu.RUnlock()

	prometheus.FanoutEvents.WithLabelValues("status").Inc()
	for _, s := range subs {
		invoke(func() { s.handler(status) })
	}
}

func (e *Emitter) EmitContact(contact *Contact) {
	if contact == nil {
		return
	}
	e.mu.RLock()
	subs := make([]subscriber[ContactHandler], len(e.contacts))
	copy(subs, e.contacts)
	e.mu.RUnlock()

	prometheus.FanoutEvents.WithLabelValues("contact").Inc()
	for _, s := range subs {
		invoke(func() { s.handler(contact) })
	}
}

func remove[H any](subs []subscriber[H], id int) []subscriber[H] {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

func invoke(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logs.Error("[channel] event subscriber panic: %v", r)
		}
	}()
	fn()
}
