package channel

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/prometheus"
)

// Factory constructs one adapter variant. The events sink is the manager
// itself, so everything the adapter emits reaches manager subscribers
// without transformation.
type Factory func(accountID string, settings map[string]interface{}, events Events) (Adapter, error)

// Manager is the single source of truth for which channels exist and in what
// state, and the unification point for all channel events. It never inspects
// or filters adapter events; it is a transparent multiplexer.
type Manager struct {
	emitter   *Emitter
	factories map[Type]Factory

	mu       sync.RWMutex
	adapters map[string]Adapter
}

var _ Events = (*Manager)(nil)

// Key is the composite identity of one adapter instance for the entire
// process lifetime.
func Key(t Type, accountID string) string {
	return string(t) + ":" + accountID
}

func NewManager() *Manager {
	return &Manager{
		emitter:   NewEmitter(),
		factories: make(map[Type]Factory, 8),
		adapters:  make(map[string]Adapter, 8),
	}
}

// RegisterFactory binds a channel type to its adapter constructor. Called
// once at boot before any Add; not concurrent-safe with Add.
func (m *Manager) RegisterFactory(t Type, f Factory) {
	m.factories[t] = f
}

func (m *Manager) OnMessage(h MessageHandler) func() { return m.emitter.OnMessage(h) }
func (m *Manager) OnStatus(h StatusHandler) func()   { return m.emitter.OnStatus(h) }
func (m *Manager) OnContact(h ContactHandler) func() { return m.emitter.OnContact(h) }

// EmitMessage implements Events by re-emitting the payload unchanged.
func (m *Manager) EmitMessage(msg *Message) {
	if msg != nil {
		prometheus.InboundMessages.WithLabelValues(string(msg.Type)).Inc()
	}
	m.emitter.EmitMessage(msg)
}

func (m *Manager) EmitStatus(status *Status)    { m.emitter.EmitStatus(status) }
func (m *Manager) EmitContact(contact *Contact) { m.emitter.EmitContact(contact) }

// Add validates the config, constructs the matching adapter variant, and
// registers it under its composite key. When the config is enabled and the
// type is not webchat, a connect is attempted immediately; a failed
// auto-connect still leaves the adapter registered so an explicit Connect can
// retry later (register first, connect best-effort).
func (m *Manager) Add(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	factory, ok := m.factories[cfg.Type]
	if !ok {
		return fmt.Errorf("%w: no adapter factory for type %q", ErrInvalidConfig, cfg.Type)
	}

	key := Key(cfg.Type, cfg.AccountID)

	m.mu.Lock()
	if _, exists := m.adapters[key]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrChannelExists, key)
	}

	adapter, err := factory(cfg.AccountID, cfg.Settings(), m)
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("create %s adapter: %w", cfg.Type, err)
	}
	m.adapters[key] = adapter
	m.mu.Unlock()

	logs.CtxInfo(ctx, "[manager] registered channel %s", key)

	if cfg.Enabled && cfg.Type != Webchat {
		if err := adapter.Connect(ctx); err != nil {
			logs.CtxWarn(ctx, "[manager] auto-connect %s failed (still registered): %v", key, err)
			return err
		}
	}
	return nil
}

// Connect delegates to the registered adapter. Unknown keys are an error,
// never a silent no-op.
func (m *Manager) Connect(ctx context.Context, t Type, accountID string) error {
	adapter, err := m.lookup(t, accountID)
	if err != nil {
		return err
	}
	return adapter.Connect(ctx)
}

// Disconnect always delegates regardless of current connection state, so it
// is idempotent from the caller's perspective.
func (m *Manager) Disconnect(ctx context.Context, t Type, accountID string) error {
	adapter, err := m.lookup(t, accountID)
	if err != nil {
		return err
	}
	return adapter.Disconnect(ctx)
}

// Remove disconnects then evicts. Removing a non-existent key is a silent
// no-op, safe to call defensively.
func (m *Manager) Remove(ctx context.Context, t Type, accountID string) error {
	key := Key(t, accountID)

	m.mu.Lock()
	adapter, ok := m.adapters[key]
	if ok {
		delete(m.adapters, key)
	}
	m.mu.Unlock()

	if !ok {
		return nil
	}

	if err := adapter.Disconnect(ctx); err != nil {
		logs.CtxWarn(ctx, "[manager] disconnect during remove of %s: %v", key, err)
	}
	logs.CtxInfo(ctx, "[manager] removed channel %s", key)
	return nil
}

// Send resolves the adapter by composite key and delegates. An empty provider
// message id is a successful send.
func (m *Manager) Send(ctx context.Context, req *SendRequest) (string, error) {
	if req == nil {
		return "", ErrEmptyMessage
	}
	if err := req.Validate(); err != nil {
		return "", err
	}
	adapter, err := m.lookup(req.Type, req.AccountID)
	if err != nil {
		return "", err
	}

	id, err := adapter.SendMessage(ctx, req)
	if err != nil {
		return "", err
	}
	prometheus.OutboundMessages.WithLabelValues(string(req.Type)).Inc()
	return id, nil
}

// GetStatus is a pure read; returns nil when nothing is registered.
func (m *Manager) GetStatus(t Type, accountID string) *Status {
	m.mu.RLock()
	adapter, ok := m.adapters[Key(t, accountID)]
	m.mu.RUnlock()
	if !ok {
		return nil
	}
	return adapter.Status()
}

// AllStatus returns a snapshot for every registered channel, ordered by
// composite key for stable output.
func (m *Manager) AllStatus() []*Status {
	m.mu.RLock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.RUnlock()

	statuses := make([]*Status, 0, len(adapters))
	for _, a := range adapters {
		statuses = append(statuses, a.Status())
	}
	sort.Slice(statuses, func(i, j int) bool {
		ki := Key(statuses[i].Type, statuses[i].AccountID)
		kj := Key(statuses[j].Type, statuses[j].AccountID)
		return ki < kj
	})
	return statuses
}

// Adapters returns the registered adapters. Used by the gateway to route
// shared-ingress traffic (Meta webhooks, webchat upgrades) to the right
// instance.
func (m *Manager) Adapters() []Adapter {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a)
	}
	return out
}

// Lookup exposes adapter resolution for shared-ingress routing.
func (m *Manager) Lookup(t Type, accountID string) (Adapter, error) {
	return m.lookup(t, accountID)
}

// StopAll disconnects every adapter. Used on gateway shutdown; errors are
// logged, not propagated, so one bad channel never blocks the others.
func (m *Manager) StopAll(ctx context.Context) {
	for _, a := range m.Adapters() {
		if err := a.Disconnect(ctx); err != nil {
			logs.CtxWarn(ctx, "[manager] stop %s: %v", Key(a.Type(), a.AccountID()), err)
		}
	}
}

func (m *Manager) lookup(t Type, accountID string) (Adapter, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	adapter, ok := m.adapters[Key(t, accountID)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChannelNotFound, Key(t, accountID))
	}
	return adapter, nil
}
