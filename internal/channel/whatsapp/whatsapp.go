package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types/events"
	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

var _ channel.Adapter = (*Adapter)(nil)

// connState is the adapter's bounded lifecycle state machine. The only
// scheduled transition is Disconnected -> Connecting via the reconnect timer,
// armed exclusively by non-logout disconnects and cancelled by an explicit
// Disconnect.
type connState int

const (
	stateDisconnected connState = iota
	stateConnecting
	stateConnected
	stateAwaitingPairing
)

type Adapter struct {
	accountID string
	config    Config
	events    channel.Events

	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container
	handlerID uint32
	state     connState
	qrCode    string
	lastErr   string
	reconnect *time.Timer
	// stopping marks an explicit Disconnect so the provider's disconnected
	// event does not trigger a reconnect-after-intentional-stop race.
	stopping bool
	qrCancel context.CancelFunc
}

// NewAdapter is the channel.Factory for WhatsApp. No credentials are
// required up front; authentication happens via QR pairing on first connect,
// and the resulting session persists to a per-account directory.
func NewAdapter(accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	cfg, err := ParseConfig(settings)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		accountID: accountID,
		config:    *cfg,
		events:    events,
	}, nil
}

func (a *Adapter) Type() channel.Type { return channel.WhatsApp }

func (a *Adapter) AccountID() string { return a.accountID }

func (a *Adapter) Status() *channel.Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return &channel.Status{
		Type:      channel.WhatsApp,
		AccountID: a.accountID,
		Connected: a.state == stateConnected,
		QRCode:    a.qrCode,
		Error:     a.lastErr,
	}
}

// Connect opens (or reuses) the session store and starts the socket. It is
// re-entrant: the reconnect loop may call it repeatedly after transient
// drops without leaking resources or duplicating event subscriptions; the
// whatsmeow event handler is registered exactly once per client.
func (a *Adapter) Connect(ctx context.Context) error {
	a.mu.Lock()
	if a.state == stateConnected || a.state == stateConnecting {
		a.mu.Unlock()
		return nil
	}
	a.cancelReconnectLocked()
	a.stopping = false
	a.state = stateConnecting

	if a.client == nil {
		client, container, err := a.openSession(ctx)
		if err != nil {
			a.state = stateDisconnected
			a.lastErr = err.Error()
			a.mu.Unlock()
			a.events.EmitStatus(a.Status())
			return err
		}
		a.client = client
		a.container = container
	}
	if a.handlerID == 0 {
		// One handler per live client; Disconnect removes it, so a
		// reconnect cycle never stacks subscriptions.
		a.handlerID = a.client.AddEventHandler(a.handleEvent)
	}

	client := a.client
	needsPairing := client.Store.ID == nil
	if needsPairing {
		a.state = stateAwaitingPairing
		qrCtx, cancel := context.WithCancel(context.Background())
		a.qrCancel = cancel
		a.mu.Unlock()

		// GetQRChannel must be called before Connect while unauthenticated.
		qrChan, err := client.GetQRChannel(qrCtx)
		if err != nil {
			a.abortPairing()
			a.setFailure(fmt.Errorf("qr channel: %w", err))
			return fmt.Errorf("whatsapp qr channel: %w", err)
		}
		go a.consumeQR(qrChan)
	} else {
		a.mu.Unlock()
	}

	if err := client.Connect(); err != nil {
		wrapped := fmt.Errorf("whatsapp connect: %w", err)
		a.setFailure(wrapped)
		return wrapped
	}

	logs.CtxInfo(ctx, "[channel:whatsapp] %s socket started (pairing=%t)", a.accountID, needsPairing)
	return nil
}

// Disconnect releases the socket and cancels any pending reconnect. Safe to
// call when never connected; always emits a Connected=false status.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.stopping = true
	a.cancelReconnectLocked()
	a.abortPairingLocked()
	client := a.client
	handlerID := a.handlerID
	a.handlerID = 0
	a.state = stateDisconnected
	a.mu.Unlock()

	if client != nil {
		// Remove the handler first so provider events from the closing
		// socket never fire after an intentional stop.
		if handlerID != 0 {
			client.RemoveEventHandler(handlerID)
		}
		client.Disconnect()
	}

	a.events.EmitStatus(a.Status())
	return nil
}

func (a *Adapter) openSession(ctx context.Context) (*whatsmeow.Client, *sqlstore.Container, error) {
	dir := filepath.Join(a.config.SessionDir, a.accountID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create session dir: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(dir, "session.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, waLog.Noop)
	if err != nil {
		return nil, nil, fmt.Errorf("open session store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("load device: %w", err)
	}

	return whatsmeow.NewClient(device, waLog.Noop), container, nil
}

func (a *Adapter) consumeQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			a.mu.Lock()
			a.qrCode = item.Code
			a.state = stateAwaitingPairing
			a.mu.Unlock()
			if a.config.PrintQR {
				qrterminal.GenerateHalfBlock(item.Code, qrterminal.L, os.Stdout)
			}
			logs.Info("[channel:whatsapp] %s pairing code issued", a.accountID)
			a.events.EmitStatus(a.Status())
		case "success":
			// The Connected event finishes the transition; just drop the code
			// the moment the session is authenticated.
			a.clearQR()
		default:
			logs.Warn("[channel:whatsapp] %s pairing ended: %s", a.accountID, item.Event)
			a.clearQR()
		}
	}
}

func (a *Adapter) handleEvent(evt interface{}) {
	switch v := evt.(type) {
	case *events.Message:
		msg := a.toUnifiedMessage(v)
		if msg == nil {
			return
		}
		if v.Info.PushName != "" && !v.Info.IsFromMe {
			a.events.EmitContact(&channel.Contact{
				ID:        v.Info.Sender.User,
				Type:      channel.WhatsApp,
				AccountID: a.accountID,
				Name:      v.Info.PushName,
			})
		}
		a.events.EmitMessage(msg)

	case *events.Connected:
		a.mu.Lock()
		a.state = stateConnected
		a.qrCode = ""
		a.lastErr = ""
		a.mu.Unlock()
		logs.Info("[channel:whatsapp] %s authenticated and connected", a.accountID)
		a.events.EmitStatus(a.Status())

	case *events.LoggedOut:
		a.onDisconnected(true, fmt.Sprintf("logged out (reason %d)", v.Reason))

	case *events.Disconnected:
		a.onDisconnected(false, "connection lost")

	case *events.StreamReplaced:
		a.onDisconnected(true, "stream replaced by another session")
	}
}

// onDisconnected applies the disconnect policy: a logout clears the pairing
// code and never auto-reconnects; any other drop schedules exactly one
// reconnect attempt after the fixed backoff.
func (a *Adapter) onDisconnected(loggedOut bool, reason string) {
	a.mu.Lock()
	explicit := a.stopping
	a.state = stateDisconnected
	a.lastErr = reason
	if loggedOut {
		a.qrCode = ""
	}
	if shouldReconnect(loggedOut, explicit) {
		a.armReconnectLocked()
	}
	a.mu.Unlock()

	logs.Warn("[channel:whatsapp] %s disconnected: %s (loggedOut=%t explicit=%t)",
		a.accountID, reason, loggedOut, explicit)
	a.events.EmitStatus(a.Status())
}

// shouldReconnect is the reconnect decision table: only unexpected,
// non-logout drops retry.
func shouldReconnect(loggedOut, explicit bool) bool {
	return !loggedOut && !explicit
}

// armReconnectLocked schedules a single reconnect attempt. A timer that is
// already pending is left alone so repeated disconnect events cannot stack
// retries.
func (a *Adapter) armReconnectLocked() {
	if a.reconnect != nil {
		return
	}
	a.reconnect = time.AfterFunc(a.config.ReconnectBackoff, func() {
		a.mu.Lock()
		a.reconnect = nil
		idle := a.state == stateDisconnected && !a.stopping
		a.mu.Unlock()
		if !idle {
			return
		}
		logs.Info("[channel:whatsapp] %s reconnecting after backoff", a.accountID)
		if err := a.Connect(context.Background()); err != nil {
			logs.Error("[channel:whatsapp] %s reconnect failed: %v", a.accountID, err)
		}
	})
}

func (a *Adapter) cancelReconnectLocked() {
	if a.reconnect != nil {
		a.reconnect.Stop()
		a.reconnect = nil
	}
}

// abortPairing stops QR consumption and drops any pending code. A pairing
// code is useless once the socket is gone; never serve it stale.
func (a *Adapter) abortPairing() {
	a.mu.Lock()
	a.abortPairingLocked()
	a.mu.Unlock()
}

func (a *Adapter) abortPairingLocked() {
	if a.qrCancel != nil {
		a.qrCancel()
		a.qrCancel = nil
	}
	a.qrCode = ""
}

func (a *Adapter) clearQR() {
	a.mu.Lock()
	changed := a.qrCode != ""
	a.qrCode = ""
	a.mu.Unlock()
	if changed {
		a.events.EmitStatus(a.Status())
	}
}

func (a *Adapter) setFailure(err error) {
	a.mu.Lock()
	a.state = stateDisconnected
	a.lastErr = err.Error()
	a.mu.Unlock()
	a.events.EmitStatus(a.Status())
}
