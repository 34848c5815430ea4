package meta

import (
	"context"
	"fmt"
	"sync"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/utils"
)

var _ channel.Adapter = (*Adapter)(nil)

// Adapter serves both Meta variants (Messenger and Instagram). There is no
// persistent socket: connectivity is "verified" by a successful profile
// lookup, sends are stateless Graph calls, and inbound traffic arrives on
// the gateway's shared webhook route.
type Adapter struct {
	accountID string
	typ       channel.Type
	config    Config
	events    channel.Events
	client    *graphClient

	mu        sync.RWMutex
	connected bool
	lastErr   string
}

// NewFacebookAdapter is the channel.Factory for Messenger pages.
func NewFacebookAdapter(accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	return newAdapter(channel.Facebook, accountID, settings, events)
}

// NewInstagramAdapter is the channel.Factory for Instagram accounts.
func NewInstagramAdapter(accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	return newAdapter(channel.Instagram, accountID, settings, events)
}

func newAdapter(t channel.Type, accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	cfg, err := ParseConfig(t, settings)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		accountID: accountID,
		typ:       t,
		config:    *cfg,
		events:    events,
		client:    newGraphClient(cfg.GraphBase, cfg.PageAccessToken),
	}, nil
}

func (a *Adapter) Type() channel.Type { return a.typ }

func (a *Adapter) AccountID() string { return a.accountID }

// IngressID is the id Meta puts on webhook entries destined for this
// adapter: the page id for Messenger, the Instagram account id otherwise.
func (a *Adapter) IngressID() string {
	if a.typ == channel.Instagram {
		return a.config.InstagramAccountID
	}
	return a.config.PageID
}

// Connect verifies the token with a profile lookup.
func (a *Adapter) Connect(ctx context.Context) error {
	if err := a.Probe(ctx); err != nil {
		return fmt.Errorf("%s auth failed (token %s): %w",
			a.typ, utils.MaskSecret(a.config.PageAccessToken), err)
	}
	logs.CtxInfo(ctx, "[channel:%s] %s profile verified", a.typ, a.accountID)
	return nil
}

// Probe re-runs the connectivity check and updates the status snapshot. The
// gateway watchdog calls this periodically.
func (a *Adapter) Probe(ctx context.Context) error {
	profile, err := a.client.Me(ctx)

	a.mu.Lock()
	prev := a.connected
	if err != nil {
		a.connected = false
		a.lastErr = err.Error()
	} else {
		a.connected = true
		a.lastErr = ""
	}
	changed := prev != a.connected
	a.mu.Unlock()

	if err != nil {
		a.events.EmitStatus(a.Status())
		return err
	}
	if changed {
		a.events.EmitStatus(a.Status())
	}
	if profile.Name != "" {
		a.events.EmitContact(&channel.Contact{
			ID:        profile.ID,
			Type:      a.typ,
			AccountID: a.accountID,
			Name:      profile.Name,
		})
	}
	return nil
}

// Disconnect has no session to tear down; it flips the snapshot.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.connected = false
	a.mu.Unlock()
	a.events.EmitStatus(a.Status())
	return nil
}

func (a *Adapter) Status() *channel.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &channel.Status{
		Type:      a.typ,
		AccountID: a.accountID,
		Connected: a.connected,
		Error:     a.lastErr,
	}
}

// SendMessage posts one Graph send per text/attachment part and returns the
// provider id of the first part.
func (a *Adapter) SendMessage(ctx context.Context, req *channel.SendRequest) (string, error) {
	a.mu.RLock()
	connected := a.connected
	a.mu.RUnlock()
	if !connected {
		return "", fmt.Errorf("%w: %s %s", channel.ErrNotConnected, a.typ, a.accountID)
	}

	firstID := ""
	if req.Text != "" {
		id, err := a.client.SendText(ctx, req.ChatID, req.Text)
		if err != nil {
			return "", fmt.Errorf("%s send: %w", a.typ, err)
		}
		firstID = id
	}
	for i, att := range req.Media {
		if att.URL == "" {
			// Graph sends reference media by URL only; inline buffers would
			// need an upload endpoint this gateway does not expose.
			return firstID, fmt.Errorf("%s media[%d]: attachment url is required", a.typ, i)
		}
		id, err := a.client.SendAttachment(ctx, req.ChatID, graphAttachmentType(att.Type), att.URL)
		if err != nil {
			return firstID, fmt.Errorf("%s send media[%d]: %w", a.typ, i, err)
		}
		if firstID == "" {
			firstID = id
		}
	}
	return firstID, nil
}

func graphAttachmentType(t channel.MediaType) string {
	switch t {
	case channel.MediaImage, channel.MediaSticker:
		return "image"
	case channel.MediaVideo:
		return "video"
	case channel.MediaAudio:
		return "audio"
	default:
		return "file"
	}
}
