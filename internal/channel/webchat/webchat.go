package webchat

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/google/uuid"
	"github.com/hertz-contrib/websocket"
	"golang.org/x/time/rate"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

var _ channel.Adapter = (*Adapter)(nil)

var upgrader = websocket.HertzUpgrader{
	CheckOrigin: func(_ *app.RequestContext) bool { return true },
}

// clientFrame is what the widget sends. The first frame must be a hello
// carrying the stable user id; later frames are messages.
type clientFrame struct {
	Type    string            `json:"type"` // "hello" | "message"
	UserID  string            `json:"user_id,omitempty"`
	Name    string            `json:"name,omitempty"`
	Avatar  string            `json:"avatar,omitempty"`
	Text    string            `json:"text,omitempty"`
	Media   []mediaFrame      `json:"media,omitempty"`
	ReplyTo *channel.ReplyRef `json:"reply_to,omitempty"`
}

type mediaFrame struct {
	Type     string `json:"type"`
	URL      string `json:"url,omitempty"`
	MIMEType string `json:"mime_type,omitempty"`
	FileName string `json:"file_name,omitempty"`
	Caption  string `json:"caption,omitempty"`
}

// serverFrame is what the gateway pushes to the widget.
type serverFrame struct {
	Type    string            `json:"type"` // "message" | "ack" | "error"
	ID      string            `json:"id,omitempty"`
	Text    string            `json:"text,omitempty"`
	Media   []mediaFrame      `json:"media,omitempty"`
	ReplyTo *channel.ReplyRef `json:"reply_to,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// Adapter is the one channel with multiple concurrent end users sharing a
// single account. Attaching to the shared HTTP transport happens at
// construction, so Connect is a no-op rather than an error.
type Adapter struct {
	accountID string
	config    Config
	events    channel.Events
	sessions  *sessionRegistry

	mu     sync.RWMutex
	active bool
}

// NewAdapter is the channel.Factory for webchat.
func NewAdapter(accountID string, settings map[string]interface{}, events channel.Events) (channel.Adapter, error) {
	cfg, err := ParseConfig(settings)
	if err != nil {
		return nil, err
	}
	return &Adapter{
		accountID: accountID,
		config:    *cfg,
		events:    events,
		sessions:  newSessionRegistry(),
		active:    true,
	}, nil
}

func (a *Adapter) Type() channel.Type { return channel.Webchat }

func (a *Adapter) AccountID() string { return a.accountID }

// Connect is a no-op: the websocket route is live from construction.
func (a *Adapter) Connect(_ context.Context) error {
	a.mu.Lock()
	a.active = true
	a.mu.Unlock()
	a.events.EmitStatus(a.Status())
	return nil
}

// Disconnect closes every live client session.
func (a *Adapter) Disconnect(_ context.Context) error {
	a.mu.Lock()
	a.active = false
	a.mu.Unlock()

	for _, s := range a.sessions.drain() {
		_ = s.conn.Close()
	}

	a.events.EmitStatus(a.Status())
	return nil
}

func (a *Adapter) Status() *channel.Status {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return &channel.Status{
		Type:      channel.Webchat,
		AccountID: a.accountID,
		Connected: a.active,
	}
}

// SendMessage pushes a message to the widget session of the target user.
// Webchat has no persistent mailbox, so delivery is best effort: a chat id
// with no connected session still resolves successfully with a generated id.
func (a *Adapter) SendMessage(_ context.Context, req *channel.SendRequest) (string, error) {
	a.mu.RLock()
	active := a.active
	a.mu.RUnlock()
	if !active {
		return "", fmt.Errorf("%w: webchat %s", channel.ErrNotConnected, a.accountID)
	}

	msgID := uuid.New().String()

	s := a.sessions.byUserID(req.ChatID)
	if s == nil {
		logs.Debug("[channel:webchat] %s user %s not connected, message %s dropped", a.accountID, req.ChatID, msgID)
		return msgID, nil
	}

	frame := serverFrame{
		Type:    "message",
		ID:      msgID,
		Text:    req.Text,
		Media:   toMediaFrames(req.Media),
		ReplyTo: req.ReplyTo,
	}
	data, err := sonic.Marshal(frame)
	if err != nil {
		return "", fmt.Errorf("encode webchat frame: %w", err)
	}
	if err := s.write(data); err != nil {
		return "", fmt.Errorf("webchat write to %s: %w", req.ChatID, err)
	}
	return msgID, nil
}

// HandleUpgrade is the hertz handler for GET /webchat/:accountId/ws. The
// gateway routes matching account ids here.
func (a *Adapter) HandleUpgrade(_ context.Context, c *app.RequestContext) {
	err := upgrader.Upgrade(c, func(conn *websocket.Conn) {
		a.serve(conn)
	})
	if err != nil {
		logs.Warn("[channel:webchat] %s upgrade failed: %v", a.accountID, err)
	}
}

// serve runs one connection's read loop until the client goes away. One
// user's session ending never affects the others.
func (a *Adapter) serve(conn *websocket.Conn) {
	connID := uuid.New().String()
	var sess *session

	defer func() {
		if sess != nil {
			a.sessions.remove(connID)
			logs.Debug("[channel:webchat] %s user %s disconnected (%d online)",
				a.accountID, sess.userID, a.sessions.len())
		}
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var frame clientFrame
		if err := sonic.Unmarshal(data, &frame); err != nil {
			if sess != nil {
				a.sendError(sess, "malformed frame")
			} else {
				a.reject(conn, "malformed frame")
			}
			continue
		}

		switch frame.Type {
		case "hello":
			if frame.UserID == "" {
				a.reject(conn, "hello requires user_id")
				continue
			}
			sess = &session{
				connID:  connID,
				userID:  frame.UserID,
				name:    frame.Name,
				avatar:  frame.Avatar,
				conn:    conn,
				limiter: rate.NewLimiter(rate.Limit(a.config.RateLimit), a.config.Burst),
			}
			if replaced := a.sessions.add(sess); replaced != nil {
				_ = replaced.conn.Close()
			}
			a.events.EmitContact(&channel.Contact{
				ID:        frame.UserID,
				Type:      channel.Webchat,
				AccountID: a.accountID,
				Name:      frame.Name,
				Avatar:    frame.Avatar,
			})

		case "message":
			if sess == nil {
				a.reject(conn, "hello required before messages")
				continue
			}
			if !sess.limiter.Allow() {
				a.sendError(sess, "rate limit exceeded")
				continue
			}
			msg := a.toUnifiedMessage(sess, &frame, data)
			if msg == nil {
				continue
			}
			a.events.EmitMessage(msg)
			a.ack(sess, msg.ID)

		default:
			if sess != nil {
				a.sendError(sess, fmt.Sprintf("unknown frame type %q", frame.Type))
			} else {
				a.reject(conn, fmt.Sprintf("unknown frame type %q", frame.Type))
			}
		}
	}
}

// toUnifiedMessage builds the unified message for one widget frame. Webchat
// has no provider ids, so ids are generated; the chat id is the stable user
// id.
func (a *Adapter) toUnifiedMessage(sess *session, frame *clientFrame, raw []byte) *channel.Message {
	media := make([]channel.MediaAttachment, 0, len(frame.Media))
	for _, m := range frame.Media {
		media = append(media, channel.MediaAttachment{
			Type:     channel.MediaType(m.Type),
			URL:      m.URL,
			MIMEType: m.MIMEType,
			FileName: m.FileName,
			Caption:  m.Caption,
		})
	}
	if frame.Text == "" && len(media) == 0 {
		return nil
	}

	return &channel.Message{
		ID:           uuid.New().String(),
		Type:         channel.Webchat,
		AccountID:    a.accountID,
		ChatID:       sess.userID,
		SenderID:     sess.userID,
		SenderName:   sess.name,
		SenderAvatar: sess.avatar,
		Text:         frame.Text,
		Media:        media,
		Timestamp:    time.Now(),
		FromMe:       false,
		ReplyTo:      frame.ReplyTo,
		Raw:          raw,
	}
}

func (a *Adapter) ack(sess *session, msgID string) {
	data, err := sonic.Marshal(serverFrame{Type: "ack", ID: msgID})
	if err != nil {
		return
	}
	if err := sess.write(data); err != nil {
		logs.Debug("[channel:webchat] %s ack write: %v", a.accountID, err)
	}
}

func (a *Adapter) sendError(sess *session, reason string) {
	data, err := sonic.Marshal(serverFrame{Type: "error", Error: reason})
	if err != nil {
		return
	}
	_ = sess.write(data)
}

// reject writes directly on the raw connection; only used before a session
// exists for it.
func (a *Adapter) reject(conn *websocket.Conn, reason string) {
	data, err := sonic.Marshal(serverFrame{Type: "error", Error: reason})
	if err != nil {
		return
	}
	_ = conn.WriteMessage(websocket.TextMessage, data)
}

func toMediaFrames(media []channel.MediaAttachment) []mediaFrame {
	if len(media) == 0 {
		return nil
	}
	out := make([]mediaFrame, 0, len(media))
	for _, m := range media {
		out = append(out, mediaFrame{
			Type:     string(m.Type),
			URL:      m.URL,
			MIMEType: m.MIMEType,
			FileName: m.FileName,
			Caption:  m.Caption,
		})
	}
	return out
}
