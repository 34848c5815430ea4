package channel

import "time"

// Message is the channel-agnostic representation every adapter normalizes
// inbound provider events into. Text and Media are both optional: a message
// may carry text only, media only, media with a caption, or (rarely) neither.
// Consumers must treat Text as an optional caption.
type Message struct {
	ID           string            `json:"id"`
	Type         Type              `json:"channel"`
	AccountID    string            `json:"accountId"`
	ChatID       string            `json:"chatId"`
	SenderID     string            `json:"senderId"`
	SenderName   string            `json:"senderName,omitempty"`
	SenderAvatar string            `json:"senderAvatar,omitempty"`
	Text         string            `json:"text,omitempty"`
	Media        []MediaAttachment `json:"media,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
	FromMe       bool              `json:"fromMe"`
	ReplyTo      *ReplyRef         `json:"replyTo,omitempty"`

	// Raw retains the opaque provider payload for debugging. It is never
	// interpreted downstream.
	Raw []byte `json:"raw,omitempty"`
}

// ReplyRef is a denormalized back-reference to a quoted message, not an
// ownership link.
type ReplyRef struct {
	ID       string `json:"id"`
	Text     string `json:"text,omitempty"`
	SenderID string `json:"senderId,omitempty"`
}

// MediaAttachment carries one piece of media. For sending, exactly one of
// URL or Data must be set. Inbound attachments may carry neither when the
// adapter could not resolve a downloadable reference (metadata only).
type MediaAttachment struct {
	Type     MediaType `json:"type"`
	URL      string    `json:"url,omitempty"`
	Data     []byte    `json:"data,omitempty"`
	MIMEType string    `json:"mimeType,omitempty"`
	FileName string    `json:"fileName,omitempty"`
	Caption  string    `json:"caption,omitempty"`
}

// Sendable reports whether the attachment carries content usable for an
// outbound send.
func (m *MediaAttachment) Sendable() bool {
	return m != nil && (m.URL != "" || len(m.Data) > 0)
}

// Contact is emitted when an adapter learns about a counterpart profile
// (WhatsApp push names, webchat hello frames, Meta profile lookups).
type Contact struct {
	ID        string `json:"id"`
	Type      Type   `json:"channel"`
	AccountID string `json:"accountId"`
	Name      string `json:"name,omitempty"`
	Avatar    string `json:"avatar,omitempty"`
}

// Status is the single observable health signal per channel instance. It is
// recomputed on every emission; each snapshot replaces the prior one in the
// consumer's view.
type Status struct {
	Type      Type   `json:"type"`
	AccountID string `json:"accountId"`
	Connected bool   `json:"connected"`
	QRCode    string `json:"qrCode,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SendRequest is the unified outbound payload. At least one of Text or Media
// must be present.
type SendRequest struct {
	Type      Type              `json:"channel"`
	AccountID string            `json:"accountId"`
	ChatID    string            `json:"chatId"`
	Text      string            `json:"text,omitempty"`
	Media     []MediaAttachment `json:"media,omitempty"`
	ReplyTo   *ReplyRef         `json:"replyTo,omitempty"`
}

func (r *SendRequest) Validate() error {
	if r == nil || r.ChatID == "" {
		return ErrEmptyMessage
	}
	if r.Text == "" && len(r.Media) == 0 {
		return ErrEmptyMessage
	}
	return nil
}
