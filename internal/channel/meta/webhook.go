package meta

import (
	"encoding/json"
	"time"

	"github.com/bytedance/sonic"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

// WebhookEntry holds the events for one page or Instagram account. Messenger
// payloads use the messaging array; Instagram payloads use the changes array.
// The distinction is structural, not declared. A webhook payload carries zero
// or more entries and every entry and event is processed independently, so a
// malformed one never aborts its siblings.
type WebhookEntry struct {
	ID        string           `json:"id"`
	Time      int64            `json:"time"`
	Messaging []MessagingEvent `json:"messaging,omitempty"`
	Changes   []ChangeEvent    `json:"changes,omitempty"`
}

type ChangeEvent struct {
	Field string          `json:"field"`
	Value json.RawMessage `json:"value"`
}

type MessagingEvent struct {
	Sender    Party           `json:"sender"`
	Recipient Party           `json:"recipient"`
	Timestamp int64           `json:"timestamp"`
	Message   *MessagePayload `json:"message,omitempty"`
}

type Party struct {
	ID string `json:"id"`
}

type MessagePayload struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text,omitempty"`
	IsEcho      bool                `json:"is_echo,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
	ReplyTo     *ReplyPayload       `json:"reply_to,omitempty"`
}

type ReplyPayload struct {
	MID string `json:"mid"`
}

type AttachmentPayload struct {
	Type    string `json:"type"`
	Payload struct {
		URL       string `json:"url"`
		StickerID int64  `json:"sticker_id,omitempty"`
	} `json:"payload"`
}

// HandleEntry processes one webhook entry addressed to this adapter. It
// routes the Messenger and Instagram payload shapes to the matching
// unification path and isolates failures per event.
func (a *Adapter) HandleEntry(entry *WebhookEntry) {
	if entry == nil {
		return
	}

	for i := range entry.Messaging {
		a.processEvent(&entry.Messaging[i], entry.Time)
	}

	for i := range entry.Changes {
		change := &entry.Changes[i]
		if change.Field != "messages" {
			logs.Debug("[channel:%s] %s ignoring change field %q", a.typ, a.accountID, change.Field)
			continue
		}
		var evt MessagingEvent
		if err := sonic.Unmarshal(change.Value, &evt); err != nil {
			logs.Warn("[channel:%s] %s malformed change value: %v", a.typ, a.accountID, err)
			continue
		}
		a.processEvent(&evt, entry.Time)
	}
}

// processEvent translates one messaging event. Failures are logged and the
// event is dropped; the webhook response is unaffected.
func (a *Adapter) processEvent(evt *MessagingEvent, entryTime int64) {
	defer func() {
		if r := recover(); r != nil {
			logs.Error("[channel:%s] %s webhook event panic: %v", a.typ, a.accountID, r)
		}
	}()

	msg := a.toUnifiedMessage(evt, entryTime)
	if msg == nil {
		return
	}
	a.events.EmitMessage(msg)
}

// toUnifiedMessage converts a Messenger/Instagram messaging event into the
// unified schema, or nil for non-message events (delivery receipts, read
// receipts, postbacks arrive as events without a message body).
func (a *Adapter) toUnifiedMessage(evt *MessagingEvent, entryTime int64) *channel.Message {
	if evt == nil || evt.Message == nil {
		return nil
	}
	if evt.Message.MID == "" && evt.Message.Text == "" && len(evt.Message.Attachments) == 0 {
		return nil
	}

	fromMe := evt.Message.IsEcho || evt.Sender.ID == a.IngressID()

	// For echoes the conversation partner is the recipient.
	chatID := evt.Sender.ID
	if fromMe {
		chatID = evt.Recipient.ID
	}

	ms := evt.Timestamp
	if ms == 0 {
		ms = entryTime
	}
	ts := time.UnixMilli(ms)
	if ms == 0 {
		ts = time.Now()
	}

	out := &channel.Message{
		ID:        evt.Message.MID,
		Type:      a.typ,
		AccountID: a.accountID,
		ChatID:    chatID,
		SenderID:  evt.Sender.ID,
		Text:      evt.Message.Text,
		Timestamp: ts,
		FromMe:    fromMe,
	}
	if evt.Message.ReplyTo != nil && evt.Message.ReplyTo.MID != "" {
		out.ReplyTo = &channel.ReplyRef{ID: evt.Message.ReplyTo.MID}
	}
	for _, att := range evt.Message.Attachments {
		out.Media = append(out.Media, channel.MediaAttachment{
			Type: metaMediaType(&att),
			URL:  att.Payload.URL,
		})
	}
	if raw, err := sonic.Marshal(evt); err == nil {
		out.Raw = raw
	}
	return out
}

func metaMediaType(att *AttachmentPayload) channel.MediaType {
	if att.Payload.StickerID != 0 {
		return channel.MediaSticker
	}
	switch att.Type {
	case "image":
		return channel.MediaImage
	case "video":
		return channel.MediaVideo
	case "audio":
		return channel.MediaAudio
	default:
		// "file", "template", "fallback" and anything Meta invents later.
		return channel.MediaDocument
	}
}
