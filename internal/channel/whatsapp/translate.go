package whatsapp

import (
	"time"

	"github.com/bytedance/sonic"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/omnigate/omnigate/internal/pkg/logs"

	"github.com/omnigate/omnigate/internal/channel"
)

// toUnifiedMessage converts a WhatsApp message event into the unified schema.
// Returns nil for non-user-visible events (broadcast/status updates, protocol
// messages, reactions). Translation failures are logged and dropped, never
// propagated into the socket's event loop.
func (a *Adapter) toUnifiedMessage(evt *events.Message) (out *channel.Message) {
	defer func() {
		if r := recover(); r != nil {
			logs.Error("[channel:whatsapp] %s translation panic: %v", a.accountID, r)
			out = nil
		}
	}()

	if evt == nil || evt.Message == nil {
		return nil
	}
	// Stories and broadcast lists are not conversation messages.
	if evt.Info.Chat.Server == types.BroadcastServer {
		return nil
	}
	if evt.Message.GetProtocolMessage() != nil || evt.Message.GetReactionMessage() != nil {
		return nil
	}

	text := extractText(evt.Message)
	media := detectMedia(evt.Message)
	if text == "" && media == nil {
		return nil
	}

	ts := evt.Info.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	out = &channel.Message{
		ID:         evt.Info.ID,
		Type:       channel.WhatsApp,
		AccountID:  a.accountID,
		ChatID:     evt.Info.Chat.String(),
		SenderID:   evt.Info.Sender.User,
		SenderName: evt.Info.PushName,
		Text:       text,
		Timestamp:  ts,
		FromMe:     evt.Info.IsFromMe,
		ReplyTo:    replyRef(evt.Message),
	}
	if media != nil {
		out.Media = []channel.MediaAttachment{*media}
	}
	if raw, err := sonic.Marshal(evt.Message); err == nil {
		out.Raw = raw
	}
	return out
}

// extractText resolves message text by fixed precedence: plain text,
// extended text, image caption, video caption. First match wins.
func extractText(msg *waE2E.Message) string {
	if t := msg.GetConversation(); t != "" {
		return t
	}
	if t := msg.GetExtendedTextMessage().GetText(); t != "" {
		return t
	}
	if t := msg.GetImageMessage().GetCaption(); t != "" {
		return t
	}
	if t := msg.GetVideoMessage().GetCaption(); t != "" {
		return t
	}
	return ""
}

// detectMedia maps provider content kinds onto the attachment allowlist.
// Downloadable kinds outside the allowlist become a generic document rather
// than being dropped. Attachments are metadata-only inbound: WhatsApp media
// URLs are end-to-end encrypted and not directly fetchable.
func detectMedia(msg *waE2E.Message) *channel.MediaAttachment {
	switch {
	case msg.GetImageMessage() != nil:
		img := msg.GetImageMessage()
		return &channel.MediaAttachment{
			Type:     channel.MediaImage,
			MIMEType: img.GetMimetype(),
			Caption:  img.GetCaption(),
		}
	case msg.GetVideoMessage() != nil:
		vid := msg.GetVideoMessage()
		return &channel.MediaAttachment{
			Type:     channel.MediaVideo,
			MIMEType: vid.GetMimetype(),
			Caption:  vid.GetCaption(),
		}
	case msg.GetAudioMessage() != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaAudio,
			MIMEType: msg.GetAudioMessage().GetMimetype(),
		}
	case msg.GetDocumentMessage() != nil:
		doc := msg.GetDocumentMessage()
		return &channel.MediaAttachment{
			Type:     channel.MediaDocument,
			MIMEType: doc.GetMimetype(),
			FileName: doc.GetFileName(),
			Caption:  doc.GetCaption(),
		}
	case msg.GetStickerMessage() != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaSticker,
			MIMEType: msg.GetStickerMessage().GetMimetype(),
		}
	case msg.GetPtvMessage() != nil:
		// Round video notes are not in the allowlist; keep them as documents.
		return &channel.MediaAttachment{
			Type:     channel.MediaDocument,
			MIMEType: msg.GetPtvMessage().GetMimetype(),
		}
	case msg.GetContactMessage() != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaDocument,
			MIMEType: "text/vcard",
			FileName: msg.GetContactMessage().GetDisplayName(),
		}
	}
	return nil
}

func replyRef(msg *waE2E.Message) *channel.ReplyRef {
	ctx := msg.GetExtendedTextMessage().GetContextInfo()
	if ctx == nil || ctx.GetStanzaID() == "" {
		return nil
	}
	ref := &channel.ReplyRef{
		ID:       ctx.GetStanzaID(),
		SenderID: ctx.GetParticipant(),
	}
	if quoted := ctx.GetQuotedMessage(); quoted != nil {
		ref.Text = extractText(quoted)
	}
	return ref
}
