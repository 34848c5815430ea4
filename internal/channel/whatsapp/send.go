package whatsapp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"google.golang.org/protobuf/proto"

	"github.com/omnigate/omnigate/internal/channel"
)

// maxOutboundMedia bounds URL-referenced attachment downloads (20 MB).
const maxOutboundMedia = 20 * 1024 * 1024

// SendMessage delivers text and/or media. Media attachments are uploaded to
// WhatsApp's media store first; the provider id of the first sent part is
// returned.
func (a *Adapter) SendMessage(ctx context.Context, req *channel.SendRequest) (string, error) {
	a.mu.Lock()
	client := a.client
	connected := a.state == stateConnected
	a.mu.Unlock()

	if !connected || client == nil {
		return "", fmt.Errorf("%w: whatsapp %s", channel.ErrNotConnected, a.accountID)
	}

	jid, err := toJID(req.ChatID)
	if err != nil {
		return "", err
	}

	if len(req.Media) == 0 {
		resp, err := client.SendMessage(ctx, jid, textMessage(req.Text, req.ReplyTo))
		if err != nil {
			return "", fmt.Errorf("whatsapp send: %w", err)
		}
		return resp.ID, nil
	}

	firstID := ""
	for i, att := range req.Media {
		caption := att.Caption
		if i == 0 && caption == "" {
			caption = req.Text
		}
		msg, err := a.buildMediaMessage(ctx, client, &att, caption)
		if err != nil {
			return firstID, fmt.Errorf("whatsapp media[%d]: %w", i, err)
		}
		resp, err := client.SendMessage(ctx, jid, msg)
		if err != nil {
			return firstID, fmt.Errorf("whatsapp send media[%d]: %w", i, err)
		}
		if firstID == "" {
			firstID = resp.ID
		}
	}
	return firstID, nil
}

// textMessage builds a plain or quoted text message. ReplyTo context rides in
// ContextInfo; a reply without a resolvable stanza id degrades to plain text.
func textMessage(text string, replyTo *channel.ReplyRef) *waE2E.Message {
	if replyTo == nil || replyTo.ID == "" {
		return &waE2E.Message{Conversation: proto.String(text)}
	}
	ext := &waE2E.ExtendedTextMessage{
		Text: proto.String(text),
		ContextInfo: &waE2E.ContextInfo{
			StanzaID:      proto.String(replyTo.ID),
			QuotedMessage: &waE2E.Message{Conversation: proto.String(replyTo.Text)},
		},
	}
	if replyTo.SenderID != "" {
		ext.ContextInfo.Participant = proto.String(replyTo.SenderID)
	}
	return &waE2E.Message{ExtendedTextMessage: ext}
}

func (a *Adapter) buildMediaMessage(ctx context.Context, client *whatsmeow.Client, att *channel.MediaAttachment, caption string) (*waE2E.Message, error) {
	data, err := attachmentBytes(ctx, att)
	if err != nil {
		return nil, err
	}

	uploadType := toUploadType(att.Type)
	up, err := client.Upload(ctx, data, uploadType)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}

	mime := att.MIMEType
	switch att.Type {
	case channel.MediaImage, channel.MediaSticker:
		if mime == "" {
			mime = "image/jpeg"
		}
		img := &waE2E.ImageMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		return &waE2E.Message{ImageMessage: img}, nil
	case channel.MediaVideo:
		if mime == "" {
			mime = "video/mp4"
		}
		vid := &waE2E.VideoMessage{
			Caption:       proto.String(caption),
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		return &waE2E.Message{VideoMessage: vid}, nil
	case channel.MediaAudio:
		if mime == "" {
			mime = "audio/ogg; codecs=opus"
		}
		aud := &waE2E.AudioMessage{
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		return &waE2E.Message{AudioMessage: aud}, nil
	default:
		if mime == "" {
			mime = "application/octet-stream"
		}
		doc := &waE2E.DocumentMessage{
			Caption:       proto.String(caption),
			FileName:      proto.String(att.FileName),
			Mimetype:      proto.String(mime),
			URL:           proto.String(up.URL),
			DirectPath:    proto.String(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    proto.Uint64(up.FileLength),
		}
		return &waE2E.Message{DocumentMessage: doc}, nil
	}
}

func toUploadType(t channel.MediaType) whatsmeow.MediaType {
	switch t {
	case channel.MediaImage, channel.MediaSticker:
		return whatsmeow.MediaImage
	case channel.MediaVideo:
		return whatsmeow.MediaVideo
	case channel.MediaAudio:
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

// attachmentBytes resolves attachment content: inline bytes win, otherwise
// the URL is fetched with a size ceiling.
func attachmentBytes(ctx context.Context, att *channel.MediaAttachment) ([]byte, error) {
	if len(att.Data) > 0 {
		return att.Data, nil
	}
	if att.URL == "" {
		return nil, fmt.Errorf("%w: attachment has neither url nor data", channel.ErrEmptyMessage)
	}

	reqHTTP, err := http.NewRequestWithContext(ctx, http.MethodGet, att.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	resp, err := http.DefaultClient.Do(reqHTTP)
	if err != nil {
		return nil, fmt.Errorf("fetch attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch attachment: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxOutboundMedia+1))
	if err != nil {
		return nil, fmt.Errorf("read attachment body: %w", err)
	}
	if len(data) > maxOutboundMedia {
		return nil, fmt.Errorf("attachment exceeds %d bytes", maxOutboundMedia)
	}
	return data, nil
}

// toJID accepts either a full JID or a bare phone number.
func toJID(chatID string) (types.JID, error) {
	if strings.ContainsRune(chatID, '@') {
		jid, err := types.ParseJID(chatID)
		if err != nil {
			return types.EmptyJID, fmt.Errorf("invalid whatsapp chat id %q: %w", chatID, err)
		}
		return jid, nil
	}
	if chatID == "" {
		return types.EmptyJID, fmt.Errorf("%w: empty chat id", channel.ErrEmptyMessage)
	}
	return types.NewJID(chatID, types.DefaultUserServer), nil
}
