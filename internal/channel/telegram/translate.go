package telegram

import (
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-telegram/bot/models"

	"github.com/omnigate/omnigate/internal/channel"
)

// toUnifiedMessage converts a Telegram message into the unified schema.
// Returns nil for anything that is not a user-visible message. Media kinds
// are checked in a fixed priority order and only the first match is recorded.
func (a *Adapter) toUnifiedMessage(msg *models.Message, botID int64) *channel.Message {
	if msg == nil || msg.From == nil {
		return nil
	}

	text := msg.Text
	if text == "" {
		text = msg.Caption
	}

	media := detectMedia(msg)
	if text == "" && media == nil {
		return nil
	}

	out := &channel.Message{
		ID:         strconv.Itoa(msg.ID),
		Type:       channel.Telegram,
		AccountID:  a.accountID,
		ChatID:     strconv.FormatInt(msg.Chat.ID, 10),
		SenderID:   strconv.FormatInt(msg.From.ID, 10),
		SenderName: senderName(msg.From),
		Text:       text,
		Timestamp:  time.Unix(int64(msg.Date), 0),
		FromMe:     msg.From.ID == botID,
	}
	if media != nil {
		out.Media = []channel.MediaAttachment{*media}
	}
	if msg.ReplyToMessage != nil {
		out.ReplyTo = replyRef(msg.ReplyToMessage)
	}
	if raw, err := sonic.Marshal(msg); err == nil {
		out.Raw = raw
	}
	return out
}

// detectMedia checks attachment kinds in fixed priority order:
// photo, video, audio, voice (as audio), document, sticker.
func detectMedia(msg *models.Message) *channel.MediaAttachment {
	switch {
	case len(msg.Photo) > 0:
		return &channel.MediaAttachment{
			Type:     channel.MediaImage,
			MIMEType: "image/jpeg",
			Caption:  msg.Caption,
		}
	case msg.Video != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaVideo,
			MIMEType: msg.Video.MimeType,
			FileName: msg.Video.FileName,
			Caption:  msg.Caption,
		}
	case msg.Audio != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaAudio,
			MIMEType: msg.Audio.MimeType,
			FileName: msg.Audio.FileName,
			Caption:  msg.Caption,
		}
	case msg.Voice != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaAudio,
			MIMEType: msg.Voice.MimeType,
		}
	case msg.Document != nil:
		return &channel.MediaAttachment{
			Type:     channel.MediaDocument,
			MIMEType: msg.Document.MimeType,
			FileName: msg.Document.FileName,
			Caption:  msg.Caption,
		}
	case msg.Sticker != nil:
		return &channel.MediaAttachment{
			Type: channel.MediaSticker,
		}
	}
	return nil
}

// inboundFileID returns the provider file id backing the detected attachment.
func inboundFileID(msg *models.Message, mediaType channel.MediaType) string {
	switch mediaType {
	case channel.MediaImage:
		if len(msg.Photo) > 0 {
			// Telegram sends multiple sizes; the last one is the largest.
			return msg.Photo[len(msg.Photo)-1].FileID
		}
	case channel.MediaVideo:
		if msg.Video != nil {
			return msg.Video.FileID
		}
	case channel.MediaAudio:
		if msg.Audio != nil {
			return msg.Audio.FileID
		}
		if msg.Voice != nil {
			return msg.Voice.FileID
		}
	case channel.MediaDocument:
		if msg.Document != nil {
			return msg.Document.FileID
		}
	case channel.MediaSticker:
		if msg.Sticker != nil {
			return msg.Sticker.FileID
		}
	}
	return ""
}

func senderName(u *models.User) string {
	name := u.FirstName
	if u.LastName != "" {
		if name != "" {
			name += " "
		}
		name += u.LastName
	}
	if name == "" {
		name = u.Username
	}
	return name
}

func replyRef(msg *models.Message) *channel.ReplyRef {
	ref := &channel.ReplyRef{
		ID: strconv.Itoa(msg.ID),
	}
	if msg.Text != "" {
		ref.Text = msg.Text
	} else {
		ref.Text = msg.Caption
	}
	if msg.From != nil {
		ref.SenderID = strconv.FormatInt(msg.From.ID, 10)
	}
	return ref
}
