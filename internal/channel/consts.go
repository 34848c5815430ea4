package channel

type Type string

const (
	WhatsApp Type = "whatsapp"

	Telegram Type = "telegram"

	Webchat Type = "webchat"

	Facebook Type = "facebook"

	Instagram Type = "instagram"
)

var SupportedChannels = []Type{
	WhatsApp,
	Telegram,
	Webchat,
	Facebook,
	Instagram,
}

func (t Type) Valid() bool {
	for _, s := range SupportedChannels {
		if t == s {
			return true
		}
	}
	return false
}

// Meta channels are stateless per message; connectivity is a profile probe,
// not a persistent socket.
func (t Type) IsMeta() bool {
	return t == Facebook || t == Instagram
}

type MediaType string

const (
	MediaImage    MediaType = "image"
	MediaVideo    MediaType = "video"
	MediaAudio    MediaType = "audio"
	MediaDocument MediaType = "document"
	MediaSticker  MediaType = "sticker"
)
