package telegram

import (
	"testing"
	"time"

	"github.com/go-telegram/bot/models"

	"github.com/omnigate/omnigate/internal/channel"
)

func testAdapter() *Adapter {
	return &Adapter{accountID: "acct", config: Config{}}
}

func baseMessage() *models.Message {
	return &models.Message{
		ID:   100,
		From: &models.User{ID: 7, FirstName: "Ada", LastName: "L"},
		Chat: models.Chat{ID: 55},
		Date: 1700000000,
	}
}

func TestToUnifiedMessage_Text(t *testing.T) {
	msg := baseMessage()
	msg.Text = "hello"

	out := testAdapter().toUnifiedMessage(msg, 999)
	if out == nil {
		t.Fatal("expected a message")
	}
	if out.ID != "100" || out.ChatID != "55" || out.SenderID != "7" {
		t.Fatalf("bad identifiers: %+v", out)
	}
	if out.SenderName != "Ada L" {
		t.Fatalf("bad sender name: %q", out.SenderName)
	}
	if out.FromMe {
		t.Fatal("message from a user must not be FromMe")
	}
}

func TestToUnifiedMessage_FromBot(t *testing.T) {
	msg := baseMessage()
	msg.Text = "echo"
	msg.From.ID = 999

	out := testAdapter().toUnifiedMessage(msg, 999)
	if out == nil || !out.FromMe {
		t.Fatal("message sent by the bot identity must be FromMe")
	}
}

func TestToUnifiedMessage_CaptionFallback(t *testing.T) {
	msg := baseMessage()
	msg.Caption = "look at this"
	msg.Photo = []models.PhotoSize{{FileID: "small"}, {FileID: "large"}}

	out := testAdapter().toUnifiedMessage(msg, 999)
	if out == nil {
		t.Fatal("expected a message")
	}
	if out.Text != "look at this" {
		t.Fatalf("caption not promoted to text: %q", out.Text)
	}
	if len(out.Media) != 1 || out.Media[0].Type != channel.MediaImage {
		t.Fatalf("expected one image attachment: %+v", out.Media)
	}
}

func TestToUnifiedMessage_EmptyDropped(t *testing.T) {
	if out := testAdapter().toUnifiedMessage(baseMessage(), 999); out != nil {
		t.Fatalf("message with no text and no media must be dropped, got %+v", out)
	}
	if out := testAdapter().toUnifiedMessage(nil, 999); out != nil {
		t.Fatal("nil message must translate to nil")
	}
}

func TestDetectMedia_Priority(t *testing.T) {
	// photo wins over every other kind present on the same message
	msg := baseMessage()
	msg.Photo = []models.PhotoSize{{FileID: "p"}}
	msg.Video = &models.Video{FileID: "v", MimeType: "video/mp4"}
	msg.Document = &models.Document{FileID: "d"}

	media := detectMedia(msg)
	if media == nil || media.Type != channel.MediaImage {
		t.Fatalf("expected image to win, got %+v", media)
	}

	msg.Photo = nil
	media = detectMedia(msg)
	if media == nil || media.Type != channel.MediaVideo {
		t.Fatalf("expected video next, got %+v", media)
	}

	msg.Video = nil
	media = detectMedia(msg)
	if media == nil || media.Type != channel.MediaDocument {
		t.Fatalf("expected document next, got %+v", media)
	}
}

func TestDetectMedia_VoiceAsAudio(t *testing.T) {
	msg := baseMessage()
	msg.Voice = &models.Voice{FileID: "v", MimeType: "audio/ogg"}

	media := detectMedia(msg)
	if media == nil || media.Type != channel.MediaAudio {
		t.Fatalf("voice note must map to audio, got %+v", media)
	}
}

func TestInboundFileID_LargestPhoto(t *testing.T) {
	msg := baseMessage()
	msg.Photo = []models.PhotoSize{{FileID: "small"}, {FileID: "medium"}, {FileID: "large"}}

	if id := inboundFileID(msg, channel.MediaImage); id != "large" {
		t.Fatalf("expected largest photo, got %q", id)
	}
}

func TestReplyRef(t *testing.T) {
	msg := baseMessage()
	msg.Text = "answer"
	msg.ReplyToMessage = &models.Message{
		ID:      42,
		Text:    "question",
		From:    &models.User{ID: 9},
		Chat:    models.Chat{ID: 55},
	}

	out := testAdapter().toUnifiedMessage(msg, 999)
	if out == nil || out.ReplyTo == nil {
		t.Fatal("expected reply reference")
	}
	if out.ReplyTo.ID != "42" || out.ReplyTo.Text != "question" || out.ReplyTo.SenderID != "9" {
		t.Fatalf("bad reply ref: %+v", out.ReplyTo)
	}
}

func TestSenderName_UsernameFallback(t *testing.T) {
	u := &models.User{Username: "ada"}
	if senderName(u) != "ada" {
		t.Fatalf("expected username fallback, got %q", senderName(u))
	}
}

func TestToReplyParameters_ForeignIDIgnored(t *testing.T) {
	if p := toReplyParameters(&channel.ReplyRef{ID: "not-a-number"}); p != nil {
		t.Fatal("non-numeric reply id must be ignored")
	}
	if p := toReplyParameters(&channel.ReplyRef{ID: "42"}); p == nil || p.MessageID != 42 {
		t.Fatalf("numeric reply id must be honored: %+v", p)
	}
	if p := toReplyParameters(nil); p != nil {
		t.Fatal("nil reply must stay nil")
	}
}

func TestParseConfig_PollTimeout(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{"bot_token": "t"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.PollTimeout != 30*time.Second {
		t.Fatalf("default poll timeout: %v", cfg.PollTimeout)
	}

	cfg, err = ParseConfig(map[string]interface{}{"bot_token": "t", "poll_timeout": 5})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.PollTimeout != 5*time.Second {
		t.Fatalf("explicit poll timeout: %v", cfg.PollTimeout)
	}
}
