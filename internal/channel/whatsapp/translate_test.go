package whatsapp

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"

	"github.com/omnigate/omnigate/internal/channel"
)

// recordingSink captures emitted events for assertions.
type recordingSink struct {
	statuses []*channel.Status
}

func (s *recordingSink) EmitMessage(*channel.Message)      {}
func (s *recordingSink) EmitStatus(status *channel.Status) { s.statuses = append(s.statuses, status) }
func (s *recordingSink) EmitContact(*channel.Contact)      {}

func testAdapter() *Adapter {
	return &Adapter{accountID: "acct", events: &recordingSink{}, config: Config{ReconnectBackoff: time.Hour}}
}

func messageEvent(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("15551234567", types.DefaultUserServer),
				Sender: types.NewJID("15551234567", types.DefaultUserServer),
			},
			ID:        "WAMID1",
			PushName:  "Ada",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: msg,
	}
}

func TestToUnifiedMessage_PlainText(t *testing.T) {
	evt := messageEvent(&waE2E.Message{Conversation: proto.String("hello")})

	out := testAdapter().toUnifiedMessage(evt)
	if out == nil {
		t.Fatal("expected a message")
	}
	if out.ID != "WAMID1" || out.Text != "hello" || out.SenderName != "Ada" {
		t.Fatalf("bad translation: %+v", out)
	}
	if out.FromMe {
		t.Fatal("inbound message must not be FromMe")
	}
}

func TestToUnifiedMessage_DropsNonConversation(t *testing.T) {
	cases := []struct {
		name string
		evt  *events.Message
	}{
		{"nil payload", messageEvent(nil)},
		{"reaction", messageEvent(&waE2E.Message{
			ReactionMessage: &waE2E.ReactionMessage{Text: proto.String("👍")},
		})},
		{"protocol", messageEvent(&waE2E.Message{
			ProtocolMessage: &waE2E.ProtocolMessage{},
		})},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if out := testAdapter().toUnifiedMessage(tc.evt); out != nil {
				t.Fatalf("expected drop, got %+v", out)
			}
		})
	}
}

func TestToUnifiedMessage_BroadcastDropped(t *testing.T) {
	evt := messageEvent(&waE2E.Message{Conversation: proto.String("status update")})
	evt.Info.Chat = types.NewJID("status", types.BroadcastServer)

	if out := testAdapter().toUnifiedMessage(evt); out != nil {
		t.Fatal("broadcast chat message must be dropped")
	}
}

func TestExtractText_Precedence(t *testing.T) {
	msg := &waE2E.Message{
		Conversation: proto.String("plain"),
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("extended"),
		},
	}
	if got := extractText(msg); got != "plain" {
		t.Fatalf("plain text must win, got %q", got)
	}

	msg.Conversation = nil
	if got := extractText(msg); got != "extended" {
		t.Fatalf("extended text next, got %q", got)
	}

	msg.ExtendedTextMessage = nil
	msg.ImageMessage = &waE2E.ImageMessage{Caption: proto.String("img cap")}
	if got := extractText(msg); got != "img cap" {
		t.Fatalf("image caption next, got %q", got)
	}
}

func TestDetectMedia_MetadataOnly(t *testing.T) {
	msg := &waE2E.Message{
		ImageMessage: &waE2E.ImageMessage{
			Mimetype: proto.String("image/jpeg"),
			Caption:  proto.String("cap"),
		},
	}
	media := detectMedia(msg)
	if media == nil || media.Type != channel.MediaImage {
		t.Fatalf("expected image attachment: %+v", media)
	}
	if media.URL != "" || len(media.Data) != 0 {
		t.Fatal("inbound attachments carry metadata only")
	}
}

func TestDetectMedia_OutsideAllowlistBecomesDocument(t *testing.T) {
	msg := &waE2E.Message{
		PtvMessage: &waE2E.VideoMessage{Mimetype: proto.String("video/mp4")},
	}
	media := detectMedia(msg)
	if media == nil || media.Type != channel.MediaDocument {
		t.Fatalf("round video note must map to document, got %+v", media)
	}

	msg = &waE2E.Message{
		ContactMessage: &waE2E.ContactMessage{DisplayName: proto.String("Bob")},
	}
	media = detectMedia(msg)
	if media == nil || media.Type != channel.MediaDocument || media.MIMEType != "text/vcard" {
		t.Fatalf("contact card must map to vcard document, got %+v", media)
	}
}

func TestReplyRef(t *testing.T) {
	msg := &waE2E.Message{
		ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text: proto.String("answer"),
			ContextInfo: &waE2E.ContextInfo{
				StanzaID:    proto.String("QUOTED1"),
				Participant: proto.String("15550000000@s.whatsapp.net"),
				QuotedMessage: &waE2E.Message{
					Conversation: proto.String("question"),
				},
			},
		},
	}
	ref := replyRef(msg)
	if ref == nil {
		t.Fatal("expected reply ref")
	}
	if ref.ID != "QUOTED1" || ref.Text != "question" {
		t.Fatalf("bad reply ref: %+v", ref)
	}

	if replyRef(&waE2E.Message{Conversation: proto.String("x")}) != nil {
		t.Fatal("message without context info must have no reply ref")
	}
}

func TestShouldReconnect(t *testing.T) {
	cases := []struct {
		name      string
		loggedOut bool
		explicit  bool
		want      bool
	}{
		{"transient drop", false, false, true},
		{"logged out remotely", true, false, false},
		{"explicit disconnect", false, true, false},
		{"logged out during disconnect", true, true, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := shouldReconnect(tc.loggedOut, tc.explicit); got != tc.want {
				t.Fatalf("shouldReconnect(%v, %v) = %v, want %v", tc.loggedOut, tc.explicit, got, tc.want)
			}
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := ParseConfig(map[string]interface{}{})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.SessionDir == "" {
		t.Fatal("session dir must default")
	}
	if cfg.ReconnectBackoff <= 0 {
		t.Fatal("reconnect backoff must default")
	}
}

func TestQRLifecycle_ClearedOnDisconnect(t *testing.T) {
	a := testAdapter()
	a.state = stateAwaitingPairing
	a.qrCode = "pairing-code"

	a.onDisconnected(true, "logged out")

	status := a.Status()
	if status.QRCode != "" {
		t.Fatal("qr code must be cleared once the session ends")
	}
	if status.Connected {
		t.Fatal("logged out session must report disconnected")
	}
}

func TestAbortPairing(t *testing.T) {
	a := testAdapter()
	cancelled := false
	a.qrCancel = func() { cancelled = true }
	a.qrCode = "pair-me"

	a.abortPairing()

	if !cancelled {
		t.Fatal("pending qr context must be cancelled")
	}
	if a.qrCancel != nil || a.qrCode != "" {
		t.Fatal("pairing state must be fully cleared")
	}

	// safe to call again with nothing pending
	a.abortPairing()
}
