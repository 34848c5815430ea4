package meta

import (
	"encoding/json"
	"testing"

	"github.com/bytedance/sonic"

	"github.com/omnigate/omnigate/internal/channel"
)

type recordingSink struct {
	messages []*channel.Message
	statuses []*channel.Status
	contacts []*channel.Contact
}

func (s *recordingSink) EmitMessage(msg *channel.Message)      { s.messages = append(s.messages, msg) }
func (s *recordingSink) EmitStatus(status *channel.Status)     { s.statuses = append(s.statuses, status) }
func (s *recordingSink) EmitContact(contact *channel.Contact)  { s.contacts = append(s.contacts, contact) }

func messengerAdapter(t *testing.T, sink *recordingSink) *Adapter {
	t.Helper()
	a, err := NewFacebookAdapter("page-acct", map[string]interface{}{
		"page_id":           "PAGE1",
		"page_access_token": "token",
	}, sink)
	if err != nil {
		t.Fatalf("create adapter: %v", err)
	}
	return a.(*Adapter)
}

func instagramAdapter(t *testing.T, sink *recordingSink) *Adapter {
	t.Helper()
	a, err := NewInstagramAdapter("ig-acct", map[string]interface{}{
		"page_id":              "PAGE1",
		"page_access_token":    "token",
		"instagram_account_id": "IG1",
	}, sink)
	if err != nil {
		t.Fatalf("create adapter: %v", err)
	}
	return a.(*Adapter)
}

func TestHandleEntry_MessengerText(t *testing.T) {
	sink := &recordingSink{}
	a := messengerAdapter(t, sink)

	a.HandleEntry(&WebhookEntry{
		ID:   "PAGE1",
		Time: 1700000000000,
		Messaging: []MessagingEvent{{
			Sender:    Party{ID: "USER1"},
			Recipient: Party{ID: "PAGE1"},
			Timestamp: 1700000000500,
			Message:   &MessagePayload{MID: "m1", Text: "hi"},
		}},
	})

	if len(sink.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sink.messages))
	}
	msg := sink.messages[0]
	if msg.ID != "m1" || msg.ChatID != "USER1" || msg.Text != "hi" || msg.FromMe {
		t.Fatalf("bad translation: %+v", msg)
	}
	if msg.Type != channel.Facebook {
		t.Fatalf("expected facebook type, got %s", msg.Type)
	}
}

func TestHandleEntry_EchoIsFromMe(t *testing.T) {
	sink := &recordingSink{}
	a := messengerAdapter(t, sink)

	a.HandleEntry(&WebhookEntry{
		ID: "PAGE1",
		Messaging: []MessagingEvent{{
			Sender:    Party{ID: "PAGE1"},
			Recipient: Party{ID: "USER1"},
			Message:   &MessagePayload{MID: "m2", Text: "echo", IsEcho: true},
		}},
	})

	if len(sink.messages) != 1 {
		t.Fatalf("expected one message, got %d", len(sink.messages))
	}
	msg := sink.messages[0]
	if !msg.FromMe {
		t.Fatal("echo event must be FromMe")
	}
	if msg.ChatID != "USER1" {
		t.Fatalf("echo chat id must be the recipient, got %q", msg.ChatID)
	}
}

func TestHandleEntry_InstagramChanges(t *testing.T) {
	sink := &recordingSink{}
	a := instagramAdapter(t, sink)

	value, _ := sonic.Marshal(MessagingEvent{
		Sender:    Party{ID: "VISITOR"},
		Recipient: Party{ID: "IG1"},
		Message:   &MessagePayload{MID: "ig-m1", Text: "dm"},
	})

	a.HandleEntry(&WebhookEntry{
		ID: "IG1",
		Changes: []ChangeEvent{
			{Field: "comments", Value: json.RawMessage(`{"irrelevant":true}`)},
			{Field: "messages", Value: value},
		},
	})

	if len(sink.messages) != 1 {
		t.Fatalf("expected one message from the messages change, got %d", len(sink.messages))
	}
	msg := sink.messages[0]
	if msg.Type != channel.Instagram || msg.ID != "ig-m1" {
		t.Fatalf("bad translation: %+v", msg)
	}
}

func TestHandleEntry_MalformedEventIsolated(t *testing.T) {
	sink := &recordingSink{}
	a := instagramAdapter(t, sink)

	value, _ := sonic.Marshal(MessagingEvent{
		Sender:  Party{ID: "VISITOR"},
		Message: &MessagePayload{MID: "ok", Text: "still here"},
	})

	a.HandleEntry(&WebhookEntry{
		ID: "IG1",
		Changes: []ChangeEvent{
			{Field: "messages", Value: json.RawMessage(`{not json`)},
			{Field: "messages", Value: value},
		},
	})

	if len(sink.messages) != 1 || sink.messages[0].ID != "ok" {
		t.Fatalf("malformed change must not block the next one: %+v", sink.messages)
	}
}

func TestHandleEntry_NonMessageEventsDropped(t *testing.T) {
	sink := &recordingSink{}
	a := messengerAdapter(t, sink)

	// delivery receipts arrive as messaging events without a message body
	a.HandleEntry(&WebhookEntry{
		ID: "PAGE1",
		Messaging: []MessagingEvent{
			{Sender: Party{ID: "USER1"}, Recipient: Party{ID: "PAGE1"}},
			{Sender: Party{ID: "USER1"}, Recipient: Party{ID: "PAGE1"}, Message: &MessagePayload{}},
		},
	})

	if len(sink.messages) != 0 {
		t.Fatalf("events without content must be dropped: %+v", sink.messages)
	}
}

func TestToUnifiedMessage_Attachments(t *testing.T) {
	sink := &recordingSink{}
	a := messengerAdapter(t, sink)

	att := AttachmentPayload{Type: "image"}
	att.Payload.URL = "https://cdn.example/img.jpg"
	sticker := AttachmentPayload{Type: "image"}
	sticker.Payload.StickerID = 369239263222822

	msg := a.toUnifiedMessage(&MessagingEvent{
		Sender:  Party{ID: "USER1"},
		Message: &MessagePayload{MID: "m3", Attachments: []AttachmentPayload{att, sticker}},
	}, 0)

	if msg == nil || len(msg.Media) != 2 {
		t.Fatalf("expected two attachments: %+v", msg)
	}
	if msg.Media[0].Type != channel.MediaImage || msg.Media[0].URL == "" {
		t.Fatalf("bad image attachment: %+v", msg.Media[0])
	}
	if msg.Media[1].Type != channel.MediaSticker {
		t.Fatalf("sticker id must force sticker type: %+v", msg.Media[1])
	}
}

func TestIngressID(t *testing.T) {
	sink := &recordingSink{}
	if got := messengerAdapter(t, sink).IngressID(); got != "PAGE1" {
		t.Fatalf("messenger ingress must be the page id, got %q", got)
	}
	if got := instagramAdapter(t, sink).IngressID(); got != "IG1" {
		t.Fatalf("instagram ingress must be the account id, got %q", got)
	}
}

func TestParseConfig_Validation(t *testing.T) {
	_, err := ParseConfig(channel.Facebook, map[string]interface{}{"page_id": "P"})
	if err == nil {
		t.Fatal("missing token must fail")
	}
	_, err = ParseConfig(channel.Instagram, map[string]interface{}{
		"page_id":           "P",
		"page_access_token": "t",
	})
	if err == nil {
		t.Fatal("instagram without account id must fail")
	}
}
