package meta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnigate/omnigate/internal/channel"
)

func graphServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func adapterFor(t *testing.T, base string, sink *recordingSink) *Adapter {
	t.Helper()
	a, err := NewFacebookAdapter("page-acct", map[string]interface{}{
		"page_id":           "PAGE1",
		"page_access_token": "secret-token",
		"graph_base":        base,
	}, sink)
	require.NoError(t, err, "create adapter")
	return a.(*Adapter)
}

func TestProbe_Success(t *testing.T) {
	srv := graphServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/me", r.URL.Path)
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(profile{ID: "PAGE1", Name: "My Page"})
	})

	sink := &recordingSink{}
	a := adapterFor(t, srv.URL, sink)

	require.NoError(t, a.Connect(context.Background()))
	assert.True(t, a.Status().Connected, "probe success must mark the channel connected")
	require.Len(t, sink.contacts, 1, "profile must be emitted as a contact")
	assert.Equal(t, "My Page", sink.contacts[0].Name)
}

func TestProbe_AuthFailureMasksToken(t *testing.T) {
	srv := graphServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"Invalid OAuth access token","type":"OAuthException","code":190}}`))
	})

	sink := &recordingSink{}
	a := adapterFor(t, srv.URL, sink)

	err := a.Connect(context.Background())
	require.Error(t, err, "expected auth failure")
	assert.False(t, a.Status().Connected, "failed probe must not mark connected")

	// the provider's message is passed through, the token never is
	assert.Contains(t, err.Error(), "Invalid OAuth access token")
	assert.NotContains(t, err.Error(), "secret-token")
}

func TestSendMessage_TextAndAttachment(t *testing.T) {
	var payloads []map[string]interface{}
	srv := graphServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/me" {
			_ = sonic.ConfigDefault.NewEncoder(w).Encode(profile{ID: "PAGE1"})
			return
		}
		var p map[string]interface{}
		_ = sonic.ConfigDefault.NewDecoder(r.Body).Decode(&p)
		payloads = append(payloads, p)
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(sendResponse{MessageID: "mid.1"})
	})

	sink := &recordingSink{}
	a := adapterFor(t, srv.URL, sink)
	require.NoError(t, a.Connect(context.Background()))

	id, err := a.SendMessage(context.Background(), &channel.SendRequest{
		Type:      channel.Facebook,
		AccountID: "page-acct",
		ChatID:    "USER1",
		Text:      "hello",
		Media: []channel.MediaAttachment{
			{Type: channel.MediaImage, URL: "https://cdn.example/a.jpg"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "mid.1", id, "expected provider id of the first part")
	assert.Len(t, payloads, 2, "expected a text send and an attachment send")
}

func TestSendMessage_RequiresConnection(t *testing.T) {
	sink := &recordingSink{}
	a := adapterFor(t, "http://unused.invalid", sink)

	_, err := a.SendMessage(context.Background(), &channel.SendRequest{ChatID: "U", Text: "x"})
	assert.Error(t, err, "send on a disconnected channel must fail")
}

func TestSendMessage_InlineMediaRejected(t *testing.T) {
	srv := graphServer(t, func(w http.ResponseWriter, r *http.Request) {
		_ = sonic.ConfigDefault.NewEncoder(w).Encode(profile{ID: "PAGE1"})
	})

	sink := &recordingSink{}
	a := adapterFor(t, srv.URL, sink)
	require.NoError(t, a.Connect(context.Background()))

	_, err := a.SendMessage(context.Background(), &channel.SendRequest{
		ChatID: "U",
		Media:  []channel.MediaAttachment{{Type: channel.MediaImage, Data: []byte{1, 2}}},
	})
	assert.Error(t, err, "data-only attachments must be rejected for Graph sends")
}
