package gateway

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/config"
)

func TestWebhookSink_DeliversEnvelope(t *testing.T) {
	var (
		mu       sync.Mutex
		received []envelope
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env envelope
		if err := sonic.ConfigDefault.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode envelope: %v", err)
		}
		mu.Lock()
		received = append(received, env)
		mu.Unlock()
	}))
	defer srv.Close()

	sink := newWebhookSink(config.WebhookConfig{URL: srv.URL, TimeoutSec: 5, QueueSize: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink.start(ctx)
	defer sink.close()

	m := channel.NewManager()
	sink.attach(m)

	m.EmitMessage(&channel.Message{ID: "m1", Type: channel.Telegram, AccountID: "acct"})

	deadline := time.After(3 * time.Second)
	for {
		mu.Lock()
		n := len(received)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("envelope never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	env := received[0]
	mu.Unlock()
	if env.Event != "message" {
		t.Fatalf("expected message envelope, got %q", env.Event)
	}
	if env.Timestamp.IsZero() {
		t.Fatal("envelope must carry a timestamp")
	}
}

func TestWebhookSink_SlowEndpointDoesNotBlockEmit(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer srv.Close()
	defer close(release)

	sink := newWebhookSink(config.WebhookConfig{URL: srv.URL, TimeoutSec: 30, QueueSize: 2})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sink.start(ctx)
	defer sink.close()

	m := channel.NewManager()
	sink.attach(m)

	done := make(chan struct{})
	go func() {
		// far more events than the queue holds; extras are dropped, the
		// emit path never stalls
		for i := 0; i < 50; i++ {
			m.EmitMessage(&channel.Message{ID: "m", Type: channel.Webchat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("slow webhook endpoint blocked event emission")
	}
}

func TestWebhookSink_EnqueueAfterClose(t *testing.T) {
	sink := newWebhookSink(config.WebhookConfig{URL: "http://unused.invalid", TimeoutSec: 1, QueueSize: 1})
	sink.close()
	// must not panic or block
	sink.enqueue(newEnvelope("status", &channel.Status{}))
}

func TestBroadcaster_FanOutAndDropSlowClient(t *testing.T) {
	b := newBroadcaster()

	id, ch := b.subscribe()
	defer b.unsubscribe(id)

	b.publish(newEnvelope("message", &channel.Message{ID: "m1"}))
	select {
	case env := <-ch:
		if env.Event != "message" {
			t.Fatalf("unexpected event kind %q", env.Event)
		}
	default:
		t.Fatal("subscriber did not receive the event")
	}

	// fill the client buffer without draining; publishing must not block
	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*2; i++ {
			b.publish(newEnvelope("status", &channel.Status{}))
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lagging client blocked the broadcaster")
	}
}

func TestBroadcaster_Close(t *testing.T) {
	b := newBroadcaster()
	_, ch := b.subscribe()

	b.close()
	if _, ok := <-ch; ok {
		t.Fatal("client channel must be closed")
	}

	// subscribing after close yields a closed channel
	_, ch = b.subscribe()
	if _, ok := <-ch; ok {
		t.Fatal("post-close subscription must be closed immediately")
	}

	// publishing after close is a no-op
	b.publish(newEnvelope("message", &channel.Message{ID: "m"}))
}
