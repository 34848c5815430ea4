package gateway

import (
	"context"
	"encoding/json"

	"github.com/bytedance/sonic"
	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hzconsts "github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/omnigate/omnigate/internal/channel/meta"
	"github.com/omnigate/omnigate/internal/config"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

// handleMetaVerify answers the subscription handshake: when the verify token
// matches, the hub.challenge value is echoed back as plain text.
func (gw *Gateway) handleMetaVerify(cfg config.MetaWebhookConfig) app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		mode := c.Query("hub.mode")
		token := c.Query("hub.verify_token")
		challenge := c.Query("hub.challenge")

		if mode != "subscribe" || cfg.VerifyToken == "" || token != cfg.VerifyToken {
			c.JSON(hzconsts.StatusForbidden, utils.H{"error": "verification failed"})
			return
		}
		c.String(hzconsts.StatusOK, challenge)
	}
}

// ingressEnvelope defers entry decoding so one mangled entry cannot fail
// the whole payload. Entries are typed individually in decodeIngressEntries.
type ingressEnvelope struct {
	Object string            `json:"object"`
	Entry  []json.RawMessage `json:"entry"`
}

// decodeIngressEntries parses a webhook body entry by entry. Entries that do
// not decode are logged and skipped; the error is non-nil only when the
// envelope itself is not valid JSON.
func decodeIngressEntries(body []byte) ([]meta.WebhookEntry, error) {
	var env ingressEnvelope
	if err := sonic.Unmarshal(body, &env); err != nil {
		return nil, err
	}

	entries := make([]meta.WebhookEntry, 0, len(env.Entry))
	for i, raw := range env.Entry {
		var entry meta.WebhookEntry
		if err := sonic.Unmarshal(raw, &entry); err != nil {
			logs.Warn("[gateway] webhook entry %d dropped: %v", i, err)
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// handleMetaIngress fans a webhook POST out to the adapters it addresses.
// Messenger and Instagram share this route; each entry carries the id of the
// page or instagram account it belongs to. The response is always 200 for a
// parseable payload, even when some entries are mangled, so Meta never
// retries events we already saw.
func (gw *Gateway) handleMetaIngress(ctx context.Context, c *app.RequestContext) {
	body, err := c.Body()
	if err != nil {
		c.JSON(hzconsts.StatusBadRequest, utils.H{"error": "malformed webhook payload"})
		return
	}

	entries, err := decodeIngressEntries(body)
	if err != nil {
		c.JSON(hzconsts.StatusBadRequest, utils.H{"error": "malformed webhook payload"})
		return
	}

	receivers := gw.metaReceivers()

	for i := range entries {
		entry := &entries[i]
		adapter, ok := receivers[entry.ID]
		if !ok {
			logs.CtxDebug(ctx, "[gateway] webhook entry for unknown id %s dropped", entry.ID)
			continue
		}
		adapter.HandleEntry(entry)
	}

	c.JSON(hzconsts.StatusOK, utils.H{"received": len(entries)})
}

// metaReceivers indexes the registered Meta adapters by their ingress id.
func (gw *Gateway) metaReceivers() map[string]*meta.Adapter {
	out := make(map[string]*meta.Adapter, 4)
	for _, a := range gw.manager.Adapters() {
		if !a.Type().IsMeta() {
			continue
		}
		if m, ok := a.(*meta.Adapter); ok {
			out[m.IngressID()] = m
		}
	}
	return out
}
