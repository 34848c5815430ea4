package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/common/utils"
	hzconsts "github.com/cloudwego/hertz/pkg/protocol/consts"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/config"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

func (gw *Gateway) registerRoutes(cfg *config.Config) {
	s := gw.httpServer

	s.GET("/health", func(ctx context.Context, c *app.RequestContext) {
		c.JSON(hzconsts.StatusOK, utils.H{
			"status":    "ok",
			"timestamp": time.Now().Format(time.RFC3339),
		})
	})

	s.GET("/channels", gw.handleListChannels)
	s.POST("/channels", gw.handleAddChannel)
	s.GET("/channels/:type/:accountId", gw.handleChannelStatus)
	s.DELETE("/channels/:type/:accountId", gw.handleRemoveChannel)
	s.POST("/channels/:type/:accountId/connect", gw.handleConnect)
	s.POST("/channels/:type/:accountId/disconnect", gw.handleDisconnect)
	s.GET("/channels/whatsapp/:accountId/qr", gw.handleWhatsAppQR)

	s.POST("/messages/send", gw.handleSend)

	s.GET("/api/events", gw.handleEvents)

	s.GET("/webhooks/meta", gw.handleMetaVerify(cfg.MetaWebhook))
	s.POST("/webhooks/meta", gw.handleMetaIngress)

	s.GET("/webchat/:accountId/ws", gw.handleWebchatUpgrade)
}

// errorStatus maps failures onto HTTP statuses: 404 for unknown channels,
// otherwise 400. Provider errors keep their text so API consumers see what
// the upstream said.
func errorStatus(err error) int {
	if errors.Is(err, channel.ErrChannelNotFound) {
		return hzconsts.StatusNotFound
	}
	return hzconsts.StatusBadRequest
}

func writeError(c *app.RequestContext, err error) {
	c.JSON(errorStatus(err), utils.H{"error": err.Error()})
}

func writeSuccess(c *app.RequestContext, format string, v ...interface{}) {
	c.JSON(hzconsts.StatusOK, utils.H{"success": true, "message": fmt.Sprintf(format, v...)})
}

func pathChannelRef(c *app.RequestContext) (channel.Type, string) {
	return channel.Type(c.Param("type")), c.Param("accountId")
}

func (gw *Gateway) handleListChannels(ctx context.Context, c *app.RequestContext) {
	c.JSON(hzconsts.StatusOK, utils.H{"channels": gw.manager.AllStatus()})
}

func (gw *Gateway) handleChannelStatus(ctx context.Context, c *app.RequestContext) {
	t, accountID := pathChannelRef(c)
	status := gw.manager.GetStatus(t, accountID)
	if status == nil {
		writeError(c, channel.ErrChannelNotFound)
		return
	}
	c.JSON(hzconsts.StatusOK, status)
}

func (gw *Gateway) handleAddChannel(ctx context.Context, c *app.RequestContext) {
	var cfg channel.Config
	if err := c.BindJSON(&cfg); err != nil {
		c.JSON(hzconsts.StatusBadRequest, utils.H{"error": "invalid channel config: " + err.Error()})
		return
	}

	if err := gw.manager.Add(ctx, &cfg); err != nil {
		writeError(c, err)
		return
	}

	gw.persistChannelUpsert(ctx, cfg)

	writeSuccess(c, "channel %s registered", channel.Key(cfg.Type, cfg.AccountID))
}

func (gw *Gateway) handleRemoveChannel(ctx context.Context, c *app.RequestContext) {
	t, accountID := pathChannelRef(c)
	if err := gw.manager.Remove(ctx, t, accountID); err != nil {
		writeError(c, err)
		return
	}

	gw.persistChannelDelete(ctx, t, accountID)

	writeSuccess(c, "channel %s removed", channel.Key(t, accountID))
}

// persistChannelUpsert mirrors a registration into the config file. Entries
// are keyed by the composite registry key, so the same account id under two
// channel types never collides.
func (gw *Gateway) persistChannelUpsert(ctx context.Context, cfg channel.Config) {
	gw.persistChannels(ctx, func(channels map[string]channel.Config) {
		channels[channel.Key(cfg.Type, cfg.AccountID)] = cfg
	})
}

func (gw *Gateway) persistChannelDelete(ctx context.Context, t channel.Type, accountID string) {
	gw.persistChannels(ctx, func(channels map[string]channel.Config) {
		delete(channels, channel.Key(t, accountID))
	})
}

// persistChannels mirrors a registry mutation back into the config file.
// Best effort: the live registry is authoritative, persistence failures are
// logged and the request still succeeds.
func (gw *Gateway) persistChannels(ctx context.Context, mutate func(map[string]channel.Config)) {
	cfg, err := config.Get()
	if err != nil {
		logs.CtxWarn(ctx, "[gateway] persist channels, get config: %v", err)
		return
	}
	if cfg.Channels == nil {
		cfg.Channels = map[string]channel.Config{}
	}
	mutate(cfg.Channels)
	if err := config.Apply("channels", &cfg.Channels); err != nil {
		logs.CtxWarn(ctx, "[gateway] persist channels, apply: %v", err)
		return
	}
	if err := config.Save(); err != nil {
		logs.CtxWarn(ctx, "[gateway] persist channels, save: %v", err)
	}
}

func (gw *Gateway) handleConnect(ctx context.Context, c *app.RequestContext) {
	t, accountID := pathChannelRef(c)
	if err := gw.manager.Connect(ctx, t, accountID); err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, "channel %s connected", channel.Key(t, accountID))
}

func (gw *Gateway) handleDisconnect(ctx context.Context, c *app.RequestContext) {
	t, accountID := pathChannelRef(c)
	if err := gw.manager.Disconnect(ctx, t, accountID); err != nil {
		writeError(c, err)
		return
	}
	writeSuccess(c, "channel %s disconnected", channel.Key(t, accountID))
}

// handleWhatsAppQR returns the current pairing code, if one is pending. The
// code is only present between connect and scan; afterwards the endpoint
// returns 404 until the session is logged out again.
func (gw *Gateway) handleWhatsAppQR(ctx context.Context, c *app.RequestContext) {
	accountID := c.Param("accountId")
	status := gw.manager.GetStatus(channel.WhatsApp, accountID)
	if status == nil {
		writeError(c, channel.ErrChannelNotFound)
		return
	}
	if status.QRCode == "" {
		c.JSON(hzconsts.StatusNotFound, utils.H{"error": "no pairing code pending"})
		return
	}
	c.JSON(hzconsts.StatusOK, utils.H{"qrCode": status.QRCode})
}

func (gw *Gateway) handleSend(ctx context.Context, c *app.RequestContext) {
	var req channel.SendRequest
	if err := c.BindJSON(&req); err != nil {
		c.JSON(hzconsts.StatusBadRequest, utils.H{"error": "invalid send request: " + err.Error()})
		return
	}

	id, err := gw.manager.Send(ctx, &req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(hzconsts.StatusOK, utils.H{"success": true, "messageId": id})
}

func (gw *Gateway) handleWebchatUpgrade(ctx context.Context, c *app.RequestContext) {
	accountID := c.Param("accountId")
	adapter, err := gw.manager.Lookup(channel.Webchat, accountID)
	if err != nil {
		writeError(c, err)
		return
	}

	upgrader, ok := adapter.(interface {
		HandleUpgrade(ctx context.Context, c *app.RequestContext)
	})
	if !ok {
		c.JSON(hzconsts.StatusInternalServerError, utils.H{"error": "channel does not accept websocket clients"})
		return
	}
	upgrader.HandleUpgrade(ctx, c)
}
