package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	hzServer "github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzprom "github.com/hertz-contrib/monitor-prometheus"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/channel/meta"
	"github.com/omnigate/omnigate/internal/channel/telegram"
	"github.com/omnigate/omnigate/internal/channel/webchat"
	"github.com/omnigate/omnigate/internal/channel/whatsapp"
	"github.com/omnigate/omnigate/internal/config"
	"github.com/omnigate/omnigate/internal/consts"
	"github.com/omnigate/omnigate/internal/pkg/logs"
	"github.com/omnigate/omnigate/internal/pkg/prometheus"
)

// metricsBind is where the prometheus tracer serves scrapes, separate from
// the API listener.
const metricsBind = ":9100"

type Gateway struct {
	manager    *channel.Manager
	httpServer *hzServer.Hertz
	stream     *broadcaster
	sink       *webhookSink
	watchdog   *watchdog

	runCtx    context.Context
	runCancel context.CancelFunc

	stopOnce sync.Once
	stopErr  error
}

func NewGateway(cfg config.GatewayConfig) *Gateway {
	bind := cfg.Bind
	if bind == "" {
		bind = consts.DefaultGatewayBind
	}

	timeout := time.Duration(cfg.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	hzSvr := hzServer.Default(
		hzServer.WithHostPorts(bind),
		hzServer.WithReadTimeout(timeout),
		hzServer.WithWriteTimeout(timeout),
		hzServer.WithExitWaitTime(5*time.Second),
		hzServer.WithTracer(hertzprom.NewServerTracer(
			metricsBind, "/metrics",
			hertzprom.WithRegistry(prometheus.GetRegistry()),
		)),
	)
	hlog.SetLogger(logs.NewHlogLogger(logs.DefaultLogger()))

	manager := channel.NewManager()
	manager.RegisterFactory(channel.WhatsApp, whatsapp.NewAdapter)
	manager.RegisterFactory(channel.Telegram, telegram.NewAdapter)
	manager.RegisterFactory(channel.Webchat, webchat.NewAdapter)
	manager.RegisterFactory(channel.Facebook, meta.NewFacebookAdapter)
	manager.RegisterFactory(channel.Instagram, meta.NewInstagramAdapter)

	return &Gateway{
		manager:    manager,
		httpServer: hzSvr,
		stream:     newBroadcaster(),
	}
}

// Manager exposes the channel registry, mainly for tests.
func (gw *Gateway) Manager() *channel.Manager {
	return gw.manager
}

func (gw *Gateway) Start(ctx context.Context) error {
	gw.runCtx, gw.runCancel = context.WithCancel(ctx)

	cfg, err := config.Get()
	if err != nil {
		return err
	}

	gw.stream.attach(gw.manager)

	if cfg.Webhook.URL != "" {
		gw.sink = newWebhookSink(cfg.Webhook)
		gw.sink.attach(gw.manager)
		gw.sink.start(gw.runCtx)
		logs.CtxInfo(ctx, "[gateway] webhook sink -> %s", cfg.Webhook.URL)
	}

	gw.registerRoutes(cfg)

	if err := gw.seedChannels(gw.runCtx, cfg.Channels); err != nil {
		return fmt.Errorf("seed channels: %w", err)
	}

	gw.watchdog = newWatchdog(gw.manager)
	gw.watchdog.start()

	go gw.httpServer.Spin()

	return nil
}

// seedChannels registers every channel from the config file. A channel that
// fails its auto-connect stays registered; a channel that fails construction
// is skipped with a log so the rest of the fleet still comes up.
func (gw *Gateway) seedChannels(ctx context.Context, channels map[string]channel.Config) error {
	for id, cfg := range channels {
		one := cfg
		if err := gw.manager.Add(ctx, &one); err != nil {
			logs.CtxWarn(ctx, "[gateway] seed channel #%s: %v", id, err)
			continue
		}
		logs.CtxInfo(ctx, "[gateway] seeded channel %s", channel.Key(one.Type, one.AccountID))
	}
	return nil
}

func (gw *Gateway) Stop(ctx context.Context) error {
	gw.stopOnce.Do(func() {
		if gw.runCancel != nil {
			gw.runCancel()
		}

		if gw.watchdog != nil {
			gw.watchdog.stop()
		}

		gw.manager.StopAll(ctx)
		gw.stream.close()
		if gw.sink != nil {
			gw.sink.close()
		}

		if err := gw.httpServer.Shutdown(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] shutdown http server error: %v", err)
		}

		logs.CtxInfo(ctx, "[gateway] all resources stopped")
	})
	return gw.stopErr
}
