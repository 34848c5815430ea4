package gateway

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omnigate/omnigate/internal/channel"
	"github.com/omnigate/omnigate/internal/pkg/logs"
)

const probeInterval = "@every 5m"

// watchdog periodically re-probes channels whose providers give no push
// signal about connectivity. Meta's Graph API is request/response only, so a
// revoked page token would otherwise go unnoticed until the next send.
type watchdog struct {
	manager *channel.Manager
	cron    *cron.Cron
}

func newWatchdog(m *channel.Manager) *watchdog {
	return &watchdog{
		manager: m,
		cron:    cron.New(),
	}
}

func (w *watchdog) start() {
	_, err := w.cron.AddFunc(probeInterval, w.probeAll)
	if err != nil {
		logs.Error("[gateway] schedule connectivity probe: %v", err)
		return
	}
	w.cron.Start()
}

func (w *watchdog) stop() {
	ctx := w.cron.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		logs.Warn("[gateway] connectivity probe did not finish before shutdown")
	}
}

func (w *watchdog) probeAll() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, a := range w.manager.Adapters() {
		prober, ok := a.(interface{ Probe(ctx context.Context) error })
		if !ok {
			continue
		}
		key := channel.Key(a.Type(), a.AccountID())
		if err := prober.Probe(ctx); err != nil {
			logs.CtxWarn(ctx, "[gateway] probe %s: %v", key, err)
		}
	}
}
