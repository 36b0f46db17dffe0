package metricpush

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/rigmarket/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var Module = fx.Module("metrics.push",
	fx.Provide(NewPusher),
	fx.Invoke(Run),
)

type RunParams struct {
	fx.In

	Lifecycle fx.Lifecycle
	Config    config.Config
	Pusher    Pusher `optional:"true"`
	DB        *gorm.DB
	Log       *zap.Logger
}

// Run pushes on a fixed interval while the app is up, plus once on stop so
// the final job counts are not lost.
func Run(p RunParams) {
	if p.Pusher == nil {
		return
	}
	log := p.Log.Named("metrics.push")
	interval := p.Config.MetricsPush.Interval
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &worker{
		pusher:   p.Pusher,
		backlog:  newBacklog(p.DB),
		log:      log,
		interval: interval,
	}
	w.gatherer = prometheus.Gatherers{prometheus.DefaultGatherer, w.backlog.registry}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	p.Lifecycle.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("starting metrics push worker", zap.Duration("interval", interval))
			go func() {
				defer close(done)
				w.loop(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return nil
			}
			w.pushOnce(stopCtx)
			return nil
		},
	})
}

type worker struct {
	pusher   Pusher
	backlog  *backlog
	gatherer prometheus.Gatherer
	log      *zap.Logger
	interval time.Duration
}

func (w *worker) loop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.pushOnce(ctx)
	for {
		select {
		case <-ticker.C:
			w.pushOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pushOnce never fails the caller; push errors are logged and retried on
// the next tick.
func (w *worker) pushOnce(ctx context.Context) {
	pushCtx, cancel := context.WithTimeout(ctx, defaultPushTimeout)
	defer cancel()

	if err := w.backlog.refresh(pushCtx); err != nil {
		w.log.Warn("settlement backlog refresh failed", zap.Error(err))
	}
	if err := w.pusher.Push(pushCtx, w.gatherer); err != nil {
		w.log.Warn("metrics push failed", zap.Error(err))
	}
}
