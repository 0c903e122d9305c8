package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/robfig/cron/v3"
	"go.uber.org/fx"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/internal/notify"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
)

// sweepTimeout bounds one run of the overdue sweep.
const sweepTimeout = 30 * time.Second

// WorkerModule registers the reminder consumer and the overdue sweep.
var WorkerModule = fx.Module("workers",
	fx.Invoke(RegisterWorkers),
)

type WorkerParams struct {
	fx.In

	Lc       fx.Lifecycle
	Cfg      *config.Config
	NC       *nats.Conn `optional:"true"`
	Sender   *notify.Sender
	QueueSvc queue.Service
	QueueOpt queue.Options
}

func RegisterWorkers(p WorkerParams) error {
	var (
		sub       *nats.Subscription
		scheduler *cron.Cron
	)

	if p.Cfg.Queue.SweepEnabled {
		scheduler = cron.New(cron.WithLocation(p.QueueOpt.Location))
		if _, err := scheduler.AddFunc(p.Cfg.Queue.SweepCron, sweepJob(p.QueueSvc)); err != nil {
			return err
		}
	}

	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if p.NC != nil {
				var err error
				sub, err = notify.StartReminderWorker(p.NC, p.Sender, p.QueueOpt.ReminderTimeout)
				if err != nil {
					slog.Error("reminder_worker: subscribe failed", "err", err)
					return err
				}
			}
			if scheduler != nil {
				scheduler.Start()
				slog.Info("sweep_worker: started", "schedule", p.Cfg.Queue.SweepCron)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if scheduler != nil {
				select {
				case <-scheduler.Stop().Done():
				case <-ctx.Done():
				}
			}
			// Drain of the connection itself is handled by ProvideNatsClient
			if sub != nil {
				return sub.Unsubscribe()
			}
			return nil
		},
	})
	return nil
}

// ---------------------------------------------------------------------------
// sweep_worker
// ---------------------------------------------------------------------------

func sweepJob(svc queue.Service) func() {
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), sweepTimeout)
		defer cancel()

		res, err := svc.RunOverdueSweep(ctx, time.Time{})
		if err != nil {
			slog.Warn("sweep_worker: overdue sweep failed", "err", err)
			return
		}
		if res.ScopesCompensated > 0 {
			slog.Info("sweep_worker: compensated overdue scopes",
				"scopes", res.ScopesCompensated,
				"tickets", res.TicketsUpdated,
			)
		}
	}
}
