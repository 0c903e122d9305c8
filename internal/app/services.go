package app

import (
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/internal/lock"
	"github.com/Alijeyrad/clinicq_backend/internal/notify"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/internal/store/postgres"
	"github.com/Alijeyrad/clinicq_backend/pkg/email"
	"github.com/Alijeyrad/clinicq_backend/pkg/sms"
)

// lockTTL bounds how long a crashed replica can keep a scope locked.
const lockTTL = 30 * time.Second

// ServiceModule provides all application service dependencies.
var ServiceModule = fx.Module("services",
	fx.Provide(
		ProvideQueueOptions,
		ProvideClock,
		ProvideLocker,
		ProvideStore,
		ProvideReminderSender,
		ProvideDispatcher,
		ProvideQueueService,
	),
)

func ProvideQueueOptions(cfg *config.Config) (queue.Options, error) {
	return queue.OptionsFromConfig(cfg.Queue)
}

func ProvideClock(opts queue.Options) queue.Clock {
	return queue.SystemClock{Location: opts.Location}
}

// ProvideLocker picks the scope lock backend. The Redis locker serialises
// bookings across replicas; the local one only within this process.
func ProvideLocker(cfg *config.Config, rdb *redis.Client) queue.Locker {
	if cfg.Queue.LockBackend == "local" {
		return lock.NewLocal(cfg.Queue.LockTimeout())
	}
	return lock.NewRedis(rdb, cfg.Queue.LockTimeout(), lockTTL)
}

func ProvideStore(pool *pgxpool.Pool, opts queue.Options, cfg *config.Config) queue.Store {
	return postgres.New(pool, opts.Location, cfg.Queue.LockTimeout())
}

func ProvideReminderSender(smsCli *sms.Client, mail *email.Client, opts queue.Options) *notify.Sender {
	return notify.NewSender(smsCli, mail, opts.Location)
}

func ProvideDispatcher(nc *nats.Conn, sender *notify.Sender) queue.Dispatcher {
	if nc == nil {
		slog.Info("reminders delivered in-process, nats.url is empty")
		return notify.NewDirect(sender)
	}
	return notify.NewPublisher(nc)
}

func ProvideQueueService(
	store queue.Store,
	locker queue.Locker,
	clock queue.Clock,
	dispatcher queue.Dispatcher,
	opts queue.Options,
) queue.Service {
	return queue.New(store, locker, clock, dispatcher, opts)
}
