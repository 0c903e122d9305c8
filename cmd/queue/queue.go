package queue

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/Alijeyrad/clinicq_backend/config"
	"github.com/Alijeyrad/clinicq_backend/internal/app"
	"github.com/Alijeyrad/clinicq_backend/internal/service/queue"
	"github.com/Alijeyrad/clinicq_backend/pkg/logs"
)

func NewQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Queue maintenance commands",
		Long: `Run queue maintenance jobs once against the configured database.

Every subcommand accepts --date (YYYY-MM-DD); it defaults to today in the
configured queue timezone.`,
	}

	cmd.PersistentFlags().String("date", "", "Day to operate on (YYYY-MM-DD), defaults to today")

	cmd.AddCommand(NewSweepCommand())
	cmd.AddCommand(NewSyncQuotasCommand())
	cmd.AddCommand(NewDefaultQuotasCommand())

	return cmd
}

func NewSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Push back overdue waiting tickets once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc queue.Service, date time.Time) error {
				res, err := svc.RunOverdueSweep(ctx, date)
				if err != nil {
					return fmt.Errorf("overdue sweep: %w", err)
				}
				fmt.Printf("Scanned %d scopes, compensated %d, updated %d tickets.\n",
					res.ScopesScanned, res.ScopesCompensated, res.TicketsUpdated)
				return nil
			})
		},
	}
}

func NewSyncQuotasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sync-quotas",
		Short: "Recount used slots of every quota from the tickets held",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc queue.Service, date time.Time) error {
				n, err := svc.SyncQuotas(ctx, date)
				if err != nil {
					return fmt.Errorf("sync quotas: %w", err)
				}
				fmt.Printf("Synchronized %d quotas.\n", n)
				return nil
			})
		},
	}
}

func NewDefaultQuotasCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "default-quotas",
		Short: "Create default quotas for every session practicing on the date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withService(cmd, func(ctx context.Context, svc queue.Service, date time.Time) error {
				n, err := svc.CreateDefaultQuotas(ctx, date)
				if err != nil {
					return fmt.Errorf("create default quotas: %w", err)
				}
				fmt.Printf("Created %d quotas.\n", n)
				return nil
			})
		},
	}
}

// withService boots the infra and service modules without the HTTP server
// or workers, runs fn and shuts everything down again.
func withService(cmd *cobra.Command, fn func(ctx context.Context, svc queue.Service, date time.Time) error) error {
	cfgPath, err := cmd.Root().PersistentFlags().GetString("config")
	if err != nil {
		return fmt.Errorf("failed to get config flag: %w", err)
	}
	cfg, err := config.ReadConfig(filepath.Dir(cfgPath))
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	slog.SetDefault(logs.New(cfg))

	var (
		svc  queue.Service
		opts queue.Options
	)
	fxApp := fx.New(
		fx.Supply(cfg),
		app.InfraModule,
		app.ServiceModule,
		fx.Populate(&svc, &opts),
		fx.WithLogger(func() fxevent.Logger { return fxevent.NopLogger }),
	)
	if err := fxApp.Err(); err != nil {
		return err
	}

	var date time.Time
	if raw, _ := cmd.Flags().GetString("date"); raw != "" {
		date, err = queue.ParseDate(raw, opts.Location)
		if err != nil {
			return fmt.Errorf("invalid --date %q: %w", raw, err)
		}
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := fxApp.Start(ctx); err != nil {
		return err
	}
	defer func() {
		if err := fxApp.Stop(context.Background()); err != nil {
			slog.Warn("queue: shutdown failed", "err", err)
		}
	}()

	return fn(ctx, svc, date)
}
