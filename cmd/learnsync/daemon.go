package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/at-ishikawa/learnsync/internal/bootstrap"
	"github.com/at-ishikawa/learnsync/internal/events"
)

const eventPublishTimeout = 2 * time.Second

func newDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Replay pending writes in the background until interrupted",
		Args:  cobra.NoArgs,
		RunE: withApp(func(cmd *cobra.Command, args []string, a *app) error {
			ctx := cmd.Context()
			lifecycle := bootstrap.New(a.logger)

			if addr := a.cfg.Events.Redis.Addr; addr != "" {
				pub, err := events.NewRedisPublisher(ctx, addr, a.cfg.Events.Redis.Channel, a.logger)
				if err != nil {
					return err
				}
				unsubscribe := events.Forward(a.bus, pub, eventPublishTimeout, a.logger)
				lifecycle.OnShutdown("redis events", func(ctx context.Context) error {
					unsubscribe()
					return pub.Close()
				})
				a.logger.Info("forwarding sync events", "addr", addr, "channel", a.cfg.Events.Redis.Channel)
			}

			a.logger.Info("sync daemon started", "interval", a.cfg.Sync.Interval)
			return lifecycle.Run(ctx, a.storage.Run)
		}),
	}
}
