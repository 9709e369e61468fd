package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/mirror/pkg/api"
	"github.com/cuemby/mirror/pkg/journal"
	"github.com/cuemby/mirror/pkg/log"
	"github.com/cuemby/mirror/pkg/scheduler"
	"github.com/spf13/cobra"
)

func serveCmd() *cobra.Command {
	var noAutoRun bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the replication engine and its HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			eng, err := buildEngine(ctx)
			if err != nil {
				return err
			}
			defer eng.close()

			logger := log.WithComponent("serve")
			logger.Info().Str("version", Version).Msg("starting replication engine")

			if err := os.MkdirAll(eng.cfg.DataDir, 0o755); err != nil {
				return err
			}
			jnl, err := journal.Open(journalPath(eng.cfg), journal.DefaultCap)
			if err != nil {
				return err
			}
			defer jnl.Close()
			jnl.Follow(eng.broker)

			eng.monitor.Refresh(ctx)
			eng.monitor.Start()
			defer eng.monitor.Stop()

			var sched *scheduler.Scheduler
			if noAutoRun {
				logger.Info().Msg("automatic runs disabled")
			} else {
				sched = scheduler.New(eng.coord, eng.broker, time.Duration(eng.cfg.RunIntervalMinutes)*time.Minute)
				sched.Start()
				defer sched.Stop()
			}

			server := api.New(eng.coord, eng.gw, eng.broker, jnl)
			errCh := make(chan error, 1)
			go func() { errCh <- server.Start(eng.cfg.Port) }()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

			select {
			case sig := <-sigCh:
				logger.Info().Str("signal", sig.String()).Msg("shutting down")
			case err := <-errCh:
				if err != nil {
					return err
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().BoolVar(&noAutoRun, "no-auto-run", false, "disable the interval scheduler; runs trigger only via the API")
	return cmd
}
