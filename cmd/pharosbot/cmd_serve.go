package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pharosbot/internal/collector"
	"pharosbot/internal/core"
	"pharosbot/internal/server"
)

func newServeCmd(c *cli) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the start/stop/status control API",
		Long: `Serves the control API until SIGINT or SIGTERM:

  POST /api/tasks/start   {"invite_code": "..."}
  POST /api/tasks/stop
  GET  /api/tasks/status
  GET  /api/tasks/logs?since=N`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, baseDir, err := c.loadConfig()
			if err != nil {
				return setupError(err)
			}
			if listen == "" {
				listen = cfg.Server.Listen
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			ledger, err := dialLedger(ctx, cfg, c.logger)
			if err != nil {
				return setupError(err)
			}
			defer ledger.Close()

			coll := collector.NewCollector()
			defer coll.Close()

			store := c.accountStore(cfg, baseDir, "")
			reporter := core.MultiReporter{coll, logReporter(c.logger.Named("events"))}
			runner := newRunner(cfg, store, ledger, reporter, c.logger)

			srv := server.New(server.Options{
				Runner:      runner,
				Events:      coll,
				Logger:      c.logger.Named("server"),
				BaseContext: ctx,
			})

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return srv.ListenAndServe(gctx, listen)
			})
			g.Go(func() error {
				<-gctx.Done()
				runner.Stop()
				runner.Wait()
				return nil
			})

			err = g.Wait()
			c.logger.Info("control server stopped", zap.Error(err))
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&listen, "listen", "l", "", "listen address (default: config server.listen)")
	return cmd
}
