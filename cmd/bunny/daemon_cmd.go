package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Health-Informatics-UoN/bunny/internal/bunnyconfig"
	"github.com/Health-Informatics-UoN/bunny/internal/bunnydb"
	"github.com/Health-Informatics-UoN/bunny/internal/cache"
	"github.com/Health-Informatics-UoN/bunny/internal/daemon"
	"github.com/Health-Informatics-UoN/bunny/internal/protocol"
	"github.com/Health-Informatics-UoN/bunny/internal/solver"
	"github.com/Health-Informatics-UoN/bunny/internal/taskapi"
)

// commonDistributionQueries are the payloads the background refresher
// keeps warm between tasks, one per supported distribution code.
func commonDistributionQueries(collection string) []json.RawMessage {
	return []json.RawMessage{
		json.RawMessage(fmt.Sprintf(`{"code":"DEMOGRAPHICS","analysis":"DISTRIBUTION","uuid":"cache-refresh","owner":"bunny","collection":%q}`, collection)),
		json.RawMessage(fmt.Sprintf(`{"code":"GENERIC","analysis":"DISTRIBUTION","uuid":"cache-refresh","owner":"bunny","collection":%q}`, collection)),
	}
}

func newDaemonCmd() *cobra.Command {
	var maxIterations int

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Poll the coordinator for tasks and submit solved results",
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := bunnyconfig.Load(true)
			if err != nil {
				return err
			}
			logger := newLogger(settings.Logging)
			logger.Info("starting bunny daemon", "version", Version, "collection", settings.TaskAPI.CollectionID)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			shutdownMetrics, err := setupMetrics(ctx, true)
			if err != nil {
				return err
			}
			defer func() {
				sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				shutdownMetrics(sctx)
			}()

			lock, err := daemon.AcquireLock(settings.Cache.Dir, settings.TaskAPI.CollectionID)
			if err != nil {
				return err
			}
			defer lock.Release()

			db, err := bunnydb.Open(ctx, settings.Database, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			cacheSvc, err := cache.New(settings.Cache.Dir, settings.Cache.Enabled, settings.Cache.CacheTTL())
			if err != nil {
				return fmt.Errorf("init cache: %w", err)
			}

			exec := solver.NewExecutor(db.Dialect(), db, cacheSvc, logger,
				settings.Obfuscation.LowNumberSuppressionThreshold,
				settings.Obfuscation.RoundingTarget)

			mods := protocol.DefaultModifiers(
				settings.Obfuscation.LowNumberSuppressionThreshold,
				settings.Obfuscation.RoundingTarget)

			client := taskapi.NewClient(
				settings.TaskAPI.BaseURL,
				settings.TaskAPI.Username,
				settings.TaskAPI.Password,
				taskapi.WithLogger(logger),
			)

			handler := daemon.NewHandler(exec, client, mods, logger)
			poller := daemon.NewPoller(client, handler.Handle, daemon.PollerConfig{
				Collection:      settings.TaskAPI.CollectionID,
				TaskType:        settings.TaskAPI.Type,
				PollingInterval: settings.Polling.Interval,
				InitialBackoff:  settings.Polling.InitialBackoff,
				MaxBackoff:      settings.Polling.MaxBackoff,
			}, logger)

			refresher := cache.NewRefresher(cacheSvc, settings.Cache.CacheTTL(), func(rctx context.Context) error {
				for _, q := range commonDistributionQueries(settings.TaskAPI.CollectionID) {
					if _, err := exec.Execute(rctx, q, mods); err != nil {
						return err
					}
				}
				return nil
			}, logger)

			g, gctx := errgroup.WithContext(ctx)
			refresher.Start(gctx)
			g.Go(func() error {
				poller.Run(gctx, maxIterations)
				return nil
			})

			err = g.Wait()
			refresher.Stop()
			return err
		},
	}

	cmd.Flags().IntVar(&maxIterations, "max-iterations", 0, "Stop after N polling iterations (0 = run forever)")

	return cmd
}
