package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pdfbot/internal/config"
	"pdfbot/internal/httpapi"
	"pdfbot/internal/httpapi/handlers"
	"pdfbot/internal/httpkit"
	"pdfbot/internal/pkg/shutdown"
	"pdfbot/internal/worker"
)

const shutdownTimeout = 30 * time.Second

func apiCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "api",
		Short: "Serve the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.log.WithComponent("api")
			mgr := shutdown.NewManager(log, shutdownTimeout)

			// Jobs are only queued here; the storage plugin is not needed.
			engine, err := a.openEngine(cmd.Context(), false)
			if err != nil {
				return err
			}
			mgr.Register("queue", func(context.Context) error { return engine.Close() })

			wake, closeWake, err := a.wakeQueue(cmd.Context())
			if err != nil {
				mgr.Shutdown()
				return err
			}
			mgr.Register("redis", func(context.Context) error { return closeWake() })

			var announcer handlers.Announcer
			if wake != nil {
				announcer = wake
			}

			router := httpapi.NewRouter(httpapi.Deps{
				Engine:      engine,
				Announcer:   announcer,
				StorageName: a.cfg.Storage.Provider,
				Token:       a.cfg.API.Token,
				CORSOrigins: httpkit.SplitCSV(os.Getenv("CORS_ORIGINS")),
				Log:         log,
			})

			server := &http.Server{
				Addr:         "0.0.0.0:" + a.cfg.API.Port,
				Handler:      router,
				ReadTimeout:  30 * time.Second,
				WriteTimeout: 60 * time.Second,
				IdleTimeout:  120 * time.Second,
			}
			mgr.Register("http-server", func(ctx context.Context) error {
				log.Info("shutting down HTTP server")
				return server.Shutdown(ctx)
			})

			serveErr := make(chan error, 1)
			go func() {
				log.Info("HTTP server listening", "addr", server.Addr)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					serveErr <- err
				}
				close(serveErr)
			}()

			ctx, stop := mgr.Context(cmd.Context())
			defer stop()

			select {
			case err := <-serveErr:
				mgr.Shutdown()
				return err
			case <-ctx.Done():
			}
			return mgr.Shutdown()
		},
	}
	return cmd
}

func workerCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run scheduled batches, woken early when jobs are announced on Redis",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := a.log.WithComponent("worker")
			mgr := shutdown.NewManager(log, shutdownTimeout)

			engine, err := a.openEngine(cmd.Context(), true)
			if err != nil {
				return err
			}
			mgr.Register("queue", func(context.Context) error { return engine.Close() })

			runner, err := a.runner(engine)
			if err != nil {
				mgr.Shutdown()
				return err
			}

			wake, closeWake, err := a.wakeQueue(cmd.Context())
			if err != nil {
				mgr.Shutdown()
				return err
			}
			mgr.Register("redis", func(context.Context) error { return closeWake() })

			deps := worker.Deps{
				Runner:        runner,
				BatchSchedule: a.cfg.Worker.BatchSchedule,
				PingSchedule:  pingSchedule(a.cfg),
				WakeTimeout:   a.cfg.Worker.WakeTimeout.Duration,
				Log:           log,
			}
			if wake != nil {
				deps.Wake = wake
			}

			ctx, stop := mgr.Context(cmd.Context())
			defer stop()

			runErr := worker.Run(ctx, deps)
			if err := mgr.Shutdown(); err != nil && runErr == nil {
				runErr = err
			}
			return runErr
		},
	}
	return cmd
}

// pingSchedule disables ping retries when there is nowhere to send them.
func pingSchedule(cfg *config.Config) string {
	if !cfg.WebhookEnabled() {
		return ""
	}
	return cfg.Worker.PingSchedule
}
