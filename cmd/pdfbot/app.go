package main

import (
	"context"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"pdfbot/internal/batch"
	"pdfbot/internal/config"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
	"pdfbot/internal/queue"
	"pdfbot/internal/queue/store"
	"pdfbot/internal/renderer"
	"pdfbot/internal/storage"
	"pdfbot/internal/webhook"
	wakequeue "pdfbot/internal/worker/queue"
)

// app carries what every command shares: the loaded config and the logger.
type app struct {
	cfgPath string
	cfg     *config.Config
	log     *logger.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "pdfbot",
		Short:         "Queue URLs, render them to PDF, store the result and notify a webhook",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			a.log = logger.New(logger.DefaultConfig())
			cfg, err := config.Load(a.cfgPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&a.cfgPath, "config", "c", "", "config file (default "+config.DefaultFile+" when present)")

	root.AddCommand(
		installCmd(a),
		apiCmd(a),
		workerCmd(a),
		pushCmd(a),
		generateCmd(a),
		shiftCmd(a),
		shiftAllCmd(a),
		jobsCmd(a),
		pingCmd(a),
		pingRetryFailedCmd(a),
		pingsCmd(a),
		purgeCmd(a),
		unlockCmd(a),
		gdriveAuthCmd(),
	)
	return root
}

// openEngine checks the storage layout and opens the queue. withStorage
// also builds the storage plugin, which only processing commands need.
func (a *app) openEngine(ctx context.Context, withStorage bool) (*queue.Engine, error) {
	layout := a.cfg.Layout()
	if err := layout.Check(); err != nil {
		return nil, err
	}

	backend, err := store.Open(a.cfg.QueueBackend, layout.DBDir())
	if err != nil {
		return nil, err
	}

	opts := queue.Options{
		Backend:          backend,
		Logger:           a.log,
		GenerationPolicy: a.cfg.GenerationPolicy(),
		PingPolicy:       a.cfg.PingPolicy(),
		RenderOptions:    a.cfg.Renderer.Options,
	}
	if withStorage {
		plugin, err := storage.NewPlugin(ctx, a.cfg.StorageConfig())
		if err != nil {
			backend.Close()
			return nil, err
		}
		opts.Storage = plugin
	}

	e, err := queue.New(opts)
	if err != nil {
		backend.Close()
		return nil, err
	}
	return e, nil
}

func (a *app) renderer() renderer.Renderer {
	return renderer.NewHTTPClient(a.cfg.Renderer.BaseURL, a.cfg.Layout().TmpDir(), a.cfg.Renderer.Timeout.Duration)
}

// notifier returns nil when no webhook is configured.
func (a *app) notifier() (queue.Notifier, error) {
	if !a.cfg.WebhookEnabled() {
		return nil, nil
	}
	d, err := webhook.New(a.cfg.WebhookConfig())
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (a *app) requireNotifier() (queue.Notifier, error) {
	n, err := a.notifier()
	if err != nil {
		return nil, err
	}
	if n == nil {
		return nil, errors.Configuration("webhook is not configured, set webhook.url or WEBHOOK_URL")
	}
	return n, nil
}

func (a *app) runner(e *queue.Engine) (*batch.Runner, error) {
	n, err := a.notifier()
	if err != nil {
		return nil, err
	}
	return batch.New(e, a.renderer(), n, a.cfg.Queue.Parallelism, a.log), nil
}

// wakeQueue connects to Redis when an address is configured.
func (a *app) wakeQueue(ctx context.Context) (*wakequeue.RedisQueue, func() error, error) {
	if a.cfg.Worker.RedisAddr == "" {
		return nil, func() error { return nil }, nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: a.cfg.Worker.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, nil, errors.WrapWithCode(err, errors.CodeConfiguration, "redis.ping", "redis unreachable")
	}
	return wakequeue.NewRedisQueue(rdb, a.cfg.Worker.QueueName), rdb.Close, nil
}
