package worker

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"pdfbot/internal/batch"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
)

const defaultWakeTimeout = 5 * time.Second

// Run drives the batch runner on schedule, and immediately whenever a job id
// arrives on d.Wake, until ctx is canceled or a batch hits a fatal error.
func Run(ctx context.Context, d Deps) error {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	log = log.WithComponent("worker")

	if d.Runner == nil {
		return errors.Configuration("worker: batch runner is required")
	}
	if d.WakeTimeout <= 0 {
		d.WakeTimeout = defaultWakeTimeout
	}

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	cl := cronLogger{log: log}
	c := cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(cl),
		cron.WithChain(cron.SkipIfStillRunning(cl)),
	)

	generations := func() { runOnce(ctx, cancel, log, "generation", d.Runner.RunGenerations) }
	if _, err := c.AddFunc(d.BatchSchedule, generations); err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "worker.run", "invalid batch schedule")
	}
	if d.PingSchedule != "" {
		pings := func() { runOnce(ctx, cancel, log, "ping", d.Runner.RunPings) }
		if _, err := c.AddFunc(d.PingSchedule, pings); err != nil {
			return errors.WrapWithCode(err, errors.CodeConfiguration, "worker.run", "invalid ping schedule")
		}
	}

	c.Start()
	log.Info("worker started", "batch_schedule", d.BatchSchedule, "ping_schedule", d.PingSchedule, "wake", d.Wake != nil)
	defer func() {
		<-c.Stop().Done()
		log.Info("worker stopped")
	}()

	if d.Wake == nil {
		<-ctx.Done()
		return stopCause(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			return stopCause(ctx)
		default:
		}

		jobID, err := d.Wake.Pop(ctx, d.WakeTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return stopCause(ctx)
			}
			log.Warn("wake queue pop error, retrying", "error", err.Error())
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
			continue
		}
		if jobID == "" {
			continue
		}

		log.WithJobID(jobID).Info("job announced, running batch")
		generations()
	}
}

// runOnce executes one batch run. A busy queue is not an error; a fatal
// error cancels the worker.
func runOnce(ctx context.Context, cancel context.CancelCauseFunc, log *logger.Logger, kind string, run func(context.Context) (batch.Summary, error)) {
	if ctx.Err() != nil {
		return
	}
	sum, err := run(ctx)
	if err != nil {
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			log.Info("batch interrupted by shutdown", "run", kind)
			return
		}
		if errors.IsFatal(err) {
			log.LogError(ctx, "batch failed, stopping worker", err, "run", kind)
			cancel(err)
			return
		}
		log.LogError(ctx, "batch failed", err, "run", kind)
		return
	}
	if sum.Skipped {
		log.Debug("batch skipped, queue busy", "run", kind)
		return
	}
	if sum.Total > 0 {
		log.Info("batch finished",
			"run", kind,
			"total", sum.Total,
			"succeeded", sum.Succeeded,
			"failed", sum.Failed,
			"duration_ms", sum.Duration.Milliseconds(),
		)
	}
}

// stopCause returns the fatal error that stopped the worker, or nil on a
// regular shutdown.
func stopCause(ctx context.Context) error {
	if cause := context.Cause(ctx); cause != nil && cause != context.Canceled && cause != context.DeadlineExceeded {
		return cause
	}
	return nil
}
