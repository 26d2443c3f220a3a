// Package batch drives the queue engine over every eligible job with bounded
// concurrency: jobs of a chunk run in parallel, chunks run one after another.
package batch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
	"pdfbot/internal/queue"
	"pdfbot/internal/renderer"
)

const DefaultParallelism = 4

type Runner struct {
	engine      *queue.Engine
	renderer    renderer.Renderer
	notifier    queue.Notifier
	parallelism int
	log         *logger.Logger
}

// New returns a runner. notifier may be nil when no webhook is configured.
func New(engine *queue.Engine, r renderer.Renderer, notifier queue.Notifier, parallelism int, log *logger.Logger) *Runner {
	if parallelism <= 0 {
		parallelism = DefaultParallelism
	}
	if log == nil {
		log = logger.NewDefault()
	}
	return &Runner{
		engine:      engine,
		renderer:    r,
		notifier:    notifier,
		parallelism: parallelism,
		log:         log.WithComponent("batch"),
	}
}

// Summary counts the outcome of one run. Skipped means another run held the
// busy lock and nothing was attempted.
type Summary struct {
	Skipped   bool
	Total     int
	Succeeded int
	Failed    int
	Chunks    int
	Duration  time.Duration
}

// RunGenerations makes one generation attempt for every eligible job.
func (r *Runner) RunGenerations(ctx context.Context) (Summary, error) {
	return r.run(ctx, "generation",
		func(ctx context.Context) ([]*models.Job, error) {
			return r.engine.GetAllUnfinished(ctx, r.engine.GenerationPolicy())
		},
		func(ctx context.Context, job *models.Job) (bool, error) {
			res, err := r.engine.ProcessJob(ctx, r.renderer, job, r.notifier)
			if err != nil {
				return false, err
			}
			return res.Err == nil, nil
		},
	)
}

// RunPings retries the webhook for every completed job still waiting for an
// acknowledged delivery.
func (r *Runner) RunPings(ctx context.Context) (Summary, error) {
	if r.notifier == nil {
		return Summary{}, errors.Configuration("webhook is not configured")
	}
	return r.run(ctx, "ping",
		func(ctx context.Context) ([]*models.Job, error) {
			return r.engine.GetAllWithoutSuccessfulPing(ctx, r.engine.PingPolicy())
		},
		func(ctx context.Context, job *models.Job) (bool, error) {
			ping, err := r.engine.AttemptPing(ctx, job, r.notifier)
			if err != nil {
				if errors.IsFatal(err) {
					return false, err
				}
				return false, nil
			}
			return ping.Succeeded(), nil
		},
	)
}

func (r *Runner) run(
	ctx context.Context,
	kind string,
	selectJobs func(context.Context) ([]*models.Job, error),
	process func(context.Context, *models.Job) (bool, error),
) (sum Summary, err error) {
	start := time.Now()
	log := r.log.With("run", kind)

	acquired, err := r.engine.AcquireBusy(ctx)
	if err != nil {
		return sum, err
	}
	if !acquired {
		log.Info("queue is busy, skipping run")
		return Summary{Skipped: true}, nil
	}
	defer func() {
		if rerr := r.engine.SetIsBusy(context.WithoutCancel(ctx), false); rerr != nil && err == nil {
			err = rerr
		}
		sum.Duration = time.Since(start)
	}()

	jobs, err := selectJobs(ctx)
	if err != nil {
		return sum, err
	}
	sum.Total = len(jobs)
	if len(jobs) == 0 {
		log.Debug("nothing to do")
		return sum, nil
	}

	chunks := Chunk(jobs, r.parallelism)
	log.Info("run started", "jobs", len(jobs), "chunks", len(chunks), "parallelism", r.parallelism)

	for i, c := range chunks {
		if err := ctx.Err(); err != nil {
			log.Info("run interrupted", "chunk", i+1, "chunks", len(chunks))
			return sum, err
		}
		var (
			mu sync.Mutex
			g  errgroup.Group
		)
		for _, job := range c {
			g.Go(func() error {
				ok, err := process(ctx, job)
				if err != nil {
					return err
				}
				mu.Lock()
				if ok {
					sum.Succeeded++
				} else {
					sum.Failed++
				}
				mu.Unlock()
				return nil
			})
		}

		// jobs already in flight settle before a fatal error aborts the run
		if err := g.Wait(); err != nil {
			log.Error("run aborted", "chunk", i+1, "error", err.Error())
			return sum, err
		}
		sum.Chunks++
	}

	log.Info("run finished", "succeeded", sum.Succeeded, "failed", sum.Failed)
	return sum, nil
}

// Chunk splits jobs into consecutive groups of at most size.
func Chunk(jobs []*models.Job, size int) [][]*models.Job {
	if size <= 0 {
		size = 1
	}
	var out [][]*models.Job
	for len(jobs) > 0 {
		n := min(size, len(jobs))
		out = append(out, jobs[:n])
		jobs = jobs[n:]
	}
	return out
}
