// Package queue owns the durable job list and its lifecycle.
//
// Every mutation reloads the document, applies the change to the job by id
// and saves through Backend.Update, which holds a lock shared with other
// processes. The api, the worker and CLI commands therefore never overwrite
// each other's history. Reads return deep copies.
package queue

import (
	"context"
	"net/url"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
	"pdfbot/internal/ports"
	"pdfbot/internal/queue/store"
	"pdfbot/internal/renderer"
	"pdfbot/internal/retry"
)

// Notifier delivers one webhook notification. *webhook.Dispatcher satisfies it.
type Notifier interface {
	Send(ctx context.Context, job *models.Job) models.Ping
}

type Options struct {
	Backend          store.Backend
	Storage          ports.StoragePlugin
	Logger           *logger.Logger
	GenerationPolicy retry.Policy
	PingPolicy       retry.Policy
	// RenderOptions are forwarded to the renderer on every attempt.
	RenderOptions map[string]any
	Now           func() time.Time
}

type Engine struct {
	mu         sync.Mutex
	backend    store.Backend
	storage    ports.StoragePlugin
	log        *logger.Logger
	genPolicy  retry.Policy
	pingPolicy retry.Policy
	renderOpts map[string]any
	now        func() time.Time
}

func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.Configuration("queue: backend is required")
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewDefault()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.GenerationPolicy.MaxTries <= 0 {
		opts.GenerationPolicy = retry.DefaultPolicy()
	}
	if opts.PingPolicy.MaxTries <= 0 {
		opts.PingPolicy = retry.DefaultPolicy()
	}

	log := opts.Logger.WithComponent("queue")
	for name, p := range map[string]retry.Policy{"generation": opts.GenerationPolicy, "ping": opts.PingPolicy} {
		if p.OutlivesSchedule() {
			log.Info("retry schedule is shorter than max tries, remaining attempts retry immediately",
				"policy", name, "max_tries", p.MaxTries)
		}
	}

	return &Engine{
		backend:    opts.Backend,
		storage:    opts.Storage,
		log:        log,
		genPolicy:  opts.GenerationPolicy,
		pingPolicy: opts.PingPolicy,
		renderOpts: opts.RenderOptions,
		now:        opts.Now,
	}, nil
}

func (e *Engine) GenerationPolicy() retry.Policy { return e.genPolicy }
func (e *Engine) PingPolicy() retry.Policy       { return e.pingPolicy }

func (e *Engine) Close() error {
	return e.backend.Close()
}

func (e *Engine) view(ctx context.Context, fn func(doc *store.Document)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	doc, err := e.backend.Load(ctx)
	if err != nil {
		return err
	}
	fn(doc)
	return nil
}

func (e *Engine) update(ctx context.Context, fn func(doc *store.Document) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.backend.Update(ctx, store.UpdateFunc(fn))
}

// AddToQueue appends a new job for url.
func (e *Engine) AddToQueue(ctx context.Context, rawURL string, meta map[string]any) (*models.Job, error) {
	if err := validateURL(rawURL); err != nil {
		return nil, err
	}

	job := models.NewJob(rawURL, meta, e.now())
	err := e.update(ctx, func(doc *store.Document) error {
		doc.Queue = append(doc.Queue, job)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("job queued", "job_id", job.ID, "url", job.URL)
	return job.Clone(), nil
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.ValidationField("url", "url is required")
	}
	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.ValidationField("url", "url must be an absolute http(s) url")
	}
	return nil
}

// GetByID returns nil, nil when no job has the id.
func (e *Engine) GetByID(ctx context.Context, id string) (*models.Job, error) {
	var job *models.Job
	err := e.view(ctx, func(doc *store.Document) {
		if i := doc.Find(id); i >= 0 {
			job = doc.Queue[i].Clone()
		}
	})
	return job, err
}

type ListOptions struct {
	Failed    bool
	Completed bool
	// Limit caps the result; zero means no limit.
	Limit int
}

// GetList returns jobs most recent first. Failed and Completed filter by
// status; both together return their union, neither returns everything.
func (e *Engine) GetList(ctx context.Context, opts ListOptions) ([]*models.Job, error) {
	maxTries := e.genPolicy.MaxTries

	var out []*models.Job
	err := e.view(ctx, func(doc *store.Document) {
		for i := len(doc.Queue) - 1; i >= 0; i-- {
			j := doc.Queue[i]
			if opts.Failed || opts.Completed {
				keep := (opts.Failed && j.Failed(maxTries)) || (opts.Completed && j.Completed())
				if !keep {
					continue
				}
			}
			out = append(out, j.Clone())
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.After(out[b].CreatedAt)
	})
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out, nil
}

// GetNext returns the oldest job eligible for a generation attempt, or nil.
func (e *Engine) GetNext(ctx context.Context, policy retry.Policy) (*models.Job, error) {
	jobs, err := e.GetAllUnfinished(ctx, policy)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// GetAllUnfinished returns every job eligible for a generation attempt,
// oldest first.
func (e *Engine) GetAllUnfinished(ctx context.Context, policy retry.Policy) ([]*models.Job, error) {
	return e.selectJobs(ctx, func(j *models.Job, now time.Time) bool {
		return !j.Completed() && policy.Eligible(j, j.GenerationAttempts(), now)
	})
}

// GetNextWithoutSuccessfulPing returns the oldest completed job whose
// webhook has not been acknowledged and whose ping schedule allows an attempt.
func (e *Engine) GetNextWithoutSuccessfulPing(ctx context.Context, policy retry.Policy) (*models.Job, error) {
	jobs, err := e.GetAllWithoutSuccessfulPing(ctx, policy)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

func (e *Engine) GetAllWithoutSuccessfulPing(ctx context.Context, policy retry.Policy) ([]*models.Job, error) {
	return e.selectJobs(ctx, func(j *models.Job, now time.Time) bool {
		return j.Completed() && !j.HasSuccessfulPing() && policy.Eligible(j, j.PingAttempts(), now)
	})
}

func (e *Engine) selectJobs(ctx context.Context, eligible func(*models.Job, time.Time) bool) ([]*models.Job, error) {
	now := e.now()

	var out []*models.Job
	err := e.view(ctx, func(doc *store.Document) {
		for _, j := range doc.Queue {
			if eligible(j, now) {
				out = append(out, j.Clone())
			}
		}
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(a, b int) bool {
		return out[a].CreatedAt.Before(out[b].CreatedAt)
	})
	return out, nil
}

// Result describes one generation attempt. Err carries the domain failure
// (render, storage, conflict) and is also recorded on the generation.
type Result struct {
	Job        *models.Job
	Generation *models.Generation
	Ping       *models.Ping
	Err        error
}

// ProcessJob makes one generation attempt for job. On success the artifact
// is stored, completed_at is set and, when n is non-nil, one ping is sent.
// The returned error is reserved for fatal failures and for a ctx that is
// already done, in which case nothing is attempted. Canceling ctx after the
// attempt has started does not interrupt it.
func (e *Engine) ProcessJob(ctx context.Context, r renderer.Renderer, job *models.Job, n Notifier) (*Result, error) {
	if e.storage == nil {
		return nil, errors.Configuration("queue: storage plugin is required to process jobs")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	log := e.log.WithJobID(job.ID)
	// Once started, an attempt runs to completion and is recorded. The
	// renderer and storage plugins bound it with their own timeouts.
	ctx = context.WithoutCancel(logger.ContextWithJobID(ctx, job.ID))

	current, err := e.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return &Result{Job: job, Err: errors.NotFound("job", job.ID)}, nil
	}
	if current.Completed() {
		return &Result{Job: current, Err: errors.New(errors.CodeConflict, "job already completed").WithField("job_id", job.ID)}, nil
	}

	gen := models.Generation{ID: uuid.NewString(), AttemptedAt: e.now().UTC()}

	var attemptErr error
	localPath, err := r.Render(ctx, current.URL, e.renderOpts)
	if err != nil {
		attemptErr = classify(err, errors.CodeRender, "queue.process", "render failed")
	} else {
		loc, err := e.storage.Upload(ctx, localPath, current)
		if err != nil {
			attemptErr = classify(err, errors.CodeStorage, "queue.process", "upload failed")
			// the next attempt renders again
			_ = os.Remove(localPath)
		} else {
			gen.Success = true
			gen.Location = &loc
		}
	}
	if attemptErr != nil {
		gen.Error = attemptErr.Error()
	}

	updated, err := e.appendGeneration(ctx, job.ID, gen)
	if err != nil {
		if errors.IsFatal(err) {
			return nil, err
		}
		if gen.Success {
			log.Warn("stored artifact is orphaned", "location", gen.Location.String(), "error", err.Error())
		}
		return &Result{Job: current, Generation: &gen, Err: err}, nil
	}

	res := &Result{Job: updated, Generation: &gen, Err: attemptErr}
	if attemptErr != nil {
		log.Warn("generation failed",
			"attempt", len(updated.Generations),
			"max_tries", e.genPolicy.MaxTries,
			"error", attemptErr.Error())
		return res, nil
	}

	log.Info("generation succeeded", "location", gen.Location.String())
	if n == nil {
		return res, nil
	}

	ping, err := e.AttemptPing(ctx, updated, n)
	if err != nil {
		if errors.IsFatal(err) {
			return res, err
		}
		log.Warn("ping skipped", "error", err.Error())
		return res, nil
	}
	res.Ping = ping
	if refreshed, err := e.GetByID(ctx, job.ID); err == nil && refreshed != nil {
		res.Job = refreshed
	}
	return res, nil
}

// classify keeps an existing domain code and assigns code to anything else.
func classify(err error, code errors.Code, op, msg string) error {
	if c := errors.GetCode(err); c != errors.CodeInternal {
		return errors.Wrap(err, op, msg)
	}
	return errors.WrapWithCode(err, code, op, msg)
}

func (e *Engine) appendGeneration(ctx context.Context, id string, gen models.Generation) (*models.Job, error) {
	var updated *models.Job
	err := e.update(ctx, func(doc *store.Document) error {
		i := doc.Find(id)
		if i < 0 {
			return errors.NotFound("job", id)
		}
		j := doc.Queue[i]
		if j.Completed() {
			return errors.New(errors.CodeConflict, "job already completed").WithField("job_id", id)
		}
		j.Generations = append(j.Generations, gen)
		if gen.Success {
			t := gen.AttemptedAt
			j.CompletedAt = &t
		}
		updated = j.Clone()
		return nil
	})
	return updated, err
}

// AttemptPing sends one webhook notification for a completed job and records
// it. Delivery failures are reported in the returned Ping.
func (e *Engine) AttemptPing(ctx context.Context, job *models.Job, n Notifier) (*models.Ping, error) {
	if n == nil {
		return nil, errors.Configuration("webhook is not configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	// the dispatcher's own timeout bounds a delivery already under way
	ctx = context.WithoutCancel(ctx)

	current, err := e.GetByID(ctx, job.ID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, errors.NotFound("job", job.ID)
	}
	if !current.Completed() {
		return nil, errors.New(errors.CodeConflict, "job has no successful generation").WithField("job_id", job.ID)
	}

	ping := n.Send(ctx, current)
	if ping.ID == "" {
		ping.ID = uuid.NewString()
	}
	if ping.SentAt.IsZero() {
		ping.SentAt = e.now().UTC()
	}

	err = e.update(ctx, func(doc *store.Document) error {
		i := doc.Find(job.ID)
		if i < 0 {
			return errors.NotFound("job", job.ID)
		}
		doc.Queue[i].Pings = append(doc.Queue[i].Pings, ping)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log := e.log.WithJobID(job.ID)
	if ping.Succeeded() {
		log.Info("webhook delivered", "status", ping.Status, "url", ping.URL)
	} else {
		log.Warn("webhook delivery failed", "status", ping.Status, "url", ping.URL, "error", ping.Error)
	}
	return &ping, nil
}

type PurgeOptions struct {
	Failed bool
	New    bool
}

// Purge always removes completed jobs, plus failed and never-attempted jobs
// when asked. It returns the number of jobs removed.
func (e *Engine) Purge(ctx context.Context, opts PurgeOptions) (int, error) {
	maxTries := e.genPolicy.MaxTries

	removed := 0
	err := e.update(ctx, func(doc *store.Document) error {
		kept := doc.Queue[:0]
		for _, j := range doc.Queue {
			drop := j.Completed() ||
				(opts.Failed && j.Failed(maxTries)) ||
				(opts.New && len(j.Generations) == 0)
			if drop {
				removed++
				continue
			}
			kept = append(kept, j)
		}
		doc.Queue = kept
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("queue purged", "removed", removed, "failed", opts.Failed, "new", opts.New)
	return removed, nil
}

func (e *Engine) IsBusy(ctx context.Context) (bool, error) {
	var busy bool
	err := e.view(ctx, func(doc *store.Document) { busy = doc.IsBusy })
	return busy, err
}

func (e *Engine) SetIsBusy(ctx context.Context, busy bool) error {
	return e.update(ctx, func(doc *store.Document) error {
		doc.IsBusy = busy
		return nil
	})
}

// AcquireBusy sets the busy flag if it is clear and reports whether this
// call took it.
func (e *Engine) AcquireBusy(ctx context.Context) (bool, error) {
	acquired := false
	err := e.update(ctx, func(doc *store.Document) error {
		if !doc.IsBusy {
			doc.IsBusy = true
			acquired = true
		}
		return nil
	})
	return acquired, err
}
