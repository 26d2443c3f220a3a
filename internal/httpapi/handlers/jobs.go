package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pdfbot/internal/httpkit"
	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/queue"
)

type CreateJobRequest struct {
	URL  string         `json:"url"`
	Meta map[string]any `json:"meta"`
}

// JobResponse is a job with its derived status.
type JobResponse struct {
	*models.Job
	Status models.Status `json:"status"`
}

func (h *Handler) view(j *models.Job) JobResponse {
	return JobResponse{Job: j, Status: j.Status(h.maxTries)}
}

func (h *Handler) PostJob(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()

	var req CreateJobRequest
	if err := httpkit.DecodeJSON(r, &req); err != nil {
		return errors.Validation("invalid json body").WithField("reason", err.Error())
	}

	job, err := h.engine.AddToQueue(ctx, req.URL, req.Meta)
	if err != nil {
		return err
	}

	if h.announcer != nil {
		if err := h.announcer.Push(ctx, job.ID); err != nil {
			// the scheduled batch still picks the job up
			h.log.FromContext(ctx).Warn("job announcement failed", "job_id", job.ID, "error", err.Error())
		}
	}

	httpkit.WriteJSON(w, http.StatusCreated, h.view(job))
	return nil
}

func (h *Handler) ListJobs(w http.ResponseWriter, r *http.Request) error {
	jobs, err := h.engine.GetList(r.Context(), queue.ListOptions{
		Failed:    httpkit.QueryBool(r, "failed"),
		Completed: httpkit.QueryBool(r, "completed"),
		Limit:     httpkit.QueryInt(r, "limit", 0, 500),
	})
	if err != nil {
		return err
	}

	items := make([]JobResponse, 0, len(jobs))
	for _, j := range jobs {
		items = append(items, h.view(j))
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
	return nil
}

func (h *Handler) GetJob(w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, h.view(job))
	return nil
}

func (h *Handler) ListPings(w http.ResponseWriter, r *http.Request) error {
	job, err := h.lookup(r)
	if err != nil {
		return err
	}
	httpkit.WriteJSON(w, http.StatusOK, map[string]any{"items": job.Pings})
	return nil
}

func (h *Handler) lookup(r *http.Request) (*models.Job, error) {
	id := chi.URLParam(r, "jobId")
	job, err := h.engine.GetByID(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errors.NotFound("job", id)
	}
	return job, nil
}
