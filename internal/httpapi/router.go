package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"pdfbot/internal/httpapi/handlers"
	"pdfbot/internal/httpkit"
	"pdfbot/internal/pkg/logger"
	"pdfbot/internal/pkg/middleware"
	"pdfbot/internal/queue"
)

type Deps struct {
	Engine      *queue.Engine
	Announcer   handlers.Announcer
	StorageName string
	// Token enables bearer authentication on every route but /health.
	Token       string
	CORSOrigins []string
	Log         *logger.Logger
}

func NewRouter(d Deps) http.Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging(log))
	r.Use(middleware.Recovery(log))
	r.Use(httpkit.CORS(httpkit.CORSOptions{AllowedOrigins: d.CORSOrigins}))

	h := handlers.New(handlers.Deps{
		Engine:      d.Engine,
		Announcer:   d.Announcer,
		StorageName: d.StorageName,
		Log:         log,
	})
	wrap := func(fn middleware.ErrorHandlerFunc) http.HandlerFunc {
		return middleware.WrapHandler(log, fn)
	}

	// ---- HEALTH ----
	r.Get("/health", h.Health)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(d.Token, log))

		// ---- JOBS ----
		r.Post("/", wrap(h.PostJob))
		r.Get("/jobs", wrap(h.ListJobs))
		r.Get("/jobs/{jobId}", wrap(h.GetJob))
		r.Get("/jobs/{jobId}/pings", wrap(h.ListPings))
	})

	return r
}
