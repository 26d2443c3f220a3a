package handlers

import (
	"context"

	"pdfbot/internal/pkg/logger"
	"pdfbot/internal/queue"
)

// Announcer tells the worker that a job was queued. Optional.
type Announcer interface {
	Push(ctx context.Context, jobID string) error
}

type Deps struct {
	Engine      *queue.Engine
	Announcer   Announcer
	StorageName string
	Log         *logger.Logger
}

type Handler struct {
	engine      *queue.Engine
	announcer   Announcer
	storageName string
	maxTries    int
	log         *logger.Logger
}

func New(d Deps) *Handler {
	log := d.Log
	if log == nil {
		log = logger.NewDefault()
	}
	return &Handler{
		engine:      d.Engine,
		announcer:   d.Announcer,
		storageName: d.StorageName,
		maxTries:    d.Engine.GenerationPolicy().MaxTries,
		log:         log.WithComponent("api"),
	}
}
