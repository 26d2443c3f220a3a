package worker

import (
	"context"
	"time"

	"pdfbot/internal/batch"
	"pdfbot/internal/pkg/logger"
)

// Waker delivers ids of freshly queued jobs. *queue.RedisQueue satisfies it.
type Waker interface {
	Pop(ctx context.Context, timeout time.Duration) (string, error)
}

type Deps struct {
	Runner *batch.Runner
	// Wake is optional; without it the worker only runs on schedule.
	Wake Waker
	// BatchSchedule and PingSchedule are cron specs ("@every 1m", "*/5 * * * *").
	// An empty PingSchedule disables ping retries.
	BatchSchedule string
	PingSchedule  string
	WakeTimeout   time.Duration
	Log           *logger.Logger
}
