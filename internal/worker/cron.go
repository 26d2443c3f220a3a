package worker

import (
	"github.com/robfig/cron/v3"

	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/pkg/logger"
)

var cronParser = cron.NewParser(
	cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// ValidateSchedule reports whether expr is a usable cron spec.
func ValidateSchedule(expr string) error {
	if _, err := cronParser.Parse(expr); err != nil {
		return errors.WrapWithCode(err, errors.CodeConfiguration, "worker.schedule", "invalid schedule "+expr)
	}
	return nil
}

// cronLogger routes robfig/cron logs through slog.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, "error", err.Error())...)
}
