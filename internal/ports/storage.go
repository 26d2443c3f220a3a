package ports

import (
	"context"

	"pdfbot/internal/models"
)

// StoragePlugin durably places a rendered artifact and reports where it went.
// Implementations: local, s3, gdrive.
type StoragePlugin interface {
	Name() string

	// Upload stores the file at localPath for job. A failure is recorded as a
	// failed generation; the caller removes localPath so the retry re-renders.
	Upload(ctx context.Context, localPath string, job *models.Job) (models.Location, error)
}
