// Package storage builds the configured storage plugin.
package storage

import (
	"context"

	"pdfbot/internal/adapters/storage/gdrive"
	"pdfbot/internal/adapters/storage/localfs"
	"pdfbot/internal/adapters/storage/s3"
	"pdfbot/internal/pkg/errors"
	"pdfbot/internal/ports"
)

type Config struct {
	// Provider is one of local, s3, gdrive. Empty means local.
	Provider string
	// PDFDir is the destination of the local plugin.
	PDFDir string
	S3     s3.Config
	GDrive gdrive.Config
}

// NewPlugin constructs the plugin named by cfg.Provider. Missing credentials
// are reported here rather than on first upload.
func NewPlugin(ctx context.Context, cfg Config) (ports.StoragePlugin, error) {
	switch cfg.Provider {
	case "", localfs.Name, "localfs":
		if cfg.PDFDir == "" {
			return nil, errors.Configuration("local storage requires a pdf directory")
		}
		return localfs.New(cfg.PDFDir), nil

	case s3.Name:
		return s3.New(cfg.S3)

	case gdrive.Name:
		return gdrive.New(ctx, cfg.GDrive)

	default:
		return nil, errors.Configurationf("unknown storage provider: %s", cfg.Provider)
	}
}
