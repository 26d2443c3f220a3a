package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"pdfbot/internal/models"
	"pdfbot/internal/pkg/errors"
)

const Name = "local"

// LocalFS implements ports.StoragePlugin by moving artifacts into a
// directory, normally <storagePath>/pdf.
type LocalFS struct {
	root string
}

func New(root string) *LocalFS {
	return &LocalFS{root: root}
}

func (l *LocalFS) Name() string { return Name }

func (l *LocalFS) Upload(ctx context.Context, localPath string, job *models.Job) (models.Location, error) {
	if localPath == "" {
		return models.Location{}, errors.New(errors.CodeStorage, "local path is required")
	}
	if err := os.MkdirAll(l.root, 0o755); err != nil {
		return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.upload", "create pdf directory")
	}

	dst := filepath.Join(l.root, filepath.Base(localPath))
	if err := os.Rename(localPath, dst); err != nil {
		// tmp and pdf may live on different devices
		if err := copyFile(localPath, dst); err != nil {
			return models.Location{}, errors.WrapWithCode(err, errors.CodeStorage, "localfs.upload", "store artifact").
				WithField("job_id", job.ID)
		}
		_ = os.Remove(localPath)
	}

	return models.Location{Provider: Name, Path: dst}, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
