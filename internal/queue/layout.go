package queue

import (
	"os"
	"path/filepath"

	"pdfbot/internal/pkg/errors"
)

// Layout is the on-disk structure under the storage path.
type Layout struct {
	Root string
}

func (l Layout) DBDir() string  { return filepath.Join(l.Root, "db") }
func (l Layout) PDFDir() string { return filepath.Join(l.Root, "pdf") }
func (l Layout) TmpDir() string { return filepath.Join(l.Root, "tmp") }

// Create makes every directory of the layout.
func (l Layout) Create() error {
	for _, dir := range []string{l.Root, l.DBDir(), l.PDFDir(), l.TmpDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Persistence(err, "layout.create", "create "+dir)
		}
	}
	return nil
}

// Check verifies that the storage path was installed. tmp is created lazily.
func (l Layout) Check() error {
	if l.Root == "" {
		return errors.Configuration("storage path is not configured")
	}
	for _, dir := range []string{l.Root, l.DBDir(), l.PDFDir()} {
		st, err := os.Stat(dir)
		if err != nil || !st.IsDir() {
			return errors.Configurationf("storage directory %s is missing, run install first", dir).
				WithField("path", dir)
		}
	}
	return os.MkdirAll(l.TmpDir(), 0o755)
}
