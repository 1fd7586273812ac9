// Package artifacts writes the generated files into the config directory and
// reads back what an earlier run left there.
package artifacts

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/artpar/flowstack/internal/core/credentials"
	"github.com/artpar/flowstack/internal/core/domain"
	"github.com/artpar/flowstack/internal/core/manifest"
	"github.com/joho/godotenv"
	"github.com/moby/sys/atomicwriter"
)

// Directory modes. The config directory holds credentials.
const (
	DirMode os.FileMode = 0o750
)

// Writer manages one config directory.
type Writer struct {
	dir    string
	logger *slog.Logger
}

// NewWriter creates a writer for dir.
func NewWriter(dir string, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{dir: dir, logger: logger.With("component", "artifacts")}
}

// Dir returns the config directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the absolute location of a file relative to the directory.
func (w *Writer) Path(rel string) string {
	return filepath.Join(w.dir, filepath.FromSlash(rel))
}

// Sync writes files in order and removes the stale paths.
//
// Each file replaces its previous version atomically, so a reader sees
// either the old or the new content. Writing an unchanged bundle again
// leaves the directory as it was.
func (w *Writer) Sync(files []manifest.File, stale []string) error {
	if err := os.MkdirAll(w.dir, DirMode); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	for _, f := range files {
		path := w.Path(f.Path)
		if err := os.MkdirAll(filepath.Dir(path), DirMode); err != nil {
			return fmt.Errorf("create directory for %s: %w", f.Path, err)
		}
		if err := atomicwriter.WriteFile(path, f.Content, f.Mode); err != nil {
			return fmt.Errorf("write %s: %w", f.Path, err)
		}
		w.logger.Debug("wrote artifact", "path", f.Path, "bytes", len(f.Content), "secret", f.Secret())
	}

	for _, rel := range stale {
		err := os.Remove(w.Path(rel))
		switch {
		case err == nil:
			w.logger.Info("removed stale artifact", "path", rel)
		case errors.Is(err, fs.ErrNotExist):
		default:
			return fmt.Errorf("remove stale %s: %w", rel, err)
		}
	}

	return nil
}

// ReadEnv returns the values of the env file. A missing file yields an
// empty set.
func (w *Writer) ReadEnv() (credentials.Set, error) {
	values, err := godotenv.Read(w.Path(manifest.EnvFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return credentials.Set{}, nil
		}
		return nil, fmt.Errorf("read env file: %w", err)
	}
	return credentials.Set(values), nil
}

// Read returns the content of a file in the directory.
func (w *Writer) Read(rel string) ([]byte, error) {
	return os.ReadFile(w.Path(rel))
}

// Remove deletes the directory and everything in it, credentials included.
func (w *Writer) Remove() error {
	if err := os.RemoveAll(w.dir); err != nil {
		return fmt.Errorf("remove config directory: %w", err)
	}
	w.logger.Info("removed config directory", "dir", w.dir)
	return nil
}

// =============================================================================
// Inspector
// =============================================================================

// Kind implements the inspector contract.
func (w *Writer) Kind() domain.ResourceKind { return domain.ResourceConfigDir }

// Inspect reports the config directory when it exists and is not empty.
func (w *Writer) Inspect(context.Context) ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("inspect config directory: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return []string{w.dir}, nil
}
