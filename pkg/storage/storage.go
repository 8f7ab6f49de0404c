// Package storage abstracts where trained model files live. A FileStore
// can be a local directory, an S3 bucket, or memory (tests).
//
// Writes are all-or-nothing: a file becomes visible to readers only when
// the writer is closed successfully. Readers therefore never observe a
// half-written model.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// FileStore is a minimal interface for file-oriented storage.
//
// Paths are forward-slash separated and relative to the store root.
// Implementations must be safe for concurrent use.
type FileStore interface {
	// Read opens the named file for reading.
	// The caller must close the returned ReadCloser when done.
	// If the file does not exist, an error wrapping os.ErrNotExist is returned.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write opens the named file for writing. The content replaces any
	// existing file atomically when the writer is closed.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file. Missing files are not an error.
	Delete(ctx context.Context, path string) error

	// Exists reports whether the named file exists.
	Exists(ctx context.Context, path string) (bool, error)
}

// ErrInvalidPath is returned for paths that are absolute or escape the
// store root.
var ErrInvalidPath = errors.New("storage: invalid path")

// Clean validates p and returns its canonical form.
func Clean(p string) (string, error) {
	if p == "" || strings.HasPrefix(p, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	c := path.Clean(p)
	if c == "." || c == ".." || strings.HasPrefix(c, "../") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, p)
	}
	return c, nil
}

// ReadFile reads a whole file.
func ReadFile(ctx context.Context, fs FileStore, path string) ([]byte, error) {
	r, err := fs.Read(ctx, path)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("storage: read %s: %w", path, err)
	}
	return data, nil
}

// WriteFile writes data as a whole file.
func WriteFile(ctx context.Context, fs FileStore, path string, data []byte) error {
	w, err := fs.Write(ctx, path)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		if a, ok := w.(interface{ Abort() error }); ok {
			a.Abort()
		} else {
			w.Close()
		}
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	return w.Close()
}
