package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// FileBackend keeps the document in a single file that is replaced
// atomically on every save.
type FileBackend struct {
	path string
	perm os.FileMode

	// write copies data into the temp file. Replaced in tests to simulate a
	// crash partway through a save.
	write func(w io.Writer, data []byte) error
}

// NewFileBackend returns a backend for the file at path. The file and its
// directory are created on first save.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path, perm: 0o644, write: copyAll}
}

func copyAll(w io.Writer, data []byte) error {
	_, err := io.Copy(w, bytes.NewReader(data))
	return err
}

// Path returns the document file path.
func (b *FileBackend) Path() string {
	return b.path
}

// Load reads the whole file.
func (b *FileBackend) Load(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, b.path)
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Save writes data to a temp file in the same directory, syncs it, and
// renames it over the document file. The directory is synced afterwards so
// the rename itself is durable.
func (b *FileBackend) Save(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := b.write(tmp, data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(b.perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	// Last point at which the save can be abandoned.
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

// Close is a no-op; the file is not held open between calls.
func (b *FileBackend) Close() error {
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
