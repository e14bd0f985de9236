package store

import (
	"context"
	"fmt"
)

// Backend stores the serialized bytes of a single document.
//
// Load returns ErrNotFound when nothing has been saved. Save must be atomic:
// after a failed or interrupted Save, Load still returns the previous bytes.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, data []byte) error
	Close() error
}

// Backend kinds accepted by OpenBackend.
const (
	KindFile   = "file"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// OpenBackend opens a backend of the given kind at path.
// path is ignored for the memory backend.
func OpenBackend(kind, path string) (Backend, error) {
	switch kind {
	case KindFile:
		return NewFileBackend(path), nil
	case KindSQLite:
		return OpenSQLite(path)
	case KindMemory:
		return NewMemoryBackend(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q (want %s, %s or %s)", kind, KindFile, KindSQLite, KindMemory)
	}
}
