package store

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_LoadMissing(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "sheet.json"))

	_, err := b.Load(context.Background())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileBackend_SaveCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "sheet.json")
	b := NewFileBackend(path)

	require.NoError(t, b.Save(context.Background(), []byte("hello")))

	got, err := b.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
}

func TestFileBackend_SaveReplaces(t *testing.T) {
	b := NewFileBackend(filepath.Join(t.TempDir(), "sheet.json"))
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, []byte("first version, longer")))
	require.NoError(t, b.Save(ctx, []byte("second")))

	got, err := b.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}

func TestFileBackend_InterruptedSaveKeepsPrior(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.json")
	b := NewFileBackend(path)
	ctx := context.Background()

	require.NoError(t, b.Save(ctx, []byte("prior contents")))

	crash := errors.New("power lost")
	b.write = func(w io.Writer, data []byte) error {
		_, _ = w.Write(data[:len(data)/2])
		return crash
	}
	err := b.Save(ctx, []byte("replacement contents"))
	require.Error(t, err)
	assert.ErrorIs(t, err, crash)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prior contents", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestFileBackend_CancelledBeforeRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sheet.json")
	b := NewFileBackend(path)

	require.NoError(t, b.Save(context.Background(), []byte("prior")))

	ctx, cancel := context.WithCancel(context.Background())
	b.write = func(w io.Writer, data []byte) error {
		cancel()
		return copyAll(w, data)
	}
	err := b.Save(ctx, []byte("late"))
	assert.ErrorIs(t, err, context.Canceled)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "prior", string(got))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestMemoryBackend(t *testing.T) {
	m := NewMemoryBackend()
	ctx := context.Background()

	_, err := m.Load(ctx)
	assert.ErrorIs(t, err, ErrNotFound)

	data := []byte("abc")
	require.NoError(t, m.Save(ctx, data))
	data[0] = 'x'

	got, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, 1, m.Saves())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, m.Save(cancelled, []byte("z")), context.Canceled)
	assert.Equal(t, 1, m.Saves())
}

func TestOpenBackend(t *testing.T) {
	dir := t.TempDir()

	for _, kind := range []string{KindFile, KindSQLite, KindMemory} {
		b, err := OpenBackend(kind, filepath.Join(dir, "sheet."+kind))
		require.NoError(t, err, kind)
		require.NoError(t, b.Close(), kind)
	}

	_, err := OpenBackend("postgres", "")
	assert.ErrorContains(t, err, `unknown backend "postgres"`)
}
