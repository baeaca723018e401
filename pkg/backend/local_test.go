package backend

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// exerciseBackend runs the contract every Backend must honour.
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	w, err := b.Create(ctx, "docs/report.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("0123456789"))
	require.NoError(t, err)
	_, err = w.Seek(2, io.SeekStart)
	require.NoError(t, err)
	_, err = w.Write([]byte("ab"))
	require.NoError(t, err)
	_, err = w.Seek(0, io.SeekEnd)
	require.NoError(t, err)

	names, err := b.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, names, "object visible before Close")

	require.NoError(t, w.Close())
	require.NoError(t, w.Close())

	obj, err := b.Open(ctx, "docs/report.bin")
	require.NoError(t, err)
	assert.Equal(t, int64(10), obj.Size())
	buf := make([]byte, 4)
	n, err := obj.ReadAt(buf, 1)
	require.NoError(t, err)
	assert.Equal(t, "1ab4", string(buf[:n]))
	n, err = obj.ReadAt(buf, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, "89", string(buf[:n]))
	_, err = obj.ReadAt(buf, 10)
	assert.ErrorIs(t, err, io.EOF)
	require.NoError(t, obj.Close())

	aborted, err := b.Create(ctx, "docs/aborted.bin")
	require.NoError(t, err)
	_, err = aborted.Write([]byte("partial"))
	require.NoError(t, err)
	require.NoError(t, aborted.Abort())
	require.NoError(t, aborted.Close())
	_, err = b.Open(ctx, "docs/aborted.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, name := range []string{"b.bin", "a.bin", "docs/z.bin"} {
		w, err := b.Create(ctx, name)
		require.NoError(t, err)
		require.NoError(t, w.Close())
	}
	names, err = b.List(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.bin", "b.bin", "docs/report.bin", "docs/z.bin"}, names)
	names, err = b.List(ctx, "docs/")
	require.NoError(t, err)
	assert.Equal(t, []string{"docs/report.bin", "docs/z.bin"}, names)

	require.NoError(t, b.Delete(ctx, "a.bin"))
	assert.ErrorIs(t, b.Delete(ctx, "a.bin"), ErrNotFound)
	_, err = b.Open(ctx, "missing.bin")
	assert.ErrorIs(t, err, ErrNotFound)

	for _, bad := range []string{"", "/abs", "../escape", "a/../../b", ".hidden", "dir/.tmp", `win\path`} {
		_, err := b.Create(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
		_, err = b.Open(ctx, bad)
		assert.ErrorIs(t, err, ErrInvalidName, bad)
	}
}

func TestLocalBackend(t *testing.T) {
	b, err := NewLocalBackend(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestLocalBackendFilePermissions(t *testing.T) {
	root := t.TempDir()
	b, err := NewLocalBackend(root)
	require.NoError(t, err)

	w, err := b.Create(context.Background(), "secret.bin")
	require.NoError(t, err)
	_, err = w.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(filepath.Join(root, "secret.bin"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestLocalBackendCanceledContext(t *testing.T) {
	b, err := NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.Create(ctx, "x.bin")
	assert.ErrorIs(t, err, context.Canceled)
	_, err = b.Open(ctx, "x.bin")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCleanName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a.bin", "a.bin"},
		{"dir//a.bin", "dir/a.bin"},
		{"dir/./a.bin", "dir/a.bin"},
		{"dir/sub/../a.bin", "dir/a.bin"},
	}
	for _, tt := range tests {
		got, err := CleanName(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
