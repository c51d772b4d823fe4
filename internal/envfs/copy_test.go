package envfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// renameFailFS fails every Rename so the temp cleanup path runs.
type renameFailFS struct {
	OSFileSystem
	removed []string
}

func (f *renameFailFS) Rename(oldpath, newpath string) error {
	return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrPermission}
}

func (f *renameFailFS) Remove(path string) error {
	f.removed = append(f.removed, path)
	return os.Remove(path)
}

type recordingCopier struct {
	err   error
	calls int
}

func (c *recordingCopier) Copy(ctx context.Context, src, dst string) error {
	c.calls++
	return c.err
}

func TestFileCopier_Copy(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pem")
	dst := filepath.Join(dir, "dst.pem")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0600))

	err := NewFileCopier(nil).Copy(context.Background(), src, dst)
	require.NoError(t, err)

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0600), info.Mode().Perm(), "existing destination keeps its mode")

	_, err = os.Stat(dst + TempSuffix)
	assert.True(t, os.IsNotExist(err), "temp file should be gone after rename")
}

func TestFileCopier_MissingSource(t *testing.T) {
	dir := t.TempDir()
	dst := filepath.Join(dir, "dst.pem")
	require.NoError(t, os.WriteFile(dst, []byte("old"), 0644))

	err := NewFileCopier(nil).Copy(context.Background(), filepath.Join(dir, "missing.pem"), dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)

	data, _ := os.ReadFile(dst)
	assert.Equal(t, "old", string(data), "destination untouched when the source is missing")
}

func TestFileCopier_RenameFailureRemovesTemp(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.pem")
	dst := filepath.Join(dir, "dst.pem")
	require.NoError(t, os.WriteFile(src, []byte("new"), 0644))

	fsys := &renameFailFS{}
	err := NewFileCopier(fsys).Copy(context.Background(), src, dst)
	require.Error(t, err)
	assert.ErrorIs(t, err, fs.ErrPermission)
	assert.Equal(t, []string{dst + TempSuffix}, fsys.removed)
}

func TestFileCopier_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewFileCopier(nil).Copy(ctx, "a", "b")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCommandCopier_Copy(t *testing.T) {
	if _, err := os.Stat("/bin/cp"); err != nil {
		t.Skip("cp not available")
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src.pem")
	dst := filepath.Join(dir, "dst.pem")
	require.NoError(t, os.WriteFile(src, []byte("bundle"), 0644))

	require.NoError(t, NewCommandCopier().Copy(context.Background(), src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "bundle", string(data))

	err = NewCommandCopier().Copy(context.Background(), filepath.Join(dir, "missing"), dst)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cp")
}

func TestFallbackCopier(t *testing.T) {
	tests := []struct {
		name           string
		primaryErr     error
		privilegedErr  error
		wantPrivileged int
		wantErr        bool
	}{
		{name: "primary succeeds", wantPrivileged: 0},
		{name: "permission denied escalates", primaryErr: fs.ErrPermission, wantPrivileged: 1},
		{name: "other errors do not escalate", primaryErr: errors.New("disk full"), wantPrivileged: 0, wantErr: true},
		{name: "escalation failure surfaces", primaryErr: fs.ErrPermission, privilegedErr: errors.New("sudo: a password is required"), wantPrivileged: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			primary := &recordingCopier{err: tt.primaryErr}
			privileged := &recordingCopier{err: tt.privilegedErr}
			c := &FallbackCopier{Primary: primary, Privileged: privileged}

			err := c.Copy(context.Background(), "src", "dst")
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, 1, primary.calls)
			assert.Equal(t, tt.wantPrivileged, privileged.calls)
		})
	}
}

func TestWriteAtomic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cacert.pem")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0600))

	require.NoError(t, WriteAtomic(OSFileSystem{}, path, []byte("new"), PermOf(OSFileSystem{}, 0644, path)))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	_, err = os.Stat(path + TempSuffix)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
}

func TestPermOf_Fallback(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, os.FileMode(0640), PermOf(OSFileSystem{}, 0640, filepath.Join(dir, "a"), filepath.Join(dir, "b")))
}
