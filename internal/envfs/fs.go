// Package envfs holds the file operations envcerts performs inside
// environments: plain file access, atomic writes, and bundle copies that
// may need elevated privileges.
package envfs

import (
	"context"
	"fmt"
	"io/fs"
	"os"
)

// TempSuffix is appended to a destination while its new content is written.
// A leftover file with this suffix means a write was interrupted.
const TempSuffix = ".envcerts.tmp"

// FileSystem is the subset of os used by envcerts. Tests substitute it to
// inject failures.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	WriteFile(path string, data []byte, perm os.FileMode) error
	MkdirAll(path string, perm os.FileMode) error
	Remove(path string) error
	Rename(oldpath, newpath string) error
	Stat(path string) (fs.FileInfo, error)
}

// Copier copies the file at src over dst.
type Copier interface {
	Copy(ctx context.Context, src, dst string) error
}

// OSFileSystem forwards to package os.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) { return os.ReadFile(path) }

func (OSFileSystem) WriteFile(path string, data []byte, perm os.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (OSFileSystem) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

func (OSFileSystem) Remove(path string) error { return os.Remove(path) }

func (OSFileSystem) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (OSFileSystem) Stat(path string) (fs.FileInfo, error) { return os.Stat(path) }

// WriteAtomic writes data to path+TempSuffix and renames it over path, so
// readers see either the old content or the new, never a partial file.
// The temp file is removed if the rename fails.
func WriteAtomic(fsys FileSystem, path string, data []byte, perm os.FileMode) error {
	tempPath := path + TempSuffix
	if err := fsys.WriteFile(tempPath, data, perm); err != nil {
		return fmt.Errorf("write %s: %w", tempPath, err)
	}
	if err := fsys.Rename(tempPath, path); err != nil {
		_ = fsys.Remove(tempPath)
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}

// PermOf returns the permission bits of the first path that exists, or
// fallback.
func PermOf(fsys FileSystem, fallback os.FileMode, paths ...string) os.FileMode {
	for _, p := range paths {
		if info, err := fsys.Stat(p); err == nil {
			return info.Mode().Perm()
		}
	}
	return fallback
}
