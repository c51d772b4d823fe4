// Package bundle replaces the certificate bundle embedded in an environment
// with the organisation-wide trusted bundle.
package bundle

import (
	"bytes"
	"context"
	"fmt"
	"os"

	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/envfs"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// Status is the result of one Apply call.
type Status int

const (
	// StatusMissing means the environment has no bundle file; nothing was written.
	StatusMissing Status = iota
	// StatusReplaced means the bundle was backed up and overwritten.
	StatusReplaced
	// StatusUpToDate means the bundle already matched the source and was left alone.
	StatusUpToDate
)

func (s Status) String() string {
	switch s {
	case StatusMissing:
		return "missing"
	case StatusReplaced:
		return "replaced"
	case StatusUpToDate:
		return "up-to-date"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Replacer backs up and overwrites ssl/<bundleFileName> inside environments.
// Its configuration is fixed at construction and it is safe for concurrent
// use on distinct environments.
type Replacer struct {
	source         string
	bundleFileName string
	fs             envfs.FileSystem
	copier         envfs.Copier
	skipUpToDate   bool
}

// Option configures a Replacer.
type Option func(*Replacer)

// WithFileSystem sets the file system used for existence checks and, unless
// WithCopier is given, for copies.
func WithFileSystem(fsys envfs.FileSystem) Option {
	return func(r *Replacer) {
		r.fs = fsys
	}
}

// WithCopier sets the copy capability, e.g. a FallbackCopier with a
// privileged path.
func WithCopier(c envfs.Copier) Option {
	return func(r *Replacer) {
		r.copier = c
	}
}

// WithSkipUpToDate leaves targets whose content already equals the source
// untouched and reports StatusUpToDate for them.
func WithSkipUpToDate(skip bool) Option {
	return func(r *Replacer) {
		r.skipUpToDate = skip
	}
}

// NewReplacer creates a Replacer copying sourceBundlePath over
// ssl/<bundleFileName>.
func NewReplacer(sourceBundlePath, bundleFileName string, opts ...Option) *Replacer {
	r := &Replacer{
		source:         sourceBundlePath,
		bundleFileName: bundleFileName,
	}

	for _, opt := range opts {
		opt(r)
	}

	if r.fs == nil {
		r.fs = envfs.OSFileSystem{}
	}
	if r.copier == nil {
		r.copier = envfs.NewFileCopier(r.fs)
	}

	return r
}

// SourcePath returns the trusted bundle copied into environments.
func (r *Replacer) SourcePath() string {
	return r.source
}

// BundleFileName returns the file name replaced inside ssl/.
func (r *Replacer) BundleFileName() string {
	return r.bundleFileName
}

// Replace backs up and overwrites the bundle of the environment at envRoot.
// existed is false, with no error and no writes, when the bundle file is absent.
func (r *Replacer) Replace(ctx context.Context, envRoot string) (existed bool, err error) {
	status, err := r.Apply(ctx, envRoot)
	if err != nil {
		return false, err
	}
	return status != StatusMissing, nil
}

// Apply is Replace reporting the detailed Status.
func (r *Replacer) Apply(ctx context.Context, envRoot string) (Status, error) {
	select {
	case <-ctx.Done():
		return StatusMissing, ctx.Err()
	default:
	}

	env := environment.New(envRoot)
	target := env.BundlePath(r.bundleFileName)

	present, err := r.bundlePresent(envRoot, target)
	if err != nil || !present {
		return StatusMissing, err
	}

	if r.skipUpToDate {
		same, err := r.matchesSource(target)
		if err != nil {
			return StatusMissing, err
		}
		if same {
			return StatusUpToDate, nil
		}
	}

	backup := env.BackupPath(r.bundleFileName)
	if err := r.copier.Copy(ctx, target, backup); err != nil {
		return StatusMissing, &envcertserrors.EnvcertsError{
			Op:   "backup bundle",
			Path: backup,
			Err:  err,
		}
	}

	// A failure here leaves the backup written and the target untouched.
	if err := r.copier.Copy(ctx, r.source, target); err != nil {
		return StatusMissing, &envcertserrors.EnvcertsError{
			Op:   "replace bundle",
			Path: target,
			Err:  err,
		}
	}

	return StatusReplaced, nil
}

// Restore copies ssl/backup_<bundleFileName> back over the bundle.
// restored is false when the environment has no backup.
func (r *Replacer) Restore(ctx context.Context, envRoot string) (restored bool, err error) {
	env := environment.New(envRoot)
	backup := env.BackupPath(r.bundleFileName)

	if _, err := r.fs.Stat(backup); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, &envcertserrors.EnvcertsError{
			Op:   "stat backup",
			Path: backup,
			Err:  err,
		}
	}

	target := env.BundlePath(r.bundleFileName)
	if err := r.copier.Copy(ctx, backup, target); err != nil {
		return false, &envcertserrors.EnvcertsError{
			Op:   "restore bundle",
			Path: target,
			Err:  err,
		}
	}

	return true, nil
}

// Describe renders a human message for status.
func (r *Replacer) Describe(status Status) string {
	rel := "ssl/" + r.bundleFileName
	switch status {
	case StatusReplaced:
		return fmt.Sprintf("replaced %s (backup ssl/backup_%s)", rel, r.bundleFileName)
	case StatusUpToDate:
		return fmt.Sprintf("%s already matches %s", rel, r.source)
	default:
		return fmt.Sprintf("no %s", rel)
	}
}

// bundlePresent reports whether target exists. A vanished envRoot counts
// as absent; an envRoot that is not a directory is an error.
func (r *Replacer) bundlePresent(envRoot, target string) (bool, error) {
	info, err := r.fs.Stat(envRoot)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &envcertserrors.EnvcertsError{
			Op:   "stat environment",
			Path: envRoot,
			Err:  err,
		}
	}
	if !info.IsDir() {
		return false, &envcertserrors.EnvcertsError{
			Op:   "stat environment",
			Path: envRoot,
			Err:  envcertserrors.ErrNotDirectory,
		}
	}

	info, err = r.fs.Stat(target)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &envcertserrors.EnvcertsError{
			Op:   "stat bundle",
			Path: target,
			Err:  err,
		}
	}
	if info.IsDir() {
		return false, &envcertserrors.EnvcertsError{
			Op:   "stat bundle",
			Path: target,
			Err:  fmt.Errorf("is a directory"),
		}
	}

	return true, nil
}

func (r *Replacer) matchesSource(target string) (bool, error) {
	want, err := r.fs.ReadFile(r.source)
	if err != nil {
		return false, &envcertserrors.EnvcertsError{
			Op:   "read source bundle",
			Path: r.source,
			Err:  err,
		}
	}
	got, err := r.fs.ReadFile(target)
	if err != nil {
		return false, &envcertserrors.EnvcertsError{
			Op:   "read bundle",
			Path: target,
			Err:  err,
		}
	}
	return bytes.Equal(want, got), nil
}
