// Package hooks installs activation and deactivation scripts into an
// environment's etc/conda/{activate,deactivate}.d folders.
package hooks

import (
	"context"
	"path/filepath"

	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/envfs"
	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// Installer copies hook scripts into environments.
type Installer struct {
	fs     envfs.FileSystem
	copier envfs.Copier
}

// NewInstaller creates an Installer. Nil arguments select the OS file system
// and a FileCopier over it.
func NewInstaller(fsys envfs.FileSystem, copier envfs.Copier) *Installer {
	if fsys == nil {
		fsys = envfs.OSFileSystem{}
	}
	if copier == nil {
		copier = envfs.NewFileCopier(fsys)
	}
	return &Installer{fs: fsys, copier: copier}
}

// Install copies activationScript into activate.d and deactivationScript
// into deactivate.d under envRoot, keeping their base names. An empty path
// is skipped. Script contents are not inspected.
func (i *Installer) Install(ctx context.Context, envRoot, activationScript, deactivationScript string) ([]string, error) {
	env := environment.New(envRoot)

	info, err := i.fs.Stat(envRoot)
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "stat environment",
			Path: envRoot,
			Err:  err,
		}
	}
	if !info.IsDir() {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "stat environment",
			Path: envRoot,
			Err:  envcertserrors.ErrNotDirectory,
		}
	}

	var installed []string
	for _, hook := range []struct {
		script string
		dir    string
	}{
		{activationScript, env.ActivateDir()},
		{deactivationScript, env.DeactivateDir()},
	} {
		if hook.script == "" {
			continue
		}

		dst, err := i.installOne(ctx, hook.script, hook.dir)
		if err != nil {
			return installed, err
		}
		installed = append(installed, dst)
	}

	return installed, nil
}

func (i *Installer) installOne(ctx context.Context, script, dir string) (string, error) {
	if _, err := i.fs.Stat(script); err != nil {
		return "", &envcertserrors.EnvcertsError{
			Op:   "read hook script",
			Path: script,
			Err:  err,
		}
	}

	if err := i.fs.MkdirAll(dir, 0755); err != nil {
		return "", &envcertserrors.EnvcertsError{
			Op:   "create hook directory",
			Path: dir,
			Err:  err,
		}
	}

	dst := filepath.Join(dir, filepath.Base(script))
	if err := i.copier.Copy(ctx, script, dst); err != nil {
		return "", &envcertserrors.EnvcertsError{
			Op:   "install hook script",
			Path: dst,
			Err:  err,
		}
	}

	return dst, nil
}
