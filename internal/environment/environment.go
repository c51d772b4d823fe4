// Package environment models the isolated runtime environments whose
// certificate bundles envcerts keeps in sync.
package environment

import (
	"os"
	"path/filepath"
	"strings"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

// BaseName is the name reported for the base environment.
const BaseName = "base"

const (
	sslDir       = "ssl"
	backupPrefix = "backup_"
)

// Environment identifies one environment by its root directory.
type Environment struct {
	Name string
	Root string
}

// New returns the environment rooted at root, named after its basename.
func New(root string) Environment {
	return Environment{Name: filepath.Base(root), Root: root}
}

// Base returns the base environment rooted at root.
func Base(root string) Environment {
	return Environment{Name: BaseName, Root: root}
}

// SSLDir returns the folder holding the bundle.
func (e Environment) SSLDir() string {
	return filepath.Join(e.Root, sslDir)
}

// BundlePath returns where the bundle named bundleFileName is expected.
// The file is not guaranteed to exist.
func (e Environment) BundlePath(bundleFileName string) string {
	return filepath.Join(e.Root, sslDir, bundleFileName)
}

// BackupPath returns the backup location for bundleFileName.
func (e Environment) BackupPath(bundleFileName string) string {
	return filepath.Join(e.Root, sslDir, backupPrefix+bundleFileName)
}

// ActivateDir returns the folder for activation hook scripts.
func (e Environment) ActivateDir() string {
	return filepath.Join(e.Root, "etc", "conda", "activate.d")
}

// DeactivateDir returns the folder for deactivation hook scripts.
func (e Environment) DeactivateDir() string {
	return filepath.Join(e.Root, "etc", "conda", "deactivate.d")
}

// IsCandidateName reports whether a directory entry name may be an
// environment. Hidden entries are bookkeeping folders of the package manager.
func IsCandidateName(name string) bool {
	return name != "" && !strings.HasPrefix(name, ".")
}

// List returns every immediate child directory of root as an environment,
// sorted by name.
func List(root string) ([]Environment, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "read environments root",
			Path: root,
			Err:  err,
		}
	}
	if !info.IsDir() {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "read environments root",
			Path: root,
			Err:  envcertserrors.ErrNotDirectory,
		}
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, &envcertserrors.EnvcertsError{
			Op:   "read environments root",
			Path: root,
			Err:  err,
		}
	}

	envs := make([]Environment, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !IsCandidateName(entry.Name()) {
			continue
		}
		envs = append(envs, New(filepath.Join(root, entry.Name())))
	}

	return envs, nil
}
