package hooks

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	envcertserrors "github.com/princespaghetti/envcerts/internal/errors"
)

func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0755))
	return path
}

func TestInstall_BothScripts(t *testing.T) {
	scripts := t.TempDir()
	activate := writeScript(t, scripts, "set_ca.sh", "export SSL_CERT_FILE=$CONDA_PREFIX/ssl/cacert.pem\n")
	deactivate := writeScript(t, scripts, "unset_ca.sh", "unset SSL_CERT_FILE\n")
	envRoot := t.TempDir()

	installed, err := NewInstaller(nil, nil).Install(context.Background(), envRoot, activate, deactivate)
	require.NoError(t, err)

	wantActivate := filepath.Join(envRoot, "etc", "conda", "activate.d", "set_ca.sh")
	wantDeactivate := filepath.Join(envRoot, "etc", "conda", "deactivate.d", "unset_ca.sh")
	assert.Equal(t, []string{wantActivate, wantDeactivate}, installed)

	data, err := os.ReadFile(wantActivate)
	require.NoError(t, err)
	assert.Contains(t, string(data), "SSL_CERT_FILE")

	info, err := os.Stat(wantDeactivate)
	require.NoError(t, err)
	assert.Equal(t, fs.FileMode(0755), info.Mode().Perm(), "script mode is carried over")
}

func TestInstall_OptionalPathsSkipped(t *testing.T) {
	scripts := t.TempDir()
	deactivate := writeScript(t, scripts, "unset_ca.sh", "unset SSL_CERT_FILE\n")
	envRoot := t.TempDir()

	installed, err := NewInstaller(nil, nil).Install(context.Background(), envRoot, "", deactivate)
	require.NoError(t, err)
	require.Len(t, installed, 1)

	_, err = os.Stat(filepath.Join(envRoot, "etc", "conda", "activate.d"))
	assert.True(t, os.IsNotExist(err), "activate.d must not be created without a script")

	installed, err = NewInstaller(nil, nil).Install(context.Background(), envRoot, "", "")
	require.NoError(t, err)
	assert.Empty(t, installed)
}

func TestInstall_MissingScript(t *testing.T) {
	envRoot := t.TempDir()

	_, err := NewInstaller(nil, nil).Install(context.Background(), envRoot, filepath.Join(t.TempDir(), "missing.sh"), "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestInstall_EnvironmentMustBeDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-env")
	require.NoError(t, os.WriteFile(file, nil, 0644))

	_, err := NewInstaller(nil, nil).Install(context.Background(), file, "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, envcertserrors.ErrNotDirectory)

	_, err = NewInstaller(nil, nil).Install(context.Background(), filepath.Join(t.TempDir(), "missing"), "", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
