package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/princespaghetti/envcerts/internal/envfs"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

func TestFindLeftovers(t *testing.T) {
	cfg := testConfig(t)
	env := mkEnv(t, cfg, "ml", []byte("ORIGINAL"))
	mkEnv(t, cfg, "clean", []byte("ORIGINAL"))

	tmpBundle := env.BundlePath(cfg.BundleFileName) + envfs.TempSuffix
	tmpBackup := env.BackupPath(cfg.BundleFileName) + envfs.TempSuffix
	require.NoError(t, os.WriteFile(tmpBundle, nil, 0644))
	require.NoError(t, os.WriteFile(tmpBackup, nil, 0644))

	sink, err := outcome.OpenFileLog(cfg.LogSink)
	require.NoError(t, err)
	require.NoError(t, sink.Record(outcome.Outcome{Kind: outcome.KindReplaced, Env: "ml"}))
	require.NoError(t, sink.Close())

	files, err := findLeftovers(cfg)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{tmpBundle, tmpBackup, filepath.Clean(outcome.LockPath(cfg.LogSink))}, files)
}

func TestFindLeftovers_KeepsHeldLock(t *testing.T) {
	captureOutput(t)
	cfg := testConfig(t)

	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.LogSink), 0755))
	held := flock.New(outcome.LockPath(cfg.LogSink))
	locked, err := held.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer func() { _ = held.Unlock() }()

	files, err := findLeftovers(cfg)
	require.NoError(t, err)
	assert.Empty(t, files)
}
