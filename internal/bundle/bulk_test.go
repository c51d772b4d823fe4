package bundle

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

func TestReplaceAll_Coverage(t *testing.T) {
	source := writeSource(t, "CORPORATE")
	base := t.TempDir()
	envsRoot := filepath.Join(base, "envs")
	require.NoError(t, os.Mkdir(envsRoot, 0755))

	// N = 5 environments, M = 3 with a bundle.
	withBundle := []string{"a", "c", "e"}
	without := []string{"b", "d"}
	for _, name := range withBundle {
		newEnv(t, envsRoot, name, []byte("ORIGINAL-"+name))
	}
	for _, name := range without {
		newEnv(t, envsRoot, name, nil)
	}

	outcomes, err := NewBulkReplacer(NewReplacer(source, bundleName)).ReplaceAll(context.Background(), "", envsRoot)
	require.NoError(t, err)
	require.Len(t, outcomes, 5)

	counts := map[outcome.Kind]int{}
	for _, o := range outcomes {
		counts[o.Kind]++
	}
	assert.Equal(t, 3, counts[outcome.KindReplaced])
	assert.Equal(t, 2, counts[outcome.KindNotPresent])

	for _, name := range withBundle {
		assert.Equal(t, "CORPORATE", readFile(t, filepath.Join(envsRoot, name, "ssl", bundleName)))
	}
	for _, name := range without {
		entries, err := os.ReadDir(filepath.Join(envsRoot, name))
		require.NoError(t, err)
		assert.Empty(t, entries, "environment %s without ssl must not be touched", name)
	}
}

func TestReplaceAll_IncludesBaseFirst(t *testing.T) {
	source := writeSource(t, "CORPORATE")
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "ssl"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(base, "ssl", bundleName), []byte("BASE"), 0644))
	envsRoot := filepath.Join(base, "envs")
	newEnv(t, envsRoot, "py311", []byte("PY"))

	outcomes, err := NewBulkReplacer(NewReplacer(source, bundleName)).ReplaceAll(context.Background(), base, envsRoot)
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	assert.Equal(t, environment.BaseName, outcomes[0].Env)
	assert.Equal(t, outcome.KindReplaced, outcomes[0].Kind)
	assert.Equal(t, "py311", outcomes[1].Env)
	assert.Equal(t, "BASE", readFile(t, filepath.Join(base, "ssl", "backup_"+bundleName)))
}

func TestReplaceAll_AbortsOnFirstError(t *testing.T) {
	envsRoot := t.TempDir()
	for i := 0; i < 3; i++ {
		newEnv(t, envsRoot, fmt.Sprintf("env%d", i), []byte("ORIGINAL"))
	}
	missingSource := filepath.Join(t.TempDir(), "missing.pem")

	outcomes, err := NewBulkReplacer(NewReplacer(missingSource, bundleName)).ReplaceAll(context.Background(), "", envsRoot)
	require.Error(t, err)
	assert.Empty(t, outcomes)
}

func TestReplaceAll_MissingRoot(t *testing.T) {
	source := writeSource(t, "CORPORATE")

	_, err := NewBulkReplacer(NewReplacer(source, bundleName)).ReplaceAll(context.Background(), "", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}
