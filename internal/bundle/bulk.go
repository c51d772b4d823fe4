package bundle

import (
	"context"
	"time"

	"github.com/princespaghetti/envcerts/internal/environment"
	"github.com/princespaghetti/envcerts/internal/outcome"
)

// BulkReplacer runs the Replacer once over every existing environment.
// Environments are assumed fully populated, so there is no wait or retry.
type BulkReplacer struct {
	replacer *Replacer
	now      func() time.Time
}

// NewBulkReplacer creates a BulkReplacer around r.
func NewBulkReplacer(r *Replacer) *BulkReplacer {
	return &BulkReplacer{replacer: r, now: time.Now}
}

// ReplaceAll replaces the bundle of the base environment (when baseEnvPath is
// set) and of every immediate subdirectory of allEnvsRoot. Environments
// without a bundle yield a NOT_PRESENT outcome and are not touched.
//
// The first copy failure aborts the run; the outcomes gathered so far are
// returned together with the error.
func (b *BulkReplacer) ReplaceAll(ctx context.Context, baseEnvPath, allEnvsRoot string) ([]outcome.Outcome, error) {
	var envs []environment.Environment
	if baseEnvPath != "" {
		envs = append(envs, environment.Base(baseEnvPath))
	}

	children, err := environment.List(allEnvsRoot)
	if err != nil {
		return nil, err
	}
	envs = append(envs, children...)

	outcomes := make([]outcome.Outcome, 0, len(envs))
	for _, env := range envs {
		status, err := b.replacer.Apply(ctx, env.Root)
		if err != nil {
			return outcomes, err
		}

		kind := outcome.KindNotPresent
		switch status {
		case StatusReplaced:
			kind = outcome.KindReplaced
		case StatusUpToDate:
			kind = outcome.KindAlreadyUpToDate
		}
		outcomes = append(outcomes, outcome.New(b.now(), kind, env.Name, b.replacer.Describe(status)))
	}

	return outcomes, nil
}
