package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePruner struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakePruner) Prune(cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return f.deleted, f.err
}

func TestRetentionJobPrunesWithConfiguredCutoff(t *testing.T) {
	pruner := &fakePruner{deleted: 3}
	job := NewRetentionJob(pruner, 90, zerolog.Nop())

	assert.Equal(t, "run_retention", job.Name())
	require.NoError(t, job.Run())

	want := time.Now().UTC().AddDate(0, 0, -90)
	assert.WithinDuration(t, want, pruner.cutoff, time.Minute)
}

func TestRetentionJobPropagatesErrors(t *testing.T) {
	pruner := &fakePruner{err: errors.New("database locked")}
	job := NewRetentionJob(pruner, 30, zerolog.Nop())
	assert.Error(t, job.Run())
}
