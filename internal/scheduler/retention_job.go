package scheduler

import (
	"time"

	"github.com/rs/zerolog"
)

// RunPruner deletes stored runs older than a cutoff. Implemented by
// storage.RunRepository.
type RunPruner interface {
	Prune(cutoff time.Time) (int64, error)
}

// RetentionJob removes stored optimization and backtest runs older than the
// configured retention window.
type RetentionJob struct {
	runs          RunPruner
	retentionDays int
	log           zerolog.Logger
}

// NewRetentionJob creates a retention job.
func NewRetentionJob(runs RunPruner, retentionDays int, log zerolog.Logger) *RetentionJob {
	return &RetentionJob{
		runs:          runs,
		retentionDays: retentionDays,
		log:           log.With().Str("component", "retention_job").Logger(),
	}
}

// Name implements Job.
func (j *RetentionJob) Name() string {
	return "run_retention"
}

// Run implements Job.
func (j *RetentionJob) Run() error {
	cutoff := time.Now().UTC().AddDate(0, 0, -j.retentionDays)
	deleted, err := j.runs.Prune(cutoff)
	if err != nil {
		return err
	}
	if deleted > 0 {
		j.log.Info().
			Int64("deleted", deleted).
			Int("retention_days", j.retentionDays).
			Msg("Retention job pruned runs")
	}
	return nil
}
