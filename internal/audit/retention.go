package audit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultRetentionSchedule runs the prune job once a day at 03:17, off
// the hour to avoid contending with other daily jobs.
const DefaultRetentionSchedule = "0 17 3 * * *"

// RetentionJob prunes RequestAuditEntry rows older than the configured
// retention window on a cron schedule.
type RetentionJob struct {
	db        *DB
	retention time.Duration
	logger    *slog.Logger
	schedule  string

	cronScheduler *cron.Cron
}

func NewRetentionJob(db *DB, retention time.Duration, logger *slog.Logger) *RetentionJob {
	if logger == nil {
		logger = slog.Default()
	}
	if retention <= 0 {
		retention = 30 * 24 * time.Hour
	}
	return &RetentionJob{
		db:        db,
		retention: retention,
		logger:    logger,
		schedule:  DefaultRetentionSchedule,
	}
}

// Start registers the prune job with a cron scheduler that recovers
// from panics in the job function, and starts it running in the
// background. Cancel ctx to stop it.
func (j *RetentionJob) Start(ctx context.Context) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	j.cronScheduler = cron.New(cron.WithParser(parser), cron.WithChain(
		cron.Recover(cron.DefaultLogger),
	))

	if _, err := j.cronScheduler.AddFunc(j.schedule, j.prune); err != nil {
		return fmt.Errorf("scheduling audit retention job: %w", err)
	}

	j.cronScheduler.Start()

	go func() {
		<-ctx.Done()
		stopCtx := j.cronScheduler.Stop()
		<-stopCtx.Done()
	}()

	j.logger.Info("audit retention job scheduled",
		slog.String("schedule", j.schedule),
		slog.Duration("retention", j.retention))

	return nil
}

func (j *RetentionJob) prune() {
	j.RunOnce(context.Background())
}

// RunOnce prunes entries older than the retention window immediately,
// independent of the cron schedule. Returns the number of rows removed.
func (j *RetentionJob) RunOnce(ctx context.Context) int64 {
	cutoff := time.Now().Add(-j.retention)

	result := j.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&RequestAuditEntry{})
	if result.Error != nil {
		j.logger.Error("audit retention prune failed", slog.Any("error", result.Error))
		return 0
	}

	if result.RowsAffected > 0 {
		j.logger.Info("pruned audit entries",
			slog.Int64("rows", result.RowsAffected),
			slog.Time("cutoff", cutoff))
	}

	return result.RowsAffected
}
