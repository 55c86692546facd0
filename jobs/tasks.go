package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	jobmetrics "github.com/meridian-his/meridian/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskLockoutSweep clears expired lockout state from credentials.
	TaskLockoutSweep = "auth:lockout_sweep"
	// TaskAuditPrune deletes audit rows past the retention window.
	TaskAuditPrune = "audit:prune"
)

// NewLockoutSweepTask constructs the sweep task. It carries no payload.
func NewLockoutSweepTask() *asynq.Task {
	return asynq.NewTask(TaskLockoutSweep, nil)
}

// NewAuditPruneTask constructs the audit retention task. It carries no
// payload; the retention window comes from configuration.
func NewAuditPruneTask() *asynq.Task {
	return asynq.NewTask(TaskAuditPrune, nil)
}

// NewLockoutSweepHandler returns the handler for TaskLockoutSweep. Lockout
// expiry is always enforced at login time; the sweep only keeps the table
// clean and makes expired lockouts visible in logs.
func NewLockoutSweepHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track(TaskLockoutSweep)
		tag, err := pool.Exec(ctx,
			`UPDATE user_credentials
			 SET failed_attempts = 0, locked_until = NULL, updated_at = NOW()
			 WHERE locked_until IS NOT NULL AND locked_until <= NOW()`)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil && tag.RowsAffected() > 0 {
			logger.Info("lockout sweep", slog.Int64("cleared", tag.RowsAffected()))
		}
		return tracker.End(nil)
	}
}

// NewAuditPruneHandler returns the handler for TaskAuditPrune.
func NewAuditPruneHandler(pool *pgxpool.Pool, logger *slog.Logger, metrics *jobmetrics.Metrics, retentionDays int) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track(TaskAuditPrune)
		if retentionDays <= 0 {
			return tracker.End(nil)
		}
		tag, err := pool.Exec(ctx,
			`DELETE FROM audit_logs WHERE occurred_at < NOW() - make_interval(days => $1)`,
			retentionDays)
		if err != nil {
			return tracker.End(err)
		}
		if logger != nil && tag.RowsAffected() > 0 {
			logger.Info("audit prune", slog.Int64("deleted", tag.RowsAffected()), slog.Int("retention_days", retentionDays))
		}
		return tracker.End(nil)
	}
}
