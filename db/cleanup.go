package db

import (
	"context"
	"fmt"
	"time"
)

// CleanupResult reports one retention pass.
type CleanupResult struct {
	PipelineRunsDeleted int64
	Duration            time.Duration
}

// CleanupWithContext deletes pipeline_runs rows older than retentionDays and
// runs VACUUM. Reports and summaries are never pruned. A retentionDays of 0
// keeps everything.
func (d *Database) CleanupWithContext(ctx context.Context, retentionDays int) (CleanupResult, error) {
	start := time.Now()
	result := CleanupResult{}

	if retentionDays < 0 {
		return result, fmt.Errorf("retentionDays must be non-negative, got %d", retentionDays)
	}
	if retentionDays == 0 {
		return result, nil
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	conn, err := d.conn()
	if err != nil {
		return result, err
	}

	res, err := conn.ExecContext(ctx,
		`DELETE FROM pipeline_runs WHERE created_at < datetime('now', ?)`,
		fmt.Sprintf("-%d days", retentionDays),
	)
	if err != nil {
		return result, fmt.Errorf("failed to delete from pipeline_runs: %w", err)
	}

	result.PipelineRunsDeleted, err = res.RowsAffected()
	if err != nil {
		return result, fmt.Errorf("failed to get rows affected: %w", err)
	}

	if result.PipelineRunsDeleted > 0 {
		// VACUUM cannot run inside a transaction
		if _, err := conn.ExecContext(ctx, "VACUUM"); err != nil {
			result.Duration = time.Since(start)
			return result, fmt.Errorf("cleanup succeeded but VACUUM failed: %w", err)
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// CleanupSchedulerConfig configures StartCleanupScheduler.
type CleanupSchedulerConfig struct {
	RetentionDays int
	Interval      time.Duration
	// OnCleanup is called after every pass; optional.
	OnCleanup func(result CleanupResult, err error)
}

// StartCleanupScheduler runs a cleanup pass immediately and then every
// Interval until ctx is cancelled. A zero RetentionDays disables it.
//
// Example:
//
//	database.StartCleanupScheduler(ctx, db.CleanupSchedulerConfig{
//	    RetentionDays: 30,
//	    Interval:      24 * time.Hour,
//	    OnCleanup: func(result db.CleanupResult, err error) {
//	        if err != nil {
//	            logger.Warn("run history cleanup failed", zap.Error(err))
//	        }
//	    },
//	})
func (d *Database) StartCleanupScheduler(ctx context.Context, config CleanupSchedulerConfig) {
	if config.RetentionDays <= 0 {
		return
	}
	if config.Interval <= 0 {
		config.Interval = 24 * time.Hour
	}

	go func() {
		run := func() {
			result, err := d.CleanupWithContext(ctx, config.RetentionDays)
			if config.OnCleanup != nil {
				config.OnCleanup(result, err)
			}
		}
		run()

		ticker := time.NewTicker(config.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				run()
			}
		}
	}()
}
