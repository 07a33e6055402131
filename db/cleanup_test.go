package db

import (
	"context"
	"testing"
	"time"
)

func insertRunAt(t *testing.T, database *Database, reportID int64, createdAt string) {
	t.Helper()
	_, err := database.DB().Exec(`
		INSERT INTO pipeline_runs (request_id, report_id, status, created_at)
		VALUES ('r', ?, 'success', ?)`, reportID, createdAt)
	if err != nil {
		t.Fatalf("insert run: %v", err)
	}
}

func TestCleanup_PrunesOnlyOldRuns(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewRepository(database, nil)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	repo.CreateSummary(ctx, Summary{ReportID: report.ID, SummaryText: "kept"})

	old := time.Now().UTC().AddDate(0, 0, -45).Format(timestampLayout)
	recent := time.Now().UTC().AddDate(0, 0, -1).Format(timestampLayout)
	insertRunAt(t, database, report.ID, old)
	insertRunAt(t, database, report.ID, old)
	insertRunAt(t, database, report.ID, recent)

	result, err := database.CleanupWithContext(ctx, 30)
	if err != nil {
		t.Fatalf("CleanupWithContext() error = %v", err)
	}
	if result.PipelineRunsDeleted != 2 {
		t.Errorf("PipelineRunsDeleted = %d, want 2", result.PipelineRunsDeleted)
	}

	count, _ := repo.CountPipelineRuns(ctx)
	if count != 1 {
		t.Errorf("remaining runs = %d, want 1", count)
	}

	summaries, _ := repo.ListSummaries(ctx, "alice")
	if len(summaries) != 1 {
		t.Errorf("summaries after cleanup = %d, want 1", len(summaries))
	}
}

func TestCleanup_ZeroRetentionKeepsEverything(t *testing.T) {
	database := newTestDatabase(t)
	repo := NewRepository(database, nil)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	insertRunAt(t, database, report.ID, "2001-01-01 00:00:00")

	result, err := database.CleanupWithContext(ctx, 0)
	if err != nil {
		t.Fatalf("CleanupWithContext() error = %v", err)
	}
	if result.PipelineRunsDeleted != 0 {
		t.Errorf("PipelineRunsDeleted = %d, want 0", result.PipelineRunsDeleted)
	}
}

func TestCleanup_NegativeRetention(t *testing.T) {
	database := newTestDatabase(t)
	if _, err := database.CleanupWithContext(context.Background(), -1); err == nil {
		t.Error("expected error for negative retention")
	}
}

func TestCleanup_CancelledContext(t *testing.T) {
	database := newTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := database.CleanupWithContext(ctx, 30); err == nil {
		t.Error("expected context error")
	}
}

func TestStartCleanupScheduler_RunsImmediately(t *testing.T) {
	database := newTestDatabase(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan CleanupResult, 1)
	database.StartCleanupScheduler(ctx, CleanupSchedulerConfig{
		RetentionDays: 30,
		Interval:      time.Hour,
		OnCleanup: func(result CleanupResult, err error) {
			if err != nil {
				t.Errorf("cleanup error: %v", err)
			}
			select {
			case done <- result:
			default:
			}
		},
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not run an initial cleanup")
	}
}
