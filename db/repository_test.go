package db

import (
	"context"
	"errors"
	"testing"
	"time"
)

func newTestRepository(t *testing.T) (*Repository, *Database) {
	t.Helper()
	database := newTestDatabase(t)
	return NewRepository(database, nil), database
}

func TestRepository_CreateAndGetReport(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateReport(ctx, Report{
		OwnerID:       "alice",
		FileName:      "labs.pdf",
		FilePath:      "reports/abc_labs.pdf",
		ExtractedText: "Hemoglobin 13.1",
	})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}
	if created.ID == 0 {
		t.Fatal("CreateReport() returned zero ID")
	}
	if created.UploadedAt.IsZero() {
		t.Error("UploadedAt not set")
	}

	got, err := repo.GetReport(ctx, created.ID, "alice")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.FileName != "labs.pdf" || got.ExtractedText != "Hemoglobin 13.1" {
		t.Errorf("GetReport() = %+v", got)
	}
	if !got.UploadedAt.Equal(created.UploadedAt) {
		t.Errorf("UploadedAt = %v, want %v", got.UploadedAt, created.UploadedAt)
	}
}

func TestRepository_OwnerScoping(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, err := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	if err != nil {
		t.Fatalf("CreateReport() error = %v", err)
	}

	if _, err := repo.GetReport(ctx, report.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetReport(foreign owner) error = %v, want ErrNotFound", err)
	}
	if err := repo.UpdateExtractedText(ctx, report.ID, "bob", "x"); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateExtractedText(foreign owner) error = %v, want ErrNotFound", err)
	}

	summary, err := repo.CreateSummary(ctx, Summary{ReportID: report.ID, SummaryText: "s"})
	if err != nil {
		t.Fatalf("CreateSummary() error = %v", err)
	}
	if _, err := repo.GetSummary(ctx, summary.ID, "bob"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSummary(foreign owner) error = %v, want ErrNotFound", err)
	}

	bobs, err := repo.ListSummaries(ctx, "bob")
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(bobs) != 0 {
		t.Errorf("bob sees %d summaries, want 0", len(bobs))
	}
}

func TestRepository_CreateReportRequiresOwner(t *testing.T) {
	repo, _ := newTestRepository(t)
	if _, err := repo.CreateReport(context.Background(), Report{FileName: "a.txt"}); err == nil {
		t.Error("expected error for missing owner")
	}
}

func TestRepository_UpdateExtractedText(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	if err := repo.UpdateExtractedText(ctx, report.ID, "alice", "new text"); err != nil {
		t.Fatalf("UpdateExtractedText() error = %v", err)
	}

	got, err := repo.GetReport(ctx, report.ID, "alice")
	if err != nil {
		t.Fatalf("GetReport() error = %v", err)
	}
	if got.ExtractedText != "new text" {
		t.Errorf("ExtractedText = %q, want %q", got.ExtractedText, "new text")
	}
}

func TestRepository_ListReportsNewestFirst(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.txt", "second.txt", "third.txt"} {
		stamp := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return stamp }
		if _, err := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: name}); err != nil {
			t.Fatalf("CreateReport(%s) error = %v", name, err)
		}
	}
	repo.CreateReport(ctx, Report{OwnerID: "bob", FileName: "other.txt"})

	reports, err := repo.ListReports(ctx, "alice")
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if len(reports) != 3 {
		t.Fatalf("ListReports() returned %d reports, want 3", len(reports))
	}
	want := []string{"third.txt", "second.txt", "first.txt"}
	for i, r := range reports {
		if r.FileName != want[i] {
			t.Errorf("reports[%d] = %s, want %s", i, r.FileName, want[i])
		}
	}
}

func TestRepository_ListReportsEmpty(t *testing.T) {
	repo, _ := newTestRepository(t)

	reports, err := repo.ListReports(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListReports() error = %v", err)
	}
	if reports == nil || len(reports) != 0 {
		t.Errorf("ListReports() = %v, want empty non-nil slice", reports)
	}
}

func TestRepository_SummaryRoundTrip(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	created, err := repo.CreateSummary(ctx, Summary{
		ReportID:          report.ID,
		SummaryText:       "Persistent cough.",
		AnalysisText:      `{"symptoms":["cough"]}`,
		PredictedDiseases: `[{"disease":"influenza","score":0.7}]`,
		SummaryTier:       "truncation",
	})
	if err != nil {
		t.Fatalf("CreateSummary() error = %v", err)
	}

	got, err := repo.GetSummary(ctx, created.ID, "alice")
	if err != nil {
		t.Fatalf("GetSummary() error = %v", err)
	}
	if got.SummaryText != "Persistent cough." ||
		got.AnalysisText != `{"symptoms":["cough"]}` ||
		got.PredictedDiseases != `[{"disease":"influenza","score":0.7}]` ||
		got.SummaryTier != "truncation" ||
		got.ReportID != report.ID {
		t.Errorf("GetSummary() = %+v", got)
	}
}

func TestRepository_SummaryDefaults(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	created, err := repo.CreateSummary(ctx, Summary{ReportID: report.ID, SummaryText: "s"})
	if err != nil {
		t.Fatalf("CreateSummary() error = %v", err)
	}
	if created.AnalysisText != "{}" || created.PredictedDiseases != "[]" {
		t.Errorf("defaults = %q / %q, want {} / []", created.AnalysisText, created.PredictedDiseases)
	}
}

func TestRepository_SummaryRequiresExistingReport(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	if _, err := repo.CreateSummary(ctx, Summary{ReportID: 9999, SummaryText: "s"}); err == nil {
		t.Fatal("CreateSummary() for missing report should violate the foreign key")
	}

	summaries, err := repo.ListSummaries(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(summaries) != 0 {
		t.Errorf("failed insert left %d rows", len(summaries))
	}
}

func TestRepository_ManySummariesPerReport(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	for i := 0; i < 3; i++ {
		if _, err := repo.CreateSummary(ctx, Summary{ReportID: report.ID, SummaryText: "s"}); err != nil {
			t.Fatalf("CreateSummary() #%d error = %v", i, err)
		}
	}

	summaries, err := repo.ListSummaries(ctx, "alice")
	if err != nil {
		t.Fatalf("ListSummaries() error = %v", err)
	}
	if len(summaries) != 3 {
		t.Fatalf("ListSummaries() = %d, want 3", len(summaries))
	}
	if summaries[0].ID < summaries[2].ID {
		t.Error("summaries should be newest first")
	}
}

func TestRepository_PipelineRunsSync(t *testing.T) {
	repo, _ := newTestRepository(t)
	ctx := context.Background()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})

	id, err := repo.InsertPipelineRun(ctx, PipelineRun{
		RequestID:       "req-1",
		ReportID:        report.ID,
		SummaryTier:     "hosted",
		AnalysisOutcome: "structured",
		PredictionCount: 2,
		DurationMS:      120,
		Status:          "success",
	})
	if err != nil {
		t.Fatalf("InsertPipelineRun() error = %v", err)
	}
	if id == 0 {
		t.Error("synchronous insert should return an ID")
	}

	repo.InsertPipelineRun(ctx, PipelineRun{
		RequestID:    "req-2",
		ReportID:     report.ID,
		Status:       "error",
		ErrorMessage: "no extracted text",
	})

	runs, err := repo.ListPipelineRuns(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("ListPipelineRuns() error = %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("ListPipelineRuns() = %d runs, want 2", len(runs))
	}
	if runs[0].RequestID != "req-2" || runs[0].ErrorMessage != "no extracted text" || runs[0].SummaryID != 0 {
		t.Errorf("runs[0] = %+v", runs[0])
	}
	if runs[1].SummaryTier != "hosted" || runs[1].PredictionCount != 2 {
		t.Errorf("runs[1] = %+v", runs[1])
	}

	other, _ := repo.ListPipelineRuns(ctx, "bob", 10)
	if len(other) != 0 {
		t.Errorf("bob sees %d runs, want 0", len(other))
	}
}

func TestRepository_PipelineRunsAsync(t *testing.T) {
	database := newTestDatabase(t)
	ctx := context.Background()

	repo := NewRepository(database, nil)
	writer := NewAsyncWriter(repo.CreateAsyncWriteHandler(func(err error) {
		t.Errorf("async write failed: %v", err)
	}))
	repo.asyncWriter = writer
	writer.Start()

	report, _ := repo.CreateReport(ctx, Report{OwnerID: "alice", FileName: "a.txt"})
	for i := 0; i < 5; i++ {
		id, err := repo.InsertPipelineRun(ctx, PipelineRun{RequestID: "r", ReportID: report.ID, Status: "success"})
		if err != nil {
			t.Fatalf("InsertPipelineRun() error = %v", err)
		}
		if id != 0 {
			t.Errorf("queued insert returned id %d, want 0", id)
		}
	}

	if !writer.StopWithTimeout(5 * time.Second) {
		t.Fatal("writer did not drain in time")
	}

	count, err := repo.CountPipelineRuns(ctx)
	if err != nil {
		t.Fatalf("CountPipelineRuns() error = %v", err)
	}
	if count != 5 {
		t.Errorf("CountPipelineRuns() = %d, want 5", count)
	}
}

func TestSQLiteTimeScan(t *testing.T) {
	want := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	inputs := []interface{}{
		"2026-01-02 03:04:05",
		[]byte("2026-01-02T03:04:05Z"),
		want,
	}
	for _, in := range inputs {
		var ts sqliteTime
		if err := ts.Scan(in); err != nil {
			t.Errorf("Scan(%v) error = %v", in, err)
			continue
		}
		if !ts.Time.Equal(want) {
			t.Errorf("Scan(%v) = %v, want %v", in, ts.Time, want)
		}
	}

	var ts sqliteTime
	if err := ts.Scan("yesterday"); err == nil {
		t.Error("Scan(\"yesterday\") should fail")
	}
}
