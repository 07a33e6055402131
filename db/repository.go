package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned when a row does not exist or belongs to another owner.
var ErrNotFound = errors.New("record not found")

// timestampLayout matches SQLite's datetime('now') so retention comparisons
// work on the stored text.
const timestampLayout = "2006-01-02 15:04:05"

// DefaultListLimit bounds list queries when the caller passes no limit.
const DefaultListLimit = 50

// Report is an uploaded document owned by one user.
type Report struct {
	ID            int64     `json:"id"`
	OwnerID       string    `json:"owner_id"`
	FileName      string    `json:"file_name"`
	FilePath      string    `json:"file_path"`
	ExtractedText string    `json:"extracted_text"`
	UploadedAt    time.Time `json:"uploaded_at"`
}

// Summary is one persisted pipeline result. AnalysisText and
// PredictedDiseases hold JSON documents.
type Summary struct {
	ID                int64     `json:"id"`
	ReportID          int64     `json:"report"`
	SummaryText       string    `json:"summary_text"`
	AnalysisText      string    `json:"analysis_text"`
	PredictedDiseases string    `json:"predicted_diseases"`
	SummaryTier       string    `json:"summary_tier"`
	CreatedAt         time.Time `json:"created_at"`
}

// PipelineRun is one row of summarize history, written whether or not the
// run produced a summary.
type PipelineRun struct {
	ID              int64     `json:"id"`
	RequestID       string    `json:"request_id"`
	ReportID        int64     `json:"report_id"`
	SummaryID       int64     `json:"summary_id,omitempty"`
	SummaryTier     string    `json:"summary_tier"`
	AnalysisOutcome string    `json:"analysis_outcome"`
	PredictionCount int       `json:"prediction_count"`
	DurationMS      int64     `json:"duration_ms"`
	Status          string    `json:"status"`
	ErrorMessage    string    `json:"error_message,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Repository provides owner-scoped access to reports and summaries.
//
// Pipeline run history goes through the AsyncWriter when one is started;
// reports and summaries are always written synchronously.
type Repository struct {
	db          *Database
	asyncWriter *AsyncWriter
	now         func() time.Time
}

// NewRepository creates a Repository. asyncWriter may be nil.
func NewRepository(db *Database, asyncWriter *AsyncWriter) *Repository {
	return &Repository{
		db:          db,
		asyncWriter: asyncWriter,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (r *Repository) conn() (*sql.DB, error) {
	if r == nil || r.db == nil {
		return nil, fmt.Errorf("database connection is nil")
	}
	return r.db.conn()
}

func (r *Repository) timestamp() (string, time.Time) {
	t := r.now().UTC().Truncate(time.Second)
	return t.Format(timestampLayout), t
}

// CreateReport inserts a report and returns it with ID and UploadedAt set.
func (r *Repository) CreateReport(ctx context.Context, report Report) (Report, error) {
	conn, err := r.conn()
	if err != nil {
		return Report{}, err
	}
	if report.OwnerID == "" {
		return Report{}, fmt.Errorf("report owner is required")
	}

	stamp, uploadedAt := r.timestamp()
	res, err := conn.ExecContext(ctx, `
		INSERT INTO reports (owner_id, file_name, file_path, extracted_text, uploaded_at)
		VALUES (?, ?, ?, ?, ?)`,
		report.OwnerID, report.FileName, report.FilePath, report.ExtractedText, stamp,
	)
	if err != nil {
		return Report{}, fmt.Errorf("failed to insert report: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Report{}, fmt.Errorf("failed to get last insert id: %w", err)
	}

	report.ID = id
	report.UploadedAt = uploadedAt
	return report, nil
}

// UpdateExtractedText replaces the stored text of a report.
func (r *Repository) UpdateExtractedText(ctx context.Context, id int64, ownerID, text string) error {
	conn, err := r.conn()
	if err != nil {
		return err
	}

	res, err := conn.ExecContext(ctx,
		`UPDATE reports SET extracted_text = ? WHERE id = ? AND owner_id = ?`,
		text, id, ownerID,
	)
	if err != nil {
		return fmt.Errorf("failed to update report %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetReport returns the report if it exists and belongs to ownerID.
func (r *Repository) GetReport(ctx context.Context, id int64, ownerID string) (Report, error) {
	conn, err := r.conn()
	if err != nil {
		return Report{}, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT id, owner_id, file_name, file_path, extracted_text, uploaded_at
		FROM reports
		WHERE id = ? AND owner_id = ?`,
		id, ownerID,
	)

	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Report{}, ErrNotFound
	}
	if err != nil {
		return Report{}, fmt.Errorf("failed to get report %d: %w", id, err)
	}
	return report, nil
}

// ListReports returns the owner's reports, newest first.
func (r *Repository) ListReports(ctx context.Context, ownerID string) ([]Report, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT id, owner_id, file_name, file_path, extracted_text, uploaded_at
		FROM reports
		WHERE owner_id = ?
		ORDER BY uploaded_at DESC, id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query reports: %w", err)
	}
	defer rows.Close()

	reports := []Report{}
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan report: %w", err)
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating reports: %w", err)
	}
	return reports, nil
}

// CreateSummary persists a summary in a single INSERT: the row is either
// fully written or absent.
func (r *Repository) CreateSummary(ctx context.Context, summary Summary) (Summary, error) {
	conn, err := r.conn()
	if err != nil {
		return Summary{}, err
	}

	stamp, createdAt := r.timestamp()
	res, err := conn.ExecContext(ctx, `
		INSERT INTO report_summaries (
			report_id, summary_text, analysis_text, predicted_diseases, summary_tier, created_at
		) VALUES (?, ?, ?, ?, ?, ?)`,
		summary.ReportID,
		summary.SummaryText,
		defaultString(summary.AnalysisText, "{}"),
		defaultString(summary.PredictedDiseases, "[]"),
		summary.SummaryTier,
		stamp,
	)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to insert summary: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get last insert id: %w", err)
	}

	summary.ID = id
	summary.AnalysisText = defaultString(summary.AnalysisText, "{}")
	summary.PredictedDiseases = defaultString(summary.PredictedDiseases, "[]")
	summary.CreatedAt = createdAt
	return summary, nil
}

// GetSummary returns a summary whose report belongs to ownerID.
func (r *Repository) GetSummary(ctx context.Context, id int64, ownerID string) (Summary, error) {
	conn, err := r.conn()
	if err != nil {
		return Summary{}, err
	}

	row := conn.QueryRowContext(ctx, `
		SELECT s.id, s.report_id, s.summary_text, s.analysis_text,
		       s.predicted_diseases, s.summary_tier, s.created_at
		FROM report_summaries s
		JOIN reports r ON r.id = s.report_id
		WHERE s.id = ? AND r.owner_id = ?`,
		id, ownerID,
	)

	summary, err := scanSummary(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Summary{}, ErrNotFound
	}
	if err != nil {
		return Summary{}, fmt.Errorf("failed to get summary %d: %w", id, err)
	}
	return summary, nil
}

// ListSummaries returns every summary of the owner's reports, newest first.
func (r *Repository) ListSummaries(ctx context.Context, ownerID string) ([]Summary, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT s.id, s.report_id, s.summary_text, s.analysis_text,
		       s.predicted_diseases, s.summary_tier, s.created_at
		FROM report_summaries s
		JOIN reports r ON r.id = s.report_id
		WHERE r.owner_id = ?
		ORDER BY s.created_at DESC, s.id DESC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query summaries: %w", err)
	}
	defer rows.Close()

	summaries := []Summary{}
	for rows.Next() {
		summary, err := scanSummary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan summary: %w", err)
		}
		summaries = append(summaries, summary)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating summaries: %w", err)
	}
	return summaries, nil
}

// InsertPipelineRun records a summarize invocation. When the async writer is
// running the row is queued and 0 is returned; a full queue falls back to a
// synchronous insert.
func (r *Repository) InsertPipelineRun(ctx context.Context, run PipelineRun) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}

	stamp, _ := r.timestamp()
	query := `
		INSERT INTO pipeline_runs (
			request_id, report_id, summary_id, summary_tier, analysis_outcome,
			prediction_count, duration_ms, status, error_message, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{
		run.RequestID,
		run.ReportID,
		nullInt64(run.SummaryID),
		run.SummaryTier,
		run.AnalysisOutcome,
		run.PredictionCount,
		run.DurationMS,
		run.Status,
		nullString(run.ErrorMessage),
		stamp,
	}

	if r.asyncWriter != nil && r.asyncWriter.IsStarted() {
		if r.asyncWriter.Write(asyncInsertOp{query: query, args: args}) {
			return 0, nil
		}
	}

	res, err := conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to insert pipeline run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// ListPipelineRuns returns the most recent runs over the owner's reports.
func (r *Repository) ListPipelineRuns(ctx context.Context, ownerID string, limit int) ([]PipelineRun, error) {
	conn, err := r.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}

	rows, err := conn.QueryContext(ctx, `
		SELECT p.id, p.request_id, p.report_id, COALESCE(p.summary_id, 0),
		       p.summary_tier, p.analysis_outcome, p.prediction_count,
		       p.duration_ms, p.status, COALESCE(p.error_message, ''), p.created_at
		FROM pipeline_runs p
		JOIN reports r ON r.id = p.report_id
		WHERE r.owner_id = ?
		ORDER BY p.created_at DESC, p.id DESC
		LIMIT ?`,
		ownerID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []PipelineRun{}
	for rows.Next() {
		var run PipelineRun
		var createdAt sqliteTime
		if err := rows.Scan(
			&run.ID,
			&run.RequestID,
			&run.ReportID,
			&run.SummaryID,
			&run.SummaryTier,
			&run.AnalysisOutcome,
			&run.PredictionCount,
			&run.DurationMS,
			&run.Status,
			&run.ErrorMessage,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		run.CreatedAt = createdAt.Time
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pipeline runs: %w", err)
	}
	return runs, nil
}

// CountPipelineRuns returns the total number of stored runs.
func (r *Repository) CountPipelineRuns(ctx context.Context) (int64, error) {
	conn, err := r.conn()
	if err != nil {
		return 0, err
	}

	var count int64
	if err := conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM pipeline_runs`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count pipeline runs: %w", err)
	}
	return count, nil
}

// asyncInsertOp is the payload queued on the AsyncWriter.
type asyncInsertOp struct {
	query string
	args  []interface{}
}

// CreateAsyncWriteHandler returns the handler that executes queued inserts.
// onError, if set, receives every failed write.
func (r *Repository) CreateAsyncWriteHandler(onError func(error)) WriteHandler {
	return func(op WriteOperation) error {
		insert, ok := op.Data.(asyncInsertOp)
		if !ok {
			return fmt.Errorf("unexpected async write payload %T", op.Data)
		}
		conn, err := r.conn()
		if err == nil {
			_, err = conn.Exec(insert.query, insert.args...)
		}
		if err != nil && onError != nil {
			onError(err)
		}
		return err
	}
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanReport(row rowScanner) (Report, error) {
	var report Report
	var uploadedAt sqliteTime
	if err := row.Scan(
		&report.ID,
		&report.OwnerID,
		&report.FileName,
		&report.FilePath,
		&report.ExtractedText,
		&uploadedAt,
	); err != nil {
		return Report{}, err
	}
	report.UploadedAt = uploadedAt.Time
	return report, nil
}

func scanSummary(row rowScanner) (Summary, error) {
	var summary Summary
	var createdAt sqliteTime
	if err := row.Scan(
		&summary.ID,
		&summary.ReportID,
		&summary.SummaryText,
		&summary.AnalysisText,
		&summary.PredictedDiseases,
		&summary.SummaryTier,
		&createdAt,
	); err != nil {
		return Summary{}, err
	}
	summary.CreatedAt = createdAt.Time
	return summary, nil
}

// sqliteTime scans DATETIME columns whether the driver yields time.Time or text.
type sqliteTime struct {
	Time time.Time
}

func (t *sqliteTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case string:
		return t.parse(v)
	case []byte:
		return t.parse(string(v))
	default:
		return fmt.Errorf("unsupported timestamp type %T", src)
	}
}

func (t *sqliteTime) parse(s string) error {
	s = strings.TrimSpace(s)
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05Z"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

func defaultString(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// nullString stores empty strings as NULL.
func nullString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullInt64(n int64) interface{} {
	if n == 0 {
		return nil
	}
	return n
}
