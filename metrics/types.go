// Package metrics keeps in-process counters for the summarization pipeline.
package metrics

import "time"

// TaskRecord is one summarize invocation as seen by the pipeline.
type TaskRecord struct {
	ID       string `json:"id"`
	ReportID int64  `json:"report_id"`

	// Status is TaskStatusSuccess or TaskStatusError.
	Status string `json:"status"`

	// SummaryTier names the tier that produced the summary text.
	SummaryTier     string `json:"summary_tier,omitempty"`
	AnalysisOutcome string `json:"analysis_outcome,omitempty"`
	Predictions     int    `json:"predictions"`

	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time,omitempty"`
	Duration  time.Duration `json:"duration"`

	ErrorMsg string `json:"error_msg,omitempty"`
}

// TierStats aggregates attempts against one summarization tier.
type TierStats struct {
	Succeeded   int64         `json:"succeeded"`
	Failed      int64         `json:"failed"`
	Unavailable int64         `json:"unavailable"`
	AvgDuration time.Duration `json:"avg_duration"`
}

// Snapshot is a point-in-time copy of every counter.
type Snapshot struct {
	TotalRuns    int64 `json:"total_runs"`
	TotalSuccess int64 `json:"total_success"`
	TotalErrors  int64 `json:"total_errors"`

	// SummariesByTier counts which tier produced each final summary.
	SummariesByTier map[string]int64 `json:"summaries_by_tier"`
	// TierAttempts counts every attempt, including fall-throughs.
	TierAttempts map[string]TierStats `json:"tier_attempts"`

	AnalyzerOutcomes map[string]int64 `json:"analyzer_outcomes"`

	ClassifierRuns int64            `json:"classifier_runs"`
	ClassifierHits map[string]int64 `json:"classifier_hits"`

	RecentTasks []TaskRecord `json:"recent_tasks"`

	System SystemStatus `json:"system"`
}

// SystemStatus describes the running process.
type SystemStatus struct {
	Version   string        `json:"version"`
	Uptime    time.Duration `json:"uptime"`
	LastCheck time.Time     `json:"last_check"`
}

// Task status values.
const (
	TaskStatusSuccess = "success"
	TaskStatusError   = "error"
)

// Tier attempt outcomes, matching the summarizer status names.
const (
	AttemptSucceeded   = "succeeded"
	AttemptFailed      = "failed"
	AttemptUnavailable = "unavailable"
)
