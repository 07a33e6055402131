package logging

import (
	"time"

	"go.uber.org/zap"
)

// Field keys shared by the pipeline, summarizer and API layers so log
// queries can join on them.
const (
	KeyReportID   = "report_id"
	KeyTier       = "tier"
	KeyStatus     = "status"
	KeyDurationMS = "duration_ms"
	KeyInputChars = "input_chars"
)

// ReportID tags an entry with the report being processed.
func ReportID(id int64) zap.Field {
	return zap.Int64(KeyReportID, id)
}

// TierFields describes one summarization tier attempt.
func TierFields(tier, status string, elapsed time.Duration) []zap.Field {
	return []zap.Field{
		zap.String(KeyTier, tier),
		zap.String(KeyStatus, status),
		zap.Int64(KeyDurationMS, elapsed.Milliseconds()),
	}
}

// InputChars records the size of the text handed to a model. The text itself
// is never logged.
func InputChars(text string) zap.Field {
	return zap.Int(KeyInputChars, len([]rune(text)))
}
