package metrics

import "time"

// Collector receives pipeline events. Implementations must be safe for
// concurrent use.
type Collector interface {
	// RecordTask adds a finished summarize invocation.
	RecordTask(task TaskRecord)

	// RecordTierAttempt counts one attempt against a summarization tier.
	// outcome is one of the Attempt* constants.
	RecordTierAttempt(tier, outcome string, elapsed time.Duration)

	// RecordAnalysis counts one symptom analysis by outcome.
	RecordAnalysis(outcome string)

	// RecordPredictions counts one classifier run that ranked diseases and
	// every disease it returned.
	RecordPredictions(diseases []string)
}

// Nop discards every event.
type Nop struct{}

func (Nop) RecordTask(TaskRecord)                           {}
func (Nop) RecordTierAttempt(string, string, time.Duration) {}
func (Nop) RecordAnalysis(string)                           {}
func (Nop) RecordPredictions([]string)                      {}

var _ Collector = Nop{}
