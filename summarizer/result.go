// Package summarizer produces exactly one summary per report by trying a
// local fine-tuned model, then the hosted LLM, then plain truncation.
package summarizer

import (
	"context"
	"time"
)

// Tier names one stage of the cascade.
type Tier string

const (
	TierLocal      Tier = "local"
	TierHosted     Tier = "hosted"
	TierTruncation Tier = "truncation"
)

// Status is the outcome of one tier attempt.
type Status int

const (
	// StatusSucceeded means Text holds the summary.
	StatusSucceeded Status = iota
	// StatusUnavailable means the tier has no model or credential and was not run.
	StatusUnavailable
	// StatusFailed means the tier ran and produced no usable output; Err says why.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusUnavailable:
		return "unavailable"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Result reports what a single tier did.
type Result struct {
	Tier    Tier
	Status  Status
	Text    string
	Err     error
	Elapsed time.Duration
}

// Summarizer is one model-backed tier.
type Summarizer interface {
	Tier() Tier
	// Available reports whether the tier can run at all. It must not block.
	Available() bool
	// Summarize runs the tier. Implementations return StatusSucceeded or
	// StatusFailed; the cascade handles unavailability itself.
	Summarize(ctx context.Context, text string) Result
}

func succeeded(tier Tier, text string) Result {
	return Result{Tier: tier, Status: StatusSucceeded, Text: text}
}

func failed(tier Tier, err error) Result {
	return Result{Tier: tier, Status: StatusFailed, Err: err}
}

func unavailable(tier Tier) Result {
	return Result{Tier: tier, Status: StatusUnavailable}
}
