package summarizer

import (
	"context"
	"fmt"
	"time"

	"medreport/docprocessor"
	"medreport/logging"
)

// DefaultTruncateChars is the length of the truncation fallback.
const DefaultTruncateChars = 800

// Summary is the cascade's answer: the text, the tier that produced it and
// every attempt made along the way.
type Summary struct {
	Text     string
	Tier     Tier
	Attempts []Result
}

// Cascade tries its tiers in order and falls back to truncation.
type Cascade struct {
	tiers         []Summarizer
	truncateChars int
	logger        *logging.Logger
}

// NewCascade builds a cascade over tiers, tried in the order given.
// Nil tiers are skipped.
//
// Example:
//
//	cascade := summarizer.NewCascade(logger,
//	    summarizer.NewLocal(localOpts, httpClient),
//	    summarizer.NewHosted(llmClient))
//	summary := cascade.Summarize(ctx, text)
func NewCascade(logger *logging.Logger, tiers ...Summarizer) *Cascade {
	if logger == nil {
		logger = logging.NewNop()
	}
	kept := make([]Summarizer, 0, len(tiers))
	for _, t := range tiers {
		if t != nil {
			kept = append(kept, t)
		}
	}
	return &Cascade{
		tiers:         kept,
		truncateChars: DefaultTruncateChars,
		logger:        logger.Named("cascade"),
	}
}

// AvailableTiers lists the model tiers that can run, in priority order.
// Truncation is always available and is not listed.
func (c *Cascade) AvailableTiers() []Tier {
	var out []Tier
	for _, t := range c.tiers {
		if t.Available() {
			out = append(out, t.Tier())
		}
	}
	return out
}

// Summarize returns exactly one summary. A tier that is unavailable or fails
// hands over to the next one; the truncation fallback cannot fail.
func (c *Cascade) Summarize(ctx context.Context, text string) Summary {
	var attempts []Result

	for _, tier := range c.tiers {
		res := c.run(ctx, tier, text)
		attempts = append(attempts, res)

		c.logger.Debug("summarizer tier attempted", logging.TierFields(string(res.Tier), res.Status.String(), res.Elapsed)...)
		if res.Status == StatusFailed {
			c.logger.Warn("summarizer tier failed, falling through",
				append(logging.TierFields(string(res.Tier), res.Status.String(), res.Elapsed), logging.InputChars(text))...)
		}
		if res.Status == StatusSucceeded {
			return Summary{Text: res.Text, Tier: res.Tier, Attempts: attempts}
		}
	}

	fallback := Truncate(text, c.truncateChars)
	attempts = append(attempts, succeeded(TierTruncation, fallback))
	return Summary{Text: fallback, Tier: TierTruncation, Attempts: attempts}
}

// run executes one tier, turning unavailability, empty output and panics
// into explicit results.
func (c *Cascade) run(ctx context.Context, tier Summarizer, text string) (res Result) {
	if !tier.Available() {
		return unavailable(tier.Tier())
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			res = failed(tier.Tier(), fmt.Errorf("summarizer panic: %v", r))
		}
		res.Tier = tier.Tier()
		res.Elapsed = time.Since(start)
	}()

	res = tier.Summarize(ctx, text)
	if res.Status == StatusSucceeded && res.Text == "" {
		res = failed(tier.Tier(), fmt.Errorf("%s tier returned empty text", tier.Tier()))
	}
	return res
}

// Truncate is the last-resort summary: the first maxChars characters of text,
// followed by "..." when anything was cut.
func Truncate(text string, maxChars int) string {
	return docprocessor.TruncateWithEllipsis(text, maxChars)
}
