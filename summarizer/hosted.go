package summarizer

import (
	"context"
	"errors"
	"fmt"
)

const (
	hostedSystemPrompt = "You are a concise medical summarizer."
	hostedUserPrompt   = "Summarize the following medical report concisely for a clinician:\n\n%s"
)

// Completer sends one system/user exchange to a chat model.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Hosted summarizes through the hosted chat-completion service.
type Hosted struct {
	client Completer
}

// NewHosted returns the hosted tier. A nil client makes the tier unavailable,
// which is how a missing credential short-circuits without a network call.
func NewHosted(client Completer) *Hosted {
	return &Hosted{client: client}
}

func (h *Hosted) Tier() Tier { return TierHosted }

func (h *Hosted) Available() bool { return h != nil && h.client != nil }

func (h *Hosted) Summarize(ctx context.Context, text string) Result {
	if !h.Available() {
		return unavailable(TierHosted)
	}

	out, err := h.client.Complete(ctx, hostedSystemPrompt, fmt.Sprintf(hostedUserPrompt, text))
	if err != nil {
		return failed(TierHosted, err)
	}
	if out == "" {
		return failed(TierHosted, errors.New("hosted summarizer returned empty text"))
	}
	return succeeded(TierHosted, out)
}
