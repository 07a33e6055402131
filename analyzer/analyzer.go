// Package analyzer asks the hosted LLM for a structured symptom and
// candidate-disease hint and recovers what it can from the reply.
package analyzer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"medreport/logging"
)

const (
	// NoCredentialMessage is the raw text of the analysis returned when no
	// hosted credential is configured.
	NoCredentialMessage = "No OpenAI key"

	// FailedMessage is the raw text stored when the hosted call fails.
	FailedMessage = "Symptom analysis unavailable"

	promptTemplate = "From the clinical text below, extract a list of symptoms (comma separated) and list possible diseases (short list). Text:\n\n%s\n\nReturn JSON: {'symptoms': [...], 'possible_diseases': [...]}"
)

// Completer sends one system/user exchange to a chat model.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}

// Analyzer extracts symptoms and possible diseases from report text.
type Analyzer struct {
	client Completer
	logger *logging.Logger
}

// New creates an Analyzer. A nil client disables hosted analysis.
func New(client Completer, logger *logging.Logger) *Analyzer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Analyzer{client: client, logger: logger.Named("analyzer")}
}

// Available reports whether a hosted client is configured.
func (a *Analyzer) Available() bool {
	return a.client != nil
}

// Analyze never fails: without a credential it returns a raw analysis holding
// NoCredentialMessage, a failed call yields FailedMessage, and a reply that
// does not parse is kept verbatim.
func (a *Analyzer) Analyze(ctx context.Context, text string) Analysis {
	if !a.Available() {
		return Analysis{Raw: NoCredentialMessage, Outcome: OutcomeUnavailable, Stage: StageRaw}
	}

	reply, err := a.client.Complete(ctx, "", fmt.Sprintf(promptTemplate, text))
	if err != nil {
		a.logger.Warn("symptom analysis failed", zap.Error(err), logging.InputChars(text))
		return Analysis{Raw: FailedMessage, Outcome: OutcomeFailed, Stage: StageRaw}
	}

	return a.parse(reply)
}

func (a *Analyzer) parse(reply string) Analysis {
	obj, stage := RecoverJSON(reply)
	if obj == nil {
		a.logger.Info("analysis reply was not JSON, keeping raw text", zap.Int("reply_chars", len(reply)))
		return Analysis{Raw: reply, Outcome: OutcomeRaw, Stage: StageRaw}
	}

	a.logger.Debug("analysis parsed",
		zap.String("stage", string(stage)),
		zap.Int("symptoms", len(Analysis{Parsed: obj}.Symptoms())))
	return Analysis{Parsed: obj, Outcome: OutcomeStructured, Stage: stage}
}

// ParseResponse applies the recovery rules to a reply without calling the
// model.
func ParseResponse(reply string) Analysis {
	return New(nil, nil).parse(reply)
}
