package summarizer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"medreport/core"
)

// maxRuntimeResponse caps how much of a runtime reply is read.
const maxRuntimeResponse = 1 << 20

// LocalOptions configures generation on the local runtime.
type LocalOptions struct {
	RuntimeURL      string
	Checkpoint      string
	BaseModel       string
	MaxSourceTokens int
	MaxOutputTokens int
	NumBeams        int
}

// LocalOptionsFromConfig combines the runtime settings with the checkpoint
// chosen by the startup probe.
func LocalOptionsFromConfig(cfg *core.Config, caps core.Capabilities) LocalOptions {
	return LocalOptions{
		RuntimeURL:      cfg.LocalRuntimeURL,
		Checkpoint:      caps.CheckpointPath,
		BaseModel:       caps.BaseModel,
		MaxSourceTokens: cfg.LocalMaxSourceTokens,
		MaxOutputTokens: cfg.LocalMaxOutputTokens,
		NumBeams:        cfg.LocalNumBeams,
	}
}

// Local runs the fine-tuned sequence-to-sequence checkpoint through a local
// inference runtime speaking the Hugging Face summarization payload.
type Local struct {
	opts   LocalOptions
	client *http.Client
}

// NewLocal returns the local tier. It is unavailable when no checkpoint
// was found at startup.
func NewLocal(opts LocalOptions, client *http.Client) *Local {
	if client == nil {
		client = http.DefaultClient
	}
	return &Local{opts: opts, client: client}
}

type localRequest struct {
	Inputs     string          `json:"inputs"`
	Checkpoint string          `json:"checkpoint"`
	BaseModel  string          `json:"base_model"`
	Parameters localParameters `json:"parameters"`
}

type localParameters struct {
	MaxInputLength int  `json:"max_input_length"`
	Truncation     bool `json:"truncation"`
	MaxLength      int  `json:"max_length"`
	NumBeams       int  `json:"num_beams"`
	DoSample       bool `json:"do_sample"`
}

type localOutput struct {
	SummaryText   string `json:"summary_text"`
	GeneratedText string `json:"generated_text"`
}

func (o localOutput) text() string {
	if o.SummaryText != "" {
		return o.SummaryText
	}
	return o.GeneratedText
}

func (l *Local) Tier() Tier { return TierLocal }

func (l *Local) Available() bool {
	return l != nil && l.opts.Checkpoint != "" && l.opts.RuntimeURL != ""
}

func (l *Local) Summarize(ctx context.Context, text string) Result {
	if !l.Available() {
		return unavailable(TierLocal)
	}

	body, err := json.Marshal(localRequest{
		Inputs:     text,
		Checkpoint: l.opts.Checkpoint,
		BaseModel:  l.opts.BaseModel,
		Parameters: localParameters{
			MaxInputLength: l.opts.MaxSourceTokens,
			Truncation:     true,
			MaxLength:      l.opts.MaxOutputTokens,
			NumBeams:       l.opts.NumBeams,
			DoSample:       false,
		},
	})
	if err != nil {
		return failed(TierLocal, fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.opts.RuntimeURL, bytes.NewReader(body))
	if err != nil {
		return failed(TierLocal, fmt.Errorf("build request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := l.client.Do(req)
	if err != nil {
		return failed(TierLocal, fmt.Errorf("local runtime: %w", err))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxRuntimeResponse))
	if err != nil {
		return failed(TierLocal, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return failed(TierLocal, fmt.Errorf("local runtime returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw))))
	}

	summary, err := decodeLocalOutput(raw)
	if err != nil {
		return failed(TierLocal, err)
	}
	return succeeded(TierLocal, summary)
}

// decodeLocalOutput accepts either a list of outputs (pipeline style) or a
// single object, and returns the first non-empty trimmed text.
func decodeLocalOutput(raw []byte) (string, error) {
	raw = bytes.TrimSpace(raw)

	var outputs []localOutput
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &outputs); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
	} else {
		var single localOutput
		if err := json.Unmarshal(raw, &single); err != nil {
			return "", fmt.Errorf("decode response: %w", err)
		}
		outputs = append(outputs, single)
	}

	for _, o := range outputs {
		if text := strings.TrimSpace(o.text()); text != "" {
			return text, nil
		}
	}
	return "", errors.New("local runtime returned no summary text")
}
