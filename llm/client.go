// Package llm is the single gateway to the hosted chat-completion service.
// It owns model selection, deterministic decoding, timeouts and the bounded
// retry budget so callers only deal with prompts and text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"medreport/core"
	"medreport/logging"
)

var (
	// ErrNoCredential is returned when no API key is configured.
	ErrNoCredential = errors.New("llm: no hosted credential configured")

	// ErrEmptyResponse is returned when the service answers with no choices
	// or only whitespace.
	ErrEmptyResponse = errors.New("llm: empty completion")
)

// zeroTemperature stands in for temperature 0: go-openai drops a zero
// Temperature from the request body, which lets the service apply its
// default of 1.
const zeroTemperature = math.SmallestNonzeroFloat32

// ChatCompleter is the subset of *openai.Client used here.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Options configures a Client.
type Options struct {
	Model      string
	MaxTokens  int
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// OptionsFromConfig maps the hosted-LLM settings of cfg onto Options.
func OptionsFromConfig(cfg *core.Config) Options {
	return Options{
		Model:      cfg.OpenAIModel,
		MaxTokens:  cfg.OpenAIMaxTokens,
		Timeout:    cfg.AITimeout,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
	}
}

// Client issues single-exchange chat completions.
type Client struct {
	api    ChatCompleter
	opts   Options
	logger *logging.Logger
	sleep  func(context.Context, time.Duration) error
}

// NewClient wraps api. A nil logger discards output.
func NewClient(api ChatCompleter, opts Options, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Client{
		api:    api,
		opts:   opts,
		logger: logger.Named("llm"),
		sleep:  sleepContext,
	}
}

// NewOpenAIClient builds the go-openai client from configuration, honouring
// OPENAI_BASE_URL and the shared TLS settings. It returns ErrNoCredential
// when no key is set so callers can leave the hosted features disabled.
//
// Example:
//
//	client, err := llm.NewOpenAIClient(cfg, logger)
//	if errors.Is(err, llm.ErrNoCredential) {
//	    // hosted tier stays off
//	}
func NewOpenAIClient(cfg *core.Config, logger *logging.Logger) (*Client, error) {
	if !cfg.HasHostedCredential() {
		return nil, ErrNoCredential
	}

	clientConfig := openai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}
	// Per-attempt deadlines come from the context; the transport only needs TLS.
	clientConfig.HTTPClient = core.GetHTTPClient(cfg, 0)

	return NewClient(openai.NewClientWithConfig(clientConfig), OptionsFromConfig(cfg), logger), nil
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.opts.Model
}

// Complete sends an optional system instruction and one user message and
// returns the trimmed reply. Each attempt is bounded by Options.Timeout;
// failed attempts are repeated up to Options.MaxRetries times.
func (c *Client) Complete(ctx context.Context, system, user string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       c.opts.Model,
		Messages:    buildMessages(system, user),
		MaxTokens:   c.opts.MaxTokens,
		Temperature: zeroTemperature,
	}

	var lastErr error
	for attempt := 0; attempt <= c.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.opts.RetryDelay); err != nil {
				return "", err
			}
		}

		start := time.Now()
		content, err := c.attempt(ctx, req)
		if err == nil {
			c.logger.Debug("completion received",
				zap.String("model", c.opts.Model),
				zap.Int("attempt", attempt+1),
				zap.Duration("elapsed", time.Since(start)),
				logging.InputChars(user))
			return content, nil
		}

		lastErr = err
		c.logger.Warn("completion attempt failed",
			zap.String("model", c.opts.Model),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", c.opts.MaxRetries+1),
			zap.Error(err))

		if ctx.Err() != nil || !retryable(err) {
			break
		}
	}

	return "", lastErr
}

func (c *Client) attempt(ctx context.Context, req openai.ChatCompletionRequest) (string, error) {
	attemptCtx := ctx
	if c.opts.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()
	}

	resp, err := c.api.CreateChatCompletion(attemptCtx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyResponse
	}
	return content, nil
}

func buildMessages(system, user string) []openai.ChatCompletionMessage {
	msgs := make([]openai.ChatCompletionMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: system,
		})
	}
	return append(msgs, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: user,
	})
}

// retryable reports whether repeating the request could succeed. Client
// errors other than rate limiting are permanent.
func retryable(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return isRetryableStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return isRetryableStatus(reqErr.HTTPStatusCode)
	}
	return true
}

func isRetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError || code == 0
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
