// Package validation runs the startup preflight: configuration sanity,
// writable storage, and which optional model tiers will be active.
package validation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"

	"medreport/core"
)

// ValidationStep represents a single validation step with its status.
type ValidationStep struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// StepStatus represents the status of a validation step.
type StepStatus int

const (
	StepPending StepStatus = iota
	StepRunning
	StepPassed
	StepFailed
	StepWarning
	StepSkipped
)

// String returns the string representation of a step status.
func (s StepStatus) String() string {
	switch s {
	case StepPending:
		return "pending"
	case StepRunning:
		return "running"
	case StepPassed:
		return "passed"
	case StepFailed:
		return "failed"
	case StepWarning:
		return "warning"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// SuiteResult represents the complete result of validation suite execution.
type SuiteResult struct {
	Steps       []ValidationStep
	TotalSteps  int
	PassedSteps int
	FailedSteps int
	Warnings    int
	Duration    time.Duration
	Success     bool
}

// ValidationSuite checks that the service can start. Only storage and
// configuration problems fail the suite; a missing model tier is reported
// as skipped because the cascade degrades around it.
type ValidationSuite struct {
	cfg          *core.Config
	output       io.Writer
	httpClient   *http.Client
	timeout      time.Duration
	minFreeBytes int64
	showProgress bool
	failFast     bool
}

// NewValidationSuite creates a suite for cfg with default settings.
func NewValidationSuite(cfg *core.Config) *ValidationSuite {
	return &ValidationSuite{
		cfg:          cfg,
		output:       os.Stdout,
		httpClient:   core.GetHTTPClient(cfg, 0),
		timeout:      5 * time.Second,
		minFreeBytes: DefaultMinFreeBytes,
		showProgress: true,
	}
}

// WithOutput sets the output writer for progress messages.
func (s *ValidationSuite) WithOutput(w io.Writer) *ValidationSuite {
	s.output = w
	return s
}

// WithTimeout bounds the local runtime probe.
func (s *ValidationSuite) WithTimeout(timeout time.Duration) *ValidationSuite {
	s.timeout = timeout
	return s
}

// WithHTTPClient replaces the client used to probe the local runtime.
func (s *ValidationSuite) WithHTTPClient(client *http.Client) *ValidationSuite {
	s.httpClient = client
	return s
}

// WithMinFreeBytes sets the free-space warning threshold.
func (s *ValidationSuite) WithMinFreeBytes(n int64) *ValidationSuite {
	s.minFreeBytes = n
	return s
}

// WithShowProgress enables or disables progress output.
func (s *ValidationSuite) WithShowProgress(show bool) *ValidationSuite {
	s.showProgress = show
	return s
}

// WithFailFast stops validation on first failure if enabled.
func (s *ValidationSuite) WithFailFast(failFast bool) *ValidationSuite {
	s.failFast = failFast
	return s
}

type check struct {
	name string
	fn   func() (StepStatus, string, error)
}

// Validate runs every check in order and returns the collected results.
func (s *ValidationSuite) Validate() SuiteResult {
	startTime := time.Now()

	if s.showProgress {
		s.printHeader("Medical Report Service Preflight")
	}

	checks := []check{
		{"Configuration", s.checkConfig},
		{"Database Directory", func() (StepStatus, string, error) {
			return writable(DatabaseDir(s.cfg.DatabasePath))
		}},
		{"Uploads Directory", func() (StepStatus, string, error) {
			return writable(s.cfg.UploadsDir)
		}},
		{"Disk Space", s.checkDiskSpace},
		{"Local Summarizer", s.checkCheckpoint},
		{"Local Runtime", s.checkRuntime},
		{"Disease Classifier", s.checkClassifier},
		{"Hosted LLM", s.checkHosted},
	}

	steps := make([]ValidationStep, 0, len(checks))
	for _, c := range checks {
		step := s.runStep(c.name, c.fn)
		steps = append(steps, step)
		if s.failFast && step.Status == StepFailed {
			break
		}
	}

	result := s.buildResult(steps, startTime)
	if s.showProgress {
		s.printSummary(result)
	}
	return result
}

func (s *ValidationSuite) checkConfig() (StepStatus, string, error) {
	if s.cfg == nil {
		return StepFailed, "no configuration loaded", fmt.Errorf("configuration is nil")
	}
	if err := s.cfg.Validate(); err != nil {
		return StepFailed, "invalid settings", err
	}
	return StepPassed, fmt.Sprintf("port %d", s.cfg.Port), nil
}

func writable(dir string) (StepStatus, string, error) {
	if err := CheckWritableDir(dir); err != nil {
		return StepFailed, dir, err
	}
	return StepPassed, dir, nil
}

func (s *ValidationSuite) checkDiskSpace() (StepStatus, string, error) {
	info, err := GetDiskSpace(s.cfg.UploadsDir)
	if err != nil {
		return StepWarning, "could not read free space", err
	}
	if err := CheckDiskSpace(info.Path, s.minFreeBytes); err != nil {
		return StepWarning, err.Error(), nil
	}
	return StepPassed, info.FreeFormatted + " free", nil
}

func (s *ValidationSuite) checkCheckpoint() (StepStatus, string, error) {
	path, _, err := core.LatestCheckpoint(s.cfg.LocalCheckpointDir, s.cfg.LocalCheckpointSuffixes)
	if err != nil {
		return StepSkipped, "no checkpoint in " + s.cfg.LocalCheckpointDir + ", tier disabled", nil
	}
	return StepPassed, path, nil
}

// checkRuntime only runs when a checkpoint exists. Any HTTP response counts
// as reachable since the runtime may not answer HEAD.
func (s *ValidationSuite) checkRuntime() (StepStatus, string, error) {
	if _, _, err := core.LatestCheckpoint(s.cfg.LocalCheckpointDir, s.cfg.LocalCheckpointSuffixes); err != nil {
		return StepSkipped, "no checkpoint", nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, s.cfg.LocalRuntimeURL, nil)
	if err != nil {
		return StepWarning, "invalid LOCAL_RUNTIME_URL", err
	}
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return StepWarning, "runtime unreachable, local tier will fail over", err
	}
	resp.Body.Close()
	return StepPassed, fmt.Sprintf("%s (HTTP %d)", s.cfg.LocalRuntimeURL, resp.StatusCode), nil
}

func (s *ValidationSuite) checkClassifier() (StepStatus, string, error) {
	for _, path := range []string{s.cfg.DiseaseModelPath, s.cfg.DiseaseVectorizerPath} {
		if err := CheckFileExists(path); err != nil {
			return StepSkipped, err.Error() + ", predictions disabled", nil
		}
	}
	return StepPassed, s.cfg.DiseaseModelPath, nil
}

func (s *ValidationSuite) checkHosted() (StepStatus, string, error) {
	if !s.cfg.HasHostedCredential() {
		return StepSkipped, "OPENAI_API_KEY not set, hosted tier and analysis disabled", nil
	}
	return StepPassed, s.cfg.OpenAIModel, nil
}

// runStep executes a validation step with timing and progress output.
func (s *ValidationSuite) runStep(name string, fn func() (StepStatus, string, error)) ValidationStep {
	step := ValidationStep{Name: name, Status: StepRunning}

	if s.showProgress {
		s.printStepStart(name)
	}

	startTime := time.Now()
	step.Status, step.Message, step.Error = fn()
	step.Latency = time.Since(startTime)

	if s.showProgress {
		s.printStep(step)
	}
	return step
}

// buildResult creates a SuiteResult from completed steps.
func (s *ValidationSuite) buildResult(steps []ValidationStep, startTime time.Time) SuiteResult {
	result := SuiteResult{
		Steps:      steps,
		TotalSteps: len(steps),
		Duration:   time.Since(startTime),
		Success:    true,
	}

	for _, step := range steps {
		switch step.Status {
		case StepPassed:
			result.PassedSteps++
		case StepFailed:
			result.FailedSteps++
			result.Success = false
		case StepWarning:
			result.Warnings++
		}
	}

	return result
}

// printHeader prints a validation header.
func (s *ValidationSuite) printHeader(title string) {
	fmt.Fprintln(s.output)
	headerColor := color.New(color.FgCyan, color.Bold)
	headerColor.Fprintf(s.output, "━━━ %s ━━━\n", title)
	fmt.Fprintln(s.output)
}

// printStepStart prints the step name before execution (for real-time feedback).
func (s *ValidationSuite) printStepStart(name string) {
	fmt.Fprintf(s.output, "  ◌ %s...", name)
}

// printStep prints a completed validation step with status indicator.
func (s *ValidationSuite) printStep(step ValidationStep) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon = "✓"
		clr = color.New(color.FgGreen)
	case StepFailed:
		icon = "✗"
		clr = color.New(color.FgRed)
	case StepWarning:
		icon = "!"
		clr = color.New(color.FgYellow)
	case StepSkipped:
		icon = "○"
		clr = color.New(color.FgHiBlack)
	default:
		icon = "?"
		clr = color.New(color.FgWhite)
	}

	// Clear the "running" line and print result
	fmt.Fprintf(s.output, "\r")
	clr.Fprintf(s.output, "  %s %s", icon, step.Name)

	// Add message if present
	if step.Message != "" {
		dim := color.New(color.FgHiBlack)
		dim.Fprintf(s.output, " - %s", step.Message)
	}

	fmt.Fprintln(s.output)

	// Print error details for failed steps
	if (step.Status == StepFailed || step.Status == StepWarning) && step.Error != nil {
		errColor := color.New(color.FgRed)
		errColor.Fprintf(s.output, "    └─ %s\n", step.Error.Error())
	}
}

// printSummary prints the validation summary.
func (s *ValidationSuite) printSummary(result SuiteResult) {
	fmt.Fprintln(s.output)

	if result.Success {
		successColor := color.New(color.FgGreen, color.Bold)
		successColor.Fprintf(s.output, "━━━ Validation Passed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d/%d checks passed in %v)",
			result.PassedSteps, result.TotalSteps, result.Duration.Round(time.Millisecond))
		successColor.Fprintln(s.output, " ━━━")
	} else {
		failColor := color.New(color.FgRed, color.Bold)
		failColor.Fprintf(s.output, "━━━ Validation Failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)",
			result.PassedSteps, result.FailedSteps)
		failColor.Fprintln(s.output, " ━━━")
	}

	fmt.Fprintln(s.output)
}

// GetErrors returns all errors from failed steps.
func (r SuiteResult) GetErrors() []error {
	errors := make([]error, 0)
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			errors = append(errors, step.Error)
		}
	}
	return errors
}

// GetFirstError returns the first error from failed steps, or nil if all passed.
func (r SuiteResult) GetFirstError() error {
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			return step.Error
		}
	}
	return nil
}

// Summary returns a human-readable summary string.
func (r SuiteResult) Summary() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Validation %s: ", map[bool]string{true: "Passed", false: "Failed"}[r.Success]))
	sb.WriteString(fmt.Sprintf("%d/%d checks passed", r.PassedSteps, r.TotalSteps))
	if r.FailedSteps > 0 {
		sb.WriteString(fmt.Sprintf(", %d failed", r.FailedSteps))
	}
	if r.Warnings > 0 {
		sb.WriteString(fmt.Sprintf(", %d warnings", r.Warnings))
	}
	sb.WriteString(fmt.Sprintf(" (took %v)", r.Duration.Round(time.Millisecond)))
	return sb.String()
}
