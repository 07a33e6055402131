// Package pipeline turns a report's extracted text into a persisted summary
// record: cascade summary, symptom analysis and ranked disease candidates.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"medreport/analyzer"
	"medreport/classifier"
	"medreport/db"
	"medreport/docprocessor"
	"medreport/logging"
	"medreport/metrics"
	"medreport/summarizer"
)

// ClassifierFallbackChars is how much report text feeds the classifier when
// the analysis lists no symptoms.
const ClassifierFallbackChars = 500

var (
	// ErrNoExtractedText means the report has nothing to summarize. Callers
	// surface it as an invalid request.
	ErrNoExtractedText = errors.New("report has no extracted text")

	// ErrInternal wraps every other failure. Callers surface it generically.
	ErrInternal = errors.New("internal pipeline failure")
)

// Summarizer produces exactly one summary.
type Summarizer interface {
	Summarize(ctx context.Context, text string) summarizer.Summary
}

// Analyzer produces a symptom analysis; it never fails.
type Analyzer interface {
	Analyze(ctx context.Context, text string) analyzer.Analysis
}

// Predictor ranks candidate diseases; an unavailable predictor returns none.
type Predictor interface {
	Predict(text string) []classifier.Prediction
}

// Store persists summary records.
type Store interface {
	CreateSummary(ctx context.Context, summary db.Summary) (db.Summary, error)
}

// RunRecorder persists run history. Failures are logged, never returned.
type RunRecorder interface {
	InsertPipelineRun(ctx context.Context, run db.PipelineRun) (int64, error)
}

// Options wires the pipeline's collaborators. Summarizer, Analyzer and Store
// are required.
type Options struct {
	Summarizer Summarizer
	Analyzer   Analyzer
	Predictor  Predictor
	Store      Store
	Runs       RunRecorder
	Metrics    metrics.Collector
	Logger     *logging.Logger

	// Concurrent runs the cascade and the analyzer in parallel.
	Concurrent bool
}

// Result is the persisted record plus the decoded analysis and predictions.
type Result struct {
	RequestID   string
	Summary     db.Summary
	Analysis    analyzer.Analysis
	Predictions []classifier.Prediction
	Attempts    []summarizer.Result
}

// Pipeline is safe for concurrent use; it holds no per-request state.
type Pipeline struct {
	summarizer Summarizer
	analyzer   Analyzer
	predictor  Predictor
	store      Store
	runs       RunRecorder
	metrics    metrics.Collector
	logger     *logging.Logger
	concurrent bool
}

// New validates opts and builds a Pipeline.
func New(opts Options) (*Pipeline, error) {
	if opts.Summarizer == nil || opts.Analyzer == nil || opts.Store == nil {
		return nil, fmt.Errorf("pipeline requires a summarizer, an analyzer and a store")
	}
	if opts.Predictor == nil {
		opts.Predictor = noPredictor{}
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}

	return &Pipeline{
		summarizer: opts.Summarizer,
		analyzer:   opts.Analyzer,
		predictor:  opts.Predictor,
		store:      opts.Store,
		runs:       opts.Runs,
		metrics:    opts.Metrics,
		logger:     opts.Logger.Named("pipeline"),
		concurrent: opts.Concurrent,
	}, nil
}

// Run summarizes report and persists the record. Ownership must already be
// checked by the caller. The returned error is ErrNoExtractedText or wraps
// ErrInternal; nothing is persisted in either case.
func (p *Pipeline) Run(ctx context.Context, report db.Report) (res Result, err error) {
	start := time.Now()
	res.RequestID = uuid.NewString()
	log := p.logger.With(zap.String("request_id", res.RequestID), logging.ReportID(report.ID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("pipeline panic", zap.Any("panic", r))
			res = Result{RequestID: res.RequestID}
			err = fmt.Errorf("%w: panic: %v", ErrInternal, r)
		}
		p.record(ctx, log, report, res, err, start)
	}()

	text := docprocessor.Sanitize(report.ExtractedText)
	if text == "" {
		return res, ErrNoExtractedText
	}
	log.Info("summarizing report", logging.InputChars(text))

	summary, analysis, err := p.summarizeAndAnalyze(ctx, text)
	if err != nil {
		return Result{RequestID: res.RequestID}, err
	}
	res.Attempts = summary.Attempts
	res.Analysis = analysis

	res.Predictions = p.predictor.Predict(ClassifierInput(analysis, text))
	if res.Predictions == nil {
		res.Predictions = []classifier.Prediction{}
	}

	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return Result{RequestID: res.RequestID}, fmt.Errorf("%w: encode analysis: %v", ErrInternal, err)
	}
	predictionsJSON, err := json.Marshal(res.Predictions)
	if err != nil {
		return Result{RequestID: res.RequestID}, fmt.Errorf("%w: encode predictions: %v", ErrInternal, err)
	}

	record, err := p.store.CreateSummary(ctx, db.Summary{
		ReportID:          report.ID,
		SummaryText:       summary.Text,
		AnalysisText:      string(analysisJSON),
		PredictedDiseases: string(predictionsJSON),
		SummaryTier:       string(summary.Tier),
	})
	if err != nil {
		return Result{RequestID: res.RequestID}, fmt.Errorf("%w: persist summary: %v", ErrInternal, err)
	}
	res.Summary = record

	log.Info("summary stored",
		zap.Int64("summary_id", record.ID),
		zap.String("tier", string(summary.Tier)),
		zap.String("analysis", string(analysis.Outcome)),
		zap.Int("predictions", len(res.Predictions)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()))
	return res, nil
}

// summarizeAndAnalyze runs the two independent model calls, in parallel when
// configured. A panic in either becomes ErrInternal.
func (p *Pipeline) summarizeAndAnalyze(ctx context.Context, text string) (summarizer.Summary, analyzer.Analysis, error) {
	var summary summarizer.Summary
	var analysis analyzer.Analysis

	summarize := func() error {
		return guard("summarizer", func() { summary = p.summarizer.Summarize(ctx, text) })
	}
	analyze := func() error {
		return guard("analyzer", func() { analysis = p.analyzer.Analyze(ctx, text) })
	}

	if !p.concurrent {
		if err := summarize(); err != nil {
			return summary, analysis, err
		}
		if err := analyze(); err != nil {
			return summary, analysis, err
		}
		return summary, analysis, nil
	}

	var g errgroup.Group
	g.Go(summarize)
	g.Go(analyze)
	err := g.Wait()
	return summary, analysis, err
}

func guard(stage string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panic: %v", ErrInternal, stage, r)
		}
	}()
	fn()
	return nil
}

// ClassifierInput is the text handed to the disease classifier: the analysis
// symptoms joined by ", ", or the first ClassifierFallbackChars characters of
// the report when there are none.
func ClassifierInput(analysis analyzer.Analysis, text string) string {
	if symptoms := analysis.Symptoms(); len(symptoms) > 0 {
		return strings.Join(symptoms, ", ")
	}
	return docprocessor.TruncateRunes(text, ClassifierFallbackChars)
}

// record publishes metrics and run history for one invocation.
func (p *Pipeline) record(ctx context.Context, log *logging.Logger, report db.Report, res Result, runErr error, start time.Time) {
	elapsed := time.Since(start)

	task := metrics.TaskRecord{
		ID:        res.RequestID,
		ReportID:  report.ID,
		Status:    metrics.TaskStatusSuccess,
		StartTime: start,
		EndTime:   start.Add(elapsed),
		Duration:  elapsed,
	}
	run := db.PipelineRun{
		RequestID:  res.RequestID,
		ReportID:   report.ID,
		DurationMS: elapsed.Milliseconds(),
		Status:     metrics.TaskStatusSuccess,
	}

	if runErr != nil {
		task.Status = metrics.TaskStatusError
		task.ErrorMsg = runErr.Error()
		run.Status = metrics.TaskStatusError
		run.ErrorMessage = runErr.Error()
		if !errors.Is(runErr, ErrNoExtractedText) {
			log.Error("pipeline failed", zap.Error(runErr))
		}
	} else {
		tier := res.Summary.SummaryTier
		diseases := make([]string, len(res.Predictions))
		for i, pred := range res.Predictions {
			diseases[i] = pred.Disease
		}

		for _, attempt := range res.Attempts {
			p.metrics.RecordTierAttempt(string(attempt.Tier), attempt.Status.String(), attempt.Elapsed)
		}
		p.metrics.RecordAnalysis(string(res.Analysis.Outcome))
		if len(diseases) > 0 {
			p.metrics.RecordPredictions(diseases)
		}

		task.SummaryTier = tier
		task.AnalysisOutcome = string(res.Analysis.Outcome)
		task.Predictions = len(res.Predictions)
		run.SummaryID = res.Summary.ID
		run.SummaryTier = tier
		run.AnalysisOutcome = task.AnalysisOutcome
		run.PredictionCount = task.Predictions
	}

	p.metrics.RecordTask(task)

	if p.runs == nil {
		return
	}
	// History must not depend on the request context surviving
	if _, err := p.runs.InsertPipelineRun(context.WithoutCancel(ctx), run); err != nil {
		log.Warn("failed to record pipeline run", zap.Error(err))
	}
}

type noPredictor struct{}

func (noPredictor) Predict(string) []classifier.Prediction { return []classifier.Prediction{} }
