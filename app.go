package main

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"medreport/analyzer"
	"medreport/classifier"
	"medreport/core"
	"medreport/db"
	"medreport/docprocessor"
	"medreport/llm"
	"medreport/logging"
	"medreport/metrics"
	"medreport/pipeline"
	"medreport/summarizer"
)

// models holds the optional model tiers resolved at startup.
type models struct {
	caps       core.Capabilities
	cascade    *summarizer.Cascade
	analyzer   *analyzer.Analyzer
	classifier *classifier.Classifier
}

// loadModels probes the environment once and builds every tier it found.
// An artifact that exists but will not load is dropped from the capability
// record so the process never advertises a feature it cannot serve.
func loadModels(cfg *core.Config, logger *logging.Logger) models {
	caps := core.ProbeCapabilities(cfg)

	var clf *classifier.Classifier
	if caps.Has(core.FeatureDiseaseClassifier) {
		loaded, err := classifier.Load(caps.ClassifierModelPath, caps.ClassifierVectorizerPath, logger)
		if err != nil {
			logger.Warn("disease classifier disabled",
				zap.Error(core.ErrArtifactUnusable(caps.ClassifierModelPath, err)))
			caps = caps.Without(core.FeatureDiseaseClassifier)
		} else {
			clf = loaded
		}
	}

	tiers := []summarizer.Summarizer{
		summarizer.NewLocal(summarizer.LocalOptionsFromConfig(cfg, caps), core.GetHTTPClient(cfg, cfg.LocalRuntimeTimeout)),
	}

	// A typed nil must never reach the hosted tier or the analyzer
	var completer analyzer.Completer
	client, err := llm.NewOpenAIClient(cfg, logger)
	switch {
	case err == nil:
		completer = client
		tiers = append(tiers, summarizer.NewHosted(client))
	case errors.Is(err, llm.ErrNoCredential):
		caps = caps.Without(core.FeatureHostedLLM)
	default:
		logger.Warn("hosted LLM disabled", zap.Error(err))
		caps = caps.Without(core.FeatureHostedLLM)
	}

	m := models{
		caps:       caps,
		cascade:    summarizer.NewCascade(logger, tiers...),
		analyzer:   analyzer.New(completer, logger),
		classifier: clf,
	}

	logger.Info("capabilities resolved",
		zap.Bool("local_summarizer", caps.Has(core.FeatureLocalSummarizer)),
		zap.String("checkpoint", caps.CheckpointPath),
		zap.Bool("hosted_llm", caps.Has(core.FeatureHostedLLM)),
		zap.String("hosted_model", caps.HostedModel),
		zap.Bool("disease_classifier", caps.Has(core.FeatureDiseaseClassifier)))
	return m
}

// pipelineDeps are the persistence and metrics sinks a pipeline writes to.
type pipelineDeps struct {
	store   pipeline.Store
	runs    pipeline.RunRecorder
	metrics metrics.Collector
}

func newPipeline(cfg *core.Config, m models, deps pipelineDeps, logger *logging.Logger) (*pipeline.Pipeline, error) {
	return pipeline.New(pipeline.Options{
		Summarizer: m.cascade,
		Analyzer:   m.analyzer,
		Predictor:  m.classifier,
		Store:      deps.store,
		Runs:       deps.runs,
		Metrics:    deps.metrics,
		Logger:     logger,
		Concurrent: cfg.PipelineConcurrent,
	})
}

// storage is the opened database with its repository and history writer.
type storage struct {
	database *db.Database
	writer   *db.AsyncWriter
	repo     *db.Repository
}

// openStorage opens and migrates the database, then starts the run-history
// writer. The repository that executes queued writes has no writer of its
// own so it always inserts synchronously.
func openStorage(cfg *core.Config, logger *logging.Logger) (*storage, error) {
	database, err := db.NewDatabase(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := database.Migrate(); err != nil {
		database.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	direct := db.NewRepository(database, nil)
	writer := db.NewAsyncWriter(direct.CreateAsyncWriteHandler(func(err error) {
		logger.Warn("pipeline run write failed", zap.Error(err))
	}))
	writer.Start()

	return &storage{
		database: database,
		writer:   writer,
		repo:     db.NewRepository(database, writer),
	}, nil
}

func newExtractor(cfg *core.Config, logger *logging.Logger) *docprocessor.Extractor {
	return docprocessor.NewExtractor(logger, cfg.MaxFileSize)
}
