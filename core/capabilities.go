package core

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Feature names an optional, artifact- or credential-backed capability.
type Feature string

const (
	FeatureLocalSummarizer   Feature = "local_summarizer"
	FeatureDiseaseClassifier Feature = "disease_classifier"
	FeatureHostedLLM         Feature = "hosted_llm"
)

// Capabilities is the startup-computed record of which optional features are
// available for the lifetime of the process. It is a value type; the With*
// methods return modified copies so a published descriptor never changes.
type Capabilities struct {
	// CheckpointPath is the newest fine-tuned summarizer checkpoint, empty if none.
	CheckpointPath string
	// CheckpointModTime is the modification time of CheckpointPath.
	CheckpointModTime time.Time
	// BaseModel identifies the tokenizer/architecture the checkpoint was trained from.
	BaseModel string

	// ClassifierModelPath and ClassifierVectorizerPath are set only when both exist.
	ClassifierModelPath      string
	ClassifierVectorizerPath string

	// HostedModel is the hosted chat model identifier, empty when no credential is configured.
	HostedModel string

	// ProbedAt records when the probe ran.
	ProbedAt time.Time
}

// ProbeCapabilities inspects the filesystem and configuration once and
// returns the capability descriptor. Absence of any artifact is a normal
// outcome, never an error.
func ProbeCapabilities(cfg *Config) Capabilities {
	caps := Capabilities{
		BaseModel: cfg.LocalBaseModel,
		ProbedAt:  time.Now(),
	}

	if path, modTime, err := LatestCheckpoint(cfg.LocalCheckpointDir, cfg.LocalCheckpointSuffixes); err == nil {
		caps.CheckpointPath = path
		caps.CheckpointModTime = modTime
	}

	if fileExists(cfg.DiseaseModelPath) && fileExists(cfg.DiseaseVectorizerPath) {
		caps.ClassifierModelPath = cfg.DiseaseModelPath
		caps.ClassifierVectorizerPath = cfg.DiseaseVectorizerPath
	}

	if cfg.HasHostedCredential() {
		caps.HostedModel = cfg.OpenAIModel
	}

	return caps
}

// Has reports whether a feature is available.
func (c Capabilities) Has(f Feature) bool {
	switch f {
	case FeatureLocalSummarizer:
		return c.CheckpointPath != ""
	case FeatureDiseaseClassifier:
		return c.ClassifierModelPath != "" && c.ClassifierVectorizerPath != ""
	case FeatureHostedLLM:
		return c.HostedModel != ""
	default:
		return false
	}
}

// Without returns a copy of the descriptor with the feature disabled.
// Used when an artifact exists but fails to load at startup.
func (c Capabilities) Without(f Feature) Capabilities {
	switch f {
	case FeatureLocalSummarizer:
		c.CheckpointPath = ""
		c.CheckpointModTime = time.Time{}
	case FeatureDiseaseClassifier:
		c.ClassifierModelPath = ""
		c.ClassifierVectorizerPath = ""
	case FeatureHostedLLM:
		c.HostedModel = ""
	}
	return c
}

// Features returns the availability of every feature keyed by name.
func (c Capabilities) Features() map[Feature]bool {
	return map[Feature]bool{
		FeatureLocalSummarizer:   c.Has(FeatureLocalSummarizer),
		FeatureDiseaseClassifier: c.Has(FeatureDiseaseClassifier),
		FeatureHostedLLM:         c.Has(FeatureHostedLLM),
	}
}

// ErrNoCheckpoint is returned when a checkpoint directory holds no recognised checkpoint.
var ErrNoCheckpoint = errors.New("no summarizer checkpoint found")

// LatestCheckpoint returns the most recently modified file in dir whose name
// ends with one of suffixes (case-insensitive). Subdirectories are ignored.
func LatestCheckpoint(dir string, suffixes []string) (string, time.Time, error) {
	if dir == "" {
		return "", time.Time{}, ErrNoCheckpoint
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", time.Time{}, ErrNoCheckpoint
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var candidates []candidate

	for _, entry := range entries {
		if entry.IsDir() || !hasSuffixFold(entry.Name(), suffixes) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	if len(candidates) == 0 {
		return "", time.Time{}, ErrNoCheckpoint
	}

	// Newest first; name breaks ties so the choice is reproducible
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].modTime.Equal(candidates[j].modTime) {
			return candidates[i].path > candidates[j].path
		}
		return candidates[i].modTime.After(candidates[j].modTime)
	})

	return candidates[0].path, candidates[0].modTime, nil
}

func hasSuffixFold(name string, suffixes []string) bool {
	lower := strings.ToLower(name)
	for _, s := range suffixes {
		if strings.HasSuffix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
