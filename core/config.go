package core

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"os"
	"time"
)

// Config holds all configuration values
type Config struct {
	// Server Configuration
	Port                 int
	DatabasePath         string
	UploadsDir           string
	MaxFileSize          int64
	AllowSelfSignedCerts bool

	// Logging
	DevMode bool
	LogFile string

	// Hosted LLM (optional - summarization tier 2 and symptom analysis)
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	OpenAIMaxTokens int

	// Hosted call hardening
	AITimeout  time.Duration
	MaxRetries int
	RetryDelay time.Duration

	// Local fine-tuned summarizer (optional - summarization tier 1)
	LocalCheckpointDir      string
	LocalBaseModel          string
	LocalRuntimeURL         string
	LocalMaxSourceTokens    int
	LocalMaxOutputTokens    int
	LocalNumBeams           int
	LocalRuntimeTimeout     time.Duration
	LocalCheckpointSuffixes []string

	// Local disease classifier artifacts (optional)
	DiseaseModelPath      string
	DiseaseVectorizerPath string

	// Pipeline
	PipelineConcurrent bool

	// Pipeline run history
	RunRetentionDays int
	CleanupInterval  time.Duration
}

// DefaultCheckpointSuffixes lists the file suffixes recognised as fine-tuned
// summarizer checkpoints.
var DefaultCheckpointSuffixes = []string{".pt", ".bin", ".safetensors", ".onnx", ".gguf"}

// LoadConfig loads configuration from environment variables with defaults
// that leave every model tier disabled unless its artifact or credential exists.
// No variable is strictly required; the truncation tier always works.
func LoadConfig() (*Config, error) {
	openAIKey := os.Getenv("OPENAI_API_KEY")
	if openAIKey == "" {
		openAIKey = os.Getenv("OPENAI_KEY") // Legacy support
	}

	cfg := &Config{
		Port:                 ParseIntEnv("PORT", 8000),
		DatabasePath:         GetEnvOrDefault("DATABASE_PATH", "./data/medreport.db"),
		UploadsDir:           GetEnvOrDefault("UPLOADS_DIR", "./media"),
		MaxFileSize:          ParseBytesEnv("MAX_FILE_SIZE", 20*BytesPerMB),
		AllowSelfSignedCerts: ParseBoolEnv("ALLOW_SELF_SIGNED_CERTS", false),

		DevMode: ParseBoolEnv("DEV_MODE", false),
		LogFile: GetEnvOrDefault("LOG_FILE", "medreport.log"),

		OpenAIAPIKey:    openAIKey,
		OpenAIBaseURL:   os.Getenv("OPENAI_BASE_URL"),
		OpenAIModel:     GetEnvOrDefault("OPENAI_MODEL", "gpt-4o-mini"),
		OpenAIMaxTokens: ParseIntEnv("OPENAI_MAX_TOKENS", 400),

		// 60s keeps a hung hosted call from stalling a request forever
		AITimeout:  ParseDurationEnv("AI_TIMEOUT", 60),
		MaxRetries: ParseIntEnv("MAX_RETRIES", 0),
		RetryDelay: ParseDurationEnv("RETRY_DELAY", 1),

		LocalCheckpointDir:      GetEnvOrDefault("LOCAL_CHECKPOINT_DIR", "./train/checkpoints"),
		LocalBaseModel:          GetEnvOrDefault("LOCAL_BASE_MODEL", "t5-small"),
		LocalRuntimeURL:         GetEnvOrDefault("LOCAL_RUNTIME_URL", "http://127.0.0.1:8081/summarize"),
		LocalMaxSourceTokens:    ParseIntEnv("LOCAL_MAX_SOURCE_TOKENS", 512),
		LocalMaxOutputTokens:    ParseIntEnv("LOCAL_MAX_OUTPUT_TOKENS", 150),
		LocalNumBeams:           ParseIntEnv("LOCAL_NUM_BEAMS", 4),
		LocalRuntimeTimeout:     ParseDurationEnv("LOCAL_RUNTIME_TIMEOUT", 120),
		LocalCheckpointSuffixes: ParseListEnv("LOCAL_CHECKPOINT_SUFFIXES", DefaultCheckpointSuffixes),

		DiseaseModelPath:      GetEnvOrDefault("DISEASE_MODEL_PATH", "./diseases_model/model.yaml"),
		DiseaseVectorizerPath: GetEnvOrDefault("DISEASE_VECTORIZER_PATH", "./diseases_model/vectorizer.yaml"),

		PipelineConcurrent: ParseBoolEnv("PIPELINE_CONCURRENT", true),

		RunRetentionDays: ParseIntEnv("RUN_HISTORY_RETENTION_DAYS", 30),
		CleanupInterval:  time.Duration(ParseIntEnv("RUN_HISTORY_CLEANUP_INTERVAL", 24)) * time.Hour,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks for missing paths and numeric settings that can never work.
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return ErrMissingConfig("DATABASE_PATH")
	}
	if c.UploadsDir == "" {
		return ErrMissingConfig("UPLOADS_DIR")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return ErrInvalidValue("PORT", fmt.Sprintf("%d", c.Port), "must be between 1 and 65535")
	}
	if c.MaxFileSize <= 0 {
		return ErrInvalidValue("MAX_FILE_SIZE", fmt.Sprintf("%d", c.MaxFileSize), "must be positive")
	}
	if c.OpenAIMaxTokens <= 0 {
		return ErrInvalidValue("OPENAI_MAX_TOKENS", fmt.Sprintf("%d", c.OpenAIMaxTokens), "must be positive")
	}
	if c.MaxRetries < 0 {
		return ErrInvalidValue("MAX_RETRIES", fmt.Sprintf("%d", c.MaxRetries), "must not be negative")
	}
	if c.LocalNumBeams < 1 {
		return ErrInvalidValue("LOCAL_NUM_BEAMS", fmt.Sprintf("%d", c.LocalNumBeams), "must be at least 1")
	}
	if c.LocalMaxSourceTokens < 1 || c.LocalMaxOutputTokens < 1 {
		return ErrInvalidValue("LOCAL_MAX_SOURCE_TOKENS/LOCAL_MAX_OUTPUT_TOKENS", "", "must be at least 1")
	}
	if c.RunRetentionDays < 0 {
		return ErrInvalidValue("RUN_HISTORY_RETENTION_DAYS", fmt.Sprintf("%d", c.RunRetentionDays), "must not be negative")
	}
	return nil
}

// HasHostedCredential reports whether a hosted LLM API key is configured.
func (c *Config) HasHostedCredential() bool {
	return c.OpenAIAPIKey != ""
}

// GetHTTPClient returns an HTTP client configured with TLS settings based on AllowSelfSignedCerts
// This should be used for all HTTP requests to external APIs to ensure TLS configuration is respected
func GetHTTPClient(cfg *Config, timeout time.Duration) *http.Client {
	client := &http.Client{
		Timeout: timeout,
	}

	if cfg != nil && cfg.AllowSelfSignedCerts {
		client.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return client
}
