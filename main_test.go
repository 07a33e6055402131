package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medreport/core"
	"medreport/logging"
)

// testEnv points every path setting at a temp dir and disables the hosted tier.
func testEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DATABASE_PATH", filepath.Join(dir, "data", "medreport.db"))
	t.Setenv("UPLOADS_DIR", filepath.Join(dir, "media"))
	t.Setenv("LOG_FILE", filepath.Join(dir, "medreport.log"))
	t.Setenv("LOCAL_CHECKPOINT_DIR", filepath.Join(dir, "checkpoints"))
	t.Setenv("DISEASE_MODEL_PATH", filepath.Join(dir, "model.yaml"))
	t.Setenv("DISEASE_VECTORIZER_PATH", filepath.Join(dir, "vectorizer.yaml"))
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("OPENAI_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_Subcommands(t *testing.T) {
	root := newRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "migrate", "extract", "summarize", "capabilities", "preflight"} {
		assert.True(t, names[want], "missing command %q", want)
	}
	assert.NotNil(t, root.Flags().Lookup("skip-preflight"), "root runs serve and shares its flags")
}

func TestMigrateCommands(t *testing.T) {
	testEnv(t)

	out, err := execute(t, "migrate", "up")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 3")

	out, err = execute(t, "migrate", "down", "--steps", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")

	out, err = execute(t, "migrate", "version")
	require.NoError(t, err)
	assert.Contains(t, out, "schema version 2")
}

func TestExtractCommand(t *testing.T) {
	dir := testEnv(t)
	file := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(file, []byte("\ufeffBlood   pressure\x07 normal.\r\n"), 0o644))

	out, err := execute(t, "extract", file)
	require.NoError(t, err)
	assert.Equal(t, "Blood pressure normal.", strings.TrimSpace(out))

	_, err = execute(t, "extract")
	assert.Error(t, err, "file argument is required")
}

func TestSummarizeCommand_TruncationOnly(t *testing.T) {
	dir := testEnv(t)
	file := filepath.Join(dir, "report.txt")
	text := strings.Repeat("a", 900)
	require.NoError(t, os.WriteFile(file, []byte(text), 0o644))

	out, err := execute(t, "summarize", file)
	require.NoError(t, err)

	var got cliSummary
	require.NoError(t, json.Unmarshal([]byte(out), &got), out)
	assert.Equal(t, "truncation", got.SummaryTier)
	assert.Equal(t, strings.Repeat("a", 800)+"...", got.SummaryText)
	assert.Equal(t, map[string]interface{}{"raw": "No OpenAI key"}, got.Analysis)
	assert.Equal(t, []interface{}{}, got.PredictedDiseases)
	assert.NotEmpty(t, got.RequestID)
}

func TestSummarizeCommand_EmptyFile(t *testing.T) {
	dir := testEnv(t)
	file := filepath.Join(dir, "blank.txt")
	require.NoError(t, os.WriteFile(file, []byte("   \n"), 0o644))

	_, err := execute(t, "summarize", file)
	assert.Error(t, err)
}

func TestLoadModels_NothingConfigured(t *testing.T) {
	testEnv(t)
	cfg, err := core.LoadConfig()
	require.NoError(t, err)

	m := loadModels(cfg, logging.NewNop())
	for f, on := range m.caps.Features() {
		assert.False(t, on, "%s should be disabled", f)
	}
	assert.Empty(t, m.cascade.AvailableTiers())
	assert.False(t, m.analyzer.Available())
	assert.False(t, m.classifier.Available())
}

func TestLoadModels_BrokenClassifierIsDowngraded(t *testing.T) {
	dir := testEnv(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "model.yaml"), []byte("::: not yaml"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "vectorizer.yaml"), []byte("::: not yaml"), 0o644))

	cfg, err := core.LoadConfig()
	require.NoError(t, err)
	require.True(t, core.ProbeCapabilities(cfg).Has(core.FeatureDiseaseClassifier), "probe sees the files")

	m := loadModels(cfg, logging.NewNop())
	assert.False(t, m.caps.Has(core.FeatureDiseaseClassifier))
	assert.Nil(t, m.classifier)
}

func TestPrintCapabilities(t *testing.T) {
	color.NoColor = true
	defer func() { color.NoColor = false }()

	var buf bytes.Buffer
	printCapabilities(&buf, core.Capabilities{HostedModel: "gpt-4o-mini"})

	out := buf.String()
	assert.Contains(t, out, "✓ hosted_llm gpt-4o-mini")
	assert.Contains(t, out, "○ local_summarizer (disabled)")
	assert.Contains(t, out, "○ disease_classifier (disabled)")
	assert.Contains(t, out, "truncation (always available)")
}

func TestOpenStorage(t *testing.T) {
	testEnv(t)
	cfg, err := core.LoadConfig()
	require.NoError(t, err)

	store, err := openStorage(cfg, logging.NewNop())
	require.NoError(t, err)
	defer store.database.Close()

	assert.True(t, store.writer.IsStarted())
	assert.True(t, store.writer.StopWithTimeout(time.Second))
	assert.FileExists(t, cfg.DatabasePath)
}

func TestRemaining(t *testing.T) {
	assert.Equal(t, 5*time.Second, remaining(context.Background(), 5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	got := remaining(ctx, time.Minute)
	assert.True(t, got > 0 && got <= time.Second, "got %v", got)
}

func TestExitError(t *testing.T) {
	assert.Equal(t, "interrupted (SIGINT)", exitError{code: core.ExitCodeSIGINT}.Error())
}
