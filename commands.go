package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"medreport/core"
	"medreport/core/validation"
	"medreport/db"
	"medreport/logging"
	"medreport/metrics"
	"medreport/pipeline"
)

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if err := db.MigrateUpFromPath(cfg.DatabasePath); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabasePath)
		},
	})

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if err := db.MigrateDownFromPath(cfg.DatabasePath, steps); err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabasePath)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "migrations to roll back; -1 rolls back everything")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			return printVersion(cmd.OutOrStdout(), cfg.DatabasePath)
		},
	})

	return cmd
}

func printVersion(w io.Writer, dbPath string) error {
	version, dirty, err := db.MigrationVersionFromPath(dbPath)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "schema version %d", version)
	if dirty {
		fmt.Fprint(w, " (dirty)")
	}
	fmt.Fprintln(w)
	return nil
}

func extractCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "extract <file>",
		Short: "Print the sanitized text of a PDF, DOCX or text file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cliSetup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			res := newExtractor(cfg, logger).ExtractFile(args[0])
			if res.Text == "" && res.Err != nil {
				return fmt.Errorf("no text extracted from %s: %w", filepath.Base(args[0]), res.Err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), res.Text)
			return nil
		},
	}
}

// cliSummary is what the summarize command prints.
type cliSummary struct {
	File              string      `json:"file"`
	SummaryTier       string      `json:"summary_tier"`
	SummaryText       string      `json:"summary_text"`
	Analysis          interface{} `json:"analysis"`
	PredictedDiseases interface{} `json:"predicted_diseases"`
	RequestID         string      `json:"request_id"`
}

func summarizeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summarize <file>",
		Short: "Run the summary pipeline over one file without the database",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cliSetup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			res := newExtractor(cfg, logger).ExtractFile(args[0])
			if res.Err != nil && res.Text == "" {
				logger.Warn("extraction produced no text")
			}

			m := loadModels(cfg, logger)
			p, err := newPipeline(cfg, m, pipelineDeps{store: pipeline.NewMemoryStore(), metrics: metrics.Nop{}}, logger)
			if err != nil {
				return err
			}

			out, err := p.Run(cmd.Context(), db.Report{
				OwnerID:       "cli",
				FileName:      filepath.Base(args[0]),
				ExtractedText: res.Text,
			})
			if err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cliSummary{
				File:              filepath.Base(args[0]),
				SummaryTier:       out.Summary.SummaryTier,
				SummaryText:       out.Summary.SummaryText,
				Analysis:          out.Analysis.Value(),
				PredictedDiseases: out.Predictions,
				RequestID:         out.RequestID,
			})
		},
	}
}

func capabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities",
		Short: "Show which optional model tiers are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := cliSetup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			printCapabilities(cmd.OutOrStdout(), loadModels(cfg, logger).caps)
			return nil
		},
	}
}

func printCapabilities(w io.Writer, caps core.Capabilities) {
	header := color.New(color.FgCyan, color.Bold)
	on := color.New(color.FgGreen)
	off := color.New(color.FgHiBlack)

	header.Fprintln(w, "Capabilities")

	features := caps.Features()
	names := make([]string, 0, len(features))
	for f := range features {
		names = append(names, string(f))
	}
	sort.Strings(names)

	details := map[core.Feature]string{
		core.FeatureLocalSummarizer:   caps.CheckpointPath,
		core.FeatureHostedLLM:         caps.HostedModel,
		core.FeatureDiseaseClassifier: caps.ClassifierModelPath,
	}
	for _, name := range names {
		f := core.Feature(name)
		if features[f] {
			on.Fprintf(w, "  ✓ %s", name)
			off.Fprintf(w, " %s\n", details[f])
			continue
		}
		off.Fprintf(w, "  ○ %s (disabled)\n", name)
	}
	fmt.Fprintln(w, "  ✓ truncation (always available)")
}

func preflightCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check configuration, storage and model tiers without starting",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			result := validation.NewValidationSuite(cfg).WithOutput(cmd.OutOrStdout()).Validate()
			if !result.Success {
				return exitError{code: core.ExitCodeError}
			}
			return nil
		},
	}
}

// cliSetup loads configuration and a logger that keeps stdout for results.
func cliSetup() (*core.Config, *logging.Logger, error) {
	cfg, err := core.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.NewStderrLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

