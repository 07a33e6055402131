package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"medreport/api"
	"medreport/core"
	"medreport/core/validation"
	"medreport/db"
	"medreport/logging"
	"medreport/metrics"
	"medreport/shutdown"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Warning: could not read .env: %v\n", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		var exit exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		if cfgErr, ok := core.IsConfigError(err); ok {
			fmt.Fprintf(os.Stderr, "Configuration error [%s]: %v\n", cfgErr.Code, cfgErr)
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(core.ExitCodeError)
	}
}

// exitError carries a specific process exit code out of a command.
type exitError struct {
	code int
}

func (e exitError) Error() string {
	return core.ExitCodeName(e.code)
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "medreport",
		Short:         "Medical report summarization and disease hinting service",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       core.GetVersionInfo(),
	}

	serve := serveCmd()
	root.RunE = serve.RunE
	root.Flags().AddFlagSet(serve.Flags())

	root.AddCommand(serve)
	root.AddCommand(migrateCmd())
	root.AddCommand(extractCmd())
	root.AddCommand(summarizeCmd())
	root.AddCommand(capabilitiesCmd())
	root.AddCommand(preflightCmd())
	return root
}

func serveCmd() *cobra.Command {
	var skipPreflight bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := core.LoadConfig()
			if err != nil {
				return err
			}
			if !skipPreflight {
				result := validation.NewValidationSuite(cfg).WithOutput(cmd.OutOrStdout()).Validate()
				if !result.Success {
					return fmt.Errorf("preflight failed: %w", result.GetFirstError())
				}
			}
			code, err := runServer(cfg)
			if err != nil {
				return err
			}
			if code != core.ExitCodeSuccess {
				return exitError{code: code}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&skipPreflight, "skip-preflight", false, "start without the storage and model checks")
	return cmd
}

// runServer blocks until shutdown and returns the exit code for the signal
// that caused it.
func runServer(cfg *core.Config) (int, error) {
	logger, err := logging.NewLogger(cfg.DevMode, cfg.LogFile)
	if err != nil {
		return core.ExitCodeError, fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("configuration loaded",
		zap.String("version", core.GetVersionInfo()),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.DatabasePath),
		zap.String("uploads_dir", cfg.UploadsDir),
		zap.Int64("max_file_size", cfg.MaxFileSize),
		zap.Duration("ai_timeout", cfg.AITimeout),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("pipeline_concurrent", cfg.PipelineConcurrent),
		zap.Bool("allow_self_signed_certs", cfg.AllowSelfSignedCerts),
		zap.Bool("dev_mode", cfg.DevMode))

	manager := shutdown.NewManager(logger)
	manager.Register("logger", shutdown.PriorityLogger, func(context.Context) error {
		// stdout sync fails on some terminals; nothing to recover
		_ = logger.Sync()
		return nil
	})

	store, err := openStorage(cfg, logger)
	if err != nil {
		logger.Error("storage unavailable", zap.Error(err))
		manager.Shutdown()
		return core.ExitCodeError, err
	}
	manager.Register("run history writer", shutdown.PriorityWorkers, func(ctx context.Context) error {
		if !store.writer.StopWithTimeout(remaining(ctx, db.DefaultDrainTimeout)) {
			return fmt.Errorf("run history writer did not drain (%d dropped)", store.writer.Dropped())
		}
		return nil
	})
	manager.Register("database", shutdown.PriorityDatabase, func(context.Context) error {
		return store.database.Close()
	})

	store.database.StartCleanupScheduler(manager.Context(), db.CleanupSchedulerConfig{
		RetentionDays: cfg.RunRetentionDays,
		Interval:      cfg.CleanupInterval,
		OnCleanup: func(result db.CleanupResult, err error) {
			if err != nil {
				logger.Warn("run history cleanup failed", zap.Error(err))
				return
			}
			if result.PipelineRunsDeleted > 0 {
				logger.Info("run history pruned",
					zap.Int64("deleted", result.PipelineRunsDeleted),
					zap.Duration("took", result.Duration))
			}
		},
	})

	m := loadModels(cfg, logger)
	collector := metrics.NewStore(metrics.StoreConfig{
		TaskHistoryCapacity: metrics.DefaultStoreConfig().TaskHistoryCapacity,
		Version:             core.GetVersion(),
	}, time.Now())

	p, err := newPipeline(cfg, m, pipelineDeps{store: store.repo, runs: store.repo, metrics: collector}, logger)
	if err != nil {
		manager.Shutdown()
		return core.ExitCodeError, err
	}

	server, err := api.NewServer(api.Options{
		Repository:   store.repo,
		Extractor:    newExtractor(cfg, logger),
		Runner:       p,
		Metrics:      collector,
		Tracker:      manager,
		Capabilities: m.caps,
		Logger:       logger,
		UploadsDir:   cfg.UploadsDir,
		MaxFileSize:  cfg.MaxFileSize,
		DevMode:      cfg.DevMode,
	})
	if err != nil {
		manager.Shutdown()
		return core.ExitCodeError, err
	}

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	manager.Register("http server", shutdown.PriorityHTTP, func(ctx context.Context) error {
		return httpServer.Shutdown(ctx)
	})

	manager.Start()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-manager.Context().Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", zap.Error(err))
			manager.Shutdown()
			return core.ExitCodeError, err
		}
	}

	if err := manager.Shutdown(); err != nil {
		return core.ExitCodeError, err
	}
	code := manager.ExitCode()
	if core.IsSignalExit(code) {
		logger.Info("stopped", zap.String("reason", core.ExitCodeName(code)))
	}
	return code, nil
}

// remaining returns the time left before ctx's deadline, capped at limit.
func remaining(ctx context.Context, limit time.Duration) time.Duration {
	deadline, ok := ctx.Deadline()
	if !ok {
		return limit
	}
	if left := time.Until(deadline); left < limit {
		return left
	}
	return limit
}
