// Package api exposes report upload, summarization and history over HTTP.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"medreport/core"
	"medreport/db"
	"medreport/docprocessor"
	"medreport/logging"
	"medreport/metrics"
	"medreport/pipeline"
)

// Repository is the persistence the handlers need.
type Repository interface {
	CreateReport(ctx context.Context, report db.Report) (db.Report, error)
	UpdateExtractedText(ctx context.Context, id int64, ownerID, text string) error
	GetReport(ctx context.Context, id int64, ownerID string) (db.Report, error)
	ListReports(ctx context.Context, ownerID string) ([]db.Report, error)
	GetSummary(ctx context.Context, id int64, ownerID string) (db.Summary, error)
	ListSummaries(ctx context.Context, ownerID string) ([]db.Summary, error)
	ListPipelineRuns(ctx context.Context, ownerID string, limit int) ([]db.PipelineRun, error)
}

// Extractor turns uploaded bytes into sanitized text.
type Extractor interface {
	Extract(name string, data []byte) docprocessor.ExtractionResult
}

// Runner executes the summary pipeline for a report.
type Runner interface {
	Run(ctx context.Context, report db.Report) (pipeline.Result, error)
}

// MetricsSource supplies the counters served at /api/metrics.
type MetricsSource interface {
	Snapshot(recent int) metrics.Snapshot
}

// Tracker wraps long operations so shutdown can wait for them. Once shutdown
// begins it returns shutdown.ErrTrackerClosed.
type Tracker interface {
	Track(ctx context.Context, name string, fn func(context.Context) error) error
}

// Options configures a Server. Repository, Extractor and Runner are required.
type Options struct {
	Repository   Repository
	Extractor    Extractor
	Runner       Runner
	Metrics      MetricsSource
	Tracker      Tracker
	Capabilities core.Capabilities
	Logger       *logging.Logger

	UploadsDir  string
	MaxFileSize int64
	// AllowedOrigins restricts CORS; empty allows every origin.
	AllowedOrigins []string
	DevMode        bool
}

// Server holds the handlers' dependencies.
type Server struct {
	repo        Repository
	extractor   Extractor
	runner      Runner
	metrics     MetricsSource
	tracker     Tracker
	caps        core.Capabilities
	logger      *logging.Logger
	uploadsDir  string
	maxFileSize int64
	started     time.Time
	router      *gin.Engine
}

// NewServer builds the gin engine with every route registered.
func NewServer(opts Options) (*Server, error) {
	if opts.Repository == nil || opts.Extractor == nil || opts.Runner == nil {
		return nil, errors.New("api server requires a repository, an extractor and a pipeline")
	}
	if opts.Logger == nil {
		opts.Logger = logging.NewNop()
	}
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = 20 << 20
	}

	s := &Server{
		repo:        opts.Repository,
		extractor:   opts.Extractor,
		runner:      opts.Runner,
		metrics:     opts.Metrics,
		tracker:     opts.Tracker,
		caps:        opts.Capabilities,
		logger:      opts.Logger.Named("api"),
		uploadsDir:  opts.UploadsDir,
		maxFileSize: opts.MaxFileSize,
		started:     time.Now(),
	}

	if opts.DevMode {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.HandleMethodNotAllowed = true
	router.Use(gin.Recovery())
	router.Use(RequestLogger(s.logger, "/healthz"))

	corsConfig := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization", OwnerHeader},
		MaxAge:       12 * time.Hour,
	}
	if len(opts.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = opts.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	router.Use(cors.New(corsConfig))

	router.GET("/healthz", s.health)

	apiGroup := router.Group("/api", RequireOwner())
	s.RegisterRoutes(apiGroup)

	s.router = router
	return s, nil
}

// RegisterRoutes attaches the owner-scoped routes to rg.
func (s *Server) RegisterRoutes(rg *gin.RouterGroup) {
	reports := rg.Group("/reports")
	reports.POST("", LimitBodySize(s.maxFileSize+1<<20), s.uploadReport)
	reports.GET("", s.listReports)
	reports.GET("/:id", s.getReport)
	reports.POST("/:id/extract", s.reextractReport)
	reports.POST("/:id/summarize", s.summarizeReport)

	summaries := rg.Group("/summaries")
	summaries.POST("", s.createSummary)
	summaries.GET("", s.listSummaries)
	summaries.GET("/:id", s.getSummary)

	rg.GET("/runs", s.listRuns)
	rg.GET("/metrics", s.metricsSnapshot)
}

// Router returns the HTTP handler.
func (s *Server) Router() *gin.Engine {
	return s.router
}
