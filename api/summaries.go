package api

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"medreport/classifier"
	"medreport/db"
	"medreport/logging"
	"medreport/pipeline"
	"medreport/shutdown"
)

// summaryResponse is the stored record plus its decoded JSON columns.
type summaryResponse struct {
	db.Summary
	AnalysisParsed          interface{}             `json:"analysis_parsed"`
	PredictedDiseasesParsed []classifier.Prediction `json:"predicted_diseases_parsed"`
}

type createSummaryRequest struct {
	Report int64 `json:"report" binding:"required"`
}

func (s *Server) summarizeReport(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		NotFound(c)
		return
	}
	s.summarize(c, id)
}

func (s *Server) createSummary(c *gin.Context) {
	var req createSummaryRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Report <= 0 {
		BadRequest(c, "report id is required")
		return
	}
	s.summarize(c, req.Report)
}

func (s *Server) summarize(c *gin.Context, reportID int64) {
	report, ok := s.lookupReport(c, reportID)
	if !ok {
		return
	}

	var res pipeline.Result
	run := func(ctx context.Context) error {
		var err error
		res, err = s.runner.Run(ctx, report)
		return err
	}

	var err error
	if s.tracker != nil {
		err = s.tracker.Track(c.Request.Context(), "summarize", run)
	} else {
		err = run(c.Request.Context())
	}

	switch {
	case err == nil:
	case errors.Is(err, pipeline.ErrNoExtractedText):
		BadRequest(c, "report has no extracted text")
		return
	case errors.Is(err, shutdown.ErrTrackerClosed):
		Unavailable(c, "server is shutting down")
		return
	default:
		s.logger.Error("summarize failed", logging.ReportID(reportID), zap.Error(err))
		InternalError(c)
		return
	}

	preds := res.Predictions
	if preds == nil {
		preds = []classifier.Prediction{}
	}
	Created(c, summaryResponse{
		Summary:                 res.Summary,
		AnalysisParsed:          res.Analysis.Value(),
		PredictedDiseasesParsed: preds,
	})
}

func (s *Server) listSummaries(c *gin.Context) {
	summaries, err := s.repo.ListSummaries(c.Request.Context(), Owner(c))
	if err != nil {
		s.logger.Error("failed to list summaries", zap.Error(err))
		InternalError(c)
		return
	}

	out := make([]summaryResponse, len(summaries))
	for i, summary := range summaries {
		out[i] = decodeSummary(summary)
	}
	OK(c, out)
}

func (s *Server) getSummary(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		NotFound(c)
		return
	}

	summary, err := s.repo.GetSummary(c.Request.Context(), id, Owner(c))
	if errors.Is(err, db.ErrNotFound) {
		NotFound(c)
		return
	}
	if err != nil {
		s.logger.Error("failed to load summary", zap.Int64("summary_id", id), zap.Error(err))
		InternalError(c)
		return
	}
	OK(c, decodeSummary(summary))
}

// decodeSummary fills the parsed fields from the stored JSON. Columns that
// do not decode are left as their raw text.
func decodeSummary(summary db.Summary) summaryResponse {
	resp := summaryResponse{Summary: summary, PredictedDiseasesParsed: []classifier.Prediction{}}

	var analysis interface{}
	if err := json.Unmarshal([]byte(summary.AnalysisText), &analysis); err == nil {
		resp.AnalysisParsed = analysis
	} else {
		resp.AnalysisParsed = map[string]interface{}{"raw": summary.AnalysisText}
	}

	var preds []classifier.Prediction
	if err := json.Unmarshal([]byte(summary.PredictedDiseases), &preds); err == nil && preds != nil {
		resp.PredictedDiseasesParsed = preds
	}
	return resp
}
