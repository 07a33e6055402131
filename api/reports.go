package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"medreport/core"
	"medreport/db"
	"medreport/logging"
)

// reportsSubdir is where blobs live under the uploads directory.
const reportsSubdir = "reports"

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

func (s *Server) uploadReport(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			TooLarge(c, "file exceeds the "+core.FormatBytesCompact(s.maxFileSize)+" upload limit")
			return
		}
		BadRequest(c, "file is required")
		return
	}
	if fileHeader.Size > s.maxFileSize {
		TooLarge(c, "file exceeds the "+core.FormatBytesCompact(s.maxFileSize)+" upload limit")
		return
	}

	data, err := readUpload(fileHeader.Open, s.maxFileSize)
	if err != nil {
		s.logger.Warn("failed to read upload", zap.Error(err))
		BadRequest(c, "could not read uploaded file")
		return
	}

	name := safeFileName(fileHeader.Filename)
	relPath := filepath.ToSlash(filepath.Join(reportsSubdir, uuid.NewString()+"_"+name))
	if err := s.storeBlob(relPath, data); err != nil {
		s.logger.Error("failed to store upload", zap.String("path", relPath), zap.Error(err))
		InternalError(c)
		return
	}

	extraction := s.extractor.Extract(name, data)

	report, err := s.repo.CreateReport(c.Request.Context(), db.Report{
		OwnerID:       Owner(c),
		FileName:      name,
		FilePath:      relPath,
		ExtractedText: extraction.Text,
	})
	if err != nil {
		s.logger.Error("failed to create report", zap.Error(err))
		InternalError(c)
		return
	}

	s.logger.Info("report uploaded",
		logging.ReportID(report.ID),
		zap.String("format", string(extraction.Format)),
		zap.Int("raw_chars", extraction.RawChars),
		logging.InputChars(report.ExtractedText))
	Created(c, report)
}

func (s *Server) listReports(c *gin.Context) {
	reports, err := s.repo.ListReports(c.Request.Context(), Owner(c))
	if err != nil {
		s.logger.Error("failed to list reports", zap.Error(err))
		InternalError(c)
		return
	}
	OK(c, reports)
}

func (s *Server) getReport(c *gin.Context) {
	report, ok := s.loadReport(c)
	if !ok {
		return
	}
	OK(c, report)
}

// reextractReport runs extraction again over the stored blob.
func (s *Server) reextractReport(c *gin.Context) {
	report, ok := s.loadReport(c)
	if !ok {
		return
	}

	data, err := os.ReadFile(filepath.Join(s.uploadsDir, filepath.FromSlash(report.FilePath)))
	if err != nil {
		s.logger.Warn("stored upload missing", logging.ReportID(report.ID), zap.Error(err))
		NotFound(c)
		return
	}

	extraction := s.extractor.Extract(report.FileName, data)
	if err := s.repo.UpdateExtractedText(c.Request.Context(), report.ID, Owner(c), extraction.Text); err != nil {
		if errors.Is(err, db.ErrNotFound) {
			NotFound(c)
			return
		}
		s.logger.Error("failed to update extracted text", logging.ReportID(report.ID), zap.Error(err))
		InternalError(c)
		return
	}

	report.ExtractedText = extraction.Text
	OK(c, report)
}

// loadReport resolves :id for the caller, writing the error response itself.
func (s *Server) loadReport(c *gin.Context) (db.Report, bool) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		NotFound(c)
		return db.Report{}, false
	}
	return s.lookupReport(c, id)
}

func (s *Server) lookupReport(c *gin.Context, id int64) (db.Report, bool) {
	report, err := s.repo.GetReport(c.Request.Context(), id, Owner(c))
	if errors.Is(err, db.ErrNotFound) {
		NotFound(c)
		return db.Report{}, false
	}
	if err != nil {
		s.logger.Error("failed to load report", logging.ReportID(id), zap.Error(err))
		InternalError(c)
		return db.Report{}, false
	}
	return report, true
}

func (s *Server) storeBlob(relPath string, data []byte) error {
	full := filepath.Join(s.uploadsDir, filepath.FromSlash(relPath))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

func readUpload(open func() (multipart.File, error), limit int64) ([]byte, error) {
	f, err := open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("upload exceeds size limit")
	}
	return data, nil
}

// safeFileName keeps the base name and replaces anything outside
// [A-Za-z0-9._-] with "_".
func safeFileName(name string) string {
	base := filepath.Base(filepath.Clean("/" + filepath.ToSlash(name)))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	if base == "" || base == "." || base == "_" || base == "/" {
		return "upload"
	}
	return base
}

func parseID(raw string) (int64, bool) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
