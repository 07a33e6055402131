package docprocessor

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"medreport/logging"
)

// Format identifies how a document's bytes are parsed.
type Format string

const (
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
	FormatText Format = "text"
)

// DetectFormat dispatches on the file-name suffix, case-insensitively.
// Anything that is not .pdf or .docx is treated as text.
func DetectFormat(name string) Format {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return FormatPDF
	case ".docx":
		return FormatDOCX
	default:
		return FormatText
	}
}

// ExtractionResult is the outcome of one extraction. Text is always usable;
// Err records why it is empty (or partial) and is meant for logging only.
type ExtractionResult struct {
	// Text is the sanitized plain text, possibly empty
	Text string

	// RawChars is the character count before sanitization
	RawChars int

	Format Format

	// Pages is the PDF page count, 0 for other formats
	Pages int

	Err error
}

// Extractor converts uploaded documents into sanitized plain text.
// It never returns an error to the caller: parse failures yield empty text.
type Extractor struct {
	logger      *logging.Logger
	maxFileSize int64
}

// NewExtractor creates an Extractor. Files larger than maxFileSize bytes are
// not parsed; 0 disables the limit.
func NewExtractor(logger *logging.Logger, maxFileSize int64) *Extractor {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Extractor{logger: logger.Named("extractor"), maxFileSize: maxFileSize}
}

// ExtractFile reads the file at path and extracts its text, dispatching on
// the suffix of path.
func (e *Extractor) ExtractFile(path string) ExtractionResult {
	data, err := e.readLimited(path)
	if err != nil {
		return e.finish(path, ExtractionResult{Format: DetectFormat(path), Err: err})
	}
	return e.Extract(path, data)
}

// Extract parses data according to the suffix of name.
//
// Example:
//
//	res := extractor.Extract("labs.DOCX", body)
//	fmt.Println(res.Text)
func (e *Extractor) Extract(name string, data []byte) ExtractionResult {
	res := ExtractionResult{Format: DetectFormat(name)}

	var raw string
	switch res.Format {
	case FormatPDF:
		raw, res.Pages, res.Err = extractPDF(data)
	case FormatDOCX:
		raw, res.Err = extractDOCX(data)
	default:
		raw = decodeText(data)
	}

	if res.Err != nil {
		// Partial PDF text is still useful; other formats fail whole
		if res.Format != FormatPDF {
			raw = ""
		}
	}

	res.RawChars = len([]rune(raw))
	res.Text = Sanitize(raw)
	return e.finish(name, res)
}

func (e *Extractor) finish(name string, res ExtractionResult) ExtractionResult {
	fields := []zap.Field{
		zap.String("file_name", filepath.Base(name)),
		zap.String("format", string(res.Format)),
		zap.Int("raw_chars", res.RawChars),
		zap.Int("chars", len([]rune(res.Text))),
	}
	if res.Pages > 0 {
		fields = append(fields, zap.Int("pages", res.Pages))
	}
	if res.Err != nil {
		e.logger.Warn("text extraction degraded", append(fields, zap.Error(res.Err))...)
		return res
	}
	e.logger.Debug("text extracted", fields...)
	return res
}

func (e *Extractor) readLimited(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	var r io.Reader = f
	if e.maxFileSize > 0 {
		r = io.LimitReader(f, e.maxFileSize+1)
	}

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if e.maxFileSize > 0 && int64(buf.Len()) > e.maxFileSize {
		return nil, fmt.Errorf("document exceeds %d bytes", e.maxFileSize)
	}
	return buf.Bytes(), nil
}
