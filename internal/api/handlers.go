package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"semantic-reconciliation-service/internal/converter"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/parsers"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

const (
	msgMatched   = "Matching completed successfully"
	msgConverted = "Successfully converted unstructured data to BankRecord format"
)

type matchRequest struct {
	Record1 json.RawMessage `json:"record1"`
	Record2 json.RawMessage `json:"record2"`
}

type convertRequest struct {
	Data interface{} `json:"data"`
}

// Health reports liveness and the embedding provider state
func (s *Server) Health(c *gin.Context) {
	provider := s.reconciler.Provider()
	body := gin.H{
		"status":  "ok",
		"message": "API is running",
	}
	if stats, ok := embedding.StatsOf(provider); ok {
		body["embedding"] = stats
	} else {
		body["embedding"] = gin.H{"provider": provider.Name(), "dimension": provider.Dimension()}
	}
	c.JSON(http.StatusOK, body)
}

// Match reconciles the record1 and record2 arrays of the request body
func (s *Server) Match(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input", "Request body must be a JSON object")
		return
	}

	if !parsers.IsArray(req.Record1) || !parsers.IsArray(req.Record2) {
		s.respondError(c, errors.ValidationError(errors.CodeInvalidType, "record1, record2", nil, nil).
			WithMessage("Both record1 and record2 must be arrays"))
		return
	}

	sources, _, err := parsers.DecodeSources(parsers.SourceCollection, req.Record1, true)
	if err != nil {
		s.respondError(c, err)
		return
	}
	targets, _, err := parsers.DecodeTargets(parsers.TargetCollection, req.Record2, true)
	if err != nil {
		s.respondError(c, err)
		return
	}

	s.reconcile(c, sources, targets)
}

// Convert turns the rows in the data array into target records
func (s *Server) Convert(c *gin.Context) {
	var req convertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "Invalid input", "Request body must be a JSON object")
		return
	}

	if req.Data == nil {
		s.respondError(c, errors.ValidationError(errors.CodeMissingField, "data", nil, nil).
			WithMessage("Missing required field: data"))
		return
	}
	items, isArray := req.Data.([]interface{})
	if !isArray {
		s.respondError(c, errors.ValidationError(errors.CodeInvalidType, "data", nil, nil).
			WithMessage("Data must be an array"))
		return
	}
	rows, err := converter.ValidateRows(items)
	if err != nil {
		s.respondError(c, err)
		return
	}

	ctx, cancel := s.requestContext(c)
	defer cancel()

	records, stats, err := s.convert(ctx, rows)
	if err != nil {
		s.respondError(c, err)
		return
	}

	data := gin.H{"records": records, "count": len(records)}
	if len(stats.Failures) > 0 {
		data["failedChunks"] = stats.Failures
	}
	ok(c, data, msgConverted)
}

// MatchPDF converts an uploaded statement into target records and reconciles
// the record1 form field against them
func (s *Server) MatchPDF(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		s.respondError(c, uploadError(err))
		return
	}
	if file.Size > MaxUploadSize {
		s.respondError(c, errors.ValidationError(errors.CodeInvalidData, "file", file.Size, nil).
			WithMessage("File too large. Maximum size is 10MB"))
		return
	}
	if !isPDF(file.Header.Get("Content-Type"), file.Filename) {
		s.respondError(c, errors.ValidationError(errors.CodeInvalidType, "file", file.Filename, nil).
			WithMessage("Only PDF files are allowed"))
		return
	}

	sources, err := decodeFormSources(c.PostForm(parsers.SourceCollection))
	if err != nil {
		s.respondError(c, err)
		return
	}

	f, err := file.Open()
	if err != nil {
		s.respondError(c, errors.FileError(errors.CodeFileCorrupted, file.Filename, err))
		return
	}
	data, err := io.ReadAll(f)
	f.Close()
	if err != nil {
		s.respondError(c, errors.FileError(errors.CodeFileCorrupted, file.Filename, err))
		return
	}

	log := s.log.WithFields(logger.Fields{
		"request_id": c.GetString(requestIDKey),
		"file":       file.Filename,
		"bytes":      len(data),
		"sources":    len(sources),
		"pdf_mode":   s.config.PDFMode,
	})
	log.Info("Processing PDF match request")

	ctx, cancel := s.requestContext(c)
	defer cancel()

	var rows []map[string]interface{}
	if s.config.PDFMode == PDFModeLocal {
		rows, err = converter.ExtractPDFRows(data)
	} else {
		var reply interface{}
		reply, err = s.forwarder.Forward(ctx, file.Filename, data)
		if err == nil {
			rows, err = converter.ExtractRows(reply)
		}
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	log.WithField("rows", len(rows)).Info("Extracted statement rows")

	targets, _, err := s.convert(ctx, rows)
	if err != nil {
		s.respondError(c, err)
		return
	}
	log.WithField("targets", len(targets)).Info("Converted statement rows")

	s.reconcile(c, sources, targets)
}

func (s *Server) reconcile(c *gin.Context, sources []models.SourceRecord, targets []models.TargetRecord) {
	ctx, cancel := s.requestContext(c)
	defer cancel()

	result, err := s.reconciler.Reconcile(ctx, sources, targets)
	if err != nil {
		s.respondError(c, err)
		return
	}
	ok(c, matchData(result), msgMatched)
}

func matchData(result *reconciler.ReconciliationResult) gin.H {
	return gin.H{
		"report":  result.Report,
		"summary": result.Summary,
	}
}

func (s *Server) convert(ctx context.Context, rows []map[string]interface{}) ([]models.TargetRecord, *converter.ConversionStats, error) {
	if s.converter == nil {
		return nil, nil, errors.ConfigurationError(errors.CodeMissingConfig, "converter.api_key", nil, nil).
			WithMessage("Record conversion is not configured")
	}
	records, stats, err := s.converter.Convert(ctx, rows)
	if err != nil {
		return nil, stats, err
	}
	if records == nil {
		records = []models.TargetRecord{}
	}
	return records, stats, nil
}

// decodeFormSources validates the record1 multipart field
func decodeFormSources(raw string) ([]models.SourceRecord, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.ValidationError(errors.CodeMissingField, parsers.SourceCollection, nil, nil)
	}
	if !json.Valid([]byte(raw)) {
		return nil, errors.ParseError(errors.CodeInvalidFormat, parsers.SourceCollection, nil).
			WithMessage(fmt.Sprintf("%s must be a valid JSON array", parsers.SourceCollection))
	}

	sources, _, err := parsers.DecodeSources(parsers.SourceCollection, []byte(raw), true)
	if err != nil {
		return nil, err
	}
	if len(sources) == 0 {
		return nil, errors.EmptyCollectionError(parsers.SourceCollection)
	}
	return sources, nil
}

func uploadError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return errors.ValidationError(errors.CodeInvalidData, "file", nil, err).
			WithMessage("File too large. Maximum size is 10MB")
	}
	return errors.ValidationError(errors.CodeMissingField, "file", nil, err).
		WithMessage("No PDF file provided")
}

func isPDF(contentType, filename string) bool {
	if strings.HasPrefix(strings.ToLower(contentType), "application/pdf") {
		return true
	}
	generic := contentType == "" || contentType == "application/octet-stream"
	return generic && strings.EqualFold(filepath.Ext(filename), ".pdf")
}
