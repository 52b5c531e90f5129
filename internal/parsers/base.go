// Package parsers loads record1 and record2 collections from files.
//
// Two document kinds are understood:
//   - JSON: a bare array of records, or an object wrapping the array under
//     record1, record2, records or data
//   - CSV: a header row whose columns are resolved through aliases, so a
//     "narration" or "description" column fills details and "id" fills itemid
//
// Every record goes through the same shape checks the HTTP API applies, and
// failures name the offending element (record1[3].amount must be a number).
// In strict mode the first failure aborts the load; otherwise bad records are
// skipped and reported in an ErrorSummary.
//
// Files are read through an afero.Fs so callers and tests can swap in an
// in-memory filesystem.
//
// Example usage:
//
//	loader, err := parsers.NewRecordLoader(afero.NewOsFs(), parsers.DefaultLoaderConfig())
//	sources, skipped, err := loader.LoadSources(ctx, "ledger.json")
//	targets, _, err := loader.LoadTargets(ctx, "statement.csv")
package parsers

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/spf13/afero"

	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// LineError represents a CSV row that could not be read
type LineError struct {
	Line    int
	Field   string
	Value   string
	Message string
	Err     error
}

func (e *LineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("line %d (%s='%s'): %s: %v", e.Line, e.Field, e.Value, e.Message, e.Err)
	}
	return fmt.Sprintf("line %d (%s='%s'): %s", e.Line, e.Field, e.Value, e.Message)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ParseConfig holds configuration for CSV reading
type ParseConfig struct {
	HasHeader        bool
	Delimiter        rune
	TrimLeadingSpace bool
	SkipEmptyRows    bool
	MaxFieldSize     int
	ValidateEncoding bool
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		HasHeader:        true,
		Delimiter:        ',',
		TrimLeadingSpace: true,
		SkipEmptyRows:    true,
		MaxFieldSize:     64 * 1024,
		ValidateEncoding: true,
	}
}

// BaseParser provides the file and CSV plumbing shared by the loaders
type BaseParser struct {
	fs     afero.Fs
	config *ParseConfig
	logger logger.Logger
}

// NewBaseParser creates a new BaseParser reading from fs
func NewBaseParser(fs afero.Fs, config *ParseConfig) *BaseParser {
	if config == nil {
		config = DefaultParseConfig()
	}

	return &BaseParser{
		fs:     fs,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("base_parser"),
	}
}

// ParseContext holds state while reading one CSV document
type ParseContext struct {
	LineNumber  int
	Headers     []string
	Fields      map[string]int
	Unmapped    []string
	RecordCount int
	ctx         context.Context
}

// NewParseContext creates a new parsing context
func NewParseContext(ctx context.Context) *ParseContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ParseContext{
		Fields: make(map[string]int),
		ctx:    ctx,
	}
}

// IsCancelled checks if the parsing context has been cancelled
func (pc *ParseContext) IsCancelled() bool {
	return pc.ctx.Err() != nil
}

// ColumnIndex returns the column holding a standard field, or -1
func (pc *ParseContext) ColumnIndex(field string) int {
	if index, ok := pc.Fields[field]; ok {
		return index
	}
	return -1
}

// ReadFile returns the whole content of path, mapping OS errors to file errors
func (bp *BaseParser) ReadFile(path string) ([]byte, error) {
	data, err := afero.ReadFile(bp.fs, path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to read file")
		return nil, fileError(path, err)
	}
	return data, nil
}

// OpenCSV opens path and returns a configured csv.Reader over it
func (bp *BaseParser) OpenCSV(path string) (afero.File, *csv.Reader, error) {
	bp.logger.WithField("file_path", path).Debug("Opening CSV file")

	file, err := bp.fs.Open(path)
	if err != nil {
		bp.logger.WithError(err).WithField("file_path", path).Error("Failed to open CSV file")
		return nil, nil, fileError(path, err)
	}

	if bp.config.ValidateEncoding {
		if err := bp.validateEncoding(file, path); err != nil {
			file.Close()
			return nil, nil, err
		}

		if _, err := file.Seek(0, io.SeekStart); err != nil {
			file.Close()
			return nil, nil, errors.FileError(errors.CodeFileCorrupted, path, err)
		}
	}

	reader := csv.NewReader(file)
	reader.Comma = bp.config.Delimiter
	reader.TrimLeadingSpace = bp.config.TrimLeadingSpace
	reader.FieldsPerRecord = -1

	return file, reader, nil
}

func fileError(path string, err error) error {
	switch {
	case os.IsNotExist(err):
		return errors.FileError(errors.CodeFileNotFound, path, err)
	case os.IsPermission(err):
		return errors.FileError(errors.CodeFilePermission, path, err)
	default:
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}
}

// validateEncoding checks that the first lines are valid UTF-8
func (bp *BaseParser) validateEncoding(r io.Reader, path string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNum := 0

	for scanner.Scan() && lineNum < 100 {
		lineNum++
		if !utf8.Valid(scanner.Bytes()) {
			return errors.ParseError(errors.CodeInvalidData, path,
				fmt.Errorf("invalid UTF-8 encoding on line %d", lineNum)).
				WithContext("line", lineNum).
				WithSuggestion("save the file in UTF-8 encoding and try again")
		}
	}

	if err := scanner.Err(); err != nil {
		return errors.FileError(errors.CodeFileCorrupted, path, err)
	}

	return nil
}

// ReadHeaders reads the header row and resolves each column to a record field
func (bp *BaseParser) ReadHeaders(reader *csv.Reader, parseCtx *ParseContext, columns *ColumnConfig) error {
	if !bp.config.HasHeader {
		parseCtx.Headers = PositionalFields()
		for i, field := range parseCtx.Headers {
			parseCtx.Fields[field] = i
		}
		return nil
	}

	headers, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return errors.ValidationError(errors.CodeEmptyInput, "file", nil, nil).
				WithSuggestion("ensure the file contains a header row and data rows")
		}
		return errors.ParseError(errors.CodeInvalidFormat, "headers", err).
			WithSuggestion("check the file format and ensure it's a valid CSV")
	}

	parseCtx.LineNumber++
	parseCtx.Headers = make([]string, len(headers))
	for i, h := range headers {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		parseCtx.Headers[i] = h

		field, ok := columns.ResolveHeader(h)
		if !ok {
			parseCtx.Unmapped = append(parseCtx.Unmapped, h)
			continue
		}
		if _, seen := parseCtx.Fields[field]; !seen {
			parseCtx.Fields[field] = i
		}
	}

	bp.logger.WithFields(logger.Fields{
		"headers":  parseCtx.Headers,
		"unmapped": parseCtx.Unmapped,
	}).Debug("Resolved CSV headers")

	var missing []string
	for _, field := range []string{FieldItemID, FieldDetails, FieldDate} {
		if parseCtx.ColumnIndex(field) < 0 {
			missing = append(missing, field)
		}
	}
	if parseCtx.ColumnIndex(FieldAmount) < 0 && parseCtx.ColumnIndex(FieldDebit) < 0 && parseCtx.ColumnIndex(FieldCredit) < 0 {
		missing = append(missing, FieldAmount)
	}
	if len(missing) > 0 {
		return errors.ParseError(errors.CodeInvalidFormat, "headers",
			fmt.Errorf("no column for %s", strings.Join(missing, ", "))).
			WithContext("headers", parseCtx.Headers).
			WithSuggestion(fmt.Sprintf("add or rename columns so the file provides: %s", strings.Join(missing, ", ")))
	}

	return nil
}

// ReadRecord reads the next non-empty CSV row
func (bp *BaseParser) ReadRecord(reader *csv.Reader, parseCtx *ParseContext) ([]string, error) {
	for {
		if parseCtx.IsCancelled() {
			return nil, errors.ReconciliationError(errors.CodeCancelled, "csv parsing", parseCtx.ctx.Err())
		}

		record, err := reader.Read()
		if err != nil {
			return nil, err
		}

		parseCtx.LineNumber++

		if bp.config.SkipEmptyRows && isEmptyRecord(record) {
			continue
		}

		if bp.config.MaxFieldSize > 0 {
			for i, field := range record {
				if len(field) > bp.config.MaxFieldSize {
					return nil, &LineError{
						Line:    parseCtx.LineNumber,
						Field:   fmt.Sprintf("column_%d", i),
						Value:   truncate(field, 50),
						Message: fmt.Sprintf("field exceeds maximum size of %d bytes", bp.config.MaxFieldSize),
					}
				}
			}
		}

		return record, nil
	}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

func isEmptyRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}

// FieldValue returns the trimmed value of a standard field, "" when the
// column is absent or the row is short
func (bp *BaseParser) FieldValue(record []string, parseCtx *ParseContext, field string) string {
	index := parseCtx.ColumnIndex(field)
	if index < 0 || index >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[index])
}
