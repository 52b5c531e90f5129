package parsers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Format is the document kind of a record file
type Format string

const (
	FormatJSON Format = "json"
	FormatCSV  Format = "csv"
)

// LoaderConfig holds configuration for a RecordLoader
type LoaderConfig struct {
	// Strict fails a load on the first invalid record instead of skipping it
	Strict bool `mapstructure:"strict"`

	// Columns is the CSV layout; nil selects one from the header row
	Columns *ColumnConfig `mapstructure:"-"`

	// Layout names a predefined CSV layout when Columns is nil
	Layout string `mapstructure:"layout"`
}

// DefaultLoaderConfig returns a lenient loader with header detection
func DefaultLoaderConfig() *LoaderConfig {
	return &LoaderConfig{}
}

// Validate checks if the loader configuration is valid
func (lc *LoaderConfig) Validate() error {
	if lc.Columns != nil {
		return lc.Columns.Validate()
	}
	if lc.Layout != "" && GetColumnConfig(lc.Layout) == nil {
		return fmt.Errorf("unknown CSV layout %q", lc.Layout)
	}
	return nil
}

// RecordLoader reads record collections from JSON and CSV files
type RecordLoader struct {
	fs     afero.Fs
	config *LoaderConfig
	logger logger.Logger
}

// NewRecordLoader creates a loader reading from fs
func NewRecordLoader(fs afero.Fs, config *LoaderConfig) (*RecordLoader, error) {
	if config == nil {
		config = DefaultLoaderConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, errors.ConfigurationError(errors.CodeInvalidConfig, "loader", config.Layout, err)
	}

	return &RecordLoader{
		fs:     fs,
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("record_loader"),
	}, nil
}

// DetectFormat picks the format from the extension, then from the content
func DetectFormat(path string, content []byte) Format {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".csv", ".tsv", ".txt":
		return FormatCSV
	}

	trimmed := bytes.TrimSpace(content)
	if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
		return FormatJSON
	}
	return FormatCSV
}

// LoadSources loads the record1 collection from path
func (rl *RecordLoader) LoadSources(ctx context.Context, path string) ([]models.SourceRecord, *errors.ErrorSummary, error) {
	log := rl.logger.WithFields(logger.Fields{"file_path": path, "collection": SourceCollection})
	log.Info("Loading source records")

	data, format, err := rl.read(path)
	if err != nil {
		return nil, nil, err
	}

	var records []models.SourceRecord
	var skipped *errors.ErrorSummary

	switch format {
	case FormatJSON:
		raw, err := unwrapCollection(path, data, SourceCollection)
		if err != nil {
			return nil, nil, err
		}
		records, skipped, err = DecodeSources(SourceCollection, raw, rl.config.Strict)
		if err != nil {
			return nil, nil, err
		}
	default:
		targets, summary, err := rl.loadCSV(ctx, path, data, SourceCollection)
		if err != nil {
			return nil, nil, err
		}
		records, skipped = models.SourcesFromTargets(targets), summary
	}

	rl.logLoaded(log, len(records), skipped)
	return records, skipped, nil
}

// LoadTargets loads the record2 collection from path
func (rl *RecordLoader) LoadTargets(ctx context.Context, path string) ([]models.TargetRecord, *errors.ErrorSummary, error) {
	log := rl.logger.WithFields(logger.Fields{"file_path": path, "collection": TargetCollection})
	log.Info("Loading target records")

	data, format, err := rl.read(path)
	if err != nil {
		return nil, nil, err
	}

	var records []models.TargetRecord
	var skipped *errors.ErrorSummary

	switch format {
	case FormatJSON:
		raw, err := unwrapCollection(path, data, TargetCollection)
		if err != nil {
			return nil, nil, err
		}
		records, skipped, err = DecodeTargets(TargetCollection, raw, rl.config.Strict)
		if err != nil {
			return nil, nil, err
		}
	default:
		records, skipped, err = rl.loadCSV(ctx, path, data, TargetCollection)
		if err != nil {
			return nil, nil, err
		}
	}

	rl.logLoaded(log, len(records), skipped)
	return records, skipped, nil
}

// LoadRows loads free-form rows for conversion: a JSON array of objects (or
// an object wrapping one) or a CSV file keyed by its raw header names
func (rl *RecordLoader) LoadRows(ctx context.Context, path string) ([]map[string]interface{}, error) {
	data, format, err := rl.read(path)
	if err != nil {
		return nil, err
	}

	if format == FormatJSON {
		raw, err := unwrapCollection(path, data, "data")
		if err != nil {
			return nil, err
		}
		var rows []map[string]interface{}
		if err := json.Unmarshal(raw, &rows); err != nil {
			return nil, errors.ParseError(errors.CodeInvalidFormat, path, err).
				WithSuggestion("provide a JSON array of objects")
		}
		return rows, nil
	}

	bp := NewBaseParser(rl.fs, rl.parseConfig(data))
	file, reader, err := bp.OpenCSV(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	headers, err := reader.Read()
	if err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, err)
	}

	parseCtx := NewParseContext(ctx)
	var rows []map[string]interface{}
	for {
		record, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapIfNeeded(err, errors.CategoryParse, errors.CodeInvalidData, "failed to read CSV row")
		}
		row := make(map[string]interface{}, len(headers))
		for i, h := range headers {
			if i < len(record) {
				row[strings.TrimSpace(h)] = record[i]
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (rl *RecordLoader) read(path string) ([]byte, Format, error) {
	bp := NewBaseParser(rl.fs, nil)
	data, err := bp.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, "", errors.FileError(errors.CodeFileCorrupted, path, fmt.Errorf("file is empty"))
	}
	return data, DetectFormat(path, data), nil
}

func (rl *RecordLoader) logLoaded(log logger.Logger, n int, skipped *errors.ErrorSummary) {
	fields := logger.Fields{"records": n}
	if skipped != nil {
		fields["skipped"] = skipped.Total
		log.WithFields(fields).Warn("Loaded records with invalid entries skipped")
		return
	}
	log.WithFields(fields).Info("Loaded records")
}

// unwrapCollection returns the record array of a JSON document: the document
// itself when it is an array, else the first array found under preferred,
// records or data
func unwrapCollection(path string, data []byte, preferred string) ([]byte, error) {
	if IsArray(data) {
		return data, nil
	}

	var wrapper map[string]json.RawMessage
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, errors.ParseError(errors.CodeInvalidFormat, path, err)
	}

	for _, key := range []string{preferred, "records", "data"} {
		if raw, ok := wrapper[key]; ok {
			return raw, nil
		}
	}

	return nil, errors.ParseError(errors.CodeInvalidFormat, path,
		fmt.Errorf("no %s, records or data array in document", preferred))
}

func (rl *RecordLoader) parseConfig(data []byte) *ParseConfig {
	config := DefaultParseConfig()
	columns := rl.columns(data)
	config.Delimiter = columns.Delimiter
	config.HasHeader = columns.HasHeader
	return config
}

// columns resolves the CSV layout: explicit, named, or detected from the header line
func (rl *RecordLoader) columns(data []byte) *ColumnConfig {
	if rl.config.Columns != nil {
		return rl.config.Columns
	}
	if rl.config.Layout != "" {
		return GetColumnConfig(rl.config.Layout)
	}

	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	delimiter := ","
	if bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		delimiter = ";"
	}
	headers := strings.Split(strings.TrimSpace(string(line)), delimiter)

	detected := AutoDetectColumnConfig(headers)
	if delimiter == ";" && detected.Delimiter != ';' {
		return SemicolonColumns
	}
	return detected
}

// loadCSV reads target-shaped records; sources drop the transaction type
func (rl *RecordLoader) loadCSV(ctx context.Context, path string, data []byte, collection string) ([]models.TargetRecord, *errors.ErrorSummary, error) {
	columns := rl.columns(data)
	bp := NewBaseParser(rl.fs, rl.parseConfig(data))

	file, reader, err := bp.OpenCSV(path)
	if err != nil {
		return nil, nil, err
	}
	defer file.Close()

	parseCtx := NewParseContext(ctx)
	if err := bp.ReadHeaders(reader, parseCtx, columns); err != nil {
		return nil, nil, err
	}

	var records []models.TargetRecord
	var skipped []*errors.ReconcilerError

	for index := 0; ; index++ {
		row, err := bp.ReadRecord(reader, parseCtx)
		if err == io.EOF {
			break
		}
		if err != nil {
			if rerr, ok := errors.AsReconcilerError(err); ok && rerr.Code == errors.CodeCancelled {
				return nil, nil, err
			}
			rerr := errors.ParseError(errors.CodeInvalidData, path, err).WithContext("line", parseCtx.LineNumber)
			if rl.config.Strict {
				return nil, nil, rerr
			}
			skipped = append(skipped, rerr)
			continue
		}

		record, rerr := rl.recordFromRow(bp, row, parseCtx, collection, index)
		if rerr != nil {
			rerr.WithContext("line", parseCtx.LineNumber)
			if rl.config.Strict {
				return nil, nil, rerr
			}
			skipped = append(skipped, rerr.ReconcilerError)
			continue
		}
		parseCtx.RecordCount++
		records = append(records, record)
	}

	return records, summarize(skipped), nil
}

func (rl *RecordLoader) recordFromRow(bp *BaseParser, row []string, parseCtx *ParseContext, collection string, index int) (models.TargetRecord, *errors.RecordError) {
	record := models.TargetRecord{
		ItemID:  bp.FieldValue(row, parseCtx, FieldItemID),
		Details: bp.FieldValue(row, parseCtx, FieldDetails),
		Date:    models.NormalizeDate(bp.FieldValue(row, parseCtx, FieldDate)),
	}

	if record.ItemID == "" {
		return record, errors.FieldTypeError(collection, index, FieldItemID, "string", nil)
	}

	amountText := bp.FieldValue(row, parseCtx, FieldAmount)
	debitText := bp.FieldValue(row, parseCtx, FieldDebit)
	creditText := bp.FieldValue(row, parseCtx, FieldCredit)

	switch {
	case amountText != "":
		amount, err := models.ParseDecimalFromString(amountText)
		if err != nil {
			return record, errors.FieldTypeError(collection, index, FieldAmount, "number", amountText)
		}
		record.Amount = amount
	case debitText != "":
		amount, err := models.ParseDecimalFromString(debitText)
		if err != nil {
			return record, errors.FieldTypeError(collection, index, FieldDebit, "number", debitText)
		}
		record.Amount = amount.Abs()
		record.TransactionType = models.DirectionDebit
	case creditText != "":
		amount, err := models.ParseDecimalFromString(creditText)
		if err != nil {
			return record, errors.FieldTypeError(collection, index, FieldCredit, "number", creditText)
		}
		record.Amount = amount.Abs()
		record.TransactionType = models.DirectionCredit
	default:
		return record, errors.FieldTypeError(collection, index, FieldAmount, "number", nil)
	}

	if typeText := bp.FieldValue(row, parseCtx, FieldTransactionType); typeText != "" {
		direction, err := models.ParseDirection(typeText)
		if err != nil {
			ctx := &errors.RecordContext{Collection: collection, Index: index, Field: FieldTransactionType, Value: typeText, Expected: "credit or debit"}
			return record, errors.NewRecordError(errors.CodeInvalidType, ctx, fmt.Sprintf("%s must be credit or debit", ctx.Path()))
		}
		record.TransactionType = direction
	}

	return record, nil
}
