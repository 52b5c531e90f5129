// Package reporter renders reconciliation results.
//
// Supported output formats:
//   - Console: sectioned, optionally colored text for terminal display
//   - JSON: {report, summary} with the field names used by the HTTP API
//   - CSV: one row per record with its status, for spreadsheet applications
//   - YAML: the JSON document rendered as YAML
//
// Example usage:
//
//	config := reporter.DefaultReportConfig()
//	config.Format = reporter.FormatJSON
//	generator, err := reporter.NewReportGenerator(config)
//	err = generator.GenerateReport(result, os.Stdout)
package reporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"semantic-reconciliation-service/internal/matcher"
	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/reconciler"
)

// OutputFormat represents the supported report output formats
type OutputFormat string

const (
	FormatConsole OutputFormat = "console"
	FormatJSON    OutputFormat = "json"
	FormatCSV     OutputFormat = "csv"
	FormatYAML    OutputFormat = "yaml"
)

// Formats lists every supported format
func Formats() []OutputFormat {
	return []OutputFormat{FormatConsole, FormatJSON, FormatCSV, FormatYAML}
}

// IsValid checks if the output format is supported
func (f OutputFormat) IsValid() bool {
	switch f {
	case FormatConsole, FormatJSON, FormatCSV, FormatYAML:
		return true
	default:
		return false
	}
}

// String implements pflag.Value
func (f *OutputFormat) String() string { return string(*f) }

// Set implements pflag.Value
func (f *OutputFormat) Set(s string) error {
	format := OutputFormat(strings.ToLower(strings.TrimSpace(s)))
	if format == "yml" {
		format = FormatYAML
	}
	if !format.IsValid() {
		return fmt.Errorf("invalid output format %q (expected console, json, csv or yaml)", s)
	}
	*f = format
	return nil
}

// Type implements pflag.Value
func (f *OutputFormat) Type() string { return "format" }

// ReportConfig holds configuration options for report generation
type ReportConfig struct {
	Format OutputFormat `json:"format" mapstructure:"format"`

	// Detail level options
	IncludeMatched         bool `json:"include_matched" mapstructure:"include_matched"`
	IncludeUnmatched       bool `json:"include_unmatched" mapstructure:"include_unmatched"`
	IncludeQuality         bool `json:"include_quality" mapstructure:"include_quality"`
	IncludeProcessingStats bool `json:"include_processing_stats" mapstructure:"include_processing_stats"`

	// Console formatting options
	UseColors bool `json:"use_colors" mapstructure:"use_colors"`
	MaxItems  int  `json:"max_items" mapstructure:"max_items"`

	// CSV options
	CSVDelimiter rune `json:"csv_delimiter" mapstructure:"csv_delimiter"`
	CSVHeaders   bool `json:"csv_headers" mapstructure:"csv_headers"`
}

// DefaultReportConfig returns a default report configuration
func DefaultReportConfig() *ReportConfig {
	return &ReportConfig{
		Format:                 FormatConsole,
		IncludeMatched:         true,
		IncludeUnmatched:       true,
		IncludeQuality:         true,
		IncludeProcessingStats: true,
		UseColors:              true,
		MaxItems:               50,
		CSVDelimiter:           ',',
		CSVHeaders:             true,
	}
}

// Validate validates the report configuration
func (c *ReportConfig) Validate() error {
	if !c.Format.IsValid() {
		return fmt.Errorf("invalid output format: %s", c.Format)
	}
	if c.MaxItems < 0 {
		return fmt.Errorf("max items cannot be negative, got %d", c.MaxItems)
	}
	if c.CSVDelimiter == 0 || c.CSVDelimiter == '"' || c.CSVDelimiter == '\n' {
		return fmt.Errorf("invalid CSV delimiter %q", c.CSVDelimiter)
	}
	return nil
}

// Document is the serialized form of a result shared by the JSON and YAML formats
type Document struct {
	Report          *matcher.MatchingReport     `json:"report"`
	Summary         *reconciler.Summary         `json:"summary"`
	ProcessingStats *reconciler.ProcessingStats `json:"processingStats,omitempty"`
	Quality         *reconciler.DataQuality     `json:"quality,omitempty"`
}

// ReportGenerator generates reconciliation reports in various formats
type ReportGenerator struct {
	config *ReportConfig
}

// NewReportGenerator creates a new report generator with the specified configuration
func NewReportGenerator(config *ReportConfig) (*ReportGenerator, error) {
	if config == nil {
		config = DefaultReportConfig()
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid report configuration: %w", err)
	}

	return &ReportGenerator{
		config: config,
	}, nil
}

// GenerateReport generates a report from reconciliation results and writes it to the provided writer
func (rg *ReportGenerator) GenerateReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	if result == nil || result.Report == nil {
		return fmt.Errorf("reconciliation result cannot be nil")
	}
	if result.Summary == nil {
		result.Summary = reconciler.NewSummary(result.Report)
	}

	switch rg.config.Format {
	case FormatConsole:
		return rg.generateConsoleReport(result, writer)
	case FormatJSON:
		return rg.generateJSONReport(result, writer)
	case FormatCSV:
		return rg.generateCSVReport(result, writer)
	case FormatYAML:
		return rg.generateYAMLReport(result, writer)
	default:
		return fmt.Errorf("unsupported output format: %s", rg.config.Format)
	}
}

// NewDocument builds the serialized form of result
func (rg *ReportGenerator) NewDocument(result *reconciler.ReconciliationResult) *Document {
	doc := &Document{Report: result.Report, Summary: result.Summary}
	if rg.config.IncludeProcessingStats {
		doc.ProcessingStats = result.ProcessingStats
	}
	if rg.config.IncludeQuality && result.Quality != nil && result.Quality.HasIssues() {
		doc.Quality = result.Quality
	}
	return doc
}

// generateJSONReport generates a structured JSON report
func (rg *ReportGenerator) generateJSONReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(rg.NewDocument(result))
}

// generateYAMLReport renders the JSON document as YAML. Going through JSON
// keeps the field names and writes amounts as exact numbers.
func (rg *ReportGenerator) generateYAMLReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	data, err := json.Marshal(rg.NewDocument(result))
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}

	encoder := yaml.NewEncoder(writer)
	encoder.SetIndent(2)
	if err := encoder.Encode(generic); err != nil {
		return fmt.Errorf("failed to write YAML report: %w", err)
	}
	return encoder.Close()
}

// csvHeaders are the columns of the CSV report
var csvHeaders = []string{
	"status",
	"source_itemid",
	"source_details",
	"source_amount",
	"source_date",
	"target_itemid",
	"target_details",
	"target_amount",
	"target_date",
	"target_transaction_type",
	"day_gap",
	"score",
	"strength",
}

// generateCSVReport writes one row per matched pair and per unmatched record
func (rg *ReportGenerator) generateCSVReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	csvWriter := csv.NewWriter(writer)
	csvWriter.Comma = rg.config.CSVDelimiter

	if rg.config.CSVHeaders {
		if err := csvWriter.Write(csvHeaders); err != nil {
			return fmt.Errorf("failed to write CSV headers: %w", err)
		}
	}

	var rows [][]string
	if rg.config.IncludeMatched {
		for _, m := range result.Report.Matched {
			row := append([]string{"matched"}, sourceColumns(m.SourceRecord)...)
			row = append(row, targetColumns(m.TargetRecord)...)
			rows = append(rows, append(row, dayGap(m), fmt.Sprintf("%.4f", m.Score), m.Strength().String()))
		}
	}
	if rg.config.IncludeUnmatched {
		for _, s := range result.Report.UnmatchedSource {
			row := append([]string{"unmatched_source"}, sourceColumns(s)...)
			rows = append(rows, append(row, "", "", "", "", "", "", "", ""))
		}
		for _, t := range result.Report.UnmatchedTarget {
			row := []string{"unmatched_target", "", "", "", ""}
			row = append(row, targetColumns(t)...)
			rows = append(rows, append(row, "", "", ""))
		}
	}

	if err := csvWriter.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write CSV records: %w", err)
	}
	return nil
}

// dayGap is empty when either date does not parse
func dayGap(m matcher.MatchResult) string {
	if gap := m.DayGap(); gap >= 0 {
		return strconv.Itoa(gap)
	}
	return ""
}

func sourceColumns(r models.SourceRecord) []string {
	return []string{r.ItemID, r.Details, r.Amount.String(), r.Date}
}

func targetColumns(r models.TargetRecord) []string {
	return []string{r.ItemID, r.Details, r.Amount.String(), r.Date, string(r.TransactionType)}
}

// palette holds the console colors; every color is disabled when colors are off
type palette struct {
	heading, good, warn, bad, dim *color.Color
}

func (rg *ReportGenerator) palette() palette {
	p := palette{
		heading: color.New(color.FgCyan, color.Bold),
		good:    color.New(color.FgGreen),
		warn:    color.New(color.FgYellow),
		bad:     color.New(color.FgRed),
		dim:     color.New(color.Faint),
	}
	for _, c := range []*color.Color{p.heading, p.good, p.warn, p.bad, p.dim} {
		if rg.config.UseColors {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// generateConsoleReport generates a human-readable console report
func (rg *ReportGenerator) generateConsoleReport(result *reconciler.ReconciliationResult, writer io.Writer) error {
	p := rg.palette()
	s := result.Summary

	fmt.Fprintf(writer, "RECONCILIATION REPORT\n")
	if !result.ProcessedAt.IsZero() {
		fmt.Fprintf(writer, "Generated: %s\n", result.ProcessedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(writer, "\n")

	p.heading.Fprintf(writer, "=== SUMMARY ===\n")
	rg.printSummary(s, p, writer)
	fmt.Fprintf(writer, "\n")

	if rg.config.IncludeMatched {
		p.heading.Fprintf(writer, "=== MATCHED ===\n")
		rg.printMatched(result.Report.Matched, p, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeUnmatched {
		p.heading.Fprintf(writer, "=== UNMATCHED SOURCE ===\n")
		rg.printSources(result.Report.UnmatchedSource, p, writer)
		fmt.Fprintf(writer, "\n")

		p.heading.Fprintf(writer, "=== UNMATCHED TARGET ===\n")
		rg.printTargets(result.Report.UnmatchedTarget, p, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeQuality && result.Quality != nil && result.Quality.HasIssues() {
		p.heading.Fprintf(writer, "=== DATA QUALITY ===\n")
		rg.printQuality(result.Quality, p, writer)
		fmt.Fprintf(writer, "\n")
	}

	if rg.config.IncludeProcessingStats && result.ProcessingStats != nil {
		p.heading.Fprintf(writer, "=== PROCESSING STATISTICS ===\n")
		rg.printProcessingStats(result.ProcessingStats, writer)
	}

	return nil
}

// Helper methods for console output formatting

func (rg *ReportGenerator) printSummary(s *reconciler.Summary, p palette, writer io.Writer) {
	fmt.Fprintf(writer, "Source records:   %d\n", s.TotalSource)
	fmt.Fprintf(writer, "Target records:   %d\n", s.TotalTarget)
	p.good.Fprintf(writer, "Matched:          %d (%.1f%%)\n", s.Matched, s.MatchRate*100)

	unmatched := p.good
	if !s.Balanced() {
		unmatched = p.warn
	}
	unmatched.Fprintf(writer, "Unmatched source: %d\n", s.UnmatchedSource)
	unmatched.Fprintf(writer, "Unmatched target: %d\n", s.UnmatchedTarget)

	fmt.Fprintf(writer, "Matched amount:          %s\n", s.MatchedAmount.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched source amount: %s\n", s.UnmatchedSourceAmount.StringFixed(2))
	fmt.Fprintf(writer, "Unmatched target amount: %s\n", s.UnmatchedTargetAmount.StringFixed(2))
	fmt.Fprintf(writer, "Average score:           %.4f\n", s.AverageScore)
	fmt.Fprintf(writer, "Strong/Moderate/Weak:    %d/%d/%d\n", s.StrongMatches, s.ModerateMatches, s.WeakMatches)
}

func (rg *ReportGenerator) printMatched(matches []matcher.MatchResult, p palette, writer io.Writer) {
	if len(matches) == 0 {
		p.dim.Fprintf(writer, "  (none)\n")
		return
	}

	for i, m := range matches {
		if rg.truncated(i, len(matches), writer) {
			break
		}
		strength := m.Strength()
		c := p.good
		switch strength {
		case matcher.MatchModerate:
			c = p.warn
		case matcher.MatchWeak:
			c = p.bad
		}
		fmt.Fprintf(writer, "  %d. %s -> %s  amount %s  %s / %s",
			i+1, m.SourceID, m.TargetID, m.SourceRecord.Amount.StringFixed(2), m.SourceRecord.Date, m.TargetRecord.Date)
		if gap := dayGap(m); gap != "" {
			fmt.Fprintf(writer, " (%sd)", gap)
		}
		fmt.Fprint(writer, "  ")
		c.Fprintf(writer, "score %.4f (%s)\n", m.Score, strength)
		p.dim.Fprintf(writer, "     %q ~ %q\n", m.SourceRecord.Details, m.TargetRecord.Details)
	}
}

func (rg *ReportGenerator) printSources(records []models.SourceRecord, p palette, writer io.Writer) {
	if len(records) == 0 {
		p.dim.Fprintf(writer, "  (none)\n")
		return
	}
	for i, r := range records {
		if rg.truncated(i, len(records), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. ID: %s, Amount: %s, Date: %s, Details: %s\n",
			i+1, r.ItemID, r.Amount.StringFixed(2), r.Date, r.Details)
	}
}

func (rg *ReportGenerator) printTargets(records []models.TargetRecord, p palette, writer io.Writer) {
	if len(records) == 0 {
		p.dim.Fprintf(writer, "  (none)\n")
		return
	}
	for i, r := range records {
		if rg.truncated(i, len(records), writer) {
			break
		}
		fmt.Fprintf(writer, "  %d. ID: %s, Amount: %s, Date: %s, Details: %s",
			i+1, r.ItemID, r.Amount.StringFixed(2), r.Date, r.Details)
		if r.TransactionType != "" {
			fmt.Fprintf(writer, ", Type: %s", r.TransactionType)
		}
		fmt.Fprintf(writer, "\n")
	}
}

func (rg *ReportGenerator) printQuality(q *reconciler.DataQuality, p palette, writer io.Writer) {
	for _, w := range q.Warnings {
		p.warn.Fprintf(writer, "%s\n", w)
	}
	for i, issue := range q.Issues {
		if rg.truncated(i, len(q.Issues), writer) {
			break
		}
		fmt.Fprintf(writer, "  - %s[%d] %s: %s\n", issue.Collection, issue.Index, issue.Type, issue.Detail)
	}
}

func (rg *ReportGenerator) printProcessingStats(stats *reconciler.ProcessingStats, writer io.Writer) {
	fmt.Fprintf(writer, "Embedding Provider:   %s\n", stats.Provider)
	fmt.Fprintf(writer, "Skipped Records:      %d source, %d target\n", stats.SkippedSources, stats.SkippedTargets)
	fmt.Fprintf(writer, "Records/Second:       %.2f\n", stats.RecordsPerSecond)
	fmt.Fprintf(writer, "Total Processing:     %v\n", stats.TotalProcessingTime)
	fmt.Fprintf(writer, "Loading Time:         %v\n", stats.LoadingTime)
	fmt.Fprintf(writer, "Matching Time:        %v\n", stats.MatchingTime)

	if a := stats.AmountIndex; a != nil {
		fmt.Fprintf(writer, "Amount Buckets:       %d distinct across %d targets, largest %d\n", a.DistinctAmount, a.Targets, a.LargestBucket)
	}
	if e := stats.Embedding; e != nil {
		fmt.Fprintf(writer, "Embedding Cache:      %d hits, %d misses, %d cached\n", e.Hits, e.Misses, e.Cached)
	}
}

// truncated prints the overflow line and reports true once i reaches MaxItems
func (rg *ReportGenerator) truncated(i, total int, writer io.Writer) bool {
	if rg.config.MaxItems > 0 && i >= rg.config.MaxItems {
		fmt.Fprintf(writer, "  ... and %d more\n", total-rg.config.MaxItems)
		return true
	}
	return false
}

// UpdateConfiguration updates the report generator configuration
func (rg *ReportGenerator) UpdateConfiguration(config *ReportConfig) error {
	if err := config.Validate(); err != nil {
		return fmt.Errorf("invalid report configuration: %w", err)
	}

	rg.config = config
	return nil
}

// GetConfiguration returns the current configuration
func (rg *ReportGenerator) GetConfiguration() *ReportConfig {
	return rg.config
}
