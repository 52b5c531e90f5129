package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"semantic-reconciliation-service/cmd/reconciler/config"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/parsers"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/internal/reporter"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Flags for the match command
var (
	sourceFile        string
	targetFile        string
	outputFormat      reporter.OutputFormat
	outputFile        string
	dateTolerance     int
	minScore          float64
	embeddingProvider string
	csvLayout         string
	showProgress      bool
	strictLoad        bool
	maxItems          int
	noColor           bool
)

// matchCmd represents the match command
var matchCmd = &cobra.Command{
	Use:     "match",
	Aliases: []string{"reconcile"},
	Short:   "Match ledger records against statement records",
	Long: `Match loads the source (record1) and target (record2) collections and pairs
each source with at most one target of the same amount whose date lies within
the tolerance and whose narration is the most similar above the minimum score.

Both files may be JSON (an array, or an object with a record1/record2 field)
or CSV with a header row.

Examples:
  # Console report
  reconciler match --source ledger.json --target statement.json

  # JSON report written to a file
  reconciler match -s ledger.csv -t statement.csv --format json -o report.json

  # Offline matching with the built-in lexical model
  reconciler match -s ledger.json -t statement.json --embedding-provider tfidf

  # Tighter thresholds
  reconciler match -s ledger.json -t statement.json --date-tolerance 2 --min-score 0.4`,

	PreRunE: validateMatchFlags,
	RunE:    runMatch,
}

func init() {
	rootCmd.AddCommand(matchCmd)

	// Required flags
	matchCmd.Flags().StringVarP(&sourceFile, "source", "s", "", "path to the source (record1) JSON or CSV file (required)")
	matchCmd.Flags().StringVarP(&targetFile, "target", "t", "", "path to the target (record2) JSON or CSV file (required)")

	// Output flags
	matchCmd.Flags().VarP(&outputFormat, "format", "f", "output format: console, json, csv, yaml")
	matchCmd.Flags().StringVarP(&outputFile, "output", "o", "", "output file path (default: stdout)")
	matchCmd.Flags().IntVar(&maxItems, "max-items", 0, "maximum records listed per console section")
	matchCmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored console output")

	// Matching configuration flags
	matchCmd.Flags().IntVarP(&dateTolerance, "date-tolerance", "d", 5, "date matching tolerance in days")
	matchCmd.Flags().Float64Var(&minScore, "min-score", 0.25, "minimum narration similarity for a match")
	matchCmd.Flags().StringVar(&embeddingProvider, "embedding-provider", "", "embedding provider: openai, gemini, hashing, tfidf")

	// Loading flags
	matchCmd.Flags().StringVar(&csvLayout, "layout", "", "predefined CSV column layout")
	matchCmd.Flags().BoolVar(&strictLoad, "strict", false, "fail on the first invalid record instead of skipping it")

	// UI flags
	matchCmd.Flags().BoolVar(&showProgress, "progress", false, "log progress while matching")

	matchCmd.MarkFlagRequired("source")
	matchCmd.MarkFlagRequired("target")
}

// validateMatchFlags checks the flags and folds the ones set explicitly into
// the loaded configuration
func validateMatchFlags(cmd *cobra.Command, args []string) error {
	if err := validateFileExists(sourceFile, "source file"); err != nil {
		return err
	}
	if err := validateFileExists(targetFile, "target file"); err != nil {
		return err
	}

	if outputFile != "" {
		dir := filepath.Dir(outputFile)
		if dir != "." {
			if _, err := os.Stat(dir); os.IsNotExist(err) {
				return errors.FileError(errors.CodeFileNotFound, dir, err).
					WithMessage(fmt.Sprintf("output directory does not exist: %s", dir))
			}
		}
	}

	return applyMatchFlags(cmd, appConfig)
}

// applyMatchFlags overrides cfg with the flags the user changed
func applyMatchFlags(cmd *cobra.Command, cfg *config.AppConfig) error {
	flags := cmd.Flags()

	if flags.Changed("embedding-provider") {
		cfg.Embedding.Provider = embeddingProvider
	}
	if flags.Changed("date-tolerance") {
		if dateTolerance < 0 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "date-tolerance", dateTolerance, nil).
				WithMessage("date tolerance cannot be negative")
		}
		cfg.Matching.DateToleranceDays = &dateTolerance
	}
	if flags.Changed("min-score") {
		if minScore < -1 || minScore > 1 {
			return errors.ConfigurationError(errors.CodeInvalidConfig, "min-score", minScore, nil).
				WithMessage("minimum score must be between -1 and 1")
		}
		cfg.Matching.MinSimilarityScore = &minScore
	}
	if flags.Changed("layout") {
		cfg.Reconciler.Layout = csvLayout
	}
	if flags.Changed("strict") {
		cfg.Reconciler.Strict = strictLoad
	}
	if flags.Changed("progress") {
		cfg.Reconciler.Progress = showProgress
	}
	if flags.Changed("max-items") {
		cfg.Report.MaxItems = maxItems
	}
	if flags.Changed("no-color") {
		cfg.Report.Colors = !noColor
	}

	return cfg.Validate()
}

func validateFileExists(filePath, description string) error {
	if filePath == "" {
		return errors.ValidationError(errors.CodeMissingField, description, nil, nil).
			WithMessage(fmt.Sprintf("%s path cannot be empty", description))
	}

	info, err := os.Stat(filePath)
	if os.IsNotExist(err) {
		return errors.FileError(errors.CodeFileNotFound, filePath, err).
			WithMessage(fmt.Sprintf("%s does not exist: %s", description, filePath))
	}
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err)
	}

	if info.IsDir() {
		return errors.FileError(errors.CodeInvalidFormat, filePath, nil).
			WithMessage(fmt.Sprintf("%s is a directory, expected a file: %s", description, filePath))
	}

	// Check if file is readable
	file, err := os.Open(filePath)
	if err != nil {
		return errors.FileError(errors.CodeFilePermission, filePath, err).
			WithMessage(fmt.Sprintf("%s is not readable: %s", description, filePath))
	}
	file.Close()

	return nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logger.Fields{
		"source_file": sourceFile,
		"target_file": targetFile,
		"provider":    appConfig.Embedding.Provider,
		"format":      outputFormat,
	}).Debug("Starting reconciliation")

	service, err := newReconciliationService(appConfig, afero.NewOsFs())
	if err != nil {
		return err
	}

	result, err := service.ReconcileFiles(ctx, &reconciler.FileRequest{
		SourceFile: sourceFile,
		TargetFile: targetFile,
	})
	if err != nil {
		return err
	}
	if stats := result.ProcessingStats; stats != nil && stats.SkippedSources+stats.SkippedTargets > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "Skipped %d invalid source and %d invalid target records (use --strict to fail instead)\n",
			stats.SkippedSources, stats.SkippedTargets)
	}

	generator, err := reporter.NewSafeReportGenerator(appConfig.ReportConfig(outputFormat), afero.NewOsFs(), log)
	if err != nil {
		return err
	}

	if outputFile == "" {
		return generator.GenerateReportSafely(result, cmd.OutOrStdout())
	}

	written, err := generator.WriteReportFile(result, outputFile)
	if err != nil {
		return err
	}
	if written != outputFile {
		fmt.Fprintf(cmd.ErrOrStderr(), "Could not write %s, report saved to %s\n", outputFile, written)
	} else if verbose {
		fmt.Fprintf(cmd.ErrOrStderr(), "Report written to %s\n", written)
	}
	return nil
}

// newReconciliationService wires the embedding provider, the record loader
// and the matching configuration from cfg
func newReconciliationService(cfg *config.AppConfig, fs afero.Fs) (*reconciler.ReconciliationService, error) {
	provider, err := embedding.New(cfg.Embedding, log)
	if err != nil {
		return nil, err
	}

	loader, err := parsers.NewRecordLoader(fs, cfg.LoaderConfig())
	if err != nil {
		return nil, err
	}

	return reconciler.NewReconciliationService(provider, loader, cfg.ReconcilerConfig(), log)
}
