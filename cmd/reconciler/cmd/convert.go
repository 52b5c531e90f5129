package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"semantic-reconciliation-service/cmd/reconciler/config"
	"semantic-reconciliation-service/internal/converter"
	"semantic-reconciliation-service/internal/models"
	"semantic-reconciliation-service/internal/parsers"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

// Flags for the convert command
var (
	convertInput  string
	convertOutput string
	chunkSize     int
	promptsFile   string
)

// convertOutputDoc is written by the convert command; its record2 field can
// be passed straight back to match as the target file
type convertOutputDoc struct {
	Record2 []models.TargetRecord      `json:"record2"`
	Count   int                        `json:"count"`
	Failed  []converter.ChunkFailure   `json:"failedChunks,omitempty"`
	Stats   *converter.ConversionStats `json:"stats,omitempty"`
}

// convertCmd represents the convert command
var convertCmd = &cobra.Command{
	Use:   "convert",
	Short: "Convert loosely structured statement rows into target records",
	Long: `Convert sends statement rows (a JSON array of objects, or a CSV file) to the
configured chat model in chunks and writes the resulting record2 collection.

The model is chosen with converter.provider (openai, anthropic, gemini) and
the API key is read from converter.api_key or OPENAI_API_KEY.

Examples:
  reconciler convert --input rows.json
  reconciler convert -i export.csv -o statement.json --chunk-size 25`,

	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	convertCmd.Flags().StringVarP(&convertInput, "input", "i", "", "path to the JSON or CSV rows to convert (required)")
	convertCmd.Flags().StringVarP(&convertOutput, "output", "o", "", "output file path (default: stdout)")
	convertCmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "rows sent to the model per request")
	convertCmd.Flags().StringVar(&promptsFile, "prompts", "", "TOML file overriding the conversion prompts")

	convertCmd.MarkFlagRequired("input")
}

func runConvert(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := validateFileExists(convertInput, "input file"); err != nil {
		return err
	}
	if cmd.Flags().Changed("chunk-size") {
		appConfig.Converter.ChunkSize = chunkSize
	}
	if cmd.Flags().Changed("prompts") {
		appConfig.Converter.PromptsFile = promptsFile
	}

	fs := afero.NewOsFs()

	loader, err := parsers.NewRecordLoader(fs, appConfig.LoaderConfig())
	if err != nil {
		return err
	}
	rows, err := loader.LoadRows(ctx, convertInput)
	if err != nil {
		return err
	}

	conv, err := newConverter(ctx, appConfig, fs)
	if err != nil {
		return err
	}
	if conv == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "converter.api_key", nil, nil).
			WithMessage("Record conversion is not configured").
			WithSuggestion("set OPENAI_API_KEY or converter.api_key in the config file")
	}

	records, stats, err := conv.Convert(ctx, rows)
	if err != nil {
		return err
	}
	if records == nil {
		records = []models.TargetRecord{}
	}

	doc := convertOutputDoc{Record2: records, Count: len(records), Failed: stats.Failures}
	if verbose {
		doc.Stats = stats
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errors.InternalError(errors.CodeUnexpectedError, "encode records", err)
	}

	if convertOutput == "" {
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return err
	}
	if err := afero.WriteFile(fs, convertOutput, data, 0o644); err != nil {
		return errors.FileError(errors.CodeFilePermission, convertOutput, err)
	}

	log.WithFields(logger.Fields{
		"file":    convertOutput,
		"records": len(records),
		"failed":  len(stats.Failures),
	}).Info("Converted records written")
	return nil
}

// newConverter builds the record converter, or returns nil when no API key
// is configured
func newConverter(ctx context.Context, cfg *config.AppConfig, fs afero.Fs) (*converter.Converter, error) {
	if cfg.Converter.APIKey == "" {
		return nil, nil
	}

	completer, err := converter.NewCompleter(ctx, cfg.Converter.Config)
	if err != nil {
		return nil, err
	}

	opts, err := cfg.ConverterOptions(fs, log.WithComponent("converter"))
	if err != nil {
		return nil, err
	}
	return converter.New(completer, opts), nil
}
