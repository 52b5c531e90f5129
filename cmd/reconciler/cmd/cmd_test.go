package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"semantic-reconciliation-service/cmd/reconciler/config"
	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/reconciler"
	"semantic-reconciliation-service/pkg/errors"
	"semantic-reconciliation-service/pkg/logger"
)

func TestValidateFileExists(t *testing.T) {
	// Create temporary test files
	tmpDir := t.TempDir()
	validFile := filepath.Join(tmpDir, "ledger.json")
	if err := os.WriteFile(validFile, []byte("[]"), 0644); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	tests := []struct {
		name        string
		filePath    string
		expectError bool
		category    errors.ErrorCategory
	}{
		{
			name:        "valid file",
			filePath:    validFile,
			expectError: false,
		},
		{
			name:        "empty path",
			filePath:    "",
			expectError: true,
			category:    errors.CategoryValidation,
		},
		{
			name:        "non-existent file",
			filePath:    "/non/existent/file.json",
			expectError: true,
			category:    errors.CategoryFile,
		},
		{
			name:        "directory instead of file",
			filePath:    tmpDir,
			expectError: true,
			category:    errors.CategoryFile,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateFileExists(tt.filePath, "source file")

			if tt.expectError && err == nil {
				t.Fatal("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.expectError {
				return
			}
			rerr, ok := errors.AsReconcilerError(err)
			if !ok {
				t.Fatalf("expected ReconcilerError, got %T", err)
			}
			if rerr.Category != tt.category {
				t.Errorf("expected category %s, got %s", tt.category, rerr.Category)
			}
		})
	}
}

// matchFlagsCommand registers the match flags on a fresh command so tests do
// not leak Changed state into the real one
func matchFlagsCommand() *cobra.Command {
	c := &cobra.Command{Use: "match"}
	c.Flags().IntVarP(&dateTolerance, "date-tolerance", "d", 5, "")
	c.Flags().Float64Var(&minScore, "min-score", 0.25, "")
	c.Flags().StringVar(&embeddingProvider, "embedding-provider", "", "")
	c.Flags().StringVar(&csvLayout, "layout", "", "")
	c.Flags().BoolVar(&strictLoad, "strict", false, "")
	c.Flags().BoolVar(&showProgress, "progress", false, "")
	c.Flags().IntVar(&maxItems, "max-items", 0, "")
	c.Flags().BoolVar(&noColor, "no-color", false, "")
	return c
}

func TestApplyMatchFlags(t *testing.T) {
	tests := []struct {
		name        string
		args        []string
		expectError bool
		check       func(t *testing.T, cfg *config.AppConfig)
	}{
		{
			name: "unchanged flags keep provider defaults",
			args: []string{"--embedding-provider", "tfidf"},
			check: func(t *testing.T, cfg *config.AppConfig) {
				mc := cfg.MatchingConfig()
				if mc.MinSimilarityScore != 0.45 {
					t.Errorf("expected lexical floor, got %f", mc.MinSimilarityScore)
				}
				if mc.DateToleranceDays != 5 {
					t.Errorf("expected 5 days, got %d", mc.DateToleranceDays)
				}
			},
		},
		{
			name: "explicit thresholds override",
			args: []string{"--embedding-provider", "hashing", "-d", "2", "--min-score", "0.6"},
			check: func(t *testing.T, cfg *config.AppConfig) {
				mc := cfg.MatchingConfig()
				if mc.DateToleranceDays != 2 || mc.MinSimilarityScore != 0.6 {
					t.Errorf("overrides not applied: %+v", mc)
				}
			},
		},
		{
			name: "loader and report flags",
			args: []string{"--strict", "--max-items", "7", "--no-color", "--progress"},
			check: func(t *testing.T, cfg *config.AppConfig) {
				if !cfg.Reconciler.Strict || !cfg.Reconciler.Progress {
					t.Errorf("reconciler flags not applied: %+v", cfg.Reconciler)
				}
				if cfg.Report.MaxItems != 7 || cfg.Report.Colors {
					t.Errorf("report flags not applied: %+v", cfg.Report)
				}
			},
		},
		{
			name:        "negative tolerance",
			args:        []string{"-d", "-1"},
			expectError: true,
		},
		{
			name:        "score out of range",
			args:        []string{"--min-score", "2"},
			expectError: true,
		},
		{
			name:        "unknown provider",
			args:        []string{"--embedding-provider", "word2vec"},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.AppConfig{}
			cfg.Log.Level = "info"
			cfg.Log.Format = "text"
			cfg.Log.Output = "stderr"
			cfg.Embedding = embedding.DefaultConfig()
			cfg.Converter.Provider = "openai"
			cfg.Server.Port = 3005
			cfg.Report.Colors = true

			c := matchFlagsCommand()
			if err := c.Flags().Parse(tt.args); err != nil {
				t.Fatalf("failed to parse flags: %v", err)
			}

			err := applyMatchFlags(c, cfg)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, cfg)
		})
	}
}

func TestCompareDescriptions(t *testing.T) {
	provider := embedding.NewHashing(0)

	t.Run("identical narrations", func(t *testing.T) {
		c, err := compareDescriptions(context.Background(), provider, "Rent payment", "Narration: Rent payment REF 991")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Narration2 != "Rent payment" {
			t.Errorf("expected extracted narration, got %q", c.Narration2)
		}
		if c.Embedding < 0.999 {
			t.Errorf("expected cosine 1 for identical narrations, got %f", c.Embedding)
		}
		if c.Edit != 1 {
			t.Errorf("expected edit similarity 1, got %f", c.Edit)
		}
		if c.Provider != embedding.ProviderHashing {
			t.Errorf("expected hashing provider, got %s", c.Provider)
		}
	})

	t.Run("unrelated narrations", func(t *testing.T) {
		c, err := compareDescriptions(context.Background(), provider, "Electricity bill", "Gym membership")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Edit >= 1 {
			t.Errorf("expected edit similarity below 1, got %f", c.Edit)
		}
		if c.TFIDF != 0 {
			t.Errorf("expected no shared terms, got %f", c.TFIDF)
		}
	})

	t.Run("tfidf provider is fitted on the pair", func(t *testing.T) {
		c, err := compareDescriptions(context.Background(), embedding.NewTFIDF(), "Rent January", "Rent February")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Provider != embedding.ProviderTFIDF {
			t.Errorf("expected tfidf provider, got %s", c.Provider)
		}
	})
}

func TestPrintComparison(t *testing.T) {
	var buf bytes.Buffer
	printComparison(&buf, &Comparison{Narration1: "a", Narration2: "b", Provider: "hashing", Embedding: 0.5, TFIDF: 0.25, Edit: 0})

	out := buf.String()
	for _, want := range []string{`"a"`, `"b"`, "Embedding cosine (hashing)", "0.5000", "TF-IDF cosine", "0.2500", "Edit similarity"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestCLIErrorHandler(t *testing.T) {
	_, notExist := os.Open(filepath.Join(t.TempDir(), "missing.json"))

	tests := []struct {
		name     string
		err      error
		exitCode int
		contains []string
	}{
		{
			name:     "nil error",
			err:      nil,
			exitCode: 0,
		},
		{
			name:     "file error",
			err:      errors.FileError(errors.CodeFileNotFound, "ledger.json", os.ErrNotExist),
			exitCode: 2,
			contains: []string{"Error:", "File error help"},
		},
		{
			name:     "record error",
			err:      errors.FieldTypeError("record1", 0, "amount", "number", "abc"),
			exitCode: 3,
			contains: []string{"ERROR: record1[0].amount must be a number", "Examples", "Validation error help"},
		},
		{
			name:     "wrapped record error",
			err:      fmt.Errorf("load: %w", errors.FieldTypeError("record2", 3, "date", "string (YYYY-MM-DD format)", 5)),
			exitCode: 3,
			contains: []string{"record2[3].date"},
		},
		{
			name:     "configuration error",
			err:      errors.ConfigurationError(errors.CodeMissingConfig, "converter.api_key", nil, nil),
			exitCode: 4,
			contains: []string{"missing required configuration", "Configuration error help"},
		},
		{
			name:     "embedding error",
			err:      errors.EmbeddingError(errors.CodeEmbeddingUnavailable, "openai", embedding.ErrUnavailable),
			exitCode: 7,
			contains: []string{"Embedding error help"},
		},
		{
			name:     "conversion error",
			err:      errors.ConversionError(errors.CodeConversionFailed, "openai", fmt.Errorf("bad reply")),
			exitCode: 8,
			contains: []string{"Upstream service help"},
		},
		{
			name:     "plain not exist error",
			err:      notExist,
			exitCode: 2,
			contains: []string{"File not found"},
		},
		{
			name:     "generic error",
			err:      fmt.Errorf(`unknown flag: --bogus`),
			exitCode: 1,
			contains: []string{"unknown flag", "reconciler --help"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			code := NewCLIErrorHandler(&buf).HandleError(tt.err)

			if code != tt.exitCode {
				t.Errorf("expected exit code %d, got %d", tt.exitCode, code)
			}
			for _, want := range tt.contains {
				if !strings.Contains(buf.String(), want) {
					t.Errorf("expected output to contain %q, got:\n%s", want, buf.String())
				}
			}
		})
	}
}

func TestMatchCommandWritesReport(t *testing.T) {
	t.Setenv("RECONCILER_LOG_LEVEL", "error")

	dir := t.TempDir()
	sources := `{"record1": [
		{"itemid": "S1", "details": "Transfer to John Okafor", "amount": 106000, "date": "2025-01-15"},
		{"itemid": "S3", "details": "Gym membership", "amount": 120, "date": "2025-03-05"}
	]}`
	targets := `[
		{"itemid": "T1", "details": "NIP TRANSFER JOHN OKAFOR REF 000123", "amount": 106000, "date": "2025-01-16", "transactionType": "debit"},
		{"itemid": "T3", "details": "POS COFFEE", "amount": 7.5, "date": "2025-03-04", "transactionType": "debit"}
	]`
	sourcePath := filepath.Join(dir, "ledger.json")
	targetPath := filepath.Join(dir, "statement.json")
	reportPath := filepath.Join(dir, "report.json")
	if err := os.WriteFile(sourcePath, []byte(sources), 0644); err != nil {
		t.Fatalf("failed to write sources: %v", err)
	}
	if err := os.WriteFile(targetPath, []byte(targets), 0644); err != nil {
		t.Fatalf("failed to write targets: %v", err)
	}

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs([]string{
		"match",
		"--source", sourcePath,
		"--target", targetPath,
		"--embedding-provider", "hashing",
		"--format", "json",
		"--output", reportPath,
	})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("match failed: %v\n%s", err, stderr.String())
	}

	data, err := os.ReadFile(reportPath)
	if err != nil {
		t.Fatalf("report not written: %v", err)
	}

	var doc struct {
		Report struct {
			Matched []struct {
				SourceID string `json:"sourceId"`
				TargetID string `json:"targetId"`
			} `json:"matched"`
		} `json:"report"`
		Summary struct {
			TotalSource int `json:"totalSource"`
			TotalTarget int `json:"totalTarget"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("report is not valid JSON: %v", err)
	}

	if doc.Summary.TotalSource != 2 || doc.Summary.TotalTarget != 2 {
		t.Errorf("unexpected totals: %+v", doc.Summary)
	}
	if len(doc.Report.Matched) != 1 || doc.Report.Matched[0].SourceID != "S1" || doc.Report.Matched[0].TargetID != "T1" {
		t.Errorf("expected S1 to match T1, got %+v", doc.Report.Matched)
	}
}

func TestVersionCommand(t *testing.T) {
	var stdout bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
	})

	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout.String(), "reconciler "+version) {
		t.Errorf("unexpected version output: %s", stdout.String())
	}
}

func TestNormalizeFlagName(t *testing.T) {
	tests := map[string]string{
		"date_tolerance":     "date-tolerance",
		"embedding_provider": "embedding-provider",
		"min-score":          "min-score",
	}
	for in, want := range tests {
		if got := string(normalizeFlagName(nil, in)); got != want {
			t.Errorf("normalizeFlagName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReloadConfig(t *testing.T) {
	service, err := reconciler.NewReconciliationService(embedding.NewHashing(0), nil, nil, logger.Discard())
	if err != nil {
		t.Fatalf("failed to create service: %v", err)
	}

	v := viper.New()
	config.SetDefaults(v)
	v.SetConfigType("yaml")
	if err := v.ReadConfig(strings.NewReader("matching:\n  date_tolerance_days: 1\n  min_similarity_score: 0.7\n")); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}

	reloadConfig(v, service, "reconciler.yaml")

	mc := service.GetConfiguration().Matching
	if mc.DateToleranceDays != 1 || mc.MinSimilarityScore != 0.7 {
		t.Errorf("matching configuration not reloaded: %+v", mc)
	}

	// An invalid change leaves the running configuration alone
	if err := v.ReadConfig(strings.NewReader("matching:\n  min_similarity_score: 3\n")); err != nil {
		t.Fatalf("failed to read config: %v", err)
	}
	reloadConfig(v, service, "reconciler.yaml")

	if got := service.GetConfiguration().Matching.MinSimilarityScore; got != 0.7 {
		t.Errorf("expected 0.7 to survive an invalid change, got %f", got)
	}
}
