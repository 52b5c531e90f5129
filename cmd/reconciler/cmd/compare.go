package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"semantic-reconciliation-service/internal/embedding"
	"semantic-reconciliation-service/internal/narration"
	"semantic-reconciliation-service/internal/similarity"
	"semantic-reconciliation-service/pkg/errors"
)

// compareCmd represents the compare command
var compareCmd = &cobra.Command{
	Use:   "compare <description1> <description2>",
	Short: "Show how similar two transaction descriptions are",
	Long: `Compare extracts the narration of two descriptions and prints the scores
the matcher would see: cosine similarity under the configured embedding
provider, TF-IDF cosine over the two narrations and edit similarity.

Examples:
  reconciler compare "TRF/John Okafor/Rent Jan" "JOHN OKAFOR RENT PAYMENT"
  reconciler compare --embedding-provider hashing "POS 1234 SHOPRITE" "Shoprite groceries"`,

	Args: cobra.ExactArgs(2),
	RunE: runCompare,
}

var compareProvider string

func init() {
	rootCmd.AddCommand(compareCmd)

	compareCmd.Flags().StringVar(&compareProvider, "embedding-provider", "", "embedding provider: openai, gemini, hashing, tfidf")
}

// Comparison holds the scores of one pair of descriptions
type Comparison struct {
	Narration1 string
	Narration2 string
	Provider   string
	Embedding  float64
	TFIDF      float64
	Edit       float64
}

func runCompare(cmd *cobra.Command, args []string) error {
	cfg := appConfig.Embedding
	if cmd.Flags().Changed("embedding-provider") {
		cfg.Provider = compareProvider
	}

	provider, err := embedding.New(cfg, log)
	if err != nil {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "embedding.provider", cfg.Provider, err)
	}

	result, err := compareDescriptions(cmd.Context(), provider, args[0], args[1])
	if err != nil {
		return err
	}
	printComparison(cmd.OutOrStdout(), result)
	return nil
}

// compareDescriptions scores two descriptions the way the matcher does
func compareDescriptions(ctx context.Context, provider embedding.Provider, a, b string) (*Comparison, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := &Comparison{
		Narration1: narration.Extract(a),
		Narration2: narration.Extract(b),
	}

	provider = embedding.ForRun(provider, []string{c.Narration1, c.Narration2})
	c.Provider = provider.Name()

	va, err := provider.Embed(ctx, c.Narration1)
	if err != nil {
		return nil, errors.EmbeddingError(errors.CodeEmbeddingUnavailable, provider.Name(), err)
	}
	vb, err := provider.Embed(ctx, c.Narration2)
	if err != nil {
		return nil, errors.EmbeddingError(errors.CodeEmbeddingUnavailable, provider.Name(), err)
	}
	if len(va) > 0 && len(vb) > 0 {
		c.Embedding, err = similarity.Cosine(va, vb)
		if err != nil {
			return nil, errors.EmbeddingError(errors.CodeDimensionMismatch, provider.Name(), err)
		}
	}

	tfidf := embedding.FitTFIDF([]string{c.Narration1, c.Narration2})
	c.TFIDF = similarity.SparseCosine(tfidf.Sparse(c.Narration1), tfidf.Sparse(c.Narration2))
	c.Edit = similarity.EditSimilarity(c.Narration1, c.Narration2)

	return c, nil
}

func printComparison(w io.Writer, c *Comparison) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Narration 1:\t%q\n", c.Narration1)
	fmt.Fprintf(tw, "Narration 2:\t%q\n", c.Narration2)
	fmt.Fprintf(tw, "Embedding cosine (%s):\t%.4f\n", c.Provider, c.Embedding)
	fmt.Fprintf(tw, "TF-IDF cosine:\t%.4f\n", c.TFIDF)
	fmt.Fprintf(tw, "Edit similarity:\t%.4f\n", c.Edit)
	tw.Flush()
}
