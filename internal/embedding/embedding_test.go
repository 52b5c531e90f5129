package embedding

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	uatomic "go.uber.org/atomic"

	"semantic-reconciliation-service/internal/similarity"
	"semantic-reconciliation-service/pkg/logger"
)

type countingProvider struct {
	calls  *uatomic.Int64
	fail   error
	vector []float32
}

func newCountingProvider(v ...float32) *countingProvider {
	return &countingProvider{calls: uatomic.NewInt64(0), vector: v}
}

func (c *countingProvider) Name() string   { return "counting" }
func (c *countingProvider) Dimension() int { return len(c.vector) }

func (c *countingProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Inc()
	if c.fail != nil {
		return nil, c.fail
	}
	return append([]float32(nil), c.vector...), nil
}

func TestLazyLoadsOnceUnderConcurrency(t *testing.T) {
	loads := uatomic.NewInt64(0)
	inner := newCountingProvider(3, 4)
	lazy := NewLazy("counting", func(ctx context.Context) (Provider, error) {
		loads.Inc()
		return inner, nil
	}, WithLogger(logger.Discard()))

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := lazy.Embed(context.Background(), "same text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(1), loads.Load())
	assert.Equal(t, int64(1), inner.calls.Load())
	assert.Equal(t, 2, lazy.Dimension())
}

func TestLazyRetriesFailedLoad(t *testing.T) {
	attempts := 0
	lazy := NewLazy("flaky", func(ctx context.Context) (Provider, error) {
		attempts++
		if attempts == 1 {
			return nil, errors.New("model download failed")
		}
		return newCountingProvider(1, 0), nil
	}, WithLogger(logger.Discard()))

	_, err := lazy.Embed(context.Background(), "x")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 0, lazy.Dimension())

	v, err := lazy.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, v)

	stats := lazy.Stats()
	assert.Equal(t, int64(1), stats.Failures)
	assert.Equal(t, int64(1), stats.Loads)
	assert.True(t, stats.Loaded)
}

func TestLazyWrapsComputeErrors(t *testing.T) {
	cause := errors.New("quota exceeded")
	inner := newCountingProvider(1)
	inner.fail = cause
	lazy := NewLazy("broken", func(ctx context.Context) (Provider, error) {
		return inner, nil
	}, WithLogger(logger.Discard()))

	_, err := lazy.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, cause)
}

type gatedProvider struct {
	calls   *uatomic.Int64
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (g *gatedProvider) Name() string   { return "gated" }
func (g *gatedProvider) Dimension() int { return 2 }

func (g *gatedProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	g.calls.Inc()
	g.once.Do(func() { close(g.started) })
	<-g.release
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return []float32{3, 4}, nil
}

func TestLazySharedCallSurvivesCallerCancel(t *testing.T) {
	inner := &gatedProvider{
		calls:   uatomic.NewInt64(0),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	lazy := NewLazy("gated", func(ctx context.Context) (Provider, error) {
		return inner, nil
	}, WithLogger(logger.Discard()))

	ctx, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := lazy.Embed(ctx, "salary")
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		v, err := lazy.Embed(context.Background(), "salary")
		second <- result{v, err}
	}()

	cancel()
	err := <-firstErr
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrUnavailable)

	close(inner.release)
	res := <-second
	require.NoError(t, res.err)
	assert.InDeltaSlice(t, []float32{0.6, 0.8}, res.vec, 1e-6)
	assert.Equal(t, int64(1), inner.calls.Load())
}

func TestNonEmptyReplacesBlankTexts(t *testing.T) {
	texts := []string{"rent", "", "  ", "fees"}

	got := nonEmpty(texts)

	assert.Equal(t, []string{"rent", " ", " ", "fees"}, got)
	assert.Equal(t, "", texts[1], "input must not be modified")
}

func TestLazyNormalizesAndCaches(t *testing.T) {
	inner := newCountingProvider(3, 4)
	lazy := NewLazy("counting", func(ctx context.Context) (Provider, error) {
		return inner, nil
	}, WithLogger(logger.Discard()))

	v, err := lazy.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	_, err = lazy.Embed(context.Background(), "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), inner.calls.Load())

	stats := lazy.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, 1, stats.Cached)
}

func TestLazyCacheBound(t *testing.T) {
	lazy := NewLazy("counting", func(ctx context.Context) (Provider, error) {
		return newCountingProvider(1), nil
	}, WithLogger(logger.Discard()), WithCacheSize(2))

	for _, text := range []string{"a", "b", "c", "d"} {
		_, err := lazy.Embed(context.Background(), text)
		require.NoError(t, err)
	}
	assert.Equal(t, 2, lazy.Stats().Cached)
}

func TestLazyEmbedBatch(t *testing.T) {
	lazy := NewLazy(ProviderHashing, func(ctx context.Context) (Provider, error) {
		return NewHashing(64), nil
	}, WithLogger(logger.Discard()))

	texts := []string{"salary january", "rent payment", "salary january"}
	vectors, err := lazy.EmbedBatch(context.Background(), texts)
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	assert.Equal(t, vectors[0], vectors[2])

	single, err := lazy.Embed(context.Background(), "rent payment")
	require.NoError(t, err)
	assert.Equal(t, vectors[1], single)
	assert.Equal(t, 2, lazy.Stats().Cached)
}

func TestLazyEmbedBatchFallsBackToSingleCalls(t *testing.T) {
	inner := newCountingProvider(1, 1)
	lazy := NewLazy("counting", func(ctx context.Context) (Provider, error) {
		return inner, nil
	}, WithLogger(logger.Discard()))

	vectors, err := lazy.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, vectors, 2)
	assert.Equal(t, int64(2), inner.calls.Load())
}

func TestHashingProvider(t *testing.T) {
	h := NewHashing(0)
	assert.Equal(t, DefaultHashingDimension, h.Dimension())

	ctx := context.Background()
	a1, err := h.Embed(ctx, "Payment to ACME Ltd")
	require.NoError(t, err)
	a2, err := h.Embed(ctx, "payment to acme ltd")
	require.NoError(t, err)
	assert.Equal(t, a1, a2)

	related, err := h.Embed(ctx, "ACME Ltd payment for invoice")
	require.NoError(t, err)
	unrelated, err := h.Embed(ctx, "airtime recharge mtn")
	require.NoError(t, err)

	simRelated, err := similarity.Cosine(a1, related)
	require.NoError(t, err)
	simUnrelated, err := similarity.Cosine(a1, unrelated)
	require.NoError(t, err)
	assert.Greater(t, simRelated, simUnrelated)
	assert.Greater(t, simRelated, 0.25)

	blank, err := h.Embed(ctx, "   ")
	require.NoError(t, err)
	assert.Len(t, blank, DefaultHashingDimension)
	sim, err := similarity.Cosine(blank, a1)
	require.NoError(t, err)
	assert.Equal(t, 0.0, sim)
}

func TestTFIDF(t *testing.T) {
	docs := []string{"salary payment january", "rent payment", "salary bonus"}
	tf := FitTFIDF(docs)
	assert.Equal(t, []string{"bonus", "january", "payment", "rent", "salary"}, tf.Vocabulary())
	assert.Equal(t, 5, tf.Dimension())

	v, err := tf.Embed(context.Background(), "Salary january unknownword")
	require.NoError(t, err)
	assert.Len(t, v, 5)
	assert.Zero(t, v[0])
	assert.NotZero(t, v[1])

	same := similarity.SparseCosine(tf.Sparse("rent payment"), tf.Sparse("RENT payment"))
	assert.InDelta(t, 1.0, same, 1e-9)
	assert.Equal(t, 0.0, similarity.SparseCosine(tf.Sparse("rent"), tf.Sparse("bonus")))
}

func TestTFIDFUnfitted(t *testing.T) {
	_, err := NewTFIDF().Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNewFromConfig(t *testing.T) {
	log := logger.Discard()

	p, err := New(Config{Provider: ProviderHashing}, log)
	require.NoError(t, err)
	assert.Equal(t, ProviderHashing, p.Name())
	_, ok := StatsOf(p)
	assert.True(t, ok)

	p, err = New(Config{Provider: ProviderTFIDF}, log)
	require.NoError(t, err)
	fitted := ForRun(p, []string{"a b"})
	assert.NotSame(t, p, fitted)
	assert.Equal(t, 2, fitted.Dimension())

	hashing, err := New(Config{Provider: ProviderHashing}, log)
	require.NoError(t, err)
	assert.Same(t, hashing, ForRun(hashing, []string{"a"}))

	_, err = New(Config{Provider: "word2vec"}, log)
	assert.Error(t, err)
}

func TestOpenAIProviderReportsMissingKeyAsUnavailable(t *testing.T) {
	p, err := New(Config{Provider: ProviderOpenAI}, logger.Discard())
	require.NoError(t, err)

	_, err = p.Embed(context.Background(), "x")
	assert.ErrorIs(t, err, ErrUnavailable)
}
