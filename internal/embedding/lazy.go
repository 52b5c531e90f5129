package embedding

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"semantic-reconciliation-service/internal/similarity"
	"semantic-reconciliation-service/pkg/logger"
)

// Loader builds the underlying provider on first use
type Loader func(ctx context.Context) (Provider, error)

// Stats are the lifetime counters of a Lazy provider
type Stats struct {
	Provider  string `json:"provider"`
	Loaded    bool   `json:"loaded"`
	Dimension int    `json:"dimension"`
	Loads     int64  `json:"loads"`
	Failures  int64  `json:"failures"`
	Hits      int64  `json:"cacheHits"`
	Misses    int64  `json:"cacheMisses"`
	Cached    int    `json:"cached"`
}

// Lazy defers loading a provider until the first Embed call. Concurrent first
// calls wait on one barrier so the loader runs once; a failed load is reported
// as ErrUnavailable and attempted again on the next call.
type Lazy struct {
	name    string
	load    Loader
	limiter *rate.Limiter
	log     logger.Logger

	mu       sync.Mutex
	provider Provider

	group    singleflight.Group
	cacheMu  sync.RWMutex
	cache    map[string][]float32
	maxCache int

	loads    *atomic.Int64
	failures *atomic.Int64
	hits     *atomic.Int64
	misses   *atomic.Int64
}

// LazyOption configures a Lazy provider
type LazyOption func(*Lazy)

// WithRateLimit throttles calls into the underlying provider
func WithRateLimit(perSecond float64, burst int) LazyOption {
	return func(l *Lazy) {
		if perSecond > 0 {
			if burst < 1 {
				burst = 1
			}
			l.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
		}
	}
}

// WithCacheSize bounds the number of cached vectors; 0 means unbounded
func WithCacheSize(n int) LazyOption {
	return func(l *Lazy) {
		l.maxCache = n
	}
}

// WithLogger sets the logger used for load events
func WithLogger(log logger.Logger) LazyOption {
	return func(l *Lazy) {
		l.log = log
	}
}

// NewLazy wraps load in a lazily initialized, caching provider
func NewLazy(name string, load Loader, opts ...LazyOption) *Lazy {
	l := &Lazy{
		name:     name,
		load:     load,
		log:      logger.GetGlobalLogger(),
		cache:    make(map[string][]float32),
		loads:    atomic.NewInt64(0),
		failures: atomic.NewInt64(0),
		hits:     atomic.NewInt64(0),
		misses:   atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithComponent("embedding").WithField("provider", name)
	return l
}

// Name returns the provider name
func (l *Lazy) Name() string {
	return l.name
}

// Dimension returns the loaded provider's dimension, or 0 before the first load
func (l *Lazy) Dimension() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.provider == nil {
		return 0
	}
	return l.provider.Dimension()
}

// Warm loads the provider without embedding anything
func (l *Lazy) Warm(ctx context.Context) error {
	_, err := l.get(ctx)
	return err
}

func (l *Lazy) get(ctx context.Context) (Provider, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.provider != nil {
		return l.provider, nil
	}

	p, err := l.load(ctx)
	if err != nil {
		l.failures.Inc()
		l.log.WithError(err).Warn("Embedding provider failed to load")
		return nil, unavailable(l.name, err)
	}

	l.provider = p
	l.loads.Inc()
	l.log.WithField("dimension", p.Dimension()).Info("Embedding provider loaded")
	return p, nil
}

func (l *Lazy) cached(text string) ([]float32, bool) {
	l.cacheMu.RLock()
	defer l.cacheMu.RUnlock()
	v, ok := l.cache[text]
	return v, ok
}

func (l *Lazy) store(text string, v []float32) {
	l.cacheMu.Lock()
	defer l.cacheMu.Unlock()
	if l.maxCache > 0 && len(l.cache) >= l.maxCache {
		// Evict an arbitrary entry; the cache only saves remote calls.
		for k := range l.cache {
			delete(l.cache, k)
			break
		}
	}
	l.cache[text] = v
}

func (l *Lazy) wait(ctx context.Context) error {
	if l.limiter == nil {
		return nil
	}
	return l.limiter.Wait(ctx)
}

// Embed returns the unit-length vector for text. The returned slice is shared
// with the cache and must not be modified.
func (l *Lazy) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := l.cached(text); ok {
		l.hits.Inc()
		return v, nil
	}

	// The call is shared by every waiter on text, so it runs detached from
	// this caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := l.group.DoChan(text, func() (interface{}, error) {
		return l.compute(shared, text)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]float32), nil
	}
}

func (l *Lazy) compute(ctx context.Context, text string) ([]float32, error) {
	if v, ok := l.cached(text); ok {
		return v, nil
	}
	l.misses.Inc()

	p, err := l.get(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.wait(ctx); err != nil {
		return nil, unavailable(l.name, err)
	}

	raw, err := p.Embed(ctx, text)
	if err != nil {
		return nil, unavailable(l.name, err)
	}

	vec := similarity.Normalize(append([]float32(nil), raw...))
	l.store(text, vec)
	return vec, nil
}

// EmbedBatch embeds every text, sending the cache misses to the underlying
// provider in one call when it supports batching.
func (l *Lazy) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var missingAt []int
	seen := make(map[string]bool)

	for i, text := range texts {
		if v, ok := l.cached(text); ok {
			l.hits.Inc()
			out[i] = v
			continue
		}
		if !seen[text] {
			seen[text] = true
			missing = append(missing, text)
		}
		missingAt = append(missingAt, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	p, err := l.get(ctx)
	if err != nil {
		return nil, err
	}

	bp, ok := p.(BatchProvider)
	if !ok {
		for _, i := range missingAt {
			v, err := l.Embed(ctx, texts[i])
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	}

	if err := l.wait(ctx); err != nil {
		return nil, unavailable(l.name, err)
	}
	l.misses.Add(int64(len(missing)))

	vectors, err := bp.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, unavailable(l.name, err)
	}
	if len(vectors) != len(missing) {
		return nil, unavailable(l.name, errBatchLength(len(missing), len(vectors)))
	}
	fresh := make(map[string][]float32, len(missing))
	for i, text := range missing {
		vec := similarity.Normalize(append([]float32(nil), vectors[i]...))
		fresh[text] = vec
		l.store(text, vec)
	}
	for _, i := range missingAt {
		out[i] = fresh[texts[i]]
	}
	return out, nil
}

// Stats returns a snapshot of the counters
func (l *Lazy) Stats() Stats {
	l.cacheMu.RLock()
	cached := len(l.cache)
	l.cacheMu.RUnlock()

	return Stats{
		Provider:  l.name,
		Loaded:    l.loads.Load() > 0,
		Dimension: l.Dimension(),
		Loads:     l.loads.Load(),
		Failures:  l.failures.Load(),
		Hits:      l.hits.Load(),
		Misses:    l.misses.Load(),
		Cached:    cached,
	}
}
