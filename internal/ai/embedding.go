package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// MaxBatchSize is the largest number of inputs the embedding service accepts
// in one request.
const MaxBatchSize = 128

var (
	ErrRateLimited       = errors.New("embedding service rate limited")
	ErrEmbeddingFailed   = errors.New("embedding request failed")
	ErrEmbeddingMismatch = errors.New("embedding response mismatch")
)

// EmbeddingConfig holds API settings for an OpenAI-compatible embedding endpoint.
type EmbeddingConfig struct {
	BaseURL         string
	APIKey          string
	Model           string
	Dimensions      int
	BatchSize       int
	RateLimitDelay  time.Duration
	InterBatchDelay time.Duration
	Timeout         time.Duration
}

// VectorCache stores vectors by model and text. GetMany returns one entry per
// text, nil for misses.
type VectorCache interface {
	GetMany(ctx context.Context, model string, texts []string) ([][]float32, error)
	SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error
}

// EmbeddingClient converts texts to vectors in fixed-size batches. A
// rate-limited batch is retried exactly once after RateLimitDelay; any other
// failure is returned immediately.
type EmbeddingClient struct {
	api   *openai.Client
	cfg   EmbeddingConfig
	cache VectorCache
	log   *zap.Logger
	sleep func(time.Duration)
}

type Option func(*EmbeddingClient)

func WithCache(cache VectorCache) Option {
	return func(c *EmbeddingClient) {
		c.cache = cache
	}
}

func NewEmbeddingClient(cfg EmbeddingConfig, log *zap.Logger, opts ...Option) *EmbeddingClient {
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = MaxBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}

	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	apiCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}

	c := &EmbeddingClient{
		api:   openai.NewClientWithConfig(apiCfg),
		cfg:   cfg,
		log:   log,
		sleep: time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *EmbeddingClient) Model() string {
	return c.cfg.Model
}

// Embed returns one vector per text, in input order. Empty input returns an
// empty result without touching the network.
func (c *EmbeddingClient) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, len(texts))
	pending := c.lookupCache(ctx, texts, vectors)
	if len(pending) == 0 {
		c.log.Debug("all embeddings served from cache", zap.Int("texts", len(texts)))
		return vectors, nil
	}

	batches := (len(pending) + c.cfg.BatchSize - 1) / c.cfg.BatchSize
	for start := 0; start < len(pending); start += c.cfg.BatchSize {
		end := min(start+c.cfg.BatchSize, len(pending))
		positions := pending[start:end]
		batch := make([]string, len(positions))
		for j, pos := range positions {
			batch[j] = texts[pos]
		}

		if start > 0 && c.cfg.InterBatchDelay > 0 {
			c.sleep(c.cfg.InterBatchDelay)
		}

		got, err := c.embedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embed batch %d/%d failed: %w", start/c.cfg.BatchSize+1, batches, err)
		}
		for j, pos := range positions {
			vectors[pos] = got[j]
		}
		c.storeCache(ctx, batch, got)

		c.log.Debug("embedded batch",
			zap.Int("batch", start/c.cfg.BatchSize+1),
			zap.Int("batches", batches),
			zap.Int("size", len(batch)),
		)
	}
	return vectors, nil
}

func (c *EmbeddingClient) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	resp, err := c.createEmbeddings(ctx, batch)
	if isRateLimited(err) {
		c.log.Warn("embedding service rate limited, retrying batch once",
			zap.Int("size", len(batch)),
			zap.Duration("delay", c.cfg.RateLimitDelay),
		)
		c.sleep(c.cfg.RateLimitDelay)
		resp, err = c.createEmbeddings(ctx, batch)
		if isRateLimited(err) {
			return nil, fmt.Errorf("%w after retry: %w", ErrRateLimited, err)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailed, err)
	}
	return c.orderByIndex(resp, len(batch))
}

func (c *EmbeddingClient) createEmbeddings(ctx context.Context, batch []string) (openai.EmbeddingResponse, error) {
	return c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: batch,
		Model: openai.EmbeddingModel(c.cfg.Model),
	})
}

// orderByIndex places vectors by the response's per-item index rather than
// trusting the order of the data array.
func (c *EmbeddingClient) orderByIndex(resp openai.EmbeddingResponse, n int) ([][]float32, error) {
	if len(resp.Data) != n {
		return nil, fmt.Errorf("%w: got %d vectors for %d texts", ErrEmbeddingMismatch, len(resp.Data), n)
	}
	out := make([][]float32, n)
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= n {
			return nil, fmt.Errorf("%w: index %d out of range", ErrEmbeddingMismatch, d.Index)
		}
		if out[d.Index] != nil {
			return nil, fmt.Errorf("%w: duplicate index %d", ErrEmbeddingMismatch, d.Index)
		}
		if len(d.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty vector at index %d", ErrEmbeddingMismatch, d.Index)
		}
		if c.cfg.Dimensions > 0 && len(d.Embedding) != c.cfg.Dimensions {
			return nil, fmt.Errorf("%w: vector %d has %d dimensions, want %d",
				ErrEmbeddingMismatch, d.Index, len(d.Embedding), c.cfg.Dimensions)
		}
		out[d.Index] = d.Embedding
	}
	return out, nil
}

// lookupCache fills vectors from the cache and returns the positions that
// still need a network call. Cache failures only cost a cache miss.
func (c *EmbeddingClient) lookupCache(ctx context.Context, texts []string, vectors [][]float32) []int {
	var cached [][]float32
	if c.cache != nil {
		var err error
		cached, err = c.cache.GetMany(ctx, c.cfg.Model, texts)
		if err != nil {
			c.log.Warn("embedding cache lookup failed", zap.Error(err))
			cached = nil
		}
	}

	pending := make([]int, 0, len(texts))
	for i := range texts {
		if i < len(cached) && cached[i] != nil {
			vectors[i] = cached[i]
			continue
		}
		pending = append(pending, i)
	}
	return pending
}

func (c *EmbeddingClient) storeCache(ctx context.Context, texts []string, vectors [][]float32) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetMany(ctx, c.cfg.Model, texts, vectors); err != nil {
		c.log.Warn("embedding cache store failed", zap.Error(err))
	}
}

func isRateLimited(err error) bool {
	if err == nil {
		return false
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
