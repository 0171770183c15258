package cache

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	redisv9 "github.com/redis/go-redis/v9"
	"golang.org/x/crypto/blake2b"
)

// EmbeddingCache keeps vectors in Redis keyed by model and a hash of the text,
// so reruns over unchanged content skip the embedding service.
type EmbeddingCache struct {
	client *redisv9.Client
	ttl    time.Duration
}

func NewEmbeddingCache(client *redisv9.Client, ttl time.Duration) *EmbeddingCache {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &EmbeddingCache{
		client: client,
		ttl:    ttl,
	}
}

func (c *EmbeddingCache) GetMany(ctx context.Context, model string, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = c.vectorKey(model, text)
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget embeddings failed: %w", err)
	}

	out := make([][]float32, len(texts))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float32
		if err := sonic.UnmarshalString(raw, &vec); err != nil || len(vec) == 0 {
			continue
		}
		out[i] = vec
	}
	return out, nil
}

func (c *EmbeddingCache) SetMany(ctx context.Context, model string, texts []string, vectors [][]float32) error {
	if len(texts) != len(vectors) {
		return fmt.Errorf("cache %d texts with %d vectors", len(texts), len(vectors))
	}
	pipe := c.client.Pipeline()
	for i, text := range texts {
		payload, err := sonic.MarshalString(vectors[i])
		if err != nil {
			return fmt.Errorf("marshal embedding cache failed: %w", err)
		}
		pipe.Set(ctx, c.vectorKey(model, text), payload, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set embeddings failed: %w", err)
	}
	return nil
}

func (c *EmbeddingCache) vectorKey(model, text string) string {
	sum := blake2b.Sum256([]byte(text))
	return fmt.Sprintf("embedding:%s:%s", model, hex.EncodeToString(sum[:]))
}
