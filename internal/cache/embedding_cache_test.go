package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*EmbeddingCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewEmbeddingCache(client, time.Hour), mr
}

func TestEmbeddingCache_RoundTrip(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, "voyage-3", []string{"a", "b"}, [][]float32{{1, 2}, {3, 4}}))

	got, err := c.GetMany(ctx, "voyage-3", []string{"b", "missing", "a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{3, 4}, nil, {1, 2}}, got)

	mr.FastForward(2 * time.Hour)
	got, err = c.GetMany(ctx, "voyage-3", []string{"a"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil}, got)
}

func TestEmbeddingCache_KeyedByModel(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.SetMany(ctx, "model-a", []string{"text"}, [][]float32{{1}}))

	got, err := c.GetMany(ctx, "model-b", []string{"text"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil}, got)
}

func TestEmbeddingCache_CorruptEntryIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, mr.Set(c.vectorKey("m", "x"), "not-json"))

	got, err := c.GetMany(ctx, "m", []string{"x"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{nil}, got)
}

func TestEmbeddingCache_LengthMismatch(t *testing.T) {
	c, _ := newTestCache(t)
	assert.Error(t, c.SetMany(context.Background(), "m", []string{"a", "b"}, [][]float32{{1}}))
}
