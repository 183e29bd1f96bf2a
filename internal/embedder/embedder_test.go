package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("hello")
	b := ComputeHash("hello")
	c := ComputeHash("world")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestLocalProviderDeterministic(t *testing.T) {
	provider := NewLocalProvider(nil)
	ctx := context.Background()

	first, err := provider.EmbedText(ctx, "func parseConfig() error")
	require.NoError(t, err)
	second, err := provider.EmbedText(ctx, "func parseConfig() error")
	require.NoError(t, err)

	assert.Equal(t, first.Vector, second.Vector)
	assert.Equal(t, LocalDimension, first.Dimension)
	assert.Len(t, first.Vector, LocalDimension)
	assert.Equal(t, ProviderLocal, first.Provider)

	// Vectors are L2-normalized
	var norm float64
	for _, v := range first.Vector {
		norm += float64(v * v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestLocalProviderDistinguishesTexts(t *testing.T) {
	provider := NewLocalProvider(nil)
	ctx := context.Background()

	a, err := provider.EmbedText(ctx, "database connection pooling")
	require.NoError(t, err)
	b, err := provider.EmbedText(ctx, "render html template")
	require.NoError(t, err)

	assert.NotEqual(t, a.Vector, b.Vector)
}

func TestEmbedTextRejectsEmptyInput(t *testing.T) {
	provider := NewLocalProvider(nil)

	_, err := provider.EmbedText(context.Background(), "")
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = provider.EmbedText(context.Background(), "   \t\n")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestCacheRoundTrip(t *testing.T) {
	cache := NewCache(10)
	emb := &Embedding{Vector: []float32{1, 2}, Dimension: 2, Provider: ProviderLocal}

	_, ok := cache.Get("k")
	assert.False(t, ok)

	cache.Set("k", emb)
	got, ok := cache.Get("k")
	require.True(t, ok)
	assert.Same(t, emb, got)
	assert.Equal(t, 1, cache.Len())
}

func TestCacheNilSafe(t *testing.T) {
	var cache *Cache

	_, ok := cache.Get("k")
	assert.False(t, ok)
	cache.Set("k", &Embedding{})
	assert.Equal(t, 0, cache.Len())
}

func TestLocalProviderUsesCache(t *testing.T) {
	cache := NewCache(10)
	provider := NewLocalProvider(cache)
	ctx := context.Background()

	first, err := provider.EmbedText(ctx, "cached text")
	require.NoError(t, err)
	assert.Equal(t, 1, cache.Len())

	second, err := provider.EmbedText(ctx, "cached text")
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, cache.Len())
}

func TestRetryWithBackoffSucceedsAfterFailures(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 3,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}

	var attempts int
	result, err := retryWithBackoff(context.Background(), config, func() (string, error) {
		attempts++
		if attempts < 3 {
			return "", errors.New("transient")
		}
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 3, attempts)
}

func TestRetryWithBackoffExhaustsReturnsLastError(t *testing.T) {
	config := RetryConfig{
		MaxRetries: 2,
		BaseDelay:  time.Millisecond,
		MaxDelay:   10 * time.Millisecond,
		Multiplier: 2.0,
	}

	permanent := errors.New("permanent")
	var attempts int
	_, err := retryWithBackoff(context.Background(), config, func() (string, error) {
		attempts++
		return "", permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithBackoffHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	config := RetryConfig{
		MaxRetries: 5,
		BaseDelay:  time.Second,
		MaxDelay:   time.Second,
		Multiplier: 1.0,
	}

	var attempts int
	_, err := retryWithBackoff(ctx, config, func() (string, error) {
		attempts++
		cancel()
		return "", errors.New("transient")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestOllamaProviderEmbedText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/embed", r.URL.Path)

		var req struct {
			Model string   `json:"model"`
			Input []string `json:"input"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nomic-embed-text", req.Model)
		require.Len(t, req.Input, 1)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float32{{0.1, 0.2, 0.3}},
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "", NewCache(10))
	emb, err := provider.EmbedText(context.Background(), "some code")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2, 0.3}, emb.Vector)
	assert.Equal(t, 3, emb.Dimension)
	assert.Equal(t, ProviderOllama, emb.Provider)
	assert.Equal(t, ComputeHash("some code"), emb.Hash)
}

func TestOllamaProviderRetriesOnServerError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"embeddings": [][]float32{{1, 0}},
		})
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "", NewCache(10))
	emb, err := provider.EmbedText(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, emb.Vector)
	assert.Equal(t, int32(2), calls.Load())
}

func TestOllamaProviderFailsAfterRetries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	provider := NewOllamaProvider(server.URL, "", NewCache(10))
	_, err := provider.EmbedText(context.Background(), "doomed")
	assert.ErrorIs(t, err, ErrProviderFailed)
}

func TestNewOpenAIProviderRequiresKey(t *testing.T) {
	_, err := NewOpenAIProvider("", NewCache(10))
	assert.ErrorIs(t, err, ErrNoProviderEnabled)
}

func TestNewFromEnv(t *testing.T) {
	t.Run("explicit local", func(t *testing.T) {
		t.Setenv(EnvProvider, "local")
		t.Setenv(EnvOpenAIAPIKey, "")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
		assert.Equal(t, LocalDimension, emb.Dimension())
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv(EnvProvider, "quantum")

		_, err := NewFromEnv()
		assert.ErrorIs(t, err, ErrUnsupportedModel)
	})

	t.Run("openai key wins when no provider set", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvOpenAIAPIKey, "sk-test")
		t.Setenv(EnvOllamaURL, "")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderOpenAI, emb.Provider())
	})

	t.Run("falls back to local", func(t *testing.T) {
		t.Setenv(EnvProvider, "")
		t.Setenv(EnvOpenAIAPIKey, "")
		t.Setenv(EnvOllamaURL, "")

		emb, err := NewFromEnv()
		require.NoError(t, err)
		assert.Equal(t, ProviderLocal, emb.Provider())
	})
}
