package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

// Provider configuration
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "nomic-embed-text"
	DefaultOpenAIModel = "text-embedding-3-small"

	OllamaDimension = 768
	OpenAIDimension = 1536
	LocalDimension  = 384
)

// OllamaProvider implements Embedder against a local Ollama instance
type OllamaProvider struct {
	baseURL    string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewOllamaProvider creates an embedder targeting the given Ollama
// instance. An empty baseURL or model selects the defaults.
func NewOllamaProvider(baseURL, model string, cache *Cache) *OllamaProvider {
	if baseURL == "" {
		baseURL = DefaultOllamaURL
	}
	if model == "" {
		model = DefaultOllamaModel
	}

	return &OllamaProvider{
		baseURL: baseURL,
		model:   model,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		cache: cache,
	}
}

func (o *OllamaProvider) EmbedText(ctx context.Context, text string) (*Embedding, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if emb, ok := o.cache.Get(hash); ok {
		return emb, nil
	}

	config := DefaultRetryConfig()
	emb, err := retryWithBackoff(ctx, config, func() (*Embedding, error) {
		return o.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	emb.Hash = hash
	o.cache.Set(hash, emb)
	return emb, nil
}

func (o *OllamaProvider) callAPI(ctx context.Context, text string) (*Embedding, error) {
	reqBody := map[string]interface{}{
		"model": o.model,
		"input": []string{text},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return &Embedding{
		Vector:    apiResp.Embeddings[0],
		Dimension: len(apiResp.Embeddings[0]),
		Provider:  ProviderOllama,
		Model:     o.model,
	}, nil
}

func (o *OllamaProvider) Dimension() int   { return OllamaDimension }
func (o *OllamaProvider) Provider() string { return ProviderOllama }
func (o *OllamaProvider) Model() string    { return o.model }
func (o *OllamaProvider) Close() error     { return nil }

// OpenAIProvider implements Embedder using the OpenAI embeddings API
type OpenAIProvider struct {
	apiKey     string
	model      string
	httpClient *http.Client
	cache      *Cache
}

// NewOpenAIProvider creates a new OpenAI embedder
func NewOpenAIProvider(apiKey string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrNoProviderEnabled)
	}

	return &OpenAIProvider{
		apiKey: apiKey,
		model:  DefaultOpenAIModel,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
	}, nil
}

func (o *OpenAIProvider) EmbedText(ctx context.Context, text string) (*Embedding, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if emb, ok := o.cache.Get(hash); ok {
		return emb, nil
	}

	config := DefaultRetryConfig()
	emb, err := retryWithBackoff(ctx, config, func() (*Embedding, error) {
		return o.callAPI(ctx, text)
	})
	if err != nil {
		return nil, fmt.Errorf("%w after %d retries: %v", ErrProviderFailed, config.MaxRetries, err)
	}

	emb.Hash = hash
	o.cache.Set(hash, emb)
	return emb, nil
}

func (o *OpenAIProvider) callAPI(ctx context.Context, text string) (*Embedding, error) {
	reqBody := map[string]interface{}{
		"input": []string{text},
		"model": o.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", "https://api.openai.com/v1/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("api error %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
		} `json:"data"`
		Model string `json:"model"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	if len(apiResp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return &Embedding{
		Vector:    apiResp.Data[0].Embedding,
		Dimension: len(apiResp.Data[0].Embedding),
		Provider:  ProviderOpenAI,
		Model:     apiResp.Model,
	}, nil
}

func (o *OpenAIProvider) Dimension() int   { return OpenAIDimension }
func (o *OpenAIProvider) Provider() string { return ProviderOpenAI }
func (o *OpenAIProvider) Model() string    { return o.model }
func (o *OpenAIProvider) Close() error     { return nil }

// LocalProvider generates deterministic embeddings from text features
// without any network dependency. Quality is poor compared to a real
// model; it exists for offline development and tests.
type LocalProvider struct {
	cache *Cache
}

// NewLocalProvider creates a local hash-based embedder
func NewLocalProvider(cache *Cache) *LocalProvider {
	return &LocalProvider{cache: cache}
}

func (l *LocalProvider) EmbedText(ctx context.Context, text string) (*Embedding, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	hash := ComputeHash(text)
	if emb, ok := l.cache.Get(hash); ok {
		return emb, nil
	}

	vector := hashEmbedding(text, LocalDimension)
	emb := &Embedding{
		Vector:    vector,
		Dimension: LocalDimension,
		Provider:  ProviderLocal,
		Model:     "hash-v1",
		Hash:      hash,
	}

	l.cache.Set(hash, emb)
	return emb, nil
}

func (l *LocalProvider) Dimension() int   { return LocalDimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return "hash-v1" }
func (l *LocalProvider) Close() error     { return nil }

// hashEmbedding buckets character trigrams into a normalized vector
func hashEmbedding(text string, dim int) []float32 {
	vector := make([]float32, dim)

	for i := 0; i+3 <= len(text); i++ {
		h := uint32(2166136261)
		for j := i; j < i+3; j++ {
			h ^= uint32(text[j])
			h *= 16777619
		}
		vector[h%uint32(dim)] += 1
	}

	var norm float64
	for _, v := range vector {
		norm += float64(v * v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vector {
			vector[i] *= scale
		}
	}

	return vector
}
