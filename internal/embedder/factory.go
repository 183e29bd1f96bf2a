package embedder

import (
	"fmt"
	"os"
	"strings"
)

// Environment variables
const (
	EnvProvider     = "QUARRY_EMBEDDING_PROVIDER"
	EnvOllamaURL    = "QUARRY_OLLAMA_URL"
	EnvOllamaModel  = "QUARRY_OLLAMA_MODEL"
	EnvOpenAIAPIKey = "OPENAI_API_KEY"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	OllamaURL string
	Model     string
	CacheSize int
}

// NewFromEnv creates an embedder based on environment variables.
// Priority:
//  1. QUARRY_EMBEDDING_PROVIDER (ollama, openai, local)
//  2. OPENAI_API_KEY if set
//  3. Ollama if reachable configuration is present
//  4. Local hash provider
func NewFromEnv() (Embedder, error) {
	provider := strings.ToLower(os.Getenv(EnvProvider))
	openaiKey := os.Getenv(EnvOpenAIAPIKey)

	cache := NewCache(10000)

	if provider != "" {
		switch provider {
		case ProviderOllama:
			return NewOllamaProvider(os.Getenv(EnvOllamaURL), os.Getenv(EnvOllamaModel), cache), nil
		case ProviderOpenAI:
			return NewOpenAIProvider(openaiKey, cache)
		case ProviderLocal:
			return NewLocalProvider(cache), nil
		default:
			return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, provider)
		}
	}

	if openaiKey != "" {
		return NewOpenAIProvider(openaiKey, cache)
	}

	if os.Getenv(EnvOllamaURL) != "" {
		return NewOllamaProvider(os.Getenv(EnvOllamaURL), os.Getenv(EnvOllamaModel), cache), nil
	}

	return NewLocalProvider(cache), nil
}

// New creates an embedder with explicit configuration
func New(cfg Config) (Embedder, error) {
	cache := NewCache(cfg.CacheSize)

	switch strings.ToLower(cfg.Provider) {
	case ProviderOllama:
		return NewOllamaProvider(cfg.OllamaURL, cfg.Model, cache), nil
	case ProviderOpenAI:
		return NewOpenAIProvider(cfg.APIKey, cache)
	case ProviderLocal, "":
		return NewLocalProvider(cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
}
