package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrUnsupportedModel  = errors.New("unsupported provider")
)

// Embedding represents a vector embedding with metadata
type Embedding struct {
	Vector    []float32
	Dimension int
	Provider  string
	Model     string
	Hash      string // Content hash for caching
}

// Embedder turns text into a fixed-length vector. Calls may suspend on
// network I/O and must honor ctx cancellation.
type Embedder interface {
	EmbedText(ctx context.Context, text string) (*Embedding, error)
	Dimension() int
	Provider() string
	Model() string
	Close() error
}

// ComputeHash returns the cache key for a text
func ComputeHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// validateText rejects empty or whitespace-only input before any network
// call
func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return nil
}

// Cache provides in-memory LRU caching of embeddings by content hash
type Cache struct {
	cache *lru.Cache[string, *Embedding]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}

	cache, err := lru.New[string, *Embedding](maxLen)
	if err != nil {
		// Only possible with a non-positive size, which is handled above
		panic(err)
	}
	return &Cache{cache: cache}
}

// Get returns a cached embedding by content hash
func (c *Cache) Get(hash string) (*Embedding, bool) {
	if c == nil {
		return nil, false
	}
	return c.cache.Get(hash)
}

// Set stores an embedding by content hash
func (c *Cache) Set(hash string, emb *Embedding) {
	if c == nil {
		return
	}
	c.cache.Add(hash, emb)
}

// Len returns the number of cached embeddings
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	return c.cache.Len()
}
