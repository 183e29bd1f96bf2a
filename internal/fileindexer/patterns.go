package fileindexer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quarrylabs/quarry-mcp/internal/storage"
)

// patternMatch is one detected implementation pattern in a declaration
type patternMatch struct {
	Name       string
	Confidence float64
}

type patternSignal struct {
	name      string
	nameHints []string
	bodyHints []string
}

// Heuristic signals for common implementation patterns. Naming evidence
// weighs more than body keywords; both together give the highest
// confidence.
var patternSignals = []patternSignal{
	{"retry-with-backoff", []string{"Retry", "Backoff"}, []string{"retry", "backoff", "attempt", "max_retries", "maxretries"}},
	{"caching", []string{"Cache", "Cached", "Memo"}, []string{"cache", "evict", "ttl", "lru", "memoize"}},
	{"rate-limiting", []string{"RateLimit", "Throttle", "Limiter"}, []string{"rate limit", "ratelimit", "throttle", "tokens per", "burst"}},
	{"circuit-breaker", []string{"Breaker", "CircuitBreaker"}, []string{"circuit", "half-open", "halfopen", "trip"}},
	{"connection-pooling", []string{"Pool", "Pooled"}, []string{"pool", "acquire", "idle", "maxconns", "max_conns"}},
	{"lazy-loading", []string{"Lazy"}, []string{"sync.Once", "lazy", "loadonce"}},
	{"factory", []string{"Factory", "Builder"}, []string{"factory", "builder", "construct"}},
	{"observer", []string{"Observer", "Listener", "Subscriber"}, []string{"subscribe", "notify", "listener", "observer"}},
	{"singleton", []string{"Singleton", "Instance"}, []string{"sync.Once", "singleton", "instance"}},
}

const (
	patternNameConfidence = 0.6
	patternBodyConfidence = 0.4
	patternBothBonus      = 0.25
)

// detectPatterns scores a declaration against the pattern signals
func detectPatterns(sym symbol, body string) []patternMatch {
	lowerBody := strings.ToLower(body)

	var matches []patternMatch
	for _, sig := range patternSignals {
		nameHit := false
		for _, hint := range sig.nameHints {
			if strings.Contains(sym.Name, hint) {
				nameHit = true
				break
			}
		}

		bodyHit := false
		for _, hint := range sig.bodyHints {
			needle := hint
			if strings.ToLower(needle) == needle {
				if strings.Contains(lowerBody, needle) {
					bodyHit = true
					break
				}
			} else if strings.Contains(body, needle) {
				bodyHit = true
				break
			}
		}

		switch {
		case nameHit && bodyHit:
			matches = append(matches, patternMatch{sig.name, patternNameConfidence + patternBothBonus})
		case nameHit:
			matches = append(matches, patternMatch{sig.name, patternNameConfidence})
		case bodyHit:
			matches = append(matches, patternMatch{sig.name, patternBodyConfidence})
		}
	}
	return matches
}

// writePatterns stores pattern documents for one declaration. They share
// the file and line of the declaration that exhibits them but carry the
// pattern name, so pattern search ranks by stored confidence.
func (ix *Indexer) writePatterns(ctx context.Context, scope, filePath string, sym symbol, body string, indexedAt time.Time, result *Result) {
	for _, match := range detectPatterns(sym, body) {
		embedText := match.Name + "\n" + sym.Name
		emb, err := ix.emb.EmbedText(ctx, embedText)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: pattern %s: %v", filePath, match.Name, err))
			continue
		}

		doc := &storage.Document{
			Scope:         scope,
			FilePath:      filePath,
			Name:          match.Name,
			Kind:          "pattern",
			Content:       body,
			Line:          sym.Line,
			Confidence:    match.Confidence,
			LastIndexedAt: indexedAt,
		}
		if err := ix.vector.UpsertDocument(ctx, doc, emb.Vector, emb.Provider, emb.Model); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: pattern %s: %v", filePath, match.Name, err))
		}
	}
}
