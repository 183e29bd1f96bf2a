package classifier

import (
	"regexp"
	"strings"

	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// Classifier selects a retrieval strategy for a raw query string.
// Implementations must be deterministic and side-effect free so the
// orchestrator can call them on every request without coordination.
type Classifier interface {
	Classify(query string) types.SearchStrategy
}

// patternVocabulary contains terms that indicate the user is asking about a
// reusable implementation pattern rather than a location in the codebase.
// A single hit routes the query to the pattern catalog and overrides all
// other signals.
var patternVocabulary = []string{
	"caching",
	"retry",
	"rate limit",
	"rate-limit",
	"best practice",
	"design pattern",
	"circuit breaker",
	"backoff",
	"throttling",
	"connection pooling",
	"memoization",
	"lazy loading",
}

// structuralVocabulary contains terms that indicate the query is about
// relationships between code entities. Each hit adds one to the graph
// score.
var structuralVocabulary = []string{
	"implements",
	"implement",
	"inherits",
	"inherit",
	"extends",
	"depends on",
	"depends",
	"dependency",
	"dependencies",
	"relationship",
	"related to",
	"that have",
	"that use",
	"used by",
	"uses",
	"calls",
	"references",
	"subclass",
}

// identifierPattern matches an identifier-like token: a word starting with
// an uppercase letter, optionally dotted (Foo, FooBar, Foo.Bar).
var identifierPattern = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*\b`)

// questionStarters are capitalized sentence openers that should not count
// as identifiers.
var questionStarters = map[string]bool{
	"what": true, "where": true, "when": true, "why": true, "how": true,
	"which": true, "who": true, "show": true, "find": true, "list": true,
	"the": true, "a": true, "an": true, "is": true, "are": true, "can": true,
	"does": true, "do": true,
}

// KeywordClassifier is the default Classifier: case-insensitive keyword
// matching plus a capitalized-identifier heuristic. It holds no state.
type KeywordClassifier struct{}

// New creates the default keyword classifier
func New() *KeywordClassifier {
	return &KeywordClassifier{}
}

// Classify returns the strategy for a query.
//
// Rules, in order:
//  1. Any pattern-vocabulary term -> pattern-search.
//  2. graphScore >= 2, or graphScore >= 1 with an identifier-like token
//     -> graph-first.
//  3. graphScore == 1 without an identifier -> hybrid.
//  4. Otherwise -> semantic-first.
func (c *KeywordClassifier) Classify(query string) types.SearchStrategy {
	lower := strings.ToLower(query)

	for _, term := range patternVocabulary {
		if strings.Contains(lower, term) {
			return types.StrategyPatternSearch
		}
	}

	graphScore := 0
	for _, term := range structuralVocabulary {
		if containsTerm(lower, term) {
			graphScore++
		}
	}

	hasIdentifier := c.hasIdentifierToken(query)

	switch {
	case graphScore >= 2:
		return types.StrategyGraphFirst
	case graphScore >= 1 && hasIdentifier:
		return types.StrategyGraphFirst
	case graphScore == 1:
		return types.StrategyHybrid
	default:
		return types.StrategySemanticFirst
	}
}

// hasIdentifierToken reports whether the query contains something that
// looks like a code entity name rather than prose
func (c *KeywordClassifier) hasIdentifierToken(query string) bool {
	for _, match := range identifierPattern.FindAllString(query, -1) {
		if !questionStarters[strings.ToLower(match)] {
			return true
		}
	}
	return false
}

// containsTerm matches a vocabulary term on word boundaries so that
// "uses" does not fire on "causes". Multi-word terms match as substrings.
func containsTerm(lower, term string) bool {
	if strings.Contains(term, " ") {
		return strings.Contains(lower, term)
	}

	idx := 0
	for {
		i := strings.Index(lower[idx:], term)
		if i < 0 {
			return false
		}
		start := idx + i
		end := start + len(term)
		beforeOK := start == 0 || !isWordChar(lower[start-1])
		afterOK := end == len(lower) || !isWordChar(lower[end])
		if beforeOK && afterOK {
			return true
		}
		idx = start + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9' || b == '_'
}
