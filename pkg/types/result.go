package types

// SearchStrategy identifies the retrieval strategy chosen for a query
type SearchStrategy string

const (
	StrategyPatternSearch SearchStrategy = "pattern-search" // Pattern catalog lookup
	StrategyGraphFirst    SearchStrategy = "graph-first"    // Structural index leads, semantic enriches
	StrategySemanticFirst SearchStrategy = "semantic-first" // Vector similarity leads
	StrategyHybrid        SearchStrategy = "hybrid"         // Both branches, merged
)

// SearchResult represents a single ranked result. Results are built per
// query and never persisted.
type SearchResult struct {
	// Identification
	Name     string
	Kind     string
	FilePath string // Normalized, forward slashes
	Scope    string

	// Content
	Content    string
	LineNumber int

	// Scoring
	StructuralScore float64
	SemanticScore   float64
	CombinedScore   float64

	// Optional relationship enrichment
	Relationships *RelationshipSet

	// Metadata carries observability fields (importance_score, reward_score)
	Metadata map[string]interface{}
}

// RelationshipSet holds the structural neighbors of a result
type RelationshipSet struct {
	UsedBy    []string // Impact analysis: who depends on this
	DependsOn []string // Dependency chain: what this depends on
}

// Total returns the number of related entities across both directions
func (rs *RelationshipSet) Total() int {
	if rs == nil {
		return 0
	}
	return len(rs.UsedBy) + len(rs.DependsOn)
}

// Key returns the merge key used when combining results from multiple
// strategies
func (sr *SearchResult) Key() string {
	return sr.FilePath + ":" + sr.Name
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if sr.FilePath == "" {
		return ErrMissingFilePath
	}

	if sr.CombinedScore < 0 {
		return ErrInvalidScore
	}

	return nil
}
