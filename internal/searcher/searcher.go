package searcher

import (
	"context"
	"fmt"
	"log"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/quarrylabs/quarry-mcp/internal/classifier"
	"github.com/quarrylabs/quarry-mcp/internal/embedder"
	"github.com/quarrylabs/quarry-mcp/internal/storage"
	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// Scoring constants
const (
	structuralCap = 50 // Max structural candidates per query

	impactScore   = 0.9 // Structural score for targeted impact hits
	fullTextScore = 0.7 // Structural score for full-text fallback hits

	structuralWeight = 0.7
	semanticWeight   = 0.3

	// enrichMinScore is the permissive threshold for top-1 semantic
	// enrichment of structural candidates. It exists to let almost any
	// nearest neighbor through; enrichment never filters.
	enrichMinScore = 0.1

	// relationshipBoostBase / Max shape the structural boost applied to
	// semantic results that turn out to have graph neighbors
	relationshipBoostBase = 0.5
	relationshipBoostMax  = 0.15
	relationshipBoostStep = 0.02

	maxRelatedPerDirection = 10

	defaultLimit             = 10
	maxLimit                 = 100
	defaultRelationshipDepth = 2
)

// StructuralQuery is the contract the orchestrator needs from the
// structural index
type StructuralQuery interface {
	ImpactOf(ctx context.Context, scope, name string, limit int) ([]*storage.Node, error)
	DependencyChainOf(ctx context.Context, scope, name string, maxDepth int) ([]*storage.Node, error)
	FullTextSearch(ctx context.Context, scope, text string, limit int) ([]*storage.Node, error)
}

// VectorQuery is the contract the orchestrator needs from the semantic
// index
type VectorQuery interface {
	Search(ctx context.Context, scope string, vector []float32, limit int, minScore float64, kind string) ([]storage.Match, error)
}

// Enhancer re-ranks raw results with learned signals
type Enhancer interface {
	EnhanceResults(ctx context.Context, scope, query string, results []*types.SearchResult) ([]*types.SearchResult, error)
}

// Feedback is invoked for every file returned to the caller. It closes
// the learning loop without hiding a store mutation inside ranking code;
// pass a no-op in tests that only exercise ranking.
type Feedback func(ctx context.Context, scope, filePath string)

// SearchRequest contains parameters for a search operation
type SearchRequest struct {
	Query                string
	Scope                string
	Limit                int
	Offset               int
	MinScore             float64
	IncludeRelationships bool
	RelationshipDepth    int
}

// SearchResponse contains ranked results and strategy metadata
type SearchResponse struct {
	Results      []*types.SearchResult
	TotalFound   int
	HasMore      bool
	StrategyUsed types.SearchStrategy
	Duration     time.Duration
}

// Searcher routes queries to a retrieval strategy and merges index
// results into one ranked list
type Searcher struct {
	classifier classifier.Classifier
	graph      StructuralQuery
	vector     VectorQuery
	embedder   embedder.Embedder
	enhancer   Enhancer
	feedback   Feedback
}

// New creates a Searcher. enhancer and feedback may be nil, which
// disables re-ranking and the learning feedback loop respectively.
func New(cls classifier.Classifier, graph StructuralQuery, vector VectorQuery, emb embedder.Embedder, enhancer Enhancer, feedback Feedback) *Searcher {
	if cls == nil {
		cls = classifier.New()
	}
	return &Searcher{
		classifier: cls,
		graph:      graph,
		vector:     vector,
		embedder:   emb,
		enhancer:   enhancer,
		feedback:   feedback,
	}
}

// Search classifies the query, executes the selected strategy, re-ranks
// with learned importance, and returns one page of results
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	if err := s.validateRequest(&req); err != nil {
		return nil, err
	}

	strategy := s.classifier.Classify(req.Query)

	var results []*types.SearchResult
	var err error

	switch strategy {
	case types.StrategyGraphFirst:
		results, err = s.graphFirst(ctx, req)
	case types.StrategySemanticFirst:
		results, err = s.semanticFirst(ctx, req)
	case types.StrategyHybrid:
		results, err = s.hybrid(ctx, req)
	case types.StrategyPatternSearch:
		results, err = s.patternSearch(ctx, req)
	default:
		return nil, fmt.Errorf("unsupported strategy: %s", strategy)
	}

	if err != nil {
		return nil, err
	}

	// A cancelled call returns no partial results
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if s.enhancer != nil {
		results, err = s.enhancer.EnhanceResults(ctx, req.Scope, req.Query, results)
		if err != nil {
			return nil, fmt.Errorf("failed to enhance results: %w", err)
		}
	}

	totalFound := len(results)
	page := paginate(results, req.Offset, req.Limit)

	// Every returned file feeds the learning model
	if s.feedback != nil {
		for _, result := range page {
			s.feedback(ctx, req.Scope, result.FilePath)
		}
	}

	return &SearchResponse{
		Results:      page,
		TotalFound:   totalFound,
		HasMore:      req.Offset+req.Limit < totalFound,
		StrategyUsed: strategy,
		Duration:     time.Since(startTime),
	}, nil
}

// anchorPattern extracts the entity name a structural query is anchored
// on, e.g. "classes that implement IRepository" -> IRepository
var anchorPattern = regexp.MustCompile(`(?i)\b(?:implements?|extends?|inherits?(?:\s+from)?|depends\s+on|uses|calls)\s+([A-Za-z_][A-Za-z0-9_.]*)`)

// identifierToken finds a capitalized entity-like token as a fallback
// anchor
var identifierToken = regexp.MustCompile(`\b[A-Z][A-Za-z0-9_]*(\.[A-Za-z0-9_]+)*\b`)

// extractAnchor returns the entity name to anchor impact analysis on, or
// "" when the query has no targeted shape
func extractAnchor(query string) string {
	if m := anchorPattern.FindStringSubmatch(query); m != nil {
		return strings.TrimSuffix(m[1], ".")
	}

	for _, tok := range identifierToken.FindAllString(query, -1) {
		// A capitalized sentence opener is prose, not an anchor, unless
		// it carries a qualifier like pkg.Symbol
		if strings.HasPrefix(query, tok) && !strings.Contains(tok, ".") {
			continue
		}
		return tok
	}
	return ""
}

// graphFirst runs a targeted impact query (or full-text fallback) and
// enriches the top candidates with a permissive top-1 semantic lookup
func (s *Searcher) graphFirst(ctx context.Context, req SearchRequest) ([]*types.SearchResult, error) {
	var nodes []*storage.Node
	structural := fullTextScore

	if anchor := extractAnchor(req.Query); anchor != "" {
		impacted, err := s.graph.ImpactOf(ctx, req.Scope, anchor, structuralCap)
		if err != nil {
			return nil, fmt.Errorf("impact analysis failed: %w", err)
		}
		if len(impacted) > 0 {
			nodes = impacted
			structural = impactScore
		}
	}

	if nodes == nil {
		found, err := s.graph.FullTextSearch(ctx, req.Scope, req.Query, structuralCap)
		if err != nil {
			return nil, fmt.Errorf("full-text search failed: %w", err)
		}
		nodes = found
	}

	results := make([]*types.SearchResult, 0, len(nodes))
	enrichCap := 2 * req.Limit

	for _, node := range nodes {
		result := nodeResult(node, structural)

		if len(results) < enrichCap {
			semantic, err := s.enrichCandidate(ctx, req.Scope, node.Name)
			if err != nil {
				// Low-stakes enrichment: log and move on without this candidate
				log.Printf("search: skipping candidate %s: %v", node.Name, err)
				continue
			}
			result.SemanticScore = semantic
		}

		result.CombinedScore = structuralWeight*result.StructuralScore +
			semanticWeight*result.SemanticScore

		if req.IncludeRelationships {
			result.Relationships = s.relationships(ctx, req.Scope, node.Name, req.RelationshipDepth)
		}

		results = append(results, result)
	}

	sortByCombined(results)
	return results, nil
}

// enrichCandidate embeds a candidate name and looks up its single nearest
// semantic neighbor
func (s *Searcher) enrichCandidate(ctx context.Context, scope, name string) (float64, error) {
	emb, err := s.embedder.EmbedText(ctx, name)
	if err != nil {
		return 0, err
	}

	matches, err := s.vector.Search(ctx, scope, emb.Vector, 1, enrichMinScore, "")
	if err != nil {
		return 0, err
	}
	if len(matches) == 0 {
		return 0, nil
	}
	return matches[0].Score, nil
}

// semanticFirst embeds the query and ranks by vector similarity, boosting
// results that turn out to be structurally connected
func (s *Searcher) semanticFirst(ctx context.Context, req SearchRequest) ([]*types.SearchResult, error) {
	emb, err := s.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vector.Search(ctx, req.Scope, emb.Vector, 2*req.Limit, req.MinScore, "")
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	results := make([]*types.SearchResult, 0, len(matches))
	for _, match := range matches {
		result := matchResult(match)

		if req.IncludeRelationships {
			result.Relationships = s.relationships(ctx, req.Scope, match.Document.Name, req.RelationshipDepth)
			if total := result.Relationships.Total(); total > 0 {
				boost := relationshipBoostStep * float64(total)
				if boost > relationshipBoostMax {
					boost = relationshipBoostMax
				}
				result.StructuralScore = relationshipBoostBase + boost
				result.CombinedScore = structuralWeight*result.SemanticScore +
					semanticWeight*result.StructuralScore
			}
		}

		results = append(results, result)
	}

	sortByCombined(results)
	return results, nil
}

// branchResult carries one strategy's output through the hybrid join
type branchResult struct {
	results []*types.SearchResult
	err     error
}

// hybrid executes graph-first and semantic-first concurrently and merges
// their results. One failed branch degrades to the other's results.
func (s *Searcher) hybrid(ctx context.Context, req SearchRequest) ([]*types.SearchResult, error) {
	graphChan := make(chan branchResult, 1)
	semanticChan := make(chan branchResult, 1)

	go func() {
		results, err := s.graphFirst(ctx, req)
		graphChan <- branchResult{results: results, err: err}
	}()
	go func() {
		results, err := s.semanticFirst(ctx, req)
		semanticChan <- branchResult{results: results, err: err}
	}()

	var graphRes, semanticRes branchResult
	var graphDone, semanticDone bool
	for !graphDone || !semanticDone {
		select {
		case graphRes = <-graphChan:
			graphDone = true
		case semanticRes = <-semanticChan:
			semanticDone = true
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if graphRes.err != nil && semanticRes.err != nil {
		return nil, fmt.Errorf("both branches failed: graph=%w, semantic=%v", graphRes.err, semanticRes.err)
	}
	if graphRes.err != nil {
		log.Printf("search: graph branch failed, degrading to semantic: %v", graphRes.err)
		return semanticRes.results, nil
	}
	if semanticRes.err != nil {
		log.Printf("search: semantic branch failed, degrading to graph: %v", semanticRes.err)
		return graphRes.results, nil
	}

	return mergeResults(graphRes.results, semanticRes.results), nil
}

// mergeResults combines two ranked lists by filePath:name. A result seen
// by both branches averages the combined scores and keeps the best
// sub-score from each side.
func mergeResults(first, second []*types.SearchResult) []*types.SearchResult {
	merged := make(map[string]*types.SearchResult, len(first)+len(second))
	order := make([]string, 0, len(first)+len(second))

	for _, result := range first {
		merged[result.Key()] = result
		order = append(order, result.Key())
	}

	for _, incoming := range second {
		key := incoming.Key()
		existing, ok := merged[key]
		if !ok {
			merged[key] = incoming
			order = append(order, key)
			continue
		}

		existing.CombinedScore = (existing.CombinedScore + incoming.CombinedScore) / 2
		if incoming.StructuralScore > existing.StructuralScore {
			existing.StructuralScore = incoming.StructuralScore
		}
		if incoming.SemanticScore > existing.SemanticScore {
			existing.SemanticScore = incoming.SemanticScore
		}
		if existing.Relationships == nil {
			existing.Relationships = incoming.Relationships
		}
	}

	results := make([]*types.SearchResult, 0, len(order))
	for _, key := range order {
		results = append(results, merged[key])
	}

	sortByCombined(results)
	return results
}

// patternSearch runs the semantic query against pattern-typed entries
// only. Scores come from the stored confidence of each pattern, not from
// vector distance.
func (s *Searcher) patternSearch(ctx context.Context, req SearchRequest) ([]*types.SearchResult, error) {
	emb, err := s.embedder.EmbedText(ctx, req.Query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.vector.Search(ctx, req.Scope, emb.Vector, 2*req.Limit, req.MinScore, "pattern")
	if err != nil {
		return nil, fmt.Errorf("pattern search failed: %w", err)
	}

	results := make([]*types.SearchResult, 0, len(matches))
	for _, match := range matches {
		confidence := match.Document.Confidence
		results = append(results, &types.SearchResult{
			Name:            match.Document.Name,
			Kind:            match.Document.Kind,
			FilePath:        match.Document.FilePath,
			Scope:           match.Document.Scope,
			Content:         match.Document.Content,
			LineNumber:      match.Document.Line,
			StructuralScore: confidence,
			SemanticScore:   confidence,
			CombinedScore:   confidence,
		})
	}

	sortByCombined(results)
	return results, nil
}

// relationships fetches used-by and depends-on neighbors. Absence of data
// or a lookup failure yields nil; enrichment never fails a query.
func (s *Searcher) relationships(ctx context.Context, scope, name string, depth int) *types.RelationshipSet {
	rs := &types.RelationshipSet{}

	usedBy, err := s.graph.ImpactOf(ctx, scope, name, maxRelatedPerDirection)
	if err != nil {
		log.Printf("search: relationship lookup for %s failed: %v", name, err)
	} else {
		for _, node := range usedBy {
			rs.UsedBy = append(rs.UsedBy, node.Name)
		}
	}

	dependsOn, err := s.graph.DependencyChainOf(ctx, scope, name, depth)
	if err != nil {
		log.Printf("search: dependency lookup for %s failed: %v", name, err)
	} else {
		for i, node := range dependsOn {
			if i == maxRelatedPerDirection {
				break
			}
			rs.DependsOn = append(rs.DependsOn, node.Name)
		}
	}

	if rs.Total() == 0 {
		return nil
	}
	return rs
}

// validateRequest rejects invalid input and fills in defaults
func (s *Searcher) validateRequest(req *SearchRequest) error {
	if strings.TrimSpace(req.Query) == "" {
		return types.ErrEmptyQuery
	}

	if req.Limit <= 0 {
		req.Limit = defaultLimit
	}
	if req.Limit > maxLimit {
		req.Limit = maxLimit
	}
	if req.Offset < 0 {
		req.Offset = 0
	}
	if req.RelationshipDepth <= 0 {
		req.RelationshipDepth = defaultRelationshipDepth
	}
	return nil
}

// paginate applies offset and limit to the full result list
func paginate(results []*types.SearchResult, offset, limit int) []*types.SearchResult {
	if offset >= len(results) {
		return []*types.SearchResult{}
	}
	end := offset + limit
	if end > len(results) {
		end = len(results)
	}
	return results[offset:end]
}

func nodeResult(node *storage.Node, structural float64) *types.SearchResult {
	return &types.SearchResult{
		Name:            node.Name,
		Kind:            node.Kind,
		FilePath:        node.FilePath,
		Scope:           node.Scope,
		Content:         node.Snippet,
		LineNumber:      node.Line,
		StructuralScore: structural,
	}
}

func matchResult(match storage.Match) *types.SearchResult {
	doc := match.Document
	return &types.SearchResult{
		Name:          doc.Name,
		Kind:          doc.Kind,
		FilePath:      doc.FilePath,
		Scope:         doc.Scope,
		Content:       doc.Content,
		LineNumber:    doc.Line,
		SemanticScore: match.Score,
		CombinedScore: match.Score,
	}
}

func sortByCombined(results []*types.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].CombinedScore > results[j].CombinedScore
	})
}
