package learning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/quarrylabs/quarry-mcp/pkg/types"
)

// maxQueryTerms is how many non-stopword terms of a query participate in
// reward matching
const maxQueryTerms = 5

// stopwords excluded from reward-query matching: articles, question
// words, and common prepositions
var stopwords = map[string]bool{
	"a": true, "an": true, "the": true,
	"how": true, "what": true, "where": true, "when": true, "why": true,
	"in": true, "on": true, "at": true, "to": true, "for": true,
	"of": true, "with": true, "by": true, "from": true, "about": true,
	"into": true, "over": true, "under": true, "between": true,
	"through": true, "during": true, "before": true, "after": true,
}

// RecordReward appends a signal to the reward ledger. The ledger is
// append-only; entries are never modified or removed.
func (m *Model) RecordReward(ctx context.Context, signal *types.RewardSignal) error {
	if signal.Query == "" {
		return types.ErrEmptyQuery
	}
	if signal.ResultPath == "" {
		return types.ErrMissingPath
	}
	if signal.RecordedAt.IsZero() {
		signal.RecordedAt = time.Now()
	}

	if err := m.store.AppendReward(ctx, signal); err != nil {
		return fmt.Errorf("failed to record reward: %w", err)
	}
	return nil
}

// AccumulatedReward sums the ledger entries for filePath whose recorded
// query shares at least one significant term with the input query. The
// match is lexical on purpose: it runs on the search hot path, where an
// embedding call per result would be far too expensive.
func (m *Model) AccumulatedReward(ctx context.Context, query, filePath string) (float64, error) {
	terms := queryTerms(query)
	if len(terms) == 0 {
		return 0, nil
	}

	signals, err := m.store.RewardsByPath(ctx, filePath)
	if err != nil {
		return 0, fmt.Errorf("failed to load rewards: %w", err)
	}

	var total float64
	for _, signal := range signals {
		stored := strings.ToLower(signal.Query)
		for _, term := range terms {
			if strings.Contains(stored, term) {
				total += signal.Reward
				break
			}
		}
	}
	return total, nil
}

// queryTerms extracts up to maxQueryTerms distinct lowercase non-stopword
// terms, in query order
func queryTerms(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '_')
	})

	seen := make(map[string]bool, len(fields))
	var terms []string
	for _, f := range fields {
		if len(f) < 2 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		terms = append(terms, f)
		if len(terms) == maxQueryTerms {
			break
		}
	}
	return terms
}
