package types

import "time"

// ImportanceMetric tracks learned relevance signals for one file within a
// scope. Created lazily on the first recorded event, updated additively,
// and never deleted (recency decays instead).
type ImportanceMetric struct {
	FilePath string
	Scope    string

	// Event counters, all monotonically non-decreasing
	AccessCount       int
	EditCount         int
	DiscussionCount   int
	SearchResultCount int
	SelectedCount     int

	LastAccessedAt time.Time
	LastEditedAt   time.Time

	// Derived scores, each in [0, 1]
	ImportanceScore float64
	RecencyScore    float64
	FrequencyScore  float64
}

// Validate checks the metric invariants: counts >= 0, scores in [0, 1]
func (m *ImportanceMetric) Validate() error {
	if m.AccessCount < 0 || m.EditCount < 0 || m.DiscussionCount < 0 ||
		m.SearchResultCount < 0 || m.SelectedCount < 0 {
		return ErrNegativeCount
	}

	for _, s := range []float64{m.ImportanceScore, m.RecencyScore, m.FrequencyScore} {
		if s < 0 || s > 1 {
			return ErrInvalidScore
		}
	}

	return nil
}

// CoEditEdge records that two files were edited together. The pair is
// undirected; FileA sorts lexically before FileB.
type CoEditEdge struct {
	FileA       string
	FileB       string
	Scope       string
	Count       int
	FirstSeenAt time.Time
	LastSeenAt  time.Time
	SessionIDs  []string
}

// RewardSignal is one entry in the append-only reward ledger. Signals are
// immutable once recorded.
type RewardSignal struct {
	Query      string
	ResultPath string
	Kind       string
	Reward     float64
	SessionID  string // Optional
	RecordedAt time.Time
}

// ReindexRun aggregates the outcome of one reindex invocation. It exists
// only for the duration of the call.
type ReindexRun struct {
	Scope          string
	FilesAdded     int
	FilesUpdated   int
	FilesRemoved   int
	TotalProcessed int
	Errors         []string
	Duration       time.Duration
	Success        bool
}
