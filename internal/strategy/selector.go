package strategy

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/model"
)

// minSampleSize is the attempt count below which observed success rates are
// ignored in favor of the static ranking.
const minSampleSize = 5

// unsampledPrior is the neutral score given to methods without enough
// observations. Sampled methods beat it only by earning a better rate.
const unsampledPrior = 0.5

// StatsProvider supplies aggregated learning-log outcomes for one
// (field category, failure type) pair. Eventually-consistent reads are fine;
// ranking only needs approximate recency.
type StatsProvider interface {
	MethodStats(ctx context.Context, cat model.FieldCategory, failure model.FailureType) ([]model.MethodStats, error)
}

// Selector picks the next extraction method for a failed field.
type Selector struct {
	table *Table
	stats StatsProvider
}

// NewSelector creates a selector. stats may be nil, leaving the static
// ranking in force.
func NewSelector(table *Table, stats StatsProvider) *Selector {
	if table == nil {
		table = DefaultTable()
	}
	return &Selector{table: table, stats: stats}
}

// Rank returns the method ranking for a pair, with empirically successful
// methods promoted ahead of the static default.
func (s *Selector) Rank(ctx context.Context, cat model.FieldCategory, failure model.FailureType) []string {
	ranked := s.table.Ranked(cat, failure)
	if s.stats == nil {
		return ranked
	}

	stats, err := s.stats.MethodStats(ctx, cat, failure)
	if err != nil {
		// Ranking is best-effort; the static table is always a valid answer.
		zap.L().Warn("strategy: stats unavailable, using static ranking",
			zap.String("category", string(cat)),
			zap.String("failure", string(failure)),
			zap.Error(err),
		)
		return ranked
	}

	rates := make(map[string]float64, len(stats))
	for _, st := range stats {
		if st.Attempts >= minSampleSize {
			rates[st.Method] = st.SuccessRate()
		}
	}
	if len(rates) == 0 {
		return ranked
	}

	score := func(method string) float64 {
		if r, ok := rates[method]; ok {
			return r
		}
		return unsampledPrior
	}
	// Stable: ties keep static order, so unsampled methods hold position.
	sort.SliceStable(ranked, func(i, j int) bool {
		return score(ranked[i]) > score(ranked[j])
	})
	return ranked
}

// Next returns the highest-ranked method not yet tried for this record, or
// false when every viable method is exhausted.
func (s *Selector) Next(ctx context.Context, cat model.FieldCategory, failure model.FailureType, tried []string) (string, bool) {
	seen := make(map[string]bool, len(tried))
	for _, m := range tried {
		seen[m] = true
	}
	for _, m := range s.Rank(ctx, cat, failure) {
		if !seen[m] {
			return m, true
		}
	}
	return "", false
}
