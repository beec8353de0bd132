package verify

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/verify-cli/internal/model"
)

const defaultConcurrency = 4

// BatchRunner fans a set of candidate records across a bounded worker pool.
// Records are evaluated independently; one bad record never aborts the batch.
type BatchRunner struct {
	gate        *Gate
	concurrency int
	onVerdict   func(*model.CandidateRecord, *model.GateVerdict)
}

// BatchOption configures a BatchRunner.
type BatchOption func(*BatchRunner)

// WithConcurrency bounds the number of records evaluated in parallel.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchRunner) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// WithOnVerdict registers a callback invoked for each completed verdict.
// Callbacks may run concurrently from worker goroutines.
func WithOnVerdict(fn func(*model.CandidateRecord, *model.GateVerdict)) BatchOption {
	return func(b *BatchRunner) { b.onVerdict = fn }
}

// NewBatchRunner creates a runner over the given gate.
func NewBatchRunner(gate *Gate, opts ...BatchOption) *BatchRunner {
	b := &BatchRunner{gate: gate, concurrency: defaultConcurrency}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run evaluates every record and returns verdicts in input order, plus
// aggregate counts. Records that fail evaluation outright produce a nil
// verdict slot and an error count; the batch itself only fails on context
// cancellation.
func (b *BatchRunner) Run(ctx context.Context, recs []*model.CandidateRecord) ([]*model.GateVerdict, model.RunStats, error) {
	verdicts := make([]*model.GateVerdict, len(recs))

	var mu sync.Mutex
	var stats model.RunStats

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)

	for i, rec := range recs {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			verdict, err := b.gate.Evaluate(ctx, rec)
			if err != nil {
				zap.L().Error("record evaluation failed",
					zap.String("profile_id", rec.ProfileID),
					zap.Error(err),
				)
				mu.Lock()
				stats.Errors++
				mu.Unlock()
				return nil
			}

			mu.Lock()
			verdicts[i] = verdict
			switch verdict.Status {
			case model.GateVerified:
				stats.Verified++
			case model.GateUnverified:
				stats.Unverified++
			case model.GateQuarantined:
				stats.Quarantined++
			}
			mu.Unlock()

			if b.onVerdict != nil {
				b.onVerdict(rec, verdict)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return verdicts, stats, err
	}
	return verdicts, stats, nil
}
