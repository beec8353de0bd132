// Package retry drives the adaptive retry loop over quarantined records:
// classify what failed, pick a different extraction method per field, re-run
// just those fields, and feed the outcome back into the learning log.
package retry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/verify-cli/internal/classify"
	"github.com/sells-group/verify-cli/internal/extractor"
	"github.com/sells-group/verify-cli/internal/model"
	"github.com/sells-group/verify-cli/internal/resilience"
	"github.com/sells-group/verify-cli/internal/store"
	"github.com/sells-group/verify-cli/internal/strategy"
	"github.com/sells-group/verify-cli/internal/verify"
)

// DefaultLeaseTTL bounds how long one orchestrator may hold a record. Long
// enough for a deep-research pass, short enough that a crashed worker does
// not park a record for a whole run window.
const DefaultLeaseTTL = 5 * time.Minute

// Orchestrator runs retry cycles for quarantined records. Safe to run from
// several processes at once: each record is worked under a store lease.
type Orchestrator struct {
	store      store.Store
	gate       *verify.Gate
	classifier *classify.Classifier
	selector   *strategy.Selector
	methods    *extractor.Registry
	fields     *model.FieldRegistry

	owner      string
	leaseTTL   time.Duration
	limit      int
	nowFunc    func() time.Time
	onResolved func(context.Context, *model.StoreRecord) error
}

// Option configures the orchestrator.
type Option func(*Orchestrator)

// WithLeaseTTL sets the per-record lease duration.
func WithLeaseTTL(ttl time.Duration) Option {
	return func(o *Orchestrator) { o.leaseTTL = ttl }
}

// WithLimit caps how many records one Run processes.
func WithLimit(n int) Option {
	return func(o *Orchestrator) { o.limit = n }
}

// WithOwner overrides the generated lease owner identity.
func WithOwner(owner string) Option {
	return func(o *Orchestrator) { o.owner = owner }
}

// WithNow overrides the clock.
func WithNow(now func() time.Time) Option {
	return func(o *Orchestrator) { o.nowFunc = now }
}

// WithResolvedSink registers a callback invoked with the downstream store
// record whenever a retry resolves a quarantine.
func WithResolvedSink(fn func(context.Context, *model.StoreRecord) error) Option {
	return func(o *Orchestrator) { o.onResolved = fn }
}

// NewOrchestrator wires the retry loop.
func NewOrchestrator(st store.Store, gate *verify.Gate, classifier *classify.Classifier,
	selector *strategy.Selector, methods *extractor.Registry, fields *model.FieldRegistry, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      st,
		gate:       gate,
		classifier: classifier,
		selector:   selector,
		methods:    methods,
		fields:     fields,
		owner:      uuid.NewString(),
		leaseTTL:   DefaultLeaseTTL,
		nowFunc:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one retry pass over every leasable record with remaining
// budget. Individual record failures are counted and logged, not fatal.
func (o *Orchestrator) Run(ctx context.Context) (model.RunStats, error) {
	var stats model.RunStats

	records, err := o.store.ListQuarantine(ctx, store.QuarantineFilter{
		Status:    model.QuarantineActive,
		Retryable: true,
		Limit:     o.limit,
	})
	if err != nil {
		return stats, eris.Wrap(err, "retry: list quarantine")
	}

	for i := range records {
		q := &records[i]

		ok, err := o.store.AcquireLease(ctx, q.ID, o.owner, o.leaseTTL)
		if err != nil {
			zap.L().Error("retry: lease acquire failed", zap.String("id", q.ID), zap.Error(err))
			stats.Errors++
			continue
		}
		if !ok {
			zap.L().Debug("retry: record leased elsewhere, skipping", zap.String("id", q.ID))
			continue
		}

		if err := o.retryOne(ctx, q, &stats); err != nil {
			zap.L().Error("retry: record attempt failed",
				zap.String("id", q.ID),
				zap.String("profile_id", q.ProfileID),
				zap.Error(err),
			)
			stats.Errors++
		}

		if err := o.store.ReleaseLease(ctx, q.ID, o.owner); err != nil {
			zap.L().Warn("retry: lease release failed", zap.String("id", q.ID), zap.Error(err))
		}
	}

	zap.L().Info("retry pass complete",
		zap.Int("resolved", stats.Resolved),
		zap.Int("still_quarantined", stats.StillQuarantined),
		zap.Int("permanent", stats.PermanentlyQuarantined),
		zap.Int("errors", stats.Errors),
	)
	return stats, nil
}

// fieldPlan is one field's scheduled re-extraction.
type fieldPlan struct {
	failure model.FieldFailure
	method  string
}

func (o *Orchestrator) retryOne(ctx context.Context, q *model.QuarantineRecord, stats *model.RunStats) error {
	failures := o.classifier.Classify(&q.Record, &q.Verdict)
	if len(failures) == 0 {
		failures = q.Failures
	}

	plans := o.plan(ctx, q, failures)
	if len(plans) == 0 {
		// Every viable method has been tried for every failed field; keep the
		// record but stop burning retry cycles on it.
		q.Status = model.QuarantinePermanent
		q.Reason = "all retry strategies exhausted"
		q.UpdatedAt = o.nowFunc()
		if err := o.store.UpdateQuarantine(ctx, q); err != nil {
			return eris.Wrap(err, "retry: mark permanent")
		}
		stats.PermanentlyQuarantined++
		return nil
	}

	merged, entries := o.execute(ctx, q, plans)

	verdict, err := o.gate.Evaluate(ctx, merged)
	if err != nil {
		return eris.Wrapf(err, "retry: re-verify %s", q.ProfileID)
	}

	o.finishEntries(entries, verdict)
	if err := o.store.AppendLearning(ctx, entries); err != nil {
		// The retry outcome stands even when the learning write fails; the
		// log is advisory input to ranking, not part of record state.
		zap.L().Warn("retry: learning append failed", zap.String("id", q.ID), zap.Error(err))
	}

	// The attempt is over; only now does it count against the budget.
	q.RetryCount++
	q.UpdatedAt = o.nowFunc()

	if verdict.Status != model.GateQuarantined {
		if err := o.resolve(ctx, q, merged, verdict); err != nil {
			return err
		}
		stats.Resolved++
		return nil
	}

	q.Record = *merged
	q.Verdict = *verdict
	q.Failures = o.classifier.Classify(merged, verdict)
	q.OverallConfidence = verdict.Confidence
	q.Reason = quarantineReason(q.Failures)
	if q.RetryCount >= q.MaxRetries {
		q.Status = model.QuarantinePermanent
		stats.PermanentlyQuarantined++
	} else {
		stats.StillQuarantined++
	}
	if err := o.store.UpdateQuarantine(ctx, q); err != nil {
		return eris.Wrap(err, "retry: persist attempt")
	}
	return nil
}

// plan picks the next untried method for each failed field. The original
// extraction method is always excluded alongside previously retried ones.
func (o *Orchestrator) plan(ctx context.Context, q *model.QuarantineRecord, failures []model.FieldFailure) []fieldPlan {
	var plans []fieldPlan
	for _, f := range failures {
		spec := o.fields.ByKey(f.Field)
		if spec == nil {
			continue
		}
		// Fold the failed method into the tried set so it survives across
		// cycles even after a retry replaces the record's extraction method.
		q.RecordAttempt(f.Field, f.OriginalMethod)
		method, ok := o.selector.Next(ctx, spec.Category, f.Type, q.Tried(f.Field))
		if !ok {
			zap.L().Debug("retry: no untried method left",
				zap.String("id", q.ID),
				zap.String("field", f.Field),
			)
			continue
		}
		plans = append(plans, fieldPlan{failure: f, method: method})
	}
	return plans
}

// execute runs each planned method against its fields and merges the results
// into a fresh candidate record. Only failed fields are re-extracted; values
// that already verified are never overwritten.
func (o *Orchestrator) execute(ctx context.Context, q *model.QuarantineRecord, plans []fieldPlan) (*model.CandidateRecord, []model.LearningLogEntry) {
	byMethod := make(map[string][]fieldPlan)
	for _, p := range plans {
		byMethod[p.method] = append(byMethod[p.method], p)
	}

	merged := &q.Record
	entries := make([]model.LearningLogEntry, 0, len(plans))

	for method, group := range byMethod {
		fields := make([]string, 0, len(group))
		for _, p := range group {
			fields = append(fields, p.failure.Field)
			q.RecordAttempt(p.failure.Field, method)
		}

		m, err := o.methods.Get(method)
		var result *extractor.Result
		if err == nil {
			cfg := resilience.DefaultRetryConfig()
			cfg.OnRetry = resilience.RetryLogger(method, "extract")
			result, err = resilience.DoVal(ctx, cfg, func(ctx context.Context) (*extractor.Result, error) {
				return m.Extract(ctx, merged, fields)
			})
		}
		if err != nil {
			zap.L().Warn("retry: extraction method failed",
				zap.String("id", q.ID),
				zap.String("method", method),
				zap.Strings("fields", fields),
				zap.Error(err),
			)
			for _, p := range group {
				entries = append(entries, o.newEntry(q, p))
			}
			continue
		}

		merged = merged.WithFields(method, result.Fields, result.Evidence)
		if result.SourceContent != "" {
			merged.RawSourceContent = result.SourceContent
			now := o.nowFunc()
			merged.ContentAsOf = &now
		}
		for _, p := range group {
			entries = append(entries, o.newEntry(q, p))
		}
	}

	return merged, entries
}

func (o *Orchestrator) newEntry(q *model.QuarantineRecord, p fieldPlan) model.LearningLogEntry {
	var cat model.FieldCategory
	if spec := o.fields.ByKey(p.failure.Field); spec != nil {
		cat = spec.Category
	}
	return model.LearningLogEntry{
		ID:            uuid.NewString(),
		ProfileID:     q.ProfileID,
		Field:         p.failure.Field,
		FieldCategory: cat,
		FailureType:   p.failure.Type,
		FailedMethod:  p.failure.OriginalMethod,
		RetryMethod:   p.method,
		ResultStatus:  model.FieldFailed,
		CreatedAt:     o.nowFunc(),
	}
}

// finishEntries fills each learning entry with the re-verification outcome
// for its field. An entry whose field never made it into the verdict keeps
// its failed default.
func (o *Orchestrator) finishEntries(entries []model.LearningLogEntry, verdict *model.GateVerdict) {
	for i := range entries {
		fv, ok := verdict.Fields[entries[i].Field]
		if !ok {
			continue
		}
		entries[i].ResultStatus = fv.Status
		entries[i].ResultConfidence = fv.Confidence
		entries[i].Resolved = fv.Status == model.FieldPassed || fv.Status == model.FieldAutoFixed
	}
}

// resolve removes a record from quarantine and hands the verified output to
// the downstream sink.
func (o *Orchestrator) resolve(ctx context.Context, q *model.QuarantineRecord, rec *model.CandidateRecord, verdict *model.GateVerdict) error {
	sr := BuildStoreRecord(rec, verdict)
	if err := o.store.SaveOutput(ctx, sr); err != nil {
		return eris.Wrapf(err, "retry: save resolved record %s", q.ProfileID)
	}
	if o.onResolved != nil {
		if err := o.onResolved(ctx, sr); err != nil {
			return eris.Wrapf(err, "retry: deliver resolved record %s", q.ProfileID)
		}
	}
	if err := o.store.DeleteQuarantine(ctx, q.ID); err != nil {
		return eris.Wrap(err, "retry: delete resolved quarantine")
	}
	zap.L().Info("quarantine resolved",
		zap.String("id", q.ID),
		zap.String("profile_id", q.ProfileID),
		zap.String("status", string(verdict.Status)),
		zap.Int("retries_used", q.RetryCount),
	)
	return nil
}

// BuildStoreRecord converts an evaluated record into the downstream output
// shape, preferring repaired values over originals.
func BuildStoreRecord(rec *model.CandidateRecord, verdict *model.GateVerdict) *model.StoreRecord {
	fields := make(map[string]string, len(rec.Fields))
	for k, v := range rec.Fields {
		fields[k] = v
	}
	for k, fv := range verdict.Fields {
		fields[k] = fv.Value()
	}
	return &model.StoreRecord{
		ProfileID:          rec.ProfileID,
		Fields:             fields,
		VerificationStatus: verdict.Status,
		Confidence:         verdict.Confidence,
		Provenance:         verdict.Provenance,
	}
}

// NewQuarantine builds a fresh quarantine record for a rejected candidate.
func NewQuarantine(rec *model.CandidateRecord, verdict *model.GateVerdict, failures []model.FieldFailure, now time.Time) *model.QuarantineRecord {
	return &model.QuarantineRecord{
		ID:                uuid.NewString(),
		ProfileID:         rec.ProfileID,
		ProfileName:       rec.ProfileName,
		Status:            model.QuarantineActive,
		Record:            *rec,
		Verdict:           *verdict,
		Reason:            quarantineReason(failures),
		MaxRetries:        model.DefaultMaxRetries,
		Failures:          failures,
		OverallConfidence: verdict.Confidence,
		QuarantinedAt:     now,
		UpdatedAt:         now,
	}
}

func quarantineReason(failures []model.FieldFailure) string {
	if len(failures) == 0 {
		return "verification failed"
	}
	seen := make(map[model.FailureType]bool, len(failures))
	var parts []string
	for _, f := range failures {
		if !seen[f.Type] {
			seen[f.Type] = true
			parts = append(parts, string(f.Type))
		}
	}
	return fmt.Sprintf("%d field(s) failed: %s", len(failures), strings.Join(parts, ", "))
}
