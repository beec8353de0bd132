// Package store persists quarantine records and the learning log. SQLite
// backs local single-operator use; Postgres backs shared deployments.
package store

import (
	"context"
	"time"

	"github.com/sells-group/verify-cli/internal/model"
)

// QuarantineFilter specifies criteria for listing quarantine records.
type QuarantineFilter struct {
	Status model.QuarantineStatus `json:"status,omitempty"`
	// Retryable restricts to records with remaining retry budget.
	Retryable bool `json:"retryable,omitempty"`
	Limit     int  `json:"limit,omitempty"`
	Offset    int  `json:"offset,omitempty"`
}

// Store is the durable persistence interface for the verification gate.
//
// Quarantine records have a multi-step lifecycle and are updated in place.
// The learning log is append-only; entries are never rewritten, so
// MethodStats readers tolerate eventually-consistent views.
type Store interface {
	// Quarantine lifecycle.
	CreateQuarantine(ctx context.Context, q *model.QuarantineRecord) error
	GetQuarantine(ctx context.Context, id string) (*model.QuarantineRecord, error)
	GetQuarantineByProfile(ctx context.Context, profileID string) (*model.QuarantineRecord, error)
	ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error)
	UpdateQuarantine(ctx context.Context, q *model.QuarantineRecord) error
	// DeleteQuarantine removes a resolved record from the queue.
	DeleteQuarantine(ctx context.Context, id string) error

	// AcquireLease grants owner exclusive retry access to a record until the
	// TTL expires; returns false when another live lease exists. Two
	// orchestrators must never retry the same record concurrently.
	AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, id, owner string) error

	// Output sink for records that cleared the gate. Upserts by profile so a
	// re-verification replaces the earlier row.
	SaveOutput(ctx context.Context, rec *model.StoreRecord) error
	GetOutput(ctx context.Context, profileID string) (*model.StoreRecord, error)

	// Learning log.
	AppendLearning(ctx context.Context, entries []model.LearningLogEntry) error
	ListLearning(ctx context.Context, limit int) ([]model.LearningLogEntry, error)
	// MethodStats aggregates retry outcomes per method for one
	// (field category, failure type) pair. Satisfies strategy.StatsProvider.
	MethodStats(ctx context.Context, cat model.FieldCategory, failure model.FailureType) ([]model.MethodStats, error)

	// Lifecycle.
	Migrate(ctx context.Context) error
	Close() error
}
