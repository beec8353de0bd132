package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return &PostgresStore{pool: mock}, mock
}

func TestPostgres_GetQuarantine_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM quarantine WHERE id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetQuarantine(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_CreateQuarantine(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	q := testQuarantineRecord("p1")

	mock.ExpectExec(`INSERT INTO quarantine`).
		WithArgs(q.ID, q.ProfileID, string(q.Status), q.RetryCount, q.MaxRetries,
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateQuarantine(context.Background(), q))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_UpdateQuarantine_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	q := testQuarantineRecord("p1")

	mock.ExpectExec(`UPDATE quarantine SET status`).
		WithArgs(string(q.Status), q.RetryCount, pgxmock.AnyArg(), pgxmock.AnyArg(), q.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.UpdateQuarantine(context.Background(), q)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AcquireLease(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE quarantine SET lease_owner`).
		WithArgs("worker-a", pgxmock.AnyArg(), "q1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := s.AcquireLease(context.Background(), "q1", "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	mock.ExpectExec(`UPDATE quarantine SET lease_owner`).
		WithArgs("worker-b", pgxmock.AnyArg(), "q1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err = s.AcquireLease(context.Background(), "q1", "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_AppendLearning_Copy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"learning_log"}, learningColumns).WillReturnResult(2)

	entries := []model.LearningLogEntry{
		{ID: "l1", ProfileID: "p1", Field: "email", FieldCategory: model.CategoryIdentifier,
			FailureType: model.FailureEmailInvalid, FailedMethod: "site_crawl",
			RetryMethod: "email_verify", ResultStatus: model.FieldPassed, Resolved: true,
			CreatedAt: time.Now()},
		{ID: "l2", ProfileID: "p2", Field: "bio", FieldCategory: model.CategoryFreeText,
			FailureType: model.FailureHallucination, FailedMethod: "site_crawl",
			RetryMethod: "deep_research", ResultStatus: model.FieldFailed,
			CreatedAt: time.Now()},
	}
	require.NoError(t, s.AppendLearning(context.Background(), entries))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_MethodStats(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT retry_method, COUNT`).
		WithArgs("identifier", "email_invalid").
		WillReturnRows(pgxmock.NewRows([]string{"retry_method", "count", "resolved"}).
			AddRow("email_verify", 10, 7).
			AddRow("deep_research", 4, 1))

	stats, err := s.MethodStats(context.Background(), model.CategoryIdentifier, model.FailureEmailInvalid)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "email_verify", stats[0].Method)
	assert.Equal(t, 10, stats[0].Attempts)
	assert.Equal(t, 7, stats[0].Resolutions)
	assert.InDelta(t, 0.7, stats[0].SuccessRate(), 1e-9)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListQuarantine_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	q := testQuarantineRecord("p1")

	data := mustJSON(t, q)
	mock.ExpectQuery(`SELECT data FROM quarantine WHERE 1=1 AND status = \$1 AND retry_count < max_retries`).
		WithArgs(string(model.QuarantineActive), 50).
		WillReturnRows(pgxmock.NewRows([]string{"data"}).AddRow(data))

	got, err := s.ListQuarantine(context.Background(), QuarantineFilter{Retryable: true, Limit: 50})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProfileID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestPostgres_SaveOutput(t *testing.T) {
	s, mock := newMockPostgresStore(t)
	rec := &model.StoreRecord{
		ProfileID:          "p1",
		Fields:             map[string]string{"email": "jane@acme.io"},
		VerificationStatus: model.GateVerified,
		Confidence:         0.95,
	}

	mock.ExpectExec(`INSERT INTO output_records`).
		WithArgs(rec.ProfileID, string(rec.VerificationStatus), rec.Confidence,
			pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.SaveOutput(context.Background(), rec))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetOutput_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT data FROM output_records WHERE profile_id = \$1`).
		WithArgs("nope").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetOutput(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}
