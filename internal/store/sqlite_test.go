package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/verify-cli/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func testQuarantineRecord(profileID string) *model.QuarantineRecord {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.QuarantineRecord{
		ID:          uuid.New().String(),
		ProfileID:   profileID,
		ProfileName: "Jane Doe",
		Status:      model.QuarantineActive,
		Record: model.CandidateRecord{
			ProfileID:        profileID,
			ExtractionMethod: "site_crawl",
			Fields:           map[string]string{"email": "notanemail"},
		},
		Reason:     "email failed format validation",
		MaxRetries: model.DefaultMaxRetries,
		Failures: []model.FieldFailure{
			{Field: "email", Type: model.FailureEmailInvalid, OriginalMethod: "site_crawl"},
		},
		QuarantinedAt: now,
		UpdatedAt:     now,
	}
}

func TestSQLite_Quarantine_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := testQuarantineRecord("p1")
	require.NoError(t, st.CreateQuarantine(ctx, q))

	got, err := st.GetQuarantine(ctx, q.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, q.ProfileID, got.ProfileID)
	assert.Equal(t, q.Failures, got.Failures)
	assert.Equal(t, model.QuarantineActive, got.Status)

	byProfile, err := st.GetQuarantineByProfile(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, byProfile)
	assert.Equal(t, q.ID, byProfile.ID)
}

func TestSQLite_Quarantine_Missing(t *testing.T) {
	st := newTestSQLiteStore(t)

	got, err := st.GetQuarantine(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSQLite_Quarantine_UpdateAndDelete(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := testQuarantineRecord("p1")
	require.NoError(t, st.CreateQuarantine(ctx, q))

	q.RetryCount = 2
	q.Status = model.QuarantinePermanent
	require.NoError(t, st.UpdateQuarantine(ctx, q))

	got, err := st.GetQuarantine(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QuarantinePermanent, got.Status)
	assert.Equal(t, 2, got.RetryCount)

	require.NoError(t, st.DeleteQuarantine(ctx, q.ID))
	gone, err := st.GetQuarantine(ctx, q.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	assert.Error(t, st.DeleteQuarantine(ctx, q.ID), "double delete reports not found")
}

func TestSQLite_Quarantine_ListRetryable(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	active := testQuarantineRecord("p1")
	require.NoError(t, st.CreateQuarantine(ctx, active))

	exhausted := testQuarantineRecord("p2")
	exhausted.RetryCount = exhausted.MaxRetries
	require.NoError(t, st.CreateQuarantine(ctx, exhausted))

	permanent := testQuarantineRecord("p3")
	permanent.Status = model.QuarantinePermanent
	require.NoError(t, st.CreateQuarantine(ctx, permanent))

	got, err := st.ListQuarantine(ctx, QuarantineFilter{Retryable: true})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "p1", got[0].ProfileID)

	all, err := st.ListQuarantine(ctx, QuarantineFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	perm, err := st.ListQuarantine(ctx, QuarantineFilter{Status: model.QuarantinePermanent})
	require.NoError(t, err)
	require.Len(t, perm, 1)
	assert.Equal(t, "p3", perm[0].ProfileID)
}

func TestSQLite_Lease(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := testQuarantineRecord("p1")
	require.NoError(t, st.CreateQuarantine(ctx, q))

	ok, err := st.AcquireLease(ctx, q.ID, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = st.AcquireLease(ctx, q.ID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "a live lease excludes other owners")

	ok, err = st.AcquireLease(ctx, q.ID, "worker-a", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "the holder can renew its own lease")

	require.NoError(t, st.ReleaseLease(ctx, q.ID, "worker-a"))

	ok, err = st.AcquireLease(ctx, q.ID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "a released lease is free for the taking")
}

func TestSQLite_Lease_Expired(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	q := testQuarantineRecord("p1")
	require.NoError(t, st.CreateQuarantine(ctx, q))

	ok, err := st.AcquireLease(ctx, q.ID, "worker-a", -time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.AcquireLease(ctx, q.ID, "worker-b", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired lease is reclaimable")
}

func TestSQLite_Learning_AppendAndStats(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	var entries []model.LearningLogEntry
	add := func(method string, resolved bool) {
		entries = append(entries, model.LearningLogEntry{
			ID:            uuid.New().String(),
			ProfileID:     "p1",
			Field:         "email",
			FieldCategory: model.CategoryIdentifier,
			FailureType:   model.FailureEmailInvalid,
			FailedMethod:  "site_crawl",
			RetryMethod:   method,
			ResultStatus:  model.FieldPassed,
			Resolved:      resolved,
			CreatedAt:     time.Now().UTC(),
		})
	}
	for i := 0; i < 8; i++ {
		add("email_verify", i < 6) // 6/8
	}
	for i := 0; i < 4; i++ {
		add("deep_research", i < 1) // 1/4
	}
	require.NoError(t, st.AppendLearning(ctx, entries))

	stats, err := st.MethodStats(ctx, model.CategoryIdentifier, model.FailureEmailInvalid)
	require.NoError(t, err)
	require.Len(t, stats, 2)

	byMethod := map[string]model.MethodStats{}
	for _, s := range stats {
		byMethod[s.Method] = s
	}
	assert.Equal(t, 8, byMethod["email_verify"].Attempts)
	assert.Equal(t, 6, byMethod["email_verify"].Resolutions)
	assert.Equal(t, 4, byMethod["deep_research"].Attempts)
	assert.Equal(t, 1, byMethod["deep_research"].Resolutions)

	other, err := st.MethodStats(ctx, model.CategoryFreeText, model.FailureHallucination)
	require.NoError(t, err)
	assert.Empty(t, other, "stats are scoped to the pair")

	listed, err := st.ListLearning(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, listed, 5)
}

func TestSQLite_Learning_AppendEmpty(t *testing.T) {
	st := newTestSQLiteStore(t)
	assert.NoError(t, st.AppendLearning(context.Background(), nil))
}

func TestSQLite_Output_Upsert(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := &model.StoreRecord{
		ProfileID:          "p1",
		Fields:             map[string]string{"email": "jane@acme.io"},
		VerificationStatus: model.GateUnverified,
		Confidence:         0.85,
	}
	require.NoError(t, st.SaveOutput(ctx, rec))

	got, err := st.GetOutput(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.GateUnverified, got.VerificationStatus)
	assert.Equal(t, "jane@acme.io", got.Fields["email"])

	// Re-verification replaces the earlier row.
	rec.VerificationStatus = model.GateVerified
	rec.Confidence = 1.0
	require.NoError(t, st.SaveOutput(ctx, rec))

	got, err = st.GetOutput(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.GateVerified, got.VerificationStatus)
	assert.InDelta(t, 1.0, got.Confidence, 1e-9)

	missing, err := st.GetOutput(ctx, "p2")
	require.NoError(t, err)
	assert.Nil(t, missing)
}
