package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/verify-cli/internal/db"
	"github.com/sells-group/verify-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the hot store operations.
var preparedStatements = map[string]string{
	"insert_quarantine": `INSERT INTO quarantine (id, profile_id, status, retry_count, max_retries, data, quarantined_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
	"get_quarantine":            `SELECT data FROM quarantine WHERE id = $1`,
	"get_quarantine_by_profile": `SELECT data FROM quarantine WHERE profile_id = $1`,
	"update_quarantine":         `UPDATE quarantine SET status = $1, retry_count = $2, data = $3, updated_at = $4 WHERE id = $5`,
	"delete_quarantine":         `DELETE FROM quarantine WHERE id = $1`,
	"acquire_lease": `UPDATE quarantine SET lease_owner = $1, lease_until = $2
		WHERE id = $3 AND (lease_owner IS NULL OR lease_owner = $1 OR lease_until < $4)`,
	"release_lease": `UPDATE quarantine SET lease_owner = NULL, lease_until = NULL WHERE id = $1 AND lease_owner = $2`,
	"method_stats": `SELECT retry_method, COUNT(*), COUNT(*) FILTER (WHERE resolved)
		FROM learning_log WHERE field_category = $1 AND failure_type = $2 GROUP BY retry_method`,
	"save_output": `INSERT INTO output_records (profile_id, status, confidence, data, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (profile_id) DO UPDATE SET
		  status = EXCLUDED.status,
		  confidence = EXCLUDED.confidence,
		  data = EXCLUDED.data,
		  updated_at = EXCLUDED.updated_at`,
	"get_output": `SELECT data FROM output_records WHERE profile_id = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: pool.Close}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS quarantine (
	id             TEXT PRIMARY KEY,
	profile_id     TEXT NOT NULL UNIQUE,
	status         TEXT NOT NULL DEFAULT 'quarantined',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 2,
	data           JSONB NOT NULL,
	lease_owner    TEXT,
	lease_until    TIMESTAMPTZ,
	quarantined_at TIMESTAMPTZ NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS learning_log (
	id                TEXT PRIMARY KEY,
	profile_id        TEXT NOT NULL,
	field             TEXT NOT NULL,
	field_category    TEXT NOT NULL,
	failure_type      TEXT NOT NULL,
	failed_method     TEXT NOT NULL,
	retry_method      TEXT NOT NULL,
	result_status     TEXT NOT NULL,
	resolved          BOOLEAN NOT NULL,
	result_confidence DOUBLE PRECISION NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS output_records (
	profile_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	data       JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quarantine_status ON quarantine(status);
CREATE INDEX IF NOT EXISTS idx_learning_pair ON learning_log(field_category, failure_type);
CREATE INDEX IF NOT EXISTS idx_learning_created ON learning_log(created_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// Pool exposes the underlying pool for bulk helpers.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

func (s *PostgresStore) CreateQuarantine(ctx context.Context, q *model.QuarantineRecord) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quarantine record")
	}
	_, err = s.pool.Exec(ctx, preparedStatements["insert_quarantine"],
		q.ID, q.ProfileID, string(q.Status), q.RetryCount, q.MaxRetries,
		data, q.QuarantinedAt.UTC(), q.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: insert quarantine %s", q.ProfileID)
}

func (s *PostgresStore) GetQuarantine(ctx context.Context, id string) (*model.QuarantineRecord, error) {
	return scanQuarantinePgx(s.pool.QueryRow(ctx, preparedStatements["get_quarantine"], id))
}

func (s *PostgresStore) GetQuarantineByProfile(ctx context.Context, profileID string) (*model.QuarantineRecord, error) {
	return scanQuarantinePgx(s.pool.QueryRow(ctx, preparedStatements["get_quarantine_by_profile"], profileID))
}

func (s *PostgresStore) ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error) {
	query := `SELECT data FROM quarantine WHERE 1=1`
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	if filter.Status != "" {
		query += ` AND status = ` + arg(string(filter.Status))
	}
	if filter.Retryable {
		query += ` AND status = ` + arg(string(model.QuarantineActive)) + ` AND retry_count < max_retries`
	}
	query += ` ORDER BY quarantined_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ` + arg(limit)
	if filter.Offset > 0 {
		query += ` OFFSET ` + arg(filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list quarantine")
	}
	defer rows.Close()

	var out []model.QuarantineRecord
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan quarantine row")
		}
		var q model.QuarantineRecord
		if err := json.Unmarshal(data, &q); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal quarantine record")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list quarantine iterate")
}

func (s *PostgresStore) UpdateQuarantine(ctx context.Context, q *model.QuarantineRecord) error {
	q.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal quarantine record")
	}

	tag, err := s.pool.Exec(ctx, preparedStatements["update_quarantine"],
		string(q.Status), q.RetryCount, data, q.UpdatedAt, q.ID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update quarantine %s", q.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quarantine record not found: %s", q.ID)
	}
	return nil
}

func (s *PostgresStore) DeleteQuarantine(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, preparedStatements["delete_quarantine"], id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete quarantine %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("quarantine record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx, preparedStatements["acquire_lease"], owner, now.Add(ttl), id, now)
	if err != nil {
		return false, eris.Wrapf(err, "postgres: acquire lease %s", id)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) ReleaseLease(ctx context.Context, id, owner string) error {
	_, err := s.pool.Exec(ctx, preparedStatements["release_lease"], id, owner)
	return eris.Wrapf(err, "postgres: release lease %s", id)
}

func (s *PostgresStore) SaveOutput(ctx context.Context, rec *model.StoreRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal output record")
	}
	_, err = s.pool.Exec(ctx, preparedStatements["save_output"],
		rec.ProfileID, string(rec.VerificationStatus), rec.Confidence, data, time.Now().UTC())
	return eris.Wrapf(err, "postgres: save output %s", rec.ProfileID)
}

func (s *PostgresStore) GetOutput(ctx context.Context, profileID string) (*model.StoreRecord, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, preparedStatements["get_output"], profileID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get output")
	}
	var rec model.StoreRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal output record")
	}
	return &rec, nil
}

// learningColumns is the COPY column order for learning_log.
var learningColumns = []string{
	"id", "profile_id", "field", "field_category", "failure_type",
	"failed_method", "retry_method", "result_status", "resolved",
	"result_confidence", "created_at",
}

// AppendLearning bulk-appends entries over the COPY protocol.
func (s *PostgresStore) AppendLearning(ctx context.Context, entries []model.LearningLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	rows := make([][]any, len(entries))
	for i, e := range entries {
		rows[i] = []any{
			e.ID, e.ProfileID, e.Field, string(e.FieldCategory), string(e.FailureType),
			e.FailedMethod, e.RetryMethod, string(e.ResultStatus), e.Resolved,
			e.ResultConfidence, e.CreatedAt.UTC(),
		}
	}

	_, err := db.CopyFrom(ctx, s.pool, "learning_log", learningColumns, rows)
	return eris.Wrap(err, "postgres: append learning entries")
}

func (s *PostgresStore) ListLearning(ctx context.Context, limit int) ([]model.LearningLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, profile_id, field, field_category, failure_type, failed_method, retry_method, result_status, resolved, result_confidence, created_at
		 FROM learning_log ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list learning")
	}
	defer rows.Close()

	var out []model.LearningLogEntry
	for rows.Next() {
		var e model.LearningLogEntry
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Field, &e.FieldCategory, &e.FailureType,
			&e.FailedMethod, &e.RetryMethod, &e.ResultStatus, &e.Resolved, &e.ResultConfidence, &e.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "postgres: scan learning entry")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list learning iterate")
}

func (s *PostgresStore) MethodStats(ctx context.Context, cat model.FieldCategory, failure model.FailureType) ([]model.MethodStats, error) {
	rows, err := s.pool.Query(ctx, preparedStatements["method_stats"], string(cat), string(failure))
	if err != nil {
		return nil, eris.Wrap(err, "postgres: method stats")
	}
	defer rows.Close()

	var out []model.MethodStats
	for rows.Next() {
		st := model.MethodStats{FieldCategory: cat, FailureType: failure}
		if err := rows.Scan(&st.Method, &st.Attempts, &st.Resolutions); err != nil {
			return nil, eris.Wrap(err, "postgres: scan method stats")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "postgres: method stats iterate")
}

func scanQuarantinePgx(row pgx.Row) (*model.QuarantineRecord, error) {
	var data []byte
	err := row.Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: scan quarantine")
	}

	var q model.QuarantineRecord
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal quarantine record")
	}
	return &q, nil
}

