package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/verify-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS quarantine (
	id             TEXT PRIMARY KEY,
	profile_id     TEXT NOT NULL UNIQUE,
	status         TEXT NOT NULL DEFAULT 'quarantined',
	retry_count    INTEGER NOT NULL DEFAULT 0,
	max_retries    INTEGER NOT NULL DEFAULT 2,
	data           TEXT NOT NULL,
	lease_owner    TEXT,
	lease_until    DATETIME,
	quarantined_at DATETIME NOT NULL,
	updated_at     DATETIME NOT NULL
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
	resolved          INTEGER NOT NULL,
	result_confidence REAL NOT NULL,
	created_at        DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS output_records (
	profile_id TEXT PRIMARY KEY,
	status     TEXT NOT NULL,
	confidence REAL NOT NULL,
	data       TEXT NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quarantine_status ON quarantine(status);
CREATE INDEX IF NOT EXISTS idx_quarantine_profile ON quarantine(profile_id);
CREATE INDEX IF NOT EXISTS idx_learning_pair ON learning_log(field_category, failure_type);
CREATE INDEX IF NOT EXISTS idx_learning_created ON learning_log(created_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateQuarantine(ctx context.Context, q *model.QuarantineRecord) error {
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quarantine record")
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO quarantine (id, profile_id, status, retry_count, max_retries, data, quarantined_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		q.ID, q.ProfileID, string(q.Status), q.RetryCount, q.MaxRetries,
		string(data), q.QuarantinedAt.UTC(), q.UpdatedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: insert quarantine %s", q.ProfileID)
}

func (s *SQLiteStore) GetQuarantine(ctx context.Context, id string) (*model.QuarantineRecord, error) {
	return scanQuarantine(s.db.QueryRowContext(ctx,
		`SELECT data FROM quarantine WHERE id = ?`, id))
}

func (s *SQLiteStore) GetQuarantineByProfile(ctx context.Context, profileID string) (*model.QuarantineRecord, error) {
	return scanQuarantine(s.db.QueryRowContext(ctx,
		`SELECT data FROM quarantine WHERE profile_id = ?`, profileID))
}

func (s *SQLiteStore) ListQuarantine(ctx context.Context, filter QuarantineFilter) ([]model.QuarantineRecord, error) {
	query := `SELECT data FROM quarantine WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Retryable {
		query += ` AND status = ? AND retry_count < max_retries`
		args = append(args, string(model.QuarantineActive))
	}
	query += ` ORDER BY quarantined_at ASC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list quarantine")
	}
	defer rows.Close()

	var out []model.QuarantineRecord
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan quarantine row")
		}
		var q model.QuarantineRecord
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal quarantine record")
		}
		out = append(out, q)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list quarantine iterate")
}

func (s *SQLiteStore) UpdateQuarantine(ctx context.Context, q *model.QuarantineRecord) error {
	q.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(q)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal quarantine record")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE quarantine SET status = ?, retry_count = ?, data = ?, updated_at = ? WHERE id = ?`,
		string(q.Status), q.RetryCount, string(data), q.UpdatedAt, q.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update quarantine %s", q.ID)
	}
	return checkRowsAffected(res, "quarantine record", q.ID)
}

func (s *SQLiteStore) DeleteQuarantine(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quarantine WHERE id = ?`, id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete quarantine %s", id)
	}
	return checkRowsAffected(res, "quarantine record", id)
}

func (s *SQLiteStore) AcquireLease(ctx context.Context, id, owner string, ttl time.Duration) (bool, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE quarantine SET lease_owner = ?, lease_until = ?
		 WHERE id = ? AND (lease_owner IS NULL OR lease_owner = ? OR lease_until < ?)`,
		owner, now.Add(ttl), id, owner, now,
	)
	if err != nil {
		return false, eris.Wrapf(err, "sqlite: acquire lease %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) ReleaseLease(ctx context.Context, id, owner string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE quarantine SET lease_owner = NULL, lease_until = NULL
		 WHERE id = ? AND lease_owner = ?`,
		id, owner,
	)
	return eris.Wrapf(err, "sqlite: release lease %s", id)
}

func (s *SQLiteStore) SaveOutput(ctx context.Context, rec *model.StoreRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal output record")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO output_records (profile_id, status, confidence, data, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(profile_id) DO UPDATE SET
		   status = excluded.status,
		   confidence = excluded.confidence,
		   data = excluded.data,
		   updated_at = excluded.updated_at`,
		rec.ProfileID, string(rec.VerificationStatus), rec.Confidence, string(data), time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: save output %s", rec.ProfileID)
}

func (s *SQLiteStore) GetOutput(ctx context.Context, profileID string) (*model.StoreRecord, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM output_records WHERE profile_id = ?`, profileID).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get output")
	}
	var rec model.StoreRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal output record")
	}
	return &rec, nil
}

func (s *SQLiteStore) AppendLearning(ctx context.Context, entries []model.LearningLogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin learning append")
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO learning_log
		 (id, profile_id, field, field_category, failure_type, failed_method, retry_method, result_status, resolved, result_confidence, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare learning insert")
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.ExecContext(ctx,
			e.ID, e.ProfileID, e.Field, string(e.FieldCategory), string(e.FailureType),
			e.FailedMethod, e.RetryMethod, string(e.ResultStatus), boolToInt(e.Resolved),
			e.ResultConfidence, e.CreatedAt.UTC(),
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert learning entry %s", e.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit learning append")
}

func (s *SQLiteStore) ListLearning(ctx context.Context, limit int) ([]model.LearningLogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, profile_id, field, field_category, failure_type, failed_method, retry_method, result_status, resolved, result_confidence, created_at
		 FROM learning_log ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list learning")
	}
	defer rows.Close()

	var out []model.LearningLogEntry
	for rows.Next() {
		var e model.LearningLogEntry
		var resolved int
		if err := rows.Scan(&e.ID, &e.ProfileID, &e.Field, &e.FieldCategory, &e.FailureType,
			&e.FailedMethod, &e.RetryMethod, &e.ResultStatus, &resolved, &e.ResultConfidence, &e.CreatedAt,
		); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan learning entry")
		}
		e.Resolved = resolved != 0
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list learning iterate")
}

func (s *SQLiteStore) MethodStats(ctx context.Context, cat model.FieldCategory, failure model.FailureType) ([]model.MethodStats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT retry_method, COUNT(*), SUM(resolved)
		 FROM learning_log WHERE field_category = ? AND failure_type = ?
		 GROUP BY retry_method`,
		string(cat), string(failure))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: method stats")
	}
	defer rows.Close()

	var out []model.MethodStats
	for rows.Next() {
		st := model.MethodStats{FieldCategory: cat, FailureType: failure}
		if err := rows.Scan(&st.Method, &st.Attempts, &st.Resolutions); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan method stats")
		}
		out = append(out, st)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: method stats iterate")
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanQuarantine(row scannable) (*model.QuarantineRecord, error) {
	var data string
	err := row.Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan quarantine")
	}

	var q model.QuarantineRecord
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal quarantine record")
	}
	return &q, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
