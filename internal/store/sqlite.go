package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/doclab/labrepair-cli/internal/model"
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
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS medical_records (
	id          TEXT PRIMARY KEY,
	user_id     TEXT NOT NULL,
	record_type TEXT NOT NULL DEFAULT 'document',
	content     TEXT NOT NULL,
	created_at  DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS structured_test_results (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	test_name        TEXT NOT NULL,
	result           TEXT NOT NULL DEFAULT '',
	reference_values TEXT NOT NULL DEFAULT '',
	units            TEXT NOT NULL DEFAULT '',
	test_date        TEXT NOT NULL DEFAULT '',
	test_system      TEXT NOT NULL DEFAULT '',
	equipment        TEXT NOT NULL DEFAULT '',
	notes            TEXT NOT NULL DEFAULT '',
	source_record_id TEXT NOT NULL DEFAULT '',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	UNIQUE(user_id, test_name, test_date)
);

CREATE TABLE IF NOT EXISTS reprocess_intents (
	id              TEXT PRIMARY KEY,
	user_id         TEXT NOT NULL,
	phase           TEXT NOT NULL DEFAULT 'pending_delete',
	deleted_count   INTEGER NOT NULL DEFAULT 0,
	extracted_count INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at      DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_test_results_user ON structured_test_results(user_id);
CREATE INDEX IF NOT EXISTS idx_medical_records_user ON medical_records(user_id);
CREATE INDEX IF NOT EXISTS idx_reprocess_intents_user ON reprocess_intents(user_id, phase);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const testRecordColumns = `id, user_id, test_name, result, reference_values, units,
	test_date, test_system, equipment, notes, source_record_id, created_at, updated_at`

func (s *SQLiteStore) ListTestRecords(ctx context.Context, userID string) ([]model.TestRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+testRecordColumns+` FROM structured_test_results
		 WHERE user_id = ? ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list test records")
	}
	defer rows.Close()

	var recs []model.TestRecord
	for rows.Next() {
		var r model.TestRecord
		if err := scanTestRecord(rows, &r); err != nil {
			return nil, err
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list test records iterate")
}

func (s *SQLiteStore) InsertTestRecord(ctx context.Context, rec *model.TestRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO structured_test_results
		 (`+testRecordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.TestName, rec.Result, rec.ReferenceValues, rec.Units,
		rec.TestDate, rec.TestSystem, rec.Equipment, rec.Notes, rec.SourceRecordID,
		now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "sqlite: insert test record")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, eris.Wrap(err, "sqlite: rows affected")
	}
	return n > 0, nil
}

func (s *SQLiteStore) UpdateTestFields(ctx context.Context, id string, upd model.FieldUpdate) error {
	if upd.Empty() {
		return nil
	}

	query := `UPDATE structured_test_results SET updated_at = ?`
	args := []any{upd.UpdatedAt.UTC()}

	if upd.Result != nil {
		query += `, result = ?`
		args = append(args, *upd.Result)
	}
	if upd.TestSystem != nil {
		query += `, test_system = ?`
		args = append(args, *upd.TestSystem)
	}
	if upd.Equipment != nil {
		query += `, equipment = ?`
		args = append(args, *upd.Equipment)
	}
	query += ` WHERE id = ?`
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update test record %s", id)
	}
	return checkRowsAffected(res, "test record", id)
}

func (s *SQLiteStore) DeleteTestRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM structured_test_results WHERE id = ?`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete test record %s", id)
	}
	return checkRowsAffected(res, "test record", id)
}

func (s *SQLiteStore) DeleteUserTests(ctx context.Context, userID string) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM structured_test_results WHERE user_id = ?`, userID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "sqlite: delete tests for user %s", userID)
	}
	n, err := res.RowsAffected()
	return int(n), eris.Wrap(err, "sqlite: rows affected")
}

func (s *SQLiteStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT user_id FROM structured_test_results ORDER BY user_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list user ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan user id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "sqlite: list user ids iterate")
}

func (s *SQLiteStore) GetMedicalRecord(ctx context.Context, id string) (*model.MedicalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, record_type, content, created_at
		 FROM medical_records WHERE id = ?`, id,
	)

	var r model.MedicalRecord
	err := row.Scan(&r.ID, &r.UserID, &r.RecordType, &r.Content, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get medical record")
	}
	return &r, nil
}

func (s *SQLiteStore) ListMedicalRecords(ctx context.Context, userID string, limit int) ([]model.MedicalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, record_type, content, created_at
		 FROM medical_records WHERE user_id = ?
		 ORDER BY created_at DESC LIMIT ?`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list medical records")
	}
	defer rows.Close()

	var recs []model.MedicalRecord
	for rows.Next() {
		var r model.MedicalRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.RecordType, &r.Content, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan medical record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "sqlite: list medical records iterate")
}

func (s *SQLiteStore) InsertMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordType == "" {
		rec.RecordType = "document"
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO medical_records (id, user_id, record_type, content, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.RecordType, rec.Content, rec.CreatedAt,
	)
	return eris.Wrap(err, "sqlite: insert medical record")
}

func (s *SQLiteStore) CreateReprocessIntent(ctx context.Context, userID string) (*model.ReprocessIntent, error) {
	now := time.Now().UTC()
	intent := &model.ReprocessIntent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Phase:     model.ReprocessPending,
		StartedAt: now,
		UpdatedAt: now,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reprocess_intents (id, user_id, phase, started_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)`,
		intent.ID, intent.UserID, string(intent.Phase), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: create reprocess intent")
	}
	return intent, nil
}

func (s *SQLiteStore) UpdateReprocessIntent(ctx context.Context, intent *model.ReprocessIntent) error {
	intent.UpdatedAt = time.Now().UTC()

	res, err := s.db.ExecContext(ctx,
		`UPDATE reprocess_intents
		 SET phase = ?, deleted_count = ?, extracted_count = ?, error = ?, updated_at = ?
		 WHERE id = ?`,
		string(intent.Phase), intent.DeletedCount, intent.ExtractedCount,
		intent.Error, intent.UpdatedAt, intent.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update reprocess intent %s", intent.ID)
	}
	return checkRowsAffected(res, "reprocess intent", intent.ID)
}

func (s *SQLiteStore) ListPendingReprocess(ctx context.Context, userID string) ([]model.ReprocessIntent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, phase, deleted_count, extracted_count, error, started_at, updated_at
		 FROM reprocess_intents
		 WHERE user_id = ? AND phase IN (?, ?)
		 ORDER BY started_at`,
		userID, string(model.ReprocessPending), string(model.ReprocessDeleted),
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list pending reprocess")
	}
	defer rows.Close()

	var intents []model.ReprocessIntent
	for rows.Next() {
		var in model.ReprocessIntent
		var phase string
		if err := rows.Scan(&in.ID, &in.UserID, &phase, &in.DeletedCount,
			&in.ExtractedCount, &in.Error, &in.StartedAt, &in.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan reprocess intent")
		}
		in.Phase = model.ReprocessPhase(phase)
		intents = append(intents, in)
	}
	return intents, eris.Wrap(rows.Err(), "sqlite: list pending reprocess iterate")
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

func scanTestRecord(row scannable, r *model.TestRecord) error {
	err := row.Scan(&r.ID, &r.UserID, &r.TestName, &r.Result, &r.ReferenceValues,
		&r.Units, &r.TestDate, &r.TestSystem, &r.Equipment, &r.Notes,
		&r.SourceRecordID, &r.CreatedAt, &r.UpdatedAt)
	return eris.Wrap(err, "sqlite: scan test record")
}
