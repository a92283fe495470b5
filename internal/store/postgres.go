package store

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/doclab/labrepair-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses; pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS medical_records (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id     TEXT NOT NULL,
	record_type TEXT NOT NULL DEFAULT 'document',
	content     TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS structured_test_results (
	id               TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
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
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE(user_id, test_name, test_date)
);

CREATE TABLE IF NOT EXISTS reprocess_intents (
	id              TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	user_id         TEXT NOT NULL,
	phase           TEXT NOT NULL DEFAULT 'pending_delete',
	deleted_count   INTEGER NOT NULL DEFAULT 0,
	extracted_count INTEGER NOT NULL DEFAULT 0,
	error           TEXT NOT NULL DEFAULT '',
	started_at      TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_test_results_user ON structured_test_results(user_id);
CREATE INDEX IF NOT EXISTS idx_medical_records_user ON medical_records(user_id);
CREATE INDEX IF NOT EXISTS idx_reprocess_intents_user ON reprocess_intents(user_id, phase);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

const pgTestRecordColumns = `id, user_id, test_name, result, reference_values, units,
	test_date, test_system, equipment, notes, source_record_id, created_at, updated_at`

func (s *PostgresStore) ListTestRecords(ctx context.Context, userID string) ([]model.TestRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgTestRecordColumns+` FROM structured_test_results
		 WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list test records")
	}
	defer rows.Close()

	var recs []model.TestRecord
	for rows.Next() {
		var r model.TestRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.TestName, &r.Result, &r.ReferenceValues,
			&r.Units, &r.TestDate, &r.TestSystem, &r.Equipment, &r.Notes,
			&r.SourceRecordID, &r.CreatedAt, &r.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan test record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list test records iterate")
}

func (s *PostgresStore) InsertTestRecord(ctx context.Context, rec *model.TestRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec.CreatedAt = now
	rec.UpdatedAt = now

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO structured_test_results
		 (`+pgTestRecordColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 ON CONFLICT (user_id, test_name, test_date) DO NOTHING`,
		rec.ID, rec.UserID, rec.TestName, rec.Result, rec.ReferenceValues, rec.Units,
		rec.TestDate, rec.TestSystem, rec.Equipment, rec.Notes, rec.SourceRecordID,
		now, now,
	)
	if err != nil {
		return false, eris.Wrap(err, "postgres: insert test record")
	}
	return tag.RowsAffected() > 0, nil
}

func (s *PostgresStore) UpdateTestFields(ctx context.Context, id string, upd model.FieldUpdate) error {
	if upd.Empty() {
		return nil
	}

	query := `UPDATE structured_test_results SET updated_at = $1`
	args := []any{upd.UpdatedAt.UTC()}

	if upd.Result != nil {
		args = append(args, *upd.Result)
		query += `, result = $` + strconv.Itoa(len(args))
	}
	if upd.TestSystem != nil {
		args = append(args, *upd.TestSystem)
		query += `, test_system = $` + strconv.Itoa(len(args))
	}
	if upd.Equipment != nil {
		args = append(args, *upd.Equipment)
		query += `, equipment = $` + strconv.Itoa(len(args))
	}
	args = append(args, id)
	query += ` WHERE id = $` + strconv.Itoa(len(args))

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return eris.Wrapf(err, "postgres: update test record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("test record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteTestRecord(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM structured_test_results WHERE id = $1`, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete test record %s", id)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("test record not found: %s", id)
	}
	return nil
}

func (s *PostgresStore) DeleteUserTests(ctx context.Context, userID string) (int, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM structured_test_results WHERE user_id = $1`, userID,
	)
	if err != nil {
		return 0, eris.Wrapf(err, "postgres: delete tests for user %s", userID)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStore) ListUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT DISTINCT user_id FROM structured_test_results ORDER BY user_id`,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list user ids")
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, eris.Wrap(err, "postgres: scan user id")
		}
		ids = append(ids, id)
	}
	return ids, eris.Wrap(rows.Err(), "postgres: list user ids iterate")
}

func (s *PostgresStore) GetMedicalRecord(ctx context.Context, id string) (*model.MedicalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, user_id, record_type, content, created_at
		 FROM medical_records WHERE id = $1`, id,
	)

	var r model.MedicalRecord
	err := row.Scan(&r.ID, &r.UserID, &r.RecordType, &r.Content, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get medical record")
	}
	return &r, nil
}

func (s *PostgresStore) ListMedicalRecords(ctx context.Context, userID string, limit int) ([]model.MedicalRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, record_type, content, created_at
		 FROM medical_records WHERE user_id = $1
		 ORDER BY created_at DESC LIMIT $2`,
		userID, limit,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list medical records")
	}
	defer rows.Close()

	var recs []model.MedicalRecord
	for rows.Next() {
		var r model.MedicalRecord
		if err := rows.Scan(&r.ID, &r.UserID, &r.RecordType, &r.Content, &r.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan medical record")
		}
		recs = append(recs, r)
	}
	return recs, eris.Wrap(rows.Err(), "postgres: list medical records iterate")
}

func (s *PostgresStore) InsertMedicalRecord(ctx context.Context, rec *model.MedicalRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.RecordType == "" {
		rec.RecordType = "document"
	}
	rec.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO medical_records (id, user_id, record_type, content, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		rec.ID, rec.UserID, rec.RecordType, rec.Content, rec.CreatedAt,
	)
	return eris.Wrap(err, "postgres: insert medical record")
}

func (s *PostgresStore) CreateReprocessIntent(ctx context.Context, userID string) (*model.ReprocessIntent, error) {
	now := time.Now().UTC()
	intent := &model.ReprocessIntent{
		ID:        uuid.New().String(),
		UserID:    userID,
		Phase:     model.ReprocessPending,
		StartedAt: now,
		UpdatedAt: now,
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO reprocess_intents (id, user_id, phase, started_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		intent.ID, intent.UserID, string(intent.Phase), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create reprocess intent")
	}
	return intent, nil
}

func (s *PostgresStore) UpdateReprocessIntent(ctx context.Context, intent *model.ReprocessIntent) error {
	intent.UpdatedAt = time.Now().UTC()

	tag, err := s.pool.Exec(ctx,
		`UPDATE reprocess_intents
		 SET phase = $1, deleted_count = $2, extracted_count = $3, error = $4, updated_at = $5
		 WHERE id = $6`,
		string(intent.Phase), intent.DeletedCount, intent.ExtractedCount,
		intent.Error, intent.UpdatedAt, intent.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: update reprocess intent %s", intent.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("reprocess intent not found: %s", intent.ID)
	}
	return nil
}

func (s *PostgresStore) ListPendingReprocess(ctx context.Context, userID string) ([]model.ReprocessIntent, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, phase, deleted_count, extracted_count, error, started_at, updated_at
		 FROM reprocess_intents
		 WHERE user_id = $1 AND phase IN ($2, $3)
		 ORDER BY started_at`,
		userID, string(model.ReprocessPending), string(model.ReprocessDeleted),
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list pending reprocess")
	}
	defer rows.Close()

	var intents []model.ReprocessIntent
	for rows.Next() {
		var in model.ReprocessIntent
		var phase string
		if err := rows.Scan(&in.ID, &in.UserID, &phase, &in.DeletedCount,
			&in.ExtractedCount, &in.Error, &in.StartedAt, &in.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan reprocess intent")
		}
		in.Phase = model.ReprocessPhase(phase)
		intents = append(intents, in)
	}
	return intents, eris.Wrap(rows.Err(), "postgres: list pending reprocess iterate")
}

