// Package postgres is the structured record store: one row per
// (date_string, hour_of_day) identity on PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/ironsheep/creek-ocr/internal/catalog"
	"github.com/ironsheep/creek-ocr/internal/failure"
	"github.com/ironsheep/creek-ocr/internal/record"
)

// schemaLockID serializes bootstrap DDL across service and worker startups.
const schemaLockID int64 = 2024031001

// RecordStore keeps one row per (date_string, hour_of_day) in PostgreSQL.
type RecordStore struct {
	db *sql.DB
}

// NewRecordStore wraps an open database. Call EnsureSchema before use.
func NewRecordStore(db *sql.DB) *RecordStore {
	return &RecordStore{db: db}
}

// OpenDB opens a pgx-backed pool for dsn and pings it.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the record table and index. Concurrent callers are
// serialized with an advisory lock.
func (s *RecordStore) EnsureSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS readings (
	date_string TEXT NOT NULL,
	hour_of_day SMALLINT NOT NULL,
	unix_timestamp BIGINT NOT NULL,
	s3_key TEXT NOT NULL,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	failed_fields JSONB NOT NULL DEFAULT '[]'::jsonb,
	partial BOOLEAN NOT NULL DEFAULT FALSE,
	updated_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (date_string, hour_of_day)
);

CREATE INDEX IF NOT EXISTS idx_readings_unix_timestamp ON readings(unix_timestamp DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// DropSchema removes the readings table and everything in it.
func (s *RecordStore) DropSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS readings`); err != nil {
		return fmt.Errorf("drop readings table: %w", err)
	}
	return nil
}

// storedValue keeps a field's kind next to its text so the typed value can
// be rebuilt on read.
type storedValue struct {
	Kind  string `json:"kind"`
	Value string `json:"value"`
}

// Put writes rec keyed by its identity. Writing an identity that already
// exists replaces the earlier row.
func (s *RecordStore) Put(ctx context.Context, rec *record.Record) error {
	id := rec.Identity()

	fields := make(map[string]storedValue, rec.Len())
	for fid, v := range rec.Fields() {
		fields[string(fid)] = storedValue{Kind: v.Kind().String(), Value: v.String()}
	}
	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("marshal fields: %w", err)
	}

	failed := rec.Failures()
	if failed == nil {
		failed = []record.FieldFailure{}
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return fmt.Errorf("marshal failed fields: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO readings (
	date_string, hour_of_day, unix_timestamp, s3_key, fields, failed_fields, partial, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (date_string, hour_of_day) DO UPDATE SET
	unix_timestamp = EXCLUDED.unix_timestamp,
	s3_key = EXCLUDED.s3_key,
	fields = EXCLUDED.fields,
	failed_fields = EXCLUDED.failed_fields,
	partial = EXCLUDED.partial,
	updated_at = EXCLUDED.updated_at
`,
		id.Date, id.Hour, id.Unix, rec.SourceKey(), string(fieldsJSON), string(failedJSON), rec.Partial(), time.Now().UTC(),
	)
	if err != nil {
		return failure.NewStorage("put record", fmt.Sprintf("%s/%d", id.Date, id.Hour), err)
	}
	return nil
}

// Query returns the records of one UTC date ordered by hour.
func (s *RecordStore) Query(ctx context.Context, date string) ([]*record.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT date_string, hour_of_day, unix_timestamp, s3_key, fields, failed_fields, partial
FROM readings
WHERE date_string = $1
ORDER BY hour_of_day ASC
`, date)
	if err != nil {
		return nil, failure.NewStorage("query records", date, err)
	}
	defer rows.Close()

	var out []*record.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, failure.NewStorage("query records", date, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, failure.NewStorage("query records", date, err)
	}
	return out, nil
}

func scanRecord(rows *sql.Rows) (*record.Record, error) {
	var (
		id                   record.Identity
		sourceKey            string
		fieldsRaw, failedRaw []byte
		partial              bool
	)
	if err := rows.Scan(&id.Date, &id.Hour, &id.Unix, &sourceKey, &fieldsRaw, &failedRaw, &partial); err != nil {
		return nil, fmt.Errorf("scan record: %w", err)
	}

	var stored map[string]storedValue
	if err := json.Unmarshal(fieldsRaw, &stored); err != nil {
		return nil, fmt.Errorf("unmarshal fields: %w", err)
	}
	fields := make(map[catalog.ID]record.Value, len(stored))
	for name, sv := range stored {
		kind, err := catalog.ParseKind(sv.Kind)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		v, err := record.ParseValue(kind, sv.Value)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", name, err)
		}
		fields[catalog.ID(name)] = v
	}

	var failed []record.FieldFailure
	if len(failedRaw) > 0 {
		if err := json.Unmarshal(failedRaw, &failed); err != nil {
			return nil, fmt.Errorf("unmarshal failed fields: %w", err)
		}
	}

	return record.New(id, sourceKey, fields, failed, partial), nil
}
