package store

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB opens a Postgres pool and pings it within ctx.
func NewDB(ctx context.Context, connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &DB{Client: db}, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS students (
	id              UUID PRIMARY KEY,
	student_id      TEXT NOT NULL UNIQUE,
	name            TEXT NOT NULL,
	course          TEXT NOT NULL,
	face_descriptor JSONB NOT NULL,
	registered_at   TIMESTAMPTZ NOT NULL,
	is_active       BOOLEAN NOT NULL DEFAULT TRUE,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS attendances (
	id            UUID PRIMARY KEY,
	student_id    TEXT NOT NULL,
	name          TEXT NOT NULL,
	course        TEXT NOT NULL,
	check_in_time TIMESTAMPTZ NOT NULL,
	date          TEXT NOT NULL,
	confidence    DOUBLE PRECISION NOT NULL CHECK (confidence >= 0 AND confidence <= 100),
	created_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates both tables and the (student_id, date) index.
func (d *DB) EnsureSchema(ctx context.Context, onePerDay bool) error {
	if _, err := d.Client.ExecContext(ctx, schema); err != nil {
		return err
	}
	index := `CREATE INDEX IF NOT EXISTS idx_attendances_student_date ON attendances (student_id, date)`
	if onePerDay {
		index = `CREATE UNIQUE INDEX IF NOT EXISTS idx_attendances_student_date_unique ON attendances (student_id, date)`
	}
	_, err := d.Client.ExecContext(ctx, index)
	return err
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}
