package db

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// Open opens a DB and ensures the prediction history schema exists.
func Open(ctx context.Context, driver Driver, dsn string) (*sql.DB, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite" // modernc driver
		if dsn == "" {
			dsn = "file:pbpd.db?cache=shared&mode=rwc&_pragma=busy_timeout(5000)"
		}
	case DriverPostgres:
		drvName = "pgx" // pgx stdlib driver
		if dsn == "" {
			dsn = "postgres://localhost:5432/pbpd?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if err := EnsureSchema(ctx, db, driver); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// EnsureSchema creates the tables if they are missing.
func EnsureSchema(ctx context.Context, db *sql.DB, driver Driver) error {
	var schema string
	switch driver {
	case DriverSQLite:
		schema = schemaSQLite
	case DriverPostgres:
		schema = schemaPostgres
	default:
		return fmt.Errorf("unsupported driver: %s", driver)
	}
	_, err := db.ExecContext(ctx, schema)
	return err
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS predictions (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,            -- single | batch
  batch_id TEXT NOT NULL DEFAULT '',
  row_index INTEGER NOT NULL DEFAULT -1,
  material TEXT NOT NULL,          -- raw choice or CSV label
  grp TEXT NOT NULL DEFAULT '',    -- resolved group code, empty if routing failed
  confidence TEXT NOT NULL DEFAULT '',
  prediction REAL,                 -- NULL when no prediction was made
  warnings_json TEXT NOT NULL DEFAULT '[]',
  inputs_json TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  subject TEXT NOT NULL DEFAULT '', -- authenticated caller
  created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS predictions_created_at ON predictions(created_at);

CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL DEFAULT '',
  total INTEGER NOT NULL,
  predicted INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  created_at INTEGER NOT NULL
);
`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS predictions (
  id TEXT PRIMARY KEY,
  source TEXT NOT NULL,
  batch_id TEXT NOT NULL DEFAULT '',
  row_index INTEGER NOT NULL DEFAULT -1,
  material TEXT NOT NULL,
  grp TEXT NOT NULL DEFAULT '',
  confidence TEXT NOT NULL DEFAULT '',
  prediction DOUBLE PRECISION,
  warnings_json TEXT NOT NULL DEFAULT '[]',
  inputs_json TEXT NOT NULL,
  error TEXT NOT NULL DEFAULT '',
  subject TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS predictions_created_at ON predictions(created_at);

CREATE TABLE IF NOT EXISTS batches (
  id TEXT PRIMARY KEY,
  filename TEXT NOT NULL DEFAULT '',
  total INTEGER NOT NULL,
  predicted INTEGER NOT NULL,
  failed INTEGER NOT NULL,
  created_at BIGINT NOT NULL
);
`
