// Package store keeps classification logs and gamification points in SQL.
// Postgres (pgx) is the production driver; sqlite3 serves local runs and tests.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // pgx driver
	_ "github.com/mattn/go-sqlite3"    // sqlite3 driver
)

var ErrNotFound = sql.ErrNoRows

const (
	DriverPostgres = "pgx"
	DriverSQLite   = "sqlite3"
)

const postgresSchema = `
create table if not exists waste_logs (
  log_id                text primary key,
  uid                   text not null,
  object_name           text not null,
  waste_category        text not null,
  confidence            double precision not null default 0,
  disposal_instructions text not null default '',
  recycling_tip         text not null default '',
  alternatives          text not null default '[]',
  image_url             text not null default '',
  image_hash            text not null default '',
  mode                  text not null,
  error                 text not null default '',
  created_at            timestamptz not null
);
create index if not exists idx_waste_logs_uid_created on waste_logs(uid, created_at desc);

create table if not exists gamification (
  uid           text primary key,
  total_points  integer not null default 0,
  weekly_points integer not null default 0,
  level         text not null default 'Beginner',
  last_reason   text not null default '',
  updated_at    timestamptz not null
);`

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS waste_logs (
  log_id                TEXT PRIMARY KEY,
  uid                   TEXT NOT NULL,
  object_name           TEXT NOT NULL,
  waste_category        TEXT NOT NULL,
  confidence            REAL NOT NULL DEFAULT 0,
  disposal_instructions TEXT NOT NULL DEFAULT '',
  recycling_tip         TEXT NOT NULL DEFAULT '',
  alternatives          TEXT NOT NULL DEFAULT '[]',
  image_url             TEXT NOT NULL DEFAULT '',
  image_hash            TEXT NOT NULL DEFAULT '',
  mode                  TEXT NOT NULL,
  error                 TEXT NOT NULL DEFAULT '',
  created_at            DATETIME NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_waste_logs_uid_created ON waste_logs(uid, created_at);

CREATE TABLE IF NOT EXISTS gamification (
  uid           TEXT PRIMARY KEY,
  total_points  INTEGER NOT NULL DEFAULT 0,
  weekly_points INTEGER NOT NULL DEFAULT 0,
  level         TEXT NOT NULL DEFAULT 'Beginner',
  last_reason   TEXT NOT NULL DEFAULT '',
  updated_at    DATETIME NOT NULL
);`

// Open connects to the database and creates the tables if needed.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	var schema string
	switch driver {
	case DriverPostgres:
		schema = postgresSchema
	case DriverSQLite:
		schema = sqliteSchema
	default:
		return nil, fmt.Errorf("store: unsupported driver %q", driver)
	}
	if dsn == "" {
		return nil, errors.New("store: empty dsn")
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if driver == DriverSQLite {
		// one writer; ":memory:" databases also live per connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(1 * time.Hour)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	if _, err := db.ExecContext(pctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return db, nil
}
