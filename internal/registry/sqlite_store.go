// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package registry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ManuGH/mcfleet/internal/persistence/sqlite"
	"github.com/ManuGH/mcfleet/internal/workload"
)

const sqliteSchemaVersion = 1

// SQLiteStore keeps workloads in one table of a WAL-mode database.
type SQLiteStore struct {
	DB *sql.DB
}

// OpenSQLiteStore opens dbPath and migrates the schema.
func OpenSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}

	s := &SQLiteStore{DB: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("workload store: migration failed: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	var current int
	if err := s.DB.QueryRow("PRAGMA user_version").Scan(&current); err != nil {
		return err
	}
	if current >= sqliteSchemaVersion {
		return nil
	}

	tx, err := s.DB.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS workloads (
		name TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		engine_version TEXT NOT NULL,
		loader_kind TEXT NOT NULL,
		loader_version TEXT NOT NULL DEFAULT '',
		memory_mb INTEGER NOT NULL,
		autostart BOOLEAN NOT NULL DEFAULT 0,
		created_at_ms INTEGER NOT NULL
	);
	`
	if _, err := tx.Exec(schema); err != nil {
		return err
	}
	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", sqliteSchemaVersion)); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) LoadAll(ctx context.Context) ([]workload.Workload, error) {
	rows, err := s.DB.QueryContext(ctx, `
	SELECT name, path, engine_version, loader_kind, loader_version, memory_mb, autostart, created_at_ms
	FROM workloads ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []workload.Workload
	for rows.Next() {
		var (
			w         workload.Workload
			createdMs int64
		)
		if err := rows.Scan(&w.Name, &w.Path, &w.EngineVersion, &w.LoaderKind, &w.LoaderVersion, &w.MemoryMB, &w.Autostart, &createdMs); err != nil {
			return nil, fmt.Errorf("scan workload row: %w", err)
		}
		w.CreatedAt = time.UnixMilli(createdMs).UTC()
		out = append(out, w)
	}
	return out, rows.Err()
}

const upsertWorkload = `
	INSERT INTO workloads (name, path, engine_version, loader_kind, loader_version, memory_mb, autostart, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(name) DO UPDATE SET
		path = excluded.path,
		engine_version = excluded.engine_version,
		loader_kind = excluded.loader_kind,
		loader_version = excluded.loader_version,
		memory_mb = excluded.memory_mb,
		autostart = excluded.autostart,
		created_at_ms = excluded.created_at_ms
	`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func upsert(ctx context.Context, db execer, w workload.Workload) error {
	_, err := db.ExecContext(ctx, upsertWorkload,
		w.Name, w.Path, w.EngineVersion, w.LoaderKind, w.LoaderVersion, w.MemoryMB, w.Autostart, w.CreatedAt.UnixMilli(),
	)
	return err
}

func (s *SQLiteStore) Save(ctx context.Context, w workload.Workload) error {
	return upsert(ctx, s.DB, w)
}

func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	_, err := s.DB.ExecContext(ctx, `DELETE FROM workloads WHERE name = ?`, name)
	return err
}

// Rename moves the record in one transaction.
func (s *SQLiteStore) Rename(ctx context.Context, old string, w workload.Workload) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM workloads WHERE name = ?`, old); err != nil {
		return err
	}
	if err := upsert(ctx, tx, w); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) Close() error {
	return s.DB.Close()
}
