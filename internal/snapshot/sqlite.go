package snapshot

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// SQLiteStore persists snapshots to a local database file. SQLite only
// supports one writer at a time, so the pool is limited to a single
// connection to avoid SQLITE_BUSY errors.
type SQLiteStore struct {
	db       *sql.DB
	maxCount int
}

// OpenSQLite creates or opens the database at path and applies the schema.
// Safe to call repeatedly against the same file.
func OpenSQLite(path string, maxCount int) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &SQLiteStore{db: db, maxCount: maxCount}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, code, name, creator string) (Snapshot, error) {
	id, err := newID()
	if err != nil {
		return Snapshot{}, err
	}
	if name == "" {
		name = defaultName(id)
	}
	sn := Snapshot{ID: id, Name: name, Creator: creator, Code: code, CreatedAt: now()}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if s.maxCount > 0 {
		var count int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
			return Snapshot{}, fmt.Errorf("count snapshots: %w", err)
		}
		if count >= s.maxCount {
			_, err := tx.ExecContext(ctx, `
				DELETE FROM snapshots
				WHERE seq = (SELECT MIN(seq) FROM snapshots)
			`)
			if err != nil {
				return Snapshot{}, fmt.Errorf("evict oldest: %w", err)
			}
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO snapshots (id, name, creator, code, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, sn.ID, sn.Name, sn.Creator, sn.Code, sn.CreatedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return sn, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Snapshot, error) {
	var sn Snapshot
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, creator, code, created_at
		FROM snapshots WHERE id = ?
	`, id).Scan(&sn.ID, &sn.Name, &sn.Creator, &sn.Code, &sn.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	return sn, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, creator, code, created_at
		FROM snapshots ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var sn Snapshot
		if err := rows.Scan(&sn.ID, &sn.Name, &sn.Creator, &sn.Code, &sn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, sn)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
