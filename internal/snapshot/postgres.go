package snapshot

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const pgSchema = `
CREATE TABLE IF NOT EXISTS snapshots (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    name       TEXT NOT NULL,
    creator    TEXT NOT NULL DEFAULT '',
    code       TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL
)`

// PostgresStore persists snapshots through a pgx connection pool. Eviction
// and insert run in one transaction so two racing creates cannot both skip
// the capacity check.
type PostgresStore struct {
	pool     *pgxpool.Pool
	maxCount int
}

// OpenPostgres connects with the given URL (the DATABASE_URL format) and
// ensures the schema exists.
func OpenPostgres(ctx context.Context, url string, maxCount int) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &PostgresStore{pool: pool, maxCount: maxCount}, nil
}

func (s *PostgresStore) Create(ctx context.Context, code, name, creator string) (Snapshot, error) {
	id, err := newID()
	if err != nil {
		return Snapshot{}, err
	}
	if name == "" {
		name = defaultName(id)
	}
	sn := Snapshot{ID: id, Name: name, Creator: creator, Code: code, CreatedAt: now()}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if s.maxCount > 0 {
		var count int
		if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM snapshots`).Scan(&count); err != nil {
			return Snapshot{}, fmt.Errorf("count snapshots: %w", err)
		}
		if count >= s.maxCount {
			_, err := tx.Exec(ctx, `
				DELETE FROM snapshots
				WHERE seq = (SELECT MIN(seq) FROM snapshots)
			`)
			if err != nil {
				return Snapshot{}, fmt.Errorf("evict oldest: %w", err)
			}
		}
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO snapshots (id, name, creator, code, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, sn.ID, sn.Name, sn.Creator, sn.Code, sn.CreatedAt)
	if err != nil {
		return Snapshot{}, fmt.Errorf("insert snapshot: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Snapshot{}, fmt.Errorf("commit: %w", err)
	}
	return sn, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (Snapshot, error) {
	var sn Snapshot
	err := s.pool.QueryRow(ctx, `
		SELECT id, name, creator, code, created_at
		FROM snapshots WHERE id = $1
	`, id).Scan(&sn.ID, &sn.Name, &sn.Creator, &sn.Code, &sn.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, ErrNotFound
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	return sn, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]Snapshot, error) {
	rows, err := s.pool.Query(ctx, `
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

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM snapshots WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
