package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"examreg/pkg/sentinel"
)

// Schema for the counters table. Applied by the operator (or the integration
// test harness); the store itself never migrates.
const Schema = `
CREATE TABLE IF NOT EXISTS counters (
    name  TEXT PRIMARY KEY,
    value BIGINT NOT NULL DEFAULT 0
);
`

// Postgres persists counters in a single-row-per-name table. The increment is
// one atomic upsert statement, so concurrent callers serialize on the row and
// never observe a duplicate value.
type Postgres struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (s *Postgres) Next(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, 1)
		ON CONFLICT (name) DO UPDATE SET value = counters.value + 1
		RETURNING value`, name).Scan(&value)
	if err != nil {
		return 0, fmt.Errorf("increment counter %q: %w", name, translateErr(err))
	}
	return value, nil
}

func (s *Postgres) Current(ctx context.Context, name string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM counters WHERE name = $1`, name).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read counter %q: %w", name, translateErr(err))
	}
	return value, nil
}

func (s *Postgres) Reset(ctx context.Context, name string, value int64) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO counters (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value`, name, value)
	if err != nil {
		return fmt.Errorf("reset counter %q: %w", name, translateErr(err))
	}
	return nil
}

func translateErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, sql.ErrConnDone) {
		return fmt.Errorf("%w: %v", sentinel.ErrUnavailable, err)
	}
	return err
}
