package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

const stateTable = "sentinel_state"

const createStateTable = `CREATE TABLE IF NOT EXISTS sentinel_state (
	key        TEXT PRIMARY KEY,
	value      JSONB NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);`

// PostgresState stores each collection as one JSONB row keyed by name.
type PostgresState struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

var _ StateStore = (*PostgresState)(nil)

func NewPostgresState(db *sqlx.DB) *PostgresState {
	return &PostgresState{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (s *PostgresState) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createStateTable); err != nil {
		return fmt.Errorf("create %s: %w", stateTable, err)
	}

	return nil
}

func (s *PostgresState) Load(ctx context.Context, key string, v any) (bool, error) {
	query, args, err := s.qb.
		Select("value").
		From(stateTable).
		Where(sq.Eq{"key": key}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build load %s: %w", key, err)
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	var raw []byte
	if err := conn.GetContext(ctx, &raw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("load %s: %w", key, err)
	}

	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}

	return true, nil
}

func (s *PostgresState) Save(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	query, args, err := s.qb.
		Insert(stateTable).
		Columns("key", "value", "updated_at").
		Values(key, raw, sq.Expr("NOW()")).
		Suffix("ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("build save %s: %w", key, err)
	}

	conn, err := s.db.Connx(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save %s: %w", key, err)
	}

	return nil
}
