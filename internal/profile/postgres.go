package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository implements Repository on a JSONB column. Both
// merge directions are a single jsonb concatenation in SQL, so field
// precedence holds even under concurrent writers.
type PostgresRepository struct {
	db *pgxpool.Pool
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository constructs a Postgres-backed profile repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: pool}
}

func (r *PostgresRepository) Get(ctx context.Context, identityID int64) (Document, error) {
	var raw []byte
	err := r.db.QueryRow(ctx, `SELECT doc FROM profiles WHERE identity_id = $1`, identityID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return doc, nil
}

// In jsonb concatenation the right operand wins on key conflicts.
const mergeSQL = `INSERT INTO profiles (identity_id, doc)
VALUES ($1, $2)
ON CONFLICT (identity_id) DO UPDATE
SET doc = profiles.doc || EXCLUDED.doc, updated_at = now()`

func (r *PostgresRepository) Merge(ctx context.Context, identityID int64, fields Document) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode profile fields: %w", err)
	}
	if _, err := r.db.Exec(ctx, mergeSQL, identityID, payload); err != nil {
		return fmt.Errorf("merge profile: %w", err)
	}
	return nil
}

const fillMissingSQL = `INSERT INTO profiles (identity_id, doc)
VALUES ($1, $2)
ON CONFLICT (identity_id) DO UPDATE
SET doc = EXCLUDED.doc || profiles.doc, updated_at = now()`

func (r *PostgresRepository) FillMissing(ctx context.Context, identityID int64, fields Document) error {
	payload, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("encode profile fields: %w", err)
	}
	if _, err := r.db.Exec(ctx, fillMissingSQL, identityID, payload); err != nil {
		return fmt.Errorf("fill profile: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Delete(ctx context.Context, identityID int64) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM profiles WHERE identity_id = $1`, identityID); err != nil {
		return fmt.Errorf("delete profile: %w", err)
	}
	return nil
}
