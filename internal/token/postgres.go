package token

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platewise/auth/internal/domain"
)

// PostgresKeyRepo implements KeyRepository on Postgres.
type PostgresKeyRepo struct {
	db *pgxpool.Pool
}

var _ KeyRepository = (*PostgresKeyRepo)(nil)

// NewPostgresKeyRepo constructs a Postgres-backed key repository.
func NewPostgresKeyRepo(pool *pgxpool.Pool) *PostgresKeyRepo {
	return &PostgresKeyRepo{db: pool}
}

const activeKeysSQL = `SELECT id, kid, secret, algorithm, is_active, created_at
FROM signing_keys
WHERE is_active
ORDER BY created_at DESC`

func (r *PostgresKeyRepo) ActiveKeys(ctx context.Context) ([]domain.SigningKey, error) {
	rows, err := r.db.Query(ctx, activeKeysSQL)
	if err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}
	defer rows.Close()

	var keys []domain.SigningKey
	for rows.Next() {
		var key domain.SigningKey
		if err := rows.Scan(
			&key.ID,
			&key.KID,
			&key.Secret,
			&key.Algorithm,
			&key.IsActive,
			&key.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active keys: %w", err)
	}
	return keys, nil
}

const insertKeySQL = `INSERT INTO signing_keys (kid, secret, algorithm, is_active)
VALUES ($1, $2, $3, $4)
RETURNING id, kid, secret, algorithm, is_active, created_at`

func (r *PostgresKeyRepo) CreateKey(ctx context.Context, key domain.SigningKey) (domain.SigningKey, error) {
	var created domain.SigningKey
	err := r.db.QueryRow(ctx, insertKeySQL, key.KID, key.Secret, key.Algorithm, key.IsActive).Scan(
		&created.ID,
		&created.KID,
		&created.Secret,
		&created.Algorithm,
		&created.IsActive,
		&created.CreatedAt,
	)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("insert key: %w", err)
	}
	return created, nil
}
