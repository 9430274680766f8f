package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/platewise/auth/internal/domain"
	"github.com/platewise/auth/internal/token"
)

const uniqueViolation = "23505"

// PostgresDirectory implements Directory on Postgres.
type PostgresDirectory struct {
	db     *pgxpool.Pool
	node   *snowflake.Node
	tokens *token.Issuer
}

var _ Directory = (*PostgresDirectory)(nil)

// NewPostgresDirectory constructs a Postgres-backed identity directory.
func NewPostgresDirectory(pool *pgxpool.Pool, node *snowflake.Node, tokens *token.Issuer) *PostgresDirectory {
	return &PostgresDirectory{db: pool, node: node, tokens: tokens}
}

const identityColumns = `id, email, email_verified, is_anonymous, created_at, updated_at`

func (d *PostgresDirectory) Get(ctx context.Context, id int64) (domain.Identity, error) {
	row := d.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = $1`, id)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("get identity: %w", err)
	}
	return identity, nil
}

const insertIdentitySQL = `INSERT INTO identities (id, email, email_verified, is_anonymous)
VALUES ($1, $2, $3, $4)
RETURNING ` + identityColumns

func (d *PostgresDirectory) Create(ctx context.Context, email string, verified bool) (domain.Identity, error) {
	row := d.db.QueryRow(ctx, insertIdentitySQL, d.node.Generate().Int64(), email, verified, false)
	identity, err := scanIdentity(row)
	if isUniqueViolation(err) {
		return domain.Identity{}, ErrEmailClaimed
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create identity: %w", err)
	}
	return identity, nil
}

func (d *PostgresDirectory) CreateAnonymous(ctx context.Context) (domain.Identity, error) {
	row := d.db.QueryRow(ctx, insertIdentitySQL, d.node.Generate().Int64(), nil, false, true)
	identity, err := scanIdentity(row)
	if err != nil {
		return domain.Identity{}, fmt.Errorf("create anonymous identity: %w", err)
	}
	return identity, nil
}

const updateIdentitySQL = `UPDATE identities
SET email = $2, email_verified = $3, is_anonymous = FALSE, updated_at = now()
WHERE id = $1
RETURNING ` + identityColumns

func (d *PostgresDirectory) Update(ctx context.Context, id int64, email string, verified bool) (domain.Identity, error) {
	row := d.db.QueryRow(ctx, updateIdentitySQL, id, email, verified)
	identity, err := scanIdentity(row)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return domain.Identity{}, ErrIdentityNotFound
	case isUniqueViolation(err):
		return domain.Identity{}, ErrEmailClaimed
	case err != nil:
		return domain.Identity{}, fmt.Errorf("update identity: %w", err)
	}
	return identity, nil
}

func (d *PostgresDirectory) FindByEmail(ctx context.Context, email string) (domain.Identity, error) {
	row := d.db.QueryRow(ctx, `SELECT `+identityColumns+` FROM identities WHERE email = $1`, email)
	identity, err := scanIdentity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Identity{}, ErrIdentityNotFound
	}
	if err != nil {
		return domain.Identity{}, fmt.Errorf("find identity by email: %w", err)
	}
	return identity, nil
}

func (d *PostgresDirectory) IssueSessionToken(ctx context.Context, identity domain.Identity) (string, error) {
	return d.tokens.Issue(ctx, identity)
}

func scanIdentity(row pgx.Row) (domain.Identity, error) {
	var (
		identity domain.Identity
		email    sql.NullString
	)
	if err := row.Scan(
		&identity.ID,
		&email,
		&identity.EmailVerified,
		&identity.IsAnonymous,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	); err != nil {
		return domain.Identity{}, err
	}
	identity.Email = email.String
	return identity, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
