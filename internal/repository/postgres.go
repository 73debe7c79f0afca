package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smallbiznis/calendar-bridge/internal/domain"
)

// Compile-time interface assertions.
var _ TokenRepository = (*PostgresTokenRepo)(nil)

const selectTokenSQL = `SELECT id, identity, access_token, refresh_token, expires_at, created_at, updated_at
FROM calendar_tokens
WHERE identity = $1`

// The id of an existing row is kept; every token column is overwritten.
const upsertTokenSQL = `INSERT INTO calendar_tokens (id, identity, access_token, refresh_token, expires_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (identity) DO UPDATE SET
	access_token = EXCLUDED.access_token,
	refresh_token = EXCLUDED.refresh_token,
	expires_at = EXCLUDED.expires_at,
	updated_at = NOW()
RETURNING id, identity, access_token, refresh_token, expires_at, created_at, updated_at`

const deleteTokenSQL = `DELETE FROM calendar_tokens WHERE identity = $1`

// PostgresTokenRepo implements TokenRepository on a pgx pool.
type PostgresTokenRepo struct {
	db   *pgxpool.Pool
	node *snowflake.Node
}

// NewPostgresTokenRepo constructs the Postgres token store.
func NewPostgresTokenRepo(pool *pgxpool.Pool, node *snowflake.Node) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: pool, node: node}
}

func (r *PostgresTokenRepo) FindByIdentity(ctx context.Context, identity string) (domain.TokenRecord, error) {
	record, err := scanToken(r.db.QueryRow(ctx, selectTokenSQL, NormalizeIdentity(identity)))
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("get token: %w", err)
	}
	return record, nil
}

func (r *PostgresTokenRepo) Upsert(ctx context.Context, record domain.TokenRecord) (domain.TokenRecord, error) {
	identity := NormalizeIdentity(record.Identity)
	if identity == "" {
		return domain.TokenRecord{}, fmt.Errorf("upsert token: identity required")
	}
	id := record.ID
	if id == 0 {
		id = r.node.Generate().Int64()
	}
	var refresh *string
	if record.RefreshToken != "" {
		refresh = &record.RefreshToken
	}

	stored, err := scanToken(r.db.QueryRow(ctx, upsertTokenSQL,
		id,
		identity,
		record.AccessToken,
		refresh,
		record.ExpiresAt.UTC(),
	))
	if err != nil {
		return domain.TokenRecord{}, fmt.Errorf("upsert token: %w", err)
	}
	return stored, nil
}

func (r *PostgresTokenRepo) Delete(ctx context.Context, identity string) (bool, error) {
	tag, err := r.db.Exec(ctx, deleteTokenSQL, NormalizeIdentity(identity))
	if err != nil {
		return false, fmt.Errorf("delete token: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func scanToken(row pgx.Row) (domain.TokenRecord, error) {
	var (
		record  domain.TokenRecord
		refresh *string
	)
	if err := row.Scan(
		&record.ID,
		&record.Identity,
		&record.AccessToken,
		&refresh,
		&record.ExpiresAt,
		&record.CreatedAt,
		&record.UpdatedAt,
	); err != nil {
		return domain.TokenRecord{}, err
	}
	if refresh != nil {
		record.RefreshToken = *refresh
	}
	record.ExpiresAt = record.ExpiresAt.UTC()
	return record, nil
}

// NormalizeIdentity canonicalizes identities so lookups are case-insensitive.
func NormalizeIdentity(identity string) string {
	return strings.ToLower(strings.TrimSpace(identity))
}
