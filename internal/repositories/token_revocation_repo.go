package repositories

import (
	"context"
	"time"

	"github.com/finagent/identity/internal/database"
	"github.com/finagent/identity/internal/models"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TokenRevocationRepository backs the revocation ledger: individual tokens
// revoked by jti plus per-user watermarks that invalidate every token issued
// before a point in time.
type TokenRevocationRepository struct {
	pool *pgxpool.Pool
}

func NewTokenRevocationRepository(db *database.DB) *TokenRevocationRepository {
	return &TokenRevocationRepository{pool: db.Pool}
}

// RevokeToken adds a token to the ledger. Revoking the same jti twice is a
// no-op, so logout stays idempotent.
func (r *TokenRevocationRepository) RevokeToken(ctx context.Context, token *models.RevokedToken) error {
	query := `
		INSERT INTO revoked_tokens (jti, user_id, token_kind, expires_at, reason)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (jti) DO NOTHING
	`

	_, err := r.pool.Exec(ctx, query,
		token.JTI, token.UserID, token.TokenKind, token.ExpiresAt, token.Reason,
	)
	if err != nil {
		return database.MapPostgresError(err)
	}

	return nil
}

// RevokeAllUserTokens sets the user's revocation watermark to now. Every
// token issued before the watermark fails verification, which covers tokens
// that were never individually recorded. The watermark only moves forward.
func (r *TokenRevocationRepository) RevokeAllUserTokens(ctx context.Context, userID, reason string) error {
	query := `
		INSERT INTO user_revocations (user_id, revoked_before, reason, updated_at)
		VALUES ($1, NOW(), $2, NOW())
		ON CONFLICT (user_id) DO UPDATE
		SET revoked_before = GREATEST(user_revocations.revoked_before, EXCLUDED.revoked_before),
		    reason = EXCLUDED.reason,
		    updated_at = NOW()
	`

	_, err := r.pool.Exec(ctx, query, userID, reason)
	return database.MapPostgresError(err)
}

// IsRevoked answers the combined revocation question in one round trip:
// either the jti itself was revoked, or the user's watermark postdates the
// token's issue time.
func (r *TokenRevocationRepository) IsRevoked(ctx context.Context, jti, userID string, issuedAt time.Time) (bool, error) {
	query := `
		SELECT EXISTS(SELECT 1 FROM revoked_tokens WHERE jti = $1)
		    OR EXISTS(SELECT 1 FROM user_revocations WHERE user_id = $2 AND revoked_before > $3)
	`

	var revoked bool
	err := r.pool.QueryRow(ctx, query, jti, userID, issuedAt).Scan(&revoked)
	if err != nil {
		return false, database.MapPostgresError(err)
	}

	return revoked, nil
}

// CleanupExpiredTokens removes ledger entries whose tokens have expired.
// An expired token is rejected on expiry grounds before the ledger is
// consulted, so the entries carry no information anymore.
func (r *TokenRevocationRepository) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	query := `DELETE FROM revoked_tokens WHERE expires_at < $1`

	result, err := r.pool.Exec(ctx, query, time.Now())
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}

// CleanupWatermarks removes watermarks older than the maximum token
// lifetime. No live token can predate such a watermark, so it no longer
// rejects anything.
func (r *TokenRevocationRepository) CleanupWatermarks(ctx context.Context, maxTokenLifetime time.Duration) (int64, error) {
	query := `DELETE FROM user_revocations WHERE revoked_before < $1`

	result, err := r.pool.Exec(ctx, query, time.Now().Add(-maxTokenLifetime))
	if err != nil {
		return 0, database.MapPostgresError(err)
	}

	return result.RowsAffected(), nil
}
