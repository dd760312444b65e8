package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	auth "github.com/neuronurture/go-auth"
)

// RefreshTokens implements auth.RefreshTokenStore with bun. The
// refresh_tokens.user_id unique index backs the one token per user rule.
type RefreshTokens struct {
	db *bun.DB
}

var _ auth.RefreshTokenStore = (*RefreshTokens)(nil)

// NewRefreshTokens creates a refresh token store
func NewRefreshTokens(db *bun.DB) *RefreshTokens {
	return &RefreshTokens{db: db}
}

func (r *RefreshTokens) FindByToken(ctx context.Context, token string) (*auth.RefreshToken, error) {
	record := new(auth.RefreshToken)
	err := r.db.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)
	if err != nil {
		return nil, mapError(err, "failed to find refresh token")
	}
	return record, nil
}

// Rotate removes the previous token of record.UserID and stores record in
// one transaction. A concurrent rotation that wins the insert is
// overwritten through the user_id upsert, so one row remains.
func (r *RefreshTokens) Rotate(ctx context.Context, record *auth.RefreshToken) (*auth.RefreshToken, error) {
	now := time.Now().UTC()
	record.CreatedAt = &now

	err := r.db.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewDelete().
			Model((*auth.RefreshToken)(nil)).
			Where("user_id = ?", record.UserID).
			Exec(ctx); err != nil {
			return err
		}

		_, err := tx.NewInsert().
			Model(record).
			On("CONFLICT (user_id) DO UPDATE").
			Set("token = EXCLUDED.token").
			Set("expires_at = EXCLUDED.expires_at").
			Set("created_at = EXCLUDED.created_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return nil, mapError(err, "failed to rotate refresh token")
	}

	return record, nil
}

func (r *RefreshTokens) DeleteByUser(ctx context.Context, userID uuid.UUID) error {
	_, err := r.db.NewDelete().
		Model((*auth.RefreshToken)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	return mapError(err, "failed to delete refresh tokens by user")
}

func (r *RefreshTokens) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.NewDelete().
		Model((*auth.RefreshToken)(nil)).
		Where("token = ?", token).
		Exec(ctx)
	return mapError(err, "failed to delete refresh token")
}

// CountByUser returns the number of stored tokens for userID
func (r *RefreshTokens) CountByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	n, err := r.db.NewSelect().
		Model((*auth.RefreshToken)(nil)).
		Where("user_id = ?", userID).
		Count(ctx)
	if err != nil {
		return 0, mapError(err, "failed to count refresh tokens")
	}
	return n, nil
}
