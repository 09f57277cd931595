package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type tokenRegistry struct {
	db *gorm.DB
}

func NewTokenRegistry(db *gorm.DB) *tokenRegistry {
	return &tokenRegistry{db: db}
}

func (r *tokenRegistry) Register(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error {
	token := &domain.RefreshToken{
		ID:        uuid.New(),
		TokenHash: tokenHash,
		UserID:    userID,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}
	return r.db.WithContext(ctx).Create(token).Error
}

// Consume removes the row in a single conditional DELETE so that
// concurrent calls on the same hash observe exactly one winner.
func (r *tokenRegistry) Consume(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	var deleted []domain.RefreshToken
	res := r.db.WithContext(ctx).
		Clauses(clause.Returning{}).
		Where("token_hash = ? AND expires_at > ?", tokenHash, time.Now()).
		Delete(&deleted)
	if res.Error != nil {
		return uuid.Nil, res.Error
	}
	if res.RowsAffected == 0 || len(deleted) == 0 {
		return uuid.Nil, domain.ErrInvalidRefreshToken
	}
	return deleted[0].UserID, nil
}

func (r *tokenRegistry) Revoke(ctx context.Context, tokenHash string) error {
	return r.db.WithContext(ctx).
		Delete(&domain.RefreshToken{}, "token_hash = ?", tokenHash).Error
}

func (r *tokenRegistry) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Delete(&domain.RefreshToken{}, "user_id = ?", userID).Error
}
