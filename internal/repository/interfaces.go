package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
)

type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error
	List(ctx context.Context, limit, offset int) ([]*domain.User, error)
}

// TokenRegistry tracks which refresh tokens are currently valid, keyed
// by the SHA-256 hash of the token string. A token absent from the
// registry never authorizes a refresh, however well-signed it is.
type TokenRegistry interface {
	// Register marks a token hash as valid until expiresAt.
	Register(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error
	// Consume atomically removes an unexpired token hash, returning the
	// bound user id. Returns domain.ErrInvalidRefreshToken when the
	// hash is unknown or already expired; concurrent Consume calls on
	// the same hash resolve so exactly one succeeds.
	Consume(ctx context.Context, tokenHash string) (uuid.UUID, error)
	// Revoke removes a token hash. Revoking an absent hash is not an error.
	Revoke(ctx context.Context, tokenHash string) error
	// RevokeAllForUser removes every token hash bound to the user.
	RevokeAllForUser(ctx context.Context, userID uuid.UUID) error
}

type Repositories struct {
	User     UserRepository
	Registry TokenRegistry
}
