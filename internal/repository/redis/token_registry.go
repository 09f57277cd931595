// Package redis provides a Redis-backed refresh-token registry. Token
// hashes live as keys with a TTL matching the token's remaining life,
// so expiry needs no sweeper.
package redis

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/lumanagi/lumanagi-auth/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	tokenKeyPrefix   = "rt:"
	userSetKeyPrefix = "rtu:"
)

type tokenRegistry struct {
	client *redis.Client
}

func NewTokenRegistry(client *redis.Client) *tokenRegistry {
	return &tokenRegistry{client: client}
}

func tokenKey(hash string) string {
	return tokenKeyPrefix + hash
}

func userSetKey(userID uuid.UUID) string {
	return userSetKeyPrefix + userID.String()
}

func (r *tokenRegistry) Register(ctx context.Context, tokenHash string, userID uuid.UUID, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, tokenKey(tokenHash), userID.String(), ttl)
	pipe.SAdd(ctx, userSetKey(userID), tokenHash)
	// The set must outlive its longest-lived member: NX seeds the TTL
	// on first use, GT only ever extends it. A short-lived registration
	// must not shrink the window of an earlier token.
	pipe.ExpireNX(ctx, userSetKey(userID), ttl)
	pipe.ExpireGT(ctx, userSetKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// Consume relies on GETDEL for per-token atomicity: when two callers
// race on the same hash, Redis hands the value to exactly one of them.
func (r *tokenRegistry) Consume(ctx context.Context, tokenHash string) (uuid.UUID, error) {
	val, err := r.client.GetDel(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return uuid.Nil, domain.ErrInvalidRefreshToken
		}
		return uuid.Nil, err
	}

	userID, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, domain.ErrInvalidRefreshToken
	}

	r.client.SRem(ctx, userSetKey(userID), tokenHash)
	return userID, nil
}

func (r *tokenRegistry) Revoke(ctx context.Context, tokenHash string) error {
	val, err := r.client.GetDel(ctx, tokenKey(tokenHash)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return err
	}
	if userID, parseErr := uuid.Parse(val); parseErr == nil {
		r.client.SRem(ctx, userSetKey(userID), tokenHash)
	}
	return nil
}

func (r *tokenRegistry) RevokeAllForUser(ctx context.Context, userID uuid.UUID) error {
	hashes, err := r.client.SMembers(ctx, userSetKey(userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return err
	}

	pipe := r.client.TxPipeline()
	for _, hash := range hashes {
		pipe.Del(ctx, tokenKey(hash))
	}
	pipe.Del(ctx, userSetKey(userID))
	_, err = pipe.Exec(ctx)
	return err
}
