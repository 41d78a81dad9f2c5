package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"wadesk-backend/pkg/jwt"
)

// Keys written by the auth service:
//
//	blacklist:<jti>                    a single revoked token
//	revoked_before:<participant_id>    unix seconds; older tokens of the participant are revoked
const (
	blacklistPrefix     = "blacklist:"
	revokedBeforePrefix = "revoked_before:"
)

// RedisRevocationChecker implements RevocationChecker using Redis
type RedisRevocationChecker struct {
	client *redis.Client
}

// NewRedisRevocationChecker creates a new RedisRevocationChecker
func NewRedisRevocationChecker(client *redis.Client) *RedisRevocationChecker {
	return &RedisRevocationChecker{client: client}
}

// IsRevoked checks both revocation keys in one round trip
func (c *RedisRevocationChecker) IsRevoked(ctx context.Context, claims *jwt.Claims) (bool, error) {
	pipe := c.client.Pipeline()
	var tokenCmd *redis.IntCmd
	if claims.ID != "" {
		tokenCmd = pipe.Exists(ctx, blacklistPrefix+claims.ID)
	}
	beforeCmd := pipe.Get(ctx, revokedBeforePrefix+claims.ParticipantID)

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, fmt.Errorf("failed to check revocation in redis: %w", err)
	}

	if tokenCmd != nil && tokenCmd.Val() > 0 {
		return true, nil
	}

	raw, err := beforeCmd.Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read revocation cutoff: %w", err)
	}
	cutoff, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false, fmt.Errorf("invalid revocation cutoff %q: %w", raw, err)
	}
	return issuedBefore(claims, cutoff), nil
}

// issuedBefore treats a token without iat as issued before any cutoff
func issuedBefore(claims *jwt.Claims, cutoff int64) bool {
	if claims.IssuedAt == nil {
		return true
	}
	return claims.IssuedAt.Unix() <= cutoff
}
