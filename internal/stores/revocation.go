package stores

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var ErrRevocationRedisUnavailable = errors.New("revocation redis unavailable")

// RevocationList is the append-only denylist of revoked refresh tokens.
// Entries are written once on logout and read on every refresh exchange.
// Each entry's TTL equals the token's own remaining lifetime, so the list
// self-purges at the instant the token could no longer verify anyway and
// never grows unbounded. Inserting the same token twice is harmless.
type RevocationList struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

func NewRevocationList(redisClient redis.UniversalClient, prefix string) *RevocationList {
	if prefix == "" {
		prefix = "idv"
	}
	return &RevocationList{
		redis:  redisClient,
		prefix: prefix,
		now:    time.Now,
	}
}

// Tokens are keyed by digest, not by value, so the raw credential never
// lands in Redis.
func (l *RevocationList) key(tkn string) string {
	sum := sha256.Sum256([]byte(tkn))
	return l.prefix + ":rtbl:" + hex.EncodeToString(sum[:])
}

// Revoke records tkn as revoked until expiresAt. A token already past its
// expiry is skipped; it can no longer verify and needs no entry.
func (l *RevocationList) Revoke(ctx context.Context, tkn, userID string, expiresAt time.Time) error {
	ttl := expiresAt.Sub(l.now())
	if ttl <= 0 {
		return nil
	}

	if err := l.redis.Set(ctx, l.key(tkn), userID, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRevocationRedisUnavailable, err)
	}
	return nil
}

// IsRevoked reports whether tkn has a live revocation entry.
func (l *RevocationList) IsRevoked(ctx context.Context, tkn string) (bool, error) {
	n, err := l.redis.Exists(ctx, l.key(tkn)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrRevocationRedisUnavailable, err)
	}
	return n > 0, nil
}
