package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Denylist records revoked token IDs (jti) in Redis until their natural
// expiry, so a logged-out token cannot be replayed.
type Denylist struct {
	client *redis.Client
}

// NewDenylist wraps a redis client.
func NewDenylist(client *redis.Client) *Denylist {
	return &Denylist{client: client}
}

func (d *Denylist) key(jti string) string { return "presence:denylist:" + jti }

// Revoke stores a jti until expiresAt.
func (d *Denylist) Revoke(ctx context.Context, jti string, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return nil
	}
	return d.client.Set(ctx, d.key(jti), "1", ttl).Err()
}

// Revoked reports whether a jti has been revoked. Redis errors fail open so
// an outage does not lock every user out; the token signature and expiry are
// still enforced.
func (d *Denylist) Revoked(ctx context.Context, jti string) bool {
	if d == nil || d.client == nil {
		return false
	}
	n, err := d.client.Exists(ctx, d.key(jti)).Result()
	if err != nil {
		return false
	}
	return n > 0
}
