package store

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const signatureTTL = 24 * time.Hour

// ReplayGuard tracks seen (sender, signature) pairs in Redis so a captured
// signed message cannot be re-submitted verbatim. Optional: when Redis is not
// configured the relay accepts duplicate submissions.
type ReplayGuard struct {
	client *redis.Client
}

// NewReplayGuard connects to Redis and returns a replay guard.
func NewReplayGuard(ctx context.Context, redisURL string) (*ReplayGuard, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &ReplayGuard{client: client}, nil
}

// Close closes the Redis connection.
func (g *ReplayGuard) Close() error {
	return g.client.Close()
}

// Ping checks the Redis connection.
func (g *ReplayGuard) Ping(ctx context.Context) error {
	return g.client.Ping(ctx).Err()
}

func signatureKey(from, signature string) string {
	return fmt.Sprintf("sig:%s:%s", from, signature)
}

// Seen reports whether the sender has already submitted this signature.
// Redis errors are treated as "not seen": replay protection degrades rather
// than blocking sends.
func (g *ReplayGuard) Seen(ctx context.Context, from, signature string) bool {
	n, err := g.client.Exists(ctx, signatureKey(from, signature)).Result()
	if err != nil {
		return false
	}
	return n > 0
}

// Record marks the (sender, signature) pair as seen.
func (g *ReplayGuard) Record(ctx context.Context, from, signature string) {
	g.client.Set(ctx, signatureKey(from, signature), 1, signatureTTL)
}
