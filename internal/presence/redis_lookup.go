package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	routeCacheSize = 1024
	routeCacheTTL  = 30 * time.Second
)

// RedisLookup reads peer routes from a shared Redis routing table. The
// table is written by whatever cross-node transport a deployment runs;
// this server only reads it. Lookups are cached locally with a short
// TTL so a hot peer does not hammer Redis.
type RedisLookup struct {
	client *redis.Client
	cache  *expirable.LRU[string, string]
	logger zerolog.Logger
}

// NewRedisLookup connects to Redis and verifies the connection.
func NewRedisLookup(ctx context.Context, redisURL string, logger zerolog.Logger) (*RedisLookup, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisLookup{
		client: client,
		cache:  expirable.NewLRU[string, string](routeCacheSize, nil, routeCacheTTL),
		logger: logger,
	}, nil
}

// routeKey returns the routing-table key for a peer.
func routeKey(peerID string) string {
	return fmt.Sprintf("blackboard:routes:%s", peerID)
}

// Lookup resolves a peer's route descriptor, or ErrNotFound.
func (l *RedisLookup) Lookup(ctx context.Context, peerID string) (string, error) {
	if route, ok := l.cache.Get(peerID); ok {
		return route, nil
	}

	route, err := l.client.Get(ctx, routeKey(peerID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	l.cache.Add(peerID, route)
	return route, nil
}

// Maintain checks routing-table connectivity on the registry's
// maintenance tick. Stale cache entries expire on their own.
func (l *RedisLookup) Maintain(ctx context.Context) {
	if err := l.client.Ping(ctx).Err(); err != nil {
		l.logger.Warn().Err(err).Msg("routing table unreachable")
	}
}

// Close closes the Redis connection.
func (l *RedisLookup) Close() error {
	return l.client.Close()
}

// Client exposes the underlying Redis client for collaborators that
// share the connection (e.g. the HTTP rate limiter).
func (l *RedisLookup) Client() *redis.Client {
	return l.client
}
