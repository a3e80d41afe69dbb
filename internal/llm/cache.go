package llm

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log/slog"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/abd2220/retail-copilot/internal/metrics"
)

// NewRedisClient connects to Redis and pings it. A failed ping is logged and
// the client is still returned; cache lookups then fall through to the model.
func NewRedisClient(addr, password string, db int, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		logger.Warn("redis unavailable, completions will not be cached", "addr", addr, "error", err)
	} else {
		logger.Info("connected to redis completion cache", "addr", addr)
	}
	return client
}

// CachedCompleter memoizes completions in Redis keyed by model and prompt.
type CachedCompleter struct {
	next      Completer
	client    *redis.Client
	ttl       time.Duration
	namespace string
	logger    *slog.Logger
}

func NewCachedCompleter(next Completer, client *redis.Client, ttl time.Duration, namespace string, logger *slog.Logger) *CachedCompleter {
	return &CachedCompleter{next: next, client: client, ttl: ttl, namespace: namespace, logger: logger}
}

func (c *CachedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	key := CacheKey(c.namespace, prompt)

	getCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	cached, err := c.client.Get(getCtx, key).Result()
	cancel()
	switch {
	case err == nil:
		metrics.CompletionCacheTotal.WithLabelValues("hit").Inc()
		return cached, nil
	case errors.Is(err, redis.Nil):
		metrics.CompletionCacheTotal.WithLabelValues("miss").Inc()
	default:
		metrics.CompletionCacheTotal.WithLabelValues("error").Inc()
		c.logger.Warn("completion cache read failed", "error", err)
	}

	out, err := c.next.Complete(ctx, prompt)
	if err != nil {
		return "", err
	}

	setCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := c.client.Set(setCtx, key, out, c.ttl).Err(); err != nil {
		c.logger.Warn("completion cache write failed", "error", err)
	}
	return out, nil
}

// CacheKey is stable across processes for the same namespace and prompt.
func CacheKey(namespace, prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return "completion:" + namespace + ":" + hex.EncodeToString(sum[:])
}
