// Package cache keeps rendered category navigation trees in Redis.
// Cache failures never fail a request: a miss or an error falls back to the database.
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"metal-catalog-service/internal/domain"
)

const (
	categoryTreeKeyPrefix = "catalog:category-tree:"

	// DefaultCategoryTreeTTL bounds staleness if an invalidation is ever missed.
	DefaultCategoryTreeTTL = 10 * time.Minute
)

// Locales whose trees are cached and invalidated together.
var treeLocales = []string{domain.LocaleRU, domain.LocaleKK}

// Connect creates a Redis client and verifies the connection with a ping.
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("cache: redis ping: %w", err)
	}
	return client, nil
}

// CategoryTreeCache stores JSON-encoded category trees per locale.
type CategoryTreeCache struct {
	client *redis.Client
	ttl    time.Duration
	log    *zap.SugaredLogger
}

// NewCategoryTreeCache creates a tree cache backed by client.
func NewCategoryTreeCache(client *redis.Client, ttl time.Duration, log *zap.SugaredLogger) *CategoryTreeCache {
	if ttl <= 0 {
		ttl = DefaultCategoryTreeTTL
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &CategoryTreeCache{client: client, ttl: ttl, log: log}
}

// CategoryTreeKey returns the cache key of a locale's tree.
func CategoryTreeKey(locale string) string {
	return categoryTreeKeyPrefix + locale
}

// Get returns the cached tree for locale. The second result is false on a miss or error.
func (c *CategoryTreeCache) Get(ctx context.Context, locale string) ([]byte, bool) {
	val, err := c.client.Get(ctx, CategoryTreeKey(locale)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warnw("category tree cache get failed", "locale", locale, "error", err)
		return nil, false
	}
	return val, true
}

// Set stores a rendered tree for locale.
func (c *CategoryTreeCache) Set(ctx context.Context, locale string, tree []byte) {
	if err := c.client.Set(ctx, CategoryTreeKey(locale), tree, c.ttl).Err(); err != nil {
		c.log.Warnw("category tree cache set failed", "locale", locale, "error", err)
	}
}

// Invalidate drops the trees of every locale.
func (c *CategoryTreeCache) Invalidate(ctx context.Context) {
	keys := make([]string, 0, len(treeLocales))
	for _, l := range treeLocales {
		keys = append(keys, CategoryTreeKey(l))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warnw("category tree cache invalidate failed", "error", err)
		return
	}
	c.log.Debugw("category tree cache invalidated")
}
