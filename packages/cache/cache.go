// Package cache
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"trinayana/packages/domain"

	"github.com/redis/go-redis/v9"
)

// Cache stores verdicts in Redis keyed by a hash of the exact URL string.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration
}

func New(ctx context.Context, cfg Config) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Addr, err)
	}
	return &Cache{client: client, prefix: cfg.Prefix, ttl: cfg.TTL}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) Key(rawURL string) string {
	return key(c.prefix, rawURL)
}

func key(prefix, rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return prefix + hex.EncodeToString(sum[:])
}

// Get returns the cached verdict for rawURL. A miss is (zero, false, nil).
func (c *Cache) Get(ctx context.Context, rawURL string) (domain.Verdict, bool, error) {
	data, err := c.client.Get(ctx, c.Key(rawURL)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Verdict{}, false, nil
	}
	if err != nil {
		return domain.Verdict{}, false, fmt.Errorf("cache get: %w", err)
	}
	var v domain.Verdict
	if err := json.Unmarshal(data, &v); err != nil {
		return domain.Verdict{}, false, fmt.Errorf("cache decode: %w", err)
	}
	return v, true, nil
}

func (c *Cache) Set(ctx context.Context, rawURL string, v domain.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}
	if err := c.client.Set(ctx, c.Key(rawURL), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}
