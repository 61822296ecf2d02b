// Package redis remembers processed targets across runs using Redis keys with a TTL.
package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/storefront-review-crawler/internal/hash/sha256"
)

const defaultPrefix = "appcrawler:visited:"

// Config configures the visited set.
type Config struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

// Set implements crawler.VisitedSet.
type Set struct {
	client goredis.UniversalClient
	prefix string
	hasher *sha256.Hasher
}

// NewClient dials nothing; connections are opened lazily on first command.
func NewClient(cfg Config) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// New wraps an existing client.
func New(client goredis.UniversalClient, prefix string) *Set {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Set{client: client, prefix: prefix, hasher: sha256.New()}
}

// Ping checks connectivity.
func (s *Set) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Key returns the Redis key used for url.
func (s *Set) Key(url string) string {
	digest, _ := s.hasher.Hash([]byte(url))
	return s.prefix + digest
}

// MarkVisited records url with the given expiry.
func (s *Set) MarkVisited(ctx context.Context, url string, expiry time.Duration) error {
	if err := s.client.SetEx(ctx, s.Key(url), "1", expiry).Err(); err != nil {
		return fmt.Errorf("mark visited: %w", err)
	}
	return nil
}

// IsVisited reports whether url was marked and has not expired.
func (s *Set) IsVisited(ctx context.Context, url string) (bool, error) {
	n, err := s.client.Exists(ctx, s.Key(url)).Result()
	if err != nil {
		return false, fmt.Errorf("check visited: %w", err)
	}
	return n == 1, nil
}

// Forget removes url from the set.
func (s *Set) Forget(ctx context.Context, url string) error {
	if err := s.client.Del(ctx, s.Key(url)).Err(); err != nil {
		return fmt.Errorf("forget visited: %w", err)
	}
	return nil
}

// Close releases the client.
func (s *Set) Close() error {
	return s.client.Close()
}
