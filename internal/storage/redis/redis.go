// Package redis implements the durable cache tier on Redis. TTLs map onto
// native key expiry, so no sweeping is needed.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/dnscache"

	tiercache "github.com/eugener/tiercache/internal"
	"github.com/eugener/tiercache/internal/dialer"
)

// Options configure the Redis connection.
type Options struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // prepended to every key, e.g. "tiercache:"
	PoolSize  int
	Resolver  *dnscache.Resolver // nil = system resolver on every dial
}

// Store implements storage.Durable on a Redis client.
type Store struct {
	client *goredis.Client
	prefix string
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, o Options) (*Store, error) {
	poolSize := o.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}
	client := goredis.NewClient(&goredis.Options{
		Addr:         o.Addr,
		Password:     o.Password,
		DB:           o.DB,
		Dialer:       dialer.Dial(o.Resolver, 5*time.Second),
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     poolSize,
		MinIdleConns: min(5, poolSize),
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis %s: %w", o.Addr, err)
	}
	return NewFromClient(client, o.KeyPrefix), nil
}

// NewFromClient wraps an existing client.
func NewFromClient(client *goredis.Client, keyPrefix string) *Store {
	return &Store{client: client, prefix: keyPrefix}
}

// Get returns the value for key and its expiry.
func (s *Store) Get(ctx context.Context, key string) ([]byte, time.Time, error) {
	var get *goredis.StringCmd
	var ttl *goredis.DurationCmd
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		get = p.Get(ctx, s.prefix+key)
		ttl = p.PTTL(ctx, s.prefix+key)
		return nil
	})
	if errors.Is(err, goredis.Nil) {
		return nil, time.Time{}, tiercache.ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis get: %w", err)
	}
	val, err := get.Bytes()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis get: %w", err)
	}
	var expiresAt time.Time
	if d := ttl.Val(); d > 0 {
		expiresAt = time.Now().Add(d)
	}
	return val, expiresAt, nil
}

// Put stores val with native expiry. A non-positive ttl never expires.
func (s *Store) Put(ctx context.Context, key string, val []byte, ttl time.Duration) error {
	if ttl < 0 {
		ttl = 0
	}
	if err := s.client.Set(ctx, s.prefix+key, val, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// List returns every key starting with prefix using SCAN, so large
// keyspaces are walked incrementally instead of blocking the server.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	it := s.client.Scan(ctx, 0, matchPrefix(s.prefix+prefix), 500).Iterator()
	for it.Next(ctx) {
		out = append(out, strings.TrimPrefix(it.Val(), s.prefix))
	}
	if err := it.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return out, nil
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

// matchPrefix builds a SCAN MATCH pattern for keys beginning with prefix,
// escaping Redis glob metacharacters.
func matchPrefix(prefix string) string {
	var b strings.Builder
	b.Grow(len(prefix) + 1)
	for _, r := range prefix {
		switch r {
		case '*', '?', '[', ']', '\\', '^', '-':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('*')
	return b.String()
}
