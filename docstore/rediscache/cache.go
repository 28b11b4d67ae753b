// Package rediscache keeps a TTL-bounded JSON snapshot of hot documents in
// redis. It backs the cached-response fallback: when the primary document
// store is down, reads are served from here with a staleness marker.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "adcraft"
)

// ErrMiss is returned when no snapshot exists for a key.
var ErrMiss = errors.New("rediscache: miss")

// Snapshot is a cached document plus the time it was captured, so
// consumers can tell the user how stale the data is.
type Snapshot struct {
	Document map[string]any `json:"document"`
	CachedAt time.Time      `json:"cachedAt"`
}

type Cache struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Cache)

func WithPassword(password string) Option {
	return func(c *Cache) {
		c.password = password
	}
}

func WithDB(db int) Option {
	return func(c *Cache) {
		c.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if strings.TrimSpace(prefix) != "" {
			c.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(c *Cache) {
		if client != nil {
			c.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Cache, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}

	c := &Cache{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = goredis.NewClient(&goredis.Options{
			Addr:     c.addr,
			Password: c.password,
			DB:       c.db,
		})
	}

	if err := c.client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return c, nil
}

func (c *Cache) key(collection, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", c.prefix, collection, id)
}

// Put stores a fresh snapshot. Failures here are non-fatal for callers;
// the cache is best effort.
func (c *Cache) Put(ctx context.Context, collection, id string, doc map[string]any) error {
	snap := Snapshot{Document: doc, CachedAt: time.Now().UTC()}
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := c.client.Set(ctx, c.key(collection, id), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache document: %w", err)
	}
	return nil
}

func (c *Cache) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	raw, err := c.client.Get(ctx, c.key(collection, id)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return Snapshot{}, ErrMiss
		}
		return Snapshot{}, fmt.Errorf("failed to read cached document: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode cached document: %w", err)
	}
	return snap, nil
}

func (c *Cache) Delete(ctx context.Context, collection, id string) error {
	return c.client.Del(ctx, c.key(collection, id)).Err()
}

func (c *Cache) Close() error {
	return c.client.Close()
}
