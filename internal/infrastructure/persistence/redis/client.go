// Package redis implements the version registry on Redis for deployments
// where several generator hosts share one registry but no PostgreSQL.
//
// Key layout (all under Config.Namespace):
//   - lock:<scope>      scope lock, value is the holder's token
//   - period:<scope>    period id for the scope
//   - versions:<period> hash of version -> JSON record
//   - latest:<period>   highest recorded version
//   - audit             list of audit actions
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address in "host:port" form.
	Addr string

	// Password is the Redis authentication password (empty if no auth).
	Password string

	// DB is the Redis database number (0-15).
	DB int

	// Namespace prefixes every key.
	Namespace string

	// LockTTL bounds how long a crashed holder can block a scope.
	LockTTL time.Duration

	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Namespace:    "rollreturn",
		LockTTL:      30 * time.Second,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// ErrConnection is returned when Redis cannot be reached.
var ErrConnection = errors.New("redis: connection failed")

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client wraps a go-redis client with the registry's key scheme.
type Client struct {
	rdb    *redis.Client
	config Config
}

// NewClient connects and pings Redis.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Namespace == "" {
		cfg.Namespace = DefaultConfig().Namespace
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultConfig().LockTTL
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	pingCtx, cancel := context.WithTimeout(ctx, cfg.DialTimeout+time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	return &Client{rdb: rdb, config: cfg}, nil
}

// Redis returns the underlying go-redis client.
func (c *Client) Redis() *redis.Client {
	return c.rdb
}

// Close closes the Redis connection.
func (c *Client) Close() error {
	return c.rdb.Close()
}

// ══════════════════════════════════════════════════════════════════════════════
// KEY HELPERS
// ══════════════════════════════════════════════════════════════════════════════

func (c *Client) key(parts ...string) string {
	k := c.config.Namespace
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

// LockKey returns the lock key for a scope key.
func (c *Client) LockKey(scopeKey string) string { return c.key("lock", scopeKey) }

// PeriodKey returns the period id key for a scope key.
func (c *Client) PeriodKey(scopeKey string) string { return c.key("period", scopeKey) }

// VersionsKey returns the version hash key of a period.
func (c *Client) VersionsKey(periodID string) string { return c.key("versions", periodID) }

// LatestKey returns the latest-version key of a period.
func (c *Client) LatestKey(periodID string) string { return c.key("latest", periodID) }

// AuditKey returns the audit list key.
func (c *Client) AuditKey() string { return c.key("audit") }
