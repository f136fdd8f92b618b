// Package redisclient wraps the go-redis client shared by the API instances.
package redisclient

import (
	"context"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const opTimeout = 2 * time.Second

type Config struct {
	Addr     string
	Password string
	DB       int

	// Namespace prefixes every key built with Key so several deployments
	// can share one redis database.
	Namespace string
}

type Client struct {
	rdb       *redis.Client
	namespace string
}

func New(cfg Config) *Client {
	rdb := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  opTimeout,
		ReadTimeout:  opTimeout,
		WriteTimeout: opTimeout,
		// requests only ever run a short script; do not queue behind a
		// slow server
		PoolTimeout: opTimeout,
	})

	return &Client{rdb: rdb, namespace: strings.TrimSuffix(cfg.Namespace, ":")}
}

// Key joins parts under the client namespace: Key("ratelimit", "login:1.2.3.4")
// gives "accountcore:ratelimit:login:1.2.3.4".
func (c *Client) Key(parts ...string) string {
	if c.namespace != "" {
		parts = append([]string{c.namespace}, parts...)
	}
	return strings.Join(parts, ":")
}

func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

// Scripter is what Lua-backed callers such as the rate limiter run against.
func (c *Client) Scripter() redis.Scripter {
	return c.rdb
}
