package ratelimit

import (
	"context"
	"time"

	"github.com/geocoder89/accountcore/internal/redisclient"
	"github.com/redis/go-redis/v9"
)

// incrWindow increments the counter and starts its expiry on the first hit of
// a window, returning the count and the remaining TTL in milliseconds.
var incrWindow = redis.NewScript(`
local n = redis.call("INCR", KEYS[1])
if n == 1 then
	redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {n, redis.call("PTTL", KEYS[1])}
`)

// Redis shares one fixed window per key across every API instance.
type Redis struct {
	client *redisclient.Client
	scope  string
	limit  int
	window time.Duration
}

// NewRedis stores counters under client.Key(scope, key).
func NewRedis(client *redisclient.Client, scope string, limit int, window time.Duration) *Redis {
	if scope == "" {
		scope = "ratelimit"
	}
	return &Redis{client: client, scope: scope, limit: limit, window: window}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	res, err := incrWindow.Run(ctx, r.client.Scripter(), []string{r.client.Key(r.scope, key)}, r.window.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, err
	}

	count, ttl := res[0], res[1]
	if count <= int64(r.limit) {
		return true, 0, nil
	}

	retry := time.Duration(ttl) * time.Millisecond
	if retry < 0 {
		retry = r.window
	}
	return false, retry, nil
}
