package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// TokenBucket smooths traffic per key: rps tokens refill each second up to
// burst. It guards the whole API, while the fixed windows guard credentials.
type TokenBucket struct {
	mu      sync.Mutex
	rps     rate.Limit
	burst   int
	idleTTL time.Duration
	now     func() time.Time
	entries map[string]*bucketEntry
	swept   time.Time
}

type bucketEntry struct {
	limiter *rate.Limiter
	lastUse time.Time
}

func NewTokenBucket(rps float64, burst int, idleTTL time.Duration) *TokenBucket {
	if idleTTL <= 0 {
		idleTTL = 30 * time.Minute
	}
	return &TokenBucket{
		rps:     rate.Limit(rps),
		burst:   burst,
		idleTTL: idleTTL,
		now:     time.Now,
		entries: make(map[string]*bucketEntry),
	}
}

func (b *TokenBucket) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	now := b.now()

	b.mu.Lock()
	e, ok := b.entries[key]
	if !ok {
		e = &bucketEntry{limiter: rate.NewLimiter(b.rps, b.burst)}
		b.entries[key] = e
	}
	e.lastUse = now
	b.sweep(now)
	b.mu.Unlock()

	r := e.limiter.ReserveN(now, 1)
	if !r.OK() {
		return false, time.Second, nil
	}
	if delay := r.DelayFrom(now); delay > 0 {
		// give the token back; a rejected request should not cost future ones
		r.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

// sweep drops idle keys at most once per idleTTL. Caller holds mu.
func (b *TokenBucket) sweep(now time.Time) {
	if now.Sub(b.swept) < b.idleTTL {
		return
	}
	b.swept = now
	for k, e := range b.entries {
		if now.Sub(e.lastUse) > b.idleTTL {
			delete(b.entries, k)
		}
	}
}
