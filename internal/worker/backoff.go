package worker

import (
	"math/rand/v2"
	"time"
)

const (
	retryBase   = 2 * time.Second
	retryCap    = 5 * time.Minute
	retryJitter = 250 * time.Millisecond
)

// ExponentialBackoff is the wait before retry number attempt (0-based) of a
// failed reconcile run: 2s, 4s, 8s ... capped at five minutes, plus up to
// 250ms of jitter so replicas drift apart.
func ExponentialBackoff(attempt int) time.Duration {
	delay := retryCap
	if attempt >= 0 && attempt < 32 {
		if d := retryBase << attempt; d > 0 && d < retryCap {
			delay = d
		}
	}

	return delay + rand.N(retryJitter)
}
