package notifications

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
)

var ErrCircuitOpen = errors.New("circuit breaker open")

type ProtectedNotifierConfig struct {
	Timeout          time.Duration // budget for one notice, retries included
	MaxRetries       uint64        // extra attempts after a failed send
	RetryBase        time.Duration // first retry delay, doubled per attempt
	FailureThreshold int           // failed notices in a row before opening
	Cooldown         time.Duration // time spent open before a trial notice
}

func (c *ProtectedNotifierConfig) withDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 3 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 100 * time.Millisecond
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 3
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 15 * time.Second
	}
}

// ProtectedNotifier retries transient provider failures and trips a breaker
// once a provider keeps failing, so security notices never hold up the
// request that triggered them for longer than Timeout.
type ProtectedNotifier struct {
	inner Notifier
	cfg   ProtectedNotifierConfig
	now   func() time.Time

	mu       sync.Mutex
	failures int
	openedAt time.Time // zero while closed
	trialOut bool
}

func NewProtectedNotifier(inner Notifier, cfg ProtectedNotifierConfig) *ProtectedNotifier {
	cfg.withDefaults()
	return &ProtectedNotifier{inner: inner, cfg: cfg, now: time.Now}
}

func (n *ProtectedNotifier) SendSecurityNotice(ctx context.Context, in Notice) error {
	trial, ok := n.admit()
	if !ok {
		return ErrCircuitOpen
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	backoff := retry.WithMaxRetries(n.cfg.MaxRetries, retry.NewExponential(n.cfg.RetryBase))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := n.inner.SendSecurityNotice(ctx, in); err != nil {
			if ctx.Err() != nil {
				return err
			}
			return retry.RetryableError(err)
		}
		return nil
	})

	n.record(trial, err)
	return err
}

// admit reports whether a notice may go out and whether it is the single
// trial allowed after the cooldown.
func (n *ProtectedNotifier) admit() (trial, ok bool) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.openedAt.IsZero() {
		return false, true
	}
	if n.trialOut || n.now().Sub(n.openedAt) < n.cfg.Cooldown {
		return false, false
	}
	n.trialOut = true
	return true, true
}

func (n *ProtectedNotifier) record(trial bool, err error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if trial {
		n.trialOut = false
	}
	if err == nil {
		n.failures = 0
		n.openedAt = time.Time{}
		return
	}

	n.failures++
	if trial || n.failures >= n.cfg.FailureThreshold {
		n.openedAt = n.now()
	}
}

// State reports the breaker state: closed, open or half_open.
func (n *ProtectedNotifier) State() string {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch {
	case n.openedAt.IsZero():
		return "closed"
	case n.trialOut || n.now().Sub(n.openedAt) >= n.cfg.Cooldown:
		return "half_open"
	default:
		return "open"
	}
}
