package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseHeld is returned when another holder owns the lease.
var ErrLeaseHeld = errors.New("lease held by another poller")

// DefaultLeaseKey is the key poller replicas contend on.
const DefaultLeaseKey = "streamctl:tracking:lease"

// Delete or extend only when the stored token is ours.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)
)

// Lease is a Redis-backed mutual exclusion token with a TTL. One poll run
// holds it so replicas do not refresh the same records concurrently.
type Lease struct {
	client redis.UniversalClient
	key    string
	token  string
	ttl    time.Duration
}

// NewLease creates a lease on key. Each Lease gets its own random token.
func NewLease(client redis.UniversalClient, key string, ttl time.Duration) *Lease {
	if key == "" {
		key = DefaultLeaseKey
	}
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &Lease{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

// Key returns the Redis key.
func (l *Lease) Key() string { return l.key }

// Token returns this holder's token.
func (l *Lease) Token() string { return l.token }

// Acquire takes the lease if nobody holds it. It returns ErrLeaseHeld
// otherwise.
func (l *Lease) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("acquire lease %s: %w", l.key, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", l.key, ErrLeaseHeld)
	}
	return nil
}

// Refresh extends the TTL. It returns ErrLeaseHeld if the lease expired
// and someone else took it.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh lease %s: %w", l.key, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", l.key, ErrLeaseHeld)
	}
	return nil
}

// Release drops the lease if we still hold it. Releasing a lease that was
// lost is not an error.
func (l *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("release lease %s: %w", l.key, err)
	}
	return nil
}

const minRefreshInterval = 10 * time.Millisecond

// keepAlive refreshes the lease every third of its TTL until the returned
// stop function is called. A failed refresh is logged and retried on the
// next tick; losing the lease does not abort the run in progress.
func (l *Lease) keepAlive(ctx context.Context, onErr func(error)) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		interval := l.ttl / 3
		if interval < minRefreshInterval {
			interval = minRefreshInterval
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := l.Refresh(ctx); err != nil && ctx.Err() == nil {
					onErr(err)
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
