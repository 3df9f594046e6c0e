package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CloseLockKey builds the redis key serialising period closes per group.
func CloseLockKey(groupID uuid.UUID) string {
	return fmt.Sprintf("ledger:group:%s:close-lock", groupID)
}

// CloseLocker grants a single holder the right to close periods for a group.
type CloseLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCloseLocker constructs a CloseLocker with the given lease duration.
func NewCloseLocker(client *redis.Client, ttl time.Duration) *CloseLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &CloseLocker{client: client, ttl: ttl}
}

// Acquire takes the per-group close lock. It returns ErrCloseInProgress when
// another close already holds it. The returned release function is safe to
// call on every exit path.
func (l *CloseLocker) Acquire(ctx context.Context, groupID uuid.UUID) (func(), error) {
	if l == nil || l.client == nil {
		// No redis configured; the database unique index on open periods
		// still guarantees single-close semantics.
		return func() {}, nil
	}
	key := CloseLockKey(groupID)
	token := uuid.NewString()
	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("shared: acquire close lock: %w", err)
	}
	if !ok {
		return nil, ErrCloseInProgress
	}
	release := func() {
		// Release only if we still own the lease.
		const script = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`
		_ = l.client.Eval(context.WithoutCancel(ctx), script, []string{key}, token).Err()
	}
	return release, nil
}
