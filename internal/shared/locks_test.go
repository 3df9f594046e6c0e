package shared

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestLocker(t *testing.T) (*CloseLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCloseLocker(client, time.Minute), mr
}

func TestCloseLockerSingleHolder(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()
	groupID := uuid.New()

	release, err := locker.Acquire(ctx, groupID)
	require.NoError(t, err)

	_, err = locker.Acquire(ctx, groupID)
	require.ErrorIs(t, err, ErrCloseInProgress)

	release()
	release2, err := locker.Acquire(ctx, groupID)
	require.NoError(t, err)
	release2()
}

func TestCloseLockerIndependentGroups(t *testing.T) {
	locker, _ := newTestLocker(t)
	ctx := context.Background()

	releaseA, err := locker.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	defer releaseA()

	releaseB, err := locker.Acquire(ctx, uuid.New())
	require.NoError(t, err)
	defer releaseB()
}

func TestCloseLockerLeaseExpires(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	groupID := uuid.New()

	_, err := locker.Acquire(ctx, groupID)
	require.NoError(t, err)

	// A crashed closer never releases; the lease must expire on its own.
	mr.FastForward(2 * time.Minute)

	release, err := locker.Acquire(ctx, groupID)
	require.NoError(t, err)
	release()
}

func TestCloseLockerReleaseIgnoresStolenLease(t *testing.T) {
	locker, mr := newTestLocker(t)
	ctx := context.Background()
	groupID := uuid.New()

	oldRelease, err := locker.Acquire(ctx, groupID)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	_, err = locker.Acquire(ctx, groupID)
	require.NoError(t, err)

	// The expired holder's release must not delete the new holder's lease.
	oldRelease()
	_, err = locker.Acquire(ctx, groupID)
	require.ErrorIs(t, err, ErrCloseInProgress)
}

func TestCloseLockerNilClientIsNoOp(t *testing.T) {
	locker := NewCloseLocker(nil, time.Minute)
	release, err := locker.Acquire(context.Background(), uuid.New())
	require.NoError(t, err)
	release()
}
