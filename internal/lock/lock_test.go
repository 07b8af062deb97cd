package lock

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocal_TryLock(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	_, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "second TryLock must fail while held")

	require.NoError(t, release(ctx))
	assert.ErrorIs(t, release(ctx), ErrNotHeld)

	release, ok, err = l.TryLock(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, release(ctx))
}

func newTestRedis(t *testing.T) (*Redis, redismock.ClientMock) {
	t.Helper()
	db, mock := redismock.NewClientMock()
	l := NewRedis(db, "pipeline:cycle", time.Minute)
	l.token = func() string { return "token-1" }
	return l, mock
}

func TestRedis_TryLockAndRelease(t *testing.T) {
	ctx := context.Background()
	l, mock := newTestRedis(t)

	mock.ExpectSetNX("pipeline:cycle", "token-1", time.Minute).SetVal(true)
	mock.ExpectEval(releaseScript, []string{"pipeline:cycle"}, "token-1").SetVal(int64(1))

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, release(ctx))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_TryLockHeldElsewhere(t *testing.T) {
	l, mock := newTestRedis(t)

	mock.ExpectSetNX("pipeline:cycle", "token-1", time.Minute).SetVal(false)

	release, ok, err := l.TryLock(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, release)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedis_TryLockError(t *testing.T) {
	l, mock := newTestRedis(t)
	connErr := errors.New("connection refused")

	mock.ExpectSetNX("pipeline:cycle", "token-1", time.Minute).SetErr(connErr)

	_, ok, err := l.TryLock(context.Background())
	assert.False(t, ok)
	assert.ErrorIs(t, err, connErr)
}

func TestRedis_ReleaseAfterExpiry(t *testing.T) {
	ctx := context.Background()
	l, mock := newTestRedis(t)

	mock.ExpectSetNX("pipeline:cycle", "token-1", time.Minute).SetVal(true)
	// Key expired and was taken by another holder
	mock.ExpectEval(releaseScript, []string{"pipeline:cycle"}, "token-1").SetVal(int64(0))

	release, ok, err := l.TryLock(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.ErrorIs(t, release(ctx), ErrNotHeld)
}

func TestNewRedis_DefaultTTL(t *testing.T) {
	db, _ := redismock.NewClientMock()
	l := NewRedis(db, "k", 0)
	assert.Equal(t, DefaultTTL, l.ttl)
}
