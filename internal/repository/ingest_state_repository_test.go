package repository

import (
	"context"
	"testing"
	"time"

	"offshore-assist-go/internal/model"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIngestState(t *testing.T) (IngestStateRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewIngestStateRepository(rdb), mr
}

func TestIngestState_LockIsExclusive(t *testing.T) {
	ctx := context.Background()
	state, mr := newTestIngestState(t)

	running, err := state.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)

	token, err := state.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	assert.Equal(t, time.Minute, mr.TTL(ingestLockKey))

	running, err = state.IsRunning(ctx)
	require.NoError(t, err)
	assert.True(t, running)

	_, err = state.AcquireLock(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrIngestRunning)
}

func TestIngestState_ReleaseChecksToken(t *testing.T) {
	ctx := context.Background()
	state, mr := newTestIngestState(t)

	token, err := state.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)

	// 非持锁者释放不生效
	require.NoError(t, state.ReleaseLock(ctx, "someone-else"))
	assert.True(t, mr.Exists(ingestLockKey))
	_, err = state.AcquireLock(ctx, time.Minute)
	assert.ErrorIs(t, err, ErrIngestRunning)

	require.NoError(t, state.ReleaseLock(ctx, token))
	assert.False(t, mr.Exists(ingestLockKey))

	next, err := state.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)
	assert.NotEqual(t, token, next)
}

func TestIngestState_LockExpires(t *testing.T) {
	ctx := context.Background()
	state, mr := newTestIngestState(t)

	_, err := state.AcquireLock(ctx, time.Minute)
	require.NoError(t, err)

	mr.FastForward(2 * time.Minute)

	running, err := state.IsRunning(ctx)
	require.NoError(t, err)
	assert.False(t, running)
	_, err = state.AcquireLock(ctx, time.Minute)
	assert.NoError(t, err)
}

func TestIngestState_Report(t *testing.T) {
	ctx := context.Background()
	state, _ := newTestIngestState(t)

	report, err := state.LastReport(ctx)
	require.NoError(t, err)
	assert.Nil(t, report)

	saved := &model.IngestReport{TaskID: "t1", Source: "dir", Loaded: 3, Chunks: 7, Processed: 6, Failed: 1, Stored: 6}
	require.NoError(t, state.SaveReport(ctx, saved))

	report, err = state.LastReport(ctx)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, "t1", report.TaskID)
	assert.Equal(t, 6, report.Processed)
	assert.Equal(t, int64(6), report.Stored)
}
