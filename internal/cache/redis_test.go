package cache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/pkg/errors"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRedis(t *testing.T) (*miniredis.Miniredis, *Redis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := Dial(context.Background(), mr.Addr())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return mr, NewRedis(rdb, time.Minute, nil)
}

func TestRedisReadThrough(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedis(t)

	var calls int32
	job := models.Job{Token: "t1", Plate: "KAA 123B", Status: models.StatusPending, CreatedAt: time.Now().UTC().Truncate(time.Second)}
	for i := 0; i < 2; i++ {
		got, err := c.Get(ctx, "t1", loaderFor(job, &calls))
		require.NoError(t, err)
		assert.Equal(t, job.Plate, got.Plate)
		assert.True(t, job.CreatedAt.Equal(got.CreatedAt))
	}
	assert.Equal(t, int32(1), calls)
	assert.True(t, mr.Exists(keyPrefix+"t1"))
	assert.Equal(t, time.Minute, mr.TTL(keyPrefix+"t1"))

	c.Invalidate(ctx, "t1")
	assert.False(t, mr.Exists(keyPrefix+"t1"))
	_, err := c.Get(ctx, "t1", loaderFor(job, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestRedisErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedis(t)
	boom := errors.New("boom")

	_, err := c.Get(ctx, "t1", func(context.Context) (models.Job, error) { return models.Job{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.False(t, mr.Exists(keyPrefix+"t1"))
}

func TestRedisStaleLoadIsNotStored(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedis(t)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan models.Job, 1)
	go func() {
		job, err := c.Get(ctx, "t1", func(context.Context) (models.Job, error) {
			close(started)
			<-release
			return models.Job{Token: "t1", Status: models.StatusPending}, nil
		})
		assert.NoError(t, err)
		done <- job
	}()

	<-started
	c.Invalidate(ctx, "t1")
	close(release)
	assert.Equal(t, models.StatusPending, (<-done).Status)
	assert.False(t, mr.Exists(keyPrefix+"t1"))

	var calls int32
	got, err := c.Get(ctx, "t1", loaderFor(models.Job{Token: "t1", Status: models.StatusInProgress}, &calls))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, int32(1), calls)

	got, err = c.Get(ctx, "t1", loaderFor(models.Job{Token: "t1", Status: models.StatusPending}, &calls))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, int32(1), calls)
}

func TestRedisInvalidateInsideLoad(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedis(t)

	_, err := c.Get(ctx, "t1", func(ctx context.Context) (models.Job, error) {
		c.Invalidate(ctx, "t1")
		return models.Job{Status: models.StatusPending}, nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists(keyPrefix+"t1"))
	assert.Equal(t, versionTTL, mr.TTL(versionPrefix+"t1"))
}

func TestRedisUndecodableEntryIsReplaced(t *testing.T) {
	ctx := context.Background()
	mr, c := setupRedis(t)
	require.NoError(t, mr.Set(keyPrefix+"t1", "not json"))

	var calls int32
	got, err := c.Get(ctx, "t1", loaderFor(models.Job{Token: "t1", Status: models.StatusCompleted}, &calls))
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, got.Status)
	assert.Equal(t, int32(1), calls)

	raw, err := mr.Get(keyPrefix + "t1")
	require.NoError(t, err)
	var cached models.Job
	require.NoError(t, json.Unmarshal([]byte(raw), &cached))
	assert.Equal(t, models.StatusCompleted, cached.Status)
}

func TestRedisOutageFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := goredis.NewClient(&goredis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 200 * time.Millisecond})
	t.Cleanup(func() { _ = rdb.Close() })
	c := NewRedis(rdb, time.Minute, nil)
	mr.Close()

	var calls int32
	for i := 0; i < 2; i++ {
		got, err := c.Get(ctx, "t1", loaderFor(models.Job{Token: "t1", Status: models.StatusPending}, &calls))
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	}
	assert.Equal(t, int32(2), calls)
	c.Invalidate(ctx, "t1")
}
