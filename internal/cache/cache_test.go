package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loaderFor(job models.Job, calls *int32) func(context.Context) (models.Job, error) {
	return func(context.Context) (models.Job, error) {
		atomic.AddInt32(calls, 1)
		return job, nil
	}
}

func TestMemoryHitAndExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMemory(time.Minute)
	c.now = func() time.Time { return now }

	var calls int32
	job := models.Job{Token: "t1", Status: models.StatusPending}
	for i := 0; i < 3; i++ {
		got, err := c.Get(ctx, "t1", loaderFor(job, &calls))
		require.NoError(t, err)
		assert.Equal(t, job, got)
	}
	assert.Equal(t, int32(1), calls)
	assert.Equal(t, 1, c.Len())

	now = now.Add(2 * time.Minute)
	_, err := c.Get(ctx, "t1", loaderFor(job, &calls))
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls)
}

func TestMemoryInvalidate(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	var calls int32

	_, err := c.Get(ctx, "t1", loaderFor(models.Job{Status: models.StatusPending}, &calls))
	require.NoError(t, err)
	c.Invalidate(ctx, "t1")

	got, err := c.Get(ctx, "t1", loaderFor(models.Job{Status: models.StatusInProgress}, &calls))
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, int32(2), calls)

	c.Invalidate(ctx, "never-loaded")
}

func TestMemoryErrorsAreNotCached(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	boom := errors.New("boom")

	_, err := c.Get(ctx, "t1", func(context.Context) (models.Job, error) { return models.Job{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, c.Len())
}

func TestMemoryConcurrentMissesShareLoad(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)
	release := make(chan struct{})
	var calls int32
	load := func(context.Context) (models.Job, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return models.Job{Token: "t1"}, nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(ctx, "t1", load)
			assert.NoError(t, err)
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&calls), int32(8))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&calls), int32(1))
	assert.Equal(t, 1, c.Len())
}

func TestMemoryStaleLoadIsNotStored(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(time.Hour)

	_, err := c.Get(ctx, "t1", func(ctx context.Context) (models.Job, error) {
		c.Invalidate(ctx, "t1")
		return models.Job{Status: models.StatusPending}, nil
	})
	require.NoError(t, err)
	assert.Zero(t, c.Len())
}
