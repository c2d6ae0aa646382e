package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConditionalUpdateAllowsSingleWinner(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	recordID, err := st.InsertJob(ctx, models.Job{Token: "tok-1", Status: models.StatusPending, CreatedAt: time.Now()})
	require.NoError(t, err)

	pending := models.StatusPending
	inProgress := models.StatusInProgress

	var wg sync.WaitGroup
	results := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			_, err := st.UpdateJob(ctx, recordID, store.JobUpdate{
				ExpectStatus: &pending,
				Status:       &inProgress,
				AssignedTo:   &worker,
			})
			results <- err
		}(string(rune('A' + i)))
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case assert.ErrorIs(t, err, store.ErrConflict):
			conflicts++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 9, conflicts)
}

func TestGetJobByTokenAmbiguous(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	_, _ = st.InsertJob(ctx, models.Job{Token: "dup"})
	_, _ = st.InsertJob(ctx, models.Job{Token: "dup"})

	_, err := st.GetJobByToken(ctx, "dup")
	assert.ErrorIs(t, err, store.ErrAmbiguousToken)

	_, err = st.GetJobByToken(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrJobNotFound)
}

func TestListJobsNewestFirst(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	for i, plate := range []string{"A", "B", "C"} {
		_, err := st.InsertJob(ctx, models.Job{Plate: plate, Status: models.StatusPending, CreatedAt: base.Add(time.Duration(i) * time.Minute)})
		require.NoError(t, err)
	}

	jobs, err := st.ListJobs(ctx, store.JobQuery{})
	require.NoError(t, err)
	require.Len(t, jobs, 3)
	assert.Equal(t, "C", jobs[0].Plate)
	assert.Equal(t, "A", jobs[2].Plate)

	jobs, err = st.ListJobs(ctx, store.JobQuery{Limit: 2, Since: base.Add(time.Minute)})
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "C", jobs[0].Plate)
	assert.Equal(t, "B", jobs[1].Plate)
}

func TestReturnedJobsAreCopies(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	recordID, _ := st.InsertJob(ctx, models.Job{Services: []models.ServiceLine{{Name: "Wash", Price: 300}}})

	job, err := st.GetJob(ctx, recordID)
	require.NoError(t, err)
	job.Services[0].Price = 1

	again, err := st.GetJob(ctx, recordID)
	require.NoError(t, err)
	assert.Equal(t, int64(300), again.Services[0].Price)
}

func TestUsers(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	user, err := st.CreateUser(ctx, models.User{Name: "Alice", Email: "alice@example.com", Role: models.RoleStaff})
	require.NoError(t, err)
	require.NotEmpty(t, user.UserID)

	_, err = st.CreateUser(ctx, models.User{Name: "Other", Email: "ALICE@example.com"})
	assert.ErrorIs(t, err, store.ErrEmailTaken)

	found, err := st.GetUserByEmail(ctx, "Alice@Example.com")
	require.NoError(t, err)
	assert.Equal(t, user.UserID, found.UserID)

	require.NoError(t, st.DeleteUser(ctx, user.UserID))
	assert.ErrorIs(t, st.DeleteUser(ctx, user.UserID), store.ErrUserNotFound)
}
