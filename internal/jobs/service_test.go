package jobs

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store/memory"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	manager = models.Actor{UserID: "u-mgr", Name: "Grace", Role: models.RoleManager}
	staff   = models.Actor{UserID: "u-staff", Name: "Alice", Role: models.RoleStaff}
)

type mockEventDispatcher struct {
	mu     sync.Mutex
	events []Event
}

func (d *mockEventDispatcher) Dispatch(event Event) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	return nil
}

func (d *mockEventDispatcher) types() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, 0, len(d.events))
	for _, e := range d.events {
		out = append(out, e.Type())
	}
	return out
}

// stepClock advances one minute per reading.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

func setupService(t *testing.T) (*Service, *memory.Store, *mockEventDispatcher) {
	t.Helper()
	repo := memory.NewStore()
	dispatcher := &mockEventDispatcher{}
	clock := &stepClock{now: time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)}
	return NewService(repo, dispatcher, WithClock(clock.Now)), repo, dispatcher
}

func sampleInput() CreateJobInput {
	return CreateJobInput{
		Plate:   "KAA 123B",
		Model:   "Toyota Vitz",
		Color:   "white",
		Payment: "cash",
		Services: []models.ServiceLine{
			{Name: "Wash", Price: 500},
			{Name: "Wax", Price: 300},
		},
	}
}

func TestCreateJob(t *testing.T) {
	svc, repo, dispatcher := setupService(t)

	job, err := svc.CreateJob(context.Background(), sampleInput())
	require.NoError(t, err)

	assert.Equal(t, models.StatusPending, job.Status)
	assert.Nil(t, job.AssignedTo)
	assert.Nil(t, job.StartedAt)
	assert.Nil(t, job.CompletedAt)
	assert.Equal(t, int64(800), job.Total)
	assert.Equal(t, models.SumServices(job.Services), job.Total)
	assert.Equal(t, models.PhonePlaceholder, job.Phone)
	assert.Equal(t, models.PaymentCash, job.Payment)
	assert.NotEmpty(t, job.Token)
	assert.Regexp(t, `^KAA123B_\d+_[0-9A-Z]{6}$`, job.CustomerRef)

	stored, err := repo.GetJob(context.Background(), job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, job.Token, stored.Token)
	assert.Equal(t, []string{EventCreated}, dispatcher.types())
}

func TestCreateJobAllowsEmptyServices(t *testing.T) {
	svc, _, _ := setupService(t)
	input := sampleInput()
	input.Services = nil
	input.Payment = "M-Pesa"

	job, err := svc.CreateJob(context.Background(), input)
	require.NoError(t, err)
	assert.Equal(t, int64(0), job.Total)
	assert.Equal(t, models.PaymentMobileMoney, job.Payment)
}

func TestCreateJobValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*CreateJobInput)
		msg    string
	}{
		{"missing plate", func(in *CreateJobInput) { in.Plate = "  " }, "plate"},
		{"missing model and color", func(in *CreateJobInput) { in.Model = ""; in.Color = "" }, "model, color"},
		{"missing payment", func(in *CreateJobInput) { in.Payment = "" }, "payment"},
		{"unknown payment", func(in *CreateJobInput) { in.Payment = "card" }, "payment"},
		{"negative price", func(in *CreateJobInput) { in.Services[0].Price = -1 }, "services"},
		{"unnamed service", func(in *CreateJobInput) { in.Services[1].Name = "" }, "services"},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			svc, repo, dispatcher := setupService(t)
			input := sampleInput()
			tt.mutate(&input)

			_, err := svc.CreateJob(context.Background(), input)
			require.ErrorIs(t, err, ErrValidation)
			assert.Contains(t, err.Error(), tt.msg)

			jobs, err := repo.ListJobs(context.Background(), store.JobQuery{})
			require.NoError(t, err)
			assert.Empty(t, jobs)
			assert.Empty(t, dispatcher.types())
		})
	}
}

func TestLifecycleEndToEnd(t *testing.T) {
	ctx := context.Background()
	svc, _, dispatcher := setupService(t)

	job, err := svc.CreateJob(ctx, sampleInput())
	require.NoError(t, err)
	assert.Equal(t, int64(800), job.Total)
	assert.Equal(t, models.StatusPending, job.Status)

	claimed, err := svc.ClaimJob(ctx, job.Token, "Alice")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, claimed.Status)
	assert.Equal(t, "Alice", claimed.Assignee())
	require.NotNil(t, claimed.StartedAt)
	assert.False(t, claimed.StartedAt.Before(claimed.CreatedAt))

	finished, err := svc.FinishJob(ctx, job.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, finished.Status)
	require.NotNil(t, finished.CompletedAt)
	assert.False(t, finished.CompletedAt.Before(*finished.StartedAt))
	assert.NotNil(t, finished.UpdatedAt)

	assert.Equal(t, []string{EventCreated, EventClaimed, EventFinished}, dispatcher.types())
}

func TestClaimJobConcurrentSingleWinner(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupService(t)
	job, err := svc.CreateJob(ctx, sampleInput())
	require.NoError(t, err)

	workers := []string{"Alice", "Bob", "Carol", "Dan", "Eve", "Frank"}
	var wg sync.WaitGroup
	errs := make(chan error, len(workers))
	for _, worker := range workers {
		wg.Add(1)
		go func(worker string) {
			defer wg.Done()
			_, err := svc.ClaimJob(ctx, job.Token, worker)
			errs <- err
		}(worker)
	}
	wg.Wait()
	close(errs)

	var wins int
	for err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrStateConflict)
	}
	assert.Equal(t, 1, wins)

	stored, err := repo.GetJob(ctx, job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
	assert.Contains(t, workers, stored.Assignee())
}

func TestClaimJobConflicts(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	job, err := svc.CreateJob(ctx, sampleInput())
	require.NoError(t, err)

	_, err = svc.ClaimJob(ctx, job.Token, "Alice")
	require.NoError(t, err)

	_, err = svc.ClaimJob(ctx, job.Token, "Bob")
	require.ErrorIs(t, err, ErrStateConflict)
	assert.Contains(t, err.Error(), "already in progress")

	_, err = svc.ClaimJob(ctx, job.Token, " ")
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.ClaimJob(ctx, "no-such-token", "Bob")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFinishJobTwiceKeepsCompletedAt(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	_, err := svc.FinishJob(ctx, job.Token)
	require.ErrorIs(t, err, ErrStateConflict, "pending job cannot be finished")

	_, err = svc.ClaimJob(ctx, job.Token, "Alice")
	require.NoError(t, err)
	first, err := svc.FinishJob(ctx, job.Token)
	require.NoError(t, err)

	_, err = svc.FinishJob(ctx, job.Token)
	require.ErrorIs(t, err, ErrStateConflict)
	assert.Contains(t, err.Error(), "already completed")

	stored, err := repo.GetJob(ctx, job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, *first.CompletedAt, *stored.CompletedAt)
}

func TestManagerOperationsRequireManager(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	_, err := svc.ReassignJob(ctx, staff, job.RecordID, "Bob")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.AdvanceJob(ctx, staff, job.RecordID, "")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = svc.ForceCompleteJob(ctx, staff, job.RecordID)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, svc.DeleteJob(ctx, models.Actor{}, job.RecordID), ErrForbidden)
}

func TestReassignJobOverwritesAssignee(t *testing.T) {
	ctx := context.Background()
	svc, _, dispatcher := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())
	_, err := svc.ClaimJob(ctx, job.Token, "Alice")
	require.NoError(t, err)

	updated, err := svc.ReassignJob(ctx, manager, job.RecordID, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", updated.Assignee())
	assert.Equal(t, models.StatusInProgress, updated.Status)
	assert.Contains(t, dispatcher.types(), EventReassigned)

	_, err = svc.ReassignJob(ctx, manager, "missing", "Bob")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = svc.ReassignJob(ctx, manager, job.RecordID, "")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestAdvanceJob(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	started, err := svc.AdvanceJob(ctx, manager, job.RecordID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, started.Status)
	assert.Equal(t, "Grace", started.Assignee())
	require.NotNil(t, started.StartedAt)

	done, err := svc.AdvanceJob(ctx, manager, job.RecordID, "")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	assert.False(t, done.CompletedAt.Before(*done.StartedAt))

	_, err = svc.AdvanceJob(ctx, manager, job.RecordID, "")
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestAdvanceJobUsesGivenAssignee(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	started, err := svc.AdvanceJob(ctx, manager, job.RecordID, "Bob")
	require.NoError(t, err)
	assert.Equal(t, "Bob", started.Assignee())
}

func TestForceCompleteJobFromPending(t *testing.T) {
	ctx := context.Background()
	svc, _, dispatcher := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	done, err := svc.ForceCompleteJob(ctx, manager, job.RecordID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCompleted, done.Status)
	require.NotNil(t, done.StartedAt)
	require.NotNil(t, done.CompletedAt)
	assert.Equal(t, *done.StartedAt, *done.CompletedAt)
	assert.Equal(t, "Grace", done.Assignee())
	assert.Contains(t, dispatcher.types(), EventCompleted)

	_, err = svc.ForceCompleteJob(ctx, manager, job.RecordID)
	assert.ErrorIs(t, err, ErrStateConflict)
}

func TestDeleteJob(t *testing.T) {
	ctx := context.Background()
	svc, _, dispatcher := setupService(t)
	job, _ := svc.CreateJob(ctx, sampleInput())

	require.NoError(t, svc.DeleteJob(ctx, manager, job.RecordID))
	_, err := svc.Lookup(ctx, job.Token)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, svc.DeleteJob(ctx, manager, job.RecordID), ErrNotFound)
	assert.Contains(t, dispatcher.types(), EventDeleted)
}

func TestLookupAmbiguousTokenIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	svc, repo, _ := setupService(t)
	_, _ = repo.InsertJob(ctx, models.Job{Token: "dup", Status: models.StatusPending})
	_, _ = repo.InsertJob(ctx, models.Job{Token: "dup", Status: models.StatusPending})

	_, err := svc.Lookup(ctx, "dup")
	assert.ErrorIs(t, err, ErrIntegrity)
}

type recordingCache struct {
	mu          sync.Mutex
	entries     map[string]models.Job
	loads       int
	invalidated []string
}

func (c *recordingCache) Get(ctx context.Context, token string, load func(context.Context) (models.Job, error)) (models.Job, error) {
	c.mu.Lock()
	if job, ok := c.entries[token]; ok {
		c.mu.Unlock()
		return job, nil
	}
	c.loads++
	c.mu.Unlock()

	job, err := load(ctx)
	if err != nil {
		return models.Job{}, err
	}
	c.mu.Lock()
	c.entries[token] = job
	c.mu.Unlock()
	return job, nil
}

func (c *recordingCache) Invalidate(ctx context.Context, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, token)
	c.invalidated = append(c.invalidated, token)
}

func TestLookupReadsThroughCacheAndMutationsInvalidate(t *testing.T) {
	ctx := context.Background()
	cache := &recordingCache{entries: map[string]models.Job{}}
	svc := NewService(memory.NewStore(), nil, WithCache(cache))

	job, err := svc.CreateJob(ctx, sampleInput())
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		got, err := svc.Lookup(ctx, job.Token)
		require.NoError(t, err)
		assert.Equal(t, models.StatusPending, got.Status)
	}
	assert.Equal(t, 1, cache.loads)

	_, err = svc.ClaimJob(ctx, job.Token, "Alice")
	require.NoError(t, err)
	assert.Equal(t, []string{job.Token}, cache.invalidated)

	got, err := svc.Lookup(ctx, job.Token)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, got.Status)
	assert.Equal(t, 2, cache.loads)
}

func TestListJobs(t *testing.T) {
	ctx := context.Background()
	svc, _, _ := setupService(t)
	first, _ := svc.CreateJob(ctx, sampleInput())
	second := sampleInput()
	second.Plate = "KBC 777Z"
	job2, _ := svc.CreateJob(ctx, second)
	_, err := svc.ClaimJob(ctx, first.Token, "Alice")
	require.NoError(t, err)

	all, err := svc.ListJobs(ctx, ListFilter{Status: "all"})
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, job2.RecordID, all[0].RecordID)

	inProgress, err := svc.ListJobs(ctx, ListFilter{Status: "in_progress"})
	require.NoError(t, err)
	require.Len(t, inProgress, 1)
	assert.Equal(t, first.RecordID, inProgress[0].RecordID)

	searched, err := svc.ListJobs(ctx, ListFilter{Search: "kbc"})
	require.NoError(t, err)
	require.Len(t, searched, 1)
	assert.Equal(t, job2.RecordID, searched[0].RecordID)

	_, err = svc.ListJobs(ctx, ListFilter{Status: "archived"})
	assert.ErrorIs(t, err, ErrValidation)

	active, err := svc.ListActiveJobs(ctx)
	require.NoError(t, err)
	assert.Len(t, active, 2)
}

type failingStore struct {
	*memory.Store
}

func (failingStore) ListJobs(context.Context, store.JobQuery) ([]models.Job, error) {
	return nil, errors.Wrap(store.ErrUnavailable, "dial tcp: connection refused")
}

func (failingStore) InsertJob(context.Context, models.Job) (string, error) {
	return "", errors.New("i/o timeout")
}

func TestStoreFailuresSurfaceAsUnavailable(t *testing.T) {
	ctx := context.Background()
	svc := NewService(failingStore{memory.NewStore()}, nil)

	_, err := svc.ListActiveJobs(ctx)
	assert.ErrorIs(t, err, ErrStoreUnavailable)

	_, err = svc.CreateJob(ctx, sampleInput())
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}
