package report

import (
	"context"
	"testing"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store/memory"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seed(t *testing.T, st *memory.Store, jobs ...models.Job) {
	t.Helper()
	for _, j := range jobs {
		_, err := st.InsertJob(context.Background(), j)
		require.NoError(t, err)
	}
}

func TestServiceCashUsesWindow(t *testing.T) {
	st := memory.NewStore()
	seed(t, st,
		job("a", models.StatusPending, models.PaymentCash, 500, now.Add(-time.Hour)),
		job("b", models.StatusPending, models.PaymentMobileMoney, 300, now.Add(-2*time.Hour)),
		job("c", models.StatusCompleted, models.PaymentCash, 1000, now.Add(-10*24*time.Hour)),
	)
	svc := NewService(st, st, func() time.Time { return now })

	report, err := svc.Cash(context.Background(), WindowToday)
	require.NoError(t, err)
	assert.Equal(t, int64(800), report.Total)
	assert.Equal(t, 2, report.JobCount)

	report, err = svc.Cash(context.Background(), WindowMonth)
	require.NoError(t, err)
	assert.Equal(t, int64(1800), report.Total)
}

func TestServiceStaffIncludesIdleAccounts(t *testing.T) {
	ctx := context.Background()
	st := memory.NewStore()
	_, err := st.CreateUser(ctx, models.User{Name: "Alice", Email: "a@example.com", Role: models.RoleStaff})
	require.NoError(t, err)
	_, err = st.CreateUser(ctx, models.User{Name: "Boss", Email: "b@example.com", Role: models.RoleManager})
	require.NoError(t, err)

	busy := job("a", models.StatusInProgress, models.PaymentCash, 500, now)
	busy.AssignedTo = ptr("Bob")
	seed(t, st, busy)

	stats, err := NewService(st, st, nil).Staff(ctx)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "Alice", stats[0].Name)
	assert.Equal(t, "Bob", stats[1].Name)
	assert.Equal(t, 1, stats[1].InProgress)
}

type brokenSource struct{}

func (brokenSource) ListJobs(context.Context, store.JobQuery) ([]models.Job, error) {
	return nil, errors.New("connection reset")
}

func TestServiceSurfacesSourceFailure(t *testing.T) {
	svc := NewService(brokenSource{}, nil, nil)

	_, err := svc.Overview(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = svc.Staff(context.Background())
	assert.ErrorIs(t, err, ErrUnavailable)
}
