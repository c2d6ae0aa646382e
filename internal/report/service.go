package report

import (
	"context"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

var ErrUnavailable = errors.New("report source unavailable")

type JobSource interface {
	ListJobs(ctx context.Context, query store.JobQuery) ([]models.Job, error)
}

type UserSource interface {
	ListUsers(ctx context.Context) ([]models.User, error)
}

// Service fetches a fresh snapshot per call. Two calls may observe different
// snapshots; dashboards tolerate that.
type Service struct {
	jobs  JobSource
	users UserSource
	now   func() time.Time
}

func NewService(jobs JobSource, users UserSource, now func() time.Time) *Service {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{jobs: jobs, users: users, now: now}
}

func (s *Service) snapshot(ctx context.Context, query store.JobQuery) ([]models.Job, error) {
	jobs, err := s.jobs.ListJobs(ctx, query)
	if err != nil {
		return nil, errors.WithMessage(ErrUnavailable, err.Error())
	}
	return jobs, nil
}

func (s *Service) Overview(ctx context.Context) (Overview, error) {
	jobs, err := s.snapshot(ctx, store.JobQuery{})
	if err != nil {
		return Overview{}, err
	}
	return BuildOverview(jobs), nil
}

// Staff loads accounts and jobs concurrently. Every staff account gets a
// row even with no jobs; assignees without an account follow.
func (s *Service) Staff(ctx context.Context) ([]StaffStats, error) {
	var (
		jobs  []models.Job
		users []models.User
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		jobs, err = s.snapshot(gctx, store.JobQuery{})
		return err
	})
	if s.users != nil {
		g.Go(func() error {
			var err error
			users, err = s.users.ListUsers(gctx)
			if err != nil {
				return errors.WithMessage(ErrUnavailable, err.Error())
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(users))
	for _, user := range users {
		if user.Role == models.RoleStaff {
			names = append(names, user.Name)
		}
	}
	return StaffPerformance(jobs, names), nil
}

func (s *Service) Cash(ctx context.Context, window Window) (CashReport, error) {
	now := s.now()
	jobs, err := s.snapshot(ctx, store.JobQuery{Since: window.Since(now)})
	if err != nil {
		return CashReport{}, err
	}
	return BuildCashReport(jobs, window, now), nil
}

func (s *Service) Popular(ctx context.Context) ([]ServiceCount, error) {
	jobs, err := s.snapshot(ctx, store.JobQuery{})
	if err != nil {
		return nil, err
	}
	return PopularServices(jobs, PopularLimit), nil
}

func (s *Service) Summary(ctx context.Context) (Summary, error) {
	jobs, err := s.snapshot(ctx, store.JobQuery{})
	if err != nil {
		return Summary{}, err
	}
	return BuildSummary(jobs), nil
}

func (s *Service) Activity(ctx context.Context, limit int) ([]ActivityItem, error) {
	jobs, err := s.snapshot(ctx, store.JobQuery{})
	if err != nil {
		return nil, err
	}
	return Activity(jobs, limit), nil
}
