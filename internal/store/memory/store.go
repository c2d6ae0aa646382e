// Package memory is an in-process Store. It is the default driver for local
// runs and the backing store for lifecycle tests.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/google/uuid"
)

type Store struct {
	mu    sync.RWMutex
	jobs  map[string]models.Job
	users map[string]models.User
}

func NewStore() *Store {
	return &Store{
		jobs:  make(map[string]models.Job),
		users: make(map[string]models.User),
	}
}

func (s *Store) InsertJob(ctx context.Context, job models.Job) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job.RecordID = uuid.NewString()
	s.jobs[job.RecordID] = cloneJob(job)
	return job.RecordID, nil
}

func (s *Store) GetJob(ctx context.Context, recordID string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	job, ok := s.jobs[recordID]
	if !ok {
		return models.Job{}, store.ErrJobNotFound
	}
	return cloneJob(job), nil
}

func (s *Store) GetJobByToken(ctx context.Context, token string) (models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var (
		match models.Job
		count int
	)
	for _, job := range s.jobs {
		if job.Token == token {
			match = job
			count++
		}
	}
	switch count {
	case 0:
		return models.Job{}, store.ErrJobNotFound
	case 1:
		return cloneJob(match), nil
	default:
		return models.Job{}, store.ErrAmbiguousToken
	}
}

func (s *Store) ListJobs(ctx context.Context, query store.JobQuery) ([]models.Job, error) {
	s.mu.RLock()
	jobs := make([]models.Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if query.Matches(job) {
			jobs = append(jobs, cloneJob(job))
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].RecordID > jobs[j].RecordID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	if query.Limit > 0 && len(jobs) > query.Limit {
		jobs = jobs[:query.Limit]
	}
	return jobs, nil
}

// UpdateJob checks ExpectStatus and writes under the same lock, so a
// conditional update is atomic with respect to every other writer.
func (s *Store) UpdateJob(ctx context.Context, recordID string, update store.JobUpdate) (models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job, ok := s.jobs[recordID]
	if !ok {
		return models.Job{}, store.ErrJobNotFound
	}
	if update.ExpectStatus != nil && job.Status != *update.ExpectStatus {
		return models.Job{}, store.ErrConflict
	}
	update.Apply(&job)
	s.jobs[recordID] = job
	return cloneJob(job), nil
}

func (s *Store) DeleteJob(ctx context.Context, recordID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.jobs[recordID]; !ok {
		return store.ErrJobNotFound
	}
	delete(s.jobs, recordID)
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if strings.EqualFold(existing.Email, user.Email) {
			return models.User{}, store.ErrEmailTaken
		}
	}
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	s.users[user.UserID] = user
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[userID]
	if !ok {
		return models.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if strings.EqualFold(user.Email, email) {
			return user, nil
		}
	}
	return models.User{}, store.ErrUserNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	s.mu.RLock()
	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	s.mu.RUnlock()

	sort.SliceStable(users, func(i, j int) bool {
		return users[i].CreatedAt.After(users[j].CreatedAt)
	})
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[userID]; !ok {
		return store.ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}

func cloneJob(job models.Job) models.Job {
	if job.Services != nil {
		job.Services = append([]models.ServiceLine(nil), job.Services...)
	}
	if job.AssignedTo != nil {
		v := *job.AssignedTo
		job.AssignedTo = &v
	}
	if job.StartedAt != nil {
		v := *job.StartedAt
		job.StartedAt = &v
	}
	if job.CompletedAt != nil {
		v := *job.CompletedAt
		job.CompletedAt = &v
	}
	if job.UpdatedAt != nil {
		v := *job.UpdatedAt
		job.UpdatedAt = &v
	}
	return job
}
