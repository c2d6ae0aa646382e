package store

import (
	"context"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
)

// JobQuery narrows a scan of the job collection. The zero value selects
// every job. Results are always ordered newest first by creation time.
type JobQuery struct {
	Statuses []models.JobStatus
	Since    time.Time
	Search   string
	Limit    int
}

// Matches reports whether job satisfies the query. Backends that cannot push
// a predicate down to the database apply it with this method.
func (q JobQuery) Matches(job models.Job) bool {
	if len(q.Statuses) > 0 {
		found := false
		for _, status := range q.Statuses {
			if job.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if !q.Since.IsZero() && job.CreatedAt.Before(q.Since) {
		return false
	}
	if needle := strings.ToLower(strings.TrimSpace(q.Search)); needle != "" {
		if !strings.Contains(strings.ToLower(job.Plate), needle) &&
			!strings.Contains(strings.ToLower(job.Token), needle) &&
			!strings.Contains(strings.ToLower(job.RecordID), needle) {
			return false
		}
	}
	return true
}

// JobUpdate is a partial field update. Nil pointers leave the field alone.
// When ExpectStatus is set the update is conditional: it applies only if the
// stored status still equals *ExpectStatus, otherwise ErrConflict.
type JobUpdate struct {
	ExpectStatus *models.JobStatus
	Status       *models.JobStatus
	AssignedTo   *string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

// Apply copies the set fields of u onto job.
func (u JobUpdate) Apply(job *models.Job) {
	if u.Status != nil {
		job.Status = *u.Status
	}
	if u.AssignedTo != nil {
		assignee := *u.AssignedTo
		job.AssignedTo = &assignee
	}
	if u.StartedAt != nil {
		startedAt := *u.StartedAt
		job.StartedAt = &startedAt
	}
	if u.CompletedAt != nil {
		completedAt := *u.CompletedAt
		job.CompletedAt = &completedAt
	}
	if !u.UpdatedAt.IsZero() {
		updatedAt := u.UpdatedAt
		job.UpdatedAt = &updatedAt
	}
}

type JobStore interface {
	InsertJob(ctx context.Context, job models.Job) (string, error)
	GetJob(ctx context.Context, recordID string) (models.Job, error)
	GetJobByToken(ctx context.Context, token string) (models.Job, error)
	ListJobs(ctx context.Context, query JobQuery) ([]models.Job, error)
	UpdateJob(ctx context.Context, recordID string, update JobUpdate) (models.Job, error)
	DeleteJob(ctx context.Context, recordID string) error
}

type UserStore interface {
	CreateUser(ctx context.Context, user models.User) (models.User, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetUserByEmail(ctx context.Context, email string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	DeleteUser(ctx context.Context, userID string) error
}

type Store interface {
	JobStore
	UserStore
}
