// Package jobs owns the job lifecycle: intake, claiming, completion and the
// manager overrides. The store stays the single source of truth; the service
// holds no job state of its own.
package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/identity"
	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/pkg/errors"
)

// Cache is the read-through job cache used by Lookup. Implementations must
// tolerate Invalidate for tokens they never loaded.
type Cache interface {
	Get(ctx context.Context, token string, load func(ctx context.Context) (models.Job, error)) (models.Job, error)
	Invalidate(ctx context.Context, token string)
}

type CreateJobInput struct {
	Plate    string
	Model    string
	Color    string
	Phone    string
	Payment  string
	Services []models.ServiceLine
}

type ListFilter struct {
	// Status is a status label or "all"/"" for every status.
	Status string
	Search string
	Limit  int
}

type Service struct {
	store      store.JobStore
	dispatcher EventDispatcher
	cache      Cache
	ids        *identity.Generator
	log        *logger.Logger
	now        func() time.Time
}

type Option func(*Service)

func WithCache(cache Cache) Option {
	return func(s *Service) { s.cache = cache }
}

func WithLogger(log *logger.Logger) Option {
	return func(s *Service) { s.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIdentity(ids *identity.Generator) Option {
	return func(s *Service) { s.ids = ids }
}

func NewService(repo store.JobStore, dispatcher EventDispatcher, opts ...Option) *Service {
	if dispatcher == nil {
		dispatcher = nopDispatcher{}
	}
	s := &Service{
		store:      repo,
		dispatcher: dispatcher,
		ids:        identity.NewGenerator(),
		log:        logger.Nop(),
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) CreateJob(ctx context.Context, input CreateJobInput) (models.Job, error) {
	plate := strings.TrimSpace(input.Plate)
	model := strings.TrimSpace(input.Model)
	color := strings.TrimSpace(input.Color)

	var missing []string
	if plate == "" {
		missing = append(missing, "plate")
	}
	if model == "" {
		missing = append(missing, "model")
	}
	if color == "" {
		missing = append(missing, "color")
	}
	if strings.TrimSpace(input.Payment) == "" {
		missing = append(missing, "payment")
	}
	if len(missing) > 0 {
		return models.Job{}, missingFields(missing)
	}

	payment, ok := models.ParsePayment(input.Payment)
	if !ok {
		return models.Job{}, invalidField("payment", "must be cash or mobile-money")
	}
	services := make([]models.ServiceLine, 0, len(input.Services))
	for _, line := range input.Services {
		name := strings.TrimSpace(line.Name)
		if name == "" {
			return models.Job{}, invalidField("services", "entries need a name")
		}
		if line.Price < 0 {
			return models.Job{}, invalidField("services", "prices must not be negative")
		}
		services = append(services, models.ServiceLine{Name: name, Price: line.Price})
	}
	phone := strings.TrimSpace(input.Phone)
	if phone == "" {
		phone = models.PhonePlaceholder
	}

	createdAt := s.now()
	job := models.Job{
		Token:       s.ids.NewToken(),
		CustomerRef: s.ids.CustomerRef(plate, createdAt),
		Plate:       plate,
		Model:       model,
		Color:       color,
		Phone:       phone,
		Payment:     payment,
		Services:    services,
		Total:       models.SumServices(services),
		Status:      models.StatusPending,
		CreatedAt:   createdAt,
	}

	recordID, err := s.store.InsertJob(ctx, job)
	if err != nil {
		return models.Job{}, translate(err)
	}
	job.RecordID = recordID

	s.log.Info("job created", "record_id", job.RecordID, "job_token", job.Token, "plate", job.Plate, "total", job.Total)
	s.publish(JobChanged{Kind: EventCreated, RecordID: job.RecordID, Token: job.Token, Status: job.Status, At: createdAt})
	return job, nil
}

// ClaimJob moves a Pending job to In Progress for worker. The write is
// conditional on the job still being Pending, so of two concurrent claims
// exactly one succeeds and the other gets ErrStateConflict.
func (s *Service) ClaimJob(ctx context.Context, token, worker string) (models.Job, error) {
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return models.Job{}, missingFields([]string{"worker"})
	}
	job, err := s.byToken(ctx, token)
	if err != nil {
		return models.Job{}, err
	}
	if !store.ValidTransition(store.ActionClaim, job.Status) {
		s.log.Warn("claim rejected", "job_token", token, "status", job.Status, "worker", worker)
		return models.Job{}, conflictFor(job.Status)
	}

	now := s.now()
	next := models.StatusInProgress
	updated, err := s.conditionalUpdate(ctx, job, store.JobUpdate{
		Status:     &next,
		AssignedTo: &worker,
		StartedAt:  &now,
		UpdatedAt:  now,
	})
	if err != nil {
		s.log.Warn("claim lost", "job_token", token, "worker", worker, "error", err)
		return models.Job{}, err
	}

	s.log.Info("job claimed", "record_id", updated.RecordID, "job_token", updated.Token, "worker", worker)
	s.publish(JobChanged{Kind: EventClaimed, RecordID: updated.RecordID, Token: updated.Token, Status: updated.Status, AssignedTo: worker, Actor: worker, At: now})
	return updated, nil
}

// FinishJob completes an In Progress job. Calling it on a Completed job is
// a conflict and never rewrites completed-at.
func (s *Service) FinishJob(ctx context.Context, token string) (models.Job, error) {
	job, err := s.byToken(ctx, token)
	if err != nil {
		return models.Job{}, err
	}
	if !store.ValidTransition(store.ActionFinish, job.Status) {
		s.log.Warn("finish rejected", "job_token", token, "status", job.Status)
		return models.Job{}, conflictFor(job.Status)
	}

	now := s.now()
	completedAt := notBefore(now, job.StartedAt)
	next := models.StatusCompleted
	updated, err := s.conditionalUpdate(ctx, job, store.JobUpdate{
		Status:      &next,
		CompletedAt: &completedAt,
		UpdatedAt:   now,
	})
	if err != nil {
		s.log.Warn("finish lost", "job_token", token, "error", err)
		return models.Job{}, err
	}

	s.log.Info("job finished", "record_id", updated.RecordID, "job_token", updated.Token, "worker", updated.Assignee())
	s.publish(JobChanged{Kind: EventFinished, RecordID: updated.RecordID, Token: updated.Token, Status: updated.Status, AssignedTo: updated.Assignee(), Actor: updated.Assignee(), At: now})
	return updated, nil
}

// ReassignJob overwrites the assignee without consulting the state machine.
// On a Pending job this leaves an assignee on a job nobody has claimed.
func (s *Service) ReassignJob(ctx context.Context, actor models.Actor, recordID, worker string) (models.Job, error) {
	if !actor.IsManager() {
		return models.Job{}, ErrForbidden
	}
	worker = strings.TrimSpace(worker)
	if worker == "" {
		return models.Job{}, missingFields([]string{"worker"})
	}

	now := s.now()
	updated, err := s.store.UpdateJob(ctx, recordID, store.JobUpdate{AssignedTo: &worker, UpdatedAt: now})
	if err != nil {
		return models.Job{}, translate(err)
	}
	s.invalidate(ctx, updated.Token)

	s.log.Info("job reassigned", "record_id", recordID, "job_token", updated.Token, "worker", worker, "manager", actor.Name)
	s.publish(JobChanged{Kind: EventReassigned, RecordID: recordID, Token: updated.Token, Status: updated.Status, AssignedTo: worker, Actor: actor.Name, At: now})
	return updated, nil
}

// AdvanceJob is the manager toggle: Pending to In Progress, then In Progress
// to Completed. assignee defaults to the manager when the job has none.
func (s *Service) AdvanceJob(ctx context.Context, actor models.Actor, recordID, assignee string) (models.Job, error) {
	if !actor.IsManager() {
		return models.Job{}, ErrForbidden
	}
	job, err := s.byRecord(ctx, recordID)
	if err != nil {
		return models.Job{}, err
	}
	next, ok := store.NextStatus(store.ActionAdvance, job.Status)
	if !ok {
		return models.Job{}, conflictFor(job.Status)
	}

	now := s.now()
	update := store.JobUpdate{Status: &next, UpdatedAt: now}
	switch next {
	case models.StatusInProgress:
		worker := strings.TrimSpace(assignee)
		if worker == "" {
			worker = job.Assignee()
		}
		if worker == "" {
			worker = actor.Name
		}
		update.AssignedTo = &worker
		update.StartedAt = &now
	case models.StatusCompleted:
		completedAt := notBefore(now, job.StartedAt)
		update.CompletedAt = &completedAt
		if job.StartedAt == nil {
			update.StartedAt = &completedAt
		}
	}

	updated, err := s.conditionalUpdate(ctx, job, update)
	if err != nil {
		return models.Job{}, err
	}

	s.log.Info("job advanced", "record_id", recordID, "job_token", updated.Token, "status", updated.Status, "manager", actor.Name)
	s.publish(JobChanged{Kind: EventAdvanced, RecordID: recordID, Token: updated.Token, Status: updated.Status, AssignedTo: updated.Assignee(), Actor: actor.Name, At: now})
	return updated, nil
}

// ForceCompleteJob completes any job that is not already Completed.
func (s *Service) ForceCompleteJob(ctx context.Context, actor models.Actor, recordID string) (models.Job, error) {
	if !actor.IsManager() {
		return models.Job{}, ErrForbidden
	}
	job, err := s.byRecord(ctx, recordID)
	if err != nil {
		return models.Job{}, err
	}
	if !store.ValidTransition(store.ActionForceComplete, job.Status) {
		return models.Job{}, conflictFor(job.Status)
	}

	now := s.now()
	completedAt := notBefore(now, job.StartedAt)
	next := models.StatusCompleted
	update := store.JobUpdate{Status: &next, CompletedAt: &completedAt, UpdatedAt: now}
	if job.StartedAt == nil {
		update.StartedAt = &completedAt
	}
	if job.AssignedTo == nil {
		manager := actor.Name
		update.AssignedTo = &manager
	}

	updated, err := s.conditionalUpdate(ctx, job, update)
	if err != nil {
		return models.Job{}, err
	}

	s.log.Info("job force completed", "record_id", recordID, "job_token", updated.Token, "from", job.Status, "manager", actor.Name)
	s.publish(JobChanged{Kind: EventCompleted, RecordID: recordID, Token: updated.Token, Status: updated.Status, AssignedTo: updated.Assignee(), Actor: actor.Name, At: now})
	return updated, nil
}

func (s *Service) DeleteJob(ctx context.Context, actor models.Actor, recordID string) error {
	if !actor.IsManager() {
		return ErrForbidden
	}
	job, err := s.byRecord(ctx, recordID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteJob(ctx, recordID); err != nil {
		return translate(err)
	}
	s.invalidate(ctx, job.Token)

	s.log.Info("job deleted", "record_id", recordID, "job_token", job.Token, "manager", actor.Name)
	s.publish(JobChanged{Kind: EventDeleted, RecordID: recordID, Token: job.Token, Actor: actor.Name, At: s.now()})
	return nil
}

// Lookup resolves a job token through the cache when one is configured.
func (s *Service) Lookup(ctx context.Context, token string) (models.Job, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return models.Job{}, missingFields([]string{"job_token"})
	}
	if s.cache == nil {
		return s.byToken(ctx, token)
	}
	job, err := s.cache.Get(ctx, token, func(ctx context.Context) (models.Job, error) {
		return s.byToken(ctx, token)
	})
	if err != nil {
		return models.Job{}, translate(err)
	}
	return job, nil
}

func (s *Service) ListJobs(ctx context.Context, filter ListFilter) ([]models.Job, error) {
	query := store.JobQuery{Search: filter.Search, Limit: filter.Limit}
	raw := strings.TrimSpace(filter.Status)
	if raw != "" && !strings.EqualFold(raw, "all") {
		status, ok := models.ParseStatus(raw)
		if !ok {
			return nil, invalidField("status", "is not a known job status")
		}
		query.Statuses = []models.JobStatus{status}
	}
	jobs, err := s.store.ListJobs(ctx, query)
	if err != nil {
		return nil, translate(err)
	}
	return jobs, nil
}

// ListActiveJobs returns Pending and In Progress jobs, newest first.
func (s *Service) ListActiveJobs(ctx context.Context) ([]models.Job, error) {
	jobs, err := s.store.ListJobs(ctx, store.JobQuery{
		Statuses: []models.JobStatus{models.StatusPending, models.StatusInProgress},
	})
	if err != nil {
		return nil, translate(err)
	}
	return jobs, nil
}

func (s *Service) byToken(ctx context.Context, token string) (models.Job, error) {
	job, err := s.store.GetJobByToken(ctx, strings.TrimSpace(token))
	if err != nil {
		return models.Job{}, translate(err)
	}
	return job, nil
}

func (s *Service) byRecord(ctx context.Context, recordID string) (models.Job, error) {
	job, err := s.store.GetJob(ctx, recordID)
	if err != nil {
		return models.Job{}, translate(err)
	}
	return job, nil
}

// conditionalUpdate writes update only if the job still has the status it
// was read with. On a lost race the job is re-read so the conflict reports
// the state that won.
func (s *Service) conditionalUpdate(ctx context.Context, job models.Job, update store.JobUpdate) (models.Job, error) {
	expect := job.Status
	update.ExpectStatus = &expect

	updated, err := s.store.UpdateJob(ctx, job.RecordID, update)
	if err == nil {
		s.invalidate(ctx, job.Token)
		return updated, nil
	}
	if !errors.Is(err, store.ErrConflict) {
		return models.Job{}, translate(err)
	}
	s.invalidate(ctx, job.Token)
	current, reloadErr := s.byRecord(ctx, job.RecordID)
	if reloadErr != nil {
		return models.Job{}, reloadErr
	}
	return models.Job{}, conflictFor(current.Status)
}

func (s *Service) invalidate(ctx context.Context, token string) {
	if s.cache != nil && token != "" {
		s.cache.Invalidate(ctx, token)
	}
}

func (s *Service) publish(event JobChanged) {
	if err := s.dispatcher.Dispatch(event); err != nil {
		s.log.Warn("event dispatch failed", "type", event.Type(), "record_id", event.RecordID, "error", err)
	}
}

// notBefore keeps completed-at from preceding started-at under clock skew.
func notBefore(t time.Time, floor *time.Time) time.Time {
	if floor != nil && t.Before(*floor) {
		return *floor
	}
	return t
}
