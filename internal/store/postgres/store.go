package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

const uniqueViolation = "23505"

const jobColumns = `record_id, job_token, customer_ref, plate, model, color, phone, payment, services, total, status, assigned_to, created_at, started_at, completed_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Open connects a pool and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, unavailable("open pool", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, unavailable("ping", err)
	}
	return pool, nil
}

func (s *Store) InsertJob(ctx context.Context, job models.Job) (string, error) {
	services, err := json.Marshal(servicesOrEmpty(job.Services))
	if err != nil {
		return "", err
	}
	recordID := uuid.NewString()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, recordID, job.Token, job.CustomerRef, job.Plate, job.Model, job.Color, job.Phone, string(job.Payment),
		services, job.Total, string(job.Status), job.AssignedTo, job.CreatedAt, job.StartedAt, job.CompletedAt, job.UpdatedAt)
	if err != nil {
		return "", unavailable("insert job", err)
	}
	return recordID, nil
}

func (s *Store) GetJob(ctx context.Context, recordID string) (models.Job, error) {
	if !isUUID(recordID) {
		return models.Job{}, store.ErrJobNotFound
	}
	row := s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE record_id = $1`, recordID)
	job, err := scanJob(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Job{}, store.ErrJobNotFound
		}
		return models.Job{}, unavailable("get job", err)
	}
	return job, nil
}

// GetJobByToken reads up to two rows so that a duplicated token is reported
// instead of silently picking one.
func (s *Store) GetJobByToken(ctx context.Context, token string) (models.Job, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_token = $1 LIMIT 2`, token)
	if err != nil {
		return models.Job{}, unavailable("get job by token", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return models.Job{}, unavailable("get job by token", err)
	}
	switch len(jobs) {
	case 0:
		return models.Job{}, store.ErrJobNotFound
	case 1:
		return jobs[0], nil
	default:
		return models.Job{}, store.ErrAmbiguousToken
	}
}

func (s *Store) ListJobs(ctx context.Context, query store.JobQuery) ([]models.Job, error) {
	sqlText := `SELECT ` + jobColumns + ` FROM jobs WHERE TRUE`
	var args []interface{}
	argPos := 1

	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		sqlText += fmt.Sprintf(" AND status = ANY($%d)", argPos)
		args = append(args, statuses)
		argPos++
	}
	if !query.Since.IsZero() {
		sqlText += fmt.Sprintf(" AND created_at >= $%d", argPos)
		args = append(args, query.Since)
		argPos++
	}
	if needle := strings.ToLower(strings.TrimSpace(query.Search)); needle != "" {
		sqlText += fmt.Sprintf(" AND (lower(plate) LIKE $%d OR lower(job_token) LIKE $%d OR record_id::text LIKE $%d)", argPos, argPos, argPos)
		args = append(args, "%"+escapeLike(needle)+"%")
		argPos++
	}
	sqlText += " ORDER BY created_at DESC, record_id DESC"
	if query.Limit > 0 {
		sqlText += fmt.Sprintf(" LIMIT $%d", argPos)
		args = append(args, query.Limit)
	}

	rows, err := s.pool.Query(ctx, sqlText, args...)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, unavailable("list jobs", err)
	}
	return jobs, nil
}

// UpdateJob issues a single UPDATE. With ExpectStatus set the status guard is
// part of the WHERE clause, so the check and the write are one atomic
// statement; a miss is then classified by reloading the row's state.
func (s *Store) UpdateJob(ctx context.Context, recordID string, update store.JobUpdate) (models.Job, error) {
	if !isUUID(recordID) {
		return models.Job{}, store.ErrJobNotFound
	}

	var sets []string
	var args []interface{}
	argPos := 1
	set := func(column string, value interface{}) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argPos))
		args = append(args, value)
		argPos++
	}
	if update.Status != nil {
		set("status", string(*update.Status))
	}
	if update.AssignedTo != nil {
		set("assigned_to", *update.AssignedTo)
	}
	if update.StartedAt != nil {
		set("started_at", *update.StartedAt)
	}
	if update.CompletedAt != nil {
		set("completed_at", *update.CompletedAt)
	}
	if !update.UpdatedAt.IsZero() {
		set("updated_at", update.UpdatedAt)
	}
	if len(sets) == 0 {
		job, err := s.GetJob(ctx, recordID)
		if err != nil {
			return models.Job{}, err
		}
		if update.ExpectStatus != nil && job.Status != *update.ExpectStatus {
			return models.Job{}, store.ErrConflict
		}
		return job, nil
	}

	sqlText := "UPDATE jobs SET " + strings.Join(sets, ", ") + fmt.Sprintf(" WHERE record_id = $%d", argPos)
	args = append(args, recordID)
	argPos++
	if update.ExpectStatus != nil {
		sqlText += fmt.Sprintf(" AND status = $%d", argPos)
		args = append(args, string(*update.ExpectStatus))
	}
	sqlText += " RETURNING " + jobColumns

	job, err := scanJob(s.pool.QueryRow(ctx, sqlText, args...))
	if err == nil {
		return job, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return models.Job{}, unavailable("update job", err)
	}

	_, exists, err := s.loadJobState(ctx, recordID)
	if err != nil {
		return models.Job{}, err
	}
	if !exists {
		return models.Job{}, store.ErrJobNotFound
	}
	return models.Job{}, store.ErrConflict
}

func (s *Store) DeleteJob(ctx context.Context, recordID string) error {
	if !isUUID(recordID) {
		return store.ErrJobNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM jobs WHERE record_id = $1`, recordID)
	if err != nil {
		return unavailable("delete job", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, name, email, role, password_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, user.UserID, user.Name, user.Email, string(user.Role), user.PasswordHash, user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, unavailable("create user", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	if !isUUID(userID) {
		return models.User{}, store.ErrUserNotFound
	}
	return s.getUser(ctx, `WHERE user_id = $1`, userID)
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT user_id, name, email, role, password_hash, created_at
		FROM users
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, unavailable("list users", err)
	}
	defer rows.Close()

	var users []models.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, unavailable("list users", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("list users", err)
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	if !isUUID(userID) {
		return store.ErrUserNotFound
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE user_id = $1`, userID)
	if err != nil {
		return unavailable("delete user", err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where string, arg string) (models.User, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT user_id, name, email, role, password_hash, created_at
		FROM users `+where, arg)
	user, err := scanUser(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, unavailable("get user", err)
	}
	return user, nil
}

func (s *Store) loadJobState(ctx context.Context, recordID string) (models.JobStatus, bool, error) {
	var status string
	err := s.pool.QueryRow(ctx, `SELECT status FROM jobs WHERE record_id = $1`, recordID).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, unavailable("load job state", err)
	}
	return models.JobStatus(status), true, nil
}

func scanJob(row pgx.Row) (models.Job, error) {
	var (
		job         models.Job
		payment     string
		status      string
		services    []byte
		assignedTo  sql.NullString
		startedAt   sql.NullTime
		completedAt sql.NullTime
		updatedAt   sql.NullTime
	)
	if err := row.Scan(&job.RecordID, &job.Token, &job.CustomerRef, &job.Plate, &job.Model, &job.Color, &job.Phone,
		&payment, &services, &job.Total, &status, &assignedTo, &job.CreatedAt, &startedAt, &completedAt, &updatedAt); err != nil {
		return models.Job{}, err
	}
	if len(services) > 0 {
		if err := json.Unmarshal(services, &job.Services); err != nil {
			return models.Job{}, errors.Wrap(err, "decode services")
		}
	}
	job.Payment = models.PaymentMethod(payment)
	if parsed, ok := models.ParseStatus(status); ok {
		job.Status = parsed
	} else {
		job.Status = models.JobStatus(status)
	}
	job.AssignedTo = nullStringPtr(assignedTo)
	job.StartedAt = nullTimePtr(startedAt)
	job.CompletedAt = nullTimePtr(completedAt)
	job.UpdatedAt = nullTimePtr(updatedAt)
	return job, nil
}

func collectJobs(rows pgx.Rows) ([]models.Job, error) {
	defer rows.Close()
	var jobs []models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return jobs, nil
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	var role string
	if err := row.Scan(&user.UserID, &user.Name, &user.Email, &role, &user.PasswordHash, &user.CreatedAt); err != nil {
		return models.User{}, err
	}
	user.Role = models.Role(role)
	return user, nil
}

func unavailable(op string, err error) error {
	return errors.WithMessagef(store.ErrUnavailable, "%s: %v", op, err)
}

func isUUID(value string) bool {
	_, err := uuid.Parse(value)
	return err == nil
}

func escapeLike(value string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(value)
}

func servicesOrEmpty(lines []models.ServiceLine) []models.ServiceLine {
	if lines == nil {
		return []models.ServiceLine{}
	}
	return lines
}

func nullTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	return &value.Time
}

func nullStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	return &value.String
}
