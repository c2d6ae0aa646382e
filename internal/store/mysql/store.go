// Package mysql stores jobs and accounts in MySQL through sqlx. Conditional
// updates lock the row with SELECT ... FOR UPDATE inside a transaction.
package mysql

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	driver "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
)

const duplicateEntry = 1062

const jobColumns = `record_id, job_token, customer_ref, plate, model, color, phone, payment, services, total, status, assigned_to, created_at, started_at, completed_at, updated_at`

type jobRow struct {
	RecordID    string         `db:"record_id"`
	Token       string         `db:"job_token"`
	CustomerRef string         `db:"customer_ref"`
	Plate       string         `db:"plate"`
	Model       string         `db:"model"`
	Color       string         `db:"color"`
	Phone       string         `db:"phone"`
	Payment     string         `db:"payment"`
	Services    []byte         `db:"services"`
	Total       int64          `db:"total"`
	Status      string         `db:"status"`
	AssignedTo  sql.NullString `db:"assigned_to"`
	CreatedAt   time.Time      `db:"created_at"`
	StartedAt   sql.NullTime   `db:"started_at"`
	CompletedAt sql.NullTime   `db:"completed_at"`
	UpdatedAt   sql.NullTime   `db:"updated_at"`
}

type userRow struct {
	UserID       string    `db:"user_id"`
	Name         string    `db:"name"`
	Email        string    `db:"email"`
	Role         string    `db:"role"`
	PasswordHash string    `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
}

type Store struct {
	db *sqlx.DB
}

func NewStore(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open parses a go-sql-driver DSN, forces UTC time parsing, and pings.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	cfg, err := driver.ParseDSN(dsn)
	if err != nil {
		return nil, errors.Wrap(err, "parse mysql dsn")
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	db, err := sqlx.Open("mysql", cfg.FormatDSN())
	if err != nil {
		return nil, unavailable("open", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, unavailable("ping", err)
	}
	return db, nil
}

func (s *Store) InsertJob(ctx context.Context, job models.Job) (string, error) {
	services, err := json.Marshal(servicesOrEmpty(job.Services))
	if err != nil {
		return "", err
	}
	recordID := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, recordID, job.Token, job.CustomerRef, job.Plate, job.Model, job.Color, job.Phone, string(job.Payment),
		services, job.Total, string(job.Status), job.AssignedTo, dbTime(job.CreatedAt),
		dbTimePtr(job.StartedAt), dbTimePtr(job.CompletedAt), dbTimePtr(job.UpdatedAt))
	if err != nil {
		return "", unavailable("insert job", err)
	}
	return recordID, nil
}

func (s *Store) GetJob(ctx context.Context, recordID string) (models.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT `+jobColumns+` FROM jobs WHERE record_id = ?`, recordID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, store.ErrJobNotFound
		}
		return models.Job{}, unavailable("get job", err)
	}
	return row.toModel()
}

func (s *Store) GetJobByToken(ctx context.Context, token string) (models.Job, error) {
	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+jobColumns+` FROM jobs WHERE job_token = ? LIMIT 2`, token); err != nil {
		return models.Job{}, unavailable("get job by token", err)
	}
	switch len(rows) {
	case 0:
		return models.Job{}, store.ErrJobNotFound
	case 1:
		return rows[0].toModel()
	default:
		return models.Job{}, store.ErrAmbiguousToken
	}
}

func (s *Store) ListJobs(ctx context.Context, query store.JobQuery) ([]models.Job, error) {
	clauses := []string{"1 = 1"}
	var args []interface{}

	if len(query.Statuses) > 0 {
		statuses := make([]string, 0, len(query.Statuses))
		for _, status := range query.Statuses {
			statuses = append(statuses, string(status))
		}
		clauses = append(clauses, "status IN (?)")
		args = append(args, statuses)
	}
	if !query.Since.IsZero() {
		clauses = append(clauses, "created_at >= ?")
		args = append(args, dbTime(query.Since))
	}
	if needle := strings.ToLower(strings.TrimSpace(query.Search)); needle != "" {
		pattern := "%" + escapeLike(needle) + "%"
		clauses = append(clauses, "(LOWER(plate) LIKE ? OR LOWER(job_token) LIKE ? OR LOWER(record_id) LIKE ?)")
		args = append(args, pattern, pattern, pattern)
	}

	sqlText := `SELECT ` + jobColumns + ` FROM jobs WHERE ` + strings.Join(clauses, " AND ") +
		` ORDER BY created_at DESC, record_id DESC`
	if query.Limit > 0 {
		sqlText += " LIMIT ?"
		args = append(args, query.Limit)
	}

	expanded, expandedArgs, err := sqlx.In(sqlText, args...)
	if err != nil {
		return nil, errors.Wrap(err, "expand list query")
	}

	var rows []jobRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(expanded), expandedArgs...); err != nil {
		return nil, unavailable("list jobs", err)
	}
	jobs := make([]models.Job, 0, len(rows))
	for _, row := range rows {
		job, err := row.toModel()
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// UpdateJob locks the row, checks ExpectStatus against the locked state,
// then writes. A concurrent writer blocks on the lock and sees the new
// status once this transaction commits.
func (s *Store) UpdateJob(ctx context.Context, recordID string, update store.JobUpdate) (job models.Job, err error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Job{}, unavailable("begin", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current jobRow
	if err = tx.GetContext(ctx, &current, `SELECT `+jobColumns+` FROM jobs WHERE record_id = ? FOR UPDATE`, recordID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.Job{}, store.ErrJobNotFound
		}
		return models.Job{}, unavailable("lock job", err)
	}
	job, err = current.toModel()
	if err != nil {
		return models.Job{}, err
	}
	if update.ExpectStatus != nil && job.Status != *update.ExpectStatus {
		return models.Job{}, store.ErrConflict
	}

	var sets []string
	var args []interface{}
	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, *update.AssignedTo)
	}
	if update.StartedAt != nil {
		sets = append(sets, "started_at = ?")
		args = append(args, dbTime(*update.StartedAt))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, dbTime(*update.CompletedAt))
	}
	if !update.UpdatedAt.IsZero() {
		sets = append(sets, "updated_at = ?")
		args = append(args, dbTime(update.UpdatedAt))
	}
	if len(sets) > 0 {
		args = append(args, recordID)
		if _, err = tx.ExecContext(ctx, `UPDATE jobs SET `+strings.Join(sets, ", ")+` WHERE record_id = ?`, args...); err != nil {
			return models.Job{}, unavailable("update job", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Job{}, unavailable("commit", err)
	}
	update.Apply(&job)
	return roundJob(job), nil
}

func (s *Store) DeleteJob(ctx context.Context, recordID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM jobs WHERE record_id = ?`, recordID)
	if err != nil {
		return unavailable("delete job", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete job", err)
	}
	if affected == 0 {
		return store.ErrJobNotFound
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (user_id, name, email, role, password_hash, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, user.UserID, user.Name, user.Email, string(user.Role), user.PasswordHash, dbTime(user.CreatedAt))
	if err != nil {
		var myErr *driver.MySQLError
		if errors.As(err, &myErr) && myErr.Number == duplicateEntry {
			return models.User{}, store.ErrEmailTaken
		}
		return models.User{}, unavailable("create user", err)
	}
	return user, nil
}

func (s *Store) GetUser(ctx context.Context, userID string) (models.User, error) {
	return s.getUser(ctx, `WHERE user_id = ?`, userID)
}

// GetUserByEmail relies on the case-insensitive collation of users.email.
func (s *Store) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return s.getUser(ctx, `WHERE email = ?`, email)
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT user_id, name, email, role, password_hash, created_at
		FROM users
		ORDER BY created_at DESC
	`); err != nil {
		return nil, unavailable("list users", err)
	}
	users := make([]models.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.toModel())
	}
	return users, nil
}

func (s *Store) DeleteUser(ctx context.Context, userID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return unavailable("delete user", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return unavailable("delete user", err)
	}
	if affected == 0 {
		return store.ErrUserNotFound
	}
	return nil
}

func (s *Store) getUser(ctx context.Context, where, arg string) (models.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row, `
		SELECT user_id, name, email, role, password_hash, created_at
		FROM users `+where, arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, unavailable("get user", err)
	}
	return row.toModel(), nil
}

func (r jobRow) toModel() (models.Job, error) {
	job := models.Job{
		RecordID:    r.RecordID,
		Token:       r.Token,
		CustomerRef: r.CustomerRef,
		Plate:       r.Plate,
		Model:       r.Model,
		Color:       r.Color,
		Phone:       r.Phone,
		Payment:     models.PaymentMethod(r.Payment),
		Total:       r.Total,
		Status:      models.JobStatus(r.Status),
		CreatedAt:   r.CreatedAt,
	}
	if parsed, ok := models.ParseStatus(r.Status); ok {
		job.Status = parsed
	}
	if len(r.Services) > 0 {
		if err := json.Unmarshal(r.Services, &job.Services); err != nil {
			return models.Job{}, errors.Wrap(err, "decode services")
		}
	}
	if r.AssignedTo.Valid {
		assignee := r.AssignedTo.String
		job.AssignedTo = &assignee
	}
	job.StartedAt = nullTimePtr(r.StartedAt)
	job.CompletedAt = nullTimePtr(r.CompletedAt)
	job.UpdatedAt = nullTimePtr(r.UpdatedAt)
	return job, nil
}

func (r userRow) toModel() models.User {
	return models.User{
		UserID:       r.UserID,
		Name:         r.Name,
		Email:        r.Email,
		Role:         models.Role(r.Role),
		PasswordHash: r.PasswordHash,
		CreatedAt:    r.CreatedAt,
	}
}

func unavailable(op string, err error) error {
	return errors.WithMessagef(store.ErrUnavailable, "%s: %v", op, err)
}

// DATETIME(6) keeps microseconds; rounding before the write keeps the value
// returned from UpdateJob equal to what a later read sees.
func dbTime(t time.Time) time.Time {
	return t.UTC().Round(time.Microsecond)
}

func dbTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return dbTime(*t)
}

func roundJob(job models.Job) models.Job {
	round := func(t *time.Time) *time.Time {
		if t == nil {
			return nil
		}
		v := dbTime(*t)
		return &v
	}
	job.StartedAt = round(job.StartedAt)
	job.CompletedAt = round(job.CompletedAt)
	job.UpdatedAt = round(job.UpdatedAt)
	return job
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
