package httpapi

import (
	"context"
	"encoding/json"
	"expvar"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/auth"
	"github.com/Glen-Yegon/niapay-carwash1/internal/catalog"
	"github.com/Glen-Yegon/niapay-carwash1/internal/jobs"
	"github.com/Glen-Yegon/niapay-carwash1/internal/logger"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/report"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/gorilla/mux"
	"github.com/pkg/errors"
)

type JobService interface {
	CreateJob(ctx context.Context, input jobs.CreateJobInput) (models.Job, error)
	ClaimJob(ctx context.Context, token, worker string) (models.Job, error)
	FinishJob(ctx context.Context, token string) (models.Job, error)
	ReassignJob(ctx context.Context, actor models.Actor, recordID, worker string) (models.Job, error)
	AdvanceJob(ctx context.Context, actor models.Actor, recordID, assignee string) (models.Job, error)
	ForceCompleteJob(ctx context.Context, actor models.Actor, recordID string) (models.Job, error)
	DeleteJob(ctx context.Context, actor models.Actor, recordID string) error
	Lookup(ctx context.Context, token string) (models.Job, error)
	ListJobs(ctx context.Context, filter jobs.ListFilter) ([]models.Job, error)
	ListActiveJobs(ctx context.Context) ([]models.Job, error)
}

type ReportService interface {
	Overview(ctx context.Context) (report.Overview, error)
	Staff(ctx context.Context) ([]report.StaffStats, error)
	Cash(ctx context.Context, window report.Window) (report.CashReport, error)
	Popular(ctx context.Context) ([]report.ServiceCount, error)
	Summary(ctx context.Context) (report.Summary, error)
	Activity(ctx context.Context, limit int) ([]report.ActivityItem, error)
}

type AccountService interface {
	SignUp(ctx context.Context, input auth.SignUpInput) (auth.Session, error)
	Login(ctx context.Context, email, password, role string) (auth.Session, error)
	CurrentUser(ctx context.Context, token string) (models.Actor, error)
	ListUsers(ctx context.Context, actor models.Actor) ([]models.User, error)
	RemoveUser(ctx context.Context, actor models.Actor, userID string) error
}

type Menu interface {
	Entries() []catalog.Entry
	Resolve(selections []catalog.Selection) ([]models.ServiceLine, error)
}

type Deps struct {
	Jobs     JobService
	Reports  ReportService
	Accounts AccountService
	Catalog  Menu
	// Realtime, when set, is mounted under /realtime/.
	Realtime http.Handler
	Logger   *logger.Logger
	Now      func() time.Time
}

type Handler struct {
	jobs     JobService
	reports  ReportService
	accounts AccountService
	catalog  Menu
	realtime http.Handler
	log      *logger.Logger
	now      func() time.Time
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(deps Deps) *Handler {
	h := &Handler{
		jobs:     deps.Jobs,
		reports:  deps.Reports,
		accounts: deps.Accounts,
		catalog:  deps.Catalog,
		realtime: deps.Realtime,
		log:      deps.Logger,
		now:      deps.Now,
	}
	if h.log == nil {
		h.log = logger.Nop()
	}
	if h.now == nil {
		h.now = func() time.Time { return time.Now().UTC() }
	}
	return h
}

func (h *Handler) Routes() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", h.handleHealth).Methods(http.MethodGet)
	r.Handle("/metrics", expvar.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", h.handleSignUp).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", h.handleLogin).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", h.withSession(h.handleMe)).Methods(http.MethodGet)
	api.HandleFunc("/catalog", h.withSession(h.handleCatalog)).Methods(http.MethodGet)

	api.HandleFunc("/jobs", h.withSession(h.handleCreateJob)).Methods(http.MethodPost)
	api.HandleFunc("/jobs", h.withSession(h.handleListJobs)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/active", h.withSession(h.handleActiveJobs)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{token}", h.withSession(h.handleLookup)).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{token}/claim", h.withSession(h.handleClaim)).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{token}/finish", h.withSession(h.handleFinish)).Methods(http.MethodPost)

	api.HandleFunc("/records/{id}/assign", h.withManager(h.handleReassign)).Methods(http.MethodPost)
	api.HandleFunc("/records/{id}/advance", h.withManager(h.handleAdvance)).Methods(http.MethodPost)
	api.HandleFunc("/records/{id}/complete", h.withManager(h.handleForceComplete)).Methods(http.MethodPost)
	api.HandleFunc("/records/{id}", h.withManager(h.handleDelete)).Methods(http.MethodDelete)

	api.HandleFunc("/reports/overview", h.withManager(h.handleOverview)).Methods(http.MethodGet)
	api.HandleFunc("/reports/staff", h.withManager(h.handleStaff)).Methods(http.MethodGet)
	api.HandleFunc("/reports/cash", h.withManager(h.handleCash)).Methods(http.MethodGet)
	api.HandleFunc("/reports/popular", h.withManager(h.handlePopular)).Methods(http.MethodGet)
	api.HandleFunc("/reports/summary", h.withManager(h.handleSummary)).Methods(http.MethodGet)
	api.HandleFunc("/reports/activity", h.withManager(h.handleActivity)).Methods(http.MethodGet)

	api.HandleFunc("/users", h.withManager(h.handleListUsers)).Methods(http.MethodGet)
	api.HandleFunc("/users/{id}", h.withManager(h.handleRemoveUser)).Methods(http.MethodDelete)

	if h.realtime != nil {
		r.PathPrefix("/realtime/").Handler(h.realtime)
	}
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, requestIDFromRequest(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// decodeRequest reads a JSON body. An empty body leaves target untouched
// when optional is set.
func decodeRequest(w http.ResponseWriter, r *http.Request, target interface{}, optional bool) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", "path", r.URL.Path, "request_id", requestIDFromRequest(r), "error", err)
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

// mapError turns service errors into responses. Validation and conflict
// messages carry the detail; server-side failures never do.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, jobs.ErrValidation), errors.Is(err, auth.ErrInvalidInput),
		errors.Is(err, catalog.ErrUnknownService), errors.Is(err, catalog.ErrInvalidPrice):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, jobs.ErrStateConflict):
		return http.StatusConflict, "invalid_state", err.Error()
	case errors.Is(err, jobs.ErrNotFound):
		return http.StatusNotFound, "job_not_found", "job not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrEmailTaken):
		return http.StatusConflict, "email_taken", "email already registered"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, auth.ErrRoleMismatch):
		return http.StatusForbidden, "role_mismatch", "account does not hold the requested role"
	case errors.Is(err, auth.ErrManagerSignUp):
		return http.StatusForbidden, "access_denied", "manager accounts require a manager session"
	case errors.Is(err, jobs.ErrForbidden), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "access_denied", "manager role required"
	case errors.Is(err, jobs.ErrStoreUnavailable), errors.Is(err, report.ErrUnavailable),
		errors.Is(err, auth.ErrUnavailable), errors.Is(err, store.ErrUnavailable):
		return http.StatusServiceUnavailable, "store_unavailable", "store unavailable"
	case errors.Is(err, jobs.ErrIntegrity):
		return http.StatusInternalServerError, "data_integrity", "job data integrity violation"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func trimmed(values ...*string) {
	for _, v := range values {
		*v = strings.TrimSpace(*v)
	}
}
