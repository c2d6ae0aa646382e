package httpapi

import (
	"net/http"
	"strconv"

	"github.com/Glen-Yegon/niapay-carwash1/internal/catalog"
	"github.com/Glen-Yegon/niapay-carwash1/internal/jobs"
	"github.com/Glen-Yegon/niapay-carwash1/internal/models"

	"github.com/gorilla/mux"
)

type createJobRequest struct {
	Plate    string              `json:"plate"`
	Model    string              `json:"model"`
	Color    string              `json:"color"`
	Phone    string              `json:"phone"`
	Payment  string              `json:"payment"`
	Services []catalog.Selection `json:"services"`
}

type assignRequest struct {
	Worker string `json:"worker"`
}

type advanceRequest struct {
	Assignee string `json:"assignee"`
}

type jobsResponse struct {
	Jobs []models.Job `json:"jobs"`
}

func (h *Handler) handleCreateJob(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req createJobRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	trimmed(&req.Plate, &req.Model, &req.Color, &req.Phone, &req.Payment)

	lines, err := h.catalog.Resolve(req.Services)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	job, err := h.jobs.CreateJob(r.Context(), jobs.CreateJobInput{
		Plate:    req.Plate,
		Model:    req.Model,
		Color:    req.Color,
		Phone:    req.Phone,
		Payment:  req.Payment,
		Services: lines,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

func (h *Handler) handleListJobs(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	query := r.URL.Query()
	filter := jobs.ListFilter{Status: query.Get("status"), Search: query.Get("search")}
	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	list, err := h.jobs.ListJobs(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: nonNil(list)})
}

func (h *Handler) handleActiveJobs(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	list, err := h.jobs.ListActiveJobs(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, jobsResponse{Jobs: nonNil(list)})
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	job, err := h.jobs.Lookup(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleClaim(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	job, err := h.jobs.ClaimJob(r.Context(), mux.Vars(r)["token"], actor.Name)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleFinish(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	job, err := h.jobs.FinishJob(r.Context(), mux.Vars(r)["token"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleReassign(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req assignRequest
	if !decodeRequest(w, r, &req, false) {
		return
	}
	trimmed(&req.Worker)
	job, err := h.jobs.ReassignJob(r.Context(), actor, mux.Vars(r)["id"], req.Worker)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleAdvance(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	var req advanceRequest
	if !decodeRequest(w, r, &req, true) {
		return
	}
	trimmed(&req.Assignee)
	job, err := h.jobs.AdvanceJob(r.Context(), actor, mux.Vars(r)["id"], req.Assignee)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleForceComplete(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	job, err := h.jobs.ForceCompleteJob(r.Context(), actor, mux.Vars(r)["id"])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	if err := h.jobs.DeleteJob(r.Context(), actor, mux.Vars(r)["id"]); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func nonNil(list []models.Job) []models.Job {
	if list == nil {
		return []models.Job{}
	}
	return list
}
