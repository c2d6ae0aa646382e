package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/report"
)

const formatCSV = "csv"

// writeReport renders JSON, or the report's text lines as a CSV download
// when ?format=csv is given.
func (h *Handler) writeReport(w http.ResponseWriter, r *http.Request, name string, payload interface{}, lines []string) {
	if !strings.EqualFold(r.URL.Query().Get("format"), formatCSV) {
		writeJSON(w, http.StatusOK, payload)
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", "attachment; filename="+h.fileName(name))
	w.WriteHeader(http.StatusOK)
	for _, line := range lines {
		_, _ = fmt.Fprintln(w, line)
	}
}

func (h *Handler) fileName(name string) string {
	return fmt.Sprintf("%s_%s.csv", name, h.now().Format("2006-01-02"))
}

func (h *Handler) handleOverview(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	overview, err := h.reports.Overview(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "overview", overview, overview.Lines())
}

func (h *Handler) handleStaff(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	stats, err := h.reports.Staff(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "staff", map[string]interface{}{"staff": stats}, report.StaffLines(stats))
}

func (h *Handler) handleCash(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	window, ok := h.parseWindow(w, r)
	if !ok {
		return
	}
	cash, err := h.reports.Cash(r.Context(), window)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "cash_"+string(window), cash, cash.Lines())
}

func (h *Handler) handlePopular(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	ranking, err := h.reports.Popular(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "popular", map[string]interface{}{"services": ranking}, report.PopularLines(ranking))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	summary, err := h.reports.Summary(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "summary", summary, summary.Lines())
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request, actor models.Actor) {
	limit := report.DefaultActivity
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	items, err := h.reports.Activity(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.writeReport(w, r, "activity", map[string]interface{}{"activity": items}, report.ActivityLines(items))
}

func (h *Handler) parseWindow(w http.ResponseWriter, r *http.Request) (report.Window, bool) {
	window, ok := report.ParseWindow(r.URL.Query().Get("window"))
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "window must be one of today, week, month, 3months, year, all")
		return "", false
	}
	return window, true
}
