package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
)

type Window string

const (
	WindowToday   Window = "today"
	WindowWeek    Window = "week"
	WindowMonth   Window = "month"
	Window3Months Window = "3months"
	WindowYear    Window = "year"
	WindowAll     Window = "all"
)

var windowSpans = map[Window]time.Duration{
	WindowToday:   24 * time.Hour,
	WindowWeek:    7 * 24 * time.Hour,
	WindowMonth:   30 * 24 * time.Hour,
	Window3Months: 90 * 24 * time.Hour,
	WindowYear:    365 * 24 * time.Hour,
}

// ParseWindow accepts the window names plus the day-count aliases the old
// report picker sent ("7days", "1month", ...). Empty means all-time.
func ParseWindow(raw string) (Window, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "all", "alltime", "all-time":
		return WindowAll, true
	case "today", "day", "1day":
		return WindowToday, true
	case "week", "7days", "7d":
		return WindowWeek, true
	case "month", "1month", "30days", "30d":
		return WindowMonth, true
	case "3months", "90days", "90d", "quarter":
		return Window3Months, true
	case "year", "1year", "365days", "365d":
		return WindowYear, true
	default:
		return "", false
	}
}

// Since is the inclusive lower bound on creation time, a fixed span back
// from now. The zero time means no bound.
func (w Window) Since(now time.Time) time.Time {
	span, ok := windowSpans[w]
	if !ok {
		return time.Time{}
	}
	return now.Add(-span)
}

type MethodTotal struct {
	Method models.PaymentMethod `json:"method"`
	Amount int64                `json:"amount"`
}

type CashReport struct {
	Window   Window        `json:"window"`
	Since    *time.Time    `json:"since,omitempty"`
	Methods  []MethodTotal `json:"methods"`
	Total    int64         `json:"total"`
	JobCount int           `json:"job_count"`
}

// BuildCashReport sums totals per payment method over jobs created inside
// window. Methods are listed in the order first seen in the scan.
func BuildCashReport(jobs []models.Job, window Window, now time.Time) CashReport {
	report := CashReport{Window: window, Methods: []MethodTotal{}}
	since := window.Since(now)
	if !since.IsZero() {
		report.Since = &since
	}
	index := make(map[models.PaymentMethod]int)
	for _, job := range jobs {
		if !since.IsZero() && job.CreatedAt.Before(since) {
			continue
		}
		i, ok := index[job.Payment]
		if !ok {
			i = len(report.Methods)
			index[job.Payment] = i
			report.Methods = append(report.Methods, MethodTotal{Method: job.Payment})
		}
		report.Methods[i].Amount += job.Total
		report.Total += job.Total
		report.JobCount++
	}
	return report
}

// Amount returns the total for method, zero when absent.
func (r CashReport) Amount(method models.PaymentMethod) int64 {
	for _, m := range r.Methods {
		if m.Method == method {
			return m.Amount
		}
	}
	return 0
}

// Lines renders the exported report rows. Labels are not escaped.
func (r CashReport) Lines() []string {
	lines := make([]string, 0, len(r.Methods)+1)
	for _, m := range r.Methods {
		lines = append(lines, fmt.Sprintf("%s: Ksh %s", m.Method, FormatKsh(m.Amount)))
	}
	lines = append(lines, fmt.Sprintf("Total Revenue: Ksh %s | Total Jobs: %d", FormatKsh(r.Total), r.JobCount))
	return lines
}
