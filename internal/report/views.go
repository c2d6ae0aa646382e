// Package report derives the dashboard views from a job snapshot. Every
// view is a pure function of the jobs it is handed and is recomputed per
// request; nothing here is persisted.
package report

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
)

const (
	QuickListSize   = 8
	PopularLimit    = 5
	DefaultActivity = 50
)

type QuickEntry struct {
	RecordID string           `json:"record_id"`
	Token    string           `json:"job_token"`
	Plate    string           `json:"plate"`
	Status   models.JobStatus `json:"status"`
	Total    int64            `json:"total"`
}

// Overview counts jobs by status. Revenue sums every job regardless of
// status: bookings count as committed revenue the moment they are logged.
type Overview struct {
	TotalJobs   int          `json:"total_jobs"`
	Pending     int          `json:"pending"`
	InProgress  int          `json:"in_progress"`
	Completed   int          `json:"completed"`
	Revenue     int64        `json:"revenue"`
	ActiveStaff int          `json:"active_staff"`
	Recent      []QuickEntry `json:"recent"`
}

func BuildOverview(jobs []models.Job) Overview {
	overview := Overview{TotalJobs: len(jobs), Recent: []QuickEntry{}}
	for i, job := range jobs {
		switch job.Status {
		case models.StatusPending:
			overview.Pending++
		case models.StatusInProgress:
			overview.InProgress++
		case models.StatusCompleted:
			overview.Completed++
		}
		overview.Revenue += job.Total
		if i < QuickListSize {
			overview.Recent = append(overview.Recent, QuickEntry{
				RecordID: job.RecordID,
				Token:    job.Token,
				Plate:    job.Plate,
				Status:   job.Status,
				Total:    job.Total,
			})
		}
	}
	overview.ActiveStaff = CountActiveStaff(jobs)
	return overview
}

func (o Overview) Lines() []string {
	return []string{
		fmt.Sprintf("Total Jobs: %d", o.TotalJobs),
		fmt.Sprintf("Pending: %d", o.Pending),
		fmt.Sprintf("In Progress: %d", o.InProgress),
		fmt.Sprintf("Completed: %d", o.Completed),
		fmt.Sprintf("Total Revenue: Ksh %s", FormatKsh(o.Revenue)),
		fmt.Sprintf("Active Staff: %d", o.ActiveStaff),
	}
}

// CountActiveStaff counts distinct assignees among In Progress jobs.
func CountActiveStaff(jobs []models.Job) int {
	seen := make(map[string]struct{})
	for _, job := range jobs {
		if job.Status != models.StatusInProgress || job.Assignee() == "" {
			continue
		}
		seen[job.Assignee()] = struct{}{}
	}
	return len(seen)
}

type StaffStats struct {
	Name       string `json:"name"`
	Completed  int    `json:"completed"`
	InProgress int    `json:"in_progress"`
	// AvgTurnaroundMinutes is nil when no job has both timestamps.
	AvgTurnaroundMinutes *int64 `json:"avg_turnaround_minutes"`
	AvgTurnaround        string `json:"avg_turnaround"`
}

// StaffPerformance reports one row per name in staff, followed by any other
// assignee found in the jobs, in scan order.
func StaffPerformance(jobs []models.Job, staff []string) []StaffStats {
	order := make([]string, 0, len(staff))
	index := make(map[string]int)
	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := index[name]; ok {
			return
		}
		index[name] = len(order)
		order = append(order, name)
	}
	for _, name := range staff {
		add(strings.TrimSpace(name))
	}
	for _, job := range jobs {
		add(job.Assignee())
	}

	type acc struct {
		completed, inProgress int
		turnaround            time.Duration
		timed                 int
	}
	accs := make([]acc, len(order))
	for _, job := range jobs {
		i, ok := index[job.Assignee()]
		if !ok {
			continue
		}
		switch job.Status {
		case models.StatusCompleted:
			accs[i].completed++
		case models.StatusInProgress:
			accs[i].inProgress++
		}
		if job.StartedAt != nil && job.CompletedAt != nil {
			accs[i].turnaround += job.CompletedAt.Sub(*job.StartedAt)
			accs[i].timed++
		}
	}

	out := make([]StaffStats, 0, len(order))
	for i, name := range order {
		stats := StaffStats{Name: name, Completed: accs[i].completed, InProgress: accs[i].inProgress, AvgTurnaround: NoData}
		if accs[i].timed > 0 {
			mean := accs[i].turnaround / time.Duration(accs[i].timed)
			minutes := int64(math.Round(float64(mean) / float64(time.Minute)))
			stats.AvgTurnaroundMinutes = &minutes
			stats.AvgTurnaround = fmt.Sprintf("%d min", minutes)
		}
		out = append(out, stats)
	}
	return out
}

func StaffLines(stats []StaffStats) []string {
	lines := make([]string, 0, len(stats))
	for _, s := range stats {
		lines = append(lines, fmt.Sprintf("%s: completed %d, in progress %d, avg turnaround %s", s.Name, s.Completed, s.InProgress, s.AvgTurnaround))
	}
	return lines
}

type ServiceCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// PopularServices ranks service names by occurrence. Ties keep the order in
// which names were first seen in the scan.
func PopularServices(jobs []models.Job, limit int) []ServiceCount {
	var ranking []ServiceCount
	index := make(map[string]int)
	for _, job := range jobs {
		for _, line := range job.Services {
			i, ok := index[line.Name]
			if !ok {
				i = len(ranking)
				index[line.Name] = i
				ranking = append(ranking, ServiceCount{Name: line.Name})
			}
			ranking[i].Count++
		}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Count > ranking[j].Count
	})
	if limit > 0 && len(ranking) > limit {
		ranking = ranking[:limit]
	}
	if ranking == nil {
		ranking = []ServiceCount{}
	}
	return ranking
}

func PopularLines(ranking []ServiceCount) []string {
	lines := make([]string, 0, len(ranking))
	for _, entry := range ranking {
		lines = append(lines, fmt.Sprintf("%s: %d", entry.Name, entry.Count))
	}
	return lines
}

type ActivityItem struct {
	RecordID string           `json:"record_id"`
	Token    string           `json:"job_token"`
	Plate    string           `json:"plate"`
	Status   models.JobStatus `json:"status"`
	Assignee string           `json:"assigned_to,omitempty"`
	Time     time.Time        `json:"time"`
}

// Activity lists the most recently touched jobs. A job's time is its last
// update, or its creation when it has never been updated.
func Activity(jobs []models.Job, limit int) []ActivityItem {
	if limit <= 0 {
		limit = DefaultActivity
	}
	items := make([]ActivityItem, 0, len(jobs))
	for _, job := range jobs {
		items = append(items, ActivityItem{
			RecordID: job.RecordID,
			Token:    job.Token,
			Plate:    job.Plate,
			Status:   job.Status,
			Assignee: job.Assignee(),
			Time:     job.LastActivity(),
		})
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Time.After(items[j].Time)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func ActivityLines(items []ActivityItem) []string {
	lines := make([]string, 0, len(items))
	for _, item := range items {
		who := item.Assignee
		if who == "" {
			who = NoData
		}
		lines = append(lines, fmt.Sprintf("%s %s %s %s", item.Time.UTC().Format(time.RFC3339), item.Plate, item.Status, who))
	}
	return lines
}

type Summary struct {
	TotalJobs   int      `json:"total_jobs"`
	Revenue     int64    `json:"revenue"`
	TopServices []string `json:"top_services"`
}

func BuildSummary(jobs []models.Job) Summary {
	summary := Summary{TotalJobs: len(jobs), TopServices: []string{}}
	for _, job := range jobs {
		summary.Revenue += job.Total
	}
	for _, entry := range PopularServices(jobs, PopularLimit) {
		summary.TopServices = append(summary.TopServices, entry.Name)
	}
	return summary
}

func (s Summary) Lines() []string {
	top := NoData
	if len(s.TopServices) > 0 {
		top = strings.Join(s.TopServices, ", ")
	}
	return []string{
		fmt.Sprintf("Total jobs in system: %d", s.TotalJobs),
		fmt.Sprintf("Total revenue: Ksh %s", FormatKsh(s.Revenue)),
		fmt.Sprintf("Most requested services: %s", top),
	}
}
