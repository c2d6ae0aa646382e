package models

import (
	"strings"
	"time"
)

type JobStatus string

const (
	StatusPending    JobStatus = "Pending"
	StatusInProgress JobStatus = "In Progress"
	StatusCompleted  JobStatus = "Completed"
)

// ParseStatus accepts the canonical labels plus the spellings older
// records and clients use ("InProgress", "in_progress", "Finished").
func ParseStatus(raw string) (JobStatus, bool) {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "", "_", "", "-", "").Replace(key)
	switch key {
	case "pending":
		return StatusPending, true
	case "inprogress":
		return StatusInProgress, true
	case "completed", "finished", "done":
		return StatusCompleted, true
	default:
		return "", false
	}
}

type PaymentMethod string

const (
	PaymentCash        PaymentMethod = "cash"
	PaymentMobileMoney PaymentMethod = "mobile-money"
)

func ParsePayment(raw string) (PaymentMethod, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "cash":
		return PaymentCash, true
	case "mobile-money", "mobile_money", "mobilemoney", "mpesa", "m-pesa":
		return PaymentMobileMoney, true
	default:
		return "", false
	}
}

// ServiceLine is one selected service on a job. Price is in whole shillings.
type ServiceLine struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
}

// Job is a single vehicle engagement. Optional fields are pointers so that
// "not set" is always distinguishable from a zero value.
type Job struct {
	RecordID    string        `json:"record_id"`
	Token       string        `json:"job_token"`
	CustomerRef string        `json:"customer_ref"`
	Plate       string        `json:"plate"`
	Model       string        `json:"model"`
	Color       string        `json:"color"`
	Phone       string        `json:"phone"`
	Payment     PaymentMethod `json:"payment"`
	Services    []ServiceLine `json:"services"`
	Total       int64         `json:"total"`
	Status      JobStatus     `json:"status"`
	AssignedTo  *string       `json:"assigned_to,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	StartedAt   *time.Time    `json:"started_at,omitempty"`
	CompletedAt *time.Time    `json:"completed_at,omitempty"`
	UpdatedAt   *time.Time    `json:"updated_at,omitempty"`
}

func (j Job) Assignee() string {
	if j.AssignedTo == nil {
		return ""
	}
	return *j.AssignedTo
}

// LastActivity is the most recent mutation time, falling back to creation.
func (j Job) LastActivity() time.Time {
	if j.UpdatedAt != nil {
		return *j.UpdatedAt
	}
	return j.CreatedAt
}

func SumServices(lines []ServiceLine) int64 {
	var total int64
	for _, line := range lines {
		total += line.Price
	}
	return total
}

// PhonePlaceholder is stored when the front desk leaves the phone empty.
const PhonePlaceholder = "—"
