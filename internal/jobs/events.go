package jobs

import (
	"time"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
)

const (
	EventCreated    = "job.created"
	EventClaimed    = "job.claimed"
	EventFinished   = "job.finished"
	EventReassigned = "job.reassigned"
	EventAdvanced   = "job.advanced"
	EventCompleted  = "job.completed"
	EventDeleted    = "job.deleted"
)

type Event interface{ Type() string }

type EventDispatcher interface{ Dispatch(event Event) error }

// JobChanged is published after every successful mutation. Receivers treat
// it as a hint to re-query, never as the job's authoritative state.
type JobChanged struct {
	Kind       string           `json:"type"`
	RecordID   string           `json:"record_id"`
	Token      string           `json:"job_token"`
	Status     models.JobStatus `json:"status,omitempty"`
	AssignedTo string           `json:"assigned_to,omitempty"`
	Actor      string           `json:"actor,omitempty"`
	At         time.Time        `json:"at"`
}

func (e JobChanged) Type() string { return e.Kind }

type nopDispatcher struct{}

func (nopDispatcher) Dispatch(Event) error { return nil }
