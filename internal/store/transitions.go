package store

import "github.com/Glen-Yegon/niapay-carwash1/internal/models"

const (
	ActionClaim         = "claim"
	ActionFinish        = "finish"
	ActionAdvance       = "advance"
	ActionForceComplete = "force_complete"
)

type transition struct {
	from []models.JobStatus
	to   func(from models.JobStatus) models.JobStatus
}

func always(status models.JobStatus) func(models.JobStatus) models.JobStatus {
	return func(models.JobStatus) models.JobStatus { return status }
}

var transitionMap = map[string]transition{
	ActionClaim:         {from: []models.JobStatus{models.StatusPending}, to: always(models.StatusInProgress)},
	ActionFinish:        {from: []models.JobStatus{models.StatusInProgress}, to: always(models.StatusCompleted)},
	ActionForceComplete: {from: []models.JobStatus{models.StatusPending, models.StatusInProgress}, to: always(models.StatusCompleted)},
	ActionAdvance: {
		from: []models.JobStatus{models.StatusPending, models.StatusInProgress},
		to: func(from models.JobStatus) models.JobStatus {
			if from == models.StatusPending {
				return models.StatusInProgress
			}
			return models.StatusCompleted
		},
	},
}

func ValidTransition(action string, fromStatus models.JobStatus) bool {
	t, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range t.from {
		if status == fromStatus {
			return true
		}
	}
	return false
}

// NextStatus returns the status action moves a job to from fromStatus.
func NextStatus(action string, fromStatus models.JobStatus) (models.JobStatus, bool) {
	if !ValidTransition(action, fromStatus) {
		return "", false
	}
	return transitionMap[action].to(fromStatus), true
}
