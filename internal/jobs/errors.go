package jobs

import (
	"strings"

	"github.com/Glen-Yegon/niapay-carwash1/internal/models"
	"github.com/Glen-Yegon/niapay-carwash1/internal/store"

	"github.com/pkg/errors"
)

var (
	ErrValidation       = errors.New("invalid request")
	ErrStateConflict    = errors.New("invalid state transition")
	ErrNotFound         = errors.New("job not found")
	ErrForbidden        = errors.New("manager role required")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrIntegrity        = errors.New("job data integrity violation")
)

func missingFields(fields []string) error {
	return errors.Wrapf(ErrValidation, "missing required fields: %s", strings.Join(fields, ", "))
}

func invalidField(field, reason string) error {
	return errors.Wrapf(ErrValidation, "%s %s", field, reason)
}

// conflictFor describes why an action cannot run on a job in status.
func conflictFor(status models.JobStatus) error {
	switch status {
	case models.StatusInProgress:
		return errors.Wrap(ErrStateConflict, "job already in progress")
	case models.StatusCompleted:
		return errors.Wrap(ErrStateConflict, "job already completed")
	default:
		return errors.Wrap(ErrStateConflict, "job not in progress")
	}
}

// translate maps store errors onto the lifecycle taxonomy. Anything the
// store does not classify is treated as the store being unavailable.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrJobNotFound):
		return ErrNotFound
	case errors.Is(err, store.ErrConflict):
		return ErrStateConflict
	case errors.Is(err, store.ErrAmbiguousToken):
		return errors.WithMessage(ErrIntegrity, err.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, ErrStateConflict),
		errors.Is(err, ErrNotFound), errors.Is(err, ErrForbidden),
		errors.Is(err, ErrStoreUnavailable), errors.Is(err, ErrIntegrity):
		return err
	default:
		return errors.WithMessage(ErrStoreUnavailable, err.Error())
	}
}
