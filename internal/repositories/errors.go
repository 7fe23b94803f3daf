package repositories

import (
	"errors"
	"fmt"

	"github.com/nuage-shop/api/internal/domain"
)

// IsNotFound reports whether err categorises as a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err categorises as a conflicting update.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err categorises as a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// TransitionError reports a rejected status transition. It categorises as a
// conflict so callers can map it to HTTP 409.
type TransitionError struct {
	OrderID string
	From    domain.OrderStatus
	To      domain.OrderStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("order %s: transition %s -> %s is not allowed", e.OrderID, e.From, e.To)
}

// IsNotFound implements RepositoryError.
func (e *TransitionError) IsNotFound() bool { return false }

// IsConflict implements RepositoryError.
func (e *TransitionError) IsConflict() bool { return true }

// IsUnavailable implements RepositoryError.
func (e *TransitionError) IsUnavailable() bool { return false }

// AsTransitionError unwraps err into a TransitionError when possible.
func AsTransitionError(err error) (*TransitionError, bool) {
	var transition *TransitionError
	if errors.As(err, &transition) {
		return transition, true
	}
	return nil, false
}
