/*
errors.go - Centralized error types for the reservation engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Callers should match with errors.Is and the helper predicates below.

ERROR CATEGORIES:
  1. Not-found errors - Stale-page UX: the referenced record is gone
  2. Precondition errors - Invalid targets (already cancelled, missed)
  3. Collaborator errors - Hardware/notification failures AFTER approval
  4. Store errors - Persistence-level failures

IMPORTANT:
  Policy rejection is NOT an error. The evaluator returns a Decision
  carrying the full ordered violation list; errors are reserved for
  genuinely exceptional conditions.

SEE ALSO:
  - policy.go: Decision, the non-error rejection path
  - coordinator.go: Where collaborator failures surface
*/
package reservation

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrReservationNotFound is returned when a referenced reservation
	// does not exist or does not match the caller's claimed item type.
	ErrReservationNotFound = errors.New("reservation not found")

	// ErrOutageNotFound is returned when a referenced outage is missing.
	ErrOutageNotFound = errors.New("outage not found")

	// ErrUserNotFound is returned by Directory implementations when no
	// identity snapshot exists for the given user ID.
	ErrUserNotFound = errors.New("user not found")

	// ErrAlreadyCancelled is returned when cancelling a reservation that
	// was already cancelled. The first cancel's actor and time win.
	ErrAlreadyCancelled = errors.New("reservation already cancelled")

	// ErrAlreadyLinked is returned when a second descendant would be
	// attached to a reservation. The lineage chain allows exactly one
	// outgoing edge per node.
	ErrAlreadyLinked = errors.New("reservation already has a descendant")

	// ErrReservationMissed is returned when modifying a reservation that
	// was marked missed. Missed reservations are immutable.
	ErrReservationMissed = errors.New("reservation was missed and cannot be modified")

	// ErrInvalidWindow is returned for malformed intervals where no
	// evaluation is even attempted (e.g. zero times).
	ErrInvalidWindow = errors.New("invalid time window")

	// ErrHardwareFault is returned when an interlock fails to actuate
	// after a policy decision was already final. The booking or usage
	// record is NOT rolled back; a human must reconcile the hardware.
	ErrHardwareFault = errors.New("interlock hardware fault")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AlreadyCancelledError reports who cancelled the reservation and when,
// so idempotent-cancel rejections can surface the original actor.
type AlreadyCancelledError struct {
	ID          ReservationID
	CancelledBy UserID
	CancelledAt time.Time
}

func (e *AlreadyCancelledError) Error() string {
	return fmt.Sprintf("reservation %s already cancelled by %s at %s",
		e.ID, e.CancelledBy, e.CancelledAt.Format(time.RFC3339))
}

func (e *AlreadyCancelledError) Unwrap() error { return ErrAlreadyCancelled }

// HardwareFaultError identifies which interlock failed and during which
// operation. Distinct from policy rejection: the decision was approved.
type HardwareFaultError struct {
	Item      ItemID
	Operation string // "unlock" or "lock"
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("interlock %s failed for %s", e.Operation, e.Item)
}

func (e *HardwareFaultError) Unwrap() error { return ErrHardwareFault }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record, which
// callers typically map to a "stale page" response rather than a policy
// rejection.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrReservationNotFound) ||
		errors.Is(err, ErrOutageNotFound) ||
		errors.Is(err, ErrUserNotFound)
}

// IsPrecondition reports whether the error is a fatal precondition on the
// mutation target (already cancelled, missed, double-linked).
func IsPrecondition(err error) bool {
	return errors.Is(err, ErrAlreadyCancelled) ||
		errors.Is(err, ErrAlreadyLinked) ||
		errors.Is(err, ErrReservationMissed) ||
		errors.Is(err, ErrInvalidWindow)
}

// IsHardwareFault reports whether the error is a post-approval actuation
// failure, to be surfaced as "operation failed after policy approval".
func IsHardwareFault(err error) bool {
	return errors.Is(err, ErrHardwareFault)
}
