/*
store.go - Persistence interface and external collaborator boundaries

PURPOSE:
  Defines the interface between the engine and the database, plus the
  boundary contracts for the collaborators this engine deliberately does
  not own: identity, billing, notifications, and interlock hardware.

KEY INTERFACES:
  Store:         Reservation + outage persistence
  Directory:     Identity snapshots for users other than the requester
  ChargeChecker: Billing/project-charge pass/fail boundary
  Notifier:      Fire-and-forget post-commit notifications
  Lockable:      Tool/door interlock actuation

APPEND-MOSTLY CONTRACT:
  Reservations are inserted once and their time windows are never updated.
  The only writes after insert flip lifecycle flags (cancelled, missed,
  shortened) and wire the descendant pointer, each exactly once.

IMPLEMENTATIONS:
  - store/sqlite: Production SQLite
  - reservation/store: In-memory for testing

SEE ALSO:
  - ledger.go: Higher-level query surface using Store
  - store/sqlite/sqlite.go: Concrete implementation
*/
package reservation

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Reservation and outage persistence
// =============================================================================

// Store handles persistence of reservation and outage records.
//
// IMPORTANT: a committed reservation's Start/End are never updated.
// The lifecycle setters are the only post-insert writes, and each may
// succeed at most once per record.
//
// The Store performs no policy filtering: queries return records in every
// lifecycle state, and the Ledger narrows them.
type Store interface {
	// Insert persists a new reservation record.
	Insert(ctx context.Context, r Reservation) error

	// Get returns a reservation by ID, or ErrReservationNotFound.
	Get(ctx context.Context, id ReservationID) (Reservation, error)

	// SetCancelled flips the cancelled flag, recording actor, time and
	// reason, and optionally wires the descendant pointer.
	SetCancelled(ctx context.Context, id ReservationID, by UserID, at time.Time, reason string, descendant ReservationID) error

	// SetShortened flips the shortened flag and wires the descendant.
	SetShortened(ctx context.Context, id ReservationID, descendant ReservationID) error

	// SetMissed flips the missed flag.
	SetMissed(ctx context.Context, id ReservationID) error

	// ForItems returns every reservation on any of the items whose window
	// overlaps the given window, in start order.
	ForItems(ctx context.Context, items []ItemID, window Window) ([]Reservation, error)

	// ForUser returns the user's reservations on the item whose window
	// overlaps the given window, in start order.
	ForUser(ctx context.Context, user UserID, item ItemID, window Window) ([]Reservation, error)

	// FutureForUser returns the user's reservations on the item starting
	// at or after the instant, in start order.
	FutureForUser(ctx context.Context, user UserID, item ItemID, after time.Time) ([]Reservation, error)

	// EndedBefore returns active reservations on the item that ended at
	// or before the cutoff. Used by the missed-reservation sweep.
	EndedBefore(ctx context.Context, item ItemID, cutoff time.Time) ([]Reservation, error)

	// InsertOutage persists a scheduled outage.
	InsertOutage(ctx context.Context, o ScheduledOutage) error

	// OutagesFor returns outages overlapping the window that target the
	// item directly or any of the listed shared resources, in start order.
	OutagesFor(ctx context.Context, item ItemID, resources []ResourceID, window Window) ([]ScheduledOutage, error)

	// DeleteOutage removes an outage, or returns ErrOutageNotFound.
	DeleteOutage(ctx context.Context, id OutageID) error
}

// =============================================================================
// DIRECTORY - Identity provider boundary
// =============================================================================

// Directory resolves identity snapshots for users other than the one the
// current request carries. The occupancy checker needs staff/service
// attributes of every overlapping occupant.
type Directory interface {
	User(ctx context.Context, id UserID) (User, error)
}

// =============================================================================
// BILLING - Project-charge boundary
// =============================================================================

// ChargeChecker is the billing collaborator. A nil return means the
// project may be charged; a non-nil error's message is surfaced verbatim
// as a policy violation.
type ChargeChecker interface {
	CheckChargeable(ctx context.Context, project string, user User, item Item) error
}

// AllowAllCharges is a ChargeChecker that approves everything.
type AllowAllCharges struct{}

func (AllowAllCharges) CheckChargeable(context.Context, string, User, Item) error { return nil }

// =============================================================================
// NOTIFIER - Fire-and-forget post-commit events
// =============================================================================

// Notifier receives post-commit events. Calls are made only after a
// successful commit; failures must never roll back the reservation, so
// implementations log-and-swallow.
type Notifier interface {
	ReservationCreated(r Reservation)
	ReservationCancelled(r Reservation)
	ReservationMissed(r Reservation)
	TimeFreed(r Reservation, freed Window)
}

// NopNotifier discards all events.
type NopNotifier struct{}

func (NopNotifier) ReservationCreated(Reservation)   {}
func (NopNotifier) ReservationCancelled(Reservation) {}
func (NopNotifier) ReservationMissed(Reservation)    {}
func (NopNotifier) TimeFreed(Reservation, Window)    {}

// =============================================================================
// LOCKABLE - Interlock hardware boundary
// =============================================================================

// Lockable is the abstract tool/door interlock. The engine calls it only
// after a policy decision is final, treats false as hardware failure, and
// never retries internally.
type Lockable interface {
	Unlock() bool
	Lock() bool
}
