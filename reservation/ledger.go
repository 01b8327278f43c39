/*
ledger.go - The reservation ledger: append-mostly history with lineage

PURPOSE:
  The Ledger is the source of truth for every booking. Records are
  inserted once; "changing" a committed reservation means cancelling or
  shortening it and linking a descendant row with the new window. The
  Policy validation is the Evaluator's job, not the Ledger's, but the
  Ledger does protect the two structural invariants no caller may break:
  a record is cancelled at most once (the first cancel's actor and time
  win), and the descendant pointer is wired at most once.

CRITICAL INVARIANTS:
  1. Committed time windows are never edited in place
  2. Cancel-then-cancel keeps the first cancel's actor/time
  3. Each record has at most one outgoing descendant edge

SEE ALSO:
  - store.go: Low-level persistence interface
  - coordinator.go: The serialized mutation transactions built on this
*/
package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Ledger wraps a Store with ID assignment, lifecycle protection, and the
// active-record query surface the policy evaluator consumes.
type Ledger struct {
	Store Store

	// Now is the clock, replaceable in tests.
	Now func() time.Time
}

func NewLedger(store Store) *Ledger {
	return &Ledger{Store: store, Now: time.Now}
}

// Insert assigns an ID and creation time and stores the record.
// No validation: candidates reach the ledger only after evaluation.
func (l *Ledger) Insert(ctx context.Context, r *Reservation) (ReservationID, error) {
	if r.ID == "" {
		r.ID = ReservationID(uuid.NewString())
	}
	r.CreationTime = l.Now()
	if err := l.Store.Insert(ctx, *r); err != nil {
		return "", err
	}
	return r.ID, nil
}

// Get returns a reservation by ID.
func (l *Ledger) Get(ctx context.Context, id ReservationID) (Reservation, error) {
	return l.Store.Get(ctx, id)
}

// FindOverlapping returns the active (non-cancelled, non-missed,
// non-shortened) reservations for the item overlapping the window,
// excluding the given reservation if set. Back-to-back records are not
// overlaps.
func (l *Ledger) FindOverlapping(ctx context.Context, item ItemID, window Window, exclude ReservationID) ([]Reservation, error) {
	return l.FindOverlappingAny(ctx, []ItemID{item}, window, exclude)
}

// FindOverlappingAny is FindOverlapping across several items at once,
// used for capacity checks spanning an area hierarchy.
func (l *Ledger) FindOverlappingAny(ctx context.Context, items []ItemID, window Window, exclude ReservationID) ([]Reservation, error) {
	records, err := l.Store.ForItems(ctx, items, window)
	if err != nil {
		return nil, err
	}
	return filterActive(records, exclude), nil
}

// Cancel marks the reservation cancelled, recording actor and time, and
// optionally wires the descendant pointer. A second cancel fails with the
// original actor and time preserved.
func (l *Ledger) Cancel(ctx context.Context, id ReservationID, actor UserID, reason string, descendant ReservationID) error {
	existing, err := l.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Cancelled {
		return &AlreadyCancelledError{
			ID:          id,
			CancelledBy: existing.CancelledBy,
			CancelledAt: derefTime(existing.CancellationTime),
		}
	}
	if descendant != "" && existing.Descendant != "" {
		return ErrAlreadyLinked
	}
	return l.Store.SetCancelled(ctx, id, actor, l.Now(), reason, descendant)
}

// MarkShortened flags the reservation as ended early and wires the
// descendant covering the actually-used window. The released tail is
// tracked for abuse auditing, not rebooked by this call.
func (l *Ledger) MarkShortened(ctx context.Context, id ReservationID, descendant ReservationID) error {
	existing, err := l.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	if existing.Descendant != "" {
		return ErrAlreadyLinked
	}
	return l.Store.SetShortened(ctx, id, descendant)
}

// MarkMissed flags a reservation whose window elapsed unused.
func (l *Ledger) MarkMissed(ctx context.Context, id ReservationID) error {
	if _, err := l.Store.Get(ctx, id); err != nil {
		return err
	}
	return l.Store.SetMissed(ctx, id)
}

// =============================================================================
// AGGREGATE QUERIES - Feed the per-day and future-window cap rules
// =============================================================================

// ForUserOnDay returns the user's reservations on the item lying entirely
// within the calendar day containing at (in at's location). Missed
// reservations are included (they count toward the daily cap); cancelled
// and shortened ones are not.
func (l *Ledger) ForUserOnDay(ctx context.Context, user UserID, item ItemID, at time.Time) ([]Reservation, error) {
	dayStart := beginningOfDay(at)
	dayEnd := dayStart.AddDate(0, 0, 1)
	records, err := l.Store.ForUser(ctx, user, item, Window{Start: dayStart, End: dayEnd})
	if err != nil {
		return nil, err
	}
	var out []Reservation
	for _, r := range records {
		if r.Cancelled || r.Shortened {
			continue
		}
		if !r.Start.Before(dayStart) && !r.End.After(dayEnd) {
			out = append(out, r)
		}
	}
	return out, nil
}

// NeighborsForUser returns the user's active reservations on the item
// overlapping the window. Used by the minimum-gap rule.
func (l *Ledger) NeighborsForUser(ctx context.Context, user UserID, item ItemID, window Window) ([]Reservation, error) {
	records, err := l.Store.ForUser(ctx, user, item, window)
	if err != nil {
		return nil, err
	}
	return filterActive(records, ""), nil
}

// FutureForUser returns the user's active reservations on the item
// starting at or after now.
func (l *Ledger) FutureForUser(ctx context.Context, user UserID, item ItemID, now time.Time) ([]Reservation, error) {
	records, err := l.Store.FutureForUser(ctx, user, item, now)
	if err != nil {
		return nil, err
	}
	return filterActive(records, ""), nil
}

// CoveringAreaReservation reports whether the user holds an active area
// reservation containing the instant (start <= at < end).
func (l *Ledger) CoveringAreaReservation(ctx context.Context, user UserID, area ItemID, at time.Time) (bool, error) {
	records, err := l.Store.ForUser(ctx, user, area, Window{Start: at, End: at.Add(time.Nanosecond)})
	if err != nil {
		return false, err
	}
	for _, r := range records {
		if r.Active() && r.Window().Contains(at) {
			return true, nil
		}
	}
	return false, nil
}

// MissedCandidates returns active reservations on the item that ended at
// or before now minus the threshold: bookings nobody showed up for.
func (l *Ledger) MissedCandidates(ctx context.Context, item ItemID, now time.Time, threshold time.Duration) ([]Reservation, error) {
	records, err := l.Store.EndedBefore(ctx, item, now.Add(-threshold))
	if err != nil {
		return nil, err
	}
	return filterActive(records, ""), nil
}

func filterActive(records []Reservation, exclude ReservationID) []Reservation {
	var out []Reservation
	for _, r := range records {
		if !r.Active() {
			continue
		}
		if exclude != "" && r.ID == exclude {
			continue
		}
		out = append(out, r)
	}
	return out
}

func derefTime(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}
