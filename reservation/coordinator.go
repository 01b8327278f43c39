/*
coordinator.go - Reservation mutation coordinator

PURPOSE:
  Serializes all mutations touching a schedulable item and drives the
  evaluate-then-commit sequence for each operation: Create, Move, Resize,
  Cancel, Shorten, and the missed-reservation sweep. Policy evaluation and
  commit happen under a per-item lock, so two racing requests for the same
  item are decided one after the other and the loser sees the winner's
  committed row.

LOCKING:
  The lock table is keyed by item ID and reference-counted: an entry is
  created on first acquisition and removed when its last holder releases,
  so the table stays bounded by the number of items under concurrent
  mutation rather than growing with every item ever touched.

COMMIT ORDER:
  Replacements (move, resize, shorten) insert the new row first, then
  cancel the old one with a descendant link to the new row. A crash
  between the two steps leaves both rows active, which the coincident
  rule tolerates for same-lineage windows and an operator can repair;
  the reverse order could lose the reservation entirely.

DESIGN PRINCIPLES:
  - Committed rows are never updated in place. Every change of window is
    a new row plus a lifecycle flag on the old one.
  - Policy rejections come back as a Decision, never as an error.
  - Notifications fire after commit and can never roll it back.

SEE ALSO:
  - policy.go: The rule list each mutation runs before committing
  - ledger.go: The append-only history the coordinator writes through
*/
package reservation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// PER-ITEM LOCK TABLE
// =============================================================================

// lockTable hands out one mutex per item key. Entries are reference
// counted and deleted when the last holder releases, keeping the table
// bounded under churn.
type lockTable struct {
	mu      sync.Mutex
	entries map[ItemID]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func newLockTable() *lockTable {
	return &lockTable{entries: make(map[ItemID]*lockEntry)}
}

// acquire blocks until the key's lock is held and returns the release
// function. Release exactly once.
func (t *lockTable) acquire(key ItemID) func() {
	t.mu.Lock()
	entry, ok := t.entries[key]
	if !ok {
		entry = &lockEntry{}
		t.entries[key] = entry
	}
	entry.refs++
	t.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		t.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(t.entries, key)
		}
		t.mu.Unlock()
	}
}

// =============================================================================
// COORDINATOR
// =============================================================================

// Catalog resolves item definitions by ID. The coordinator needs it to
// rebuild the Item for a stored record when handling moves and resizes.
type Catalog interface {
	Inventory
	Item(id ItemID) (Item, bool)
}

// Coordinator owns the mutation path. Construct with NewCoordinator; the
// zero value is not usable.
type Coordinator struct {
	ledger    *Ledger
	evaluator *Evaluator
	catalog   Catalog
	directory Directory
	settings  ConfigSource
	notify    Notifier
	log       *slog.Logger
	locks     *lockTable
	now       func() time.Time
}

func NewCoordinator(ledger *Ledger, evaluator *Evaluator, catalog Catalog, directory Directory, settings ConfigSource, notify Notifier, log *slog.Logger) *Coordinator {
	if settings == nil {
		settings = StaticConfig{}
	}
	if notify == nil {
		notify = NopNotifier{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		ledger:    ledger,
		evaluator: evaluator,
		catalog:   catalog,
		directory: directory,
		settings:  settings,
		notify:    notify,
		log:       log,
		locks:     newLockTable(),
		now:       time.Now,
	}
}

// SetClock overrides the coordinator's time source.
func (c *Coordinator) SetClock(now func() time.Time) { c.now = now }

// =============================================================================
// OPERATIONS
// =============================================================================

// Create evaluates and commits a brand-new reservation. A non-OK Decision
// means nothing was committed.
func (c *Coordinator) Create(ctx context.Context, item Item, beneficiary User, requester User, window Window, title, project string, override bool) (Reservation, Decision, error) {
	release := c.locks.acquire(item.ItemID())
	defer release()

	candidate := Reservation{
		Item:    item.ItemID(),
		Kind:    item.Kind(),
		User:    beneficiary.ID,
		Creator: requester.ID,
		Project: project,
		Title:   title,
		Start:   window.Start,
		End:     window.End,
	}
	req := Request{
		Candidate: candidate,
		Item:      item,
		User:      beneficiary,
		Requester: requester,
		Override:  override,
	}
	decision, err := c.evaluator.Evaluate(ctx, req, c.config())
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	if !decision.OK() {
		return Reservation{}, decision, nil
	}

	id, err := c.ledger.Insert(ctx, &candidate)
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	candidate.ID = id
	c.notify.ReservationCreated(candidate)
	return candidate, Decision{}, nil
}

// Move shifts the whole reservation window by delta, committing a new row
// and cancelling the old one with a lineage link.
func (c *Coordinator) Move(ctx context.Context, id ReservationID, delta time.Duration, actor User, override bool) (Reservation, Decision, error) {
	return c.replace(ctx, id, actor, override, ActionMove, func(w Window) Window {
		return w.Shift(delta)
	})
}

// Resize moves only the end of the reservation window by delta.
func (c *Coordinator) Resize(ctx context.Context, id ReservationID, delta time.Duration, actor User, override bool) (Reservation, Decision, error) {
	return c.replace(ctx, id, actor, override, ActionResize, func(w Window) Window {
		return Window{Start: w.Start, End: w.End.Add(delta)}
	})
}

// replace is the shared move/resize path: permission check, candidate
// evaluation, then insert-new-cancel-old under the item lock.
func (c *Coordinator) replace(ctx context.Context, id ReservationID, actor User, override bool, action ModifyAction, rewindow func(Window) Window) (Reservation, Decision, error) {
	target, err := c.ledger.Get(ctx, id)
	if err != nil {
		return Reservation{}, Decision{}, err
	}

	release := c.locks.acquire(target.Item)
	defer release()

	// Re-read under the lock in case a racing mutation won.
	target, err = c.ledger.Get(ctx, id)
	if err != nil {
		return Reservation{}, Decision{}, err
	}

	if problem := c.evaluator.CheckModifyPermission(target, actor, action); problem != "" {
		return Reservation{}, Decision{Violations: []string{problem}}, nil
	}

	item, ok := c.catalog.Item(target.Item)
	if !ok {
		return Reservation{}, Decision{}, ErrReservationNotFound
	}
	beneficiary, err := c.directory.User(ctx, target.User)
	if err != nil {
		return Reservation{}, Decision{}, err
	}

	window := rewindow(target.Window())
	candidate := Reservation{
		Item:    target.Item,
		Kind:    target.Kind,
		User:    target.User,
		Creator: actor.ID,
		Project: target.Project,
		Title:   target.Title,
		Start:   window.Start,
		End:     window.End,
	}
	req := Request{
		Candidate: candidate,
		Item:      item,
		Replacing: &target,
		User:      beneficiary,
		Requester: actor,
		Override:  override,
	}
	decision, err := c.evaluator.Evaluate(ctx, req, c.config())
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	if !decision.OK() {
		return Reservation{}, decision, nil
	}

	newID, err := c.ledger.Insert(ctx, &candidate)
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	candidate.ID = newID
	if err := c.ledger.Cancel(ctx, target.ID, actor.ID, string(action), newID); err != nil {
		// The new row is committed; the old one could not be linked.
		// Surface the error rather than silently carrying two rows.
		c.log.Error("replacement committed but predecessor not cancelled",
			"reservation", target.ID, "descendant", newID, "error", err)
		return Reservation{}, Decision{}, err
	}

	c.notify.ReservationCancelled(target)
	c.notify.ReservationCreated(candidate)
	return candidate, Decision{}, nil
}

// Cancel retires a reservation without a replacement. A repeated cancel
// reports the original actor and time via the returned Decision; the
// first cancel wins and the record never changes again.
func (c *Coordinator) Cancel(ctx context.Context, id ReservationID, actor User, reason string) (Decision, error) {
	target, err := c.ledger.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}

	release := c.locks.acquire(target.Item)
	defer release()

	target, err = c.ledger.Get(ctx, id)
	if err != nil {
		return Decision{}, err
	}
	if problem := c.evaluator.CheckModifyPermission(target, actor, ActionCancel); problem != "" {
		return Decision{Violations: []string{problem}}, nil
	}

	if err := c.ledger.Cancel(ctx, id, actor.ID, reason, ""); err != nil {
		return Decision{}, err
	}
	target.Cancelled = true
	c.notify.ReservationCancelled(target)
	return Decision{}, nil
}

// Shorten ends an in-progress reservation early: a new row covering
// [start, newEnd) is committed, the original is flagged shortened with a
// lineage link, and the freed tail is announced so waiting users can take
// the slot.
func (c *Coordinator) Shorten(ctx context.Context, id ReservationID, newEnd time.Time, actor User) (Reservation, Decision, error) {
	target, err := c.ledger.Get(ctx, id)
	if err != nil {
		return Reservation{}, Decision{}, err
	}

	release := c.locks.acquire(target.Item)
	defer release()

	target, err = c.ledger.Get(ctx, id)
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	if problem := c.evaluator.CheckModifyPermission(target, actor, ActionResize); problem != "" {
		return Reservation{}, Decision{Violations: []string{problem}}, nil
	}
	if !newEnd.After(target.Start) || !newEnd.Before(target.End) {
		return Reservation{}, Decision{}, ErrInvalidWindow
	}

	replacement := Reservation{
		Item:    target.Item,
		Kind:    target.Kind,
		User:    target.User,
		Creator: actor.ID,
		Project: target.Project,
		Title:   target.Title,
		Start:   target.Start,
		End:     newEnd,
	}
	newID, err := c.ledger.Insert(ctx, &replacement)
	if err != nil {
		return Reservation{}, Decision{}, err
	}
	replacement.ID = newID
	if err := c.ledger.MarkShortened(ctx, target.ID, newID); err != nil {
		c.log.Error("shortened row committed but predecessor not flagged",
			"reservation", target.ID, "descendant", newID, "error", err)
		return Reservation{}, Decision{}, err
	}

	c.notify.TimeFreed(target, Window{Start: newEnd, End: target.End})
	return replacement, Decision{}, nil
}

// UsageLog answers whether any usage was recorded against a reservation.
// The missed sweep consults it before flagging a record.
type UsageLog interface {
	HasUsage(ctx context.Context, r Reservation) (bool, error)
}

// SweepMissed flags reservations on the item that ended at least
// cfg.MissedThreshold ago with no recorded usage. A nil usage log treats
// every candidate as unused. Returns the records flagged.
func (c *Coordinator) SweepMissed(ctx context.Context, item ItemID, usage UsageLog) ([]Reservation, error) {
	release := c.locks.acquire(item)
	defer release()

	cfg := c.config()
	candidates, err := c.ledger.MissedCandidates(ctx, item, c.now(), cfg.MissedThreshold)
	if err != nil {
		return nil, err
	}

	var missed []Reservation
	for _, r := range candidates {
		if usage != nil {
			used, err := usage.HasUsage(ctx, r)
			if err != nil {
				return missed, err
			}
			if used {
				continue
			}
		}
		if err := c.ledger.MarkMissed(ctx, r.ID); err != nil {
			return missed, err
		}
		r.Missed = true
		missed = append(missed, r)
		c.notify.ReservationMissed(r)
		c.log.Info("reservation marked missed", "reservation", r.ID, "item", r.Item, "user", r.User)
	}
	return missed, nil
}

func (c *Coordinator) config() Configuration {
	return c.settings.Config()
}
