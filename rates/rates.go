/*
Package rates is the billing collaborator for the reservation engine.

PURPOSE:
  Answers the one question the policy evaluator asks of billing - may this
  project be charged for this user and item - and estimates reservation
  cost from per-item hourly rates. Rule internals beyond the pass/fail
  boundary (invoicing, adjustments, caps) live in the billing system
  proper, not here.

PRECISION:
  Money math uses decimal.Decimal throughout. Floating point is never
  used for amounts.

USAGE:
  table := rates.NewTable()
  table.SetHourly("tool-sem-1", decimal.NewFromInt(120))
  table.AllowProjectItems("proj-alpha", "tool-sem-1")

  evaluator.Charges = table
  cost := table.Estimate("tool-sem-1", 90*time.Minute)

SEE ALSO:
  - reservation/store.go: The ChargeChecker boundary this implements
*/
package rates

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/reservation-engine/reservation"
)

// ChargeError is the user-facing billing rejection. Its message is
// surfaced verbatim as a policy violation.
type ChargeError struct {
	Project string
	Reason  string
}

func (e *ChargeError) Error() string { return e.Reason }

// Table holds per-item hourly rates and per-project item allow-lists.
// It implements reservation.ChargeChecker.
type Table struct {
	mu      sync.RWMutex
	hourly  map[reservation.ItemID]decimal.Decimal
	allowed map[string]map[reservation.ItemID]bool
}

func NewTable() *Table {
	return &Table{
		hourly:  make(map[reservation.ItemID]decimal.Decimal),
		allowed: make(map[string]map[reservation.ItemID]bool),
	}
}

// SetHourly sets the hourly rate for an item.
func (t *Table) SetHourly(item reservation.ItemID, rate decimal.Decimal) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.hourly[item] = rate
}

// AllowProjectItems restricts the project to the listed items. A project
// with no allow-list may charge any item.
func (t *Table) AllowProjectItems(project string, items ...reservation.ItemID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	set, ok := t.allowed[project]
	if !ok {
		set = make(map[reservation.ItemID]bool)
		t.allowed[project] = set
	}
	for _, item := range items {
		set[item] = true
	}
}

// CheckChargeable reports whether the project may be billed for the user
// and item. A nil error means yes; a non-nil error's message is shown to
// the user as-is.
func (t *Table) CheckChargeable(_ context.Context, project string, user reservation.User, item reservation.Item) error {
	if project == "" {
		return nil
	}
	if !user.OnProject(project) {
		return &ChargeError{
			Project: project,
			Reason:  fmt.Sprintf("You are not allowed to bill project %s.", project),
		}
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if set, ok := t.allowed[project]; ok && item != nil && !set[item.ItemID()] {
		return &ChargeError{
			Project: project,
			Reason:  fmt.Sprintf("%s is not allowed for project %s", item.Name(), project),
		}
	}
	return nil
}

// Estimate returns the projected cost of holding the item for the given
// duration, or zero when no rate is configured.
func (t *Table) Estimate(item reservation.ItemID, d time.Duration) decimal.Decimal {
	t.mu.RLock()
	rate, ok := t.hourly[item]
	t.mu.RUnlock()
	if !ok || d <= 0 {
		return decimal.Zero
	}
	hours := decimal.NewFromFloat(d.Hours())
	return rate.Mul(hours).Round(2)
}
