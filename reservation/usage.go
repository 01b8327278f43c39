/*
usage.go - Tool usage control

PURPOSE:
  Gates the physical interlock on each tool behind the same account and
  policy checks the scheduler applies. Enabling a tool runs the pre-use
  rule list and, only if every rule passes, releases the interlock and
  opens a usage record. Disabling closes the record and re-engages the
  interlock.

FAILURE MODES:
  A policy rejection (not qualified, no covering reservation, outage in
  progress) is an ordinary string problem the caller shows the operator.
  An interlock that refuses to actuate is a hardware fault, reported as a
  HardwareFaultError so callers can route it to operations rather than
  back to the user.

SEE ALSO:
  - policy.go: The reservation-time rule list these checks mirror
  - errors.go: HardwareFaultError and the IsHardwareFault predicate
*/
package reservation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// =============================================================================
// USAGE RECORDS
// =============================================================================

// UsageEvent is one stretch of tool operation, open until End is set.
type UsageEvent struct {
	Tool     ItemID
	Operator UserID
	User     UserID
	Project  string
	Start    time.Time
	End      *time.Time
}

func (e UsageEvent) InProgress() bool { return e.End == nil }

// =============================================================================
// USAGE CONTROLLER
// =============================================================================

// UsageController drives tool enable/disable. Interlocks map each tool to
// its hardware boundary; tools without an entry have no interlock and only
// the bookkeeping applies.
type UsageController struct {
	Ledger     *Ledger
	Outages    *OutageRegistry
	Charges    ChargeChecker
	Interlocks map[ItemID]Lockable
	Log        *slog.Logger
	Now        func() time.Time

	mu      sync.Mutex
	active  map[ItemID]*UsageEvent
	history []UsageEvent
}

func NewUsageController(ledger *Ledger, outages *OutageRegistry, charges ChargeChecker, interlocks map[ItemID]Lockable, log *slog.Logger) *UsageController {
	if charges == nil {
		charges = AllowAllCharges{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &UsageController{
		Ledger:     ledger,
		Outages:    outages,
		Charges:    charges,
		Interlocks: interlocks,
		Log:        log,
		Now:        time.Now,
		active:     make(map[ItemID]*UsageEvent),
	}
}

// CurrentUsage returns the open usage event on the tool, if any.
func (u *UsageController) CurrentUsage(tool ItemID) (UsageEvent, bool) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.active[tool]; ok {
		return *e, true
	}
	return UsageEvent{}, false
}

// HasUsage reports whether a usage event overlapped the reservation's
// window, for the missed-reservation sweep.
func (u *UsageController) HasUsage(ctx context.Context, r Reservation) (bool, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, e := range u.history {
		if e.Tool != r.Item || e.User != r.User {
			continue
		}
		end := u.Now()
		if e.End != nil {
			end = *e.End
		}
		if (Window{Start: e.Start, End: end}).Overlaps(r.Window()) {
			return true, nil
		}
	}
	if e, ok := u.active[r.Item]; ok && e.User == r.User && e.Start.Before(r.End) {
		return true, nil
	}
	return false, nil
}

// Enable runs the pre-use checks and, on success, releases the interlock
// and opens a usage record. The returned problem string is user-facing;
// an error is infrastructure or hardware.
func (u *UsageController) Enable(ctx context.Context, tool *Tool, operator User, beneficiary User, project string, cfg Configuration) (string, error) {
	now := u.Now()

	if !tool.Operational && !operator.IsStaff && !operator.IsServicePersonnel {
		return "This tool is currently non-operational.", nil
	}

	if current, ok := u.CurrentUsage(tool.ID); ok {
		return "The tool is currently being used by " + string(current.User) + ".", nil
	}

	if tool.Policy.RequiresQualification && !tool.Qualified[operator.ID] && !operator.IsStaff {
		return "You are not qualified to use this tool.", nil
	}

	if beneficiary.ID != operator.ID && !operator.IsStaff {
		return "You must be a staff member to use a tool on another user's behalf.", nil
	}

	if tool.RequiredArea != nil && !operator.IsStaff && !operator.IsServicePersonnel && tool.RequiresAreaReservation() {
		covered, err := u.Ledger.CoveringAreaReservation(ctx, operator.ID, tool.RequiredArea.ID, now)
		if err != nil {
			return "", err
		}
		if !covered {
			u.Log.Warn("tool enable without covering area reservation",
				"tool", tool.ID, "operator", operator.ID, "area", tool.RequiredArea.ID)
			return fmt.Sprintf("You must have a current reservation for the %s to operate this tool.",
				tool.RequiredArea.AreaName), nil
		}
	}

	if err := u.Charges.CheckChargeable(ctx, project, beneficiary, tool); err != nil {
		return err.Error(), nil
	}

	if operator.TrainingRequired {
		return fmt.Sprintf(
			"You are blocked from using all tools in the %s. Please complete the %s rules tutorial in order to use tools.",
			cfg.FacilityName, cfg.FacilityName), nil
	}

	if operator.AccessExpired(now) {
		return "Your " + cfg.SiteTitle + " access has expired.", nil
	}

	if !operator.IsStaff && !operator.IsServicePersonnel {
		outages, err := u.Outages.ActiveOutages(ctx, tool, Window{Start: now, End: now.Add(time.Nanosecond)})
		if err != nil {
			return "", err
		}
		for _, o := range outages {
			if o.InProgress(now) {
				return "A scheduled outage is in effect. You must wait for the outage to end before you can use the tool.", nil
			}
		}
	}

	if lock, ok := u.Interlocks[tool.ID]; ok {
		if !lock.Unlock() {
			return "", &HardwareFaultError{Item: tool.ID, Operation: "unlock"}
		}
	}

	u.mu.Lock()
	u.active[tool.ID] = &UsageEvent{
		Tool:     tool.ID,
		Operator: operator.ID,
		User:     beneficiary.ID,
		Project:  project,
		Start:    now,
	}
	u.mu.Unlock()

	u.Log.Info("tool enabled", "tool", tool.ID, "operator", operator.ID, "user", beneficiary.ID)
	return "", nil
}

// Disable closes the open usage record and re-engages the interlock. Only
// the operator, the beneficiary, or staff may disable a tool in use.
func (u *UsageController) Disable(ctx context.Context, tool *Tool, operator User) (string, error) {
	u.mu.Lock()
	current, ok := u.active[tool.ID]
	u.mu.Unlock()
	if !ok {
		return "This tool is not currently in use.", nil
	}
	if current.Operator != operator.ID && current.User != operator.ID && !operator.IsStaff {
		return "You may not disable a tool while another user is using it unless you are a staff member.", nil
	}

	if lock, ok := u.Interlocks[tool.ID]; ok {
		if !lock.Lock() {
			return "", &HardwareFaultError{Item: tool.ID, Operation: "lock"}
		}
	}

	now := u.Now()
	u.mu.Lock()
	current.End = &now
	u.history = append(u.history, *current)
	delete(u.active, tool.ID)
	u.mu.Unlock()

	u.Log.Info("tool disabled", "tool", tool.ID, "operator", operator.ID)
	return "", nil
}
