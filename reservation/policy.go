/*
policy.go - Reservation policy evaluator

PURPOSE:
  Evaluates a candidate reservation against the full ordered rule list and
  returns a Decision: every rule that failed, in evaluation order, plus
  whether the remaining problems could be bypassed by staff or an explicit
  override. Evaluation never short-circuits on the first failure; the
  caller gets the complete picture in one pass.

RULE ORDER:
  1. Structural validity        (start must precede end)
  2. Coincident reservations    (exclusive for tools; same-user for areas)
  3. Outage conflicts           (item outages, plus tool resource outages)
  4. Replacement target state   (a cancelled record cannot be replaced)
  5. Ownership and account      (projects, billing, training, access,
                                 qualification, area authorization)
  6. Numeric item limits        (horizon, block bounds, daily/future caps,
                                 gap between reservations)
  7. Area occupancy             (projected headcount vs maximum capacity)

OVERRIDE SEMANTICS:
  Categories 1-4 are fatal: staff and explicit overrides do not bypass
  them. When the requester is staff, or an explicit override is set,
  evaluation stops after category 4 and the Decision is never marked
  overridable. Otherwise, a Decision whose violations all come from
  categories 5-7 is overridable.

EXEMPTIONS:
  Numeric limits (category 6, minus the horizon) are waived when the
  whole window falls on a weekend or inside the item's daily off band,
  and for tool superusers when the site's bypass toggle is on.

DESIGN PRINCIPLES:
  - A policy rejection is a Decision value, never an error. The error
    return is reserved for infrastructure failures (storage, directory).
  - Configuration is injected per call; the evaluator holds no toggles.
  - Violation messages are user-facing and phrased for the beneficiary,
    switching to third person when someone reserves on another's behalf.

SEE ALSO:
  - occupancy.go: Category 7, the projected-occupancy sweep
  - ledger.go:    The queries each rule reads from
  - types.go:     Limits, Configuration, Decision
*/
package reservation

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// =============================================================================
// EVALUATOR
// =============================================================================

// Inventory resolves item definitions outside the one being evaluated.
// The evaluator needs it for one rule: shrinking an area reservation must
// not strand a tool reservation that depends on that area.
type Inventory interface {
	ToolsRequiringArea(area ItemID) []*Tool
}

// Evaluator runs the ordered policy rule list. All fields except Inventory
// are required; a nil Inventory skips the dependent-tool-coverage rule.
type Evaluator struct {
	Ledger    *Ledger
	Outages   *OutageRegistry
	Capacity  *CapacityChecker
	Charges   ChargeChecker
	Inventory Inventory
	Now       func() time.Time
}

// Request is one candidate evaluation. Candidate carries the proposed
// window; Replacing is set for moves and resizes and points at the record
// the candidate supersedes. User is the beneficiary; Requester is who is
// asking (they differ when staff reserve on a user's behalf).
type Request struct {
	Candidate Reservation
	Item      Item
	Replacing *Reservation
	User      User
	Requester User
	Override  bool
}

func (e *Evaluator) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// self reports whether the beneficiary is asking for themselves, which
// selects between "You ..." and "<name> ..." message phrasing.
func (req Request) self() bool {
	return req.User.ID == req.Requester.ID
}

// Evaluate runs every rule against the candidate and returns the full
// Decision. The error return is for infrastructure failures only.
func (e *Evaluator) Evaluate(ctx context.Context, req Request, cfg Configuration) (Decision, error) {
	var problems []string
	now := e.now()
	window := req.Candidate.Window()

	// -------------------------------------------------------------------------
	// Fatal rules: not bypassed by staff or overrides.
	// -------------------------------------------------------------------------

	if tool, ok := req.Item.(*Tool); ok && !tool.Operational && !req.Requester.IsStaff && !req.Requester.IsServicePersonnel {
		problems = append(problems, "This tool is nonoperational and cannot be reserved.")
	}

	if !window.Valid() {
		problems = append(problems, "Reservation start time ("+formatInstant(window.Start)+
			") must be before the end time ("+formatInstant(window.End)+").")
	}

	if window.Valid() {
		coincident, err := e.checkCoincident(ctx, req)
		if err != nil {
			return Decision{}, err
		}
		problems = append(problems, coincident...)

		outage, err := e.checkOutageConflict(ctx, req, window)
		if err != nil {
			return Decision{}, err
		}
		problems = append(problems, outage...)
	}

	if req.Replacing != nil && req.Replacing.Cancelled {
		problems = append(problems, "This reservation has already been cancelled by "+
			cancelledByName(*req.Replacing)+" at "+formatInstant(derefTime(req.Replacing.CancellationTime))+".")
	}

	if !req.User.HasActiveProject() {
		if req.self() {
			problems = append(problems, "You do not belong to any active projects. Thus, you may not create any reservations.")
		} else {
			problems = append(problems, req.User.DisplayName()+" does not belong to any active projects and cannot have reservations.")
		}
	} else if err := e.Charges.CheckChargeable(ctx, req.Candidate.Project, req.User, req.Item); err != nil {
		problems = append(problems, err.Error())
	}

	// Staff and explicit overrides bypass everything below; nothing past
	// this point can make their decision overridable either.
	if req.Requester.IsStaff || req.Override {
		return Decision{Violations: problems}, nil
	}

	// If nothing fatal failed, the remaining problems can be overridden.
	overridable := len(problems) == 0

	// -------------------------------------------------------------------------
	// Ownership and account rules.
	// -------------------------------------------------------------------------

	if req.User.TrainingRequired {
		facility := cfg.FacilityName
		if req.self() {
			problems = append(problems, fmt.Sprintf(
				"You are blocked from making reservations in the %s. Please complete the %s rules tutorial in order to create new reservations.",
				facility, facility))
		} else {
			problems = append(problems, fmt.Sprintf(
				"%s is blocked from making reservations in the %s. The user needs to complete the %s rules tutorial in order to create new reservations.",
				req.User.DisplayName(), facility, facility))
		}
	}

	if req.User.AccessExpired(now) {
		if req.self() {
			problems = append(problems, "Your "+cfg.SiteTitle+" access has expired.")
		} else {
			problems = append(problems, req.User.DisplayName()+"'s "+cfg.SiteTitle+" access has expired.")
		}
	}

	if req.Replacing != nil && !req.self() {
		problems = append(problems, "You may not change reservations that you do not own.")
	}

	// Start in the past is allowed for one case: extending an ongoing area
	// reservation keeps the original start.
	areaExtension := req.Item.Kind() == KindArea && req.Replacing != nil &&
		req.Replacing.Start.Equal(window.Start)
	if !areaExtension && window.Start.Before(now) {
		problems = append(problems, "Reservation start time ("+formatInstant(window.Start)+
			") is earlier than the current time ("+formatInstant(now)+").")
	}
	if window.End.Before(now) {
		problems = append(problems, "Reservation end time ("+formatInstant(window.End)+
			") is earlier than the current time ("+formatInstant(now)+").")
	}

	if tool, ok := req.Item.(*Tool); ok && tool.Policy.RequiresQualification && !tool.Qualified[req.User.ID] {
		if req.self() {
			problems = append(problems, "You are not qualified to use this tool. Creating, moving, and resizing reservations is forbidden.")
		} else {
			problems = append(problems, req.User.DisplayName()+" is not qualified to use this tool. Creating, moving, and resizing reservations is forbidden.")
		}
	}

	if req.Item.Kind() == KindArea {
		problems = append(problems, e.checkAreaAuthorization(req, window)...)
	}

	reqsArea, err := e.checkRequiredAreaCoverage(ctx, req, window)
	if err != nil {
		return Decision{}, err
	}
	problems = append(problems, reqsArea...)

	// -------------------------------------------------------------------------
	// Numeric item limits.
	// -------------------------------------------------------------------------

	limits := req.Item.Limits()
	tool, isTool := req.Item.(*Tool)
	exempt := isTool && cfg.SuperuserBypass && tool.Superusers[req.User.ID]

	if !exempt && limits.ReservationHorizonDays > 0 {
		horizon := time.Duration(limits.ReservationHorizonDays) * 24 * time.Hour
		if window.Start.After(now.Add(horizon)) {
			problems = append(problems, fmt.Sprintf(
				"You may not create reservations further than %d days from now for this %s.",
				limits.ReservationHorizonDays, itemNoun(req.Item)))
		}
	}

	if !exempt && shouldEnforceLimits(limits, window) {
		itemProblems, err := e.checkItemLimits(ctx, req, limits, window, now)
		if err != nil {
			return Decision{}, err
		}
		problems = append(problems, itemProblems...)
	}

	// -------------------------------------------------------------------------
	// Area occupancy.
	// -------------------------------------------------------------------------

	if area, ok := req.Item.(*Area); ok {
		exclude := ReservationID("")
		if req.Replacing != nil {
			exclude = req.Replacing.ID
		}
		capacity, err := e.Capacity.CheckCapacity(ctx, area, req.Candidate, req.User, exclude)
		if err != nil {
			return Decision{}, err
		}
		problems = append(problems, capacity...)
	}

	if len(problems) > 0 {
		return Decision{Violations: problems, Overridable: overridable}, nil
	}
	return Decision{}, nil
}

// =============================================================================
// FATAL RULES
// =============================================================================

// checkCoincident enforces exclusivity: tools admit one active reservation
// per instant; areas admit at most one per user per instant. Back-to-back
// windows never coincide.
func (e *Evaluator) checkCoincident(ctx context.Context, req Request) ([]string, error) {
	exclude := ReservationID("")
	if req.Replacing != nil {
		exclude = req.Replacing.ID
	}
	overlapping, err := e.Ledger.FindOverlapping(ctx, req.Item.ItemID(), req.Candidate.Window(), exclude)
	if err != nil {
		return nil, err
	}

	switch req.Item.Kind() {
	case KindTool:
		if len(overlapping) > 0 {
			return []string{"Your reservation coincides with another reservation that already exists. Please choose a different time."}, nil
		}
	case KindArea:
		for _, other := range overlapping {
			if other.User == req.User.ID {
				if req.self() {
					return []string{"You already have a reservation that coincides with this one. Please choose a different time."}, nil
				}
				return []string{req.User.DisplayName() + " already has a reservation that coincides with this one. Please choose a different time."}, nil
			}
		}
	}
	return nil, nil
}

// checkOutageConflict rejects windows overlapping a scheduled outage.
// Tool reservations also conflict with outages on the tool's dependent
// resources.
func (e *Evaluator) checkOutageConflict(ctx context.Context, req Request, window Window) ([]string, error) {
	outages, err := e.Outages.ActiveOutages(ctx, req.Item, window)
	if err != nil {
		return nil, err
	}
	if len(outages) > 0 {
		return []string{"Your reservation coincides with a scheduled outage. Please choose a different time."}, nil
	}
	return nil, nil
}

// =============================================================================
// OWNERSHIP AND ACCOUNT RULES
// =============================================================================

// checkAreaAuthorization requires the beneficiary to be authorized in the
// area at both endpoints of the window. A closure in effect is named in
// the message.
func (e *Evaluator) checkAreaAuthorization(req Request, window Window) []string {
	area := req.Item.ItemID()
	startOK, startClosure := req.User.AuthorizedAt(area, window.Start)
	endOK, endClosure := req.User.AuthorizedAt(area, window.End)
	if startOK && endOK {
		return nil
	}

	details := ""
	closure := startClosure
	if closure == nil {
		closure = endClosure
	}
	if closure != nil {
		details = fmt.Sprintf(" due to the following closure: %s (%s)",
			closure.Name, formatRange(closure.Start, closure.End))
	} else if schedule := accessScheduleDisplay(req.User, area); schedule != "" {
		details = " (times allowed in this area are: " + schedule + ")"
	}

	if req.self() {
		return []string{"You are not authorized to access this area at this time" + details +
			". Creating, moving, and resizing reservations is forbidden."}
	}
	return []string{req.User.DisplayName() + " is not authorized to access this area at this time" + details +
		". Creating, moving, and resizing reservations is forbidden."}
}

// checkRequiredAreaCoverage handles the tool/area dependency both ways:
// a tool needing an area reservation must be covered at its start, and an
// area reservation being shrunk must still cover the user's dependent
// tool reservations.
func (e *Evaluator) checkRequiredAreaCoverage(ctx context.Context, req Request, window Window) ([]string, error) {
	var problems []string

	if tool, ok := req.Item.(*Tool); ok && tool.RequiresAreaReservation() {
		area := tool.RequiredArea
		covered, err := e.Ledger.CoveringAreaReservation(ctx, req.User.ID, area.ID, window.Start)
		if err != nil {
			return nil, err
		}
		if !covered {
			if req.self() {
				problems = append(problems, fmt.Sprintf(
					"This tool requires a %s reservation. Please make a reservation in the %s prior to reserving this tool.",
					area.AreaName, area.AreaName))
			} else {
				problems = append(problems, fmt.Sprintf(
					"This tool requires a %s reservation. Please make sure to also create a reservation in the %s or %s will not be able to enter the area.",
					area.AreaName, area.AreaName, req.User.DisplayName()))
			}
		}
	}

	if req.Item.Kind() == KindArea && req.Replacing != nil && e.Inventory != nil {
		stranded, err := e.strandedToolReservation(ctx, req, window)
		if err != nil {
			return nil, err
		}
		if stranded != nil {
			areaName := req.Item.Name()
			if req.self() {
				problems = append(problems, fmt.Sprintf(
					"You have a reservation for the %s at %s that requires a %s reservation. Cancel or reschedule the tool reservation first and try again.",
					stranded.toolName, formatInstant(stranded.start), areaName))
			} else {
				problems = append(problems, fmt.Sprintf(
					"%s has a reservation for the %s at %s that requires a %s reservation. Cancel or reschedule the tool reservation first and try again.",
					req.User.DisplayName(), stranded.toolName, formatInstant(stranded.start), areaName))
			}
		}
	}
	return problems, nil
}

type strandedTool struct {
	toolName string
	start    time.Time
}

// strandedToolReservation finds the user's first tool reservation that was
// covered by the replaced area window but falls outside the candidate one.
func (e *Evaluator) strandedToolReservation(ctx context.Context, req Request, window Window) (*strandedTool, error) {
	old := req.Replacing.Window()
	for _, tool := range e.Inventory.ToolsRequiringArea(req.Item.ItemID()) {
		covered, err := e.Ledger.NeighborsForUser(ctx, req.User.ID, tool.ID, old)
		if err != nil {
			return nil, err
		}
		for _, r := range covered {
			if !old.Contains(r.Start) {
				continue
			}
			if !window.Contains(r.Start) {
				return &strandedTool{toolName: tool.ToolName, start: r.Start}, nil
			}
		}
	}
	return nil, nil
}

// =============================================================================
// NUMERIC ITEM LIMITS
// =============================================================================

// shouldEnforceLimits reports whether the numeric limits apply to this
// window. They are waived for short reservations falling entirely on a
// weekend or entirely inside the item's daily off band.
func shouldEnforceLimits(limits Limits, window Window) bool {
	if limits.PolicyOffWeekend && isWeekend(window.Start) && isWeekend(window.End) {
		if window.Duration() <= 48*time.Hour {
			return false
		}
	}
	if band, ok := limits.offBand(); ok {
		if band.Contains(ClockTimeOf(window.Start)) && band.Contains(ClockTimeOf(window.End)) &&
			window.Duration() <= band.Span() {
			return false
		}
	}
	return true
}

// wholeWindowOffBand reports whether a record sits entirely inside the
// item's daily off band. Such records are excluded from per-day and
// future-count caps and from buffer enforcement.
func wholeWindowOffBand(limits Limits, w Window) bool {
	band, ok := limits.offBand()
	if !ok {
		return false
	}
	return band.Contains(ClockTimeOf(w.Start)) && band.Contains(ClockTimeOf(w.End)) &&
		w.Duration() <= band.Span()
}

func isWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

func (e *Evaluator) checkItemLimits(ctx context.Context, req Request, limits Limits, window Window, now time.Time) ([]string, error) {
	var problems []string
	noun := itemNoun(req.Item)
	exclude := ReservationID("")
	if req.Replacing != nil {
		exclude = req.Replacing.ID
	}

	if limits.MinBlockMinutes > 0 {
		if wholeMinutes(window.Duration()) < limits.MinBlockMinutes {
			problems = append(problems, fmt.Sprintf(
				"Your reservation has a duration of %d minutes. This %s requires a minimum reservation duration of %d minutes.",
				wholeMinutes(window.Duration()), noun, limits.MinBlockMinutes))
		}
	}

	// The maximum block bound and the future-time cap count only time the
	// limits actually apply to; weekend and off-band stretches are free.
	policyDuration := durationForLimits(limits, window)
	if limits.MaxBlockMinutes > 0 && wholeMinutes(policyDuration) > limits.MaxBlockMinutes {
		problems = append(problems, fmt.Sprintf(
			"Your reservation has a duration of %d minutes. Reservations for this %s may not exceed %d minutes.",
			wholeMinutes(policyDuration), noun, limits.MaxBlockMinutes))
	}

	if limits.MaxReservationsPerDay > 0 {
		count, err := e.countOnDay(ctx, req, limits, window.Start, exclude)
		if err != nil {
			return nil, err
		}
		if count >= limits.MaxReservationsPerDay {
			if req.self() {
				problems = append(problems, fmt.Sprintf(
					"You may only have %d reservations for this %s per day. Missed reservations are included when counting the number of reservations per day.",
					limits.MaxReservationsPerDay, noun))
			} else {
				problems = append(problems, fmt.Sprintf(
					"%s may only have %d reservations for this %s per day. Missed reservations are included when counting the number of reservations per day.",
					req.User.DisplayName(), limits.MaxReservationsPerDay, noun))
			}
		}
	}

	future, err := e.Ledger.FutureForUser(ctx, req.User.ID, req.Item.ItemID(), now)
	if err != nil {
		return nil, err
	}
	future = filterActive(future, exclude)

	if limits.MaxFutureReservations > 0 {
		count := 0
		for _, r := range future {
			if !wholeWindowOffBand(limits, r.Window()) {
				count++
			}
		}
		if count >= limits.MaxFutureReservations {
			if req.self() {
				problems = append(problems, fmt.Sprintf(
					"You may only have %d future reservations for this %s.", limits.MaxFutureReservations, noun))
			} else {
				problems = append(problems, fmt.Sprintf(
					"%s may only have %d future reservations for this %s.", req.User.DisplayName(), limits.MaxFutureReservations, noun))
			}
		}
	}

	gapProblems, err := e.checkMinimumGap(ctx, req, limits, window, noun)
	if err != nil {
		return nil, err
	}
	problems = append(problems, gapProblems...)

	if limits.MaxFutureReservationMinutes > 0 {
		total := durationForLimits(limits, window)
		for _, r := range future {
			total += durationForLimits(limits, r.Window())
		}
		if wholeMinutes(total) > limits.MaxFutureReservationMinutes {
			if req.self() {
				problems = append(problems, fmt.Sprintf(
					"You may only reserve up to %d minutes of time on this %s, starting from the current time onward.",
					limits.MaxFutureReservationMinutes, noun))
			} else {
				problems = append(problems, fmt.Sprintf(
					"%s may only reserve up to %d minutes of time on this %s, starting from the current time onward.",
					req.User.DisplayName(), limits.MaxFutureReservationMinutes, noun))
			}
		}
	}

	return problems, nil
}

// countOnDay counts the beneficiary's reservations falling entirely within
// the candidate's calendar day. Missed records count; cancelled, shortened
// and off-band records do not.
func (e *Evaluator) countOnDay(ctx context.Context, req Request, limits Limits, day time.Time, exclude ReservationID) (int, error) {
	records, err := e.Ledger.ForUserOnDay(ctx, req.User.ID, req.Item.ItemID(), day)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, r := range records {
		if r.ID == exclude {
			continue
		}
		if wholeWindowOffBand(limits, r.Window()) {
			continue
		}
		count++
	}
	return count, nil
}

// checkMinimumGap enforces the buffer between the same user's reservations
// on the item, in both directions. The check is waived when the adjacent
// stretch falls on a weekend or inside the off band, and records entirely
// inside the off band never count as neighbors.
func (e *Evaluator) checkMinimumGap(ctx context.Context, req Request, limits Limits, window Window, noun string) ([]string, error) {
	if limits.MinGapMinutes <= 0 {
		return nil, nil
	}
	gap := time.Duration(limits.MinGapMinutes) * time.Minute
	var problems []string

	appendGapProblem := func(side string) {
		if req.self() {
			problems = append(problems, fmt.Sprintf(
				"Separate reservations for this %s that belong to you must be at least %d minutes apart from each other. The proposed reservation %s too close to another reservation.",
				noun, limits.MinGapMinutes, side))
		} else {
			problems = append(problems, fmt.Sprintf(
				"Separate reservations for this %s that belong to %s must be at least %d minutes apart from each other. The proposed reservation %s too close to another reservation.",
				noun, req.User.DisplayName(), limits.MinGapMinutes, side))
		}
	}

	exclude := ReservationID("")
	if req.Replacing != nil {
		exclude = req.Replacing.ID
	}

	// Too close before: a neighbor ending inside (start-gap, start].
	beforeBand := Window{Start: window.Start.Add(-gap), End: window.Start}
	if !(limits.PolicyOffWeekend && isWeekend(beforeBand.Start) && isWeekend(window.Start)) {
		neighbors, err := e.Ledger.NeighborsForUser(ctx, req.User.ID, req.Item.ItemID(), beforeBand)
		if err != nil {
			return nil, err
		}
		for _, r := range filterActive(neighbors, exclude) {
			if wholeWindowOffBand(limits, r.Window()) {
				continue
			}
			if r.End.After(beforeBand.Start) && !r.End.After(window.Start) {
				appendGapProblem("begins")
				break
			}
		}
	}

	// Too close after: a neighbor starting inside [end, end+gap).
	afterBand := Window{Start: window.End, End: window.End.Add(gap)}
	if !(limits.PolicyOffWeekend && isWeekend(window.End) && isWeekend(afterBand.End)) {
		neighbors, err := e.Ledger.NeighborsForUser(ctx, req.User.ID, req.Item.ItemID(), afterBand)
		if err != nil {
			return nil, err
		}
		for _, r := range filterActive(neighbors, exclude) {
			if wholeWindowOffBand(limits, r.Window()) {
				continue
			}
			if !r.Start.Before(window.End) && r.Start.Before(afterBand.End) {
				appendGapProblem("ends")
				break
			}
		}
	}

	return problems, nil
}

// durationForLimits is the window's duration minus any stretch the limits
// do not apply to: whole weekend days when PolicyOffWeekend is set, and
// daily off-band overlap on weekdays.
func durationForLimits(limits Limits, window Window) time.Duration {
	band, hasBand := limits.offBand()
	if !limits.PolicyOffWeekend && !hasBand {
		return window.Duration()
	}

	total := window.Duration()
	for day := beginningOfDay(window.Start); day.Before(window.End); day = day.AddDate(0, 0, 1) {
		midnight := day.AddDate(0, 0, 1)
		segStart := maxTime(day, window.Start)
		segEnd := minTime(midnight, window.End)
		if limits.PolicyOffWeekend && isWeekend(day) {
			total -= segEnd.Sub(segStart)
			continue
		}
		if hasBand && !isWeekend(day) {
			if band.Wraps() {
				// Overnight band: split at midnight and subtract each half.
				total -= offOverlap(day, segStart, segEnd, band.Start, NewClockTime(0, 0))
				total -= offOverlap(day, segStart, segEnd, NewClockTime(0, 0), band.End)
			} else {
				total -= offOverlap(day, segStart, segEnd, band.Start, band.End)
			}
		}
	}
	if total < 0 {
		return 0
	}
	return total
}

// offOverlap returns how much of [segStart, segEnd) falls inside the off
// range [from, to) anchored on the given day. A zero "to" clock means the
// following midnight.
func offOverlap(day, segStart, segEnd time.Time, from, to ClockTime) time.Duration {
	offStart := time.Date(day.Year(), day.Month(), day.Day(), from.Hour(), from.Minute(), 0, 0, day.Location())
	var offEnd time.Time
	if to == 0 {
		offEnd = day.AddDate(0, 0, 1)
	} else {
		offEnd = time.Date(day.Year(), day.Month(), day.Day(), to.Hour(), to.Minute(), 0, 0, day.Location())
	}
	start := maxTime(segStart, offStart)
	end := minTime(segEnd, offEnd)
	if end.After(start) {
		return end.Sub(start)
	}
	return 0
}

// =============================================================================
// MODIFICATION PERMISSION
// =============================================================================

// ModifyAction names the operation being attempted against an existing
// record, for message phrasing.
type ModifyAction string

const (
	ActionMove   ModifyAction = "move"
	ActionResize ModifyAction = "resize"
	ActionCancel ModifyAction = "cancel"
)

// CheckModifyPermission decides whether the actor may cancel, move or
// resize the target. It returns a single user-facing problem, or the empty
// string when the action is allowed.
func (e *Evaluator) CheckModifyPermission(target Reservation, actor User, action ModifyAction) string {
	now := e.now()

	if target.User != actor.ID && !actor.IsStaff {
		return fmt.Sprintf("You may not %s reservations that you do not own.", action)
	}
	if target.End.Before(now) && !actor.IsStaff {
		return fmt.Sprintf("You may not %s reservations that have already ended.", action)
	}
	if target.Cancelled {
		return "This reservation has already been cancelled by " + cancelledByName(target) +
			" on " + formatInstant(derefTime(target.CancellationTime)) + "."
	}
	if target.Missed {
		return "This reservation was missed and cannot be modified."
	}
	return ""
}

// =============================================================================
// HELPERS
// =============================================================================

func itemNoun(item Item) string {
	if item.Kind() == KindArea {
		return "area"
	}
	return "tool"
}

func cancelledByName(r Reservation) string {
	if r.CancelledBy == "" {
		return "an administrator"
	}
	return string(r.CancelledBy)
}

// accessScheduleDisplay renders the user's access windows for the area,
// for the authorization failure message.
func accessScheduleDisplay(u User, area ItemID) string {
	var parts []string
	for _, w := range u.AccessWindows {
		if w.Area == area {
			parts = append(parts, formatRange(w.Start, w.End))
		}
	}
	return strings.Join(parts, ", ")
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
