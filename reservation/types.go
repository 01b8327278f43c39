/*
Package reservation provides the core reservation policy and
conflict-resolution engine for a shared-equipment facility.

PURPOSE:
  This package contains the domain types and algorithms for deciding
  whether a proposed reservation (create, move, resize, or cancel) may be
  committed against a calendar of bookable items (tools and areas) under
  site-defined policy rules: qualification requirements, block-duration
  bounds, daily and future caps, buffer time, blackout outages, and area
  occupancy limits.

KEY CONCEPTS IN THIS FILE (types.go):
  - Reservation: An immutable-history booking record (cancel-and-replace)
  - Tool / Area: The two bookable item kinds, unified by the Item interface
  - Limits: Per-item policy knobs (horizon, block sizes, caps, buffers)
  - User: An immutable identity snapshot for one evaluation
  - Decision: The evaluator's verdict (violations plus overridability)
  - Configuration: Global toggles injected per evaluation, never ambient

DESIGN PRINCIPLES:
  1. Immutability: A committed reservation's time window never changes.
     Moves and resizes cancel the original and link a descendant row.
  2. Auditability: The lineage chain (descendant pointers) preserves the
     full history of every booking.
  3. Type Safety: Strong typing for IDs prevents mixing users and items.
  4. Injection: Identity and configuration arrive as values; the engine
     never reads ambient/global state.

USAGE:
  tool := &reservation.Tool{ID: "sem-1", ToolName: "SEM", ...}
  r := reservation.Reservation{
      Item:  tool.ID,
      Kind:  reservation.KindTool,
      User:  "alice",
      Start: start,
      End:   end,
  }

SEE ALSO:
  - policy.go: The rule engine that validates candidates
  - ledger.go: Reservation persistence and queries
  - coordinator.go: Serialized create/move/resize/cancel transactions
*/
package reservation

import (
	"fmt"
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ReservationID string
type OutageID string
type ItemID string
type UserID string
type ResourceID string

// ItemKind identifies which scheduling dimension a reservation occupies.
// A reservation always holds exactly one item for one contiguous interval.
type ItemKind string

const (
	KindTool ItemKind = "tool"
	KindArea ItemKind = "area"
)

// =============================================================================
// RESERVATION - The central entity
// =============================================================================

// Reservation is one booking of one item for one contiguous window.
//
// INVARIANT: a committed (non-cancelled, non-missed, non-shortened)
// reservation's Start/End never change after creation. Any move or resize
// cancels this record and links Descendant to a brand-new record with the
// new window, so the ledger is an append-mostly audit trail.
type Reservation struct {
	ID      ReservationID
	Item    ItemID
	Kind    ItemKind
	User    UserID // who benefits from the booking
	Creator UserID // who requested it (staff may book on behalf of users)
	Project string // billing target; required before commit for non-staff
	Title   string

	Start time.Time
	End   time.Time

	CreationTime time.Time

	// Lifecycle flags. Cancelled, Missed and Shortened are terminal:
	// a record carrying any of them no longer occupies calendar time.
	Cancelled        bool
	CancellationTime *time.Time
	CancelledBy      UserID
	CancelReason     string
	Missed           bool
	Shortened        bool

	// Descendant points at the reservation that supersedes this one.
	// Set exactly once, forming a singly-linked forward chain.
	Descendant ReservationID
}

// Active reports whether this record still occupies calendar time.
func (r Reservation) Active() bool {
	return !r.Cancelled && !r.Missed && !r.Shortened
}

// Window returns the half-open interval [Start, End).
func (r Reservation) Window() Window {
	return Window{Start: r.Start, End: r.End}
}

// Duration is the real wall-clock length of the reservation.
func (r Reservation) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// =============================================================================
// ITEMS - Tool and Area, unified for the policy evaluator
// =============================================================================

// Item is the read-only facade the policy evaluator works against.
// It exists so the evaluator can be item-kind agnostic; Tool and Area
// carry the kind-specific attributes.
type Item interface {
	ItemID() ItemID
	Kind() ItemKind
	Name() string
	Limits() Limits
}

// Tool is an exclusively-bookable instrument.
type Tool struct {
	ID       ItemID
	ToolName string
	Policy   Limits

	// Operational tools can be enabled by regular users. Non-operational
	// tools are staff/service-personnel only.
	Operational bool

	// Qualified users may reserve and operate the tool.
	Qualified map[UserID]bool

	// Superusers may be exempt from numeric reservation limits when the
	// site's SuperuserBypass toggle is on.
	Superusers map[UserID]bool

	// RequiredArea, when set, means the operator must hold a covering
	// reservation in (and be present in) this area to use the tool.
	RequiredArea *Area

	// Resources the tool fully depends on. An outage on any of them
	// blocks reservations for the tool.
	Resources []ResourceID
}

func (t *Tool) ItemID() ItemID { return t.ID }
func (t *Tool) Kind() ItemKind { return KindTool }
func (t *Tool) Name() string   { return t.ToolName }
func (t *Tool) Limits() Limits { return t.Policy }

// RequiresAreaReservation reports whether operating this tool demands a
// covering reservation in its required area.
func (t *Tool) RequiresAreaReservation() bool {
	return t.RequiredArea != nil && t.RequiredArea.RequiresReservation
}

// Area is a capacity-limited physical zone. Areas nest: a capacity limit
// on a parent counts occupants of all child areas too.
type Area struct {
	ID       ItemID
	AreaName string
	Policy   Limits

	// MaximumCapacity of zero means unlimited occupancy.
	MaximumCapacity int

	// Whether staff / service personnel count toward occupancy.
	CountStaff            bool
	CountServicePersonnel bool

	// RequiresReservation: entry demands a current reservation.
	RequiresReservation bool

	Parent   *Area
	Children []*Area
}

func (a *Area) ItemID() ItemID { return a.ID }
func (a *Area) Kind() ItemKind { return KindArea }
func (a *Area) Name() string   { return a.AreaName }
func (a *Area) Limits() Limits { return a.Policy }

// SelfAndAncestors returns the area and its ancestors, closest first.
func (a *Area) SelfAndAncestors() []*Area {
	var out []*Area
	for cur := a; cur != nil; cur = cur.Parent {
		out = append(out, cur)
	}
	return out
}

// SelfAndDescendants returns the area and every area nested under it.
func (a *Area) SelfAndDescendants() []*Area {
	out := []*Area{a}
	for _, child := range a.Children {
		out = append(out, child.SelfAndDescendants()...)
	}
	return out
}

// DescendantIDs returns the item IDs of the area and all nested areas.
func (a *Area) DescendantIDs() []ItemID {
	areas := a.SelfAndDescendants()
	ids := make([]ItemID, 0, len(areas))
	for _, area := range areas {
		ids = append(ids, area.ID)
	}
	return ids
}

// =============================================================================
// LIMITS - Per-item policy knobs (read-mostly, configured externally)
// =============================================================================

// Limits is the value object of scheduling rules attached to each bookable
// item. A zero value for any numeric field disables that rule.
type Limits struct {
	// How far in the future a reservation may start, in days.
	ReservationHorizonDays int

	// Block-duration bounds, in minutes.
	MinBlockMinutes int
	MaxBlockMinutes int

	// Per-user caps.
	MaxReservationsPerDay       int
	MaxFutureReservations       int
	MaxFutureReservationMinutes int

	// Minimum buffer between the same user's reservations on this item.
	MinGapMinutes int

	// Whether reserving requires being in the item's qualified set.
	RequiresQualification bool

	// Policy-off exemptions: rules above are waived for windows falling
	// entirely on a weekend, or entirely inside the daily off band.
	PolicyOffWeekend      bool
	PolicyOffBetweenTimes bool
	PolicyOffStart        ClockTime
	PolicyOffEnd          ClockTime
}

// ClockTime is a time of day as minutes since local midnight.
type ClockTime int

// NewClockTime builds a ClockTime from hour and minute.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ClockTimeOf extracts the local wall-clock time of an instant.
func ClockTimeOf(t time.Time) ClockTime {
	return ClockTime(t.Hour()*60 + t.Minute())
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// OffBand is the daily policy-off window of an item. A band whose End is
// not after its Start wraps midnight (e.g. 18:00 → 06:00).
type OffBand struct {
	Start ClockTime
	End   ClockTime
}

// Wraps reports whether the band crosses midnight.
func (b OffBand) Wraps() bool { return b.End <= b.Start }

// Span is the band's length.
func (b OffBand) Span() time.Duration {
	minutes := int(b.End) - int(b.Start)
	if b.Wraps() {
		minutes += 24 * 60
	}
	return time.Duration(minutes) * time.Minute
}

// Contains reports whether a wall-clock time falls inside the band.
// Comparisons are inclusive at both edges.
func (b OffBand) Contains(c ClockTime) bool {
	if b.Wraps() {
		return c >= b.Start || c <= b.End
	}
	return c >= b.Start && c <= b.End
}

// offBand returns the item's configured off band, if any.
func (l Limits) offBand() (OffBand, bool) {
	if !l.PolicyOffBetweenTimes {
		return OffBand{}, false
	}
	return OffBand{Start: l.PolicyOffStart, End: l.PolicyOffEnd}, true
}

// =============================================================================
// USER SNAPSHOT - Identity attributes for one evaluation
// =============================================================================

// AccessWindow is one absolute interval during which a user is authorized
// to be in an area. The identity provider expands schedules and closures
// into these windows before handing them to the engine.
type AccessWindow struct {
	Area  ItemID
	Start time.Time
	End   time.Time
}

// Closure is an area shutdown that suspends otherwise-valid access.
type Closure struct {
	Area  ItemID
	Name  string
	Start time.Time
	End   time.Time
}

// User is the immutable identity snapshot supplied by the external
// identity/authorization provider for the duration of one evaluation.
type User struct {
	ID                 UserID
	Name               string
	IsStaff            bool
	IsServicePersonnel bool
	ActiveProjects     []string
	TrainingRequired   bool
	AccessExpiration   *time.Time

	// AccessWindows lists when the user may be in which areas.
	AccessWindows []AccessWindow

	// Closures in effect that override access windows.
	Closures []Closure
}

// HasActiveProject reports whether the user belongs to at least one
// active billing project.
func (u User) HasActiveProject() bool { return len(u.ActiveProjects) > 0 }

// OnProject reports whether the named project is active for the user.
func (u User) OnProject(project string) bool {
	for _, p := range u.ActiveProjects {
		if p == project {
			return true
		}
	}
	return false
}

// AccessExpired reports whether the user's facility access has lapsed.
func (u User) AccessExpired(now time.Time) bool {
	return u.AccessExpiration != nil && u.AccessExpiration.Before(now)
}

// AuthorizedAt reports whether the user may be in the area at the instant.
// If access is suspended by a closure, the closure is returned for the
// violation message.
func (u User) AuthorizedAt(area ItemID, at time.Time) (bool, *Closure) {
	for i := range u.Closures {
		c := &u.Closures[i]
		if c.Area == area && !at.Before(c.Start) && at.Before(c.End) {
			return false, c
		}
	}
	for _, w := range u.AccessWindows {
		if w.Area == area && !at.Before(w.Start) && !at.After(w.End) {
			return true, nil
		}
	}
	return false, nil
}

// DisplayName returns the user's name, falling back to the ID.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return string(u.ID)
}

// =============================================================================
// CONFIGURATION - Global toggles, injected per evaluation
// =============================================================================

// Configuration carries the site-wide toggles the evaluator consults.
// It is passed in at call time and re-read per evaluation; the engine
// never caches it or reads it from ambient state.
type Configuration struct {
	FacilityName string
	SiteTitle    string

	// SuperuserBypass exempts a tool's superusers from the tool's
	// numeric reservation limits.
	SuperuserBypass bool

	// MissedThreshold is how long after a reservation ends, with no
	// recorded usage, before it may be marked missed.
	MissedThreshold time.Duration
}

// ConfigSource supplies the current configuration snapshot. Implementations
// back onto whatever key/value provider the deployment uses.
type ConfigSource interface {
	Config() Configuration
}

// StaticConfig is a ConfigSource returning a fixed value.
type StaticConfig Configuration

func (s StaticConfig) Config() Configuration { return Configuration(s) }

// =============================================================================
// DECISION - The evaluator's verdict
// =============================================================================

// Decision is the outcome of one policy evaluation: every rule that failed
// contributes a human-readable violation, in evaluation order, with no
// short-circuiting. Overridable is true only when no fatal violation
// occurred and the remaining problems could be bypassed by staff or an
// explicit override.
type Decision struct {
	Violations  []string
	Overridable bool
}

// OK reports whether the candidate passed every rule.
func (d Decision) OK() bool { return len(d.Violations) == 0 }
