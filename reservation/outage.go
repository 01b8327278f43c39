/*
outage.go - Scheduled outages and recurring-series expansion

PURPOSE:
  A ScheduledOutage blacks out one item (or a shared resource several
  tools fully depend on) for one interval. Recurring maintenance windows
  are expanded eagerly into independent outage rows sharing a title --
  simplicity over storage efficiency, and each row can then be moved or
  deleted on its own.

DST SAFETY:
  Recurrence is computed on naive local dates: the occurrence's wall-clock
  start and end are rebuilt in the template's location for every
  occurrence, so a weekly 09:00 outage stays 09:00 across a daylight
  saving transition instead of drifting by an hour.

SEE ALSO:
  - policy.go: The conflict rule that consults ActiveOutages
  - store.go: Outage persistence
*/
package reservation

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// SCHEDULED OUTAGE
// =============================================================================

// ScheduledOutage is a blackout interval for one item, or for a shared
// resource (set Resource and leave Item empty) that blocks every tool
// fully depending on it.
type ScheduledOutage struct {
	ID       OutageID
	Item     ItemID
	Resource ResourceID
	Start    time.Time
	End      time.Time
	Title    string
	Category string
	Creator  UserID
}

// Window returns the outage interval [Start, End).
func (o ScheduledOutage) Window() Window {
	return Window{Start: o.Start, End: o.End}
}

// InProgress reports whether the outage covers the instant.
func (o ScheduledOutage) InProgress(at time.Time) bool {
	return o.Window().Contains(at)
}

// =============================================================================
// RECURRENCE
// =============================================================================

// Frequency selects the recurrence stepping for an outage series.
type Frequency string

const (
	Daily         Frequency = "daily"
	Weekly        Frequency = "weekly"
	DailyWeekdays Frequency = "daily_weekdays"
	DailyWeekends Frequency = "daily_weekends"
)

// =============================================================================
// OUTAGE REGISTRY
// =============================================================================

// OutageRegistry records blackout intervals and answers "is this window
// blocked" queries for the policy evaluator.
type OutageRegistry struct {
	Store Store
}

func NewOutageRegistry(store Store) *OutageRegistry {
	return &OutageRegistry{Store: store}
}

// Schedule validates and persists a single outage. An outage may not
// coincide with an existing active reservation for the item.
func (reg *OutageRegistry) Schedule(ctx context.Context, ledger *Ledger, o ScheduledOutage) (ScheduledOutage, string, error) {
	if !o.Window().Valid() {
		problem := fmt.Sprintf("Outage start time (%s) must be before the end time (%s).",
			formatInstant(o.Start), formatInstant(o.End))
		return ScheduledOutage{}, problem, nil
	}
	if o.Item != "" {
		coincident, err := ledger.FindOverlapping(ctx, o.Item, o.Window(), "")
		if err != nil {
			return ScheduledOutage{}, "", err
		}
		if len(coincident) > 0 {
			return ScheduledOutage{}, "Your scheduled outage coincides with a reservation that already exists. Please choose a different time.", nil
		}
	}
	if o.ID == "" {
		o.ID = OutageID(uuid.NewString())
	}
	if err := reg.Store.InsertOutage(ctx, o); err != nil {
		return ScheduledOutage{}, "", err
	}
	return o, "", nil
}

// ScheduleRecurring expands the template into independent outage rows and
// persists each that passes the coincidence check. Returns the rows
// created and the problems for occurrences that were skipped.
func (reg *OutageRegistry) ScheduleRecurring(ctx context.Context, ledger *Ledger, template ScheduledOutage, freq Frequency, interval int, until time.Time) ([]ScheduledOutage, []string, error) {
	var created []ScheduledOutage
	var problems []string
	for _, occurrence := range ExpandRecurrence(template, freq, interval, until) {
		o, problem, err := reg.Schedule(ctx, ledger, occurrence)
		if err != nil {
			return created, problems, err
		}
		if problem != "" {
			problems = append(problems, fmt.Sprintf("%s: %s", occurrence.Start.Format("2006-01-02"), problem))
			continue
		}
		created = append(created, o)
	}
	return created, problems, nil
}

// ActiveOutages returns outages overlapping the window for the item. For
// tools, outages on any shared resource the tool fully depends on count
// as well.
func (reg *OutageRegistry) ActiveOutages(ctx context.Context, item Item, window Window) ([]ScheduledOutage, error) {
	var resources []ResourceID
	if tool, ok := item.(*Tool); ok {
		resources = tool.Resources
	}
	return reg.Store.OutagesFor(ctx, item.ItemID(), resources, window)
}

// Remove deletes one outage row.
func (reg *OutageRegistry) Remove(ctx context.Context, id OutageID) error {
	return reg.Store.DeleteOutage(ctx, id)
}

// ExpandRecurrence generates one outage per occurrence of the template,
// stepping by interval units of the chosen frequency, inclusive of the
// until date's end of day (in the template's location). Each occurrence
// preserves the template's local wall-clock time-of-day and duration.
func ExpandRecurrence(template ScheduledOutage, freq Frequency, interval int, until time.Time) []ScheduledOutage {
	if interval < 1 {
		interval = 1
	}
	loc := template.Start.Location()
	duration := template.End.Sub(template.Start)
	hour, minute := template.Start.Hour(), template.Start.Minute()

	// Walk occurrence dates in naive local time, then localize each
	// generated instant independently. Stepping calendar days (not 24h
	// durations) is what keeps wall-clock times stable across DST.
	year, month, day := template.Start.Date()
	endOfUntil := time.Date(until.In(loc).Year(), until.In(loc).Month(), until.In(loc).Day(), 23, 59, 59, 0, loc)

	step := func(y int, m time.Month, d int) (int, time.Month, int) {
		switch freq {
		case Weekly:
			return time.Date(y, m, d+7*interval, 0, 0, 0, 0, time.UTC).Date()
		case DailyWeekdays, DailyWeekends:
			// Interval applies to the daily stepping; the weekday
			// filter below selects which occurrences survive.
			return time.Date(y, m, d+interval, 0, 0, 0, 0, time.UTC).Date()
		default:
			return time.Date(y, m, d+interval, 0, 0, 0, 0, time.UTC).Date()
		}
	}

	matches := func(wd time.Weekday) bool {
		switch freq {
		case DailyWeekdays:
			return wd != time.Saturday && wd != time.Sunday
		case DailyWeekends:
			return wd == time.Saturday || wd == time.Sunday
		default:
			return true
		}
	}

	var out []ScheduledOutage
	for {
		start := time.Date(year, month, day, hour, minute, 0, 0, loc)
		if start.After(endOfUntil) {
			break
		}
		if matches(start.Weekday()) {
			out = append(out, ScheduledOutage{
				ID:       OutageID(uuid.NewString()),
				Item:     template.Item,
				Resource: template.Resource,
				Start:    start,
				End:      start.Add(duration),
				Title:    template.Title,
				Category: template.Category,
				Creator:  template.Creator,
			})
		}
		year, month, day = step(year, month, day)
	}
	return out
}
