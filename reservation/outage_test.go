package reservation_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/reservation-engine/reservation"
)

// =============================================================================
// RECURRENCE EXPANSION TESTS
// =============================================================================

func TestExpandRecurrence_WeeklyStableAcrossSpringForward(t *testing.T) {
	// GIVEN: A weekly 09:00-11:00 maintenance window in New York starting
	// before the March 2026 daylight saving transition
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	template := reservation.ScheduledOutage{
		Item:  "mill",
		Title: "weekly maintenance",
		Start: time.Date(2026, time.March, 2, 9, 0, 0, 0, loc), // Monday
		End:   time.Date(2026, time.March, 2, 11, 0, 0, 0, loc),
	}
	until := time.Date(2026, time.March, 23, 0, 0, 0, 0, loc)

	// WHEN: Expanding the series past the clock change on March 8
	series := reservation.ExpandRecurrence(template, reservation.Weekly, 1, until)

	// THEN: Every occurrence keeps the 09:00 wall clock even though the
	// UTC offset shifts from -05:00 to -04:00
	require.Len(t, series, 4)
	for _, o := range series {
		assert.Equal(t, 9, o.Start.Hour())
		assert.Equal(t, 11, o.End.Hour())
		assert.Equal(t, time.Monday, o.Start.Weekday())
		assert.Equal(t, 2*time.Hour, o.End.Sub(o.Start))
	}
	_, beforeOffset := series[0].Start.Zone()
	_, afterOffset := series[1].Start.Zone()
	assert.Equal(t, -5*3600, beforeOffset)
	assert.Equal(t, -4*3600, afterOffset, "offset changes while wall clock holds")
}

func TestExpandRecurrence_WeekdayFilter(t *testing.T) {
	loc := time.UTC
	template := reservation.ScheduledOutage{
		Item:  "mill",
		Start: time.Date(2026, time.March, 6, 8, 0, 0, 0, loc), // Friday
		End:   time.Date(2026, time.March, 6, 9, 0, 0, 0, loc),
	}
	until := time.Date(2026, time.March, 10, 0, 0, 0, 0, loc) // Tuesday

	series := reservation.ExpandRecurrence(template, reservation.DailyWeekdays, 1, until)

	require.Len(t, series, 3, "Saturday and Sunday are skipped")
	assert.Equal(t, time.Friday, series[0].Start.Weekday())
	assert.Equal(t, time.Monday, series[1].Start.Weekday())
	assert.Equal(t, time.Tuesday, series[2].Start.Weekday())
}

func TestExpandRecurrence_UntilDateInclusive(t *testing.T) {
	// GIVEN: A daily series whose until equals the date of an occurrence
	template := reservation.ScheduledOutage{
		Item:  "mill",
		Start: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	until := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

	series := reservation.ExpandRecurrence(template, reservation.Daily, 1, until)

	// THEN: The occurrence on the until date itself is included
	require.Len(t, series, 3)
	assert.Equal(t, 4, series[2].Start.Day())
}

func TestExpandRecurrence_ZeroIntervalTreatedAsOne(t *testing.T) {
	template := reservation.ScheduledOutage{
		Item:  "mill",
		Start: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	until := time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC)

	series := reservation.ExpandRecurrence(template, reservation.Daily, 0, until)
	assert.Len(t, series, 2)
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestOutageRegistry_Schedule_RefusesCoincidentReservation(t *testing.T) {
	// GIVEN: An active reservation on the mill
	ledger := newTestLedger(t)
	registry := reservation.NewOutageRegistry(ledger.Store)
	insertBooking(t, ledger, "mill", "alice", win(1, 3))

	// WHEN: Scheduling an outage over the booked window
	_, problem, err := registry.Schedule(context.Background(), ledger, reservation.ScheduledOutage{
		Item:  "mill",
		Title: "repair",
		Start: base.Add(2 * time.Hour),
		End:   base.Add(4 * time.Hour),
	})

	// THEN: The outage is refused with the coincidence problem
	require.NoError(t, err)
	assert.Equal(t, "Your scheduled outage coincides with a reservation that already exists. Please choose a different time.", problem)

	// A back-to-back outage right after the reservation is fine.
	created, problem, err := registry.Schedule(context.Background(), ledger, reservation.ScheduledOutage{
		Item:  "mill",
		Title: "repair",
		Start: base.Add(3 * time.Hour),
		End:   base.Add(4 * time.Hour),
	})
	require.NoError(t, err)
	assert.Empty(t, problem)
	assert.NotEmpty(t, created.ID)
}

func TestOutageRegistry_Schedule_InvalidWindow(t *testing.T) {
	ledger := newTestLedger(t)
	registry := reservation.NewOutageRegistry(ledger.Store)

	_, problem, err := registry.Schedule(context.Background(), ledger, reservation.ScheduledOutage{
		Item:  "mill",
		Start: base.Add(2 * time.Hour),
		End:   base.Add(time.Hour),
	})
	require.NoError(t, err)
	assert.Contains(t, problem, "must be before the end time")
}

func TestOutageRegistry_ScheduleRecurring_SkipsConflictingDates(t *testing.T) {
	// GIVEN: A reservation blocking only the second date of a daily series
	ledger := newTestLedger(t)
	registry := reservation.NewOutageRegistry(ledger.Store)
	insertBooking(t, ledger, "mill", "alice", reservation.Window{
		Start: time.Date(2026, time.March, 3, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 3, 10, 0, 0, 0, time.UTC),
	})

	template := reservation.ScheduledOutage{
		Item:  "mill",
		Title: "calibration",
		Start: time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC),
		End:   time.Date(2026, time.March, 2, 9, 0, 0, 0, time.UTC),
	}
	until := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

	// WHEN: Expanding and persisting the series
	created, problems, err := registry.ScheduleRecurring(context.Background(), ledger, template, reservation.Daily, 1, until)

	// THEN: Two rows persist and the blocked date is reported, not fatal
	require.NoError(t, err)
	assert.Len(t, created, 2)
	require.Len(t, problems, 1)
	assert.Contains(t, problems[0], "2026-03-03")
}

func TestOutageRegistry_ActiveOutages_IncludesToolResourceOutages(t *testing.T) {
	// GIVEN: An outage on a shared resource the tool fully depends on
	ledger := newTestLedger(t)
	registry := reservation.NewOutageRegistry(ledger.Store)
	tool := &reservation.Tool{ID: "mill", ToolName: "Mill", Resources: []reservation.ResourceID{"compressed-air"}}

	_, problem, err := registry.Schedule(context.Background(), ledger, reservation.ScheduledOutage{
		Resource: "compressed-air",
		Title:    "compressor service",
		Start:    base.Add(time.Hour),
		End:      base.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	require.Empty(t, problem)

	outages, err := registry.ActiveOutages(context.Background(), tool, win(0, 3))
	require.NoError(t, err)
	require.Len(t, outages, 1)
	assert.Equal(t, "compressor service", outages[0].Title)

	// A different tool without the dependency is unaffected.
	other := &reservation.Tool{ID: "lathe", ToolName: "Lathe"}
	outages, err = registry.ActiveOutages(context.Background(), other, win(0, 3))
	require.NoError(t, err)
	assert.Empty(t, outages)
}
